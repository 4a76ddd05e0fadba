// Package grade turns raw marks into grades, credit points, GPA & CGPA and cohort statistics.
//
// The functions never fail on numeric input: anything that would divide by zero yields 0.00.
// Callers that need strict input checks validate a MarkInput first (see Validate).
package grade

// DefaultPassMark is the minimum total marks a subject must score to be passed.
const DefaultPassMark = 40.0

// Grade is the result of looking up total marks in the grading scale.
type Grade struct {
	Point  float64 `json:"grade_point"`
	Letter string  `json:"letter_grade"`
}

// Band is one row of the grading scale.
type Band struct {
	MinMarks float64 `json:"min_marks"`
	Grade
}

// scale is ordered by descending MinMarks; the first band whose MinMarks is reached wins.
var scale = []Band{
	{MinMarks: 90, Grade: Grade{Point: 4.00, Letter: "A+"}},
	{MinMarks: 85, Grade: Grade{Point: 3.75, Letter: "A"}},
	{MinMarks: 80, Grade: Grade{Point: 3.50, Letter: "A-"}},
	{MinMarks: 75, Grade: Grade{Point: 3.25, Letter: "B+"}},
	{MinMarks: 70, Grade: Grade{Point: 3.00, Letter: "B"}},
	{MinMarks: 65, Grade: Grade{Point: 2.75, Letter: "B-"}},
	{MinMarks: 60, Grade: Grade{Point: 2.50, Letter: "C+"}},
	{MinMarks: 55, Grade: Grade{Point: 2.25, Letter: "C"}},
	{MinMarks: 50, Grade: Grade{Point: 2.00, Letter: "C-"}},
	{MinMarks: 45, Grade: Grade{Point: 1.75, Letter: "D"}},
	{MinMarks: 40, Grade: Grade{Point: 1.50, Letter: "E"}},
}

var failGrade = Grade{Point: 0, Letter: "F"}

// Scale returns a copy of the grading scale, failing band last.
func Scale() []Band {
	bands := make([]Band, 0, len(scale)+1)
	bands = append(bands, scale...)
	return append(bands, Band{MinMarks: 0, Grade: failGrade})
}

// GradeOf maps total marks to their grade point and letter.
func GradeOf(totalMarks float64) Grade {
	for _, band := range scale {
		if totalMarks >= band.MinMarks {
			return band.Grade
		}
	}
	return failGrade // also NaN
}

// IsPassed reports whether total marks reach the pass mark (DefaultPassMark unless given).
// It is independent of the grading scale: 40 is an E but still a pass.
func IsPassed(totalMarks float64, passMark ...float64) bool {
	pm := DefaultPassMark
	if len(passMark) > 0 {
		pm = passMark[0]
	}
	return totalMarks >= pm
}
