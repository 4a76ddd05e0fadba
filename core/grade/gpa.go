package grade

import "math"

type (
	// Subject is the grade point & credit hours of one subject, the input of GPA computations.
	Subject struct {
		GradePoint  float64 `json:"grade_point"`
		CreditHours int     `json:"credit_hours"`
	}

	// SemesterSummary is the credit-weighted aggregate of one semester.
	SemesterSummary struct {
		TotalCredits      int     `json:"total_credits"`
		TotalCreditPoints float64 `json:"total_credit_points"`
		GPA               float64 `json:"gpa"`
	}

	// Semester is the GPA & credits of one semester, the input of CGPA computations.
	Semester struct {
		GPA          float64 `json:"gpa"`
		TotalCredits int     `json:"total_credits"`
	}

	// CumulativeSummary is the credit-weighted aggregate over several semesters.
	CumulativeSummary struct {
		TotalCredits        int     `json:"total_credits"`
		TotalWeightedPoints float64 `json:"total_weighted_points"`
		CGPA                float64 `json:"cgpa"`
	}
)

// maxRoundable is the magnitude above which a float64 has no hundredths left to round.
const maxRoundable = 1e15

// Round2 rounds v to 2 decimals, half away from zero. Float noise below 1e-9 is dropped first
// so that eg. 2.675 rounds to 2.68. NaN and infinities round to 0; magnitudes above 1e15 are returned as is.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if math.Abs(v) > maxRoundable {
		return v
	}
	return math.Round(math.Round(v*1e9)/1e7) / 100
}

// CreditPoints is gradePoint * creditHours rounded to 2 decimals. Non-positive credit hours earn nothing.
func CreditPoints(gradePoint float64, creditHours int) float64 {
	if creditHours <= 0 {
		return 0
	}
	return Round2(gradePoint * float64(creditHours))
}

// SemesterGPA is the direct credit-weighted average of the subjects' grade points.
// Persisted reports use SummarizeSemester, which rounds every row's credit points first.
func SemesterGPA(subjects []Subject) float64 {
	var points float64
	var credits int
	for _, s := range subjects {
		if s.CreditHours <= 0 {
			continue
		}
		points += s.GradePoint * float64(s.CreditHours)
		credits += s.CreditHours
	}
	if credits == 0 {
		return 0
	}
	return Round2(points / float64(credits))
}

// SummarizeSemester sums the per-row rounded credit points and divides by the total credits.
func SummarizeSemester(subjects []Subject) SemesterSummary {
	var sum SemesterSummary
	for _, s := range subjects {
		if s.CreditHours <= 0 {
			continue
		}
		sum.TotalCredits += s.CreditHours
		sum.TotalCreditPoints += CreditPoints(s.GradePoint, s.CreditHours)
	}
	sum.TotalCreditPoints = Round2(sum.TotalCreditPoints)
	if sum.TotalCredits > 0 {
		sum.GPA = Round2(sum.TotalCreditPoints / float64(sum.TotalCredits))
	}
	return sum
}

// SemesterGPAFromRecords grades every stored mark and summarizes them the way reports do.
func SemesterGPAFromRecords(marks []Mark) SemesterSummary {
	subjects := make([]Subject, 0, len(marks))
	for _, m := range marks {
		subjects = append(subjects, m.Subject())
	}
	return SummarizeSemester(subjects)
}

// CumulativeGPA is the credit-weighted average of the semesters' GPAs.
func CumulativeGPA(semesters []Semester) float64 {
	return SummarizeCumulative(semesters).CGPA
}

// SummarizeCumulative aggregates semesters into a CGPA. Semesters without credits are ignored.
func SummarizeCumulative(semesters []Semester) CumulativeSummary {
	var sum CumulativeSummary
	for _, s := range semesters {
		if s.TotalCredits <= 0 {
			continue
		}
		sum.TotalCredits += s.TotalCredits
		sum.TotalWeightedPoints += s.GPA * float64(s.TotalCredits)
	}
	sum.TotalWeightedPoints = Round2(sum.TotalWeightedPoints)
	if sum.TotalCredits > 0 {
		sum.CGPA = Round2(sum.TotalWeightedPoints / float64(sum.TotalCredits))
	}
	return sum
}

// Percentage is obtained/total*100 rounded to 2 decimals; total defaults to 100 and 0 yields 0.
func Percentage(obtained float64, total ...float64) float64 {
	t := 100.0
	if len(total) > 0 {
		t = total[0]
	}
	if t == 0 {
		return 0
	}
	return Round2(obtained / t * 100)
}
