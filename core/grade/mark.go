package grade

import (
	"math"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/portal/core"
)

var (
	marksSumTag  = "markssum"
	marksSumText = "internal and external marks must add up to total marks"

	marksSumTolerance = 0.005
)

// Mark is one student's performance in one subject for one semester of a session.
type Mark struct {
	ID            string    `json:"id"`
	SubjectID     string    `json:"subject_id"`
	StudentID     string    `json:"student_id"`
	Semester      int       `json:"semester"`
	SessionID     string    `json:"session_id"`
	InternalMarks *float64  `json:"internal_marks"` // nil when not recorded
	ExternalMarks *float64  `json:"external_marks"` // nil when not recorded
	TotalMarks    float64   `json:"total_marks"`
	CreditHours   int       `json:"credit_hours"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (m Mark) Grade() Grade {
	return GradeOf(m.TotalMarks)
}

func (m Mark) CreditPoints() float64 {
	return CreditPoints(m.Grade().Point, m.CreditHours)
}

func (m Mark) Subject() Subject {
	return Subject{GradePoint: m.Grade().Point, CreditHours: m.CreditHours}
}

func (m Mark) IsPassed(passMark ...float64) bool {
	return IsPassed(m.TotalMarks, passMark...)
}

// RawMark is a mark as it comes from loosely typed sources (forms, spreadsheets, JSON).
// Its numeric fields are coerced, never rejected.
type RawMark struct {
	SubjectID     string      `json:"subject_id"`
	StudentID     string      `json:"student_id"`
	Semester      interface{} `json:"semester"`
	SessionID     string      `json:"session_id"`
	InternalMarks interface{} `json:"internal_marks"`
	ExternalMarks interface{} `json:"external_marks"`
	TotalMarks    interface{} `json:"total_marks"`
	CreditHours   interface{} `json:"credit_hours"`
}

// Coerce converts the raw mark for reporting: non-numeric values become 0,
// total marks are clamped into [0, 100] and negative credit hours become 0.
// Missing internal or external marks stay nil.
func (rm RawMark) Coerce() Mark {
	credits := ToInt(rm.CreditHours)
	if credits < 0 {
		credits = 0
	}
	return Mark{
		SubjectID:     core.CleanString(rm.SubjectID),
		StudentID:     core.CleanString(rm.StudentID),
		Semester:      ToInt(rm.Semester),
		SessionID:     core.CleanString(rm.SessionID),
		InternalMarks: optionalFloat(rm.InternalMarks),
		ExternalMarks: optionalFloat(rm.ExternalMarks),
		TotalMarks:    clampMarks(ToFloat(rm.TotalMarks)),
		CreditHours:   credits,
	}
}

func optionalFloat(v interface{}) *float64 {
	if v == nil {
		return nil
	}
	f := ToFloat(v)
	return &f
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// MarkInput is a mark entered by a teacher. It must be validated before it can be recorded.
type MarkInput struct {
	SubjectID     string   `json:"subject_id" validate:"required"`
	StudentID     string   `json:"student_id" validate:"required"`
	Semester      int      `json:"semester" validate:"required,min=1,max=12"`
	SessionID     string   `json:"session_id" validate:"required,session"`
	InternalMarks *float64 `json:"internal_marks" validate:"omitempty,marks"`
	ExternalMarks *float64 `json:"external_marks" validate:"omitempty,marks"`
	TotalMarks    *float64 `json:"total_marks" validate:"required,marks"`
	CreditHours   int      `json:"credit_hours" validate:"required,min=1"`
}

// ValidatedMark is a Mark that went through MarkInput.Validate. Its zero value is not valid.
type ValidatedMark struct {
	mark Mark
}

func (vm ValidatedMark) Mark() Mark {
	return vm.mark
}

func (vm ValidatedMark) IsZero() bool {
	return vm.mark.StudentID == ""
}

// Validate cleans the input and checks it strictly.
func (in *MarkInput) Validate(validate *validator.Validate) (ValidatedMark, error) {
	in.SubjectID = core.CleanString(in.SubjectID)
	in.StudentID = core.CleanString(in.StudentID)
	in.SessionID = core.CleanString(in.SessionID)

	if err := validate.Struct(in); err != nil {
		return ValidatedMark{}, err
	}

	m := Mark{
		SubjectID:     in.SubjectID,
		StudentID:     in.StudentID,
		Semester:      in.Semester,
		SessionID:     in.SessionID,
		InternalMarks: copyFloat(in.InternalMarks),
		ExternalMarks: copyFloat(in.ExternalMarks),
		TotalMarks:    *in.TotalMarks,
		CreditHours:   in.CreditHours,
	}
	return ValidatedMark{mark: m}, nil
}

// InitValidators registers the grade validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(markInputStructValidation, MarkInput{})
	core.RegisterCustomTranslation(validate, translator, marksSumTag, marksSumText)
}

// markInputStructValidation checks that internal & external marks, when given, add up to the total.
func markInputStructValidation(sl validator.StructLevel) {
	in := sl.Current().Interface().(MarkInput)
	if in.TotalMarks == nil || (in.InternalMarks == nil && in.ExternalMarks == nil) {
		return
	}
	var sum float64
	if in.InternalMarks != nil {
		sum += *in.InternalMarks
	}
	if in.ExternalMarks != nil {
		sum += *in.ExternalMarks
	}
	if math.Abs(sum-*in.TotalMarks) > marksSumTolerance {
		sl.ReportError(in.TotalMarks, "total_marks", "TotalMarks", marksSumTag, "")
	}
}
