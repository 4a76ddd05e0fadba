package grade

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/portal/core"
)

var ErrUnvalidatedMark = errors.New("mark has not been validated")

type (
	// MarkFilter applies AND on its set fields.
	MarkFilter struct {
		StudentID string
		SubjectID string
		SessionID string
		Semester  int
	}

	Repository interface {
		// SaveMark inserts m, or replaces the mark of the same student, subject, semester & session.
		SaveMark(ctx context.Context, m Mark) (Mark, error)
		QueryMarks(ctx context.Context, filter MarkFilter) ([]Mark, error)
	}

	// SubjectResult is a graded mark as it appears on a result sheet.
	SubjectResult struct {
		Mark
		Grade
		CreditPoints float64 `json:"credit_points"`
		Passed       bool    `json:"passed"`
	}

	SemesterResult struct {
		StudentID string          `json:"student_id"`
		SessionID string          `json:"session_id"`
		Semester  int             `json:"semester"`
		Subjects  []SubjectResult `json:"subjects"`
		SemesterSummary
		// FailedSubjects counts the subjects under the pass mark.
		FailedSubjects int `json:"failed_subjects"`
	}

	CumulativeResult struct {
		StudentID string           `json:"student_id"`
		SessionID string           `json:"session_id,omitempty"`
		Semesters []SemesterResult `json:"semesters"`
		CumulativeSummary
	}

	// Service persists validated marks and builds result sheets from stored marks.
	Service struct {
		repo     Repository
		passMark float64
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	pm := conf.Grading.PassMark
	if pm <= 0 {
		pm = DefaultPassMark
	}
	return &Service{repo: repo, passMark: pm}
}

func (svc *Service) PassMark() float64 {
	return svc.passMark
}

// RecordMark saves a mark entered through MarkInput.Validate.
func (svc *Service) RecordMark(ctx context.Context, vm ValidatedMark) (Mark, error) {
	if vm.IsZero() {
		return Mark{}, ErrUnvalidatedMark
	}
	now := time.Now().UTC()
	m := vm.Mark()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.UpdatedAt = now

	saved, err := svc.repo.SaveMark(ctx, m)
	if err != nil {
		return Mark{}, errors.Wrap(err, "saving mark")
	}
	return saved, nil
}

func (svc *Service) gradeSubject(m Mark) SubjectResult {
	return SubjectResult{
		Mark:         m,
		Grade:        m.Grade(),
		CreditPoints: m.CreditPoints(),
		Passed:       m.IsPassed(svc.passMark),
	}
}

func (svc *Service) semesterResult(studentID, sessionID string, semester int, marks []Mark) SemesterResult {
	res := SemesterResult{
		StudentID:       studentID,
		SessionID:       sessionID,
		Semester:        semester,
		Subjects:        make([]SubjectResult, 0, len(marks)),
		SemesterSummary: SemesterGPAFromRecords(marks),
	}
	for _, m := range marks {
		sr := svc.gradeSubject(m)
		if !sr.Passed {
			res.FailedSubjects++
		}
		res.Subjects = append(res.Subjects, sr)
	}
	return res
}

// SemesterResult grades the stored marks of a student's semester.
// A semester without marks has a GPA of 0.
func (svc *Service) SemesterResult(ctx context.Context, studentID string, semester int, sessionID string) (SemesterResult, error) {
	marks, err := svc.repo.QueryMarks(ctx, MarkFilter{StudentID: studentID, Semester: semester, SessionID: sessionID})
	if err != nil {
		return SemesterResult{}, errors.Wrap(err, "querying marks")
	}
	return svc.semesterResult(studentID, sessionID, semester, marks), nil
}

// CumulativeResult grades every semester of a student, in the given session only when sessionID is set.
func (svc *Service) CumulativeResult(ctx context.Context, studentID, sessionID string) (CumulativeResult, error) {
	marks, err := svc.repo.QueryMarks(ctx, MarkFilter{StudentID: studentID, SessionID: sessionID})
	if err != nil {
		return CumulativeResult{}, errors.Wrap(err, "querying marks")
	}

	type semKey struct {
		session  string
		semester int
	}
	groups := make(map[semKey][]Mark)
	keys := make([]semKey, 0)
	for _, m := range marks {
		k := semKey{session: m.SessionID, semester: m.Semester}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], m)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].session != keys[j].session {
			return keys[i].session < keys[j].session
		}
		return keys[i].semester < keys[j].semester
	})

	res := CumulativeResult{
		StudentID: studentID,
		SessionID: sessionID,
		Semesters: make([]SemesterResult, 0, len(keys)),
	}
	semesters := make([]Semester, 0, len(keys))
	for _, k := range keys {
		sr := svc.semesterResult(studentID, k.session, k.semester, groups[k])
		res.Semesters = append(res.Semesters, sr)
		semesters = append(semesters, Semester{GPA: sr.GPA, TotalCredits: sr.TotalCredits})
	}
	res.CumulativeSummary = SummarizeCumulative(semesters)
	return res, nil
}

// SubjectStatistics computes the cohort statistics of a subject, at the service pass mark.
func (svc *Service) SubjectStatistics(ctx context.Context, subjectID string, semester int, sessionID string) (Statistics, error) {
	marks, err := svc.repo.QueryMarks(ctx, MarkFilter{SubjectID: subjectID, Semester: semester, SessionID: sessionID})
	if err != nil {
		return Statistics{}, errors.Wrap(err, "querying marks")
	}
	totals := make([]float64, 0, len(marks))
	for _, m := range marks {
		totals = append(totals, m.TotalMarks)
	}
	return CohortStatistics(totals, svc.passMark), nil
}
