package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/grade"
)

const markColumns = `id, subject_id, student_id, semester, session_id, internal_marks, external_marks,
	total_marks, credit_hours, created_at, updated_at`

type markRow struct {
	ID            string       `db:"id"`
	SubjectID     string       `db:"subject_id"`
	StudentID     string       `db:"student_id"`
	Semester      int          `db:"semester"`
	SessionID     string       `db:"session_id"`
	InternalMarks null.Float64 `db:"internal_marks"`
	ExternalMarks null.Float64 `db:"external_marks"`
	TotalMarks    float64      `db:"total_marks"`
	CreditHours   int          `db:"credit_hours"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r markRow) mark() grade.Mark {
	return grade.Mark{
		ID:            r.ID,
		SubjectID:     r.SubjectID,
		StudentID:     r.StudentID,
		Semester:      r.Semester,
		SessionID:     r.SessionID,
		InternalMarks: r.InternalMarks.Ptr(),
		ExternalMarks: r.ExternalMarks.Ptr(),
		TotalMarks:    r.TotalMarks,
		CreditHours:   r.CreditHours,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type markRepository struct {
	exec core.DBExecutor
}

var _ grade.Repository = (*markRepository)(nil) // interface compliance check

func NewMarkRepository(exec core.DBExecutor) grade.Repository {
	return &markRepository{exec: exec}
}

func (repo *markRepository) SaveMark(ctx context.Context, m grade.Mark) (grade.Mark, error) {
	q := `INSERT INTO marks (id, subject_id, student_id, semester, session_id, internal_marks, external_marks,
			total_marks, credit_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (student_id, subject_id, semester, session_id) DO UPDATE SET
			internal_marks = EXCLUDED.internal_marks,
			external_marks = EXCLUDED.external_marks,
			total_marks = EXCLUDED.total_marks,
			credit_hours = EXCLUDED.credit_hours,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + markColumns

	var row markRow
	err := repo.exec.GetContext(ctx, &row, q,
		m.ID,
		m.SubjectID,
		m.StudentID,
		m.Semester,
		m.SessionID,
		null.Float64FromPtr(m.InternalMarks),
		null.Float64FromPtr(m.ExternalMarks),
		m.TotalMarks,
		m.CreditHours,
		m.CreatedAt.UTC(),
		m.UpdatedAt.UTC(),
	)
	if err != nil {
		return grade.Mark{}, errors.Wrap(err, "upserting mark")
	}
	return row.mark(), nil
}

func (repo *markRepository) QueryMarks(ctx context.Context, filter grade.MarkFilter) ([]grade.Mark, error) {
	conds := []string{"TRUE"}
	args := make([]interface{}, 0, 4)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conds = append(conds, "student_id = ?")
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conds = append(conds, "subject_id = ?")
	}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		conds = append(conds, "session_id = ?")
	}
	if filter.Semester != 0 {
		args = append(args, filter.Semester)
		conds = append(conds, "semester = ?")
	}
	q := repo.exec.Rebind(`SELECT ` + markColumns + ` FROM marks WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY session_id, semester, created_at`)

	var rows []markRow
	if err := repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying marks")
	}
	marks := make([]grade.Mark, 0, len(rows))
	for _, r := range rows {
		marks = append(marks, r.mark())
	}
	return marks, nil
}
