package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/portal/core/grade"
)

type markKey struct {
	studentID, subjectID, sessionID string
	semester                        int
}

func keyOf(m grade.Mark) markKey {
	return markKey{studentID: m.StudentID, subjectID: m.SubjectID, sessionID: m.SessionID, semester: m.Semester}
}

type markRepository struct {
	db *markTable
}

var _ grade.Repository = (*markRepository)(nil) // interface compliance check

func NewMarkRepository(db *DB) grade.Repository {
	return &markRepository{db: db.mark}
}

func (repo *markRepository) SaveMark(_ context.Context, m grade.Mark) (grade.Mark, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	k := keyOf(m)
	if orig, ok := repo.db.table[k]; ok {
		m.ID = orig.ID
		m.CreatedAt = orig.CreatedAt
	}
	repo.db.table[k] = &m
	return m, nil
}

func (repo *markRepository) QueryMarks(_ context.Context, filter grade.MarkFilter) ([]grade.Mark, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	marks := make([]grade.Mark, 0)
	for _, m := range repo.db.table {
		if filter.StudentID != "" && m.StudentID != filter.StudentID {
			continue
		}
		if filter.SubjectID != "" && m.SubjectID != filter.SubjectID {
			continue
		}
		if filter.SessionID != "" && m.SessionID != filter.SessionID {
			continue
		}
		if filter.Semester != 0 && m.Semester != filter.Semester {
			continue
		}
		marks = append(marks, *m)
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].CreatedAt.Before(marks[j].CreatedAt) })
	return marks, nil
}
