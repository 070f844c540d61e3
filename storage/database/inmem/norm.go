package inmemdb

import (
	"context"
	"sort"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/grading"
	"github.com/normbook/normbook/core/norm"
)

type normRepository struct {
	db *DB
}

var _ norm.Repository = (*normRepository)(nil) // interface compliance check

func NewNormRepository(db *DB) norm.Repository {
	return &normRepository{db: db}
}

func (repo *normRepository) GetTemplate(_ context.Context, id string, _ ...core.DBExecutor) (norm.Template, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if tmpl, ok := repo.db.templates[id]; ok {
		return tmpl, nil
	}
	return norm.Template{}, norm.ErrNotFound
}

func (repo *normRepository) GetGroupNorm(_ context.Context, id string, _ ...core.DBExecutor) (norm.GroupNorm, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if gn, ok := repo.db.groupNorms[id]; ok {
		return gn, nil
	}
	return norm.GroupNorm{}, norm.ErrNotFound
}

func (repo *normRepository) GetStudent(_ context.Context, id string, _ ...core.DBExecutor) (norm.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if st, ok := repo.db.students[id]; ok {
		return st, nil
	}
	return norm.Student{}, norm.ErrNotFound
}

func (repo *normRepository) QueryTemplateBoundaries(_ context.Context, templateID string, _ ...core.DBExecutor) ([]grading.Boundary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return append([]grading.Boundary(nil), repo.db.templateBoundaries[templateID]...), nil
}

func (repo *normRepository) QueryGroupNormBoundaries(_ context.Context, groupNormID string, _ ...core.DBExecutor) ([]grading.Boundary, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return append([]grading.Boundary(nil), repo.db.groupNormBounds[groupNormID]...), nil
}

func (repo *normRepository) CreateNorm(_ context.Context, n norm.Norm, _ ...core.DBExecutor) (norm.Norm, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.norms[n.ID] = n
	return n, nil
}

func (repo *normRepository) GetNorm(_ context.Context, id string, _ ...core.DBExecutor) (norm.Norm, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.norms[id]; ok {
		return n, nil
	}
	return norm.Norm{}, norm.ErrNotFound
}

func (repo *normRepository) QueryNorms(_ context.Context, filter *norm.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]norm.Norm, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	norms := make([]norm.Norm, 0)
	for _, n := range repo.db.norms {
		if filter == nil || repo.matches(n, filter) {
			norms = append(norms, n)
		}
	}

	// map order is random; fall back to ID for a stable result
	sort.Slice(norms, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compareNorms(norms[i], norms[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return norms[i].ID < norms[j].ID
	})
	return norms, nil
}

func (repo *normRepository) matches(n norm.Norm, filter *norm.QueryFilter) bool {
	if filter.StudentID != "" && n.StudentID != filter.StudentID {
		return false
	}
	if filter.TemplateID != "" && n.TemplateID != filter.TemplateID {
		return false
	}
	if filter.GroupNormID != "" && n.GroupNormID != filter.GroupNormID {
		return false
	}
	if filter.Status != "" && n.Status != filter.Status {
		return false
	}
	if filter.TrainerID != "" && n.TrainerID != filter.TrainerID {
		return false
	}
	if filter.Period != "" {
		gn, ok := repo.db.groupNorms[n.GroupNormID]
		if !ok || gn.Period != filter.Period {
			return false
		}
	}
	return true
}

func compareNorms(a, b norm.Norm, field string) int {
	switch field {
	case "date":
		return compareTimes(a.Date.UnixNano(), b.Date.UnixNano())
	case "created_at":
		return compareTimes(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "value":
		switch {
		case a.Value < b.Value:
			return -1
		case a.Value > b.Value:
			return 1
		}
	}
	return 0
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (repo *normRepository) UpdateNorm(_ context.Context, n norm.Norm, _ ...core.DBExecutor) (norm.Norm, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.norms[n.ID]; !ok {
		return norm.Norm{}, norm.ErrNotFound
	}
	repo.db.norms[n.ID] = n
	return n, nil
}
