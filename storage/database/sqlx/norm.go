package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/grading"
	"github.com/normbook/normbook/core/norm"
)

type (
	templateRow struct {
		ID               string      `db:"id"`
		Name             string      `db:"name"`
		Unit             string      `db:"unit"`
		Direction        string      `db:"direction"`
		ClassFrom        int         `db:"class_from"`
		ClassTo          int         `db:"class_to"`
		ApplicableGender string      `db:"applicable_gender"`
		IsPublic         bool        `db:"is_public"`
		OwnerID          null.String `db:"owner_id"`
		CreatedAt        time.Time   `db:"created_at"`
	}

	boundaryRow struct {
		Grade     int          `db:"grade"`
		Gender    string       `db:"gender"`
		Class     int          `db:"class"`
		FromValue null.Float64 `db:"from_value"`
		ToValue   null.Float64 `db:"to_value"`
	}

	groupNormRow struct {
		ID                  string    `db:"id"`
		TemplateID          string    `db:"template_id"`
		GroupID             string    `db:"group_id"`
		TrainerID           string    `db:"trainer_id"`
		Date                time.Time `db:"date"`
		Period              string    `db:"period"`
		UseCustomBoundaries bool      `db:"use_custom_boundaries"`
		CreatedAt           time.Time `db:"created_at"`
	}

	studentRow struct {
		ID      string      `db:"id"`
		Name    string      `db:"name"`
		Gender  null.String `db:"gender"`
		GroupID null.String `db:"group_id"`
		Class   null.Int    `db:"class"`
	}

	normRow struct {
		ID          string      `db:"id"`
		StudentID   string      `db:"student_id"`
		TemplateID  string      `db:"template_id"`
		GroupNormID null.String `db:"group_norm_id"`
		TrainerID   string      `db:"trainer_id"`
		Value       float64     `db:"value"`
		Date        time.Time   `db:"date"`
		Grade       null.Int    `db:"grade"`
		Status      string      `db:"status"`
		Outcome     string      `db:"outcome"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}
)

const (
	normColumns = `n.id, n.student_id, n.template_id, n.group_norm_id, n.trainer_id, n.value, n.date,
		n.grade, n.status, n.outcome, n.created_at, n.updated_at`

	insertNormQuery = `INSERT INTO norm
		(id, student_id, template_id, group_norm_id, trainer_id, value, date, grade, status, outcome, created_at, updated_at)
		VALUES
		(:id, :student_id, :template_id, :group_norm_id, :trainer_id, :value, :date, :grade, :status, :outcome, :created_at, :updated_at)`

	updateNormQuery = `UPDATE norm SET
		value = :value, date = :date, grade = :grade, status = :status, outcome = :outcome, updated_at = :updated_at
		WHERE id = :id`
)

// sortable norm fields and their columns
var normOrderColumns = map[string]string{
	"date":       "n.date",
	"created_at": "n.created_at",
	"value":      "n.value",
}

type normRepository struct {
	exec core.DBExecutor
}

var _ norm.Repository = (*normRepository)(nil) // interface compliance check

func NewNormRepository(exec core.DBExecutor) norm.Repository {
	return &normRepository{exec: exec}
}

func (repo normRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to norm.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return norm.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (repo normRepository) GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (norm.Template, error) {
	if !isUUID(id) {
		return norm.Template{}, norm.ErrNotFound
	}
	var row templateRow
	q := `SELECT id, name, unit, direction, class_from, class_to, applicable_gender, is_public, owner_id, created_at
		FROM norm_template WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return norm.Template{}, trapNoRowsErr(err, "finding template")
	}
	return norm.Template{
		ID:               row.ID,
		Name:             row.Name,
		Unit:             row.Unit,
		Direction:        grading.Direction(row.Direction),
		ClassFrom:        row.ClassFrom,
		ClassTo:          row.ClassTo,
		ApplicableGender: grading.ApplicableGender(row.ApplicableGender),
		IsPublic:         row.IsPublic,
		OwnerID:          row.OwnerID.String,
		CreatedAt:        row.CreatedAt.UTC(),
	}, nil
}

func (repo normRepository) GetGroupNorm(ctx context.Context, id string, exec ...core.DBExecutor) (norm.GroupNorm, error) {
	if !isUUID(id) {
		return norm.GroupNorm{}, norm.ErrNotFound
	}
	var row groupNormRow
	q := `SELECT id, template_id, group_id, trainer_id, date, period, use_custom_boundaries, created_at
		FROM group_norm WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return norm.GroupNorm{}, trapNoRowsErr(err, "finding group norm")
	}
	return norm.GroupNorm{
		ID:                  row.ID,
		TemplateID:          row.TemplateID,
		GroupID:             row.GroupID,
		TrainerID:           row.TrainerID,
		Date:                row.Date.UTC(),
		Period:              norm.Period(row.Period),
		UseCustomBoundaries: row.UseCustomBoundaries,
		CreatedAt:           row.CreatedAt.UTC(),
	}, nil
}

func (repo normRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (norm.Student, error) {
	if !isUUID(id) {
		return norm.Student{}, norm.ErrNotFound
	}
	var row studentRow
	// class comes from the student's group
	q := `SELECT s.id, s.name, s.gender, s.group_id, g.class
		FROM student s LEFT JOIN student_group g ON g.id = s.group_id
		WHERE s.id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return norm.Student{}, trapNoRowsErr(err, "finding student")
	}
	return norm.Student{
		ID:         row.ID,
		Name:       row.Name,
		GenderCode: row.Gender.String,
		GroupID:    row.GroupID.String,
		Class:      row.Class.Int,
	}, nil
}

func (repo normRepository) queryBoundaries(ctx context.Context, exec core.DBExecutor, table, fk, id string) ([]grading.Boundary, error) {
	if !isUUID(id) {
		return []grading.Boundary{}, nil
	}
	var rows []boundaryRow
	q := `SELECT grade, gender, class, from_value, to_value FROM ` + table + ` WHERE ` + fk + ` = $1 ORDER BY gender, class, grade DESC`
	if err := sqlx.SelectContext(ctx, exec, &rows, q, id); err != nil {
		return nil, err
	}
	bounds := make([]grading.Boundary, 0, len(rows))
	for _, r := range rows {
		bounds = append(bounds, grading.Boundary{
			Grade:  grading.Grade(r.Grade),
			Gender: grading.Gender(r.Gender),
			Class:  r.Class,
			From:   r.FromValue.Ptr(),
			To:     r.ToValue.Ptr(),
		})
	}
	return bounds, nil
}

func (repo normRepository) QueryTemplateBoundaries(ctx context.Context, templateID string, exec ...core.DBExecutor) ([]grading.Boundary, error) {
	bounds, err := repo.queryBoundaries(ctx, repo.getExec(exec), "norm_template_boundary", "template_id", templateID)
	return bounds, errors.Wrap(err, "querying template boundaries")
}

func (repo normRepository) QueryGroupNormBoundaries(ctx context.Context, groupNormID string, exec ...core.DBExecutor) ([]grading.Boundary, error) {
	bounds, err := repo.queryBoundaries(ctx, repo.getExec(exec), "group_norm_boundary", "group_norm_id", groupNormID)
	return bounds, errors.Wrap(err, "querying group norm boundaries")
}

func boil(n norm.Norm) normRow {
	return normRow{
		ID:          n.ID,
		StudentID:   n.StudentID,
		TemplateID:  n.TemplateID,
		GroupNormID: null.NewString(n.GroupNormID, n.GroupNormID != ""),
		TrainerID:   n.TrainerID,
		Value:       n.Value,
		Date:        n.Date.UTC(),
		Grade:       null.NewInt(int(n.Grade), n.Grade.IsValid()),
		Status:      string(n.Status),
		Outcome:     string(n.Outcome),
		CreatedAt:   n.CreatedAt.UTC(),
		UpdatedAt:   n.UpdatedAt.UTC(),
	}
}

func unboil(r normRow) norm.Norm {
	return norm.Norm{
		ID:          r.ID,
		StudentID:   r.StudentID,
		TemplateID:  r.TemplateID,
		GroupNormID: r.GroupNormID.String,
		TrainerID:   r.TrainerID,
		Value:       r.Value,
		Date:        r.Date.UTC(),
		Grade:       grading.Grade(r.Grade.Int),
		Status:      norm.Status(r.Status),
		Outcome:     grading.Outcome(r.Outcome),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (repo normRepository) CreateNorm(ctx context.Context, n norm.Norm, exec ...core.DBExecutor) (norm.Norm, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), insertNormQuery, boil(n)); err != nil {
		return norm.Norm{}, errors.Wrap(err, "inserting norm")
	}
	return n, nil
}

func (repo normRepository) GetNorm(ctx context.Context, id string, exec ...core.DBExecutor) (norm.Norm, error) {
	if !isUUID(id) {
		return norm.Norm{}, norm.ErrNotFound
	}
	var row normRow
	q := `SELECT ` + normColumns + ` FROM norm n WHERE n.id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return norm.Norm{}, trapNoRowsErr(err, "finding norm")
	}
	return unboil(row), nil
}

func (repo normRepository) QueryNorms(ctx context.Context, filter *norm.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]norm.Norm, error) {
	exe := repo.getExec(exec)
	where := make([]string, 0)
	args := make([]interface{}, 0)

	if filter != nil {
		for _, f := range []struct{ col, val string }{
			{"n.student_id", filter.StudentID},
			{"n.template_id", filter.TemplateID},
			{"n.group_norm_id", filter.GroupNormID},
		} {
			if f.val == "" {
				continue
			}
			if !isUUID(f.val) {
				return []norm.Norm{}, nil
			}
			where = append(where, f.col+" = ?")
			args = append(args, f.val)
		}
		if filter.Status != "" {
			where = append(where, "n.status = ?")
			args = append(args, string(filter.Status))
		}
		if filter.TrainerID != "" {
			where = append(where, "n.trainer_id = ?")
			args = append(args, filter.TrainerID)
		}
		if filter.Period != "" {
			where = append(where, "n.group_norm_id IN (SELECT id FROM group_norm WHERE period = ?)")
			args = append(args, string(filter.Period))
		}
	}

	q := `SELECT ` + normColumns + ` FROM norm n`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := normOrderColumns[ord.Field]; ok {
			orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	orderList = append(orderList, "n.id ASC")
	q += " ORDER BY " + strings.Join(orderList, ", ")

	var rows []normRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying norms")
	}
	norms := make([]norm.Norm, 0, len(rows))
	for _, r := range rows {
		norms = append(norms, unboil(r))
	}
	return norms, nil
}

func (repo normRepository) UpdateNorm(ctx context.Context, n norm.Norm, exec ...core.DBExecutor) (norm.Norm, error) {
	if !isUUID(n.ID) {
		return norm.Norm{}, norm.ErrNotFound
	}
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), updateNormQuery, boil(n))
	if err != nil {
		return norm.Norm{}, errors.Wrap(err, "updating norm")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return norm.Norm{}, norm.ErrNotFound
	}
	return n, nil
}
