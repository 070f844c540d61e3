package norm

import (
	"strings"
	"time"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/grading"
)

// Roles carried by the access token.
const (
	RoleAdmin   = "ADMIN"
	RoleTrainer = "TRAINER"
)

// SystemActor is used by the admin CLI.
var SystemActor = Actor{ID: "system", Role: RoleAdmin}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type Period string

const (
	PeriodRegular     Period = "REGULAR"
	PeriodStartOfYear Period = "START_OF_YEAR"
	PeriodEndOfYear   Period = "END_OF_YEAR"
)

func (p Period) IsValid() bool {
	switch p {
	case PeriodRegular, PeriodStartOfYear, PeriodEndOfYear:
		return true
	}
	return false
}

type Status string

const (
	StatusGraded      Status = "GRADED"
	StatusNoData      Status = "NO_DATA"
	StatusNeedsReview Status = "NEEDS_REVIEW"
)

// StatusOf maps a resolver outcome to the stored status.
func StatusOf(res grading.Result) Status {
	switch {
	case res.NeedsReview():
		return StatusNeedsReview
	case res.HasGrade():
		return StatusGraded
	default:
		return StatusNoData
	}
}

// BoundarySource names the table a grade was resolved against.
type BoundarySource string

const (
	SourceTemplate  BoundarySource = "TEMPLATE"
	SourceGroupNorm BoundarySource = "GROUP_NORM"
)

// ParseGender normalizes the gender codes found in student records:
// MALE/FEMALE, M/F and the cyrillic М/Ж, case-insensitive.
func ParseGender(code string) grading.Gender {
	switch strings.ToUpper(core.CleanString(code)) {
	case "MALE", "M", "М":
		return grading.GenderMale
	case "FEMALE", "F", "Ж":
		return grading.GenderFemale
	}
	return grading.GenderUnknown
}

type Template struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	Unit             string                   `json:"unit"`
	Direction        grading.Direction        `json:"direction"`
	ClassFrom        int                      `json:"class_from"`
	ClassTo          int                      `json:"class_to"`
	ApplicableGender grading.ApplicableGender `json:"applicable_gender"`
	IsPublic         bool                     `json:"is_public"`
	OwnerID          string                   `json:"owner_id,omitempty"`
	CreatedAt        time.Time                `json:"created_at"` // UTC
}

// AccessibleBy reports whether a can grade against the template.
func (t Template) AccessibleBy(a Actor) bool {
	return t.IsPublic || a.IsAdmin() || (a.ID != "" && t.OwnerID == a.ID)
}

// GroupNorm is a template instantiated for a group on a date.
type GroupNorm struct {
	ID                  string    `json:"id"`
	TemplateID          string    `json:"template_id"`
	GroupID             string    `json:"group_id"`
	TrainerID           string    `json:"trainer_id"`
	Date                time.Time `json:"date"`
	Period              Period    `json:"period"`
	UseCustomBoundaries bool      `json:"use_custom_boundaries"`
	CreatedAt           time.Time `json:"created_at"` // UTC
}

func (gn GroupNorm) AccessibleBy(a Actor) bool {
	return a.IsAdmin() || (a.ID != "" && gn.TrainerID == a.ID)
}

type Student struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GenderCode string `json:"gender_code"`
	GroupID    string `json:"group_id"`
	Class      int    `json:"class"` // taken from the group
}

func (s Student) Gender() grading.Gender { return ParseGender(s.GenderCode) }

// Norm is one recorded result for one student.
type Norm struct {
	ID          string          `json:"id"`
	StudentID   string          `json:"student_id"`
	TemplateID  string          `json:"template_id"`
	GroupNormID string          `json:"group_norm_id,omitempty"`
	TrainerID   string          `json:"trainer_id"`
	Value       float64         `json:"value"`
	Date        time.Time       `json:"date"`
	Grade       grading.Grade   `json:"grade"` // null when there is none
	Status      Status          `json:"status"`
	Outcome     grading.Outcome `json:"outcome"`
	CreatedAt   time.Time       `json:"created_at"` // UTC
	UpdatedAt   time.Time       `json:"updated_at"` // UTC
}

func (n Norm) GradeDisplay() string { return n.Grade.String() }

// Evaluation is a resolved grade with the context it was resolved in.
type Evaluation struct {
	grading.Result
	Status  Status         `json:"status"`
	Display string         `json:"display"`
	Source  BoundarySource `json:"source"`
}

// GradeRequest asks for a grade without recording it.
// Either StudentID or the (Gender, Class) profile identifies who is graded.
type GradeRequest struct {
	StudentID   string   `json:"student_id"`
	Gender      string   `json:"gender" validate:"omitempty,gender"`
	Class       int      `json:"class" validate:"omitempty,min=1,max=12"`
	TemplateID  string   `json:"template_id" validate:"required_without=GroupNormID"`
	GroupNormID string   `json:"group_norm_id" validate:"required_without=TemplateID"`
	Value       *float64 `json:"value" validate:"required,finite"`
}

func (gr *GradeRequest) Validate() error {
	gr.StudentID = core.CleanString(gr.StudentID)
	gr.Gender = core.CleanString(gr.Gender)
	gr.TemplateID = core.CleanString(gr.TemplateID)
	gr.GroupNormID = core.CleanString(gr.GroupNormID)
	return core.Validate.Struct(gr)
}

// NewNorm contains information needed to record a result.
type NewNorm struct {
	StudentID   string     `json:"student_id" validate:"required"`
	TemplateID  string     `json:"template_id" validate:"required_without=GroupNormID"`
	GroupNormID string     `json:"group_norm_id" validate:"required_without=TemplateID"`
	Value       *float64   `json:"value" validate:"required,finite"`
	Date        *time.Time `json:"date"` // defaults to today
}

func (nn *NewNorm) Validate() error {
	nn.StudentID = core.CleanString(nn.StudentID)
	nn.TemplateID = core.CleanString(nn.TemplateID)
	nn.GroupNormID = core.CleanString(nn.GroupNormID)
	return core.Validate.Struct(nn)
}

// UpdateNorm defines what may be changed on a recorded result.
type UpdateNorm struct {
	Value *float64   `json:"value" validate:"omitempty,finite"`
	Date  *time.Time `json:"date"`
}

func (un *UpdateNorm) Validate() error { return core.Validate.Struct(un) }

type QueryFilter struct {
	StudentID   string `query:"student_id"`
	TemplateID  string `query:"template_id"`
	GroupNormID string `query:"group_norm_id"`
	Status      Status `query:"status" json:"status" validate:"omitempty,oneof=GRADED NO_DATA NEEDS_REVIEW"`
	Period      Period `query:"period" json:"period" validate:"omitempty,period"`
	TrainerID   string `query:"-"` // set from the actor, never from the request
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.TemplateID = core.CleanString(qf.TemplateID)
	qf.GroupNormID = core.CleanString(qf.GroupNormID)
	qf.Status = Status(strings.ToUpper(core.CleanString(string(qf.Status))))
	qf.Period = Period(strings.ToUpper(core.CleanString(string(qf.Period))))
}

func (qf *QueryFilter) Validate() error {
	qf.Clean()
	return core.Validate.Struct(qf)
}

// AuditReport is the data of the boundary audit email.
type AuditReport struct {
	Subject string
	Issues  []grading.Issue
}

// GradedEvent is published whenever a norm is graded or regraded.
type GradedEvent struct {
	NormID      string          `json:"norm_id"`
	StudentID   string          `json:"student_id"`
	TemplateID  string          `json:"template_id"`
	GroupNormID string          `json:"group_norm_id,omitempty"`
	Value       float64         `json:"value"`
	Grade       grading.Grade   `json:"grade"`
	Status      Status          `json:"status"`
	Outcome     grading.Outcome `json:"outcome"`
	Regraded    bool            `json:"regraded"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func newGradedEvent(n Norm, regraded bool) GradedEvent {
	return GradedEvent{
		NormID:      n.ID,
		StudentID:   n.StudentID,
		TemplateID:  n.TemplateID,
		GroupNormID: n.GroupNormID,
		Value:       n.Value,
		Grade:       n.Grade,
		Status:      n.Status,
		Outcome:     n.Outcome,
		Regraded:    regraded,
		OccurredAt:  n.UpdatedAt,
	}
}
