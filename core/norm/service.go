package norm

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/grading"
)

var (
	// errors
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("you do not have permission to perform this action")
)

const auditEmailTemplate = "boundary_audit"

type (
	// Repository gives read access to templates, group norms, students and boundary rows,
	// and read/write access to recorded norms.
	Repository interface {
		GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (Template, error)
		GetGroupNorm(ctx context.Context, id string, exec ...core.DBExecutor) (GroupNorm, error)
		GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		QueryTemplateBoundaries(ctx context.Context, templateID string, exec ...core.DBExecutor) ([]grading.Boundary, error)
		QueryGroupNormBoundaries(ctx context.Context, groupNormID string, exec ...core.DBExecutor) ([]grading.Boundary, error)

		CreateNorm(ctx context.Context, n Norm, exec ...core.DBExecutor) (Norm, error)
		GetNorm(ctx context.Context, id string, exec ...core.DBExecutor) (Norm, error)
		// QueryNorms applies AND operation on available QueryFilter fields.
		QueryNorms(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Norm, error)
		UpdateNorm(ctx context.Context, n Norm, exec ...core.DBExecutor) (Norm, error)
	}

	EventPublisher interface {
		PublishGraded(ctx context.Context, events ...GradedEvent) error
	}

	GradingObserver interface {
		ObserveGrading(direction grading.Direction, res grading.Result)
	}

	Service interface {
		Preview(ctx context.Context, gr GradeRequest, actor Actor) (Evaluation, error)
		Record(ctx context.Context, nn NewNorm, actor Actor) (Norm, error)
		Update(ctx context.Context, id string, un UpdateNorm, actor Actor) (Norm, error)
		Get(ctx context.Context, id string, actor Actor) (Norm, error)
		// Query lists the norms visible to actor, newest first unless ordering is given.
		Query(ctx context.Context, filter QueryFilter, actor Actor, ordering ...core.DBOrdering) ([]Norm, error)
		// Regrade re-resolves every norm of a group norm and returns how many changed.
		Regrade(ctx context.Context, groupNormID string) (int, error)
		AuditTemplate(ctx context.Context, templateID string, actor Actor) ([]grading.Issue, error)
		AuditGroupNorm(ctx context.Context, groupNormID string, actor Actor) ([]grading.Issue, error)
		SendAuditReport(subject string, issues []grading.Issue, to ...mail.Address)
	}

	service struct {
		db        core.DB // nil for non-SQL repositories
		repo      Repository
		resolver  grading.Resolver
		tolerance float64
		logger    core.Logger
		mailSvc   core.EmailService
		publisher EventPublisher
		observer  GradingObserver
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	conf *core.Config,
	logger core.Logger,
	mailSvc core.EmailService,
	publisher EventPublisher,
	observer GradingObserver,
) Service {
	svc := &service{
		db:        db,
		repo:      repo,
		tolerance: conf.Grading.GapTolerance,
		logger:    logger,
		mailSvc:   mailSvc,
		publisher: publisher,
		observer:  observer,
	}
	policy, err := grading.ParseGapPolicy(conf.Grading.GapPolicy)
	if err != nil {
		logger.Warn("falling back to the floor gap policy", err)
	}
	svc.resolver = grading.Resolver{GapPolicy: policy}
	if svc.publisher == nil {
		svc.publisher = nopPublisher{}
	}
	if svc.observer == nil {
		svc.observer = nopObserver{}
	}
	return svc
}

type nopPublisher struct{}

func (nopPublisher) PublishGraded(context.Context, ...GradedEvent) error { return nil }

type nopObserver struct{}

func (nopObserver) ObserveGrading(grading.Direction, grading.Result) {}

// gradee is whoever is being graded: a stored student or an ad-hoc profile.
type gradee struct {
	studentID string
	groupID   string
	gender    grading.Gender
	class     int
}

func (svc *service) Preview(ctx context.Context, gr GradeRequest, actor Actor) (Evaluation, error) {
	if err := gr.Validate(); err != nil {
		return Evaluation{}, err
	}

	tmpl, gn, err := svc.loadSource(ctx, gr.TemplateID, gr.GroupNormID, actor)
	if err != nil {
		return Evaluation{}, err
	}

	who := gradee{gender: ParseGender(gr.Gender), class: gr.Class}
	if gr.StudentID != "" {
		if who, err = svc.loadGradee(ctx, gr.StudentID); err != nil {
			return Evaluation{}, err
		}
		if err = checkMembership(who, gn); err != nil {
			return Evaluation{}, err
		}
	}

	bounds, source, err := svc.boundariesFor(ctx, tmpl, gn)
	if err != nil {
		return Evaluation{}, err
	}
	return svc.resolve(tmpl, who, *gr.Value, bounds, source)
}

func (svc *service) Record(ctx context.Context, nn NewNorm, actor Actor) (Norm, error) {
	if err := nn.Validate(); err != nil {
		return Norm{}, err
	}

	tmpl, gn, err := svc.loadSource(ctx, nn.TemplateID, nn.GroupNormID, actor)
	if err != nil {
		return Norm{}, err
	}
	who, err := svc.loadGradee(ctx, nn.StudentID)
	if err != nil {
		return Norm{}, err
	}
	if err = checkMembership(who, gn); err != nil {
		return Norm{}, err
	}
	bounds, source, err := svc.boundariesFor(ctx, tmpl, gn)
	if err != nil {
		return Norm{}, err
	}
	ev, err := svc.resolve(tmpl, who, *nn.Value, bounds, source)
	if err != nil {
		return Norm{}, err
	}

	now := time.Now().UTC()
	n := Norm{
		ID:         uuid.New().String(),
		StudentID:  who.studentID,
		TemplateID: tmpl.ID,
		TrainerID:  actor.ID,
		Value:      *nn.Value,
		Date:       today(now),
		Grade:      ev.Grade,
		Status:     ev.Status,
		Outcome:    ev.Outcome,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if gn != nil {
		n.GroupNormID = gn.ID
		n.Date = gn.Date
	}
	if nn.Date != nil {
		n.Date = nn.Date.UTC()
	}

	if n, err = svc.repo.CreateNorm(ctx, n); err != nil {
		return Norm{}, errors.Wrap(err, "creating norm")
	}
	svc.publish(ctx, newGradedEvent(n, false))
	return n, nil
}

func (svc *service) Update(ctx context.Context, id string, un UpdateNorm, actor Actor) (Norm, error) {
	if err := un.Validate(); err != nil {
		return Norm{}, err
	}

	n, err := svc.Get(ctx, id, actor)
	if err != nil {
		return Norm{}, err
	}
	if un.Value != nil {
		n.Value = *un.Value
	}
	if un.Date != nil {
		n.Date = un.Date.UTC()
	}

	tmpl, err := svc.repo.GetTemplate(ctx, n.TemplateID)
	if err != nil {
		return Norm{}, errors.Wrap(err, "getting template")
	}
	var gn *GroupNorm
	if n.GroupNormID != "" {
		g, err := svc.repo.GetGroupNorm(ctx, n.GroupNormID)
		if err != nil {
			return Norm{}, errors.Wrap(err, "getting group norm")
		}
		gn = &g
	}
	who, err := svc.loadGradee(ctx, n.StudentID)
	if err != nil {
		return Norm{}, err
	}
	bounds, source, err := svc.boundariesFor(ctx, tmpl, gn)
	if err != nil {
		return Norm{}, err
	}
	ev, err := svc.resolve(tmpl, who, n.Value, bounds, source)
	if err != nil {
		return Norm{}, err
	}

	n.Grade, n.Status, n.Outcome = ev.Grade, ev.Status, ev.Outcome
	n.UpdatedAt = time.Now().UTC()
	if n, err = svc.repo.UpdateNorm(ctx, n); err != nil {
		return Norm{}, errors.Wrap(err, "updating norm")
	}
	svc.publish(ctx, newGradedEvent(n, true))
	return n, nil
}

func (svc *service) Get(ctx context.Context, id string, actor Actor) (Norm, error) {
	n, err := svc.repo.GetNorm(ctx, core.CleanString(id))
	if err != nil {
		return Norm{}, err
	}
	if !actor.IsAdmin() && n.TrainerID != actor.ID {
		return Norm{}, ErrForbidden
	}
	return n, nil
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, actor Actor, ordering ...core.DBOrdering) ([]Norm, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	filter.TrainerID = ""
	if !actor.IsAdmin() {
		filter.TrainerID = actor.ID
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "date"}, {Field: "created_at"}}
	}
	return svc.repo.QueryNorms(ctx, &filter, ordering)
}

func (svc *service) Regrade(ctx context.Context, groupNormID string) (int, error) {
	gn, err := svc.repo.GetGroupNorm(ctx, core.CleanString(groupNormID))
	if err != nil {
		return 0, err
	}
	tmpl, err := svc.repo.GetTemplate(ctx, gn.TemplateID)
	if err != nil {
		return 0, errors.Wrap(err, "getting template")
	}
	// one table for the whole run
	bounds, source, err := svc.boundariesFor(ctx, tmpl, &gn)
	if err != nil {
		return 0, err
	}
	norms, err := svc.repo.QueryNorms(ctx, &QueryFilter{GroupNormID: gn.ID}, nil)
	if err != nil {
		return 0, errors.Wrap(err, "querying norms")
	}

	gradees := make(map[string]gradee)
	changed := make([]Norm, 0)
	for _, n := range norms {
		who, ok := gradees[n.StudentID]
		if !ok {
			if who, err = svc.loadGradee(ctx, n.StudentID); err != nil {
				return 0, err
			}
			gradees[n.StudentID] = who
		}
		ev, err := svc.resolve(tmpl, who, n.Value, bounds, source)
		if err != nil {
			return 0, err
		}
		if ev.Grade == n.Grade && ev.Status == n.Status && ev.Outcome == n.Outcome {
			continue
		}
		n.Grade, n.Status, n.Outcome = ev.Grade, ev.Status, ev.Outcome
		changed = append(changed, n)
	}
	if len(changed) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	events := make([]GradedEvent, 0, len(changed))
	err = svc.inTx(ctx, func(exec []core.DBExecutor) error {
		for i := range changed {
			changed[i].UpdatedAt = now
			n, err := svc.repo.UpdateNorm(ctx, changed[i], exec...)
			if err != nil {
				return errors.Wrapf(err, "updating norm %s", changed[i].ID)
			}
			events = append(events, newGradedEvent(n, true))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	svc.logger.Info("group norm regraded", map[string]interface{}{"group_norm_id": gn.ID, "changed": len(changed)})
	svc.publish(ctx, events...)
	return len(changed), nil
}

func (svc *service) AuditTemplate(ctx context.Context, templateID string, actor Actor) ([]grading.Issue, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, core.CleanString(templateID))
	if err != nil {
		return nil, err
	}
	if !tmpl.AccessibleBy(actor) {
		return nil, ErrForbidden
	}
	bounds, _, err := svc.boundariesFor(ctx, tmpl, nil)
	if err != nil {
		return nil, err
	}
	return svc.audit(bounds, tmpl.Direction), nil
}

func (svc *service) AuditGroupNorm(ctx context.Context, groupNormID string, actor Actor) ([]grading.Issue, error) {
	gn, err := svc.repo.GetGroupNorm(ctx, core.CleanString(groupNormID))
	if err != nil {
		return nil, err
	}
	if !gn.AccessibleBy(actor) {
		return nil, ErrForbidden
	}
	tmpl, err := svc.repo.GetTemplate(ctx, gn.TemplateID)
	if err != nil {
		return nil, errors.Wrap(err, "getting template")
	}
	bounds, _, err := svc.boundariesFor(ctx, tmpl, &gn)
	if err != nil {
		return nil, err
	}
	return svc.audit(bounds, tmpl.Direction), nil
}

func (svc *service) SendAuditReport(subject string, issues []grading.Issue, to ...mail.Address) {
	if len(to) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Boundary audit: " + subject,
		TemplateName: auditEmailTemplate,
		TemplateData: AuditReport{Subject: subject, Issues: issues},
	})
}

func (svc *service) audit(bounds []grading.Boundary, direction grading.Direction) []grading.Issue {
	tolerance := svc.tolerance
	if tolerance <= 0 {
		tolerance = grading.DefaultGapTolerance
	}
	issues := grading.Audit(bounds, direction, tolerance)
	if issues == nil {
		issues = make([]grading.Issue, 0)
	}
	return issues
}

// loadSource fetches the template to grade against and, when groupNormID is set, the group norm.
func (svc *service) loadSource(ctx context.Context, templateID, groupNormID string, actor Actor) (Template, *GroupNorm, error) {
	var gn *GroupNorm
	if groupNormID != "" {
		g, err := svc.repo.GetGroupNorm(ctx, groupNormID)
		if err != nil {
			return Template{}, nil, fieldNotFound(err, "group_norm_id", "group norm not found")
		}
		if !g.AccessibleBy(actor) {
			return Template{}, nil, ErrForbidden
		}
		if templateID != "" && templateID != g.TemplateID {
			return Template{}, nil, core.NewValidationError(nil, core.FieldError{
				Field: "template_id",
				Error: "template does not match the group norm",
			})
		}
		templateID = g.TemplateID
		gn = &g
	}

	tmpl, err := svc.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return Template{}, nil, fieldNotFound(err, "template_id", "template not found")
	}
	if gn == nil && !tmpl.AccessibleBy(actor) {
		return Template{}, nil, ErrForbidden
	}
	return tmpl, gn, nil
}

func (svc *service) loadGradee(ctx context.Context, studentID string) (gradee, error) {
	st, err := svc.repo.GetStudent(ctx, studentID)
	if err != nil {
		return gradee{}, fieldNotFound(err, "student_id", "student not found")
	}
	return gradee{studentID: st.ID, groupID: st.GroupID, gender: st.Gender(), class: st.Class}, nil
}

// checkMembership rejects grading a student against another group's norm;
// the class table is picked from the student's own group.
func checkMembership(who gradee, gn *GroupNorm) error {
	if gn == nil || who.groupID == gn.GroupID {
		return nil
	}
	return core.NewValidationError(nil, core.FieldError{
		Field: "student_id",
		Error: "student is not in the group of the group norm",
	})
}

// boundariesFor returns either the group norm's custom rows or the template's rows, never a mix.
func (svc *service) boundariesFor(ctx context.Context, tmpl Template, gn *GroupNorm) ([]grading.Boundary, BoundarySource, error) {
	if gn != nil && gn.UseCustomBoundaries {
		bounds, err := svc.repo.QueryGroupNormBoundaries(ctx, gn.ID)
		if err != nil {
			return nil, "", errors.Wrap(err, "querying group norm boundaries")
		}
		return bounds, SourceGroupNorm, nil
	}
	bounds, err := svc.repo.QueryTemplateBoundaries(ctx, tmpl.ID)
	if err != nil {
		return nil, "", errors.Wrap(err, "querying template boundaries")
	}
	return bounds, SourceTemplate, nil
}

func (svc *service) resolve(tmpl Template, who gradee, value float64, bounds []grading.Boundary, source BoundarySource) (Evaluation, error) {
	res, err := svc.resolver.Resolve(grading.Input{
		Value:            value,
		StudentGender:    who.gender,
		StudentClass:     who.class,
		Direction:        tmpl.Direction,
		ApplicableGender: tmpl.ApplicableGender,
		Boundaries:       bounds,
	})
	if err != nil {
		if err == grading.ErrInvalidValue {
			return Evaluation{}, core.NewValidationError(err, core.FieldError{Field: "value", Error: "value must be a finite number"})
		}
		return Evaluation{}, errors.Wrapf(err, "grading against template %s", tmpl.ID)
	}

	svc.observer.ObserveGrading(tmpl.Direction, res)
	if res.Outcome == grading.OutcomeGapFallback {
		svc.logger.Warn("value fell into a boundary gap", map[string]interface{}{
			"template_id": tmpl.ID,
			"student_id":  who.studentID,
			"gender":      res.Gender,
			"class":       who.class,
			"value":       value,
			"source":      source,
		})
	}
	return Evaluation{Result: res, Status: StatusOf(res), Display: res.Display(), Source: source}, nil
}

func (svc *service) publish(ctx context.Context, events ...GradedEvent) {
	if err := svc.publisher.PublishGraded(ctx, events...); err != nil {
		svc.logger.Error("publishing graded events", errors.Wrap(err, "publishing graded events"))
	}
}

// inTx runs fn in a transaction when the service is backed by a SQL database.
func (svc *service) inTx(ctx context.Context, fn func(exec []core.DBExecutor) error) error {
	if svc.db == nil {
		return fn(nil)
	}
	tx, err := svc.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn([]core.DBExecutor{tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func fieldNotFound(err error, field, msg string) error {
	if errors.Cause(err) == ErrNotFound {
		return core.NewValidationError(err, core.FieldError{Field: field, Error: msg})
	}
	return err
}

func today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
