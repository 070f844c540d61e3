package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/grading"
	"github.com/normbook/normbook/core/norm"
	"github.com/normbook/normbook/storage/database/inmem"
)

const (
	JWTSecret = "test-secret"

	RunTemplateID     = "tmpl-run"
	JumpTemplateID    = "tmpl-jump"
	PullUpsTemplateID = "tmpl-pullups"

	GroupNormID       = "gn-run"
	CustomGroupNormID = "gn-run-custom"

	BoyID     = "st-boy"
	GirlID    = "st-girl"
	UnknownID = "st-unknown"
	Girl7ID   = "st-girl7"
)

var (
	Admin        = norm.Actor{ID: "admin-1", Role: norm.RoleAdmin}
	Trainer      = norm.Actor{ID: "trainer-1", Role: norm.RoleTrainer}
	OtherTrainer = norm.Actor{ID: "trainer-2", Role: norm.RoleTrainer}

	GroupNormDate = time.Date(2026, time.September, 15, 0, 0, 0, 0, time.UTC)
)

// Config returns the configuration services are built with in tests.
func Config() *core.Config {
	return &core.Config{
		AppName:  "Normbook",
		Env:      "TEST",
		TestMode: true,
		Server:   core.ServerConfig{JWTSecret: JWTSecret, JWTIssuer: "normbook-test"},
		Grading:  core.GradingConfig{GapPolicy: "floor", GapTolerance: grading.DefaultGapTolerance},
	}
}

// RunBoundaries is a 60m run table (seconds, lower is better) for class 4.
func RunBoundaries() []grading.Boundary {
	return []grading.Boundary{
		{Grade: 5, Gender: grading.GenderMale, Class: 4, From: grading.Bound(0), To: grading.Bound(10)},
		{Grade: 4, Gender: grading.GenderMale, Class: 4, From: grading.Bound(10.01), To: grading.Bound(12)},
		{Grade: 3, Gender: grading.GenderMale, Class: 4, From: grading.Bound(12.01), To: grading.Bound(14)},
		{Grade: 2, Gender: grading.GenderMale, Class: 4, From: grading.Bound(14.01), To: grading.Bound(20)},
		{Grade: 5, Gender: grading.GenderFemale, Class: 4, From: grading.Bound(0), To: grading.Bound(11)},
		{Grade: 4, Gender: grading.GenderFemale, Class: 4, From: grading.Bound(11.01), To: grading.Bound(13)},
		{Grade: 3, Gender: grading.GenderFemale, Class: 4, From: grading.Bound(13.01), To: grading.Bound(15)},
		{Grade: 2, Gender: grading.GenderFemale, Class: 4, From: grading.Bound(15.01), To: grading.Bound(22)},
	}
}

// CustomRunBoundaries is a more lenient boys-only table a trainer set on CustomGroupNormID.
func CustomRunBoundaries() []grading.Boundary {
	return []grading.Boundary{
		{Grade: 5, Gender: grading.GenderMale, Class: 4, From: grading.Bound(0), To: grading.Bound(11)},
		{Grade: 4, Gender: grading.GenderMale, Class: 4, From: grading.Bound(11.01), To: grading.Bound(13)},
		{Grade: 3, Gender: grading.GenderMale, Class: 4, From: grading.Bound(13.01), To: grading.Bound(15)},
		{Grade: 2, Gender: grading.GenderMale, Class: 4, From: grading.Bound(15.01), To: grading.Bound(25)},
	}
}

// JumpBoundaries is a long jump table (cm, higher is better) for class 7 girls.
func JumpBoundaries() []grading.Boundary {
	return []grading.Boundary{
		{Grade: 5, Gender: grading.GenderFemale, Class: 7, From: grading.Bound(180), To: nil},
		{Grade: 4, Gender: grading.GenderFemale, Class: 7, From: grading.Bound(160), To: grading.Bound(179.99)},
		{Grade: 3, Gender: grading.GenderFemale, Class: 7, From: grading.Bound(140), To: grading.Bound(159.99)},
		{Grade: 2, Gender: grading.GenderFemale, Class: 7, From: grading.Bound(100), To: grading.Bound(139.99)},
	}
}

// PullUpsBoundaries is a boys-only table for class 4.
func PullUpsBoundaries() []grading.Boundary {
	return []grading.Boundary{
		{Grade: 5, Gender: grading.GenderMale, Class: 4, From: grading.Bound(8), To: nil},
		{Grade: 4, Gender: grading.GenderMale, Class: 4, From: grading.Bound(6), To: grading.Bound(7.99)},
		{Grade: 3, Gender: grading.GenderMale, Class: 4, From: grading.Bound(4), To: grading.Bound(5.99)},
		{Grade: 2, Gender: grading.GenderMale, Class: 4, From: nil, To: grading.Bound(3.99)},
	}
}

// Seed fills db with the reference data the tests grade against.
func Seed(db *inmemdb.DB) {
	now := time.Now().UTC()

	db.PutTemplate(norm.Template{
		ID: RunTemplateID, Name: "60m run", Unit: "s", Direction: grading.LowerIsBetter,
		ClassFrom: 1, ClassTo: 11, ApplicableGender: grading.ApplicableAll, IsPublic: true, CreatedAt: now,
	}, RunBoundaries()...)
	db.PutTemplate(norm.Template{
		ID: JumpTemplateID, Name: "Long jump", Unit: "cm", Direction: grading.HigherIsBetter,
		ClassFrom: 5, ClassTo: 11, ApplicableGender: grading.ApplicableAll, OwnerID: Trainer.ID, CreatedAt: now,
	}, JumpBoundaries()...)
	db.PutTemplate(norm.Template{
		ID: PullUpsTemplateID, Name: "Pull-ups", Unit: "reps", Direction: grading.HigherIsBetter,
		ClassFrom: 1, ClassTo: 11, ApplicableGender: grading.ApplicableMale, IsPublic: true, CreatedAt: now,
	}, PullUpsBoundaries()...)

	db.PutGroupNorm(norm.GroupNorm{
		ID: GroupNormID, TemplateID: RunTemplateID, GroupID: "group-4a", TrainerID: Trainer.ID,
		Date: GroupNormDate, Period: norm.PeriodRegular, CreatedAt: now,
	})
	db.PutGroupNorm(norm.GroupNorm{
		ID: CustomGroupNormID, TemplateID: RunTemplateID, GroupID: "group-4a", TrainerID: Trainer.ID,
		Date: GroupNormDate, Period: norm.PeriodEndOfYear, UseCustomBoundaries: true, CreatedAt: now,
	}, CustomRunBoundaries()...)

	db.PutStudent(norm.Student{ID: BoyID, Name: "Ivan", GenderCode: "М", GroupID: "group-4a", Class: 4})
	db.PutStudent(norm.Student{ID: GirlID, Name: "Anna", GenderCode: "f", GroupID: "group-4a", Class: 4})
	db.PutStudent(norm.Student{ID: UnknownID, Name: "Sam", GenderCode: "", GroupID: "group-4a", Class: 4})
	db.PutStudent(norm.Student{ID: Girl7ID, Name: "Olga", GenderCode: "Ж", GroupID: "group-7b", Class: 7})
}

// NewSeededRepository returns an in-memory repository loaded with Seed.
func NewSeededRepository() (*inmemdb.DB, norm.Repository) {
	db := inmemdb.Open()
	Seed(db)
	return db, inmemdb.NewNormRepository(db)
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// LoggerMock records log calls; Fatal does not exit.
type LoggerMock struct {
	mu      sync.Mutex
	Entries []LogEntry
}

var _ core.Logger = (*LoggerMock)(nil)

func (l *LoggerMock) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *LoggerMock) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *LoggerMock) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *LoggerMock) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *LoggerMock) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *LoggerMock) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Levels returns the level of every recorded entry.
func (l *LoggerMock) Levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	levels := make([]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		levels = append(levels, e.Level)
	}
	return levels
}

// PublisherMock records published events and fails with Err when set.
type PublisherMock struct {
	mu     sync.Mutex
	Err    error
	Events []norm.GradedEvent
}

var _ norm.EventPublisher = (*PublisherMock)(nil)

func (p *PublisherMock) PublishGraded(_ context.Context, events ...norm.GradedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, events...)
	return nil
}

type ObserverMock struct {
	mu      sync.Mutex
	Results []grading.Result
}

var _ norm.GradingObserver = (*ObserverMock)(nil)

func (o *ObserverMock) ObserveGrading(_ grading.Direction, res grading.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Results = append(o.Results, res)
}
