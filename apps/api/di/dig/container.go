package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/normbook/normbook/apps/api/echo"
	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/norm"
	emailsvc "github.com/normbook/normbook/services/email"
	eventsvc "github.com/normbook/normbook/services/events"
	logsvc "github.com/normbook/normbook/services/logger"
	metricsvc "github.com/normbook/normbook/services/metrics"
	"github.com/normbook/normbook/storage/database"
	sqlxrepos "github.com/normbook/normbook/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

// SetUpDB creates the database if needed, connects and migrates it.
func SetUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(ctx, db); err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	db, err := SetUpDB(context.Background(), conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newNormRepository(db core.DB) norm.Repository {
	return sqlxrepos.NewNormRepository(db)
}

func newObserver() norm.GradingObserver {
	return metricsvc.PrometheusObserver{}
}

func newServer(conf *core.Config, logger core.Logger, svc norm.Service) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{Conf: conf, Logger: logger, NormSvc: svc})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(NewEmailService))
	must(c.Provide(newNormRepository))
	must(c.Provide(eventsvc.NewPublisher))
	must(c.Provide(newObserver))
	must(c.Provide(norm.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
