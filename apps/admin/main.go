package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/norm"
	emailsvc "github.com/normbook/normbook/services/email"
	eventsvc "github.com/normbook/normbook/services/events"
	logsvc "github.com/normbook/normbook/services/logger"
	metricsvc "github.com/normbook/normbook/services/metrics"
	"github.com/normbook/normbook/storage/database"
	sqlxrepos "github.com/normbook/normbook/storage/database/sqlx"
)

func main() {
	os.Exit(start())
}

func start() int {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Error("opening database", err)
		return 1
	}
	defer func() { _ = db.Close() }()
	if err = database.Ping(context.Background(), db); err != nil {
		logger.Error("pinging database", err)
		return 1
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	publisher := eventsvc.NewPublisher(conf)
	if closer, ok := publisher.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	// start CLI
	cli := commandLine{
		db:      db.DB,
		out:     os.Stdout,
		mailSvc: mailSvc,
		normSvc: norm.NewService(
			db,
			sqlxrepos.NewNormRepository(db),
			conf,
			logger,
			mailSvc,
			publisher,
			metricsvc.PrometheusObserver{},
		),
	}
	if err = cli.run(context.Background(), os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		return 1
	}
	return 0
}
