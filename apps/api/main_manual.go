package main

import (
	"context"
	"fmt"
	"log"
	"os"

	dig_container "github.com/normbook/normbook/apps/api/di/dig"
	echoapi "github.com/normbook/normbook/apps/api/echo"
	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/norm"
	eventsvc "github.com/normbook/normbook/services/events"
	logsvc "github.com/normbook/normbook/services/logger"
	metricsvc "github.com/normbook/normbook/services/metrics"
	sqlxrepos "github.com/normbook/normbook/storage/database/sqlx"
)

func startManual() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	dbLogger := logsvc.NewRollbarLogger(log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up DB
	db, err := dig_container.SetUpDB(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	mailSvc := dig_container.NewEmailService(conf, logger)
	publisher := eventsvc.NewPublisher(conf)
	normSvc := norm.NewService(
		db,
		sqlxrepos.NewNormRepository(db),
		conf,
		logger,
		mailSvc,
		publisher,
		metricsvc.PrometheusObserver{},
	)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{Conf: conf, Logger: logger, NormSvc: normSvc})
	run(conf, logger, server, publisher)
}
