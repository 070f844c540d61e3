package main

import (
	"log"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/normbook/normbook/apps/api/di/dig"
	echoapi "github.com/normbook/normbook/apps/api/echo"
	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/norm"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		publisher norm.EventPublisher,
		server *echoapi.Server,
	) {
		defer func() {
			if err := db.Close(); err != nil {
				dbLoggerParam.Logger.Error("Failed to close", err)
			}
		}()

		run(conf, apiLogger, server, publisher)
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
