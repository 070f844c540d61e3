package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"io"
	"net/http"

	echoapi "github.com/normbook/normbook/apps/api/echo"
	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/norm"
)

func main() {
	manual := flag.Bool("manual", false, "wire dependencies by hand instead of with dig")
	flag.Parse()

	if *manual {
		startManual()
		return
	}
	startWithDig()
}

// run serves the API until a shutdown signal or a server error.
func run(conf *core.Config, logger core.Logger, server *echoapi.Server, publisher norm.EventPublisher) {
	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	if closer, ok := publisher.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("closing event publisher", err)
			}
		}()
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
