package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/oaiiae/contactbook/cli/api"
	"github.com/oaiiae/contactbook/cli/logger"
	"github.com/oaiiae/contactbook/datastores"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	title    = "contactbook"
	version  = "dev"
	revision = ""
	created  = ""
)

// Options for the CLI. Pass `--port` or set the `SERVICE_PORT` env var.
type Options struct {
	api.ServerOptions
	api.RouterOptions
	logger.Options

	Store string `doc:"contacts store: memory, sqlite:<path> or postgres://..." default:"memory"`
	Seed  bool   `doc:"insert a sample contact into an empty store"`
}

func seed(enabled bool) []*datastores.Contact {
	if !enabled {
		return nil
	}
	return []*datastores.Contact{{
		Name:     "john",
		Lastname: "smith",
		Email:    "john.smith@example.com",
		Phone:    "+1 555 0100",
		Address:  "1 Main St",
	}}
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, options *Options) {
		logger := logger.New(&options.Options)

		store, err := datastores.Open(context.Background(), options.Store, seed(options.Seed)...)
		if err != nil {
			logger.Error("failed to open store", "err", err)
			os.Exit(1)
		}

		handler, err := api.NewRouter(&options.RouterOptions, title, version, revision, created, store, logger)
		if err != nil {
			logger.Error("failed to build router", "err", err)
			os.Exit(1)
		}
		srv := api.NewServer(&options.ServerOptions, handler, logger)

		hooks.OnStart(func() {
			logger.Info("listening", "addr", srv.Addr, "store", options.Store)
			err := srv.ListenAndServe()
			if err != http.ErrServerClosed {
				logger.Error("failed to listen and serve", "err", err)
			} else {
				logger.Info("server closed")
			}
			if err := store.Close(); err != nil {
				logger.Warn("could not close the store", "err", err)
			}
		})
		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			err := srv.Shutdown(ctx)
			if err != nil {
				logger.Warn("could not shutdown the server", "err", err)
			}
		})
	})
	cli.Root().Version = version
	cli.Run()
}
