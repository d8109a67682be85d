package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	"github.com/whisperwall/whisperwall/crypt"
	"github.com/whisperwall/whisperwall/events"
	"github.com/whisperwall/whisperwall/export"
	"github.com/whisperwall/whisperwall/identity"
	"github.com/whisperwall/whisperwall/moderation"
	"github.com/whisperwall/whisperwall/server"
	"github.com/whisperwall/whisperwall/store"
	"github.com/whisperwall/whisperwall/util/cliutil"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting process", "error", err)
		os.Exit(-1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:    "whisperd",
		Usage:   "anonymous-posting forum service",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "address and port to listen on for the HTTP API",
			Value:   ":8200",
			EnvVars: []string{"WHISPERD_BIND"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string (sqlite:// or postgres://)",
			Value:   "sqlite://data/whisperd/whisperwall.sqlite",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   40,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "encryption-key",
			Usage:   "32-byte key for content encryption at rest",
			EnvVars: []string{"ENCRYPTION_KEY"},
		},
		&cli.StringFlag{
			Name:    "encryption-iv",
			Usage:   "16-byte fixed IV for content encryption at rest",
			EnvVars: []string{"ENCRYPTION_IV"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "shared secret for the /admin surface; empty disables it",
			EnvVars: []string{"WHISPERD_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"WHISPERD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (json, text)",
			Value:   "json",
			EnvVars: []string{"WHISPERD_LOG_FORMAT", "LOG_FORMAT"},
		},
	}

	app.Action = runWhisperd

	return app.Run(args)
}

func runWhisperd(cctx *cli.Context) error {
	logger := cliutil.SetupSlog(cctx)

	// bad key material is a refuse-to-start condition, never a per-call error
	cipher, err := crypt.New(cctx.String("encryption-key"), cctx.String("encryption-iv"))
	if err != nil {
		return err
	}

	db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
	if err != nil {
		return err
	}

	dir, err := identity.NewDirectory(db, logger)
	if err != nil {
		return err
	}

	st, err := store.NewStore(db, cipher, dir, logger)
	if err != nil {
		return err
	}

	evtman := events.NewEventManager(logger)
	go evtman.Run()

	mod, err := moderation.NewService(db, evtman, logger)
	if err != nil {
		return err
	}

	exporter := export.NewExporter(st, dir, mod.Ledger(), logger)

	srv := server.NewServer(st, dir, mod, evtman, exporter, logger, server.Config{
		AdminToken: cctx.String("admin-token"),
	})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	svcErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cctx.String("bind"))
		if err := srv.Start(cctx.String("bind")); err != nil {
			svcErr <- err
		}
	}()

	logger.Info("startup complete")
	select {
	case <-signals:
		logger.Info("received shutdown signal")
	case err := <-svcErr:
		if err != nil {
			logger.Error("service error", "error", err)
		}
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
		return err
	}
	evtman.Shutdown()

	if sqldb, err := db.DB(); err == nil {
		sqldb.Close()
	}

	logger.Info("shutdown complete")
	return nil
}
