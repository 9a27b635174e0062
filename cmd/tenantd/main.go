package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tenantd/tenantd/internal/common/logtrace"
	"github.com/tenantd/tenantd/internal/tenantsrv/config"
	"github.com/tenantd/tenantd/internal/tenantsrv/db"
	"github.com/tenantd/tenantd/internal/tenantsrv/server"
)

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile string
}

func parseFlags() cmdoptions {
	opt := cmdoptions{}
	flag.StringVar(&opt.configFile, "config", "tenantdsrv.conf", "path to the config file")
	flag.Parse()
	return opt
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog := log.With().Str("state", "init").Logger()

	opt := parseFlags()

	slog.Info().Str("config_file", opt.configFile).Msg("loading config file")
	if err := config.LoadConfig(opt.configFile); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}

	db.Init()
	if err := db.EnsureCatalog(ctx); err != nil {
		return fmt.Errorf("ensuring tenant catalog: %w", err)
	}

	serverErrors, shutdownServer, err := createTenantServer(ctx)
	if err != nil {
		return fmt.Errorf("creating tenant server: %w", err)
	}

	// Channel to listen for an interrupt or terminate signal from the OS.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		shutdownServer()
	}

	slog.Info().Msg("server stopped")
	return nil
}

func createTenantServer(ctx context.Context) (chan error, func(), error) {
	slog := log.With().Str("state", "init").Logger()

	// Schemas start empty by default; embedding services pass their own
	// table provisioner when they build the server themselves.
	s, err := server.CreateNewServer(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating server: %w", err)
	}
	s.MountHandlers()

	srv := &http.Server{
		Addr:              ":" + config.Config().ServerPort,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info().Str("port", config.Config().ServerPort).Msg("server started")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := func() {
		// Give outstanding requests 5 seconds to complete and initiate the shutdown.
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error().Err(err).Msg("could not stop server gracefully")
			if err := srv.Close(); err != nil {
				slog.Error().Err(err).Msg("could not stop server")
			}
		}
	}

	return serverErrors, shutdown, nil
}
