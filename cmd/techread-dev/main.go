package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/techread/internal/auth"
	"github.com/danmuck/techread/internal/config"
	"github.com/danmuck/techread/internal/devserver"
	"github.com/danmuck/techread/internal/logging"
	"github.com/danmuck/techread/internal/observability"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "techread-dev: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := flag.String("config", "cmd/techread-dev/config.toml", "dev server TOML config")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.ConfigureRuntime()
	level, ok := logging.ParseLevel(*logLevel)
	if !ok {
		level = zerolog.InfoLevel
	}
	logger := observability.InitLogger("techread-dev", level)

	cfg, err := config.LoadDevProfile(*path)
	if err != nil {
		return err
	}
	srv := devserver.New(devserver.Config{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Validator:   auth.StaticToken{Token: cfg.Token},
		CORSOrigins: cfg.CorsOrigins,
		Behavior: devserver.Behavior{
			MaxDocumentBytes: cfg.MaxDocumentBytes,
			PayloadHost:      cfg.PayloadHost,
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("version", cfg.Version).Bool("tls", cfg.TLSCertFile != "").Msg("techread-dev listening")
		if cfg.TLSCertFile != "" {
			errCh <- httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info().Msg("techread-dev shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
