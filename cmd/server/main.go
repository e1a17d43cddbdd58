// Command server runs the EmpaTalk HTTP API.
//
// @title                       EmpaTalk API
// @version                     1.0
// @description                 Empathetic chat backend: accounts, chat sessions answered by a model service, and turn feedback.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Bearer token from /user/register or /user/login
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-empatalk-backend/internal/config"
	httpapi "github.com/tbourn/go-empatalk-backend/internal/http"
	"github.com/tbourn/go-empatalk-backend/internal/inference"
	"github.com/tbourn/go-empatalk-backend/internal/observability"
	"github.com/tbourn/go-empatalk-backend/internal/repo"
	"github.com/tbourn/go-empatalk-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	loadEnvFiles()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	out, closer := sysutil.LogWriter(os.Stdout, cfg.LogPretty, cfg.LogFile)
	defer closer.Close()
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", cfg.OTEL.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Error().Err(err).Msg("shutdown tracing")
		}
	}()

	db, err := repo.Open(repo.Options{
		Driver:  cfg.DB.Driver,
		Path:    cfg.DB.Path,
		DSN:     cfg.DB.DSN,
		Tracing: cfg.OTEL.Enabled,
		Silent:  cfg.GinMode == gin.ReleaseMode,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	model := inference.NewClient(cfg.Model.URL, cfg.Model.Timeout)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	if err := httpapi.RegisterRoutes(r, db, model, cfg); err != nil {
		log.Fatal().Err(err).Msg("register routes")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db_driver", cfg.DB.Driver).
			Str("model_url", model.BaseURL()).
			Str("version", version).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
		}
	}
}
