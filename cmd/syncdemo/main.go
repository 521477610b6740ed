// Command syncdemo runs an in-process synctest.Server alongside a
// SyncContext pointed at it over real HTTP, exercising the full
// insert/push/pull loop end to end without any external dependency.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erauner12/syncengine-go/internal/auth"
	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/model"
	"github.com/erauner12/syncengine-go/internal/remote"
	"github.com/erauner12/syncengine-go/internal/synccontext"
	"github.com/erauner12/syncengine-go/internal/synctest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "syncdemo").Logger()

	if env("ENV", "") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	jwtSecret := env("JWT_HS256_SECRET", "dev-secret-change-in-production")
	debugSub := env("SYNC_DEBUG_SUB", "demo-user")

	remoteSrv := synctest.NewServer(jwtSecret)
	httpAddr := env("HTTP_ADDR", ":8089")
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      remoteSrv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpAddr).Msg("starting fake remote HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("fake remote HTTP server failed")
		}
	}()

	// Give the listener a moment to come up before the client dials it.
	time.Sleep(50 * time.Millisecond)

	baseURL := "http://127.0.0.1" + httpAddr
	tokenProvider := auth.NewDevTokenProvider(jwtSecret, debugSub)
	sessionMgr := remote.NewSessionManager(baseURL, tokenProvider, "")
	client := remote.NewHTTPClient(baseURL, tokenProvider, sessionMgr, "")

	var ds datasource.DataSource
	pgDSN := env("POSTGRES_DSN", "")
	if pgDSN != "" {
		pg, err := datasource.OpenPostgres(ctx, pgDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open postgres datasource")
		}
		defer pg.Close()
		log.Info().Msg("using postgres-backed local store")
		ds = pg
	} else {
		ds = datasource.NewMemory()
	}

	sc, err := synccontext.New(ctx, ds, client, synccontext.WithCallbackWorkers(4))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build sync context")
	}
	defer sc.Close()

	notes := sc.Table("notes")
	done := make(chan struct{})
	notes.Insert(ctx, model.Item{"id": "demo-1", "title": "hello from syncdemo"}, func(item model.Item, err error) {
		if err != nil {
			log.Error().Err(err).Msg("insert failed")
			close(done)
			return
		}
		log.Info().Interface("item", item).Msg("inserted locally")

		sc.Push(ctx, func(err error) {
			if err != nil {
				log.Error().Err(err).Msg("push failed")
				close(done)
				return
			}
			log.Info().Msg("push complete")

			notes.Pull(ctx, datasource.Query{}, "notes-stream", func(err error) {
				if err != nil {
					log.Error().Err(err).Msg("pull failed")
				} else {
					log.Info().Msg("pull complete")
				}
				close(done)
			})
		})
	})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("demo sequence timed out")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	log.Info().Msg("server stopped")
}
