// README: API entrypoint; wires config, Postgres, Redis, services, and the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fret/internal/auth"
	"fret/internal/config"
	httpx "fret/internal/http"
	"fret/internal/http/handlers"
	"fret/internal/http/middleware"
	"fret/internal/infra"
	"fret/internal/inventory"
	"fret/internal/modules/assignment"
	"fret/internal/modules/billing"
	"fret/internal/modules/deliverynote"
	"fret/internal/modules/request"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer db.Close()

	rdb := infra.NewRedis(cfg.Redis.Addr)
	defer rdb.Close()

	publisher := billing.NewRedisPublisher(rdb, cfg.Redis.Queue, log)
	tokens := auth.NewService(cfg.Auth.Secret, cfg.Auth.AccessTTL)

	requestStore := request.NewStore(db)
	noteStore := deliverynote.NewStore(db)
	inventoryStore := inventory.NewStore(db)
	assignmentStore := assignment.NewStore(db, noteStore)

	requestSvc := request.NewService(requestStore, publisher, cfg.Policy.ForfeitRatePercent)
	assignmentSvc := assignment.NewService(assignmentStore, requestStore, inventoryStore, publisher)

	router := httpx.NewRouter(httpx.RouterDeps{
		Log:         log,
		Auth:        middleware.NewAuth(tokens),
		Requests:    handlers.NewRequestHandler(requestSvc),
		Assignments: handlers.NewAssignmentHandler(assignmentSvc),
		Notes:       handlers.NewNoteHandler(noteStore),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
