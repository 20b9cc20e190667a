// Package main runs the portal HTTP API together with the background jobs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/api"
	"github.com/kylejryan/insurance-policy-portal/internal/app"
	"github.com/kylejryan/insurance-policy-portal/internal/config"
	"github.com/kylejryan/insurance-policy-portal/internal/logging"
	"github.com/kylejryan/insurance-policy-portal/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	env := config.MustLoad()
	log := logging.Must(env.LogLevel, env.LogFormat, "portal-api")
	if env.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, env, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	var lock scheduler.Locker
	if a.Redis != nil {
		lock = scheduler.NewRedisLock(a.Redis)
	}
	jobs, err := scheduler.New(scheduler.Config{
		FixSpec:        env.StatusFixCron,
		OutboxInterval: env.OutboxInterval,
	}, a.Contracts, a.Outbox, lock, log.Named("scheduler"))
	if err != nil {
		log.Fatal("scheduler setup failed", zap.Error(err))
	}
	jobs.Start(ctx)
	defer jobs.Stop()

	srv := api.NewServer(api.Services{
		Contracts: a.Contracts,
		Claims:    a.Claims,
		Users:     a.Users,
		Notify:    a.Notify,
		Contact:   a.Contact,
		Dashboard: a.Dashboard,
		Tasks:     a.Tasks,
		Chat:      a.Chat,
		Push:      a.Push,
		JWT:       a.JWT,
	}, api.Options{
		DevBypassAuth:  env.DevBypassAuth,
		ErrorDetail:    !env.Production(),
		AllowTesting:   !env.Production(),
		AllowedOrigins: env.AllowedOrigins,
	}, log)

	httpSrv := &http.Server{
		Addr:              env.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", env.HTTPAddr), zap.String("store", env.Store))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		if err != nil {
			log.Error("http server stopped", zap.Error(err))
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}
