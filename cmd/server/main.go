// Command server runs the OpenViking contextual memory engine: the
// auth-gated HTTP surface over the storage plane, vector gateway,
// hierarchical retriever, session lifecycle, and tenant manager.
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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/openviking/openviking/internal/api/middleware"
	"github.com/openviking/openviking/internal/api/rest"
	"github.com/openviking/openviking/internal/api/websocket"
	"github.com/openviking/openviking/internal/config"
	"github.com/openviking/openviking/internal/pkg/logger"
	"github.com/openviking/openviking/internal/pkg/tracing"
	"github.com/openviking/openviking/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.StdLogger(cfg.LogFormat)
	log.Info("openviking starting", "port", cfg.Port, "vector_backend", cfg.VectorBackend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		cleanup, err := tracing.Init(cfg.TracingServiceName, cfg.TracingEndpoint, cfg.TracingSamplingRate)
		if err != nil {
			log.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer cleanup()
	}

	// Bootstrap is fail-fast: a broken registry or unreachable backend
	// aborts here rather than serving with a partial index.
	svc, err := service.New(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize service", "error", err)
		os.Exit(1)
	}
	if !svc.Keys.RootEnabled() {
		log.Warn("OPENVIKING_ROOT_API_KEY is unset; admin endpoints are disabled")
	}

	hub := websocket.NewHub(ctx)
	go hub.Run()
	wsHandler := websocket.NewHandler(ctx, hub, cfg.AllowedOrigins)

	router := mux.NewRouter()
	handlers := rest.NewHandlers(svc, cfg.TraceMaxEvents)
	handlers.SetStream(hub)
	handlers.Register(router)
	router.HandleFunc("/api/v1/system/stream", wsHandler.ServeWS)
	router.Handle("/metrics", promhttp.Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "X-API-Key", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})

	var handler http.Handler = router
	handler = middleware.AuditLog(svc.Audit)(handler)
	handler = middleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst)(handler)
	handler = middleware.Auth(svc.Keys)(handler)
	handler = middleware.MetricsAuth(cfg.MetricsAuthEnabled, svc.Keys)(handler)
	handler = middleware.MaxBodySize(middleware.DefaultStandardMaxBodyBytes, cfg.MaxBodyBytes)(handler)
	handler = middleware.SecureHeaders(handler)
	handler = middleware.StructuredLog(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing(handler)
	}
	handler = middleware.CORSValidation(cfg, log)(handler)
	handler = middleware.Recover(handler)
	handler = middleware.RequestID(handler)
	handler = corsHandler.Handler(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.RequestTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	hub.Stop()
	// The recorder drains inside Close, bounded by the same deadline.
	if err := svc.Close(shutdownCtx); err != nil {
		log.Error("service shutdown failed", "error", err)
	}
	log.Info("openviking stopped")
}
