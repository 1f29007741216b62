package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ukydev/fleet-safety/internal/auth"
	"github.com/ukydev/fleet-safety/internal/broker"
	"github.com/ukydev/fleet-safety/internal/config"
	"github.com/ukydev/fleet-safety/internal/handlers"
	"github.com/ukydev/fleet-safety/internal/lifecycle"
	"github.com/ukydev/fleet-safety/internal/metrics"
	"github.com/ukydev/fleet-safety/internal/middleware"
	"github.com/ukydev/fleet-safety/internal/models"
)

// Per-user submission limits.
const (
	quickInspectionRate = 30
	readingRate         = 600
	rateWindow          = time.Minute
)

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume meter readings and quick inspections over MQTT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logrus.NewEntry(logger))
		},
	}
}

// newRegistry builds the metrics registry with runtime collectors and the
// lifecycle counters.
func newRegistry() (*prometheus.Registry, *metrics.Lifecycle, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewLifecycle(reg)
	if err != nil {
		return nil, nil, err
	}
	return reg, recorder, nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// registerRoutes wires the inbound topics to their handler chains.
func registerRoutes(router *broker.Router, svc handlers.LifecycleService, tokens middleware.TokenValidator, prefix string, log *logrus.Entry) {
	authMW := middleware.NewAuthMiddleware(tokens)
	limiter := middleware.NewRateLimitMiddleware()

	readings := handlers.NewReadingHandler(svc, prefix, log)
	router.Handle(broker.ReadingsFilter, middleware.Chain(readings.Handle,
		middleware.Recovery(log),
		middleware.Logging(log),
		authMW.Authenticate,
		authMW.RequireRole(models.RoleDriver, models.RoleInspector, models.RoleFleetManager),
		limiter.RateLimit(readingRate, rateWindow),
	))

	quick := handlers.NewQuickInspectionHandler(svc, log)
	router.Handle(broker.QuickInspectionFilter, middleware.Chain(quick.Handle,
		middleware.Recovery(log),
		middleware.Logging(log),
		authMW.Authenticate,
		authMW.RequireRole(models.RoleDriver, models.RoleInspector, models.RoleSupervisor),
		limiter.RateLimit(quickInspectionRate, rateWindow),
	))
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Entry) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg, recorder, err := newRegistry()
	if err != nil {
		return err
	}
	tokens, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return err
	}

	router := broker.NewRouter(cfg.MQTTTopicPrefix, 30*time.Second, log)
	client, err := broker.Connect(broker.Options{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		OnConnect: func(c mqtt.Client) {
			// clean sessions drop subscriptions on reconnect
			if err := router.Subscribe(ctx, c); err != nil {
				log.WithError(err).Error("resubscribe")
			}
		},
	}, log)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	svc, err := newService(store, cfg, log,
		lifecycle.WithPublisher(broker.NewPublisher(client, cfg.MQTTTopicPrefix)),
		lifecycle.WithRecorder(recorder),
	)
	if err != nil {
		return err
	}
	registerRoutes(router, svc, tokens, cfg.MQTTTopicPrefix, log)
	if err := router.Subscribe(ctx, client); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsHandler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.MetricsAddr).Info("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.WithField("filters", router.Filters()).Info("lifecycle engine started")
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("metrics server shutdown")
	}
	return err
}
