package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/easyisp/backend/internal/api"
	"github.com/easyisp/backend/internal/config"
	"github.com/easyisp/backend/internal/database"
	"github.com/easyisp/backend/internal/logger"
	"github.com/easyisp/backend/internal/models"
	"github.com/easyisp/backend/internal/radius"
	"github.com/easyisp/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Path:   cfg.LogPath,
	})
	log.Info().Msg("starting EasyISP RADIUS server")

	conns, err := database.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer conns.Close()

	if err := models.AutoMigrate(conns.DB); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	conns.EnsureIndexes()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := radius.NewMetrics()
	metrics.Register(registry)

	events := radius.NewEventLog(metrics)
	st := store.NewGormStore(conns.DB, database.NewSubscriberCache(conns.Redis))

	server := radius.NewServer(radius.Config{
		AuthAddr:           fmt.Sprintf(":%d", cfg.RadiusAuthPort),
		AcctAddr:           fmt.Sprintf(":%d", cfg.RadiusAcctPort),
		CoAPort:            cfg.RadiusCoAPort,
		RequireMessageAuth: cfg.RequireMessageAuth,
	}, st, events, log)

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("radius server failed to start")
	}
	log.Info().
		Int("auth", cfg.RadiusAuthPort).
		Int("acct", cfg.RadiusAcctPort).
		Msg("radius listeners bound")

	var adminServer *api.Server
	if cfg.AdminPort > 0 {
		adminServer = api.New(server, cfg, log)
		go func() {
			log.Info().Int("port", cfg.AdminPort).Msg("admin surface listening")
			if err := adminServer.Listen(); err != nil {
				log.Error().Err(err).Msg("admin server error")
			}
		}()
	}

	if cfg.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			log.Info().Int("port", cfg.MetricsPort).Msg("metrics endpoint listening")
			if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), mux); err != nil {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	if adminServer != nil {
		adminServer.Shutdown()
	}
	server.Stop()
}
