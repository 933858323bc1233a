package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/fppsync/go/clients/fpp_client"
	"github.com/mcdev12/fppsync/go/internal/beacon"
	"github.com/mcdev12/fppsync/go/internal/beaconconfig"
	"github.com/mcdev12/fppsync/go/internal/synclog"
)

func main() {
	configPath := flag.String("config", os.Getenv("FPPSYNC_CONFIG"), "path to YAML config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := beaconconfig.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	fetcher, err := fpp_client.NewFppClient(cfg.Upstream.StatusURL, cfg.Upstream.FetchTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create fppd client")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := beacon.NewPrometheusMetrics(registry)

	beaconService := beacon.NewService(serviceConfig(cfg, fetcher.StatusURL()), fetcher, nil, metrics)

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("status_url", fetcher.StatusURL()).
		Dur("poll_interval", cfg.Upstream.PollInterval).
		Str("version", beacon.ReadVersion(cfg.VersionFiles)).
		Msg("starting fppsync beacon")

	// Setup HTTP server
	mux := http.NewServeMux()
	beaconService.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(beaconService.GetStats()); err != nil {
			log.Debug().Err(err).Msg("failed to write service info")
		}
	})

	// Listener pages are loaded from the FPP web server, so the status endpoints are fetched cross-origin
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := beaconService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("beacon service failed")
		}
	}()

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Stop polling and close every session before the server stops accepting
	cancel()
	<-serviceDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("fppsync beacon shutdown complete")
}

func serviceConfig(cfg beaconconfig.Config, statusURL string) beacon.Config {
	sc := beacon.DefaultConfig()

	sc.PollerConfig = beacon.PollerConfig{
		Interval:     cfg.Upstream.PollInterval,
		MinSleep:     cfg.Upstream.MinSleep,
		FetchTimeout: cfg.Upstream.FetchTimeout,
		SourceURL:    statusURL,
	}
	sc.Elapsed = beacon.ElapsedField{
		Name: cfg.Upstream.ElapsedField,
		Unit: beacon.ElapsedUnit(cfg.Upstream.ElapsedUnit),
	}

	sc.ConnectionConfig.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	sc.ConnectionConfig.PingInterval = cfg.WebSocket.PingInterval
	sc.ConnectionConfig.ReadTimeout = cfg.WebSocket.ReadTimeout
	sc.ConnectionConfig.WriteTimeout = cfg.WebSocket.WriteTimeout
	sc.ConnectionConfig.SendBufferSize = cfg.WebSocket.SendBuffer

	sc.MusicDir = cfg.Audio.MusicDir
	sc.AudioURLPrefix = cfg.Audio.URLPrefix
	sc.AudioExtensions = cfg.Audio.Extensions

	sc.SyncLog = synclog.Options{
		Path:     cfg.SyncLog.Path,
		MaxBytes: cfg.SyncLog.MaxBytes,
	}

	sc.PortalURL = cfg.PortalURL
	sc.VersionFiles = cfg.VersionFiles
	return sc
}
