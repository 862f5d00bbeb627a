package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/fixgsm/fixgsm-server/internal/ai"
	"github.com/fixgsm/fixgsm-server/internal/api"
	"github.com/fixgsm/fixgsm-server/internal/auth"
	"github.com/fixgsm/fixgsm-server/internal/backup"
	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/events"
	"github.com/fixgsm/fixgsm-server/internal/integration"
	"github.com/fixgsm/fixgsm-server/internal/metrics"
	"github.com/fixgsm/fixgsm-server/internal/server"
	"github.com/fixgsm/fixgsm-server/internal/service"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVarP(&configFile, "config", "c", "configs/fixgsm.yaml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open storage
	store, err := storage.Open(ctx, cfg, true)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open storage")
	}
	defer store.Close()
	log.Info().Str("driver", cfg.Storage.Driver).Msg("Storage ready")

	bus := connectBus(cfg)
	defer bus.Close()

	backups, err := backup.NewManager(cfg.Backup.Dir, cfg.Backup.CompressionLevel)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Backup.Dir).Msg("Failed to prepare backup directory")
	}
	defer backups.Close()

	var provider ai.Provider
	if cfg.AI.BaseURL != "" {
		provider = ai.NewOpenAI(&http.Client{Timeout: cfg.AI.Timeout}, cfg.AI.BaseURL, cfg.AI.APIKey)
		log.Info().Str("model", cfg.AI.Model).Msg("AI provider configured")
	} else {
		log.Info().Msg("AI provider not configured, assistant calls will be refused")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.Metrics.Namespace, reg)

	jwt := auth.NewJWTManager(&cfg.JWT)
	svc := service.New(service.Options{
		Store:   store,
		Config:  cfg,
		JWT:     jwt,
		Bus:     bus,
		AI:      provider,
		Backups: backups,
		Metrics: m,
	})

	var wg sync.WaitGroup

	// Activity log
	recorder := server.NewActivityRecorder(bus, store)
	if err := recorder.Subscribe(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start activity recorder")
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Activity recorder stopped")
		}
	}()

	// External integrations
	if forwarder := integration.NewForwarder(cfg.Integration, bus); forwarder.Enabled() {
		if err := forwarder.Subscribe(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start integration forwarder")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			forwarder.Run(ctx)
		}()
	}

	if err := svc.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap platform data")
	}

	// Start REST API server
	apiServer := api.NewRESTServer(cfg, svc, jwt, m)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.ListenAndServe(cfg.API.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	wg.Wait()

	log.Info().Msg("FixGSM server stopped")
}

// setupLogging applies the configured level and format
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// connectBus returns a NATS bus when configured and reachable, otherwise
// the in-process bus
func connectBus(cfg *config.Config) events.Bus {
	if cfg.NATS.URL == "" {
		log.Info().Msg("NATS not configured, running with the in-process event bus")
		return events.NewLocalBus()
	}

	log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")
	opts := []nats.Option{
		nats.Name(cfg.NATS.ClientID),
		nats.ReconnectWait(cfg.NATS.ReconnectInterval),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Msg("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS error")
		}),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password))
	}

	nc, err := nats.Connect(cfg.NATS.URL, opts...)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to NATS, continuing with the in-process event bus")
		return events.NewLocalBus()
	}
	log.Info().Msg("Connected to NATS")
	return events.NewNATSBus(nc, cfg.NATS.SubjectPrefix)
}
