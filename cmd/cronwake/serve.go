package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"cronwake/internal/bus"
	"cronwake/internal/config"
	"cronwake/internal/constants"
	"cronwake/internal/cron"
	"cronwake/internal/heartbeat"
	"cronwake/internal/logger"
	"cronwake/internal/runner"
)

var (
	serveConfigPath string
	serveLogLevel   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler (main command)",
	Long: `Start the cronwake scheduler with the specified configuration.
This will initialize all components (logger, event queue, job runner,
scheduler) and handle graceful shutdown.`,
	Run: serveHandler,
}

// systemSink fans job outcomes out to the event queue and the heartbeat
// checker. Both members are optional.
type systemSink struct {
	events    *bus.EventQueue
	heartbeat *heartbeat.Checker
}

func (s *systemSink) EnqueueSystemEvent(message string, context map[string]any) {
	if s.events != nil {
		s.events.EnqueueSystemEvent(message, context)
	}
}

func (s *systemSink) RequestHeartbeatNow() {
	if s.heartbeat != nil {
		s.heartbeat.RequestNow()
	}
}

func serveHandler(cmd *cobra.Command, args []string) {
	if err := config.LoadEnvOptional(constants.DefaultEnvFile); err != nil {
		fmt.Printf("Failed to load .env file: %v\n", err)
		os.Exit(1)
	}

	configPath := serveConfigPath
	if configPath == "" {
		configPath = constants.DefaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override log level if flag is set
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	if errors := cfg.Validate(); len(errors) > 0 {
		fmt.Printf("Configuration validation failed:\n")
		for _, e := range errors {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	log.Info("Starting cronwake",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "workspace", Value: cfg.Workspace.Path},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var metrics *cron.Metrics
	if cfg.Metrics.Enabled {
		metrics = cron.InitMetrics("cronwake", nil)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("metrics listener started", logger.Field{Key: "listen", Value: cfg.Metrics.Listen})
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				log.Error("metrics listener failed", err)
			}
		}()
	}

	eventQueue := bus.New(cfg.Events.Capacity, log)
	if err := eventQueue.Start(ctx); err != nil {
		log.Error("Failed to start event queue", err)
		os.Exit(1)
	}

	// Drain events to the log; other consumers subscribe the same way.
	eventCh := eventQueue.Subscribe()
	go func() {
		for event := range eventCh {
			log.Info("system event",
				logger.Field{Key: "message", Value: event.Message},
				logger.Field{Key: "context", Value: event.Context})
		}
	}()

	var checker *heartbeat.Checker
	if cfg.Heartbeat.Enabled {
		agent := heartbeat.AgentFunc(func(ctx context.Context) (string, error) {
			return "HEARTBEAT_OK", nil
		})
		checker = heartbeat.NewChecker(cfg.Heartbeat.CheckIntervalMinutes, agent, log)
		if err := checker.Start(); err != nil {
			log.Error("Failed to start heartbeat checker", err)
			os.Exit(1)
		}
	}

	jobRunner := runner.NewExecRunner(cfg.Runner.WorkingDir, cfg.Runner.TimeoutSeconds, log)

	if !cfg.Cron.Enabled {
		log.Warn("cron is disabled in configuration, nothing to do")
		os.Exit(0)
	}

	service, err := cron.NewService(cron.Options{
		StorePath:         cfg.Cron.StorePath(cfg.Workspace.Path),
		StuckRunThreshold: cfg.Cron.StuckThreshold(),
		MinRefireGap:      cfg.Cron.MinRefireGap(),
		WatchStore:        cfg.Cron.WatchStore,
		Logger:            log,
		Runner:            jobRunner,
		Events:            &systemSink{events: eventQueue, heartbeat: checker},
		Metrics:           metrics,
	})
	if err != nil {
		log.Error("Failed to create cron service", err)
		os.Exit(1)
	}
	if err := service.Start(ctx); err != nil {
		log.Error("Failed to start cron service", err)
		os.Exit(1)
	}

	log.Info("cronwake is running")

	sig := <-sigChan
	log.Info("Received shutdown signal",
		logger.Field{Key: "signal", Value: sig.String()})

	log.Info("Shutting down cronwake...")
	cancel()

	service.Stop()

	if checker != nil {
		if err := checker.Stop(); err != nil {
			log.Error("Failed to stop heartbeat checker", err)
		}
	}

	if err := eventQueue.Stop(); err != nil {
		log.Error("Failed to stop event queue", err)
		os.Exit(1)
	}

	log.Info("cronwake stopped gracefully")
	os.Exit(0)
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to configuration file (default: ./config.toml)")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
}
