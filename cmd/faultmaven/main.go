// FaultMaven orchestrator server — serves the HTTP API, runs the turn
// executor, and coordinates investigation processing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/faultmaven/faultmaven/pkg/api"
	"github.com/faultmaven/faultmaven/pkg/cleanup"
	"github.com/faultmaven/faultmaven/pkg/config"
	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/pkg/engine"
	"github.com/faultmaven/faultmaven/pkg/engine/hypothesis"
	"github.com/faultmaven/faultmaven/pkg/engine/memory"
	"github.com/faultmaven/faultmaven/pkg/engine/ooda"
	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/events"
	"github.com/faultmaven/faultmaven/pkg/knowledge"
	"github.com/faultmaven/faultmaven/pkg/llm"
	"github.com/faultmaven/faultmaven/pkg/masking"
	"github.com/faultmaven/faultmaven/pkg/notify"
	"github.com/faultmaven/faultmaven/pkg/queue"
	"github.com/faultmaven/faultmaven/pkg/services"
	"github.com/faultmaven/faultmaven/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	podID := resolvePodID()
	slog.Info("Starting FaultMaven",
		"version", version.Full(),
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database (runs pending migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Masking service for user-supplied text
	masker := masking.NewService(cfg.Masking)

	// 4. LLM sidecar client
	// Note: grpc.NewClient dials lazily; the connection is made on the first turn
	provider, err := llm.NewGRPCProvider(cfg.LLM.Endpoint)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "endpoint", cfg.LLM.Endpoint, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			slog.Error("Error closing LLM client", "error", err)
		}
	}()
	slog.Info("LLM client initialized", "endpoint", cfg.LLM.Endpoint, "model", cfg.LLM.Model)

	// 5. Streaming infrastructure
	eventService := services.NewEventService(dbClient.Client)
	eventPublisher := events.NewEventPublisher(dbClient.DB())
	catchupQuerier := events.NewEventServiceAdapter(eventService)
	connManager := events.NewConnectionManager(catchupQuerier, 10*time.Second)

	// Start NotifyListener (dedicated pgx connection for LISTEN)
	notifyListener := events.NewNotifyListener(dbConfig.DSN(), connManager)
	if err := notifyListener.Start(ctx); err != nil {
		slog.Error("Failed to start NotifyListener", "error", err)
		os.Exit(1)
	}
	defer notifyListener.Stop(ctx)

	// Wire listener ↔ manager bidirectional link
	connManager.SetListener(notifyListener)
	slog.Info("Streaming infrastructure initialized")

	// 6. Investigation engines. The executor's engine persists turn state
	// through CommitTurn; the API's transition engine saves directly.
	engineCfg := buildEngineConfig(cfg)
	deps := engine.Dependencies{Provider: provider}
	if cfg.Knowledge.Enabled() {
		deps.Knowledge = knowledge.NewClient(knowledge.Config{
			BaseURL:  cfg.Knowledge.Endpoint,
			APIKey:   os.Getenv(cfg.Knowledge.APIKeyEnv),
			CacheTTL: cfg.Knowledge.CacheTTL.Std(),
		})
		slog.Info("Knowledge search enabled", "endpoint", cfg.Knowledge.Endpoint)
	}

	execDeps := deps
	execDeps.Store = queue.NewEngineStateStore(dbClient.Client)
	turnEngine, err := engine.New(engineCfg, execDeps)
	if err != nil {
		slog.Error("Failed to build turn engine", "error", err)
		os.Exit(1)
	}

	apiDeps := deps
	apiDeps.Store = services.NewEntStateStore(dbClient.Client)
	transitionEngine, err := engine.New(engineCfg, apiDeps)
	if err != nil {
		slog.Error("Failed to build transition engine", "error", err)
		os.Exit(1)
	}

	// 7. Slack escalation notifications (optional; nil notifier is a no-op)
	var notifier *notify.Service
	if cfg.Slack.Enabled {
		notifier = notify.NewService(notify.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.Slack.DashboardURL,
		})
		if notifier == nil {
			slog.Warn("Slack enabled but token or channel missing; escalations will not be posted",
				"token_env", cfg.Slack.TokenEnv)
		} else {
			slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
		}
	}

	// 8. Turn executor
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	executor := queue.NewTurnExecutor(dbClient, turnEngine, eventPublisher, notifier,
		queue.TurnExecutorConfig{
			PodID:                   podID,
			MaxConcurrentTurns:      cfg.Queue.MaxConcurrentTurns,
			LeaseTTL:                cfg.Queue.LeaseTTL.Std(),
			HeartbeatInterval:       cfg.Queue.HeartbeatInterval.Std(),
			OrphanSweepInterval:     cfg.Queue.OrphanSweepInterval.Std(),
			TurnTimeout:             cfg.Queue.TurnTimeout.Std(),
			GracefulShutdownTimeout: cfg.Queue.GracefulShutdownTimeout.Std(),
		})

	// One-time cleanup of work abandoned by this pod's previous life
	if err := executor.CleanupStartupOrphans(ctx); err != nil {
		slog.Error("Failed to clean up startup orphans", "error", err)
		// Non-fatal — the periodic sweep retries
	}
	executor.Start(runCtx)

	// 9. Closed-case retention
	cleanupService := cleanup.NewService(cfg.Retention,
		services.NewCaseService(dbClient.Client), eventService)
	cleanupService.Start(runCtx)
	defer cleanupService.Stop()

	// 10. Create HTTP server
	httpServer := api.NewServer(cfg, dbClient, executor, connManager)
	httpServer.SetTransitionEngine(transitionEngine)
	httpServer.SetEventPublisher(eventPublisher)
	httpServer.SetMasker(masker)
	httpServer.SetLLMConnState(provider)

	// 11. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("FaultMaven started successfully",
		"pod_id", podID,
		"max_concurrent_turns", cfg.Queue.MaxConcurrentTurns)

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown. The executor stops first: new submissions
	// are refused with a retryable 503 while in-flight turns drain, so
	// clients never get an accepted turn that no one will run.
	cancelRun()
	executor.Stop()
	slog.Info("Turn executor stopped")

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// buildEngineConfig maps file configuration onto the engine's tuning
// struct. Nested sections are non-nil and validated after
// config.Initialize, so values convert directly.
func buildEngineConfig(cfg *config.Config) engine.Config {
	ec := engine.Config{
		Model:                  cfg.LLM.Model,
		Temperature:            cfg.LLM.Temperature,
		LLMTimeout:             time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		CompressionEveryNTurns: cfg.Engine.Memory.CompressionEveryNTurns,
		LoopbackMax:            cfg.Engine.Phase.LoopbackMax,
		DegradedTurnsThreshold: cfg.Engine.Degraded.TurnsThreshold,
		KnowledgeTopK:          cfg.Knowledge.TopK,
		Hypothesis: hypothesis.Config{
			ValidateThreshold:    cfg.Engine.Hypothesis.ValidateThreshold,
			RefuteThreshold:      cfg.Engine.Hypothesis.RefuteThreshold,
			DecayFactor:          cfg.Engine.Hypothesis.DecayFactor,
			DecayMinDelta:        cfg.Engine.Hypothesis.DecayMinDelta,
			SameCategoryLimit:    cfg.Engine.Anchoring.SameCategoryLimit,
			StagnationIterations: cfg.Engine.Anchoring.StagnationIterations,
		},
		Memory: memory.Config{
			MaxContextTokens: cfg.Engine.Memory.MaxContextTokens,
			HotSnapshots:     cfg.Engine.Memory.HotSnapshots,
			WarmSnapshots:    cfg.Engine.Memory.WarmSnapshots,
			ColdSnapshots:    cfg.Engine.Memory.ColdSnapshots,
		},
	}

	if len(cfg.LLM.TemperatureByPhase) > 0 {
		ec.TemperatureByPhase = make(map[state.Phase]float32, len(cfg.LLM.TemperatureByPhase))
		for phase, temp := range cfg.LLM.TemperatureByPhase {
			ec.TemperatureByPhase[state.Phase(phase)] = temp
		}
	}

	if len(cfg.Engine.Hypothesis.CategoryKeywords) > 0 {
		ec.Hypothesis.CategoryKeywords = make(map[state.HypothesisCategory][]string,
			len(cfg.Engine.Hypothesis.CategoryKeywords))
		for category, words := range cfg.Engine.Hypothesis.CategoryKeywords {
			ec.Hypothesis.CategoryKeywords[state.HypothesisCategory(category)] = words
		}
	}

	if len(cfg.Engine.OODA.IntensityTable) > 0 {
		ec.OODATable = buildOODATable(cfg.Engine.OODA.IntensityTable)
	}
	return ec
}

// buildOODATable converts YAML intensity rows into the engine's table.
func buildOODATable(rows map[string][]string) ooda.Table {
	table := make(ooda.Table, len(rows))
	for phase, bands := range rows {
		var row ooda.Bands
		for i := 0; i < len(row) && i < len(bands); i++ {
			row[i] = state.Intensity(bands[i])
		}
		table[state.Phase(phase)] = row
	}
	return table
}
