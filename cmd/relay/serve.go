package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/auto"
	"github.com/haasonsaas/relay/internal/channels"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/history"
	"github.com/haasonsaas/relay/internal/mcp"
	"github.com/haasonsaas/relay/internal/memory"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/plan"
	"github.com/haasonsaas/relay/internal/prefs"
	"github.com/haasonsaas/relay/internal/prompt"
	"github.com/haasonsaas/relay/internal/rag"
	"github.com/haasonsaas/relay/internal/ratelimit"
	"github.com/haasonsaas/relay/internal/respond"
	"github.com/haasonsaas/relay/internal/routing"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/internal/skills"
	"github.com/haasonsaas/relay/internal/usage"
	"github.com/haasonsaas/relay/pkg/models"
)

const localChatID = "local"

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging, debug)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newSessionStore(cfg.Sessions)
	if err != nil {
		return err
	}
	locker := sessions.NewLocalLocker(cfg.Sessions.LockTimeout)

	skillStore := skills.NewStore(logger)
	if err := skillStore.LoadDir(cfg.Skills.Dir); err != nil {
		logger.Warn("skill loading failed", "dir", cfg.Skills.Dir, "error", err)
	} else if cfg.Skills.Watch {
		if err := skillStore.Watch(ctx, cfg.Skills.Dir); err != nil {
			logger.Warn("skill watching failed", "dir", cfg.Skills.Dir, "error", err)
		}
	}
	defer skillStore.Close()

	registry := channels.NewRegistry()
	cli := channels.NewCLIAdapter(os.Stdout)
	cli.ShowEvents = debug
	registry.Register(cli)

	planService := plan.NewService(cfg.Plan.Enabled, logger)
	planReady := make(chan models.PlanReadyEvent, 16)
	go announcePlans(ctx, planReady, logger)

	memoryStore := memory.NewStore(cfg.Memory)
	ragStore := rag.NewMemoryStore(cfg.RAG)
	mcpManager := mcp.NewManager(nil, logger)
	defer mcpManager.Shutdown()
	tracker := usage.NewTracker(cfg.Usage, logger)
	bundle, err := newPrefs(cfg.Prefs)
	if err != nil {
		return err
	}

	toolRegistry := agent.NewToolRegistry()
	executor := agent.NewExecutor(toolRegistry, nil, logger)
	writer := history.NewWriter(store, nil, logger)
	views := history.NewViewBuilder(logger)

	provider := newEchoProvider()
	loopConfig := &agent.LoopConfig{
		MaxIterations: cfg.Loop.MaxIterations,
		MaxTokens:     cfg.Loop.MaxTokens,
		DefaultModel:  cfg.Loop.DefaultModel,
		ConfirmTools:  cfg.Loop.ConfirmTools,
	}
	loop := agent.NewToolLoop(provider, executor, writer, views, loopConfig, logger).
		WithUsage(tracker).
		WithPlans(planService)

	sections := prompt.NewSectionService(cfg.Prompt.Enabled, cfg.Prompt.Sections)
	responder := respond.NewRoutingStage(registry, nil, logger)

	// The auto service needs the orchestrator to fire goals and the prompt
	// builder needs the auto service for the # Goals section; the proxy
	// breaks the construction cycle.
	runner := &lateRunner{}
	autoService := auto.NewService(cfg.Auto, runner, logger)

	stages := []agent.Stage{
		routing.NewStage(skillStore, routing.NewKeywordMatcher(), &cfg.Routing, logger),
		prompt.NewBuilder(sections, skillStore, toolRegistry, logger).
			WithMemory(memoryStore).
			WithRAG(ragStore).
			WithMCP(mcpManager).
			WithGoals(autoService).
			WithPlanTools(planService),
		agent.NewToolLoopStage(loop, true),
		memory.NewPersistStage(memoryStore, logger),
		plan.NewFinalizationStage(planService, planReady, logger),
		respond.NewFeedbackStage(bundle, logger),
		responder,
	}

	orchestrator := agent.NewOrchestrator(store, locker, stages, logger).
		WithRateLimiter(ratelimit.NewLimiter(cfg.RateLimit)).
		WithPreferences(bundle).
		WithResponder(responder).
		WithPlanMode(planService)

	if cfg.Metrics.Enabled {
		orchestrator.WithMetrics(observability.NewMetrics())
		go serveMetrics(ctx, cfg.Metrics.Addr, logger)
	}

	runner.orchestrator = orchestrator
	autoService.Start(ctx)

	logger.Info("relay ready", "channels", registry.Types(), "skills", len(skillStore.Available()))
	fmt.Println("relay ready. Type a message and press enter (ctrl-d to exit).")

	return chatLoop(ctx, orchestrator)
}

// chatLoop feeds stdin lines through the pipeline as CLI-channel turns.
func chatLoop(ctx context.Context, orchestrator *agent.Orchestrator) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			orchestrator.ProcessMessage(ctx, &models.Message{
				Role:      models.RoleUser,
				Content:   text,
				Channel:   models.ChannelCLI,
				ChatID:    localChatID,
				CreatedAt: time.Now(),
			})
		}
	}
}

func runSkills(configPath string) error {
	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}
	store := skills.NewStore(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if err := store.LoadDir(cfg.Skills.Dir); err != nil {
		return err
	}
	fmt.Println(store.Summary())
	return nil
}

func loadOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func newSessionStore(cfg config.SessionsConfig) (sessions.Store, error) {
	if cfg.Backend == "sqlite" {
		return sessions.NewSQLiteStore(cfg.SQLitePath)
	}
	return sessions.NewMemoryStore(), nil
}

func newPrefs(cfg config.PrefsConfig) (*prefs.Bundle, error) {
	if cfg.Path == "" {
		return prefs.NewBundle(nil), nil
	}
	return prefs.LoadBundle(cfg.Path)
}

func announcePlans(ctx context.Context, ready <-chan models.PlanReadyEvent, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ready:
			logger.Info("plan awaiting approval", "plan_id", event.PlanID, "chat_id", event.ChatID)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", "error", err)
	}
}
