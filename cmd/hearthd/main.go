// Command hearthd runs the Hearth conversation engine: it connects the
// language model to the device bridge and the built-in scheduling tools,
// restores any deferred commands, and serves the management surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	internal "github.com/embervale/hearth-agent/hearth"
	"github.com/embervale/hearth-agent/hearth/agent"
	"github.com/embervale/hearth-agent/hearth/agent/adapters"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/embervale/hearth-agent/hearth/config"
	hearthdb "github.com/embervale/hearth-agent/hearth/db"
	"github.com/embervale/hearth-agent/hearth/schedule"
	"github.com/embervale/hearth-agent/hearth/server"
	"github.com/embervale/hearth-agent/hearth/tools"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(os.Getenv("HEARTH_LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		logger = logger.Level(lvl)
	}

	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("hearthd failed")
	}
}

func run(logger zerolog.Logger) error {
	cfg, err := config.LoadConfig(os.Getenv("HEARTH_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tz := time.Local
	if cfg.Hearth.Timezone != "" {
		tz, err = time.LoadLocation(cfg.Hearth.Timezone)
		if err != nil {
			return fmt.Errorf("resolving timezone %q: %w", cfg.Hearth.Timezone, err)
		}
	}

	db, err := hearthdb.Connect(cfg.Hearth.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	settings := adapters.NewLibSQLSettings(db)

	apiKey, model, err := resolveProvider(ctx, settings, cfg)
	if err != nil {
		return err
	}

	provider, err := adapters.NewGeminiProvider(ctx, apiKey, logger)
	if err != nil {
		return fmt.Errorf("constructing model provider: %w", err)
	}

	clock := adapters.SystemClock{}
	tracer := adapters.NewZerologTracer(logger)
	sink := adapters.NewLogSink(logger)

	store := schedule.NewStore(settings)
	sched := schedule.NewScheduler(schedule.Config{
		TimerThreshold: cfg.Scheduler.TimerThreshold,
		SweepInterval:  cfg.Scheduler.SweepInterval,
		MaxHorizon:     cfg.Scheduler.MaxHorizon,
		PastGrace:      cfg.Scheduler.PastGrace,
		Timezone:       tz,
	}, store, clock, sink, tracer, logger)

	var bridge ports.CapabilityProvider
	if cfg.Bridge.URL != "" {
		bridge = adapters.NewBridgeClient(cfg.Bridge.URL, cfg.Bridge.Timeout, logger)
	} else {
		logger.Warn().Msg("no bridge configured, running with built-in tools only")
	}
	router := tools.NewRouter(bridge, logger,
		tools.NewScheduleTool(sched),
		tools.NewCancelTool(sched),
		tools.NewListTool(sched),
	)

	specs, err := router.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}

	dispatcher, err := agent.NewToolDispatcher(router, specs, cfg.Agent.ToolConcurrency, cfg.Agent.ToolTimeout, logger)
	if err != nil {
		return fmt.Errorf("constructing dispatcher: %w", err)
	}

	instruction := cfg.Agent.Instruction
	if instruction == "" {
		instruction = agent.DefaultInstruction
	}

	var cache *agent.ContextCache
	if cfg.Cache.Enabled {
		cache = agent.NewContextCache(provider, instruction, specs, cfg.Cache.TTL, cfg.Cache.SafetyMargin, clock, logger)
	}

	retry := agent.NewRetryPolicy(agent.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelay,
		AttemptCeiling: cfg.Retry.AttemptCeiling,
		TotalCeiling:   cfg.Retry.TotalCeiling,
	}, clock, logger)

	history := agent.NewHistory(cfg.Agent.HistoryCapacity, logger)

	temperature := cfg.Provider.Temperature
	orch := agent.NewOrchestrator(agent.OrchestratorConfig{
		Model:        model,
		Temperature:  &temperature,
		TurnBudget:   cfg.Agent.TurnBudget,
		ScheduleTool: tools.ScheduleToolName,
		Timezone:     tz,
		Locale:       cfg.Hearth.Locale,
		Instruction:  instruction,
		Tools:        specs,
	},
		provider,
		dispatcher,
		history,
		cache,
		retry,
		clock,
		tracer,
		logger,
	)

	sched.Bind(orch)
	if err := sched.Restore(ctx); err != nil {
		return fmt.Errorf("restoring scheduled commands: %w", err)
	}
	if pending, err := sched.Pending(ctx); err == nil && len(pending) > 0 {
		orch.Seed(fmt.Sprintf(
			"After a restart, %d scheduled command(s) are still pending; the soonest is %q at %s.",
			len(pending), pending[0].Text, pending[0].ExecuteAt.Format(time.RFC3339)))
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		handler := server.NewHandler(orch, sched, clock, logger)
		srv = server.New(cfg.Server.Listen, handler, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("management surface failed")
			}
		}()
	}

	logger.Info().
		Str("model", model).
		Str("timezone", tz.String()).
		Int("tools", len(specs)).
		Msg("hearthd started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("management surface shutdown failed")
		}
	}
	sched.Cleanup()
	return nil
}

// resolveProvider picks the API key and model, preferring the settings
// table over the config file and environment so management-time changes
// survive restarts without editing files.
func resolveProvider(ctx context.Context, settings ports.Settings, cfg *config.Config) (apiKey, model string, err error) {
	apiKey, ok, err := settings.Get(ctx, internal.SettingAPIKey)
	if err != nil {
		return "", "", fmt.Errorf("reading stored API key: %w", err)
	}
	if !ok || apiKey == "" {
		apiKey = cfg.Provider.APIKey
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return "", "", errors.New("no API key configured: set GEMINI_API_KEY, provider.api_key, or the llm.api_key setting")
	}

	model, ok, err = settings.Get(ctx, internal.SettingModel)
	if err != nil {
		return "", "", fmt.Errorf("reading stored model: %w", err)
	}
	if !ok || model == "" {
		model = cfg.Provider.Model
	}
	if model == "" {
		model = internal.DefaultModel
	}
	return apiKey, model, nil
}
