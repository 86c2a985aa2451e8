// cmd/insight-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"insight-engine/internal/cache"
	"insight-engine/internal/catalog"
	"insight-engine/internal/classifier"
	"insight-engine/internal/common/config"
	"insight-engine/internal/common/database"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/common/observability"
	"insight-engine/internal/dataagent"
	"insight-engine/internal/executor"
	"insight-engine/internal/llm"
	"insight-engine/internal/memory"
	"insight-engine/internal/pipeline"
	"insight-engine/internal/presenter"
	"insight-engine/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zlog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zlog.Sync()
	log := logger.NewZapAdapter(zlog)

	log.Info("starting insight engine", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	ctx := context.Background()

	// Catalog invariant violations are programmer errors; refuse to boot.
	cat, err := catalog.Default()
	if err != nil {
		zlog.Fatal("catalog load failed", zap.Error(err))
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zlog.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := pg.Ping(pingCtx); err != nil {
		log.Warn("postgres unreachable at startup, continuing", map[string]interface{}{
			"error": err.Error(),
		})
	}
	cancelPing()

	// Redis backs the chat memory; the engine runs without it.
	var memStore *memory.Store
	redisClient, err := database.NewRedis(cfg.Database.Redis)
	if err == nil {
		pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
		if pingErr := redisClient.Ping(pingCtx); pingErr != nil {
			log.Warn("redis unreachable, chat memory disabled", map[string]interface{}{
				"error": pingErr.Error(),
			})
			memStore = memory.New(nil, log)
		} else {
			memStore = memory.New(redisClient.GetClient(), log)
			defer redisClient.Close()
		}
		cancelPing()
	} else {
		memStore = memory.New(nil, log)
	}

	llmClient := buildLLMClient(ctx, cfg, log)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	resultCache := cache.New(time.Duration(cfg.Engine.CacheTTLSeconds) * time.Second)
	exec := executor.New(pg.GetDB(), cat, time.Duration(cfg.Engine.QueryTimeoutSeconds)*time.Second, log)

	var selectionLLM *llm.Client
	if cfg.Engine.UseLLMForQuerySelection {
		selectionLLM = llmClient
	}
	var narrativeLLM *llm.Client
	if cfg.Engine.UseLLMForNarrative {
		narrativeLLM = llmClient
	}

	cls := classifier.New(llmClient, cfg.Engine.ClarifyPolicy, log)
	agent := dataagent.New(cat, exec, resultCache, selectionLLM, cfg.Engine.QueryConcurrency, log)
	builder := presenter.New(narrativeLLM, log)
	orch := pipeline.New(cls, agent, builder, memStore, obs, log)

	srv := server.New(cfg, orch, memStore, cat, resultCache, pg, log)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info("http server listening", map[string]interface{}{"port": cfg.Server.Port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", map[string]interface{}{"error": err.Error()})
	}
}

// buildLLMClient assembles the failover client from configured providers.
// Returns nil when the primary provider has no credentials or fails to
// initialise (a configured fallback alone is not used); every LLM-dependent path
// falls back to its deterministic sibling in that case.
func buildLLMClient(ctx context.Context, cfg *config.Config, log logger.Logger) *llm.Client {
	timeout := time.Duration(cfg.Engine.LLMTimeoutSeconds) * time.Second

	if cfg.LLM.Primary.APIKey == "" {
		log.Info("no llm credentials configured, running deterministic-only", nil)
		return nil
	}

	primary, err := llm.NewProvider(ctx, cfg.LLM.Primary)
	if err != nil {
		log.Warn("primary llm provider init failed, running deterministic-only", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	var fallback llm.Provider
	if cfg.LLM.Fallback.Provider != "" && cfg.LLM.Fallback.APIKey != "" {
		fallback, err = llm.NewProvider(ctx, cfg.LLM.Fallback)
		if err != nil {
			log.Warn("fallback llm provider init failed", map[string]interface{}{
				"error": err.Error(),
			})
			fallback = nil
		}
	}

	return llm.NewClient(primary, fallback, timeout, log)
}
