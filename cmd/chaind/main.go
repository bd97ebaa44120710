// chaind is the workflow execution service: it accepts workflow documents
// over HTTP and runs them through the chain engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/lyzr/agentchain/chain"
	"github.com/lyzr/agentchain/common/cache"
	"github.com/lyzr/agentchain/common/config"
	"github.com/lyzr/agentchain/common/logger"
	"github.com/lyzr/agentchain/common/sdk"
	"github.com/lyzr/agentchain/common/store"
	"github.com/lyzr/agentchain/llm"
	"github.com/lyzr/agentchain/tool"
)

func main() {
	cfg, err := config.Load("chaind")
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, cleanup, err := buildEngine(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.POST("/v1/runs", handleRun(eng, log))

	go func() {
		addr := ":" + strconv.Itoa(cfg.Service.Port)
		log.Info("chaind listening", "addr", addr, "environment", cfg.Service.Environment)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

// buildEngine wires the configured backends: Redis for cache and context
// store when enabled, Postgres overriding the context store when enabled,
// in-memory fallbacks otherwise.
func buildEngine(ctx context.Context, cfg *config.Config, log *logger.Logger) (*chain.Engine, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var c cache.Cache
	var st store.ContextStore

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { client.Close() })
		c = cache.NewRedisCache(client, "", log)
		st = store.NewRedisStore(client, cfg.Redis.TTL, log)
	}

	if cfg.Database.Enabled {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, pool.Close)
		pg, err := store.NewPostgresStore(ctx, pool, log)
		if err != nil {
			return nil, cleanup, err
		}
		st = pg
	}

	var svc sdk.LLMService
	if cfg.OpenAI.APIKey != "" {
		svc = llm.NewOpenAIService(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, log)
	}

	tools := tool.NewRegistry()
	tool.RegisterBuiltins(tools)

	eng := chain.New(chain.EngineOpts{
		Logger:  log,
		Options: cfg.EngineOptions(),
		Cache:   c,
		Store:   st,
		Tools:   tools,
		LLM:     svc,
	})
	return eng, cleanup, nil
}

type runRequest struct {
	Workflow       json.RawMessage        `json:"workflow"`
	InitialContext map[string]interface{} `json:"initial_context,omitempty"`
	ExecutionID    string                 `json:"execution_id,omitempty"`
}

func handleRun(eng *chain.Engine, log *logger.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req runRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if len(req.Workflow) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "workflow is required"})
		}

		spec, err := sdk.ParseWorkflowSpec(req.Workflow)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		result, err := eng.RunWithExecutionID(c.Request().Context(), spec, req.InitialContext, req.ExecutionID)
		if err != nil && result == nil {
			// Rejected before any node ran.
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	}
}
