package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/llama-agent/internal/agent"
	"github.com/haasonsaas/llama-agent/internal/config"
	"github.com/haasonsaas/llama-agent/internal/mcp"
	"github.com/haasonsaas/llama-agent/internal/model"
	"github.com/haasonsaas/llama-agent/internal/observability"
	"github.com/haasonsaas/llama-agent/internal/queue"
	"github.com/haasonsaas/llama-agent/internal/session"
)

// stack is every long-lived component wired for one agentd process.
type stack struct {
	cfg            *config.AgentConfig
	logger         *slog.Logger
	metrics        *observability.Metrics
	tracerShutdown func(context.Context) error
	sessions       *session.MemoryStore
	sweeper        *session.Sweeper
	loader         *model.Loader
	queue          *queue.Queue
	pool           *mcp.Manager
	runtime        *agent.Runtime
}

// buildStack loads cfg from path and wires every component up to (but
// not including) the native inference backend: model realization needs
// a cgo binding to a real GGUF runtime that this build does not embed,
// so the wired queue.Engine is unrealizedEngine, which fails generation
// requests with a clear error while leaving session/MCP/health
// endpoints fully functional.
func buildStack(path string, debug bool) (*stack, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	metrics := observability.NewMetrics()
	_, tracerShutdown := observability.NewTracer(observability.TraceConfig{ServiceName: cfg.Tracing.ServiceName})

	sessions := session.NewMemoryStore(cfg.Session)
	sweeper := session.NewSweeper(sessions, "@every 1m", logger)

	loader, err := model.NewLoader(cfg.Model, model.NewHTTPRepo(), unrealizedBackend{}, logger)
	if err != nil {
		return nil, fmt.Errorf("build model loader: %w", err)
	}

	engine := &unrealizedEngine{}
	q, err := queue.New(cfg.Queue, engine, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("build queue: %w", err)
	}

	pool := mcp.NewManager(&cfg.MCP, logger)

	runtime := agent.New(cfg.Agent, sessions, q, pool, logger, metrics)
	runtime.SetLoader(loader)

	return &stack{
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics,
		tracerShutdown: tracerShutdown,
		sessions:       sessions,
		sweeper:        sweeper,
		loader:         loader,
		queue:          q,
		pool:           pool,
		runtime:        runtime,
	}, nil
}

// start begins the queue worker, session sweeper, and MCP connections,
// and attempts the model load so selection/cache/download failures
// surface immediately. The final native realization step always fails
// (see unrealizedBackend); that one failure is logged, not fatal, so
// the rest of the stack stays usable.
func (s *stack) start(ctx context.Context) error {
	if _, err := s.loader.Load(ctx, s.cfg.Model); err != nil {
		s.logger.Warn("model load incomplete: no native inference backend linked into this build", "error", err)
	}

	s.queue.Start()
	if err := s.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	if s.cfg.MCP.Enabled {
		if err := s.pool.Start(ctx); err != nil {
			return fmt.Errorf("start mcp pool: %w", err)
		}
	}
	return nil
}

// stop drains the queue, stops the sweeper, and disconnects MCP
// servers, each bounded by timeout.
func (s *stack) stop(ctx context.Context, timeout time.Duration) {
	s.sweeper.Stop()
	s.queue.Stop(timeout)
	s.pool.Stop(ctx, timeout)
	if s.tracerShutdown != nil {
		_ = s.tracerShutdown(ctx)
	}
}

// unrealizedBackend is the model.Backend used until a real native
// inference library is linked in. Realize always fails; selection,
// caching, and download logic are still fully exercised up to this
// point.
type unrealizedBackend struct{}

func (unrealizedBackend) Realize(ctx context.Context, path string, batchSize int, debug bool) (any, error) {
	return nil, fmt.Errorf("native inference backend not linked into this build: would realize %q (batch_size=%d)", path, batchSize)
}

// unrealizedEngine is the queue.Engine used until a real native
// inference library is linked in. Every call fails clearly rather than
// silently producing garbage tokens, so /health and the MCP/session
// surfaces stay usable while generation requests surface the gap.
type unrealizedEngine struct{}

func (unrealizedEngine) Tokenize(prompt string) ([]int32, error) {
	return nil, fmt.Errorf("native inference backend not linked into this build")
}

func (unrealizedEngine) Detokenize(tokenID int32) (string, error) {
	return "", fmt.Errorf("native inference backend not linked into this build")
}

func (unrealizedEngine) EOSTokenID() int32 { return 0 }

func (unrealizedEngine) Decode(ctx context.Context, promptTokens []int32, batchSize int, params queue.SamplingParams, onToken func(tokenID int32, piece string) bool) error {
	return fmt.Errorf("native inference backend not linked into this build")
}
