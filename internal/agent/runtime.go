package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/haasonsaas/llama-agent/internal/mcp"
	"github.com/haasonsaas/llama-agent/internal/model"
	"github.com/haasonsaas/llama-agent/internal/observability"
	"github.com/haasonsaas/llama-agent/internal/queue"
	"github.com/haasonsaas/llama-agent/internal/session"
	"github.com/haasonsaas/llama-agent/internal/template"
	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

var tracer = otel.Tracer("github.com/haasonsaas/llama-agent/internal/agent")

// Config tunes the orchestrator loop itself, independent of the queue,
// session store, and MCP pool it is handed.
type Config struct {
	// MaxToolCallIterations caps how many render-enqueue-parse-execute
	// round trips one Generate/GenerateStream call may take. Default 5.
	MaxToolCallIterations int `yaml:"max_tool_call_iterations"`
	// ModelSource selects the chat-template family (see internal/template.DetectFamily).
	ModelSource string           `yaml:"model_source"`
	Validation  ValidationConfig `yaml:"validation"`
	ToolExec    ToolExecConfig   `yaml:"tool_exec"`
	Dependency  DependencyConfig `yaml:"dependency"`
}

// DefaultConfig returns the orchestrator's default tuning.
func DefaultConfig() Config {
	return Config{
		MaxToolCallIterations: 5,
		Validation:            DefaultValidationConfig(),
		ToolExec:              DefaultToolExecConfig(),
		Dependency:            DefaultDependencyConfig(),
	}
}

func (c Config) normalized() Config {
	if c.MaxToolCallIterations <= 0 {
		c.MaxToolCallIterations = 5
	}
	c.Validation = c.Validation.normalized()
	c.ToolExec = c.ToolExec.normalized()
	c.Dependency = c.Dependency.normalized()
	return c
}

// Runtime is the top-level agent: session store + inference queue + MCP
// pool + chat-template renderer, wired into the generate/generate_stream
// loop.
type Runtime struct {
	cfg      Config
	sessions session.Store
	queue    *queue.Queue
	pool     *mcp.Manager
	renderer *template.Renderer
	toolExec *ToolExecutor
	logger   *slog.Logger
	metrics  *observability.Metrics
	loader   *model.Loader
}

// New wires a Runtime from its already-constructed dependencies. The
// caller owns starting/stopping queue and pool.
func New(cfg Config, sessions session.Store, q *queue.Queue, pool *mcp.Manager, logger *slog.Logger, metrics *observability.Metrics) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	cfg = cfg.normalized()
	return &Runtime{
		cfg:      cfg,
		sessions: sessions,
		queue:    q,
		pool:     pool,
		renderer: template.NewRenderer(),
		toolExec: NewToolExecutor(pool, cfg.ToolExec, logger, metrics),
		logger:   logger.With("component", "agent_runtime"),
		metrics:  metrics,
	}
}

// SetEventCallback installs cb to receive tool lifecycle events from
// every subsequent Generate/GenerateStream/ExecuteTool call. Purely
// additive observability; it does not change the generate contract.
func (r *Runtime) SetEventCallback(cb agentmodel.EventCallback) {
	r.toolExec.SetEventCallback(cb)
}

// SetLoader attaches the model loader whose cache stats Health reports.
// Optional: Health omits ModelCache when no loader is attached.
func (r *Runtime) SetLoader(loader *model.Loader) {
	r.loader = loader
}

// CreateSession starts a new, empty session.
func (r *Runtime) CreateSession(ctx context.Context) (*agentmodel.Session, error) {
	sess, err := r.sessions.Create(ctx)
	if err == nil && r.metrics != nil {
		r.metrics.SessionCount.Set(float64(r.sessions.Len()))
	}
	return sess, err
}

// GetSession fetches a session by id.
func (r *Runtime) GetSession(ctx context.Context, id agentmodel.SessionID) (*agentmodel.Session, error) {
	return r.sessions.Get(ctx, id)
}

// UpdateSession overwrites the stored session's mutable fields
// (messages, MCP servers, available tools) with those of updated.
func (r *Runtime) UpdateSession(ctx context.Context, updated *agentmodel.Session) (*agentmodel.Session, error) {
	return r.sessions.Update(ctx, updated.ID, func(sess *agentmodel.Session) {
		sess.Messages = updated.Messages
		sess.MCPServers = updated.MCPServers
		sess.AvailableTools = updated.AvailableTools
	})
}

// DiscoverTools queries the MCP pool for every tool exposed by the
// servers the session references (or every connected server, if the
// session names none) and stores the result on the session.
func (r *Runtime) DiscoverTools(ctx context.Context, id agentmodel.SessionID) (*agentmodel.Session, error) {
	sess, err := r.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	byServer := r.pool.DiscoverTools()
	var allowed map[string]bool
	if len(sess.MCPServers) > 0 {
		allowed = make(map[string]bool, len(sess.MCPServers))
		for _, sc := range sess.MCPServers {
			allowed[sc.Name] = true
		}
	}

	var defs []agentmodel.ToolDefinition
	for serverName, tools := range byServer {
		if allowed != nil && !allowed[serverName] {
			continue
		}
		defs = append(defs, toolDefinitionsFromMCP(serverName, tools, r.logger)...)
	}

	return r.sessions.Update(ctx, id, func(s *agentmodel.Session) {
		s.AvailableTools = defs
	})
}

func toolDefinitionsFromMCP(serverName string, tools []*mcp.Tool, logger *slog.Logger) []agentmodel.ToolDefinition {
	defs := make([]agentmodel.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &params); err != nil {
				logger.Warn("tool input schema is not a JSON object, dropping schema", "tool", t.Name, "server", serverName, "error", err)
				params = nil
			}
		}
		defs = append(defs, agentmodel.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
			ServerName:  serverName,
		})
	}
	return defs
}

// ExecuteTool runs a single tool call directly, outside the generate
// loop, for callers that want to invoke a tool without a model turn.
func (r *Runtime) ExecuteTool(ctx context.Context, id agentmodel.SessionID, call agentmodel.ToolCall) (*agentmodel.ToolResult, error) {
	if _, err := r.sessions.Get(ctx, id); err != nil {
		return nil, err
	}
	result := r.toolExec.Execute(ctx, call)
	return &result, nil
}

// Generate runs the render -> enqueue -> parse -> execute -> append loop
// until a terminal iteration (no tool calls, or the iteration cap is
// reached) and returns that iteration's response.
func (r *Runtime) Generate(ctx context.Context, req agentmodel.GenerationRequest) (*agentmodel.GenerationResponse, error) {
	ctx, span := observability.StartSpan(ctx, tracer, "agent.Generate", attribute.String("session_id", string(req.SessionID)))
	defer span.End()
	resp, err := r.generate(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (r *Runtime) generate(ctx context.Context, req agentmodel.GenerationRequest) (*agentmodel.GenerationResponse, error) {
	var resp *agentmodel.GenerationResponse
	for iteration := 1; ; iteration++ {
		sess, err := r.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if err := validateGenerationRequest(sess, req, r.cfg.Validation); err != nil {
			return nil, err
		}

		prompt, err := r.renderer.RenderSession(sess, r.cfg.ModelSource)
		if err != nil {
			return nil, fmt.Errorf("render prompt: %w", err)
		}

		batchResp, err := r.submitBatch(ctx, prompt, req)
		if err != nil {
			return nil, err
		}

		calls := template.ExtractToolCalls(batchResp.Text, sess.AvailableTools, r.logger)
		if len(calls) > 0 {
			batchResp.FinishReason = agentmodel.FinishToolCall()
		}
		batchResp.Iterations = iteration
		resp = batchResp

		if len(calls) == 0 || iteration >= r.cfg.MaxToolCallIterations {
			if len(calls) > 0 {
				r.logger.Warn("tool-call iteration cap reached, returning with unexecuted calls",
					"session", req.SessionID, "iterations", iteration)
				resp.ToolCalls = calls
			}
			if _, err := r.sessions.AppendMessage(ctx, req.SessionID, agentmodel.Message{
				Role: agentmodel.RoleAssistant, Content: batchResp.Text, Timestamp: r.now(),
			}); err != nil {
				return nil, err
			}
			if r.metrics != nil {
				r.metrics.ToolCallIterations.Observe(float64(iteration))
			}
			return resp, nil
		}

		if _, err := r.sessions.AppendMessage(ctx, req.SessionID, agentmodel.Message{
			Role: agentmodel.RoleAssistant, Content: batchResp.Text, Timestamp: r.now(),
		}); err != nil {
			return nil, err
		}

		if err := r.dispatchAndAppend(ctx, req.SessionID, calls); err != nil {
			return nil, err
		}
	}
}

// GenerateStream behaves like Generate but the final iteration (the one
// whose output contains no tool calls, or that hits the iteration cap)
// delivers its chunks to onChunk in arrival order; intermediate
// iterations are only used internally to parse tool calls and never
// reach the caller. onChunk returning false stops delivery early but
// does not cancel the request.
func (r *Runtime) GenerateStream(ctx context.Context, req agentmodel.GenerationRequest, onChunk func(agentmodel.StreamChunk) bool) (*agentmodel.GenerationResponse, error) {
	ctx, span := observability.StartSpan(ctx, tracer, "agent.GenerateStream", attribute.String("session_id", string(req.SessionID)))
	defer span.End()
	resp, err := r.generateStream(ctx, req, onChunk)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (r *Runtime) generateStream(ctx context.Context, req agentmodel.GenerationRequest, onChunk func(agentmodel.StreamChunk) bool) (*agentmodel.GenerationResponse, error) {
	var resp *agentmodel.GenerationResponse
	for iteration := 1; ; iteration++ {
		sess, err := r.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if err := validateGenerationRequest(sess, req, r.cfg.Validation); err != nil {
			return nil, err
		}

		prompt, err := r.renderer.RenderSession(sess, r.cfg.ModelSource)
		if err != nil {
			return nil, fmt.Errorf("render prompt: %w", err)
		}

		out, err := r.submitStreaming(ctx, prompt, req)
		if err != nil {
			return nil, err
		}

		calls := template.ExtractToolCalls(out.text, sess.AvailableTools, r.logger)
		if len(calls) > 0 {
			out.finish = agentmodel.FinishToolCall()
		}

		iterResp := &agentmodel.GenerationResponse{
			Text: out.text, FinishReason: out.finish, TokensGenerated: out.tokens, Iterations: iteration,
		}
		resp = iterResp

		final := len(calls) == 0 || iteration >= r.cfg.MaxToolCallIterations
		if final {
			if len(calls) > 0 {
				r.logger.Warn("tool-call iteration cap reached, returning with unexecuted calls",
					"session", req.SessionID, "iterations", iteration)
				iterResp.ToolCalls = calls
			}
			for _, c := range out.chunks {
				if onChunk != nil && !onChunk(c) {
					break
				}
			}
		}

		if _, err := r.sessions.AppendMessage(ctx, req.SessionID, agentmodel.Message{
			Role: agentmodel.RoleAssistant, Content: out.text, Timestamp: r.now(),
		}); err != nil {
			return nil, err
		}

		if final {
			if r.metrics != nil {
				r.metrics.ToolCallIterations.Observe(float64(iteration))
			}
			return resp, nil
		}

		if err := r.dispatchAndAppend(ctx, req.SessionID, calls); err != nil {
			return nil, err
		}
	}
}

// decodeSettings translates a GenerationRequest's optional fields into
// the queue's decode parameters, applying defaults where unset.
func decodeSettings(req agentmodel.GenerationRequest) (maxTokens uint32, sampling queue.SamplingParams, stopping agentmodel.StoppingConfig) {
	maxTokens = 512
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		sampling.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		sampling.TopP = *req.TopP
	}
	if req.StoppingConfig != nil {
		stopping = *req.StoppingConfig
	}
	return maxTokens, sampling, stopping
}

// submitBatch translates a GenerationRequest into a queue.BatchRequest
// and waits for its reply.
func (r *Runtime) submitBatch(ctx context.Context, prompt string, req agentmodel.GenerationRequest) (*agentmodel.GenerationResponse, error) {
	maxTokens, sampling, stopping := decodeSettings(req)
	batch := queue.NewBatchRequest(ctx, prompt, maxTokens, sampling, req.StopTokens, stopping)
	if err := r.queue.Submit(batch); err != nil {
		return nil, err
	}
	return batch.Wait(ctx)
}

// streamed is the collected result of one streaming decode iteration:
// the full text (for tool-call parsing), every non-final chunk in
// arrival order (replayed to the caller only if this iteration turns
// out to be final), and the terminal finish reason/token count.
type streamed struct {
	text   string
	chunks []agentmodel.StreamChunk
	finish agentmodel.FinishReason
	tokens uint32
}

// submitStreaming translates a GenerationRequest into a
// queue.StreamingRequest, collects every chunk, and reconstructs the
// full text. The orchestrator only forwards chunks to its caller once
// it knows an iteration is final (see GenerateStream); until then every
// iteration's tokens must be collected in full to run the tool-call
// parser on the complete text.
func (r *Runtime) submitStreaming(ctx context.Context, prompt string, req agentmodel.GenerationRequest) (streamed, error) {
	maxTokens, sampling, stopping := decodeSettings(req)
	streamReq := queue.NewStreamingRequest(ctx, prompt, maxTokens, sampling, req.StopTokens, stopping)
	if err := r.queue.SubmitStreaming(streamReq); err != nil {
		return streamed{}, err
	}

	var out streamed
	var text strings.Builder
	for chunk := range streamReq.Chunks {
		if chunk.IsComplete {
			out.finish = chunk.FinishReason
			out.tokens = chunk.TokenCount
			continue
		}
		text.WriteString(chunk.Text)
		out.chunks = append(out.chunks, chunk)
	}
	if err := streamReq.Err(); err != nil {
		return streamed{}, err
	}
	out.text = text.String()
	return out, nil
}

// dispatchAndAppend runs the dependency analyzer over calls, executes
// them with the chosen strategy, and appends one Tool message per
// result.
func (r *Runtime) dispatchAndAppend(ctx context.Context, id agentmodel.SessionID, calls []agentmodel.ToolCall) error {
	var results []agentmodel.ToolResult
	switch AnalyzeDependency(calls, r.cfg.Dependency) {
	case Sequential:
		results = r.toolExec.ExecuteSequentially(ctx, calls)
	default:
		results = r.toolExec.ExecuteConcurrently(ctx, calls)
	}

	for i, res := range results {
		content := res.Error
		if content == "" {
			var text string
			if err := json.Unmarshal(res.Result, &text); err == nil {
				content = text
			} else {
				content = string(res.Result)
			}
		}
		if _, err := r.sessions.AppendMessage(ctx, id, agentmodel.Message{
			Role:       agentmodel.RoleTool,
			Content:    content,
			ToolCallID: string(res.CallID),
			ToolName:   calls[i].Name,
			Timestamp:  r.now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) now() time.Time { return time.Now() }

// Health reports the runtime's current liveness snapshot.
func (r *Runtime) Health(ctx context.Context) (HealthStatus, error) {
	status := HealthStatus{
		QueueDepth:   r.queue.Depth(),
		WorkerBusy:   r.queue.Busy(),
		SessionCount: r.sessions.Len(),
		MCPServers:   r.pool.ListServers(),
	}
	if r.loader != nil {
		stats := r.loader.CacheStats()
		status.ModelCache = &stats
	}
	return status, nil
}

// Shutdown stops the queue and MCP pool, each bounded by timeout.
func (r *Runtime) Shutdown(ctx context.Context, timeout time.Duration) error {
	r.queue.Stop(timeout)
	r.pool.Stop(ctx, timeout)
	return nil
}
