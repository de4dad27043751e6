package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var conversationTracer = otel.Tracer("clinic-concierge.conversation")

// FallbackReply is sent when the model cannot be reached; the conversation
// is also flagged for a human.
const FallbackReply = "Desculpe, tive um problema técnico ao processar sua solicitação."

var errEmptyReply = errors.New("conversation: model returned an empty reply")

const (
	defaultHistoryTurns = 6
	defaultLLMTimeout   = 30 * time.Second
	defaultToolTimeout  = 20 * time.Second
	defaultWidenDays    = 3
	replyTemperature    = 0.7
)

// ReplyRequest is everything needed to answer one inbound message.
type ReplyRequest struct {
	TenantID       string
	ConversationID string
	Clinic         *clinic.Config
	DisplayName    string
	History        []ChatMessage
	Inbound        string
}

// ToolCallTrace records one executed tool call.
type ToolCallTrace struct {
	Name      string        `json:"name"`
	Arguments string        `json:"arguments"`
	Result    string        `json:"result"`
	Duration  time.Duration `json:"duration"`
}

// ReplyResult is the orchestrator outcome. Text is never empty.
type ReplyResult struct {
	Text       string
	NeedsHuman bool
	ToolCalls  []ToolCallTrace
}

// UsedTools reports whether a tool round ran.
func (r ReplyResult) UsedTools() bool { return len(r.ToolCalls) > 0 }

// OrchestratorConfig tunes the orchestrator; zero values take defaults.
type OrchestratorConfig struct {
	Provider      string
	HistoryTurns  int
	LLMTimeout    time.Duration
	ToolTimeout   time.Duration
	WidenStrategy WidenStrategy
	WidenMaxDays  int
	Metrics       *metrics.PipelineMetrics
	Now           func() time.Time
}

// Orchestrator drives the bounded two-round tool protocol: one model call
// that may request tools, one sequential tool execution pass, and one
// tool-less model call that produces the final text.
type Orchestrator struct {
	llm        LLMClient
	schedulers SchedulerProvider
	directory  DirectoryCache
	cfg        OrchestratorConfig
	logger     *logging.Logger
}

func NewOrchestrator(llm LLMClient, schedulers SchedulerProvider, directory DirectoryCache, cfg OrchestratorConfig, logger *logging.Logger) *Orchestrator {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if schedulers == nil {
		panic("conversation: scheduler provider cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = defaultLLMTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaultToolTimeout
	}
	if cfg.WidenStrategy == "" {
		cfg.WidenStrategy = WidenNone
	}
	if cfg.WidenMaxDays <= 0 {
		cfg.WidenMaxDays = defaultWidenDays
	}
	if cfg.Provider == "" {
		cfg.Provider = "llm"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		llm:        llm,
		schedulers: schedulers,
		directory:  directory,
		cfg:        cfg,
		logger:     logger,
	}
}

// HistoryTurns is the number of prior messages included in the prompt.
func (o *Orchestrator) HistoryTurns() int { return o.cfg.HistoryTurns }

func (o *Orchestrator) Reply(ctx context.Context, req ReplyRequest) ReplyResult {
	ctx, span := conversationTracer.Start(ctx, "conversation.reply")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("conversation_id", req.ConversationID),
	)

	cfg := req.Clinic
	if cfg == nil {
		cfg = clinic.DefaultConfig(req.TenantID)
	}
	now := o.cfg.Now()

	history := req.History
	if len(history) > o.cfg.HistoryTurns {
		history = history[len(history)-o.cfg.HistoryTurns:]
	}
	messages := make([]ChatMessage, 0, len(history)+4)
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: req.Inbound})

	system := []string{BuildSystemPrompt(cfg, now)}
	if c := contactContext(req.DisplayName); c != "" {
		system = append(system, c)
	}

	first, err := o.complete(ctx, LLMRequest{
		System:      system,
		Messages:    messages,
		Tools:       ToolDefinitions(),
		Temperature: replyTemperature,
	})
	if err != nil {
		return o.fallback(req, err)
	}
	if len(first.ToolCalls) == 0 {
		if first.Text == "" {
			return o.fallback(req, errEmptyReply)
		}
		return ReplyResult{Text: first.Text}
	}

	scheduler, schedErr := o.schedulers.SchedulerFor(ctx, req.TenantID)
	if schedErr != nil {
		o.logger.Warn("scheduler unavailable for tenant", "tenant_id", req.TenantID, "error", schedErr)
		scheduler = nil
	}
	executor := &toolExecutor{
		tenantID:     req.TenantID,
		scheduler:    scheduler,
		directory:    o.directory,
		today:        dateOnly(now.In(cfg.Location())),
		period:       DetectPeriod(req.Inbound),
		widen:        o.cfg.WidenStrategy,
		widenMaxDays: o.cfg.WidenMaxDays,
		timeout:      o.cfg.ToolTimeout,
		metrics:      o.cfg.Metrics,
		logger:       o.logger,
	}

	result := ReplyResult{}
	messages = append(messages, ChatMessage{Role: ChatRoleAssistant, Content: first.Text, ToolCalls: first.ToolCalls})
	for _, call := range first.ToolCalls {
		started := time.Now()
		out := executor.Execute(ctx, call)
		result.ToolCalls = append(result.ToolCalls, ToolCallTrace{
			Name:      call.Name,
			Arguments: call.Arguments,
			Result:    out,
			Duration:  time.Since(started),
		})
		messages = append(messages, ChatMessage{
			Role:       ChatRoleTool,
			Content:    out,
			ToolCallID: call.ID,
			Name:       call.Name,
		})
	}

	// Second round offers no tools; any tool calls it returns are ignored.
	second, err := o.complete(ctx, LLMRequest{
		System:      system,
		Messages:    messages,
		Temperature: replyTemperature,
	})
	if err != nil {
		fb := o.fallback(req, err)
		fb.ToolCalls = result.ToolCalls
		return fb
	}
	if second.Text == "" {
		fb := o.fallback(req, errEmptyReply)
		fb.ToolCalls = result.ToolCalls
		return fb
	}
	result.Text = second.Text
	return result
}

func (o *Orchestrator) complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()
	resp, err := o.llm.Complete(callCtx, req)
	if err != nil {
		o.cfg.Metrics.ObserveLLMCall(o.cfg.Provider, "error")
		return LLMResponse{}, err
	}
	o.cfg.Metrics.ObserveLLMCall(o.cfg.Provider, "ok")
	resp.Text = strings.TrimSpace(resp.Text)
	return resp, nil
}

func (o *Orchestrator) fallback(req ReplyRequest, err error) ReplyResult {
	o.logger.Error("llm call failed, replying with fallback",
		"tenant_id", req.TenantID,
		"conversation_id", req.ConversationID,
		"error", err,
	)
	return ReplyResult{Text: FallbackReply, NeedsHuman: true}
}
