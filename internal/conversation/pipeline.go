package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/events"
	"github.com/wolfman30/clinic-concierge/internal/inbox"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/internal/tenancy"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
	"go.opentelemetry.io/otel/attribute"
)

// ProcessedProvider namespaces idempotency claims for gateway messages.
const ProcessedProvider = "uazapi"

// Outcome describes how Process finished.
type Outcome string

const (
	OutcomeReplied   Outcome = "replied"
	OutcomeUnmapped  Outcome = "unmapped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
)

// PipelineDeps are the collaborators of a Pipeline. Processed, Clinics,
// Notifier and Metrics are optional.
type PipelineDeps struct {
	Resolver  tenancy.InstanceResolver
	Processed events.ProcessedStore
	Engine    *inbox.Engine
	Replier   Replier
	Clinics   ClinicConfigs
	Messenger ReplyMessenger
	Notifier  EscalationNotifier
	Metrics   *metrics.PipelineMetrics
	// HistoryTurns is how many prior messages are loaded for the prompt.
	HistoryTurns int
}

// Pipeline is the background unit of work for one inbound message.
type Pipeline struct {
	deps   PipelineDeps
	logger *logging.Logger
}

func NewPipeline(deps PipelineDeps, logger *logging.Logger) *Pipeline {
	if deps.Resolver == nil {
		panic("conversation: instance resolver cannot be nil")
	}
	if deps.Engine == nil {
		panic("conversation: inbox engine cannot be nil")
	}
	if deps.Replier == nil {
		panic("conversation: replier cannot be nil")
	}
	if deps.Messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if deps.HistoryTurns <= 0 {
		deps.HistoryTurns = defaultHistoryTurns
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{deps: deps, logger: logger}
}

// Process resolves the tenant, upserts contact, conversation and inbound
// message, orchestrates a reply, records it and dispatches it. Mapping
// problems and duplicates end with a nil error; only storage failures are
// returned.
func (p *Pipeline) Process(ctx context.Context, msg events.WhatsAppMessageReceivedV1) (Outcome, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.pipeline")
	defer span.End()
	span.SetAttributes(
		attribute.String("instance", msg.Instance),
		attribute.String("external_message_id", msg.ExternalMessageID),
	)
	log := p.logger.With("instance", msg.Instance, "external_message_id", msg.ExternalMessageID)

	tenantID, err := p.deps.Resolver.ResolveTenant(ctx, msg.Instance)
	if err != nil {
		var unmapped *tenancy.UnmappedInstanceError
		if errors.As(err, &unmapped) {
			log.Warn("dropping message for unmapped instance")
			p.deps.Metrics.ObserveDropped("unmapped_instance")
			return OutcomeUnmapped, nil
		}
		return "", fmt.Errorf("conversation: resolve tenant: %w", err)
	}
	ctx = tenancy.WithTenantID(ctx, tenantID)
	log = log.With("tenant_id", tenantID)
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	if strings.TrimSpace(msg.Phone) == "" {
		log.Warn("dropping message without phone")
		p.deps.Metrics.ObserveDropped("no_phone")
		return OutcomeSkipped, nil
	}

	claimID := ""
	if p.deps.Processed != nil && msg.ExternalMessageID != "" {
		id := tenantID + ":" + msg.ExternalMessageID
		claimed, err := p.deps.Processed.Claim(ctx, ProcessedProvider, id)
		switch {
		case err != nil:
			// The message row's unique key still guards against duplicates.
			log.Warn("processed-event claim failed, continuing", "error", err)
		case !claimed:
			log.Info("message already claimed by another worker")
			p.deps.Metrics.ObserveDropped("duplicate")
			return OutcomeDuplicate, nil
		default:
			claimID = id
		}
	}
	// Until the inbound row exists a failure must not leave the claim behind,
	// or every redelivery would be dropped as a duplicate.
	fail := func(err error) (Outcome, error) {
		p.releaseClaim(ctx, log, claimID)
		return "", err
	}

	engine := p.deps.Engine
	contact, err := engine.EnsureContact(ctx, tenantID, msg.Phone, msg.DisplayName, msg.Text)
	if err != nil {
		return fail(err)
	}
	conv, err := engine.EnsureOpenConversation(ctx, tenantID, contact)
	if err != nil {
		return fail(err)
	}
	log = log.With("conversation_id", conv.ID)

	inbound, created, err := engine.RecordMessage(ctx, inbox.MessageInput{
		TenantID:          tenantID,
		ConversationID:    conv.ID,
		Direction:         inbox.DirectionInbound,
		Content:           msg.Text,
		MessageType:       msg.MessageType,
		MediaURL:          msg.MediaURL,
		ExternalMessageID: msg.ExternalMessageID,
	})
	if err != nil {
		return fail(err)
	}
	if !created {
		log.Info("duplicate inbound message ignored")
		p.deps.Metrics.ObserveDropped("duplicate")
		return OutcomeDuplicate, nil
	}

	clinicCfg := p.clinicConfig(ctx, tenantID, log)
	history, err := p.history(ctx, conv.ID, inbound.ID)
	if err != nil {
		log.Warn("history unavailable, replying without it", "error", err)
	}

	result := p.deps.Replier.Reply(ctx, ReplyRequest{
		TenantID:       tenantID,
		ConversationID: conv.ID,
		Clinic:         clinicCfg,
		DisplayName:    contact.Name,
		History:        history,
		Inbound:        inbound.Preview(),
	})

	if _, _, err := engine.RecordMessage(ctx, inbox.MessageInput{
		TenantID:       tenantID,
		ConversationID: conv.ID,
		Direction:      inbox.DirectionOutbound,
		Content:        result.Text,
		MessageType:    inbox.TypeText,
	}); err != nil {
		return "", err
	}

	if result.NeedsHuman {
		p.escalate(ctx, log, clinicCfg, conv, inbound)
	}

	p.dispatch(ctx, log, OutboundReply{
		TenantID:       tenantID,
		Instance:       msg.Instance,
		ConversationID: conv.ID,
		To:             msg.Phone,
		Body:           result.Text,
	})

	log.Info("inbound message answered",
		"tool_calls", len(result.ToolCalls),
		"needs_human", result.NeedsHuman,
	)
	return OutcomeReplied, nil
}

func (p *Pipeline) releaseClaim(ctx context.Context, log *logging.Logger, claimID string) {
	if claimID == "" {
		return
	}
	if err := p.deps.Processed.Release(context.WithoutCancel(ctx), ProcessedProvider, claimID); err != nil {
		log.Error("failed to release processed-event claim", "error", err)
	}
}

func (p *Pipeline) clinicConfig(ctx context.Context, tenantID string, log *logging.Logger) *clinic.Config {
	if p.deps.Clinics == nil {
		return clinic.DefaultConfig(tenantID)
	}
	cfg, err := p.deps.Clinics.Get(ctx, tenantID)
	if err != nil || cfg == nil {
		log.Warn("clinic config unavailable, using defaults", "error", err)
		return clinic.DefaultConfig(tenantID)
	}
	return cfg
}

// history loads the prior turns, excluding the message being answered.
func (p *Pipeline) history(ctx context.Context, conversationID, currentID string) ([]ChatMessage, error) {
	msgs, err := p.deps.Engine.RecentHistory(ctx, conversationID, p.deps.HistoryTurns+1)
	if err != nil {
		return nil, err
	}
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == currentID {
			continue
		}
		text := m.Preview()
		if text == "" {
			continue
		}
		role := ChatRoleUser
		if m.Direction == inbox.DirectionOutbound {
			role = ChatRoleAssistant
		}
		out = append(out, ChatMessage{Role: role, Content: text})
	}
	if len(out) > p.deps.HistoryTurns {
		out = out[len(out)-p.deps.HistoryTurns:]
	}
	return out, nil
}

func (p *Pipeline) escalate(ctx context.Context, log *logging.Logger, cfg *clinic.Config, conv *inbox.Conversation, inbound *inbox.Message) {
	if err := p.deps.Engine.EscalateToHuman(ctx, conv.TenantID, conv.ID); err != nil {
		log.Error("failed to escalate conversation", "error", err)
		return
	}
	if p.deps.Notifier == nil {
		return
	}
	if err := p.deps.Notifier.NotifyEscalation(ctx, Escalation{
		Clinic:         cfg,
		ConversationID: conv.ID,
		Phone:          conv.Phone,
		DisplayName:    conv.DisplayName,
		LastMessage:    inbound.Preview(),
	}); err != nil {
		log.Warn("escalation notice failed", "error", err)
	}
}

// dispatch sends the reply once. A failed send leaves the recorded outbound
// message in place and is not retried.
func (p *Pipeline) dispatch(ctx context.Context, log *logging.Logger, reply OutboundReply) {
	started := time.Now()
	gatewayID, err := p.deps.Messenger.SendReply(ctx, reply)
	if err != nil {
		p.deps.Metrics.ObserveOutbound("failed")
		log.Error("failed to deliver reply", "error", err, "elapsed", time.Since(started).String())
		return
	}
	p.deps.Metrics.ObserveOutbound("sent")
	log.Debug("reply delivered", "gateway_message_id", gatewayID)
}
