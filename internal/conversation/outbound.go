package conversation

import (
	"context"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
)

// ReplyMessenger delivers AI replies back to the patient through the
// messaging gateway.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) (string, error)
}

// OutboundReply carries the data required to push a message to the patient.
type OutboundReply struct {
	TenantID       string
	Instance       string
	ConversationID string
	To             string
	Body           string
}

// EscalationNotifier tells clinic staff a conversation needs a human.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, esc Escalation) error
}

// Escalation describes a conversation handed over to staff.
type Escalation struct {
	Clinic         *clinic.Config
	ConversationID string
	Phone          string
	DisplayName    string
	LastMessage    string
}

// ClinicConfigs resolves per-tenant clinic configuration.
type ClinicConfigs interface {
	Get(ctx context.Context, tenantID string) (*clinic.Config, error)
}

// Replier produces the answer to one inbound message.
type Replier interface {
	Reply(ctx context.Context, req ReplyRequest) ReplyResult
}
