package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/messaging/uazapi"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// ProviderSelectionConfig captures what is needed to build the outbound
// messenger.
type ProviderSelectionConfig struct {
	BaseURL            string
	Token              string
	InstanceTokensJSON string
	Timeout            time.Duration
}

// BuildReplyMessenger returns the UazAPI dispatcher when any token is
// configured. Otherwise replies are only logged, which keeps local runs
// usable; the second return value names the selected messenger and the
// third explains a fallback.
func BuildReplyMessenger(cfg ProviderSelectionConfig, logger *logging.Logger) (conversation.ReplyMessenger, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	tokens, err := uazapi.ParseInstanceTokens(cfg.InstanceTokensJSON)
	if err != nil {
		logger.Error("ignoring invalid UAZAPI_INSTANCE_TOKENS_JSON", "error", err)
		tokens = map[string]string{}
	}
	if strings.TrimSpace(cfg.Token) == "" && len(tokens) == 0 {
		return NewLogMessenger(logger), "log", "UAZAPI_TOKEN and UAZAPI_INSTANCE_TOKENS_JSON missing"
	}
	client, err := uazapi.New(uazapi.Config{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return NewLogMessenger(logger), "log", err.Error()
	}
	return uazapi.NewDispatcher(client, tokens, logger), "uazapi", ""
}

// LogMessenger writes replies to the log instead of a gateway.
type LogMessenger struct {
	logger *logging.Logger
}

func NewLogMessenger(logger *logging.Logger) *LogMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogMessenger{logger: logger}
}

var _ conversation.ReplyMessenger = (*LogMessenger)(nil)

func (m *LogMessenger) SendReply(_ context.Context, reply conversation.OutboundReply) (string, error) {
	id := "log-" + uuid.NewString()
	m.logger.Info("outbound reply (not sent)",
		"tenant_id", reply.TenantID,
		"instance", reply.Instance,
		"conversation_id", reply.ConversationID,
		"to", reply.To,
		"body", reply.Body,
		"gateway_message_id", id,
	)
	return id, nil
}
