package uazapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/tenancy"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// ErrNoToken is returned when neither the instance nor the default token is set.
var ErrNoToken = errors.New("uazapi: no token for instance")

// Receipt records the outcome of one send.
type Receipt struct {
	GatewayMessageID string
	Instance         string
	SentAt           time.Time
}

// Dispatcher sends replies through the gateway instance that received the
// original message. Each reply is attempted once.
type Dispatcher struct {
	client *Client
	tokens map[string]string
	logger *logging.Logger
	now    func() time.Time
}

var _ conversation.ReplyMessenger = (*Dispatcher)(nil)

// NewDispatcher builds a Dispatcher. tokens maps instance names to their
// gateway tokens; the client's own token is used for unlisted instances.
// Instance names match case-insensitively, as in tenant resolution.
func NewDispatcher(client *Client, tokens map[string]string, logger *logging.Logger) *Dispatcher {
	if client == nil {
		panic("uazapi: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	normalized := make(map[string]string, len(tokens))
	for instance, token := range tokens {
		instance = tenancy.NormalizeInstance(instance)
		token = strings.TrimSpace(token)
		if instance == "" || token == "" {
			continue
		}
		normalized[instance] = token
	}
	return &Dispatcher{client: client, tokens: normalized, logger: logger, now: time.Now}
}

// ParseInstanceTokens decodes a JSON object of instance name to token.
func ParseInstanceTokens(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]string{}, nil
	}
	var tokens map[string]string
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, fmt.Errorf("uazapi: parse instance tokens: %w", err)
	}
	return tokens, nil
}

func (d *Dispatcher) clientFor(instance string) (*Client, error) {
	if token, ok := d.tokens[tenancy.NormalizeInstance(instance)]; ok {
		return d.client.WithToken(token), nil
	}
	if d.client.token == "" {
		return nil, fmt.Errorf("%w %q", ErrNoToken, instance)
	}
	return d.client, nil
}

// Send delivers text to phone through instance.
func (d *Dispatcher) Send(ctx context.Context, instance, phone, text string) (Receipt, error) {
	client, err := d.clientFor(instance)
	if err != nil {
		return Receipt{}, err
	}
	resp, err := client.SendText(ctx, phone, text)
	if err != nil {
		return Receipt{}, fmt.Errorf("uazapi: send to instance %s: %w", instance, err)
	}
	return Receipt{
		GatewayMessageID: resp.GatewayID(),
		Instance:         instance,
		SentAt:           d.now().UTC(),
	}, nil
}

// SendReply implements conversation.ReplyMessenger.
func (d *Dispatcher) SendReply(ctx context.Context, reply conversation.OutboundReply) (string, error) {
	receipt, err := d.Send(ctx, reply.Instance, reply.To, reply.Body)
	if err != nil {
		d.logger.Warn("uazapi send failed",
			"tenant_id", reply.TenantID,
			"instance", reply.Instance,
			"conversation_id", reply.ConversationID,
			"error", err,
		)
		return "", err
	}
	d.logger.Debug("uazapi message sent",
		"tenant_id", reply.TenantID,
		"instance", reply.Instance,
		"gateway_message_id", receipt.GatewayMessageID,
	)
	return receipt.GatewayMessageID, nil
}
