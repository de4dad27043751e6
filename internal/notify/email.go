package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const defaultFromName = "Clinic Concierge"

// Tag keys attached to outgoing mail so provider events (bounces, opens)
// can be traced back to a tenant and conversation.
const (
	TagTenant       = "tenant_id"
	TagConversation = "conversation_id"
)

// EmailSender delivers one message.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single-recipient e-mail.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text
	HTML    string
	// FromName overrides the sender's display name, usually with the
	// clinic's own name.
	FromName string
	// Category groups messages in the provider dashboard ("escalation").
	Category string
	Tags     map[string]string
}

// Validate rejects messages no provider would accept.
func (m EmailMessage) Validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(m.To)); err != nil {
		return fmt.Errorf("notify: invalid recipient %q: %w", m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("notify: subject is required")
	}
	if m.Body == "" && m.HTML == "" {
		return errors.New("notify: empty message body")
	}
	return nil
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig configures SendGridSender.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type SendGridSender struct {
	client    sendgridAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	from := sgmail.NewEmail(firstNonEmpty(msg.FromName, s.fromName), s.fromEmail)
	message := sgmail.NewSingleEmail(from, msg.Subject, sgmail.NewEmail(msg.ToName, msg.To), msg.Body, html)
	if msg.Category != "" {
		message.AddCategories(msg.Category)
	}
	for k, v := range msg.Tags {
		if v != "" {
			message.SetCustomArg(k, v)
		}
	}

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send to %s: %w", msg.To, err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body, "tenant_id", msg.Tags[TagTenant])
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}
	s.logger.Info("email sent via sendgrid", "to", msg.To, "category", msg.Category, "tenant_id", msg.Tags[TagTenant])
	return nil
}

// StubEmailSender logs instead of sending.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.Info("email not sent, no provider configured",
		"to", msg.To,
		"subject", msg.Subject,
		"tenant_id", msg.Tags[TagTenant],
	)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
