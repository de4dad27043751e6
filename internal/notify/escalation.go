package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const categoryEscalation = "escalation"

// EscalationNotifier e-mails a clinic's escalation recipients when a
// conversation is handed over to staff.
type EscalationNotifier struct {
	email  EmailSender
	logger *logging.Logger
	now    func() time.Time
}

var _ conversation.EscalationNotifier = (*EscalationNotifier)(nil)

func NewEscalationNotifier(email EmailSender, logger *logging.Logger) *EscalationNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationNotifier{email: email, logger: logger, now: time.Now}
}

type escalationView struct {
	ClinicName     string
	Contact        string
	Phone          string
	LastMessage    string
	ConversationID string
	At             string
}

// NotifyEscalation sends one e-mail per recipient. Every recipient is tried;
// the returned error joins the failures.
func (n *EscalationNotifier) NotifyEscalation(ctx context.Context, esc conversation.Escalation) error {
	if n == nil || n.email == nil {
		return nil
	}
	if esc.Clinic == nil || len(esc.Clinic.EscalationEmails) == 0 {
		n.logger.Debug("notify: no escalation recipients configured", "conversation_id", esc.ConversationID)
		return nil
	}
	cfg := esc.Clinic

	view := escalationView{
		ClinicName:     firstNonEmpty(cfg.Name, cfg.TenantID),
		Contact:        firstNonEmpty(esc.DisplayName, esc.Phone),
		Phone:          esc.Phone,
		LastMessage:    truncate(esc.LastMessage, 500),
		ConversationID: esc.ConversationID,
		At:             n.now().In(cfg.Location()).Format("02/01/2006 15:04"),
	}
	subject, err := render("subject", func(b *bytes.Buffer) error { return escalationSubject.Execute(b, view) })
	if err != nil {
		return err
	}
	text, err := render("text", func(b *bytes.Buffer) error { return escalationText.Execute(b, view) })
	if err != nil {
		return err
	}
	html, err := render("html", func(b *bytes.Buffer) error { return escalationHTML.Execute(b, view) })
	if err != nil {
		return err
	}

	var errs []error
	sent := 0
	for _, to := range cfg.EscalationEmails {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		msg := EmailMessage{
			To:       to,
			Subject:  subject,
			Body:     text,
			HTML:     html,
			FromName: cfg.Name,
			Category: categoryEscalation,
			Tags:     map[string]string{TagTenant: cfg.TenantID, TagConversation: esc.ConversationID},
		}
		if err := n.email.Send(ctx, msg); err != nil {
			n.logger.Error("notify: escalation email failed", "error", err, "to", to, "tenant_id", cfg.TenantID)
			errs = append(errs, err)
			continue
		}
		sent++
	}
	n.logger.Info("notify: escalation emails sent",
		"tenant_id", cfg.TenantID,
		"conversation_id", esc.ConversationID,
		"sent", sent,
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
