package notify

import (
	"strings"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// ProviderConfig selects the e-mail backend.
type ProviderConfig struct {
	Provider          string // sendgrid, ses or empty for auto
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// BuildEmailSender returns the configured sender and its name. ses is only
// used when the SES provider is selected; anything unusable falls back to
// the stub sender.
func BuildEmailSender(cfg ProviderConfig, ses SESAPI, logger *logging.Logger) (EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" && cfg.SendGridAPIKey != "" {
		provider = "sendgrid"
	}
	switch provider {
	case "sendgrid":
		if sender := NewSendGridSender(SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty; using stub")
	case "ses":
		if cfg.SESFromEmail != "" {
			if sender := NewSESSender(ses, SESConfig{FromEmail: cfg.SESFromEmail, FromName: cfg.SendGridFromName}, logger); sender != nil {
				return sender, "ses"
			}
		}
		logger.Warn("EMAIL_PROVIDER=ses but SES is not configured; using stub")
	}
	return NewStubEmailSender(logger), "stub"
}
