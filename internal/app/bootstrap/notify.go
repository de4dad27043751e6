package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/notify"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// BuildEscalationNotifier selects the e-mail backend for human hand-over
// notices.
func BuildEscalationNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.EscalationNotifier {
	var ses notify.SESAPI
	if cfg.EmailProvider == "ses" {
		ses = sesv2.NewFromConfig(awsCfg)
	}
	sender, name := notify.BuildEmailSender(notify.ProviderConfig{
		Provider:          cfg.EmailProvider,
		SendGridAPIKey:    cfg.SendGridAPIKey,
		SendGridFromEmail: cfg.SendGridFromEmail,
		SendGridFromName:  cfg.SendGridFromName,
		SESFromEmail:      cfg.SESFromEmail,
	}, ses, logger)
	logger.Info("escalation e-mail configured", "provider", name)
	return notify.NewEscalationNotifier(sender, logger)
}
