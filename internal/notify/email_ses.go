package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"regexp"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends emails via AWS SES.
type SESSender struct {
	client    SESAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	FromEmail string
	FromName  string
}

// NewSESSender returns nil when client is nil.
func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SESSender{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// SES message tags only allow ASCII letters, digits, '_' and '-'.
var sesTagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sesTags(msg EmailMessage) []types.MessageTag {
	tags := make(map[string]string, len(msg.Tags)+1)
	for k, v := range msg.Tags {
		tags[k] = v
	}
	if msg.Category != "" {
		tags["category"] = msg.Category
	}
	keys := make([]string, 0, len(tags))
	for k, v := range tags {
		if sesTagUnsafe.ReplaceAllString(v, "") != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]types.MessageTag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.MessageTag{
			Name:  aws.String(sesTagUnsafe.ReplaceAllString(k, "_")),
			Value: aws.String(sesTagUnsafe.ReplaceAllString(tags[k], "_")),
		})
	}
	return out
}

// Send sends an email via AWS SES.
func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return errors.New("notify: SES client not configured")
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("UTF-8", firstNonEmpty(msg.FromName, s.fromName)), s.fromEmail)),
		EmailTags:        sesTags(msg),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(msg.Subject),
				Body:    body,
			},
		},
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("notify: SES send to %s: %w", msg.To, err)
	}

	s.logger.Info("email sent via SES", "to", msg.To, "category", msg.Category, "tenant_id", msg.Tags[TagTenant], "message_id", aws.ToString(output.MessageId))
	return nil
}

var _ EmailSender = (*SESSender)(nil)
