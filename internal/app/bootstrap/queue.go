package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
)

// Supported QUEUE_BACKEND values.
const (
	QueueMemory = "memory"
	QueueSQS    = "sqs"
)

// BuildQueue returns the job queue between webhook and workers.
func BuildQueue(cfg *appconfig.Config, awsCfg aws.Config) (conversation.Queue, string, error) {
	switch cfg.QueueBackend {
	case "", QueueMemory:
		return conversation.NewMemoryQueue(cfg.QueueDepth), QueueMemory, nil
	case QueueSQS:
		if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
			return nil, "", fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required for the sqs backend")
		}
		// A job stays hidden past its own timeout so a slow reply is not
		// picked up by a second worker.
		queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL,
			conversation.WithVisibilityTimeout(cfg.JobTimeout+30*time.Second))
		return queue, QueueSQS, nil
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown queue backend %q", cfg.QueueBackend)
	}
}
