package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Message attribute names set on every job.
const (
	sqsAttrInstance   = "instance"
	sqsAttrPhone      = "phone"
	sqsAttrExternalID = "external_message_id"
	sqsAttrOrigin     = "origin"
)

// SQS caps group and deduplication ids at 128 characters.
const sqsMaxIDLen = 128

// SQSQueue is a Queue on AWS SQS (or LocalStack). On a FIFO queue jobs are
// grouped per contact, so one conversation is never answered out of order,
// and deduplicated by gateway message id, which absorbs the overlap between
// a history sync and real-time delivery inside the SQS dedupe window.
type SQSQueue struct {
	client     sqsAPI
	queueURL   string
	fifo       bool
	visibility time.Duration
}

// SQSOption tunes an SQSQueue.
type SQSOption func(*SQSQueue)

// WithVisibilityTimeout hides a received job for d; it should outlive the
// per-job timeout so a slow reply is not delivered to a second worker.
func WithVisibilityTimeout(d time.Duration) SQSOption {
	return func(q *SQSQueue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// NewSQSQueue wraps client for queueURL. A URL ending in ".fifo" enables
// grouping and deduplication.
func NewSQSQueue(client sqsAPI, queueURL string, opts ...SQSOption) *SQSQueue {
	if client == nil {
		panic("conversation: SQS client cannot be nil")
	}
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		panic("conversation: SQS queueURL cannot be empty")
	}
	q := &SQSQueue{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *SQSQueue) Send(ctx context.Context, body string, attrs JobAttributes) error {
	in := &sqs.SendMessageInput{
		QueueUrl:          aws.String(q.queueURL),
		MessageBody:       aws.String(body),
		MessageAttributes: encodeSQSAttributes(attrs),
	}
	if q.fifo {
		in.MessageGroupId = aws.String(sqsID(attrs.ConversationKey()))
		dedupe := attrs.ExternalMessageID
		if dedupe == "" {
			dedupe = uuid.NewString()
		}
		in.MessageDeduplicationId = aws.String(sqsID(attrs.Instance + ":" + dedupe))
	}
	if _, err := q.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("conversation: sqs send for instance %s: %w", attrs.Instance, err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(q.queueURL),
		MaxNumberOfMessages:         int32(maxMessages),
		WaitTimeSeconds:             int32(waitSeconds),
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if q.visibility > 0 {
		in.VisibilityTimeout = int32(q.visibility.Round(time.Second) / time.Second)
	}
	out, err := q.client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("conversation: sqs receive: %w", err)
	}

	messages := make([]QueueMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		count, _ := strconv.Atoi(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
		messages = append(messages, QueueMessage{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Attributes:    decodeSQSAttributes(m.MessageAttributes),
			ReceiveCount:  count,
		})
	}
	return messages, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("conversation: sqs delete: %w", err)
	}
	return nil
}

func encodeSQSAttributes(attrs JobAttributes) map[string]sqstypes.MessageAttributeValue {
	out := make(map[string]sqstypes.MessageAttributeValue, 4)
	for name, value := range map[string]string{
		sqsAttrInstance:   attrs.Instance,
		sqsAttrPhone:      attrs.Phone,
		sqsAttrExternalID: attrs.ExternalMessageID,
		sqsAttrOrigin:     attrs.Origin,
	} {
		// SQS rejects empty attribute values.
		if value == "" {
			continue
		}
		out[name] = sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(value)}
	}
	return out
}

func decodeSQSAttributes(in map[string]sqstypes.MessageAttributeValue) JobAttributes {
	get := func(name string) string {
		if v, ok := in[name]; ok {
			return aws.ToString(v.StringValue)
		}
		return ""
	}
	return JobAttributes{
		Instance:          get(sqsAttrInstance),
		Phone:             get(sqsAttrPhone),
		ExternalMessageID: get(sqsAttrExternalID),
		Origin:            get(sqsAttrOrigin),
	}
}

func sqsID(s string) string {
	if len(s) > sqsMaxIDLen {
		return s[:sqsMaxIDLen]
	}
	return s
}
