package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/events"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var webhookTracer = otel.Tracer("concierge.internal.messaging.uazapi")

// Webhook response statuses.
const (
	StatusSyncStarted     = "sync_started"
	StatusUpsertProcessed = "upsert_processed"
	StatusEventUnhandled  = "event_unhandled"
	StatusError           = "error"
)

// History syncs can be large; anything above this is cut off and fails to
// decode.
const maxWebhookBody = 8 << 20

type inboundPublisher interface {
	EnqueueInbound(ctx context.Context, msg events.WhatsAppMessageReceivedV1) error
}

// Handler handles gateway webhook requests.
type Handler struct {
	publisher inboundPublisher
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewHandler creates a new webhook handler. metrics may be nil.
func NewHandler(publisher inboundPublisher, m *metrics.PipelineMetrics, logger *logging.Logger) *Handler {
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// WebhookResponse is the acknowledgment returned to the gateway.
type WebhookResponse struct {
	Status    string `json:"status"`
	Event     string `json:"event,omitempty"`
	Instance  string `json:"instance,omitempty"`
	Scheduled int    `json:"scheduled"`
	Skipped   int    `json:"skipped"`
}

// UazapiWebhook handles POST /webhooks/whatsapp. It answers 200 for
// everything except an undecodable body, so the gateway never enters a
// retry storm; work is handed to the queue and processed in the background.
func (h *Handler) UazapiWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.uazapi.webhook")
	defer span.End()

	event := "unknown"
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("messaging: webhook panic: %v", rec)
			h.logger.Error("webhook handler panicked", "error", err)
			span.RecordError(err)
			h.metrics.ObserveWebhook(event, StatusError)
			writeJSON(w, http.StatusOK, WebhookResponse{Status: StatusError})
		}
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read webhook body", "error", err)
		span.RecordError(err)
		h.metrics.ObserveWebhook(event, StatusError)
		writeJSON(w, http.StatusBadRequest, WebhookResponse{Status: StatusError})
		return
	}
	env, err := ParseWebhookEnvelope(body)
	if err != nil {
		h.logger.Warn("malformed webhook payload", "error", err)
		span.RecordError(err)
		h.metrics.ObserveWebhook(event, StatusError)
		writeJSON(w, http.StatusBadRequest, WebhookResponse{Status: StatusError})
		return
	}
	event = env.Event
	span.SetAttributes(
		attribute.String("concierge.webhook.event", env.Event),
		attribute.String("instance", env.Instance),
	)

	var resp WebhookResponse
	switch env.Event {
	case EventHistorySet:
		resp = h.schedule(ctx, env, events.OriginHistory)
		if resp.Status == "" {
			resp.Status = StatusSyncStarted
		}
	case EventMessagesUpsert:
		resp = h.schedule(ctx, env, events.OriginRealtime)
		if resp.Status == "" {
			resp.Status = StatusUpsertProcessed
		}
	default:
		h.logger.Debug("ignoring unhandled webhook event", "event", env.Event, "instance", env.Instance)
		resp = WebhookResponse{Status: StatusEventUnhandled}
	}
	resp.Event = env.Event
	resp.Instance = env.Instance
	if resp.Status == StatusError {
		span.RecordError(errors.New("webhook data could not be split"))
	}
	h.metrics.ObserveWebhook(env.Event, resp.Status)
	writeJSON(w, http.StatusOK, resp)
}

// schedule enqueues every qualifying element of the payload. A malformed
// data section is reported as an error status, never as a failed request.
func (h *Handler) schedule(ctx context.Context, env WebhookEnvelope, origin string) WebhookResponse {
	log := h.logger.With("instance", env.Instance, "event", env.Event)
	elements, err := splitMessages(env.Data)
	if err != nil {
		log.Warn("webhook data not understood", "error", err)
		return WebhookResponse{Status: StatusError}
	}

	var resp WebhookResponse
	now := h.now()
	for _, raw := range elements {
		msg, skip := toInbound(env.Instance, origin, raw, now)
		if skip != "" {
			resp.Skipped++
			h.metrics.ObserveDropped(skip)
			continue
		}
		if err := h.publisher.EnqueueInbound(ctx, msg); err != nil {
			resp.Skipped++
			reason := "enqueue_failed"
			if errors.Is(err, conversation.ErrQueueFull) {
				reason = "queue_full"
			}
			h.metrics.ObserveDropped(reason)
			log.Warn("inbound message dropped", "reason", reason, "external_message_id", msg.ExternalMessageID, "error", err)
			continue
		}
		resp.Scheduled++
		h.metrics.ObserveScheduled()
	}
	log.Info("webhook accepted", "origin", origin, "scheduled", resp.Scheduled, "skipped", resp.Skipped)
	return resp
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
