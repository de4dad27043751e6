package uazapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const (
	defaultBaseURL   = "https://api.uazapi.com"
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "clinic-concierge/0.1"
	maxErrorBody     = 512
)

var tracer = otel.Tracer("concierge.internal.messaging.uazapi")

// Config controls how the UazAPI client behaves.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client wraps the UazAPI endpoints used by the concierge. Requests are made
// exactly once; callers decide what a failure means.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
	userAgent  string
}

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// WithToken returns a copy of the client authenticating as another instance.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	return &clone
}

// SendTextResponse is the subset of the send echo the concierge reads.
type SendTextResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"messageid"`
	Status    string `json:"status"`
	Key       struct {
		ID string `json:"id"`
	} `json:"key"`
}

// GatewayID returns whichever identifier the gateway echoed.
func (r *SendTextResponse) GatewayID() string {
	switch {
	case r == nil:
		return ""
	case r.MessageID != "":
		return r.MessageID
	case r.ID != "":
		return r.ID
	default:
		return r.Key.ID
	}
}

// SendText posts a text message to the number.
func (c *Client) SendText(ctx context.Context, number, text string) (*SendTextResponse, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, errors.New("uazapi: number is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("uazapi: text is required")
	}
	if c.token == "" {
		return nil, errors.New("uazapi: instance token is not configured")
	}

	ctx, span := tracer.Start(ctx, "uazapi.send_text")
	defer span.End()
	span.SetAttributes(attribute.Int("concierge.uazapi.text_len", len(text)))

	body, err := json.Marshal(map[string]string{"number": number, "text": text})
	if err != nil {
		return nil, fmt.Errorf("uazapi: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/send/text", body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var resp SendTextResponse
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil {
			// Delivery already happened; an unexpected echo is not a send failure.
			c.logger.Warn("uazapi send echo not understood", "error", err)
		}
	}
	return &resp, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return nil, fmt.Errorf("uazapi: build request: %w", err)
	}
	req.Header.Set("token", c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("uazapi: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("uazapi: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncate(string(data), maxErrorBody)}
	}
	return data, nil
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("uazapi: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("uazapi: %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
