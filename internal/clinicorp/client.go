package clinicorp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL = "https://api.clinicorp.com/v1"
	DefaultAuthURL = "https://auth.clinicorp.com/oauth/token"

	defaultTimeout = 20 * time.Second
	// refreshSkew is how long before expiry a token is treated as expired.
	refreshSkew = 60 * time.Second
)

var clinicorpTracer = otel.Tracer("clinic-concierge.clinicorp")

// ErrNoCredentials is returned when neither a static token nor OAuth
// tokens are configured.
var ErrNoCredentials = errors.New("clinicorp: no credentials configured")

// State is the authentication state of a client.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateStatic          State = "static_token"
	StateMock            State = "mock"
)

// Config holds configuration for a tenant-scoped client.
type Config struct {
	TenantID    string
	BaseURL     string
	AuthURL     string
	Credentials clinic.ClinicorpCredentials
	ForceMock   bool
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *logging.Logger
	// OnTokenRefresh is called after a successful refresh so rotated refresh
	// tokens can be persisted.
	OnTokenRefresh func(ctx context.Context, tenantID string, tokens TokenSet)
	Now            func() time.Time
}

// Client talks to the Clinicorp API on behalf of one tenant.
type Client struct {
	tenantID     string
	baseURL      string
	authURL      string
	clientID     string
	clientSecret string
	staticToken  string
	subscriberID string
	codeLink     string
	mock         bool
	timeout      time.Duration
	httpClient   *http.Client
	logger       *logging.Logger
	onRefresh    func(ctx context.Context, tenantID string, tokens TokenSet)
	now          func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time

	refreshGroup singleflight.Group
}

// New creates a new client. Mock clients never touch the network.
func New(cfg Config) (*Client, error) {
	creds := cfg.Credentials
	mock := cfg.ForceMock || creds.IsMock()
	if !mock && !creds.Configured() {
		return nil, ErrNoCredentials
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	baseURL := firstNonEmpty(creds.BaseURL, cfg.BaseURL, DefaultBaseURL)
	authURL := firstNonEmpty(creds.AuthURL, cfg.AuthURL, DefaultAuthURL)

	return &Client{
		tenantID:     cfg.TenantID,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		authURL:      authURL,
		clientID:     creds.ClientID,
		clientSecret: creds.ClientSecret,
		staticToken:  creds.StaticToken(),
		subscriberID: creds.SubscriberID,
		codeLink:     creds.CodeLink,
		mock:         mock,
		timeout:      timeout,
		httpClient:   httpClient,
		logger:       logger.With("tenant_id", cfg.TenantID, "component", "clinicorp"),
		onRefresh:    cfg.OnTokenRefresh,
		now:          now,
		accessToken:  creds.AccessToken,
		refreshToken: creds.RefreshToken,
		expiresAt:    creds.ExpiresAt,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// State reports the client's current authentication state.
func (c *Client) State() State {
	if c.mock {
		return StateMock
	}
	if c.staticToken != "" {
		return StateStatic
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == "" {
		return StateUnauthenticated
	}
	if !c.now().Before(c.expiresAt.Add(-refreshSkew)) {
		return StateExpired
	}
	return StateAuthenticated
}

// IsMock reports whether the client serves canned data.
func (c *Client) IsMock() bool { return c.mock }

// ValidToken returns a usable bearer token, refreshing when the access token
// is within refreshSkew of expiry.
func (c *Client) ValidToken(ctx context.Context) (string, error) {
	if c.staticToken != "" {
		return c.staticToken, nil
	}
	c.mu.Lock()
	token, expiresAt := c.accessToken, c.expiresAt
	c.mu.Unlock()
	if token != "" && c.now().Before(expiresAt.Add(-refreshSkew)) {
		return token, nil
	}

	token, err := c.refresh(ctx)
	if err == nil {
		return token, nil
	}
	if c.clientSecret != "" {
		c.logger.Warn("clinicorp token refresh failed, using client secret as token", "error", err)
		return c.clientSecret, nil
	}
	return "", err
}

// refresh performs the refresh-token grant. Concurrent callers share one
// in-flight request so a rotating refresh token is only spent once.
func (c *Client) refresh(ctx context.Context) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.doRefresh(refreshCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) doRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()
	if refreshToken == "" {
		return "", fmt.Errorf("clinicorp: refresh: %w", ErrNoCredentials)
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("clinicorp: marshal refresh: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("clinicorp: failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("clinicorp: auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Method: http.MethodPost, Path: "/oauth/token", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("clinicorp: failed to decode auth response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("clinicorp: auth response missing access_token")
	}

	expiresAt := c.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.mu.Lock()
	c.accessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		c.refreshToken = tokenResp.RefreshToken
	}
	c.expiresAt = expiresAt
	tokens := TokenSet{AccessToken: c.accessToken, RefreshToken: c.refreshToken, ExpiresAt: expiresAt.Unix()}
	c.mu.Unlock()

	c.logger.Info("clinicorp token refreshed", "expires_at", expiresAt)
	if c.onRefresh != nil {
		c.onRefresh(ctx, c.tenantID, tokens)
	}
	return tokens.AccessToken, nil
}

// request sends an authenticated call. A 404 yields a nil body and no
// error; a 401 triggers exactly one refresh-and-retry unless a static
// token is in use.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	ctx, span := clinicorpTracer.Start(ctx, "clinicorp.request")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("clinicorp.path", path),
		attribute.String("tenant_id", c.tenantID),
	)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("clinicorp: marshal body: %w", err)
		}
	}

	token, err := c.ValidToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token")
		return nil, err
	}

	status, respBody, err := c.send(ctx, method, path, query, payload, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if status == http.StatusUnauthorized && c.staticToken == "" {
		c.logger.Info("clinicorp returned 401, refreshing token", "path", path)
		token, err = c.refresh(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("clinicorp: refresh after 401: %w", err)
		}
		status, respBody, err = c.send(ctx, method, path, query, payload, token)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	switch {
	case status == http.StatusNotFound:
		c.logger.Debug("clinicorp endpoint returned 404, treating as empty", "path", path)
		return nil, nil
	case status >= 400:
		apiErr := &APIError{Method: method, Path: path, StatusCode: status, Body: string(respBody)}
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}
	return respBody, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, token string) (int, []byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("clinicorp: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("clinicorp: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("clinicorp: read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) scopeParams() url.Values {
	q := url.Values{}
	if c.subscriberID != "" {
		q.Set("subscriber_id", c.subscriberID)
	}
	if c.codeLink != "" {
		q.Set("code_link", c.codeLink)
	}
	return q
}

// ListProfessionals returns the clinic's professionals.
func (c *Client) ListProfessionals(ctx context.Context) ([]Professional, error) {
	if c.mock {
		return mockProfessionals(), nil
	}
	body, err := c.request(ctx, http.MethodGet, "/professionals", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Professional](body), nil
}

// CheckAvailability lists free slots on date (YYYY-MM-DD), optionally for a
// single professional.
func (c *Client) CheckAvailability(ctx context.Context, date, professionalID string) ([]AvailableSlot, error) {
	if c.mock {
		return mockAvailability(date, professionalID), nil
	}
	q := url.Values{}
	q.Set("date", date)
	for k, v := range c.scopeParams() {
		q[k] = v
	}
	if professionalID != "" {
		q.Set("professionalId", professionalID)
	}
	body, err := c.request(ctx, http.MethodGet, "/appointment/get_avaliable_times_calendar", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[AvailableSlot](body), nil
}

// ListAppointments lists booked appointments on date.
func (c *Client) ListAppointments(ctx context.Context, date string) ([]Appointment, error) {
	if c.mock {
		return mockAppointments(date), nil
	}
	q := url.Values{}
	q.Set("date", date)
	for k, v := range c.scopeParams() {
		q[k] = v
	}
	body, err := c.request(ctx, http.MethodGet, "/appointment/get_appointment", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Appointment](body), nil
}

// CreatePatient registers a patient and returns its Clinicorp id.
func (c *Client) CreatePatient(ctx context.Context, in PatientInput) (string, error) {
	if strings.TrimSpace(in.Name) == "" {
		return "", errors.New("clinicorp: patient name required")
	}
	if c.mock {
		return mockID("patient", in.Name+in.Phone), nil
	}
	return c.create(ctx, "/patients", in)
}

// CreateAppointment books an appointment and returns its Clinicorp id.
func (c *Client) CreateAppointment(ctx context.Context, in AppointmentInput) (string, error) {
	if in.PatientID == "" || in.Date == "" || in.Time == "" {
		return "", errors.New("clinicorp: patient, date and time are required")
	}
	if c.mock {
		return mockID("appointment", in.PatientID+in.Date+in.Time), nil
	}
	return c.create(ctx, "/appointments", in)
}

func (c *Client) create(ctx context.Context, path string, payload any) (string, error) {
	body, err := c.request(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return "", err
	}
	var created createdResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &created); err != nil {
			c.logger.Warn("clinicorp create returned unexpected payload", "path", path, "error", err)
		}
	}
	return created.ID.String(), nil
}
