package uazapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type capturedSend struct {
	token string
	body  map[string]string
}

type gatewayLog struct {
	mu    sync.Mutex
	sends []capturedSend
}

func (g *gatewayLog) all() []capturedSend {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]capturedSend(nil), g.sends...)
}

func newGateway(t *testing.T, status int, echo string) (*httptest.Server, *gatewayLog) {
	t.Helper()
	log := &gatewayLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send/text" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		log.mu.Lock()
		log.sends = append(log.sends, capturedSend{token: r.Header.Get("token"), body: body})
		log.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(echo))
	}))
	t.Cleanup(server.Close)
	return server, log
}

func newTestClient(t *testing.T, baseURL, token string) *Client {
	t.Helper()
	client, err := New(Config{BaseURL: baseURL + "/", Token: token, Logger: logging.Discard()})
	require.NoError(t, err)
	return client
}

func TestSendText(t *testing.T) {
	server, sends := newGateway(t, http.StatusOK, `{"messageid":"3EB0ABC","status":"sent"}`)
	client := newTestClient(t, server.URL, "tok-default")

	resp, err := client.SendText(context.Background(), "5511999990001", "Olá Maria!")
	require.NoError(t, err)
	assert.Equal(t, "3EB0ABC", resp.GatewayID())

	all := sends.all()
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, "tok-default", got.token)
	assert.Equal(t, map[string]string{"number": "5511999990001", "text": "Olá Maria!"}, got.body)
}

func TestSendTextValidation(t *testing.T) {
	client := newTestClient(t, "http://unused", "tok")
	_, err := client.SendText(context.Background(), "", "oi")
	require.Error(t, err)
	_, err = client.SendText(context.Background(), "5511", "  ")
	require.Error(t, err)

	anonymous := newTestClient(t, "http://unused", "")
	_, err = anonymous.SendText(context.Background(), "5511", "oi")
	require.Error(t, err)
}

func TestSendTextSurfacesAPIError(t *testing.T) {
	server, _ := newGateway(t, http.StatusUnauthorized, `{"error":"invalid token"}`)
	client := newTestClient(t, server.URL, "bad")

	_, err := client.SendText(context.Background(), "5511999990001", "oi")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid token")
}

func TestSendTextMakesASingleAttempt(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "tok")
	_, err := client.SendText(context.Background(), "5511", "oi")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSendTextHonoursTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Token: "tok", Timeout: 50 * time.Millisecond, Logger: logging.Discard()})
	require.NoError(t, err)
	_, err = client.SendText(context.Background(), "5511", "oi")
	require.Error(t, err)
}

func TestDispatcherUsesInstanceToken(t *testing.T) {
	server, sends := newGateway(t, http.StatusOK, `{"id":"gw-1"}`)
	client := newTestClient(t, server.URL, "tok-default")
	dispatcher := NewDispatcher(client, map[string]string{"clinic-a": "tok-a", "empty": " "}, logging.Discard())

	id, err := dispatcher.SendReply(context.Background(), conversation.OutboundReply{
		TenantID: "tenant-a",
		Instance: "clinic-a",
		To:       "5511999990001",
		Body:     "Olá!",
	})
	require.NoError(t, err)
	assert.Equal(t, "gw-1", id)

	_, err = dispatcher.Send(context.Background(), "other", "5511999990002", "Oi")
	require.NoError(t, err)

	all := sends.all()
	require.Len(t, all, 2)
	assert.Equal(t, "tok-a", all[0].token)
	assert.Equal(t, "tok-default", all[1].token)
}

func TestDispatcherMatchesInstanceLikeResolver(t *testing.T) {
	server, sends := newGateway(t, http.StatusOK, `{"id":"gw-2"}`)
	client := newTestClient(t, server.URL, "tok-default")
	dispatcher := NewDispatcher(client, map[string]string{" Clinic-B ": "tok-b"}, logging.Discard())

	for _, instance := range []string{"Clinic-A", "clinic-b", "CLINIC-B "} {
		_, err := dispatcher.Send(context.Background(), instance, "5511999990001", "Oi")
		require.NoError(t, err)
	}
	dispatcher.tokens["clinic-a"] = "tok-a"
	_, err := dispatcher.Send(context.Background(), "Clinic-A", "5511999990001", "Oi")
	require.NoError(t, err)

	all := sends.all()
	require.Len(t, all, 4)
	assert.Equal(t, "tok-default", all[0].token)
	assert.Equal(t, "tok-b", all[1].token)
	assert.Equal(t, "tok-b", all[2].token)
	assert.Equal(t, "tok-a", all[3].token)
}

func TestDispatcherWithoutToken(t *testing.T) {
	dispatcher := NewDispatcher(newTestClient(t, "http://unused", ""), nil, logging.Discard())
	_, err := dispatcher.SendReply(context.Background(), conversation.OutboundReply{Instance: "clinic-a", To: "5511", Body: "oi"})
	require.ErrorIs(t, err, ErrNoToken)
}

func TestParseInstanceTokens(t *testing.T) {
	tokens, err := ParseInstanceTokens(`{"clinic-a":"tok-a"}`)
	require.NoError(t, err)
	assert.Equal(t, "tok-a", tokens["clinic-a"])

	empty, err := ParseInstanceTokens("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseInstanceTokens("[")
	require.Error(t, err)
}
