package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneFromJID(t *testing.T) {
	cases := []struct {
		jid   string
		phone string
		ok    bool
	}{
		{"5511999990001@s.whatsapp.net", "5511999990001", true},
		{"5511999990001@c.us", "5511999990001", true},
		{"5511999990001:12@s.whatsapp.net", "5511999990001", true},
		{"5511999990001", "5511999990001", true},
		{"120363025246125486@g.us", "", false},
		{"status@broadcast", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		phone, ok := PhoneFromJID(tc.jid)
		assert.Equal(t, tc.ok, ok, tc.jid)
		assert.Equal(t, tc.phone, phone, tc.jid)
	}
}

func TestParseWebhookEnvelopeDefaultsEvent(t *testing.T) {
	env, err := ParseWebhookEnvelope([]byte(`{"instance":" clinic-a ","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, EventMessagesUpsert, env.Event)
	assert.Equal(t, "clinic-a", env.Instance)

	env, err = ParseWebhookEnvelope([]byte(`{"event":"Messaging-History.Set","instance":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, EventHistorySet, env.Event)
}

func TestSplitMessages(t *testing.T) {
	single, err := splitMessages(json.RawMessage(`{"key":{"id":"1"}}`))
	require.NoError(t, err)
	assert.Len(t, single, 1)

	wrapped, err := splitMessages(json.RawMessage(`{"messages":[{"key":{"id":"1"}},{"key":{"id":"2"}}]}`))
	require.NoError(t, err)
	assert.Len(t, wrapped, 2)

	array, err := splitMessages(json.RawMessage(`[{"key":{"id":"1"}}]`))
	require.NoError(t, err)
	assert.Len(t, array, 1)

	none, err := splitMessages(nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestToInboundSkipReasons(t *testing.T) {
	now := time.Date(2025, 12, 25, 12, 0, 0, 0, time.UTC)
	cases := map[string]string{
		`{"key":{"remoteJid":"5511@s.whatsapp.net","fromMe":true},"message":{"conversation":"x"}}`: SkipFromMe,
		`{"key":{"remoteJid":"1203@g.us"},"message":{"conversation":"x"}}`:                         SkipGroup,
		`{"key":{"remoteJid":"5511@s.whatsapp.net"}}`:                                              SkipNoContent,
		`"not an object"`: SkipMalformed,
	}
	for raw, want := range cases {
		_, skip := toInbound("clinic-a", "realtime", json.RawMessage(raw), now)
		assert.Equal(t, want, skip, raw)
	}
}

func TestParseTimestamp(t *testing.T) {
	fallback := time.Date(2025, 12, 25, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(1766664000), parseTimestamp(json.RawMessage(`1766664000`), fallback).Unix())
	assert.Equal(t, int64(1766664000), parseTimestamp(json.RawMessage(`"1766664000"`), fallback).Unix())
	assert.Equal(t, int64(1766664000), parseTimestamp(json.RawMessage(`1766664000000`), fallback).Unix())
	assert.Equal(t, fallback, parseTimestamp(nil, fallback))
	assert.Equal(t, fallback, parseTimestamp(json.RawMessage(`{"low":1}`), fallback))
}
