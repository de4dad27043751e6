package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/messaging/uazapi"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

func TestBuildReplyMessengerFallsBackToLog(t *testing.T) {
	messenger, name, reason := BuildReplyMessenger(ProviderSelectionConfig{}, logging.Discard())
	assert.Equal(t, "log", name)
	assert.NotEmpty(t, reason)

	id, err := messenger.SendReply(context.Background(), conversation.OutboundReply{To: "5511", Body: "oi"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "log-"))
}

func TestBuildReplyMessengerSelectsUazapi(t *testing.T) {
	messenger, name, reason := BuildReplyMessenger(ProviderSelectionConfig{
		BaseURL:            "http://gateway.local",
		InstanceTokensJSON: `{"clinic-a":"tok-a"}`,
	}, logging.Discard())
	assert.Equal(t, "uazapi", name)
	assert.Empty(t, reason)
	_, ok := messenger.(*uazapi.Dispatcher)
	assert.True(t, ok)
}
