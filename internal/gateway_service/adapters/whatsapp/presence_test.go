package whatsapp_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercatto/wagateway/internal/gateway_service/adapters/whatsapp"
)

func newPresenceClient(t *testing.T, apiURL string) *whatsapp.PresenceClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := whatsapp.NewClient(apiURL, "secret-token-0123456789", "POST", logger)
	return whatsapp.NewPresenceClient(client, logger)
}

func TestPresenceClient_FirstCandidateWins(t *testing.T) {
	cs := newCaptureServer(func(int, recordedRequest) int { return http.StatusOK })
	defer cs.server.Close()

	pc := newPresenceClient(t, cs.server.URL)
	err := pc.SendPresence(context.Background(), "5511999998888", "composing")
	require.NoError(t, err)

	reqs := cs.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/message/presence", reqs[0].path)
	assert.Equal(t, "5511999998888", reqs[0].payload["number"])
	assert.Equal(t, "composing", reqs[0].payload["presence"])
}

func TestPresenceClient_ProbesCandidatesInOrder(t *testing.T) {
	// Only the third endpoint accepts; the first two fail with both
	// payload shapes before the probe moves on.
	cs := newCaptureServer(func(_ int, r recordedRequest) int {
		if r.path == "/send/presence" {
			return http.StatusOK
		}
		return http.StatusNotFound
	})
	defer cs.server.Close()

	pc := newPresenceClient(t, cs.server.URL)
	err := pc.SendPresence(context.Background(), "5511999998888", "recording")
	require.NoError(t, err)

	reqs := cs.all()
	require.Len(t, reqs, 5)
	assert.Equal(t, "/message/presence", reqs[0].path)
	assert.Equal(t, "/message/presence", reqs[1].path)
	assert.Contains(t, reqs[1].payload, "phone", "second try per endpoint uses the alternate payload")
	assert.Equal(t, "/presence/send", reqs[2].path)
	assert.Equal(t, "/presence/send", reqs[3].path)
	assert.Equal(t, "/send/presence", reqs[4].path)
}

func TestPresenceClient_StripsSendPathFromBaseURL(t *testing.T) {
	cs := newCaptureServer(func(int, recordedRequest) int { return http.StatusOK })
	defer cs.server.Close()

	pc := newPresenceClient(t, cs.server.URL+"/send/text")
	err := pc.SendPresence(context.Background(), "5511999998888", "paused")
	require.NoError(t, err)

	reqs := cs.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/message/presence", reqs[0].path, "presence must target the domain root, not the send path")
}

func TestPresenceClient_AllEndpointsRejectedReturnsError(t *testing.T) {
	cs := newCaptureServer(func(int, recordedRequest) int { return http.StatusUnauthorized })
	defer cs.server.Close()

	pc := newPresenceClient(t, cs.server.URL)
	err := pc.SendPresence(context.Background(), "5511999998888", "composing")
	require.Error(t, err)
	assert.Len(t, cs.all(), 8, "four endpoints, two payloads each")
}
