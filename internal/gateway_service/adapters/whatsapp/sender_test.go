package whatsapp_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercatto/wagateway/internal/gateway_service/adapters/whatsapp"
)

type recordedRequest struct {
	method  string
	path    string
	token   string
	payload map[string]string
}

type captureServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(n int, r recordedRequest) int // attempt index -> status
	server   *httptest.Server
}

func newCaptureServer(respond func(n int, r recordedRequest) int) *captureServer {
	cs := &captureServer{respond: respond}
	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{}
		if r.Method == http.MethodGet {
			for k, v := range r.URL.Query() {
				if len(v) > 0 {
					payload[k] = v[0]
				}
			}
		} else {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &payload)
		}
		rec := recordedRequest{method: r.Method, path: r.URL.Path, token: r.Header.Get("token"), payload: payload}

		cs.mu.Lock()
		n := len(cs.requests)
		cs.requests = append(cs.requests, rec)
		cs.mu.Unlock()

		w.WriteHeader(cs.respond(n, rec))
	}))
	return cs
}

func (cs *captureServer) all() []recordedRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]recordedRequest(nil), cs.requests...)
}

func newSender(t *testing.T, apiURL string) *whatsapp.Sender {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := whatsapp.NewClient(apiURL, "secret-token-0123456789", "POST", logger)
	return whatsapp.NewSender(client, logger)
}

func TestSender_FirstAttemptSucceeds(t *testing.T) {
	cs := newCaptureServer(func(int, recordedRequest) int { return http.StatusOK })
	defer cs.server.Close()

	sender := newSender(t, cs.server.URL)
	err := sender.SendMessage(context.Background(), "5511999998888", "Olá! Temos arroz em estoque.")
	require.NoError(t, err)

	reqs := cs.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "/message/send", reqs[0].path)
	assert.Equal(t, "secret-token-0123456789", reqs[0].token)
	assert.Equal(t, "5511999998888", reqs[0].payload["phone"])
	assert.Equal(t, "Olá! Temos arroz em estoque.", reqs[0].payload["message"])
}

func TestSender_FallbackCascadeOrder(t *testing.T) {
	// Reject everything until the fourth attempt: alternate method with
	// the alternate payload.
	cs := newCaptureServer(func(n int, _ recordedRequest) int {
		if n == 3 {
			return http.StatusOK
		}
		return http.StatusBadRequest
	})
	defer cs.server.Close()

	sender := newSender(t, cs.server.URL)
	err := sender.SendMessage(context.Background(), "+55 11 99999-8888", "oi")
	require.NoError(t, err)

	reqs := cs.all()
	require.Len(t, reqs, 4)

	// POST {phone,message} -> POST {number,text} -> GET {phone,message} -> GET {number,text}
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Contains(t, reqs[0].payload, "phone")
	assert.Equal(t, http.MethodPost, reqs[1].method)
	assert.Equal(t, "5511999998888", reqs[1].payload["number"])
	assert.Equal(t, "oi", reqs[1].payload["text"])
	assert.Equal(t, http.MethodGet, reqs[2].method)
	assert.Contains(t, reqs[2].payload, "phone")
	assert.Equal(t, http.MethodGet, reqs[3].method)
	assert.Contains(t, reqs[3].payload, "number")
}

func TestSender_AllAttemptsRejectedReturnsError(t *testing.T) {
	cs := newCaptureServer(func(int, recordedRequest) int { return http.StatusForbidden })
	defer cs.server.Close()

	sender := newSender(t, cs.server.URL)
	err := sender.SendMessage(context.Background(), "5511999998888", "oi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Len(t, cs.all(), 4)
}

func TestSender_ConfiguredPathUsedVerbatimWithNumberTextPayload(t *testing.T) {
	cs := newCaptureServer(func(int, recordedRequest) int { return http.StatusOK })
	defer cs.server.Close()

	sender := newSender(t, cs.server.URL+"/send/text")
	err := sender.SendMessage(context.Background(), "5511999998888", "oi")
	require.NoError(t, err)

	reqs := cs.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/send/text", reqs[0].path)
	assert.Equal(t, "5511999998888", reqs[0].payload["number"])
	assert.Equal(t, "oi", reqs[0].payload["text"])
}

func TestSender_LongMessageIsChunkedAtParagraphs(t *testing.T) {
	cs := newCaptureServer(func(int, recordedRequest) int { return http.StatusOK })
	defer cs.server.Close()

	paragraph := strings.Repeat("a", 1500)
	text := strings.Join([]string{paragraph, paragraph, paragraph, paragraph}, "\n\n")

	sender := newSender(t, cs.server.URL)
	err := sender.SendMessage(context.Background(), "5511999998888", text)
	require.NoError(t, err)

	reqs := cs.all()
	require.Len(t, reqs, 2, "6000 chars across 4 paragraphs should split into two sends")
	var rejoined string
	for _, r := range reqs {
		assert.LessOrEqual(t, len(r.payload["message"]), 4000)
		rejoined += strings.ReplaceAll(r.payload["message"], "\n\n", "")
	}
	// No content lost across chunks.
	assert.Equal(t, strings.Repeat("a", 6000), rejoined)
}
