package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mercatto/wagateway/internal/gateway_service/repository"
	"github.com/mercatto/wagateway/internal/gateway_service/repository/memory"
	gwhttp "github.com/mercatto/wagateway/internal/gateway_service/transport/http"
)

const testCustomer = "5511999998888"

type fakePresence struct {
	mu      sync.Mutex
	started []string
	cancels []string
}

func (f *fakePresence) Start(customerID, presence string, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, customerID+":"+presence)
	return true
}

func (f *fakePresence) Cancel(customerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, customerID)
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
}

func (f *fakeScheduler) Schedule(customerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, customerID)
	return true
}

type fakeCooldown struct {
	active bool
	ttl    int
	armed  []string
}

func (f *fakeCooldown) Active(_ context.Context, _ string) (bool, int) { return f.active, f.ttl }
func (f *fakeCooldown) Arm(_ context.Context, customerID string) {
	f.armed = append(f.armed, customerID)
}

type historyEntry struct{ role, content string }

type fakeHistory struct {
	mu      sync.Mutex
	entries []historyEntry
}

func (f *fakeHistory) Append(_ context.Context, _, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, historyEntry{role, content})
	return nil
}

func (f *fakeHistory) RecentWindow(context.Context, string, int) ([]repository.ChatMessage, error) {
	return nil, nil
}

type fakeTurns struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTurns) ProcessTurn(_ context.Context, customerID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, customerID+":"+text)
}

func (f *fakeTurns) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// pushFailStore simulates a buffering backend outage.
type pushFailStore struct {
	*memory.SessionStore
}

func (s *pushFailStore) PushToBuffer(context.Context, string, string, time.Duration) bool {
	return false
}

type webhookFixture struct {
	handler   *gwhttp.WebhookHandler
	presence  *fakePresence
	scheduler *fakeScheduler
	cooldown  *fakeCooldown
	store     repository.SessionStore
	history   *fakeHistory
	turns     *fakeTurns
}

func newWebhookFixture(store repository.SessionStore, cooldown *fakeCooldown) *webhookFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &webhookFixture{
		presence:  &fakePresence{},
		scheduler: &fakeScheduler{},
		cooldown:  cooldown,
		store:     store,
		history:   &fakeHistory{},
		turns:     &fakeTurns{},
	}
	f.handler = gwhttp.NewWebhookHandler(
		f.presence, f.scheduler, f.cooldown, f.store, f.history, f.turns,
		"5511000000000", 5*time.Minute, 30*time.Second, logger,
	)
	return f
}

func postWebhook(t *testing.T, f *webhookFixture, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.HandleIncoming(rec, req)
	return rec
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) gwhttp.WebhookAckDTO {
	t.Helper()
	var ack gwhttp.WebhookAckDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	return ack
}

func TestWebhookHandler_CustomerMessageIsBuffered(t *testing.T) {
	f := newWebhookFixture(memory.NewSessionStore(), &fakeCooldown{})

	rec := postWebhook(t, f, map[string]any{"from": testCustomer, "text": "quero arroz"})

	assert.Equal(t, http.StatusOK, rec.Code)
	ack := decodeAck(t, rec)
	assert.Equal(t, "buffering", ack.Status)

	assert.Equal(t, []string{testCustomer + ":composing"}, f.presence.started)
	assert.Equal(t, []string{testCustomer}, f.scheduler.scheduled)
	assert.Equal(t, 1, f.store.BufferLength(context.Background(), testCustomer))
	assert.Zero(t, f.turns.count(), "buffered messages are not processed directly")
}

func TestWebhookHandler_MissingPhoneRejected(t *testing.T) {
	f := newWebhookFixture(memory.NewSessionStore(), &fakeCooldown{})

	rec := postWebhook(t, f, map[string]any{"text": "quero arroz"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.presence.started)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestWebhookHandler_MissingTextRejected(t *testing.T) {
	f := newWebhookFixture(memory.NewSessionStore(), &fakeCooldown{})

	rec := postWebhook(t, f, map[string]any{"from": testCustomer})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestWebhookHandler_MalformedJSONRejected(t *testing.T) {
	f := newWebhookFixture(memory.NewSessionStore(), &fakeCooldown{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.handler.HandleIncoming(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookHandler_SelfSentArmsCooldownAndSkipsAutomation(t *testing.T) {
	f := newWebhookFixture(memory.NewSessionStore(), &fakeCooldown{})

	rec := postWebhook(t, f, map[string]any{
		"chat":    map[string]any{"wa_id": testCustomer},
		"message": map[string]any{"fromMe": true, "content": "Seu pedido foi confirmado!"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	ack := decodeAck(t, rec)
	assert.Equal(t, "ignored", ack.Status)
	assert.Equal(t, "self_message", ack.Reason)

	assert.Equal(t, []string{testCustomer}, f.cooldown.armed)
	require.Len(t, f.history.entries, 1)
	assert.Equal(t, "assistant", f.history.entries[0].role)
	assert.Equal(t, "Seu pedido foi confirmado!", f.history.entries[0].content)

	assert.Empty(t, f.presence.started)
	assert.Empty(t, f.scheduler.scheduled)
	assert.Zero(t, f.store.BufferLength(context.Background(), testCustomer))
}

func TestWebhookHandler_AgentOwnNumberTreatedAsSelfSent(t *testing.T) {
	f := newWebhookFixture(memory.NewSessionStore(), &fakeCooldown{})

	rec := postWebhook(t, f, map[string]any{"from": "5511000000000", "text": "mensagem do agente"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeAck(t, rec).Status)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestWebhookHandler_CooldownBuffersWithoutAutomation(t *testing.T) {
	f := newWebhookFixture(memory.NewSessionStore(), &fakeCooldown{active: true, ttl: 42})

	rec := postWebhook(t, f, map[string]any{"from": testCustomer, "text": "ainda quero o arroz"})

	assert.Equal(t, http.StatusOK, rec.Code)
	ack := decodeAck(t, rec)
	assert.Equal(t, "cooldown", ack.Status)
	assert.Equal(t, "agent_paused", ack.Reason)
	assert.Equal(t, 42, ack.TTL)

	// Context survives the pause, but nothing fires.
	assert.Equal(t, 1, f.store.BufferLength(context.Background(), testCustomer))
	assert.Empty(t, f.presence.started)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestWebhookHandler_BufferOutageFallsBackToDirectProcessing(t *testing.T) {
	f := newWebhookFixture(&pushFailStore{memory.NewSessionStore()}, &fakeCooldown{})

	rec := postWebhook(t, f, map[string]any{"from": testCustomer, "text": "quero arroz"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buffering", decodeAck(t, rec).Status)
	assert.Empty(t, f.scheduler.scheduled)
	assert.Eventually(t, func() bool {
		return f.turns.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWebhookHandler_InfoEndpoint(t *testing.T) {
	f := newWebhookFixture(memory.NewSessionStore(), &fakeCooldown{})

	req := httptest.NewRequest(http.MethodGet, "/webhook/uaz", nil)
	rec := httptest.NewRecorder()
	f.handler.HandleWebhookInfo(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
