package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwhttp "github.com/mercatto/wagateway/internal/gateway_service/transport/http"
)

func newPresenceHandler(presence *fakePresence) *gwhttp.PresenceHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return gwhttp.NewPresenceHandler(presence, 5*time.Minute, 10*time.Second, logger, validator.New())
}

func postPresence(t *testing.T, h *gwhttp.PresenceHandler, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/presence", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandlePresence(rec, req)
	return rec
}

func TestPresenceHandler_SchedulesComposingLoop(t *testing.T) {
	presence := &fakePresence{}
	h := newPresenceHandler(presence)

	rec := postPresence(t, h, gwhttp.PresenceRequestDTO{
		Number:   "+55 (11) 99999-8888",
		Presence: "composing",
		Delay:    20000,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp gwhttp.PresenceAcceptedDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, testCustomer, resp.Number, "number is sanitized in the response")
	assert.Equal(t, 20000, resp.DurationMs)
	assert.Equal(t, 10, resp.TickSeconds)

	assert.Equal(t, []string{testCustomer + ":composing"}, presence.started)
	assert.Empty(t, presence.cancels)
}

func TestPresenceHandler_PausedCancelsInline(t *testing.T) {
	presence := &fakePresence{}
	h := newPresenceHandler(presence)

	rec := postPresence(t, h, gwhttp.PresenceRequestDTO{Number: testCustomer, Presence: "paused"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{testCustomer}, presence.cancels)
	assert.Empty(t, presence.started)
}

func TestPresenceHandler_InvalidPresenceRejected(t *testing.T) {
	presence := &fakePresence{}
	h := newPresenceHandler(presence)

	rec := postPresence(t, h, gwhttp.PresenceRequestDTO{Number: testCustomer, Presence: "typing"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, presence.started)
	assert.Empty(t, presence.cancels)
}

func TestPresenceHandler_OversizedDelayClampedToMax(t *testing.T) {
	presence := &fakePresence{}
	h := newPresenceHandler(presence)

	rec := postPresence(t, h, gwhttp.PresenceRequestDTO{
		Number:   testCustomer,
		Presence: "recording",
		Delay:    900000, // past the 5-minute cap
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp gwhttp.PresenceAcceptedDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 300000, resp.DurationMs)
}

func TestPresenceHandler_NumberWithoutDigitsRejected(t *testing.T) {
	presence := &fakePresence{}
	h := newPresenceHandler(presence)

	rec := postPresence(t, h, gwhttp.PresenceRequestDTO{Number: "---", Presence: "composing"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
