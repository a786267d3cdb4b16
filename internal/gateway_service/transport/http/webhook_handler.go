package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mercatto/wagateway/internal/gateway_service/app"
	"github.com/mercatto/wagateway/internal/gateway_service/domain"
	"github.com/mercatto/wagateway/internal/gateway_service/repository"
)

const MaxRequestBodySize = 1 << 20 // 1 MB

// PresenceStarter is the subset of the presence coordinator the webhook
// flow needs.
type PresenceStarter interface {
	Start(customerID, presence string, duration time.Duration) bool
	Cancel(customerID string)
}

// BurstScheduler starts one aggregation drain loop per customer.
type BurstScheduler interface {
	Schedule(customerID string) bool
}

// CooldownChecker gates automation after the agent's own sends.
type CooldownChecker interface {
	Active(ctx context.Context, customerID string) (bool, int)
	Arm(ctx context.Context, customerID string)
}

// WebhookHandler receives provider webhook events and routes each one
// through the filter/presence/aggregation pipeline.
type WebhookHandler struct {
	presence    PresenceStarter
	aggregator  BurstScheduler
	cooldown    CooldownChecker
	store       repository.SessionStore
	history     repository.ChatHistoryRepository
	turns       app.TurnHandler
	agentNumber string
	bufferTTL   time.Duration
	presenceDur time.Duration
	logger      *slog.Logger
}

func NewWebhookHandler(
	presence PresenceStarter,
	aggregator BurstScheduler,
	cooldown CooldownChecker,
	store repository.SessionStore,
	history repository.ChatHistoryRepository,
	turns app.TurnHandler,
	agentNumber string,
	bufferTTL time.Duration,
	presenceDur time.Duration,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		presence:    presence,
		aggregator:  aggregator,
		cooldown:    cooldown,
		store:       store,
		history:     history,
		turns:       turns,
		agentNumber: agentNumber,
		bufferTTL:   bufferTTL,
		presenceDur: presenceDur,
		logger:      logger.With("component", "webhook_handler"),
	}
}

// HandleIncoming processes one webhook event. The response is always
// immediate; agent work happens in background goroutines.
func (h *WebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.WarnContext(ctx, "Unparseable webhook payload", "error", err)
		app.RecordWebhookEvent("rejected")
		respondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	defer r.Body.Close()

	event := domain.NormalizeIncoming(payload, h.agentNumber)
	logger.InfoContext(ctx, "Webhook event normalized",
		"customer_id", event.CustomerID,
		"kind", event.Kind,
		"message_id", event.ProviderMessageID,
		"self_sent", event.SelfSent,
		"text_preview", preview(event.Text, 120))

	if event.CustomerID == "" {
		app.RecordWebhookEvent("rejected")
		respondWithError(w, http.StatusBadRequest, "Phone number not found in payload")
		return
	}
	if event.Text == "" {
		app.RecordWebhookEvent("rejected")
		respondWithError(w, http.StatusBadRequest, "Message text not found in payload")
		return
	}

	// Echoes of our own sends never trigger automation. They still enter
	// the history (the customer saw them) and arm the cooldown so a human
	// typing from the agent's number pauses the bot.
	if event.SelfSent {
		if h.history != nil {
			if err := h.history.Append(ctx, event.CustomerID, "assistant", event.Text); err != nil {
				logger.WarnContext(ctx, "Failed to persist self-sent message", "error", err)
			}
		}
		h.cooldown.Arm(ctx, event.CustomerID)
		app.RecordWebhookEvent("ignored")
		respondWithJSON(w, http.StatusOK, WebhookAckDTO{
			Status:  "ignored",
			Reason:  "self_message",
			Message: "Self-sent messages do not trigger automation",
		})
		return
	}

	if active, ttl := h.cooldown.Active(ctx, event.CustomerID); active {
		logger.InfoContext(ctx, "Cooldown active, buffering without automation",
			"customer_id", event.CustomerID, "ttl", ttl)
		// Buffer anyway so the context survives the pause.
		h.store.PushToBuffer(ctx, event.CustomerID, event.Text, h.bufferTTL)
		app.RecordWebhookEvent("cooldown")
		respondWithJSON(w, http.StatusOK, WebhookAckDTO{
			Status:  "cooldown",
			Reason:  "agent_paused",
			TTL:     ttl,
			Message: "Automation paused after an agent send",
		})
		return
	}

	h.presence.Start(event.CustomerID, app.PresenceComposing, h.presenceDur)

	if ok := h.store.PushToBuffer(ctx, event.CustomerID, event.Text, h.bufferTTL); !ok {
		// Buffering backend down: process the message on its own rather
		// than dropping it.
		logger.WarnContext(ctx, "Buffer push failed, processing message directly", "customer_id", event.CustomerID)
		go h.turns.ProcessTurn(context.Background(), event.CustomerID, event.Text)
	} else {
		h.aggregator.Schedule(event.CustomerID)
	}

	app.RecordWebhookEvent("buffering")
	respondWithJSON(w, http.StatusOK, WebhookAckDTO{
		Status:  "buffering",
		Message: "Waiting briefly to group the customer's messages",
	})
}

// HandleWebhookInfo answers availability probes on the webhook alias.
func (h *WebhookHandler) HandleWebhookInfo(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"endpoint": r.URL.Path,
		"alias_of": "/webhook/whatsapp",
		"message":  "Use POST to deliver message events.",
		"health":   "/health",
	})
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
