package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mercatto/wagateway/internal/gateway_service/app"
	"github.com/mercatto/wagateway/internal/gateway_service/domain"
)

// PresenceHandler exposes manual presence control, mostly for operators
// and integration tests.
type PresenceHandler struct {
	presence    PresenceStarter
	maxDuration time.Duration
	tick        time.Duration
	logger      *slog.Logger
	validate    *validator.Validate
}

func NewPresenceHandler(presence PresenceStarter, maxDuration, tick time.Duration, logger *slog.Logger, validate *validator.Validate) *PresenceHandler {
	return &PresenceHandler{
		presence:    presence,
		maxDuration: maxDuration,
		tick:        tick,
		logger:      logger.With("component", "presence_handler"),
		validate:    validate,
	}
}

// HandlePresence schedules a presence loop, or cancels one when the
// requested presence is "paused".
func (h *PresenceHandler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PresenceRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	number := domain.NormalizePhone(req.Number)
	if number == "" {
		respondWithError(w, http.StatusBadRequest, "Number contains no digits")
		return
	}

	duration := time.Duration(req.Delay) * time.Millisecond
	if duration <= 0 || duration > h.maxDuration {
		duration = h.maxDuration
	}

	if req.Presence == app.PresencePaused {
		// Cancel inline so the indicator clears before we answer.
		h.presence.Cancel(number)
	} else {
		if !h.presence.Start(number, req.Presence, duration) {
			h.logger.InfoContext(ctx, "Presence loop already active, request ignored", "customer_id", number)
		}
	}

	respondWithJSON(w, http.StatusOK, PresenceAcceptedDTO{
		Status:      "accepted",
		Number:      number,
		Presence:    req.Presence,
		DurationMs:  int(duration / time.Millisecond),
		TickSeconds: int(h.tick / time.Second),
	})
}
