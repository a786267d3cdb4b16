package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mercatto/wagateway/internal/gateway_service/app"
)

// AgentHandler exposes direct-test endpoints that bypass the webhook
// pipeline: run the agent synchronously, or push a raw outbound send.
type AgentHandler struct {
	agent    app.AgentRunner
	sender   app.MessageSender
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAgentHandler(agent app.AgentRunner, sender app.MessageSender, logger *slog.Logger, validate *validator.Validate) *AgentHandler {
	return &AgentHandler{
		agent:    agent,
		sender:   sender,
		logger:   logger.With("component", "agent_handler"),
		validate: validate,
	}
}

// HandleDryRun runs the agent for one message and returns its reply
// without touching WhatsApp.
func (h *AgentHandler) HandleDryRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DirectMessageDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	output, err := h.agent.Run(ctx, req.Phone, req.Message)
	resp := AgentResponseDTO{
		Success:   err == nil,
		Response:  output,
		Phone:     req.Phone,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "Dry-run agent invocation failed", "error", err, "customer_id", req.Phone)
		resp.Error = err.Error()
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// HandleDryRunInfo documents the dry-run contract for probes.
func (h *AgentHandler) HandleDryRunInfo(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"endpoint": "/agent/dryrun",
		"method":   http.MethodPost,
		"body": map[string]string{
			"telefone": "5511999999999",
			"mensagem": "Quero Coca 2L",
		},
	})
}

// HandleDirectSend pushes one message straight to the provider.
func (h *AgentHandler) HandleDirectSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DirectMessageDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	if err := h.sender.SendMessage(ctx, req.Phone, req.Message); err != nil {
		h.logger.ErrorContext(ctx, "Direct send failed", "error", err, "customer_id", req.Phone)
		respondWithError(w, http.StatusBadGateway, "WhatsApp API rejected the send")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"status":    "sent",
		"telefone":  req.Phone,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
