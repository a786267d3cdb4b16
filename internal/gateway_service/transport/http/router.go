package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
)

const serviceVersion = "1.0.0"

// NewRouter assembles the gateway's HTTP surface. The root POST and
// /webhook/uaz are aliases kept for existing provider configurations
// that cannot be repointed.
func NewRouter(webhooks *WebhookHandler, presence *PresenceHandler, agent *AgentHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)
	r.Use(chi_middleware.Timeout(60 * time.Second))

	r.Get("/", handleRoot)
	r.Get("/health", handleHealth)

	r.Post("/", webhooks.HandleIncoming)
	r.Post("/webhook/whatsapp", webhooks.HandleIncoming)
	r.Post("/webhook/uaz", webhooks.HandleIncoming)
	r.Get("/webhook/uaz", webhooks.HandleWebhookInfo)

	r.Post("/presence", presence.HandlePresence)

	r.Post("/agent/dryrun", agent.HandleDryRun)
	r.Get("/agent/dryrun", agent.HandleDryRunInfo)
	r.Post("/message", agent.HandleDryRun)
	r.Post("/send_whatsapp", agent.HandleDirectSend)

	return r
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "online",
		"service":   "Grocery WhatsApp Gateway",
		"version":   serviceVersion,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
