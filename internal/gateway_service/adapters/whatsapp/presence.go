package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// PresenceClient pushes typing/recording/paused indicators. Presence
// endpoints are even less standardized than send endpoints, so it
// probes a list of known paths off the base domain and takes the first
// one that answers below 400.
type PresenceClient struct {
	client *Client
	logger *slog.Logger
}

func NewPresenceClient(client *Client, logger *slog.Logger) *PresenceClient {
	return &PresenceClient{
		client: client,
		logger: logger.With("component", "whatsapp_presence"),
	}
}

// SendPresence tries each candidate endpoint with the sanitized-number
// payload, then the raw-phone payload, stopping at the first success.
// Total failure is reported but callers treat it as non-fatal: a
// missing typing indicator must never block message processing.
func (p *PresenceClient) SendPresence(ctx context.Context, customerID, presence string) error {
	domain := p.client.baseDomain()
	candidates := []string{
		domain + "/message/presence",
		domain + "/presence/send",
		domain + "/send/presence",
		domain + "/presence",
	}

	main := map[string]string{"number": digitsOnly(customerID), "presence": presence}
	alt := map[string]string{"phone": customerID, "presence": presence}

	var lastStatus int
	var lastBody string
	for _, endpoint := range candidates {
		for _, payload := range []map[string]string{main, alt} {
			status, body, err := p.client.doRequest(ctx, p.client.method, endpoint, payload)
			if err != nil {
				p.logger.WarnContext(ctx, "Presence attempt failed", "endpoint", endpoint, "error", err)
				break // unreachable endpoint, move to the next candidate
			}
			if status < http.StatusBadRequest {
				p.logger.DebugContext(ctx, "Presence signal accepted",
					"endpoint", endpoint, "presence", presence, "status", status)
				return nil
			}
			lastStatus = status
			lastBody = body
		}
	}

	p.logger.ErrorContext(ctx, "All presence endpoints rejected the signal",
		"presence", presence, "last_status", lastStatus, "last_body", lastBody)
	return fmt.Errorf("presence %q rejected by every endpoint, last status %d", presence, lastStatus)
}
