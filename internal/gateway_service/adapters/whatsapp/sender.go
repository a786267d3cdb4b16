package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// WhatsApp rejects texts past ~4096 chars; chunk a bit under that.
const maxMessageLength = 4000

// Sender delivers outbound texts through the provider's send endpoint.
// Long replies are split into paragraph-aligned chunks, and each chunk
// is retried through a payload/method fallback cascade because UAZ
// deployments disagree on the expected request shape.
type Sender struct {
	client *Client
	logger *slog.Logger
}

func NewSender(client *Client, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		logger: logger.With("component", "whatsapp_sender"),
	}
}

// SendMessage sends text to the customer, chunking when necessary. It
// fails on the first chunk that exhausts every fallback; earlier chunks
// stay delivered.
func (s *Sender) SendMessage(ctx context.Context, customerID, text string) error {
	endpoint := s.sendURL()
	chunks := splitMessage(text, maxMessageLength)

	s.logger.InfoContext(ctx, "Sending WhatsApp message",
		"customer_id", customerID, "chunks", len(chunks), "token", s.client.maskedToken())

	for i, chunk := range chunks {
		if err := s.sendChunk(ctx, endpoint, customerID, chunk); err != nil {
			return fmt.Errorf("sending chunk %d/%d: %w", i+1, len(chunks), err)
		}
		s.logger.InfoContext(ctx, "Chunk delivered", "customer_id", customerID, "chunk", i+1, "total", len(chunks))
	}
	return nil
}

// sendChunk walks the fallback cascade: preferred method with the
// endpoint's native payload, same method with the alternate payload,
// then both payloads again under the opposite method. The first status
// below 400 wins.
func (s *Sender) sendChunk(ctx context.Context, endpoint, customerID, text string) error {
	main, alt := s.payloads(endpoint, customerID, text)
	primary := s.client.method
	secondary := s.client.alternateMethod()

	attempts := []struct {
		method  string
		payload map[string]string
		label   string
	}{
		{primary, main, "primary"},
		{primary, alt, "alt_payload"},
		{secondary, main, "alt_method"},
		{secondary, alt, "alt_both"},
	}

	var lastStatus int
	var lastBody string
	for _, attempt := range attempts {
		status, body, err := s.client.doRequest(ctx, attempt.method, endpoint, attempt.payload)
		if err != nil {
			s.logger.WarnContext(ctx, "Send attempt failed",
				"attempt", attempt.label, "method", attempt.method, "error", err)
			continue
		}
		s.logger.InfoContext(ctx, "Provider response",
			"attempt", attempt.label, "method", attempt.method, "status", status, "body", body)
		if status < http.StatusBadRequest {
			return nil
		}
		lastStatus = status
		lastBody = body
	}
	return fmt.Errorf("all send attempts rejected, last status %d: %s", lastStatus, lastBody)
}

// sendURL returns the full send endpoint: a configured URL that already
// carries a path is used verbatim, otherwise /message/send is appended.
func (s *Sender) sendURL() string {
	base := s.client.apiURL
	parsed, err := url.Parse(base)
	if err != nil || parsed.Path == "" || parsed.Path == "/" {
		return base + "/message/send"
	}
	return base
}

// payloads returns the endpoint's native field naming first. Endpoints
// ending in /send/text expect {number, text}; the rest expect
// {phone, message}.
func (s *Sender) payloads(endpoint, customerID, text string) (main, alt map[string]string) {
	numberText := map[string]string{"number": digitsOnly(customerID), "text": text}
	phoneMessage := map[string]string{"phone": customerID, "message": text}

	if parsed, err := url.Parse(endpoint); err == nil && strings.HasSuffix(parsed.Path, "/send/text") {
		return numberText, phoneMessage
	}
	return phoneMessage, numberText
}

// splitMessage chunks text at paragraph boundaries so no chunk exceeds
// maxLen. A single paragraph longer than maxLen becomes its own chunk
// unmodified; providers truncate rather than reject in practice.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, paragraph := range strings.Split(text, "\n\n") {
		if current.Len()+len(paragraph)+2 > maxLen && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(paragraph)
		current.WriteString("\n\n")
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}
