package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

const (
	requestTimeout  = 10 * time.Second
	bodyPreviewSize = 800
)

// Client holds the shared configuration for talking to the UAZ-style
// WhatsApp HTTP API. Providers differ in endpoint paths, payload field
// names, and even HTTP method, so both the sender and the presence
// client probe alternatives instead of assuming one dialect.
type Client struct {
	httpClient *http.Client
	apiURL     string // base domain, optionally with a full send path
	token      string
	method     string // preferred HTTP method, "POST" or "GET"
	logger     *slog.Logger
}

func NewClient(apiURL, token, method string, logger *slog.Logger) *Client {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method != http.MethodGet {
		method = http.MethodPost
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		apiURL:     strings.TrimRight(apiURL, "/"),
		token:      strings.TrimSpace(token),
		method:     method,
		logger:     logger.With("component", "whatsapp_client"),
	}
}

// doRequest performs one attempt against the provider. GET carries the
// payload as query parameters, POST as a JSON body. The provider's token
// scheme is a bare `token` header, not a Bearer.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload map[string]string) (int, string, error) {
	var req *http.Request
	var err error

	if method == http.MethodGet {
		params := url.Values{}
		for k, v := range payload {
			params.Set(k, v)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	} else {
		var body []byte
		body, err = json.Marshal(payload)
		if err == nil {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		}
	}
	if err != nil {
		return 0, "", fmt.Errorf("building %s request to %s: %w", method, endpoint, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("calling %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, bodyPreviewSize))
	return resp.StatusCode, string(preview), nil
}

func (c *Client) alternateMethod() string {
	if c.method == http.MethodGet {
		return http.MethodPost
	}
	return http.MethodGet
}

// baseDomain strips any path from the configured API URL. Presence
// endpoints always hang off the domain root, even when the send URL was
// configured with a full path.
func (c *Client) baseDomain() string {
	parsed, err := url.Parse(c.apiURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return c.apiURL
	}
	return parsed.Scheme + "://" + parsed.Host
}

// maskedToken returns the token safe for logging.
func (c *Client) maskedToken() string {
	if c.token == "" {
		return "<empty>"
	}
	if len(c.token) <= 12 {
		return "***"
	}
	return c.token[:8] + "..." + c.token[len(c.token)-4:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
