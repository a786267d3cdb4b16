package http

// PresenceRequestDTO schedules or cancels a typing indicator.
type PresenceRequestDTO struct {
	Number   string `json:"number" validate:"required"`
	Presence string `json:"presence" validate:"required,oneof=composing recording paused"`
	// Duration in milliseconds; clamped to the configured maximum.
	Delay int `json:"delay" validate:"omitempty,min=0"`
}

// PresenceAcceptedDTO confirms a scheduled presence loop.
type PresenceAcceptedDTO struct {
	Status      string `json:"status"`
	Number      string `json:"number"`
	Presence    string `json:"presence"`
	DurationMs  int    `json:"duration_ms"`
	TickSeconds int    `json:"tick_seconds"`
}

// DirectMessageDTO is the body of the direct-test endpoints.
type DirectMessageDTO struct {
	Phone   string `json:"telefone" validate:"required"`
	Message string `json:"mensagem" validate:"required"`
}

// AgentResponseDTO is the synchronous agent answer for test endpoints.
type AgentResponseDTO struct {
	Success   bool   `json:"success"`
	Response  string `json:"response"`
	Phone     string `json:"telefone"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// WebhookAckDTO is the immediate webhook acknowledgment.
type WebhookAckDTO struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	TTL     int    `json:"ttl,omitempty"`
	Message string `json:"message,omitempty"`
}
