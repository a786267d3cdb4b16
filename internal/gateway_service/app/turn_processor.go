package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mercatto/wagateway/internal/gateway_service/repository"
	"github.com/mercatto/wagateway/internal/platform/messagebroker"
)

// Customer-facing fallback texts. Kept in Portuguese to match the store's
// clientele.
const (
	emptyOutputReply = "Desculpe, não consegui processar sua mensagem. Por favor, tente novamente."
	agentErrorReply  = "Desculpe, ocorreu um erro ao processar sua mensagem. Por favor, tente novamente."
)

// NATS subjects for turn lifecycle events.
const (
	subjectTurnCompleted = "wagateway.turns.completed"
	subjectTurnFailed    = "wagateway.turns.failed"
)

// AgentRunner is the opaque LLM agent collaborator. It may block for
// seconds and is not assumed idempotent.
type AgentRunner interface {
	Run(ctx context.Context, customerID, text string) (string, error)
}

// MessageSender delivers one outbound text to the customer.
type MessageSender interface {
	SendMessage(ctx context.Context, customerID, text string) error
}

// PresenceCanceller clears the typing indicator for a customer.
type PresenceCanceller interface {
	Cancel(customerID string)
}

// TurnEvent is published to NATS after every processed turn.
type TurnEvent struct {
	TurnID     string    `json:"turn_id"`
	CustomerID string    `json:"customer_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TurnProcessor orchestrates one full customer turn: run the agent,
// normalize its output, deliver the reply, and on every exit path
// cancel the presence indicator. Each delivered reply also keeps the
// customer's order session alive.
type TurnProcessor struct {
	agent      AgentRunner
	sender     MessageSender
	presence   PresenceCanceller
	store      repository.SessionStore
	orderTTL   time.Duration
	natsClient messagebroker.NATSClient // optional, best-effort events
	logger     *slog.Logger
}

func NewTurnProcessor(
	agent AgentRunner,
	sender MessageSender,
	presence PresenceCanceller,
	store repository.SessionStore,
	orderTTL time.Duration,
	natsClient messagebroker.NATSClient,
	logger *slog.Logger,
) *TurnProcessor {
	return &TurnProcessor{
		agent:      agent,
		sender:     sender,
		presence:   presence,
		store:      store,
		orderTTL:   orderTTL,
		natsClient: natsClient,
		logger:     logger.With("component", "turn_processor"),
	}
}

var _ TurnHandler = (*TurnProcessor)(nil)

// ProcessTurn runs one agent turn. It never returns an error to its
// caller: every failure is logged, answered with a best-effort apology,
// and reported via the turn event. The presence indicator is cleared
// whatever happens.
func (p *TurnProcessor) ProcessTurn(ctx context.Context, customerID, text string) {
	start := time.Now()
	// The typing indicator must never be left dangling, whether the agent
	// succeeds, returns nothing, or fails.
	defer p.presence.Cancel(customerID)
	defer func() {
		turnDurationHist.Observe(time.Since(start).Seconds())
	}()

	p.logger.InfoContext(ctx, "Processing customer turn", "customer_id", customerID, "text_len", len(text))

	output, err := p.agent.Run(ctx, customerID, text)
	if err != nil {
		p.logger.ErrorContext(ctx, "Agent invocation failed", "error", err, "customer_id", customerID)
		turnsProcessedCounter.WithLabelValues("agent_error").Inc()
		// Secondary failures are swallowed: the apology is best-effort.
		if sendErr := p.sender.SendMessage(ctx, customerID, agentErrorReply); sendErr != nil {
			p.logger.WarnContext(ctx, "Failed to deliver error reply", "error", sendErr, "customer_id", customerID)
		}
		p.publishEvent(ctx, customerID, "agent_error", err.Error())
		return
	}

	status := "success"
	if strings.TrimSpace(output) == "" {
		p.logger.WarnContext(ctx, "Agent returned empty output, using fallback reply", "customer_id", customerID)
		output = emptyOutputReply
		status = "empty_output"
	}

	if err := p.sender.SendMessage(ctx, customerID, output); err != nil {
		p.logger.ErrorContext(ctx, "Failed to deliver agent reply", "error", err, "customer_id", customerID)
		turnsProcessedCounter.WithLabelValues("delivery_error").Inc()
		p.publishEvent(ctx, customerID, "delivery_error", err.Error())
		return
	}

	p.refreshOrderSession(ctx, customerID)

	turnsProcessedCounter.WithLabelValues(status).Inc()
	p.logger.InfoContext(ctx, "Turn completed", "customer_id", customerID, "status", status)
	p.publishEvent(ctx, customerID, status, "")
}

// refreshOrderSession extends the customer's order window after a
// delivered reply. An expired or absent session is restarted rather than
// resurrected, matching the renew-then-set semantics of the store.
func (p *TurnProcessor) refreshOrderSession(ctx context.Context, customerID string) {
	if p.store == nil || p.orderTTL <= 0 {
		return
	}
	if p.store.RenewOrderTTL(ctx, customerID, p.orderTTL) {
		return
	}
	if !p.store.SetOrderActive(ctx, customerID, "active", p.orderTTL) {
		p.logger.WarnContext(ctx, "Failed to refresh order session", "customer_id", customerID)
	}
}

func (p *TurnProcessor) publishEvent(ctx context.Context, customerID, status, errMsg string) {
	if p.natsClient == nil {
		return
	}
	event := TurnEvent{
		TurnID:     uuid.NewString(),
		CustomerID: customerID,
		Status:     status,
		Error:      errMsg,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("Failed to marshal turn event", "error", err)
		return
	}
	subject := subjectTurnCompleted
	if errMsg != "" {
		subject = subjectTurnFailed
	}
	if err := p.natsClient.Publish(ctx, subject, data); err != nil {
		p.logger.Warn("Failed to publish turn event", "error", err, "subject", subject)
	}
}
