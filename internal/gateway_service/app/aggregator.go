package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mercatto/wagateway/internal/gateway_service/repository"
)

// TurnHandler receives the aggregated text of one customer burst. It is
// invoked exactly once per flush.
type TurnHandler interface {
	ProcessTurn(ctx context.Context, customerID, text string)
}

// MessageAggregator collapses a rapid-fire sequence of customer messages
// into one agent invocation. Fragments are pushed to the session store by
// the webhook flow; Schedule starts (at most) one drain loop per customer
// that waits for the burst to go quiet before flushing.
type MessageAggregator struct {
	store       repository.SessionStore
	registry    *SessionRegistry
	turns       TurnHandler
	logger      *slog.Logger
	tick        time.Duration
	quietChecks int
	maxWindow   time.Duration
}

func NewMessageAggregator(
	store repository.SessionStore,
	registry *SessionRegistry,
	turns TurnHandler,
	logger *slog.Logger,
	tick time.Duration,
	quietChecks int,
	maxWindow time.Duration,
) *MessageAggregator {
	return &MessageAggregator{
		store:       store,
		registry:    registry,
		turns:       turns,
		logger:      logger.With("component", "message_aggregator"),
		tick:        tick,
		quietChecks: quietChecks,
		maxWindow:   maxWindow,
	}
}

// Schedule starts a drain loop for the customer unless one is already
// running. Returns true when a new loop was started.
func (a *MessageAggregator) Schedule(customerID string) bool {
	ok, _ := a.registry.TryAcquire(customerID)
	if !ok {
		a.logger.Debug("Drain loop already running", "customer_id", customerID)
		return false
	}
	go a.drain(customerID)
	return true
}

// drain waits for quiescence (quietChecks consecutive ticks without
// buffer growth), then atomically pops the buffer and hands the joined
// text to the turn handler. The total window is capped so a customer
// typing continuously cannot postpone the agent forever.
func (a *MessageAggregator) drain(customerID string) {
	// The marker must be released on every exit path, or this customer
	// would be locked out of aggregation for good.
	defer a.registry.Release(customerID)

	ctx := context.Background()
	prevLen := a.store.BufferLength(ctx, customerID)
	quiet := 0
	deadline := time.Now().Add(a.maxWindow)
	reason := "quiescence"

	for quiet < a.quietChecks {
		time.Sleep(a.tick)
		curLen := a.store.BufferLength(ctx, customerID)
		if curLen > prevLen {
			prevLen = curLen
			quiet = 0
		} else {
			quiet++
		}
		if time.Now().After(deadline) {
			reason = "max_window"
			a.logger.Info("Aggregation window cap reached, flushing", "customer_id", customerID, "buffered", curLen)
			break
		}
	}

	fragments := a.store.PopAllAndClear(ctx, customerID)
	if len(fragments) == 0 {
		bufferFlushCounter.WithLabelValues("empty").Inc()
		return
	}

	combined := joinFragments(fragments)
	if combined == "" {
		combined = fragments[len(fragments)-1]
	}
	if strings.TrimSpace(combined) == "" {
		bufferFlushCounter.WithLabelValues("empty").Inc()
		return
	}

	bufferFlushCounter.WithLabelValues(reason).Inc()
	aggregatedFragmentsHist.Observe(float64(len(fragments)))
	a.logger.Info("Flushing aggregated burst", "customer_id", customerID, "fragments", len(fragments))

	a.turns.ProcessTurn(ctx, customerID, combined)
}

// joinFragments concatenates non-blank fragments with a single space.
func joinFragments(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if strings.TrimSpace(f) != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
