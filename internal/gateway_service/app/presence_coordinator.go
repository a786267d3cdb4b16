package app

import (
	"context"
	"log/slog"
	"time"
)

// Presence kinds accepted by the messaging provider.
const (
	PresenceComposing = "composing"
	PresenceRecording = "recording"
	PresencePaused    = "paused"
)

// PresenceSender delivers one presence signal to the messaging provider.
// Implementations are best-effort: an error never aborts the loop.
type PresenceSender interface {
	SendPresence(ctx context.Context, customerID, presence string) error
}

// PresenceCoordinator owns the "typing..." indicator lifecycle per
// customer: a repeating-signal loop with an idempotent, race-safe cancel.
// At most one loop runs per customer id (single-flight via the registry).
type PresenceCoordinator struct {
	sender      PresenceSender
	registry    *SessionRegistry
	logger      *slog.Logger
	tick        time.Duration
	maxDuration time.Duration
}

func NewPresenceCoordinator(sender PresenceSender, registry *SessionRegistry, logger *slog.Logger, tick, maxDuration time.Duration) *PresenceCoordinator {
	return &PresenceCoordinator{
		sender:      sender,
		registry:    registry,
		logger:      logger.With("component", "presence_coordinator"),
		tick:        tick,
		maxDuration: maxDuration,
	}
}

// Start schedules a presence loop for the customer and returns
// immediately. Returns true when a new loop was started.
//
//   - "paused" short-circuits to Cancel.
//   - A running loop makes this a no-op (single-flight).
//   - A pending cancellation is honored: no initial signal is sent, only a
//     "paused" to clear the indicator, and the session record is consumed.
func (c *PresenceCoordinator) Start(customerID, presence string, duration time.Duration) bool {
	if presence == PresencePaused {
		c.Cancel(customerID)
		return false
	}
	if duration <= 0 || duration > c.maxDuration {
		duration = c.maxDuration
	}

	ok, wasCancelled := c.registry.TryAcquire(customerID)
	if !ok {
		if wasCancelled {
			// TryAcquire already consumed the cancellation marker; this
			// caller only clears the customer-facing indicator.
			c.logger.Debug("Presence start after cancel, clearing indicator only", "customer_id", customerID)
			go c.send(customerID, PresencePaused)
		} else {
			c.logger.Debug("Presence loop already active, ignoring start", "customer_id", customerID)
		}
		return false
	}

	go c.run(customerID, presence, duration)
	return true
}

// Cancel is idempotent and safe to call before any loop exists: the
// cancellation marker is pre-created so a loop starting right after still
// sees it. A "paused" signal goes out immediately regardless, so the
// customer-facing indicator clears even before the loop polls its flag.
func (c *PresenceCoordinator) Cancel(customerID string) {
	c.registry.RequestCancel(customerID)
	c.send(customerID, PresencePaused)
}

func (c *PresenceCoordinator) run(customerID, presence string, duration time.Duration) {
	defer c.registry.Release(customerID)

	c.logger.Info("Presence loop started", "customer_id", customerID, "presence", presence, "duration", duration)
	deadline := time.Now().Add(duration)
	c.send(customerID, presence)

	for time.Now().Before(deadline) {
		// Checked both before and after the sleep so a cancellation never
		// costs one extra signal.
		if c.registry.Cancelled(customerID) {
			break
		}
		time.Sleep(c.tick)
		if c.registry.Cancelled(customerID) {
			break
		}
		c.send(customerID, presence)
	}

	c.send(customerID, PresencePaused)
	c.logger.Info("Presence loop finished", "customer_id", customerID)
}

func (c *PresenceCoordinator) send(customerID, presence string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.sender.SendPresence(ctx, customerID, presence); err != nil {
		presenceSignalsCounter.WithLabelValues(presence, "failed").Inc()
		c.logger.Warn("Failed to send presence signal", "error", err, "customer_id", customerID, "presence", presence)
		return
	}
	presenceSignalsCounter.WithLabelValues(presence, "sent").Inc()
}
