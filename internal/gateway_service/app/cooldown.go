package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/mercatto/wagateway/internal/gateway_service/repository"
)

// CooldownGate suppresses automated processing for a fixed window after
// the system (or a human operator on the same number) last sent a
// message, so the agent neither reacts to its own echoes nor talks over
// a human takeover.
type CooldownGate struct {
	store  repository.SessionStore
	logger *slog.Logger
	ttl    time.Duration
}

func NewCooldownGate(store repository.SessionStore, logger *slog.Logger, ttl time.Duration) *CooldownGate {
	return &CooldownGate{
		store:  store,
		logger: logger.With("component", "cooldown_gate"),
		ttl:    ttl,
	}
}

// Active reports whether automation is currently paused for the customer
// and the remaining TTL in seconds (-1 when unknown).
func (g *CooldownGate) Active(ctx context.Context, customerID string) (bool, int) {
	return g.store.IsInCooldown(ctx, customerID)
}

// Arm starts (or restarts) the cooldown window after an outbound send.
func (g *CooldownGate) Arm(ctx context.Context, customerID string) {
	if ok := g.store.SetCooldown(ctx, customerID, g.ttl); ok {
		g.logger.Info("Cooldown armed", "customer_id", customerID, "ttl", g.ttl)
	} else {
		g.logger.Warn("Failed to arm cooldown", "customer_id", customerID)
	}
}
