package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mercatto/wagateway/internal/gateway_service/repository"
	"github.com/mercatto/wagateway/internal/gateway_service/repository/memory"
)

const (
	bufferKeyPrefix   = "msgbuf:"
	cooldownKeyPrefix = "cooldown:"
	orderKeyPrefix    = "order:"
)

// SessionStore implements repository.SessionStore on Redis. Every
// operation degrades to the in-process fallback store (buffer pushes) or
// to "absent" semantics (cooldown, order) when Redis is unreachable:
// availability wins over strict consistency for this signal layer.
type SessionStore struct {
	client   *goredis.Client
	fallback *memory.SessionStore
	logger   *slog.Logger
}

// NewSessionStore pings Redis once at construction; a failed ping is
// logged but not fatal, the client is kept for later retries.
func NewSessionStore(client *goredis.Client, logger *slog.Logger) *SessionStore {
	s := &SessionStore{
		client:   client,
		fallback: memory.NewSessionStore(),
		logger:   logger.With("component", "session_store"),
	}
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn("Redis unreachable at startup, session signals will degrade to in-process fallback", "error", err)
		} else {
			s.logger.Info("Connected to Redis", "addr", client.Options().Addr)
		}
	}
	return s
}

var _ repository.SessionStore = (*SessionStore)(nil)

func bufferKey(customerID string) string   { return bufferKeyPrefix + customerID }
func cooldownKey(customerID string) string { return cooldownKeyPrefix + customerID }
func orderKey(customerID string) string    { return orderKeyPrefix + customerID }

func (s *SessionStore) PushToBuffer(ctx context.Context, customerID, text string, ttl time.Duration) bool {
	if s.client == nil {
		return s.fallback.PushToBuffer(ctx, customerID, text, ttl)
	}
	key := bufferKey(customerID)
	if err := s.client.RPush(ctx, key, text).Err(); err != nil {
		s.logger.Error("Failed to push message to Redis buffer, using in-process fallback", "error", err, "customer_id", customerID)
		return s.fallback.PushToBuffer(ctx, customerID, text, ttl)
	}
	// TTL only on the first insert of a window: the aggregation window is
	// anchored to the burst's first fragment, not refreshed per message.
	remaining, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		s.logger.Warn("Failed to read buffer TTL", "error", err, "customer_id", customerID)
		return true
	}
	if remaining < 0 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			s.logger.Warn("Failed to set buffer TTL", "error", err, "customer_id", customerID)
		}
	}
	return true
}

func (s *SessionStore) BufferLength(ctx context.Context, customerID string) int {
	if s.client == nil {
		return s.fallback.BufferLength(ctx, customerID)
	}
	n, err := s.client.LLen(ctx, bufferKey(customerID)).Result()
	if err != nil {
		s.logger.Error("Failed to read buffer length", "error", err, "customer_id", customerID)
		return s.fallback.BufferLength(ctx, customerID)
	}
	return int(n) + s.fallback.BufferLength(ctx, customerID)
}

func (s *SessionStore) PopAllAndClear(ctx context.Context, customerID string) []string {
	fallbackMsgs := s.fallback.PopAllAndClear(ctx, customerID)
	if s.client == nil {
		return fallbackMsgs
	}
	key := bufferKey(customerID)

	// LRANGE+DEL in one transaction so a concurrent push lands either in
	// this batch or in a fresh buffer, never in a deleted window.
	pipe := s.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to pop message buffer", "error", err, "customer_id", customerID)
		return fallbackMsgs
	}
	return append(fallbackMsgs, rangeCmd.Val()...)
}

func (s *SessionStore) SetCooldown(ctx context.Context, customerID string, ttl time.Duration) bool {
	if s.client == nil {
		return s.fallback.SetCooldown(ctx, customerID, ttl)
	}
	if err := s.client.Set(ctx, cooldownKey(customerID), "1", ttl).Err(); err != nil {
		s.logger.Error("Failed to set cooldown", "error", err, "customer_id", customerID)
		return false
	}
	return true
}

func (s *SessionStore) IsInCooldown(ctx context.Context, customerID string) (bool, int) {
	if s.client == nil {
		return s.fallback.IsInCooldown(ctx, customerID)
	}
	key := cooldownKey(customerID)
	_, err := s.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return false, -1
	}
	if err != nil {
		// Unreachable backend reads as "no cooldown": the automation keeps
		// answering rather than going silent.
		s.logger.Error("Failed to read cooldown flag", "error", err, "customer_id", customerID)
		return false, -1
	}
	remaining, err := s.client.TTL(ctx, key).Result()
	if err != nil || remaining < 0 {
		return true, -1
	}
	return true, int(remaining.Seconds())
}

func (s *SessionStore) SetOrderActive(ctx context.Context, customerID, value string, ttl time.Duration) bool {
	if s.client == nil {
		return s.fallback.SetOrderActive(ctx, customerID, value, ttl)
	}
	if err := s.client.Set(ctx, orderKey(customerID), value, ttl).Err(); err != nil {
		s.logger.Error("Failed to set order-active flag", "error", err, "customer_id", customerID)
		return false
	}
	return true
}

func (s *SessionStore) IsOrderExpired(ctx context.Context, customerID string) bool {
	if s.client == nil {
		return s.fallback.IsOrderExpired(ctx, customerID)
	}
	_, err := s.client.Get(ctx, orderKey(customerID)).Result()
	if err == goredis.Nil {
		return true
	}
	if err != nil {
		s.logger.Error("Failed to read order-active flag, treating order as expired", "error", err, "customer_id", customerID)
		return true
	}
	return false
}

func (s *SessionStore) RenewOrderTTL(ctx context.Context, customerID string, ttl time.Duration) bool {
	if s.client == nil {
		return s.fallback.RenewOrderTTL(ctx, customerID, ttl)
	}
	// Existence check first: an expired order must not be resurrected by a
	// late renewal.
	exists, err := s.client.Exists(ctx, orderKey(customerID)).Result()
	if err != nil {
		s.logger.Error("Failed to check order existence", "error", err, "customer_id", customerID)
		return false
	}
	if exists == 0 {
		return false
	}
	if err := s.client.Expire(ctx, orderKey(customerID), ttl).Err(); err != nil {
		s.logger.Error("Failed to renew order TTL", "error", err, "customer_id", customerID)
		return false
	}
	return true
}
