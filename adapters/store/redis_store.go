package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/decleanup/dcu/core"
	"github.com/decleanup/dcu/ports"
)

// RedisSessionStore is a Redis implementation of the SessionStore
// port. Records expire naturally via TTL; the lazy deactivation flip
// keeps the remaining TTL so a revoked record cannot outlive the
// session it revokes.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore creates a new Redis session store
func NewRedisSessionStore(client *redis.Client) ports.SessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: "dcu:session:",
	}
}

type sessionRecord struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// CreateSession stores a session record with the given TTL
func (s *RedisSessionStore) CreateSession(ctx context.Context, session core.Session, ttl time.Duration) error {
	payload, err := json.Marshal(sessionRecord(session))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+session.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	return nil
}

// GetSession retrieves a session record. A missing key reads as an
// invalid session, indistinguishable from an expired one.
func (s *RedisSessionStore) GetSession(ctx context.Context, id string) (core.Session, error) {
	payload, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return core.Session{}, core.ErrSessionInvalid
		}
		return core.Session{}, fmt.Errorf("%w: %v", core.ErrStore, err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return core.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return core.Session(rec), nil
}

// DeactivateSession flips the record inactive, keeping the TTL.
// Idempotent; a missing record is already as revoked as it gets.
func (s *RedisSessionStore) DeactivateSession(ctx context.Context, id string) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		if err == core.ErrSessionInvalid {
			return nil
		}
		return err
	}

	session.Active = false
	payload, err := json.Marshal(sessionRecord(session))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+id, payload, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStore, err)
	}
	return nil
}
