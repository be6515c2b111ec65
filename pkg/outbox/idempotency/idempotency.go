// Package idempotency remembers which message ids a consumer has already
// handled so redelivered Pub/Sub messages and replayed webhooks are dropped.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/evcharge-backend/pkg/redis"
)

const processedMarker = "1"

var errMissingID = errors.New("message id is required")

// Manager owns the store and the retention window for processed markers.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Scope binds the manager to a single consumer, e.g. "notification-inbox".
func (m *Manager) Scope(consumer string) (*Tracker, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	return &Tracker{manager: m, scope: "processed:" + consumer}, nil
}

// Tracker marks ids for one consumer. Keys look like
// ev:idempotency:processed:<consumer>:<id>.
type Tracker struct {
	manager *Manager
	scope   string
}

// CheckAndMark claims id and reports whether an earlier delivery already had.
func (t *Tracker) CheckAndMark(ctx context.Context, id string) (bool, error) {
	key, err := t.key(id)
	if err != nil {
		return false, err
	}
	claimed, err := t.manager.store.SetNX(ctx, key, processedMarker, t.manager.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Delete drops the claim so a failed delivery can be retried.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	key, err := t.key(id)
	if err != nil {
		return err
	}
	return t.manager.store.Del(ctx, key)
}

func (t *Tracker) key(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", errMissingID
	}
	return t.manager.store.IdempotencyKey(t.scope, id), nil
}
