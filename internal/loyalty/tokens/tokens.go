// Package tokens holds the current access/refresh pair. Reads are served from
// memory; durable writes are queued on a background writer.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/store"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
)

// Persister queues durable writes. store.Writer implements it.
type Persister interface {
	Put(key string, value []byte)
	Remove(key string)
	Flush(ctx context.Context) error
}

type Store struct {
	kv     store.KV
	writer Persister
	logger *slog.Logger

	mu   sync.RWMutex
	pair domain.TokenPair
}

func New(kv store.KV, writer Persister, logger *slog.Logger) *Store {
	return &Store{kv: kv, writer: writer, logger: slogx.OrDiscard(logger)}
}

// Initialize loads the persisted pair into memory. Missing or unreadable
// records leave memory empty; this never fails.
func (s *Store) Initialize(ctx context.Context) {
	raw, err := s.kv.Get(ctx, store.KeyTokens)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Debug("no persisted tokens")
		return
	case err != nil:
		s.logger.Warn("failed to read persisted tokens", "error", err)
		return
	}

	var pair domain.TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		s.logger.Warn("discarding corrupt token record", "error", err)
		s.writer.Remove(store.KeyTokens)
		return
	}

	if !pair.Complete() {
		s.logger.Warn("discarding incomplete token record")
		s.writer.Remove(store.KeyTokens)
		return
	}

	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()

	s.logger.Debug("tokens restored")
}

// AccessToken returns the in-memory access token, or "" when absent.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken
}

// RefreshToken returns the in-memory refresh token, or "" when absent.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.RefreshToken
}

// Pair returns both tokens under one lock.
func (s *Store) Pair() domain.TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

// SetTokens replaces the pair in memory and queues the durable write. The new
// pair is visible to readers before the write lands. An incomplete pair
// clears instead.
func (s *Store) SetTokens(pair domain.TokenPair) {
	if !pair.Complete() {
		s.logger.Warn("refusing to store incomplete token pair; clearing")
		s.ClearTokens()
		return
	}

	raw, err := json.Marshal(pair)
	if err != nil {
		// TokenPair is two strings; this cannot fail.
		panic(err)
	}

	// Queued under the lock so durable order matches memory order.
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.writer.Put(store.KeyTokens, raw)
}

// ClearTokens empties memory and queues removal of the durable record.
func (s *Store) ClearTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = domain.TokenPair{}
	s.writer.Remove(store.KeyTokens)
}

// Flush waits for queued durable writes.
func (s *Store) Flush(ctx context.Context) error {
	return s.writer.Flush(ctx)
}
