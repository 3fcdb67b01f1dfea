// Package session owns the signed-in user. It is the only writer of
// domain.Session, keeps the token store in step with the user, and persists
// the session so a restart resumes it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/store"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
)

// User-visible messages.
const (
	MsgMissingCredentials = "Please enter both username and password"
	MsgRefreshFailed      = "Failed to refresh token"
)

// AuthAPI is the backend as the session sees it. service.AuthService
// implements it.
type AuthAPI interface {
	Login(ctx context.Context, req domain.LoginRequest) (domain.UserProfile, error)
	Refresh(ctx context.Context, refresh string) (domain.TokenPair, error)
	Logout(ctx context.Context) error
}

// Tokens is the token store as the session sees it.
type Tokens interface {
	Pair() domain.TokenPair
	SetTokens(pair domain.TokenPair)
	ClearTokens()
}

// Persister queues durable writes. store.Writer implements it.
type Persister interface {
	Put(key string, value []byte)
}

type Store struct {
	auth   AuthAPI
	tokens Tokens
	kv     store.KV
	writer Persister
	logger *slog.Logger

	// refreshMu serialises RefreshToken so overlapping callers do not spend
	// the same refresh token twice.
	refreshMu sync.Mutex

	mu      sync.Mutex
	state   domain.Session
	subs    map[int]func(domain.Session)
	nextSub int
}

func New(auth AuthAPI, tokens Tokens, kv store.KV, writer Persister, logger *slog.Logger) *Store {
	return &Store{
		auth:   auth,
		tokens: tokens,
		kv:     kv,
		writer: writer,
		logger: slogx.OrDiscard(logger),
		subs:   make(map[int]func(domain.Session)),
	}
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers fn to receive a copy of the session after every change.
// Calls happen on the mutating goroutine, outside the store's lock.
func (s *Store) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// SetUser stores u and its tokens together: the token store is updated first,
// then the session. nil signs out locally. A user without a complete token
// pair is refused and treated as nil.
func (s *Store) SetUser(u *domain.UserProfile) {
	if u != nil && !u.Tokens().Complete() {
		s.logger.Warn("refusing user without a complete token pair", "user", u.UserName)
		u = nil
	}

	if u == nil {
		s.tokens.ClearTokens()
		s.update(func(st *domain.Session) { st.User = nil })
		return
	}

	cp := u.WithTokens(u.Tokens())
	s.tokens.SetTokens(cp.Tokens())
	s.update(func(st *domain.Session) { st.User = &cp })
}

// AdoptTokens merges a pair the API client rotated on its own into the
// signed-in user. Without a user it does nothing.
func (s *Store) AdoptTokens(pair domain.TokenPair) {
	if !pair.Complete() {
		return
	}

	s.update(func(st *domain.Session) {
		if st.User == nil || st.User.Tokens() == pair {
			return
		}
		u := st.User.WithTokens(pair)
		st.User = &u
	})
}

// EndSession signs the user out after the API client failed to refresh. The
// user sees MsgRefreshFailed.
func (s *Store) EndSession(err error) {
	s.tokens.ClearTokens()
	s.update(func(st *domain.Session) {
		if st.User == nil {
			return
		}
		s.logger.Warn("refresh failed; signing out", "user", st.User.UserName, "error", err)
		st.User = nil
		st.Error = MsgRefreshFailed
	})
}

func (s *Store) SetLoading(loading bool) {
	s.update(func(st *domain.Session) { st.IsLoading = loading })
}

// SetError sets the user-visible error; "" clears it.
func (s *Store) SetError(msg string) {
	s.update(func(st *domain.Session) { st.Error = msg })
}

// Hydrated reports whether MarkHydrated has run.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsHydrated
}

// MarkHydrated records that Load has finished. Only the first call has an
// effect.
func (s *Store) MarkHydrated() {
	s.mu.Lock()
	if s.state.IsHydrated {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.update(func(st *domain.Session) { st.IsHydrated = true })
}

func (s *Store) update(fn func(*domain.Session)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.state.Clone()
	s.persistLocked(snap)

	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	subs := make([]func(domain.Session), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap.Clone())
	}
}

// persisted is the auth-storage record.
type persisted struct {
	State struct {
		User      *domain.UserProfile `json:"user"`
		IsLoading bool                `json:"isLoading"`
		Error     *string             `json:"error"`
	} `json:"state"`
	Version int `json:"version"`
}

// persistLocked queues the session record. Called with mu held so queued
// writes follow mutation order.
func (s *Store) persistLocked(snap domain.Session) {
	var rec persisted
	rec.State.User = snap.User
	rec.State.IsLoading = snap.IsLoading
	if snap.Error != "" {
		msg := snap.Error
		rec.State.Error = &msg
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("failed to encode session", "error", err)
		return
	}
	s.writer.Put(store.KeySession, raw)
}

// Load restores the persisted session. Missing or unreadable records give an
// empty session; only a cancelled ctx is an error. The caller marks the
// store hydrated once Load returns.
//
// The token store is authoritative for tokens: it sees every rotation,
// including ones done by the API client's retry path. A restored user adopts
// its pair, and a user whose tokens are gone is dropped.
func (s *Store) Load(ctx context.Context) (domain.Session, error) {
	raw, err := s.kv.Get(ctx, store.KeySession)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Session{}, ctxErr
	}

	var rec persisted
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Debug("no persisted session")
	case err != nil:
		s.logger.Warn("failed to read persisted session", "error", err)
	default:
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("discarding corrupt session record", "error", err)
			rec = persisted{}
		}
	}

	user := rec.State.User
	if user != nil {
		pair := s.tokens.Pair()
		if pair.Complete() {
			merged := user.WithTokens(pair)
			user = &merged
		} else {
			s.logger.Info("restored user has no stored tokens; signing out")
			user = nil
		}
	}

	s.update(func(st *domain.Session) {
		st.User = user
		st.IsLoading = false
		if rec.State.Error != nil {
			st.Error = *rec.State.Error
		}
	})

	if user == nil {
		s.tokens.ClearTokens()
	}
	return s.Snapshot(), nil
}
