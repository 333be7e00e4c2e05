// Package sessionstore adapts the cache.Cache interface to the narrow
// get/set contract the script-language library surface (getStore/
// setStore) and the dispatcher's session-cookie lookup need.
// Session data lives in whichever cache.Cache backs the store: the
// in-memory cache by default, or Redis when one is configured, in which
// case it survives process restarts and is shared across processes.
package sessionstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/williamcotton/webdsl/internal/cache"
)

// DefaultTTL is how long a session persists without being refreshed.
const DefaultTTL = 24 * time.Hour

// Store wraps a cache.Cache, namespacing every key under a session id so
// unrelated cache users (if any were ever to share the backend) can't
// collide with session data.
type Store struct {
	cache cache.Cache
	ttl   time.Duration
}

// New wraps c with the default session TTL.
func New(c cache.Cache) *Store {
	return &Store{cache: c, ttl: DefaultTTL}
}

// NewSessionID returns a fresh opaque, cryptographically random session
// identifier suitable for a cookie value.
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sessionstore: generating session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Create writes initial (an empty document when nil) as the session
// document for sessionID with the store's TTL and returns once it is set.
func (s *Store) Create(ctx context.Context, sessionID string, initial map[string]any) error {
	if initial == nil {
		initial = map[string]any{}
	}
	return s.cache.SetJSON(ctx, sessionKey(sessionID), initial, s.ttl)
}

// Get reads the full session document for sessionID. ok is false if no
// session exists (either never created or expired).
func (s *Store) Get(ctx context.Context, sessionID string) (map[string]any, bool) {
	var doc map[string]any
	if err := s.cache.GetJSON(ctx, sessionKey(sessionID), &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// GetKey implements the script library's getStore(key): it reads the
// current session's document and returns the single field named key, or
// nil if there is no session or no such key.
func (s *Store) GetKey(ctx context.Context, sessionID, key string) (any, bool) {
	doc, ok := s.Get(ctx, sessionID)
	if !ok {
		return nil, false
	}
	v, ok := doc[key]
	return v, ok
}

// SetKey implements the script library's setStore(key, value): an upsert
// of a single field within the session document, creating the session
// document if it did not already exist. Returns false only on a storage
// error (the function reports success, not whether the key already
// existed).
func (s *Store) SetKey(ctx context.Context, sessionID, key string, value any) bool {
	doc, ok := s.Get(ctx, sessionID)
	if !ok {
		doc = map[string]any{}
	}
	doc[key] = value
	if err := s.cache.SetJSON(ctx, sessionKey(sessionID), doc, s.ttl); err != nil {
		return false
	}
	return true
}

// Destroy removes sessionID's document entirely, used on logout.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, sessionKey(sessionID))
}

// MarshalUser is a convenience used by the OAuth callback to store the
// resolved GitHub identity alongside any other session fields.
func MarshalUser(u any) (map[string]any, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
