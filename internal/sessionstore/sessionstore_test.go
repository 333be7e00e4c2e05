package sessionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/williamcotton/webdsl/internal/cache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	c := cache.NewMemoryCache(cache.DefaultConfig())
	t.Cleanup(func() { _ = c.Close() })
	return New(c)
}

func TestNewSessionID_UniqueAndOpaque(t *testing.T) {
	a, err := NewSessionID()
	require.NoError(t, err)
	b, err := NewSessionID()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestGet_MissingSession(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "sid1", map[string]any{"user": "alice"}))

	doc, ok := s.Get(ctx, "sid1")
	require.True(t, ok)
	assert.Equal(t, "alice", doc["user"])
}

func TestGetKey_NoSessionReturnsNotOK(t *testing.T) {
	s := newTestStore(t)
	v, ok := s.GetKey(context.Background(), "missing", "theme")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSetKey_UpsertsIntoExistingSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "sid2", map[string]any{"user": "bob"}))
	require.True(t, s.SetKey(ctx, "sid2", "theme", "dark"))

	v, ok := s.GetKey(ctx, "sid2", "theme")
	require.True(t, ok)
	assert.Equal(t, "dark", v)

	// the pre-existing field survives the upsert
	u, ok := s.GetKey(ctx, "sid2", "user")
	require.True(t, ok)
	assert.Equal(t, "bob", u)
}

func TestSetKey_CreatesSessionWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.True(t, s.SetKey(ctx, "fresh", "count", 1))
	v, ok := s.GetKey(ctx, "fresh", "count")
	require.True(t, ok)
	// JSON round-trip through the cache turns the int into a float64
	assert.EqualValues(t, 1, v)
}

func TestDestroy_RemovesSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "gone", map[string]any{"user": "x"}))
	require.NoError(t, s.Destroy(ctx, "gone"))

	_, ok := s.Get(ctx, "gone")
	assert.False(t, ok)
}

func TestMarshalUser(t *testing.T) {
	type ghUser struct {
		Login string `json:"login"`
		ID    int    `json:"id"`
	}
	m, err := MarshalUser(ghUser{Login: "alice", ID: 7})
	require.NoError(t, err)
	assert.Equal(t, "alice", m["login"])
	assert.EqualValues(t, 7, m["id"])
}
