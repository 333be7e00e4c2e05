package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena_AllocAlignment(t *testing.T) {
	a := New(64)

	b1, err := a.Alloc(3)
	require.NoError(t, err)
	assert.Len(t, b1, 3)
	assert.Equal(t, 8, a.Used(), "a 3-byte allocation rounds up to 8")

	b2, err := a.Alloc(1)
	require.NoError(t, err)
	assert.Len(t, b2, 1)
	assert.Equal(t, 16, a.Used())
}

func TestArena_ExhaustionReturnsError(t *testing.T) {
	a := New(8)
	_, err := a.Alloc(8)
	require.NoError(t, err)

	_, err = a.Alloc(1)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestArena_AllocationsNeverMove(t *testing.T) {
	a := New(32)
	b1, err := a.Alloc(8)
	require.NoError(t, err)
	b1[0] = 0xAB

	_, err = a.Alloc(8)
	require.NoError(t, err)

	assert.Equal(t, byte(0xAB), b1[0], "earlier allocations remain valid and unmoved")
}

func TestArena_DupString(t *testing.T) {
	a := New(64)
	s, err := a.DupString("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
}

func TestArena_Reset(t *testing.T) {
	a := New(16)
	_, err := a.Alloc(16)
	require.NoError(t, err)

	_, err = a.Alloc(1)
	require.ErrorIs(t, err, ErrExhausted)

	a.Reset()
	_, err = a.Alloc(16)
	require.NoError(t, err)
}
