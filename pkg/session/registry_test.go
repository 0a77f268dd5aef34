package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	s := New("conn-1", 4)

	r.Add(s)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("conn-1")
	require.True(t, ok)
	assert.Same(t, s, got)

	removed := r.Remove("conn-1")
	assert.Same(t, s, removed)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Get("conn-1")
	assert.False(t, ok)
}

func TestRegistryRemoveUnknown(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Remove("conn-1"))
}

func TestRegistryBindAndLookup(t *testing.T) {
	r := NewRegistry()
	s := New("conn-1", 4)
	require.NoError(t, s.Initialize("deploy-bot", "2025-01-01"))

	r.Add(s)
	r.Bind(s, "deploy-bot")

	got, ok := r.Client("deploy-bot")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.Client("other-bot")
	assert.False(t, ok)
}

func TestRegistryBindNewestWins(t *testing.T) {
	r := NewRegistry()

	old := New("conn-1", 4)
	require.NoError(t, old.Initialize("deploy-bot", "2025-01-01"))
	r.Add(old)
	r.Bind(old, "deploy-bot")

	replacement := New("conn-2", 4)
	require.NoError(t, replacement.Initialize("deploy-bot", "2025-01-01"))
	r.Add(replacement)
	r.Bind(replacement, "deploy-bot")

	got, ok := r.Client("deploy-bot")
	require.True(t, ok)
	assert.Same(t, replacement, got)

	// The displaced session is closed so its writer unwinds.
	select {
	case <-old.Done():
	default:
		t.Fatal("displaced session should be closed")
	}
}

func TestRegistryRemoveFreesClientBinding(t *testing.T) {
	r := NewRegistry()
	s := New("conn-1", 4)
	require.NoError(t, s.Initialize("deploy-bot", "2025-01-01"))
	r.Add(s)
	r.Bind(s, "deploy-bot")

	r.Remove("conn-1")

	_, ok := r.Client("deploy-bot")
	assert.False(t, ok)
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	a := New("conn-1", 4)
	b := New("conn-2", 4)
	r.Add(a)
	r.Add(b)

	r.CloseAll()

	for _, s := range []*Session{a, b} {
		select {
		case <-s.Done():
		default:
			t.Fatalf("session %s should be closed", s.ID)
		}
	}
}

func TestRegistryRemoveKeepsNewerBinding(t *testing.T) {
	r := NewRegistry()

	old := New("conn-1", 4)
	require.NoError(t, old.Initialize("deploy-bot", "2025-01-01"))
	r.Add(old)
	r.Bind(old, "deploy-bot")

	replacement := New("conn-2", 4)
	require.NoError(t, replacement.Initialize("deploy-bot", "2025-01-01"))
	r.Add(replacement)
	r.Bind(replacement, "deploy-bot")

	// Removing the displaced connection must not strip the new binding.
	r.Remove("conn-1")

	got, ok := r.Client("deploy-bot")
	require.True(t, ok)
	assert.Same(t, replacement, got)
}
