package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/internal/testutil"
)

func TestGetMissing(t *testing.T) {
	l := New(testutil.NewStateDB())
	p, ok, err := l.Get("nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, p)
}

// TestGetOrCreateIdempotent verifies a second call returns the stored record
// without invoking create again.
func TestGetOrCreateIdempotent(t *testing.T) {
	l := New(testutil.NewStateDB())
	calls := 0
	create := func() *core.Player {
		calls++
		return &core.Player{Keys: 5, KeysPerClaim: 1}
	}

	p, created, err := l.GetOrCreate("alice", create)
	require.NoError(t, err)
	assert.True(t, created)
	p.Keys = 99 // must not leak into storage without Put

	p, created, err = l.GetOrCreate("alice", create)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint32(5), p.Keys)
	assert.Equal(t, 1, calls)
}

// TestUpdateWritesOnlyOnSuccess verifies a failing mutation leaves the stored
// record unchanged.
func TestUpdateWritesOnlyOnSuccess(t *testing.T) {
	l := New(testutil.NewStateDB())
	require.NoError(t, l.Put("bob", &core.Player{Keys: 1}))

	boom := errors.New("boom")
	_, err := l.Update("bob", func(p *core.Player) error {
		p.Keys = 0
		p.Chests = 7
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, _, err := l.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, &core.Player{Keys: 1}, p)

	p, err = l.Update("bob", func(p *core.Player) error {
		p.Chests++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), p.Chests)

	stored, _, _ := l.Get("bob")
	assert.Equal(t, uint32(1), stored.Chests)
}

func TestUpdateMissing(t *testing.T) {
	l := New(testutil.NewStateDB())
	_, err := l.Update("ghost", func(*core.Player) error { return nil })
	assert.ErrorIs(t, err, core.ErrNotFound)
}
