package vm

import (
	"errors"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/game"
	"github.com/tolelom/chestchain/rng"
)

// Context is passed to every Handler. It gives access to state, the block
// being built, the triggering call, the economy engine, and the call's own
// random stream.
type Context struct {
	State  core.State
	Block  *core.Block
	Tx     *core.Transaction
	Engine *game.Engine
	Rand   rng.Source

	events []events.Event
}

// Caller is the identity the call runs as.
func (c *Context) Caller() string { return c.Tx.From }

// Now is the block time in unix nanos. Every call in a block sees the same value.
func (c *Context) Now() int64 { return c.Block.Header.Timestamp }

// Emit queues an event. Queued events are published only if the block commits,
// and are dropped if the call is reverted.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.events = append(c.events, events.Event{
		Type:        typ,
		TxID:        c.Tx.ID,
		BlockHeight: c.Block.Header.Height,
		Data:        data,
	})
}

type keptError struct{ err error }

func (k *keptError) Error() string { return k.err.Error() }
func (k *keptError) Unwrap() error { return k.err }

// KeepState marks err as a failure whose state writes must still commit.
// Settlement uses it to resolve a swap as failed without touching the player.
func KeepState(err error) error {
	return &keptError{err: err}
}

func isKept(err error) bool {
	var k *keptError
	return errors.As(err, &k)
}
