package vm

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/crypto"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/game"
	"github.com/tolelom/chestchain/rng"
)

// RandFunc builds the random source a call draws from. seed is derived from
// the producer's seed proof for the call.
type RandFunc func(block *core.Block, tx *core.Transaction, seed []byte) rng.Source

// Executor applies calls to the state one at a time, each all-or-nothing.
type Executor struct {
	state   core.State
	engine  *game.Engine
	seedKey crypto.PrivateKey
	randFor RandFunc
	log     *zap.Logger
}

// Option customises an Executor.
type Option func(*Executor)

// WithRandom overrides how per-call random sources are derived.
func WithRandom(fn RandFunc) Option {
	return func(e *Executor) { e.randFor = fn }
}

// WithLogger sets the executor's logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// NewExecutor creates an Executor over state. seedKey must be the block
// producer's key: each call's random stream is seeded from the producer's
// signature over the previous block hash and the call ID, which callers
// cannot compute when they sign.
func NewExecutor(state core.State, engine *game.Engine, seedKey crypto.PrivateKey, opts ...Option) *Executor {
	e := &Executor{
		state:   state,
		engine:  engine,
		seedKey: seedKey,
		randFor: func(_ *core.Block, _ *core.Transaction, seed []byte) rng.Source {
			return rng.NewStream(seed)
		},
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExecuteBlock runs every call in block in order and fills block.Receipts.
// A failing call never rejects the block; only an infrastructure error does.
// The returned events must be published after the block commits.
func (e *Executor) ExecuteBlock(block *core.Block) ([]events.Event, error) {
	block.Receipts = block.Receipts[:0]
	var out []events.Event
	for _, tx := range block.Transactions {
		rcpt, evs, err := e.ExecuteTx(block, tx)
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", tx.ID, err)
		}
		block.Receipts = append(block.Receipts, rcpt)
		out = append(out, evs...)
	}
	return out, nil
}

// ExecuteTx executes one call with snapshot/rollback and records its receipt.
// The error is non-nil only when state itself could not be read or written.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) (*core.Receipt, []events.Event, error) {
	rcpt := &core.Receipt{
		TxID:        tx.ID,
		Type:        tx.Type,
		From:        tx.From,
		BlockHeight: block.Header.Height,
		SeedProof:   block.SeedProof(e.seedKey, tx),
	}

	ctx, callErr := e.admit(block, tx, core.SeedFromProof(rcpt.SeedProof))
	if callErr == nil {
		snapID, err := e.state.Snapshot()
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: %w", err)
		}
		rcpt.Result, callErr = run(ctx, tx)
		if callErr != nil && !isKept(callErr) {
			if err := e.state.RevertToSnapshot(snapID); err != nil {
				return nil, nil, fmt.Errorf("revert snapshot after %v: %w", callErr, err)
			}
			ctx.events = nil
		}
	}

	var evs []events.Event
	if ctx != nil {
		evs = ctx.events
	}
	if callErr != nil {
		rcpt.Status = core.ReceiptFailed
		rcpt.Result = ""
		rcpt.Error = callErr.Error()
		evs = append(evs, events.Event{
			Type: events.EventTxFailed, TxID: tx.ID, BlockHeight: block.Header.Height,
			Data: map[string]any{"type": string(tx.Type), "from": tx.From, "error": rcpt.Error},
		})
		e.log.Debug("call failed", zap.String("tx", tx.ID), zap.String("type", string(tx.Type)), zap.Error(callErr))
	} else {
		rcpt.Status = core.ReceiptOK
		evs = append(evs, events.Event{
			Type: events.EventTxExecuted, TxID: tx.ID, BlockHeight: block.Header.Height,
			Data: map[string]any{"type": string(tx.Type), "from": tx.From, "result": rcpt.Result},
		})
	}
	if err := e.state.SetReceipt(rcpt); err != nil {
		return nil, nil, fmt.Errorf("store receipt: %w", err)
	}
	return rcpt, evs, nil
}

// admit authenticates the call and, for player calls, consumes its nonce.
// A consumed nonce stays consumed even if the handler later fails, so a
// signed call can never run twice.
func (e *Executor) admit(block *core.Block, tx *core.Transaction, seed []byte) (*Context, error) {
	if err := tx.Verify(); err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	if tx.Type.HostOnly() {
		meta, err := e.state.GetMeta()
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("load meta: %w", err)
		}
		if meta == nil || meta.Host == "" || meta.Host != tx.From {
			return nil, fmt.Errorf("%s: %w", tx.Type, core.ErrUnauthorized)
		}
	} else {
		acc, err := e.state.GetAccount(tx.From)
		if err != nil {
			return nil, fmt.Errorf("get account: %w", err)
		}
		if acc.Nonce != tx.Nonce {
			return nil, fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
		}
		if acc.Nonce == math.MaxUint64 {
			return nil, fmt.Errorf("nonce overflow for account %s", tx.From)
		}
		acc.Nonce++
		if err := e.state.SetAccount(acc); err != nil {
			return nil, fmt.Errorf("set account: %w", err)
		}
	}
	return &Context{
		State:  e.state,
		Block:  block,
		Tx:     tx,
		Engine: e.engine,
		Rand:   e.randFor(block, tx, seed),
	}, nil
}

// run dispatches the call, turning a handler panic into a call failure.
func run(ctx *Context, tx *core.Transaction) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
