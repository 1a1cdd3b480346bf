// Package sequencer orders calls into blocks. A single host key produces
// every block; there is no validator set and no fork choice.
package sequencer

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/chestchain/config"
	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/crypto"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/vm"
)

const defaultMaxBlockTxs = 500

// Producer builds, executes, signs, and commits blocks.
type Producer struct {
	bc       *core.Blockchain
	state    core.State
	mempool  *core.Mempool
	exec     *vm.Executor
	emitter  *events.Emitter
	privKey  crypto.PrivateKey
	pubKey   crypto.PublicKey
	maxTxs   int
	skipIdle bool
	log      *zap.Logger
}

// Option customises a Producer.
type Option func(*Producer)

// WithMaxBlockTxs caps the number of calls per block.
func WithMaxBlockTxs(n int) Option {
	return func(p *Producer) {
		if n > 0 {
			p.maxTxs = n
		}
	}
}

// WithEmptyBlocks makes Run produce a block on every tick, even when the
// mempool is empty.
func WithEmptyBlocks() Option {
	return func(p *Producer) { p.skipIdle = false }
}

// WithLogger sets the producer's logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Producer) { p.log = log }
}

// New creates a Producer signing with privKey.
func New(
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	opts ...Option,
) *Producer {
	p := &Producer{
		bc:       bc,
		state:    state,
		mempool:  mempool,
		exec:     exec,
		emitter:  emitter,
		privKey:  privKey,
		pubKey:   privKey.Public(),
		maxTxs:   defaultMaxBlockTxs,
		skipIdle: true,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.Named("sequencer")
	return p
}

// ProduceBlock executes the next batch of pending calls and commits it.
// Events are published only once the block and its state are durable.
func (p *Producer) ProduceBlock() (*core.Block, error) {
	txs := p.mempool.Pending(p.maxTxs)

	prevHash := config.GenesisHash
	height := int64(1)
	tip := p.bc.Tip()
	if tip != nil {
		prevHash = tip.Hash
		height = tip.Header.Height + 1
	}
	block := core.NewBlock(height, prevHash, p.pubKey.Hex(), txs)
	if tip != nil && block.Header.Timestamp < tip.Header.Timestamp {
		block.Header.Timestamp = tip.Header.Timestamp
	}

	snap, err := p.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	evs, err := p.exec.ExecuteBlock(block)
	if err != nil {
		p.rollback(snap)
		return nil, fmt.Errorf("execute block: %w", err)
	}

	// The root comes from the write buffer before it is flushed, so a
	// failed AddBlock leaves nothing persisted.
	block.Header.StateRoot = p.state.ComputeRoot()
	block.Sign(p.privKey)

	if err := p.bc.AddBlock(block); err != nil {
		p.rollback(snap)
		return nil, fmt.Errorf("add block: %w", err)
	}
	if err := p.state.Commit(); err != nil {
		p.log.Fatal("block stored but state commit failed",
			zap.Int64("height", block.Header.Height), zap.Error(err))
	}

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	p.mempool.Remove(ids)

	for _, ev := range evs {
		p.emitter.Emit(ev)
	}
	p.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(block.Transactions)},
	})
	return block, nil
}

func (p *Producer) rollback(snap int) {
	if err := p.state.RevertToSnapshot(snap); err != nil {
		p.log.Error("revert block state", zap.Error(err))
	}
}

// Run produces blocks every interval until done is closed. Ticks with an
// empty mempool are skipped unless WithEmptyBlocks was given.
func (p *Producer) Run(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if p.skipIdle && p.mempool.Size() == 0 {
				continue
			}
			block, err := p.ProduceBlock()
			if err != nil {
				p.log.Error("produce block", zap.Error(err))
				continue
			}
			p.log.Debug("block committed",
				zap.Int64("height", block.Header.Height),
				zap.Int("txs", len(block.Transactions)))
		}
	}
}
