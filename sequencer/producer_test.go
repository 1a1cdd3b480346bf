package sequencer_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/chestchain/config"
	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/game"
	"github.com/tolelom/chestchain/internal/testutil"
	"github.com/tolelom/chestchain/sequencer"
	"github.com/tolelom/chestchain/storage"
	"github.com/tolelom/chestchain/vm"
	"github.com/tolelom/chestchain/wallet"

	_ "github.com/tolelom/chestchain/vm/modules/player"
)

// flakyStore fails CommitBlock while fail is set.
type flakyStore struct {
	*storage.BlockStore
	fail bool
}

func (s *flakyStore) CommitBlock(b *core.Block) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.BlockStore.CommitBlock(b)
}

type node struct {
	db       *testutil.MemDB
	state    *storage.StateDB
	store    *flakyStore
	bc       *core.Blockchain
	mempool  *core.Mempool
	emitter  *events.Emitter
	producer *sequencer.Producer

	mu   sync.Mutex
	seen []events.EventType
}

func newNode(t *testing.T) *node {
	t.Helper()
	host, _ := wallet.Generate()
	n := &node{db: testutil.NewMemDB()}
	n.state = storage.NewStateDB(n.db)
	n.store = &flakyStore{BlockStore: storage.NewBlockStore(n.db)}
	n.bc = core.NewBlockchain(n.store)
	require.NoError(t, n.bc.Init())

	genesis, err := config.CreateGenesisBlock(config.DefaultConfig(), n.state, host.PrivKey())
	require.NoError(t, err)
	require.NoError(t, n.bc.AddBlock(genesis))

	engine, err := game.NewEngine(game.DefaultConfig())
	require.NoError(t, err)
	n.mempool = core.NewMempool(0)
	n.emitter = events.NewEmitter(nil)
	for _, typ := range []events.EventType{events.EventPlayerCreated, events.EventTxExecuted, events.EventBlockCommit} {
		n.emitter.Subscribe(typ, func(ev events.Event) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.seen = append(n.seen, ev.Type)
		})
	}
	exec := vm.NewExecutor(n.state, engine, host.PrivKey())
	n.producer = sequencer.New(n.bc, n.state, n.mempool, exec, n.emitter, host.PrivKey())
	return n
}

// TestProduceBlock verifies execution, persistence, event order, and
// mempool cleanup.
func TestProduceBlock(t *testing.T) {
	n := newNode(t)
	w, _ := wallet.Generate()
	tx, _ := w.Call(config.DefaultConfig().ChainID, core.TxSignIn, 0)
	require.NoError(t, n.mempool.Add(tx))

	block, err := n.producer.ProduceBlock()
	require.NoError(t, err)
	assert.Equal(t, int64(1), block.Header.Height)
	assert.Equal(t, int64(1), n.bc.Height())
	require.Len(t, block.Receipts, 1)
	assert.Equal(t, core.ReceiptOK, block.Receipts[0].Status)
	require.NoError(t, block.VerifySeedProof(tx, block.Receipts[0].SeedProof))
	assert.Zero(t, n.mempool.Size())
	assert.Equal(t, []events.EventType{events.EventPlayerCreated, events.EventTxExecuted, events.EventBlockCommit}, n.seen)

	// Durable: a fresh view over the DB sees the player and the root matches.
	fresh := storage.NewStateDB(n.db)
	_, err = fresh.GetPlayer(w.PubKey())
	require.NoError(t, err)
	assert.Equal(t, block.Header.StateRoot, fresh.ComputeRoot())

	stored, err := n.bc.GetBlockByHeight(1)
	require.NoError(t, err)
	assert.Equal(t, block.Hash, stored.Hash)
	assert.Len(t, stored.Receipts, 1)
}

// TestProduceBlockRollsBackOnStoreFailure verifies nothing is persisted or
// published when the block cannot be stored, and the calls stay queued.
func TestProduceBlockRollsBackOnStoreFailure(t *testing.T) {
	n := newNode(t)
	w, _ := wallet.Generate()
	tx, _ := w.Call(config.DefaultConfig().ChainID, core.TxSignIn, 0)
	require.NoError(t, n.mempool.Add(tx))

	n.store.fail = true
	_, err := n.producer.ProduceBlock()
	require.Error(t, err)
	assert.Empty(t, n.seen)
	assert.Equal(t, 1, n.mempool.Size())
	_, err = n.state.GetPlayer(w.PubKey())
	assert.ErrorIs(t, err, core.ErrNotFound)
	acc, _ := n.state.GetAccount(w.PubKey())
	assert.Zero(t, acc.Nonce)

	n.store.fail = false
	block, err := n.producer.ProduceBlock()
	require.NoError(t, err)
	assert.Equal(t, core.ReceiptOK, block.Receipts[0].Status)
}

func TestRunStopsOnDone(t *testing.T) {
	n := newNode(t)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		n.producer.Run(1e6, done)
		close(finished)
	}()
	close(done)
	<-finished
	assert.Equal(t, int64(0), n.bc.Height(), "idle ticks produce no blocks")
}
