package player_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/game"
	"github.com/tolelom/chestchain/internal/testutil"
	"github.com/tolelom/chestchain/rng"
	"github.com/tolelom/chestchain/storage"
	"github.com/tolelom/chestchain/vm"
	"github.com/tolelom/chestchain/wallet"

	_ "github.com/tolelom/chestchain/vm/modules/player"
)

// harness runs calls for one player against in-memory state with scripted
// randomness and a controllable block clock.
type harness struct {
	t     *testing.T
	state *storage.StateDB
	exec  *vm.Executor
	w     *wallet.Wallet
	nonce uint64
	now   int64
	draws []byte
}

func newHarness(t *testing.T, cfg game.Config) *harness {
	t.Helper()
	engine, err := game.NewEngine(cfg)
	require.NoError(t, err)
	w, err := wallet.Generate()
	require.NoError(t, err)
	h := &harness{t: t, state: testutil.NewStateDB(), w: w, now: int64(time.Hour)}
	h.exec = vm.NewExecutor(h.state, engine, w.PrivKey(), vm.WithRandom(func(*core.Block, *core.Transaction, []byte) rng.Source {
		src := rng.NewFixed(h.draws...)
		h.draws = nil
		return src
	}))
	return h
}

func (h *harness) do(typ core.TxType, draws ...byte) (*core.Receipt, []events.Event) {
	h.t.Helper()
	tx, err := h.w.Call("test", typ, h.nonce)
	require.NoError(h.t, err)
	h.nonce++
	h.draws = draws
	block := core.NewBlock(1, "0000", h.w.PubKey(), []*core.Transaction{tx})
	block.Header.Timestamp = h.now
	rcpt, evs, err := h.exec.ExecuteTx(block, tx)
	require.NoError(h.t, err)
	return rcpt, evs
}

func (h *harness) ok(typ core.TxType, draws ...byte) string {
	h.t.Helper()
	rcpt, _ := h.do(typ, draws...)
	require.Equal(h.t, core.ReceiptOK, rcpt.Status, rcpt.Error)
	return rcpt.Result
}

func (h *harness) player() *core.Player {
	h.t.Helper()
	p, err := h.state.GetPlayer(h.w.PubKey())
	require.NoError(h.t, err)
	return p
}

func (h *harness) set(p *core.Player) {
	require.NoError(h.t, h.state.SetPlayer(h.w.PubKey(), p))
}

// TestPlayerJourney walks sign-in, a too-early claim, a claim, an exchange
// paid with the key, another claim after the cooldown, and a chest.
func TestPlayerJourney(t *testing.T) {
	h := newHarness(t, game.DefaultConfig())

	rcpt, evs := h.do(core.TxSignIn)
	require.Equal(t, core.ReceiptOK, rcpt.Status)
	assert.Equal(t, "player created", rcpt.Result)
	assert.Equal(t, events.EventPlayerCreated, evs[0].Type)
	assert.Equal(t, "already signed in", h.ok(core.TxSignIn))

	rcpt, _ = h.do(core.TxClaimKey)
	assert.Equal(t, core.ReceiptFailed, rcpt.Status)
	assert.Contains(t, rcpt.Error, core.ErrTooEarly.Error())

	h.now++
	h.ok(core.TxClaimKey)
	assert.Equal(t, uint32(1), h.player().Keys)

	rcpt, _ = h.do(core.TxClaimKey)
	assert.Equal(t, core.ReceiptFailed, rcpt.Status, "second claim in the same cooldown")

	assert.Equal(t, "+1 chest (paid with key)", h.ok(core.TxExchangeChest))
	p := h.player()
	assert.Equal(t, uint32(0), p.Keys)
	assert.Equal(t, uint32(1), p.Chests)

	h.now += int64(6*time.Hour) + 1
	h.ok(core.TxClaimKey)

	assert.Equal(t, "+10 wood", h.ok(core.TxOpenChest, 10, 5, 50))
	p = h.player()
	assert.Equal(t, uint32(10), p.Wood)
	assert.Zero(t, p.Keys)
	assert.Zero(t, p.Chests)

	acc, _ := h.state.GetAccount(h.w.PubKey())
	assert.Equal(t, h.nonce, acc.Nonce)
}

// TestCallsBeforeSignInFail verifies record-reading calls need a record.
func TestCallsBeforeSignInFail(t *testing.T) {
	h := newHarness(t, game.DefaultConfig())
	for _, typ := range []core.TxType{core.TxClaimKey, core.TxOpenChest, core.TxExchangeChest, core.TxUpgrade} {
		rcpt, _ := h.do(typ)
		assert.Equal(t, core.ReceiptFailed, rcpt.Status, typ)
		assert.Contains(t, rcpt.Error, core.ErrNotFound.Error(), typ)
	}
	_, err := h.state.GetPlayer(h.w.PubKey())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

// TestOpenChestFailureLeavesRecord verifies an unaffordable chest changes
// nothing.
func TestOpenChestFailureLeavesRecord(t *testing.T) {
	h := newHarness(t, game.DefaultConfig())
	h.ok(core.TxSignIn)
	h.set(&core.Player{Chests: 2, KeysPerClaim: 1})

	rcpt, evs := h.do(core.TxOpenChest, 0, 0, 0)
	assert.Equal(t, core.ReceiptFailed, rcpt.Status)
	assert.Contains(t, rcpt.Error, core.ErrInsufficientResources.Error())
	assert.Len(t, evs, 1)
	assert.Equal(t, &core.Player{Chests: 2, KeysPerClaim: 1}, h.player())
}

func TestExchangeWithResources(t *testing.T) {
	h := newHarness(t, game.DefaultConfig())
	h.ok(core.TxSignIn)
	h.set(&core.Player{Wood: 50, Iron: 50, Stone: 50, KeysPerClaim: 1})

	assert.Equal(t, "+1 chest (paid with resources)", h.ok(core.TxExchangeChest))
	assert.Equal(t, &core.Player{Chests: 1, KeysPerClaim: 1}, h.player())

	rcpt, _ := h.do(core.TxExchangeChest)
	assert.Contains(t, rcpt.Error, core.ErrInsufficientResources.Error())
}

// TestUpgradeThroughContract runs the ladder to the ceiling through calls.
func TestUpgradeThroughContract(t *testing.T) {
	h := newHarness(t, game.DefaultConfig())
	h.ok(core.TxSignIn)
	p := h.player()
	p.Keys = 80
	h.set(p)

	for i := 0; i < 16; i++ {
		h.ok(core.TxUpgrade)
	}
	p = h.player()
	assert.Equal(t, uint32(4), p.KeysPerClaim)
	assert.Zero(t, p.Keys)

	rcpt, _ := h.do(core.TxUpgrade)
	assert.Contains(t, rcpt.Error, core.ErrMaxTierReached.Error())

	// The cut shortens the next gate: 6h - 4h.
	h.now++
	h.ok(core.TxClaimKey)
	assert.Equal(t, uint64(h.now)+uint64(2*time.Hour), h.player().TimeToNextKeyClaimable)
}

// TestLegacyInitialDelay verifies the v1 economy gates the first claim.
func TestLegacyInitialDelay(t *testing.T) {
	h := newHarness(t, game.LegacyConfig())
	h.ok(core.TxSignIn)

	h.now += int64(8 * time.Hour)
	rcpt, _ := h.do(core.TxClaimKey)
	assert.Equal(t, core.ReceiptFailed, rcpt.Status)

	h.now++
	h.ok(core.TxClaimKey)
}
