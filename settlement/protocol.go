// Package settlement implements the two-phase gift swap.
//
// Phase 1 (Initiate) validates the voucher and records a pending Swap keyed
// by request ID; the host then queries the token service's treasury balance
// out of band. Phase 2 (Settle) consumes that query result exactly once:
// it either grants a reward and consumes one voucher in the same write, or
// resolves the swap as failed and leaves the voucher in place for a retry.
//
// A player may have at most one swap in flight. Other economy calls stay
// open while a swap is pending; Settle re-reads the record, so it sees them.
package settlement

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/crypto"
	"github.com/tolelom/chestchain/game"
	"github.com/tolelom/chestchain/ledger"
	"github.com/tolelom/chestchain/rng"
)

// Protocol runs swaps against one state.
type Protocol struct {
	state  core.State
	engine *game.Engine
	ledger *ledger.Ledger
}

// New returns a Protocol over state.
func New(state core.State, engine *game.Engine) *Protocol {
	return &Protocol{state: state, engine: engine, ledger: ledger.New(state)}
}

// RequestID is the swap ID derived from the initiating call.
func RequestID(txID string) string {
	return crypto.DeriveID(txID, "swap")
}

// Initiate is phase 1. It never mutates the player record.
func (p *Protocol) Initiate(player, txID string, now int64) (*core.Swap, error) {
	pl, ok, err := p.ledger.Get(player)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("player %s: %w", player, core.ErrNotFound)
	}
	if pl.Gift == 0 {
		return nil, core.ErrNoGiftsAvailable
	}
	inflight, err := p.state.GetInFlightSwap(player)
	if err != nil {
		return nil, fmt.Errorf("in-flight lookup: %w", err)
	}
	if inflight != "" {
		return nil, fmt.Errorf("%w: %s", core.ErrSettlementInFlight, inflight)
	}

	sw := &core.Swap{
		ID:        RequestID(txID),
		Player:    player,
		TxID:      txID,
		Status:    core.SwapPending,
		CreatedAt: now,
	}
	if err := p.state.SetSwap(sw); err != nil {
		return nil, err
	}
	if err := p.state.SetInFlightSwap(player, sw.ID); err != nil {
		return nil, err
	}
	return sw, nil
}

// Outcome is a resolved swap and, for token payouts, the transfer it issued.
type Outcome struct {
	Swap     *core.Swap
	Payout   game.PayoutResult
	Transfer *core.Transfer
}

// Settle is phase 2. It returns:
//   - (outcome, nil) when a reward was granted and the voucher consumed;
//   - (outcome, err) when the swap was resolved as failed; those writes must
//     be kept so the swap cannot be settled again, and the voucher is intact;
//   - (nil, err) when the call was rejected outright and nothing changed.
func (p *Protocol) Settle(res core.SettleSwapPayload, src rng.Source, now int64) (*Outcome, error) {
	sw, err := p.state.GetSwap(res.RequestID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("swap %s: %w", res.RequestID, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if sw.Status != core.SwapPending {
		return nil, fmt.Errorf("swap %s is %s: %w", sw.ID, sw.Status, core.ErrSwapNotPending)
	}

	if !res.OK {
		return p.fail(sw, now, fmt.Errorf("%w: balance query: %s", core.ErrExternalCallFailed, res.Error))
	}
	sw.Balance = res.Balance

	pl, ok, err := p.ledger.Get(sw.Player)
	if err != nil {
		return nil, err
	}
	if !ok {
		return p.fail(sw, now, fmt.Errorf("player %s: %w", sw.Player, core.ErrNotFound))
	}
	if pl.Gift == 0 {
		return p.fail(sw, now, core.ErrNoGiftsAvailable)
	}
	payout, err := p.engine.Payout(res.Balance, src)
	if err != nil {
		return p.fail(sw, now, err)
	}

	out := &Outcome{Swap: sw, Payout: payout}
	pl.Gift--
	if payout.Tokens != nil {
		out.Transfer = &core.Transfer{
			ID:        crypto.DeriveID(sw.ID, "transfer"),
			SwapID:    sw.ID,
			Recipient: sw.Player,
			Amount:    payout.Tokens,
			Status:    core.TransferIssued,
			IssuedAt:  now,
		}
		if err := p.state.SetTransfer(out.Transfer); err != nil {
			return nil, err
		}
		if pl.TokenRewarded == nil {
			pl.TokenRewarded = new(big.Int)
		}
		pl.TokenRewarded.Add(pl.TokenRewarded, payout.Tokens)
		pl.LastTokenRewarded = new(big.Int).Set(payout.Tokens)
		sw.Tokens = payout.Tokens
		sw.TransferID = out.Transfer.ID
	} else {
		pl.Keys += payout.Keys
		sw.Keys = payout.Keys
	}
	if err := p.ledger.Put(sw.Player, pl); err != nil {
		return nil, err
	}

	sw.Status = core.SwapSettled
	sw.ResolvedAt = now
	sw.Result = payout.String()
	if err := p.state.SetSwap(sw); err != nil {
		return nil, err
	}
	if err := p.state.ClearInFlightSwap(sw.Player); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Protocol) fail(sw *core.Swap, now int64, cause error) (*Outcome, error) {
	sw.Status = core.SwapFailed
	sw.ResolvedAt = now
	sw.Error = cause.Error()
	if err := p.state.SetSwap(sw); err != nil {
		return nil, err
	}
	if err := p.state.ClearInFlightSwap(sw.Player); err != nil {
		return nil, err
	}
	return &Outcome{Swap: sw}, cause
}

// ConfirmTransfer records the token service's verdict on an issued transfer.
// Accounting is optimistic: a failed delivery does not restore the voucher,
// it is kept on the transfer for operators to reconcile.
func (p *Protocol) ConfirmTransfer(res core.TransferReceiptPayload) (*core.Transfer, error) {
	t, err := p.state.GetTransfer(res.TransferID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("transfer %s: %w", res.TransferID, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if t.Status != core.TransferIssued {
		return nil, fmt.Errorf("transfer %s already %s", t.ID, t.Status)
	}
	if res.OK {
		t.Status = core.TransferConfirmed
	} else {
		t.Status = core.TransferFailed
		t.Error = res.Error
	}
	if err := p.state.SetTransfer(t); err != nil {
		return nil, err
	}
	return t, nil
}
