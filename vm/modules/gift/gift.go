// Package gift registers the gift-swap entry points: swap_gift (phase 1),
// and the host-invoked settle_swap (phase 2) and transfer_receipt.
package gift

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/settlement"
	"github.com/tolelom/chestchain/vm"
)

func init() {
	vm.Register(core.TxSwapGift, handleSwapGift)
	vm.Register(core.TxSettleSwap, handleSettleSwap)
	vm.Register(core.TxTransferReceipt, handleTransferReceipt)
}

func handleSwapGift(ctx *vm.Context, _ json.RawMessage) (string, error) {
	sw, err := settlement.New(ctx.State, ctx.Engine).Initiate(ctx.Caller(), ctx.Tx.ID, ctx.Now())
	if err != nil {
		return "", err
	}
	ctx.Emit(events.EventSwapInitiated, map[string]any{
		"swap_id": sw.ID,
		"player":  sw.Player,
	})
	return "swap requested: " + sw.ID, nil
}

func handleSettleSwap(ctx *vm.Context, payload json.RawMessage) (string, error) {
	var p core.SettleSwapPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("decode settle_swap payload: %w", err)
	}
	if p.RequestID == "" {
		return "", errors.New("request_id required")
	}

	out, err := settlement.New(ctx.State, ctx.Engine).Settle(p, ctx.Rand, ctx.Now())
	if err != nil {
		if out == nil {
			return "", err
		}
		ctx.Emit(events.EventSwapFailed, map[string]any{
			"swap_id": out.Swap.ID,
			"player":  out.Swap.Player,
			"error":   err.Error(),
		})
		return "", vm.KeepState(err)
	}

	data := map[string]any{
		"swap_id": out.Swap.ID,
		"player":  out.Swap.Player,
		"keys":    out.Payout.Keys,
	}
	if t := out.Transfer; t != nil {
		data["transfer_id"] = t.ID
		data["tokens"] = t.Amount.String()
		ctx.Emit(events.EventTransferIssued, map[string]any{
			"transfer_id": t.ID,
			"swap_id":     t.SwapID,
			"recipient":   t.Recipient,
			"amount":      t.Amount.String(),
		})
	}
	ctx.Emit(events.EventSwapSettled, data)
	return out.Swap.Result, nil
}

func handleTransferReceipt(ctx *vm.Context, payload json.RawMessage) (string, error) {
	var p core.TransferReceiptPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("decode transfer_receipt payload: %w", err)
	}
	if p.TransferID == "" {
		return "", errors.New("transfer_id required")
	}
	t, err := settlement.New(ctx.State, ctx.Engine).ConfirmTransfer(p)
	if err != nil {
		return "", err
	}
	typ := events.EventTransferSettled
	if t.Status == core.TransferFailed {
		typ = events.EventTransferRejected
	}
	ctx.Emit(typ, map[string]any{
		"transfer_id": t.ID,
		"swap_id":     t.SwapID,
		"recipient":   t.Recipient,
		"error":       t.Error,
	})
	return fmt.Sprintf("transfer %s %s", t.ID, t.Status), nil
}
