// Package player registers the synchronous economy entry points: sign-in,
// key claims, chests, and upgrades. Each one reads the caller's record
// through the ledger, applies one engine transition, and writes it back.
package player

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/ledger"
	"github.com/tolelom/chestchain/vm"
)

func init() {
	vm.Register(core.TxSignIn, handleSignIn)
	vm.Register(core.TxClaimKey, handleClaimKey)
	vm.Register(core.TxOpenChest, handleOpenChest)
	vm.Register(core.TxExchangeChest, handleExchangeChest)
	vm.Register(core.TxUpgrade, handleUpgrade)
}

func handleSignIn(ctx *vm.Context, _ json.RawMessage) (string, error) {
	p, created, err := ledger.New(ctx.State).GetOrCreate(ctx.Caller(), func() *core.Player {
		return ctx.Engine.NewPlayer(ctx.Now())
	})
	if err != nil {
		return "", err
	}
	if !created {
		return "already signed in", nil
	}
	ctx.Emit(events.EventPlayerCreated, map[string]any{
		"player":    ctx.Caller(),
		"claimable": p.TimeToNextKeyClaimable,
		"economy":   ctx.Engine.Config().Version,
	})
	return "player created", nil
}

func handleClaimKey(ctx *vm.Context, _ json.RawMessage) (string, error) {
	p, err := ledger.New(ctx.State).Update(ctx.Caller(), func(p *core.Player) error {
		return ctx.Engine.ClaimKey(p, ctx.Now())
	})
	if err != nil {
		return "", err
	}
	ctx.Emit(events.EventKeyClaimed, map[string]any{
		"player":    ctx.Caller(),
		"keys":      p.Keys,
		"claimable": p.TimeToNextKeyClaimable,
	})
	next := time.Unix(0, int64(p.TimeToNextKeyClaimable)).UTC().Format(time.RFC3339)
	return fmt.Sprintf("+1 key, next claim after %s", next), nil
}

func handleOpenChest(ctx *vm.Context, _ json.RawMessage) (string, error) {
	var summary string
	_, err := ledger.New(ctx.State).Update(ctx.Caller(), func(p *core.Player) error {
		res, err := ctx.Engine.OpenChest(p, ctx.Rand)
		if err != nil {
			return err
		}
		summary = res.String()
		ctx.Emit(events.EventChestOpened, map[string]any{
			"player":     ctx.Caller(),
			"reward":     string(res.Reward),
			"quantity":   res.Quantity,
			"bonus_gift": res.BonusGift,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}

func handleExchangeChest(ctx *vm.Context, _ json.RawMessage) (string, error) {
	var summary string
	_, err := ledger.New(ctx.State).Update(ctx.Caller(), func(p *core.Player) error {
		path, err := ctx.Engine.ExchangeChest(p)
		if err != nil {
			return err
		}
		summary = fmt.Sprintf("+1 chest (paid with %s)", path)
		ctx.Emit(events.EventChestExchanged, map[string]any{"player": ctx.Caller(), "path": string(path)})
		return nil
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}

func handleUpgrade(ctx *vm.Context, _ json.RawMessage) (string, error) {
	var summary string
	_, err := ledger.New(ctx.State).Update(ctx.Caller(), func(p *core.Player) error {
		res, err := ctx.Engine.Upgrade(p)
		if err != nil {
			return err
		}
		summary = res.String()
		ctx.Emit(events.EventUpgraded, map[string]any{
			"player":           ctx.Caller(),
			"tier":             res.Tier,
			"tier_up":          res.TierUp,
			"time_to_decrease": res.TimeToDecrease,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}
