package game

import (
	"fmt"
	"math/big"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/rng"
)

// PayoutResult is what one redeemed gift voucher is worth. Exactly one of
// Keys or Tokens is set.
type PayoutResult struct {
	Keys   uint32
	Tokens *big.Int // smallest token units
}

func (r PayoutResult) String() string {
	if r.Tokens != nil {
		return fmt.Sprintf("+%s tokens", r.Tokens)
	}
	return fmt.Sprintf("+%d keys", r.Keys)
}

// Payout decides the reward for one gift voucher given the treasury balance
// seen by the phase-1 query. An empty treasury only ever yields keys. A token
// amount is drawn uniformly from the configured range, scaled to the smallest
// unit, and capped at balance.
func (e *Engine) Payout(balance *big.Int, src rng.Source) (PayoutResult, error) {
	if balance == nil || balance.Sign() <= 0 {
		return PayoutResult{Keys: PayoutZeroTable.Sample(src).Keys}, nil
	}
	tier := PayoutFundedTable.Sample(src)
	if !tier.Token {
		return PayoutResult{Keys: tier.Keys}, nil
	}

	span := e.cfg.GiftTokenMax - e.cfg.GiftTokenMin + 1
	whole := e.cfg.GiftTokenMin + src.Uint64()%span
	amount := new(big.Int).SetUint64(whole)
	amount.Mul(amount, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(e.cfg.TokenDecimals)), nil))
	if amount.Cmp(balance) > 0 {
		amount.Set(balance)
	}
	if amount.Sign() == 0 {
		return PayoutResult{}, core.ErrZeroPayout
	}
	return PayoutResult{Tokens: amount}, nil
}
