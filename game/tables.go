package game

import (
	"fmt"

	"github.com/tolelom/chestchain/rng"
)

// Entry pairs a cumulative threshold (out of 100) with its outcome.
type Entry[T any] struct {
	Threshold uint8
	Outcome   T
}

// Table is a weighted distribution given as ascending cumulative thresholds
// ending at 100.
type Table[T any] []Entry[T]

// Pick maps one draw to the first outcome whose threshold exceeds draw%100.
func (t Table[T]) Pick(draw byte) T {
	roll := draw % 100
	for _, e := range t {
		if roll < e.Threshold {
			return e.Outcome
		}
	}
	return t[len(t)-1].Outcome
}

// Sample consumes exactly one byte from src.
func (t Table[T]) Sample(src rng.Source) T {
	return t.Pick(src.Byte())
}

// Check reports whether thresholds are strictly ascending and end at 100.
func (t Table[T]) Check() error {
	if len(t) == 0 {
		return fmt.Errorf("empty table")
	}
	var prev uint8
	for i, e := range t {
		if e.Threshold <= prev {
			return fmt.Errorf("entry %d: threshold %d not above %d", i, e.Threshold, prev)
		}
		prev = e.Threshold
	}
	if prev != 100 {
		return fmt.Errorf("last threshold is %d, want 100", prev)
	}
	return nil
}

// Reward is the primary outcome of opening a chest.
type Reward string

const (
	RewardWood  Reward = "wood"
	RewardIron  Reward = "iron"
	RewardStone Reward = "stone"
	RewardGift  Reward = "gift"
)

// ChestTable decides what a chest contains.
var ChestTable = Table[Reward]{
	{32, RewardWood},
	{64, RewardIron},
	{96, RewardStone},
	{100, RewardGift},
}

// QuantityTable decides how much of a resource a chest grants.
var QuantityTable = Table[uint32]{
	{60, 10},
	{95, 20},
	{99, 50},
	{100, 100},
}

// ExtraGiftTable is the independent 10% bonus gift roll made on every chest.
var ExtraGiftTable = Table[bool]{
	{10, true},
	{100, false},
}

// Payout is a gift-swap tier: a key grant, or a token transfer when Token is set.
type Payout struct {
	Keys  uint32
	Token bool
}

// PayoutZeroTable is used when the treasury is empty: keys only.
var PayoutZeroTable = Table[Payout]{
	{15, Payout{Keys: 40}},
	{50, Payout{Keys: 20}},
	{100, Payout{Keys: 10}},
}

// PayoutFundedTable is used when the treasury holds tokens.
var PayoutFundedTable = Table[Payout]{
	{10, Payout{Keys: 40}},
	{30, Payout{Keys: 20}},
	{85, Payout{Keys: 10}},
	{100, Payout{Token: true}},
}
