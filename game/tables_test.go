package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/chestchain/rng"
)

// TestTablesWellFormed verifies every built-in table ends at 100 with
// ascending thresholds.
func TestTablesWellFormed(t *testing.T) {
	require.NoError(t, ChestTable.Check())
	require.NoError(t, QuantityTable.Check())
	require.NoError(t, ExtraGiftTable.Check())
	require.NoError(t, PayoutZeroTable.Check())
	require.NoError(t, PayoutFundedTable.Check())

	assert.Error(t, Table[int]{}.Check())
	assert.Error(t, Table[int]{{50, 1}, {40, 2}, {100, 3}}.Check())
	assert.Error(t, Table[int]{{50, 1}, {90, 2}}.Check())
}

// TestChestTableBoundaries checks the exact cut-over rolls.
func TestChestTableBoundaries(t *testing.T) {
	cases := []struct {
		draw byte
		want Reward
	}{
		{0, RewardWood}, {31, RewardWood},
		{32, RewardIron}, {63, RewardIron},
		{64, RewardStone}, {95, RewardStone},
		{96, RewardGift}, {99, RewardGift},
		{100, RewardWood}, // 100 % 100
		{255, RewardIron}, // 255 % 100 = 55
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ChestTable.Pick(tc.draw), "draw %d", tc.draw)
	}
}

func TestQuantityAndBonusBoundaries(t *testing.T) {
	assert.Equal(t, uint32(10), QuantityTable.Pick(59))
	assert.Equal(t, uint32(20), QuantityTable.Pick(60))
	assert.Equal(t, uint32(20), QuantityTable.Pick(94))
	assert.Equal(t, uint32(50), QuantityTable.Pick(95))
	assert.Equal(t, uint32(50), QuantityTable.Pick(98))
	assert.Equal(t, uint32(100), QuantityTable.Pick(99))

	assert.True(t, ExtraGiftTable.Pick(9))
	assert.False(t, ExtraGiftTable.Pick(10))
}

func TestPayoutTableBoundaries(t *testing.T) {
	assert.Equal(t, Payout{Keys: 40}, PayoutZeroTable.Pick(14))
	assert.Equal(t, Payout{Keys: 20}, PayoutZeroTable.Pick(15))
	assert.Equal(t, Payout{Keys: 10}, PayoutZeroTable.Pick(50))

	assert.Equal(t, Payout{Keys: 40}, PayoutFundedTable.Pick(9))
	assert.Equal(t, Payout{Keys: 20}, PayoutFundedTable.Pick(10))
	assert.Equal(t, Payout{Keys: 10}, PayoutFundedTable.Pick(30))
	assert.Equal(t, Payout{Token: true}, PayoutFundedTable.Pick(85))
}

// TestSampleConsumesOneByte verifies each sample draws exactly one byte.
func TestSampleConsumesOneByte(t *testing.T) {
	src := rng.NewFixed(1, 2, 3)
	ChestTable.Sample(src)
	QuantityTable.Sample(src)
	assert.Equal(t, 2, src.Consumed())
}
