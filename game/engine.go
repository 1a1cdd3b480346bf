package game

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/rng"
)

// Engine applies economy transitions to a player record in place. Every
// method checks all of its preconditions before the first write, so a
// returned error always leaves the record untouched.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine using it.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("economy config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the tuning the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// NewPlayer builds the record for a first sign-in at now (unix nanos).
func (e *Engine) NewPlayer(now int64) *core.Player {
	sb := e.cfg.StartingBalances
	return &core.Player{
		Keys:                   sb.Keys,
		Chests:                 sb.Chests,
		Wood:                   sb.Wood,
		Stone:                  sb.Stone,
		Iron:                   sb.Iron,
		Gift:                   sb.Gift,
		KeysPerClaim:           1,
		TimeToNextKeyClaimable: uint64(now) + uint64(e.cfg.InitialClaimDelay),
		TokenRewarded:          new(big.Int),
		LastTokenRewarded:      new(big.Int),
		CreatedAt:              now,
	}
}

// ClaimKey grants one key once the claim gate has passed and moves the gate
// to now + cooldown - accumulated decrease.
func (e *Engine) ClaimKey(p *core.Player, now int64) error {
	if now < 0 || uint64(now) <= p.TimeToNextKeyClaimable {
		return fmt.Errorf("%w: claimable after %d, now %d", core.ErrTooEarly, p.TimeToNextKeyClaimable, now)
	}
	p.Keys++
	// A record may predate a retune that lowered the ceiling. Cooldown always
	// exceeds the ceiling, so the gate still moves past now.
	cut := min(p.TimeToDecrease, uint64(e.cfg.DecreaseCeiling))
	p.TimeToNextKeyClaimable = uint64(now) + uint64(e.cfg.Cooldown) - cut
	return nil
}

// ChestResult describes what one opened chest granted.
type ChestResult struct {
	Reward    Reward
	Quantity  uint32 // resource amount; zero for the gift branch
	BonusGift bool
}

func (r ChestResult) String() string {
	parts := make([]string, 0, 2)
	if r.Reward == RewardGift {
		parts = append(parts, "+1 gift")
	} else {
		parts = append(parts, fmt.Sprintf("+%d %s", r.Quantity, r.Reward))
	}
	if r.BonusGift {
		parts = append(parts, "+1 bonus gift")
	}
	return strings.Join(parts, ", ")
}

// OpenChest spends one key and one chest. Draws are taken in a fixed order,
// one byte each: contents, quantity (resource branches only), bonus gift.
func (e *Engine) OpenChest(p *core.Player, src rng.Source) (ChestResult, error) {
	if p.Keys == 0 || p.Chests == 0 {
		return ChestResult{}, fmt.Errorf("%w: open chest needs a key and a chest, have %d keys %d chests",
			core.ErrInsufficientResources, p.Keys, p.Chests)
	}
	p.Keys--
	p.Chests--

	res := ChestResult{Reward: ChestTable.Sample(src)}
	switch res.Reward {
	case RewardWood:
		res.Quantity = QuantityTable.Sample(src)
		p.Wood += res.Quantity
	case RewardIron:
		res.Quantity = QuantityTable.Sample(src)
		p.Iron += res.Quantity
	case RewardStone:
		res.Quantity = QuantityTable.Sample(src)
		p.Stone += res.Quantity
	case RewardGift:
		p.Gift++
	}
	if ExtraGiftTable.Sample(src) {
		res.BonusGift = true
		p.Gift++
	}
	return res, nil
}

// ExchangePath tells which currency paid for an exchanged chest.
type ExchangePath string

const (
	ExchangeResources ExchangePath = "resources"
	ExchangeKey       ExchangePath = "key"
)

// ExchangeChest buys one chest, with resources when the player can afford
// them and with a key otherwise.
func (e *Engine) ExchangeChest(p *core.Player) (ExchangePath, error) {
	cost := e.cfg.ExchangeCost
	if p.Wood >= cost && p.Iron >= cost && p.Stone >= cost {
		p.Wood -= cost
		p.Iron -= cost
		p.Stone -= cost
		p.Chests++
		return ExchangeResources, nil
	}
	if p.Keys > 0 {
		p.Keys--
		p.Chests++
		return ExchangeKey, nil
	}
	return "", fmt.Errorf("%w: exchange needs %d wood, iron and stone or one key",
		core.ErrInsufficientResources, cost)
}

// UpgradeResult describes one applied upgrade.
type UpgradeResult struct {
	Cost           uint32
	TimeToDecrease uint64
	Tier           uint32
	TierUp         bool
}

func (r UpgradeResult) String() string {
	s := fmt.Sprintf("-%d keys, cooldown cut %s", r.Cost, fmtNanos(r.TimeToDecrease))
	if r.TierUp {
		s += fmt.Sprintf(", tier %d", r.Tier)
	}
	return s
}

// Upgrade spends 2*tier keys to cut the claim cooldown by one increment,
// raising the tier at every step boundary. Once the cut sits at the ceiling
// no further upgrade is possible.
func (e *Engine) Upgrade(p *core.Player) (UpgradeResult, error) {
	ceiling := uint64(e.cfg.DecreaseCeiling)
	if p.TimeToDecrease >= ceiling {
		return UpgradeResult{}, fmt.Errorf("%w: tier %d, cooldown cut %s", core.ErrMaxTierReached,
			p.KeysPerClaim, fmtNanos(p.TimeToDecrease))
	}
	cost := 2 * p.KeysPerClaim
	if p.Keys < cost {
		return UpgradeResult{}, fmt.Errorf("%w: upgrade needs %d keys, have %d",
			core.ErrInsufficientResources, cost, p.Keys)
	}

	p.Keys -= cost
	p.TimeToDecrease = min(p.TimeToDecrease+uint64(e.cfg.TierIncrement), ceiling)
	res := UpgradeResult{Cost: cost, TimeToDecrease: p.TimeToDecrease}
	if p.TimeToDecrease%uint64(e.cfg.TierStep) == 0 && p.KeysPerClaim < e.cfg.MaxTier {
		p.KeysPerClaim++
		res.TierUp = true
	}
	res.Tier = p.KeysPerClaim
	return res, nil
}

func fmtNanos(n uint64) string {
	return fmt.Sprint(time.Duration(n))
}
