package core

import "math/big"

// Player is the durable per-participant economy record.
type Player struct {
	Keys                   uint32   `json:"keys"`
	Chests                 uint32   `json:"chests"`
	Wood                   uint32   `json:"wood"`
	Stone                  uint32   `json:"stone"`
	Iron                   uint32   `json:"iron"`
	Gift                   uint32   `json:"gift"`
	KeysPerClaim           uint32   `json:"keys_per_claim"`             // claim tier, 1..MaxTier
	TimeToNextKeyClaimable uint64   `json:"time_to_next_key_claimable"` // unix nanos
	TimeToDecrease         uint64   `json:"time_to_decrease"`           // nanos shaved off the cooldown
	TokenRewarded          *big.Int `json:"token_rewarded"`
	LastTokenRewarded      *big.Int `json:"last_token_rewarded"`
	CreatedAt              int64    `json:"created_at"`
}

// Account tracks the replay-protection nonce of a signing identity.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Nonce   uint64 `json:"nonce"`
}

// Meta is the node-wide scalar configuration persisted at genesis.
type Meta struct {
	TokenContract string `json:"token_contract"` // external token service identity
	Treasury      string `json:"treasury"`       // account whose balance funds gift payouts
	Host          string `json:"host"`           // pubkey hex allowed to submit host-invoked calls
}

// State is the full persisted state interface. Implementations must be
// snapshot-able so the executor can roll back failed calls.
type State interface {
	// Players. There is deliberately no delete.
	GetPlayer(id string) (*Player, error)
	SetPlayer(id string, p *Player) error

	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Gift swaps and the transfer outbox
	GetSwap(id string) (*Swap, error)
	SetSwap(s *Swap) error
	GetInFlightSwap(player string) (string, error)
	SetInFlightSwap(player, swapID string) error
	ClearInFlightSwap(player string) error
	GetTransfer(id string) (*Transfer, error)
	SetTransfer(t *Transfer) error

	// Receipts
	GetReceipt(txID string) (*Receipt, error)
	SetReceipt(r *Receipt) error

	// Meta
	GetMeta() (*Meta, error)
	SetMeta(m *Meta) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
