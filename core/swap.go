package core

import "math/big"

// SwapStatus is the lifecycle state of a gift swap.
type SwapStatus string

const (
	SwapPending SwapStatus = "pending"
	SwapSettled SwapStatus = "settled"
	SwapFailed  SwapStatus = "failed"
)

// Swap is the persisted record of one two-phase gift swap. It is created in
// phase 1 and resolved exactly once by the settlement call.
type Swap struct {
	ID         string     `json:"id"`
	Player     string     `json:"player"`
	TxID       string     `json:"tx_id"` // initiating call
	Status     SwapStatus `json:"status"`
	CreatedAt  int64      `json:"created_at"`
	ResolvedAt int64      `json:"resolved_at,omitempty"`
	Balance    *big.Int   `json:"balance,omitempty"` // treasury balance seen by the query
	Keys       uint32     `json:"keys,omitempty"`    // keys granted, if the key branch won
	Tokens     *big.Int   `json:"tokens,omitempty"`  // tokens paid, if the token branch won
	TransferID string     `json:"transfer_id,omitempty"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// TransferStatus tracks delivery of an issued token transfer.
type TransferStatus string

const (
	TransferIssued    TransferStatus = "issued"
	TransferConfirmed TransferStatus = "confirmed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer is an outbox entry: a token payout the settlement issued and the
// dispatcher must deliver to the token service.
type Transfer struct {
	ID        string         `json:"id"`
	SwapID    string         `json:"swap_id"`
	Recipient string         `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
	Status    TransferStatus `json:"status"`
	IssuedAt  int64          `json:"issued_at"`
	Error     string         `json:"error,omitempty"`
}

// ReceiptStatus is the outcome of an executed call.
type ReceiptStatus string

const (
	ReceiptOK     ReceiptStatus = "ok"
	ReceiptFailed ReceiptStatus = "failed"
)

// Receipt records the outcome of every executed call, successful or not.
type Receipt struct {
	TxID        string        `json:"tx_id"`
	Type        TxType        `json:"type"`
	From        string        `json:"from"`
	Status      ReceiptStatus `json:"status"`
	Result      string        `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	BlockHeight int64         `json:"block_height"`
	SeedProof   string        `json:"seed_proof,omitempty"` // producer signature the call's randomness derives from
}
