package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/tolelom/chestchain/crypto"
)

// TxType identifies the entry point a call invokes.
type TxType string

const (
	TxSignIn        TxType = "sign_in"
	TxClaimKey      TxType = "claim_key"
	TxOpenChest     TxType = "open_chest"
	TxExchangeChest TxType = "exchange_chest"
	TxUpgrade       TxType = "upgrade"
	TxSwapGift      TxType = "swap_gift"

	// Host-invoked only.
	TxSettleSwap      TxType = "settle_swap"
	TxTransferReceipt TxType = "transfer_receipt"
)

// HostOnly reports whether typ may only be submitted by the node's host key.
// Host calls are idempotent by payload and are exempt from nonce ordering.
func (typ TxType) HostOnly() bool {
	return typ == TxSettleSwap || typ == TxTransferReceipt
}

// Transaction is one signed call against the economy.
// From holds the caller's full hex-encoded ed25519 public key (64 chars), which
// doubles as the player identity. Signature covers all fields except ID and
// Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
// A nil payload is encoded as an empty object.
func NewTransaction(chainID string, typ TxType, from string, nonce uint64, payload any) (*Transaction, error) {
	if payload == nil {
		payload = struct{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// SettleSwapPayload delivers the outcome of the phase-1 balance query.
type SettleSwapPayload struct {
	RequestID string   `json:"request_id"`
	OK        bool     `json:"ok"`
	Balance   *big.Int `json:"balance,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// TransferReceiptPayload reports whether an issued transfer was delivered.
type TransferReceiptPayload struct {
	TransferID string `json:"transfer_id"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}
