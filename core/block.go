package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/chestchain/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"` // hash of state after executing this block
	TxRoot    string `json:"tx_root"`    // hash of all transaction IDs
	Timestamp int64  `json:"timestamp"`  // unix nanos; the "current time" every call in the block sees
	Producer  string `json:"producer"`   // producer's pubkey hex
}

// Block is an ordered batch of calls executed one at a time.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Receipts     []*Receipt     `json:"receipts,omitempty"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// ComputeHash returns the SHA-256 hash of the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs the block with the producer's private key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks the block signature against the given public key.
func (b *Block) Verify(pub crypto.PublicKey) error {
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// SeedProof is the producer's signature over the call's seed message. ed25519
// signatures are deterministic, so the proof is fixed for a given key, block
// and call, yet nobody without the producer key can compute it in advance.
func (b *Block) SeedProof(priv crypto.PrivateKey, tx *Transaction) string {
	return crypto.Sign(priv, b.seedMessage(tx))
}

// VerifySeedProof checks proof against the block's producer key.
func (b *Block) VerifySeedProof(tx *Transaction, proof string) error {
	pub, err := crypto.PubKeyFromHex(b.Header.Producer)
	if err != nil {
		return fmt.Errorf("producer key: %w", err)
	}
	if err := crypto.Verify(pub, b.seedMessage(tx), proof); err != nil {
		return fmt.Errorf("seed proof for %s: %w", tx.ID, err)
	}
	return nil
}

func (b *Block) seedMessage(tx *Transaction) []byte {
	return []byte(b.Header.PrevHash + ":" + tx.ID)
}

// SeedFromProof derives the random seed a call draws from.
func SeedFromProof(proof string) []byte {
	return crypto.HashBytes([]byte(proof))
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, []byte(tx.ID)...)
	}
	return crypto.Hash(ids)
}

// NewBlock creates an unsigned block stamped with the current time.
func NewBlock(height int64, prevHash, producer string, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Producer:  producer,
		},
		Transactions: txs,
	}
}
