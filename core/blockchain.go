package core

import (
	"fmt"
	"sync"

	"github.com/tolelom/chestchain/crypto"
)

// BlockStore persists the block log. Implementations live in the storage
// package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	GetBlockByHeight(height int64) (*Block, error)
	// GetTip returns the current tip hash, or ("", nil) for a fresh log.
	GetTip() (string, error)
	// CommitBlock atomically writes the block, its height index entry, and
	// the tip pointer.
	CommitBlock(block *Block) error
}

// Blockchain is the node's append-only audit log: every block records the
// calls the producer ran, their receipts, and the state root they left.
// Nothing reads the log back to rebuild state; it exists so an outsider can
// check what was executed and re-derive each call's randomness.
type Blockchain struct {
	mu     sync.RWMutex
	store  BlockStore
	tip    *Block
	height int64
}

// NewBlockchain returns a Blockchain backed by store.
// Call Init() to load an existing tip from storage.
func NewBlockchain(store BlockStore) *Blockchain {
	return &Blockchain{store: store}
}

// Init loads the persisted tip from the block store.
func (bc *Blockchain) Init() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tipHash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil
	}
	tip, err := bc.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	bc.tip = tip
	bc.height = tip.Header.Height
	return nil
}

// AddBlock checks the producer signature, one receipt per call with a valid
// seed proof, height continuity, and PrevHash linkage, then persists the
// block and advances the tip.
func (bc *Blockchain) AddBlock(block *Block) error {
	if err := checkBlock(block); err != nil {
		return err
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.tip != nil {
		if block.Header.Height != bc.height+1 {
			return fmt.Errorf("block height %d does not follow tip %d", block.Header.Height, bc.height)
		}
		if block.Header.PrevHash != bc.tip.Hash {
			return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, bc.tip.Hash)
		}
		if block.Header.Timestamp < bc.tip.Header.Timestamp {
			return fmt.Errorf("block time %d precedes tip time %d", block.Header.Timestamp, bc.tip.Header.Timestamp)
		}
	}

	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	bc.tip = block
	bc.height = block.Header.Height
	return nil
}

// GetBlock returns a block by its hash.
func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlock(hash)
}

// GetBlockByHeight returns the block at the given height.
func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlockByHeight(height)
}

// Tip returns the current tip, or nil for a fresh log.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height returns the height of the current tip (0 for a fresh log).
func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}

func checkBlock(block *Block) error {
	if block.Hash != block.ComputeHash() {
		return fmt.Errorf("block %d: hash does not match header", block.Header.Height)
	}
	producer, err := crypto.PubKeyFromHex(block.Header.Producer)
	if err != nil {
		return fmt.Errorf("block %d producer: %w", block.Header.Height, err)
	}
	if err := block.Verify(producer); err != nil {
		return fmt.Errorf("block %d: %w", block.Header.Height, err)
	}
	if len(block.Receipts) != len(block.Transactions) {
		return fmt.Errorf("block %d: %d calls but %d receipts",
			block.Header.Height, len(block.Transactions), len(block.Receipts))
	}
	for i, tx := range block.Transactions {
		r := block.Receipts[i]
		if r.TxID != tx.ID {
			return fmt.Errorf("block %d: receipt %d is for %s, not %s", block.Header.Height, i, r.TxID, tx.ID)
		}
		if err := block.VerifySeedProof(tx, r.SeedProof); err != nil {
			return fmt.Errorf("block %d: %w", block.Header.Height, err)
		}
	}
	return nil
}
