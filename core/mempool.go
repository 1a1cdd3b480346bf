package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultMempoolSize = 10_000
	maxPerSender       = 64
	maxTxAge           = int64(time.Hour)
	maxTxFuture        = int64(5 * time.Minute)
)

// Mempool errors.
var (
	ErrMempoolFull   = errors.New("mempool full")
	ErrDuplicateTx   = errors.New("tx already in pool")
	ErrSenderBacklog = errors.New("too many pending calls from sender")
)

// Mempool is a thread-safe FIFO of calls waiting for the next block.
type Mempool struct {
	mu       sync.RWMutex
	limit    int
	txs      map[string]*Transaction
	ord      []string // insertion order; blocks execute calls in this order
	bySender map[string]int
}

// NewMempool creates an empty mempool holding at most limit calls; limit <= 0
// selects the default.
func NewMempool(limit int) *Mempool {
	if limit <= 0 {
		limit = defaultMempoolSize
	}
	return &Mempool{
		limit:    limit,
		txs:      make(map[string]*Transaction),
		bySender: make(map[string]int),
	}
}

// Add validates and enqueues a call. It rejects bad signatures, stale or
// future timestamps, duplicates, and senders with a full backlog.
func (m *Mempool) Add(tx *Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	now := time.Now().UnixNano()
	if now-tx.Timestamp > maxTxAge {
		return errors.New("transaction expired")
	}
	if tx.Timestamp-now > maxTxFuture {
		return errors.New("transaction timestamp too far in the future")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) >= m.limit {
		return ErrMempoolFull
	}
	if _, exists := m.txs[tx.ID]; exists {
		return ErrDuplicateTx
	}
	if m.bySender[tx.From] >= maxPerSender {
		return ErrSenderBacklog
	}
	m.txs[tx.ID] = tx
	m.ord = append(m.ord, tx.ID)
	m.bySender[tx.From]++
	return nil
}

// Get returns a queued call by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Pending returns up to n queued calls in insertion order.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Transaction, 0, n)
	for _, id := range m.ord {
		if tx, ok := m.txs[id]; ok {
			result = append(result, tx)
			if len(result) >= n {
				break
			}
		}
	}
	return result
}

// Remove drops calls by ID once they have been executed.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		tx, ok := m.txs[id]
		if !ok {
			continue
		}
		delete(m.txs, id)
		if m.bySender[tx.From]--; m.bySender[tx.From] <= 0 {
			delete(m.bySender, tx.From)
		}
		removed[id] = true
	}
	filtered := m.ord[:0]
	for _, id := range m.ord {
		if !removed[id] {
			filtered = append(filtered, id)
		}
	}
	m.ord = filtered
}

// Size returns the number of queued calls.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
