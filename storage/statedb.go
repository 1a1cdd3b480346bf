package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixPlayer   = registerPrefix("player:")
	prefixAccount  = registerPrefix("acct:")
	prefixSwap     = registerPrefix("swap:")
	prefixInFlight = registerPrefix("inflight:")
	prefixTransfer = registerPrefix("xfer:")
	prefixReceipt  = registerPrefix("rcpt:")
	keyMeta        = registerPrefix("meta")
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with an in-memory write
// buffer, snapshot/rollback, and deterministic state-root computation.
// It is safe for one writer (the block producer) alongside concurrent readers.
type StateDB struct {
	mu        sync.RWMutex
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, key)
	s.deleted[key] = true
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Player ----

func (s *StateDB) GetPlayer(id string) (*core.Player, error) {
	var p core.Player
	if err := s.getJSON(prefixPlayer+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetPlayer(id string, p *core.Player) error {
	return s.setJSON(prefixPlayer+id, p)
}

// ---- Account ----

// GetAccount returns a zero-nonce account for unknown addresses.
func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Swap ----

func (s *StateDB) GetSwap(id string) (*core.Swap, error) {
	var sw core.Swap
	if err := s.getJSON(prefixSwap+id, &sw); err != nil {
		return nil, err
	}
	return &sw, nil
}

func (s *StateDB) SetSwap(sw *core.Swap) error {
	return s.setJSON(prefixSwap+sw.ID, sw)
}

// GetInFlightSwap returns the pending swap ID of player, or "" when none.
func (s *StateDB) GetInFlightSwap(player string) (string, error) {
	v, err := s.get(prefixInFlight + player)
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *StateDB) SetInFlightSwap(player, swapID string) error {
	s.set(prefixInFlight+player, []byte(swapID))
	return nil
}

func (s *StateDB) ClearInFlightSwap(player string) error {
	s.del(prefixInFlight + player)
	return nil
}

// ---- Transfer ----

func (s *StateDB) GetTransfer(id string) (*core.Transfer, error) {
	var t core.Transfer
	if err := s.getJSON(prefixTransfer+id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StateDB) SetTransfer(t *core.Transfer) error {
	return s.setJSON(prefixTransfer+t.ID, t)
}

// ---- Receipt ----

func (s *StateDB) GetReceipt(txID string) (*core.Receipt, error) {
	var r core.Receipt
	if err := s.getJSON(prefixReceipt+txID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *StateDB) SetReceipt(r *core.Receipt) error {
	return s.setJSON(prefixReceipt+r.TxID, r)
}

// ---- Meta ----

func (s *StateDB) GetMeta() (*core.Meta, error) {
	var m core.Meta
	if err := s.getJSON(keyMeta, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *StateDB) SetMeta(m *core.Meta) error {
	return s.setJSON(keyMeta, m)
}

// ---- Scans over committed state ----

// PendingSwaps returns every committed swap still awaiting settlement.
func (s *StateDB) PendingSwaps() ([]*core.Swap, error) {
	var out []*core.Swap
	err := s.scan(prefixSwap, func(data []byte) error {
		var sw core.Swap
		if err := json.Unmarshal(data, &sw); err != nil {
			return err
		}
		if sw.Status == core.SwapPending {
			out = append(out, &sw)
		}
		return nil
	})
	return out, err
}

// IssuedTransfers returns every committed transfer not yet delivered.
func (s *StateDB) IssuedTransfers() ([]*core.Transfer, error) {
	var out []*core.Transfer
	err := s.scan(prefixTransfer, func(data []byte) error {
		var t core.Transfer
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		if t.Status == core.TransferIssued {
			out = append(out, &t)
		}
		return nil
	})
	return out, err
}

func (s *StateDB) scan(prefix string, fn func([]byte) error) error {
	it := s.db.NewIterator([]byte(prefix))
	defer it.Release()
	for it.Next() {
		if err := fn(it.Value()); err != nil {
			return fmt.Errorf("scan %s: %w", it.Key(), err)
		}
	}
	return it.Error()
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, stateSnapshot{
		dirty:   copyDirty(s.dirty),
		deleted: copyDeleted(s.deleted),
	})
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards that snapshot and every later one.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]
	s.dirty = copyDirty(snap.dirty)
	s.deleted = copyDeleted(snap.deleted)
	s.snapshots = s.snapshots[:id]
	return nil
}

func copyDirty(m map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func copyDeleted(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ComputeRoot returns the deterministic hash of the complete state: persisted
// entries under the registered prefixes merged with the write buffer, sorted
// and length-prefix encoded. It does not flush.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[string(it.Key())] = v
		}
		it.Release()
	}

	s.mu.RLock()
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}
	s.mu.RUnlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the DB and clears it.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
