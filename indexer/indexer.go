// Package indexer maintains secondary indexes over committed blocks so game
// servers can list a player's swaps, transfers, and calls without scanning
// full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/storage"
)

const (
	prefixPlayerSwaps     = "idx:player:swap:"
	prefixPlayerTransfers = "idx:player:xfer:"
	prefixPlayerCalls     = "idx:player:tx:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	mu  sync.Mutex
	db  storage.DB
	log *zap.Logger
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, log *zap.Logger) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}
	idx := &Indexer{db: db, log: log.Named("indexer")}
	emitter.Subscribe(events.EventSwapInitiated, idx.onSwapInitiated)
	emitter.Subscribe(events.EventTransferIssued, idx.onTransferIssued)
	emitter.Subscribe(events.EventTxExecuted, idx.onCall)
	emitter.Subscribe(events.EventTxFailed, idx.onCall)
	return idx
}

// GetSwapsByPlayer returns the IDs of every swap a player initiated, oldest
// first.
func (idx *Indexer) GetSwapsByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerSwaps + player)
}

// GetTransfersByPlayer returns the IDs of every token transfer issued to a
// player.
func (idx *Indexer) GetTransfersByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerTransfers + player)
}

// GetCallsByPlayer returns the IDs of every executed call signed by player.
// Host-invoked calls are not indexed.
func (idx *Indexer) GetCallsByPlayer(player string) ([]string, error) {
	return idx.getList(prefixPlayerCalls + player)
}

// ---- event handlers ----

func (idx *Indexer) onSwapInitiated(ev events.Event) {
	player, _ := ev.Data["player"].(string)
	swapID, _ := ev.Data["swap_id"].(string)
	if player == "" || swapID == "" {
		return
	}
	idx.add(prefixPlayerSwaps+player, swapID)
}

func (idx *Indexer) onTransferIssued(ev events.Event) {
	recipient, _ := ev.Data["recipient"].(string)
	id, _ := ev.Data["transfer_id"].(string)
	if recipient == "" || id == "" {
		return
	}
	idx.add(prefixPlayerTransfers+recipient, id)
}

func (idx *Indexer) onCall(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	typ, _ := ev.Data["type"].(string)
	if from == "" || ev.TxID == "" || core.TxType(typ).HostOnly() {
		return
	}
	idx.add(prefixPlayerCalls+from, ev.TxID)
}

// ---- list helpers ----

func (idx *Indexer) add(key, value string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.addToList(key, value); err != nil {
		idx.log.Error("index update failed", zap.String("key", key), zap.Error(err))
	}
}

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	data, err := json.Marshal(append(ids, value))
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
