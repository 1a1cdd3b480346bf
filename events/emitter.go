// Package events is a synchronous pub/sub bus for state changes made by
// executed calls.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit      EventType = "block_commit"
	EventTxExecuted       EventType = "tx_executed"
	EventTxFailed         EventType = "tx_failed"
	EventPlayerCreated    EventType = "player_created"
	EventKeyClaimed       EventType = "key_claimed"
	EventChestOpened      EventType = "chest_opened"
	EventChestExchanged   EventType = "chest_exchanged"
	EventUpgraded         EventType = "upgraded"
	EventSwapInitiated    EventType = "swap_initiated"
	EventSwapSettled      EventType = "swap_settled"
	EventSwapFailed       EventType = "swap_failed"
	EventTransferIssued   EventType = "transfer_issued"
	EventTransferSettled  EventType = "transfer_confirmed"
	EventTransferRejected EventType = "transfer_failed"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      *zap.Logger
}

// NewEmitter creates an Emitter with no subscribers. A nil logger discards
// handler panics silently.
func NewEmitter(log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{handlers: make(map[EventType][]Handler), log: log.Named("events")}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously. A panicking
// subscriber is logged and skipped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("handler panicked", zap.String("type", string(ev.Type)), zap.Any("panic", r))
				}
			}()
			h(ev)
		}()
	}
}
