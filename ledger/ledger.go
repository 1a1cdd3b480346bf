// Package ledger owns player records: the only path by which economy
// operations read and write them.
package ledger

import (
	"errors"
	"fmt"

	"github.com/tolelom/chestchain/core"
)

// Store is the slice of core.State the ledger needs.
type Store interface {
	GetPlayer(id string) (*core.Player, error)
	SetPlayer(id string, p *core.Player) error
}

// Ledger maps player identities to records. It never removes a record.
type Ledger struct {
	store Store
}

// New returns a Ledger over store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Get returns the record for id, or (nil, false, nil) if there is none.
func (l *Ledger) Get(id string) (*core.Player, bool, error) {
	p, err := l.store.GetPlayer(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get player %s: %w", id, err)
	}
	return p, true, nil
}

// Put stores p under id.
func (l *Ledger) Put(id string, p *core.Player) error {
	if err := l.store.SetPlayer(id, p); err != nil {
		return fmt.Errorf("put player %s: %w", id, err)
	}
	return nil
}

// GetOrCreate returns the record for id, creating and storing the one built
// by create when absent. The bool reports whether it was created.
func (l *Ledger) GetOrCreate(id string, create func() *core.Player) (*core.Player, bool, error) {
	p, ok, err := l.Get(id)
	if err != nil || ok {
		return p, false, err
	}
	p = create()
	if err := l.Put(id, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Update reads the record for id, applies fn, and writes it back only if fn
// succeeds. A missing record fails with core.ErrNotFound.
func (l *Ledger) Update(id string, fn func(p *core.Player) error) (*core.Player, error) {
	p, ok, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, core.ErrNotFound)
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := l.Put(id, p); err != nil {
		return nil, err
	}
	return p, nil
}
