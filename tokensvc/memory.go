package tokensvc

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// Memory is an in-process token ledger for development nodes and tests.
// Transfers are debited from the treasury account it was created with.
type Memory struct {
	mu        sync.Mutex
	treasury  string
	balances  map[string]*big.Int
	delivered map[string]bool
	failures  map[string]error
}

// NewMemory creates a ledger whose treasury holds supply.
func NewMemory(treasury string, supply *big.Int) *Memory {
	m := &Memory{
		treasury:  treasury,
		balances:  make(map[string]*big.Int),
		delivered: make(map[string]bool),
		failures:  make(map[string]error),
	}
	if supply != nil {
		m.balances[treasury] = new(big.Int).Set(supply)
	}
	return m
}

// FailWith makes every call to method ("ft_balance_of" or "ft_transfer")
// return err until cleared with a nil err.
func (m *Memory) FailWith(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// SetBalance overwrites the balance of account.
func (m *Memory) SetBalance(account string, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = new(big.Int).Set(amount)
}

func (m *Memory) BalanceOf(_ context.Context, account string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[methodBalanceOf]; err != nil {
		return nil, err
	}
	return m.balanceLocked(account), nil
}

func (m *Memory) Transfer(_ context.Context, id, recipient string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[methodTransfer]; err != nil {
		return err
	}
	if m.delivered[id] {
		return nil
	}
	from := m.balanceLocked(m.treasury)
	if from.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, from, amount)
	}
	m.balances[m.treasury] = from.Sub(from, amount)
	to := m.balanceLocked(recipient)
	m.balances[recipient] = to.Add(to, amount)
	m.delivered[id] = true
	return nil
}

func (m *Memory) balanceLocked(account string) *big.Int {
	if b, ok := m.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}
