// Package dispatcher carries gift swaps across the external token service.
//
// When a swap is initiated it queries the treasury balance and submits the
// result back to the node as a host-signed settle_swap call. When a
// settlement issues a transfer it delivers it and submits a
// transfer_receipt. A cron sweep re-dispatches anything still outstanding in
// committed state, so work survives restarts and transient service errors.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tolelom/chestchain/core"
	"github.com/tolelom/chestchain/events"
	"github.com/tolelom/chestchain/tokensvc"
	"github.com/tolelom/chestchain/wallet"
)

// Store is the committed state the dispatcher reads.
type Store interface {
	GetMeta() (*core.Meta, error)
	PendingSwaps() ([]*core.Swap, error)
	IssuedTransfers() ([]*core.Transfer, error)
}

// Pool accepts signed calls for the next block.
type Pool interface {
	Add(tx *core.Transaction) error
}

// Config tunes the dispatcher.
type Config struct {
	ChainID       string
	SweepSchedule string        // cron spec, e.g. "@every 30s"
	CallTimeout   time.Duration // per token-service call
	MaxAttempts   int           // transfer deliveries before giving up
}

// Dispatcher is the asynchronous half of the settlement protocol.
type Dispatcher struct {
	cfg   Config
	store Store
	pool  Pool
	token tokensvc.Service
	host  *wallet.Wallet
	log   *zap.Logger
	cron  *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	inflight  map[string]bool   // swap and transfer IDs with work outstanding
	attempts  map[string]int    // failed deliveries per transfer
	submitted map[string]string // queued host call ID -> swap or transfer ID
}

// New creates a Dispatcher. host must be the key recorded as Meta.Host.
func New(cfg Config, store Store, pool Pool, token tokensvc.Service, host *wallet.Wallet, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		pool:     pool,
		token:    token,
		host:     host,
		log:      log.Named("dispatcher"),
		ctx:      ctx,
		cancel:   cancel,
		inflight:  make(map[string]bool),
		attempts:  make(map[string]int),
		submitted: make(map[string]string),
	}
}

// Subscribe wires the dispatcher to committed-block events.
func (d *Dispatcher) Subscribe(em *events.Emitter) {
	em.Subscribe(events.EventSwapInitiated, func(ev events.Event) {
		id, _ := ev.Data["swap_id"].(string)
		if id != "" {
			d.goSettle(id)
		}
	})
	em.Subscribe(events.EventTransferIssued, func(ev events.Event) {
		id, _ := ev.Data["transfer_id"].(string)
		recipient, _ := ev.Data["recipient"].(string)
		amount, _ := ev.Data["amount"].(string)
		amt, ok := new(big.Int).SetString(amount, 10)
		if id == "" || !ok {
			return
		}
		d.goDeliver(&core.Transfer{ID: id, Recipient: recipient, Amount: amt})
	})
	for _, typ := range []events.EventType{events.EventSwapSettled, events.EventSwapFailed} {
		em.Subscribe(typ, func(ev events.Event) {
			id, _ := ev.Data["swap_id"].(string)
			d.done(id)
		})
	}
	for _, typ := range []events.EventType{events.EventTransferSettled, events.EventTransferRejected} {
		em.Subscribe(typ, func(ev events.Event) {
			id, _ := ev.Data["transfer_id"].(string)
			d.done(id)
			d.mu.Lock()
			delete(d.attempts, id)
			d.mu.Unlock()
		})
	}
	// A host call rejected before it resolved anything emits none of the
	// events above; release its record so the next sweep retries it.
	em.Subscribe(events.EventTxExecuted, func(ev events.Event) { d.landed(ev.TxID, false) })
	em.Subscribe(events.EventTxFailed, func(ev events.Event) { d.landed(ev.TxID, true) })
}

// Start runs an initial sweep and schedules the periodic one.
func (d *Dispatcher) Start() error {
	if d.cfg.SweepSchedule != "" {
		d.cron = cron.New()
		if _, err := d.cron.AddFunc(d.cfg.SweepSchedule, d.Sweep); err != nil {
			return fmt.Errorf("sweep schedule %q: %w", d.cfg.SweepSchedule, err)
		}
		d.cron.Start()
	}
	d.Sweep()
	return nil
}

// Stop cancels outstanding service calls and waits for workers to exit.
func (d *Dispatcher) Stop() {
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	d.cancel()
	d.wg.Wait()
}

// Wait blocks until every worker started so far has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Sweep re-dispatches every committed swap and transfer still outstanding.
func (d *Dispatcher) Sweep() {
	swaps, err := d.store.PendingSwaps()
	if err != nil {
		d.log.Error("sweep swaps", zap.Error(err))
	}
	for _, sw := range swaps {
		d.goSettle(sw.ID)
	}
	transfers, err := d.store.IssuedTransfers()
	if err != nil {
		d.log.Error("sweep transfers", zap.Error(err))
	}
	for _, t := range transfers {
		d.goDeliver(t)
	}
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[id] {
		return false
	}
	d.inflight[id] = true
	return true
}

func (d *Dispatcher) done(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
}

func (d *Dispatcher) landed(txID string, failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.submitted[txID]
	if !ok {
		return
	}
	delete(d.submitted, txID)
	if failed {
		delete(d.inflight, id)
	}
}

func (d *Dispatcher) goSettle(swapID string) {
	if !d.claim(swapID) {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.settle(swapID)
	}()
}

func (d *Dispatcher) goDeliver(t *core.Transfer) {
	if !d.claim(t.ID) {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(t)
	}()
}

// settle runs the phase-1 balance query and submits its outcome. A failed
// query is still submitted: the node resolves the swap and keeps the voucher.
func (d *Dispatcher) settle(swapID string) {
	p := core.SettleSwapPayload{RequestID: swapID}
	bal, err := d.balance()
	if err != nil {
		p.Error = err.Error()
		d.log.Warn("balance query failed", zap.String("swap", swapID), zap.Error(err))
	} else {
		p.OK = true
		p.Balance = bal
	}
	if err := d.submit(core.TxSettleSwap, swapID, p); err != nil {
		d.log.Error("submit settle_swap", zap.String("swap", swapID), zap.Error(err))
		d.done(swapID)
	}
}

func (d *Dispatcher) balance() (*big.Int, error) {
	meta, err := d.store.GetMeta()
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.CallTimeout)
	defer cancel()
	return d.token.BalanceOf(ctx, meta.Treasury)
}

// deliver sends an issued transfer. Transient errors leave it issued for the
// next sweep until MaxAttempts is reached; an insufficient treasury is final.
func (d *Dispatcher) deliver(t *core.Transfer) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.CallTimeout)
	err := d.token.Transfer(ctx, t.ID, t.Recipient, t.Amount)
	cancel()

	p := core.TransferReceiptPayload{TransferID: t.ID, OK: err == nil}
	if err != nil {
		d.mu.Lock()
		d.attempts[t.ID]++
		n := d.attempts[t.ID]
		d.mu.Unlock()
		d.log.Warn("transfer delivery failed", zap.String("transfer", t.ID), zap.Int("attempt", n), zap.Error(err))
		if !errors.Is(err, tokensvc.ErrInsufficientBalance) && n < d.cfg.MaxAttempts {
			d.done(t.ID)
			return
		}
		p.Error = err.Error()
	}
	if err := d.submit(core.TxTransferReceipt, t.ID, p); err != nil {
		d.log.Error("submit transfer_receipt", zap.String("transfer", t.ID), zap.Error(err))
		d.done(t.ID)
	}
}

// submit queues a host call resolving the swap or transfer id.
func (d *Dispatcher) submit(typ core.TxType, id string, payload any) error {
	tx, err := d.host.NewTx(d.cfg.ChainID, typ, 0, payload)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.submitted[tx.ID] = id
	d.mu.Unlock()
	if err := d.pool.Add(tx); err != nil {
		d.mu.Lock()
		delete(d.submitted, tx.ID)
		d.mu.Unlock()
		return err
	}
	return nil
}
