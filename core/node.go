package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"tokensale/core/clock"
	"tokensale/core/events"
	"tokensale/core/types"
	"tokensale/native/sale"
	"tokensale/native/token"
	"tokensale/storage"
)

var ErrLedgerOwnerMismatch = errors.New("node: ledger is not owned by the sale controller")

// Options wires a Node.
type Options struct {
	DB    storage.Database
	Token token.Metadata
	Sale  sale.Config
	Clock clock.Clock
	// Emitters receive every sale and ledger event in addition to the node's
	// own event log.
	Emitters []events.Emitter
	// History seeds the event log with events recorded before a restart, so
	// positions keep counting from where the previous process stopped.
	History []*types.Event
	Logger   *slog.Logger
}

// Node is the host around the sale engine. It serialises every call, reads
// the clock once per call and records every event in an append-only log.
type Node struct {
	stateMu sync.Mutex
	sale    *sale.Engine
	ledger  *token.Ledger
	clock   clock.Clock
	log     *events.Log
	logger  *slog.Logger
}

// NewNode opens the ledger and constructs the sale controller, restoring any
// sale state persisted in the same database. The ledger is registered with
// the controller as its owner when the database is empty; an existing ledger
// must be owned by the controller, or by its allocator once finalized.
func NewNode(opts Options) (*Node, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("node: clock required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	meta := opts.Token
	meta.Owner = opts.Sale.Self
	ledger, err := token.Open(opts.DB, meta)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	engine, err := sale.NewEngine(opts.Sale, ledger)
	if err != nil {
		return nil, fmt.Errorf("sale engine: %w", err)
	}
	owner, err := ledger.Owner()
	if err != nil {
		return nil, fmt.Errorf("ledger owner: %w", err)
	}
	if owner != engine.LedgerOwner() {
		return nil, ErrLedgerOwnerMismatch
	}

	eventLog := events.NewLogFrom(opts.History)
	sinks := append(events.Fanout{eventLog}, opts.Emitters...)
	engine.SetEmitter(sinks)
	ledger.SetEmitter(sinks)

	return &Node{
		sale:   engine,
		ledger: ledger,
		clock:  opts.Clock,
		log:    eventLog,
		logger: logger.With(slog.String("component", "node")),
	}, nil
}

// Now returns the current chain position.
func (n *Node) Now() types.BlockTime { return n.clock.Now() }

// Events returns rendered events recorded at positions >= offset.
func (n *Node) Events(offset int) []*types.Event { return n.log.Since(offset) }

// EventCount returns the number of recorded events.
func (n *Node) EventCount() int { return n.log.Len() }

// EventsAppended returns a channel closed once the next event is recorded.
func (n *Node) EventsAppended() <-chan struct{} { return n.log.Appended() }

func (n *Node) BuyTokens(sender, beneficiary [20]byte, value *big.Int) (*sale.Purchase, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.BuyTokens(sender, beneficiary, value, n.clock.Now())
}

func (n *Node) Contribute(sender [20]byte, value *big.Int) (*sale.Purchase, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.Contribute(sender, value, n.clock.Now())
}

func (n *Node) SetWallet(caller, wallet [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.SetWallet(caller, wallet)
}

func (n *Node) AddToWhitelist(caller, addr [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.AddToWhitelist(caller, addr)
}

func (n *Node) SetBuyerRate(caller, addr [20]byte, rate *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.SetBuyerRate(caller, addr, rate, n.clock.Now())
}

func (n *Node) Finalize(caller [20]byte) (*sale.Finalization, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	now := n.clock.Now()
	record, err := n.sale.Finalize(caller, now)
	if err != nil {
		return nil, err
	}
	n.logger.Info("sale finalized",
		slog.Uint64("height", now.Height),
		slog.String("tokensSold", record.TokensSold.String()),
		slog.String("foundationShare", record.FoundationShare.String()),
		slog.String("issuanceRate", record.IssuanceRate.String()))
	return record, nil
}

func (n *Node) BeginContinuousSale(caller [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	now := n.clock.Now()
	if err := n.sale.BeginContinuousSale(caller, now); err != nil {
		return err
	}
	n.logger.Info("continuous sale started", slog.Uint64("timestamp", now.Timestamp))
	return nil
}

func (n *Node) SetRate(caller [20]byte, rate *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.SetRate(caller, rate)
}

func (n *Node) PauseToken(caller [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.PauseToken(caller)
}

func (n *Node) UnpauseToken(caller [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.UnpauseToken(caller)
}

func (n *Node) TransferOwnership(caller, next [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.TransferOwnership(caller, next)
}

// RateFor previews the auction rate for beneficiary at the current height.
func (n *Node) RateFor(beneficiary [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.RateFor(beneficiary, n.clock.Now().Height)
}

func (n *Node) IsWhitelisted(addr [20]byte) bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.IsWhitelisted(addr)
}

// EndBlock returns the first height at which the auction is over.
func (n *Node) EndBlock() uint64 {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.Params().EndBlock
}

// Self returns the sale controller's address.
func (n *Node) Self() [20]byte {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.Address()
}

// Owner returns the current sale owner.
func (n *Node) Owner() [20]byte {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.sale.Owner()
}

func (n *Node) BalanceOf(addr [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.ledger.BalanceOf(addr)
}

func (n *Node) TokenTransfer(from, to [20]byte, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.ledger.Transfer(from, to, amount)
}

func (n *Node) TokenBurn(holder [20]byte, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.ledger.Burn(holder, amount)
}

// Status is a point-in-time snapshot of the sale.
type Status struct {
	Now          types.BlockTime
	Phase        sale.Phase
	Rate         *big.Int
	Cap          *big.Int
	WeiRaised    *big.Int
	TokensSold   *big.Int
	Issuance     *big.Int
	Remaining    *big.Int
	Started      bool
	Owner        [20]byte
	Wallet       [20]byte
	Allocator    [20]byte
	Symbol       string
	TotalSupply  *big.Int
	TokenPaused  bool
	Finalization *sale.Finalization
}

// Status returns a consistent snapshot of the sale and ledger.
func (n *Node) Status() (*Status, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	now := n.clock.Now()
	supply, err := n.ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	paused, err := n.ledger.Paused()
	if err != nil {
		return nil, err
	}
	status := &Status{
		Now:         now,
		Phase:       n.sale.Phase(now),
		Rate:        n.sale.Rate(now),
		Cap:         n.sale.Cap(),
		WeiRaised:   n.sale.WeiRaised(),
		TokensSold:  n.sale.TokensSold(),
		Issuance:    n.sale.Issuance(),
		Remaining:   big.NewInt(0),
		Started:     n.sale.Started(),
		Owner:       n.sale.Owner(),
		Wallet:      n.sale.Wallet(),
		Allocator:   n.sale.AllocatorAddress(),
		Symbol:      n.ledger.Symbol(),
		TotalSupply: supply,
		TokenPaused: paused,
	}
	if allocator := n.sale.ContinuousSale(); allocator != nil {
		status.Remaining = allocator.Remaining(now)
	}
	if record, ok := n.sale.Finalization(); ok {
		status.Finalization = &record
	}
	return status, nil
}
