package continuous

import (
	"fmt"
	"math/big"

	"tokensale/core/events"
	"tokensale/core/types"
	"tokensale/native/common"
	"tokensale/native/token"
)

// Engine releases tokens at a configurable rate, bounded by a fixed number of
// tokens per time bucket. It is not safe for concurrent use; the host
// serialises calls.
type Engine struct {
	self    [20]byte
	owner   [20]byte
	wallet  [20]byte
	rate    *big.Int
	status  Status
	bucket  common.Bucket
	ledger  Ledger
	emitter events.Emitter
}

// NewEngine constructs a pending allocator. The bucket window opens on Start.
func NewEngine(cfg Config, ledger Ledger) (*Engine, error) {
	if ledger == nil {
		return nil, errNilLedger
	}
	if cfg.WindowSeconds == 0 {
		return nil, fmt.Errorf("continuous: window seconds must be positive")
	}
	if cfg.Rate == nil || cfg.Rate.Sign() < 0 {
		return nil, ErrInvalidRate
	}
	if cfg.Capacity == nil || cfg.Capacity.Sign() < 0 {
		return nil, fmt.Errorf("continuous: capacity must not be negative")
	}
	return &Engine{
		self:    cfg.Self,
		owner:   cfg.Owner,
		wallet:  cfg.Wallet,
		rate:    new(big.Int).Set(cfg.Rate),
		status:  StatusPending,
		bucket:  common.NewBucket(0, cfg.WindowSeconds, cfg.Capacity),
		ledger:  ledger,
		emitter: events.NoopEmitter{},
	}, nil
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) Address() [20]byte { return e.self }
func (e *Engine) Owner() [20]byte   { return e.owner }
func (e *Engine) Wallet() [20]byte  { return e.wallet }
func (e *Engine) Status() Status    { return e.status }
func (e *Engine) Started() bool     { return e.status == StatusStarted }

// Rate returns the current tokens-per-value rate.
func (e *Engine) Rate() *big.Int { return new(big.Int).Set(e.rate) }

// Issuance returns the number of tokens released per bucket.
func (e *Engine) Issuance() *big.Int { return new(big.Int).Set(e.bucket.Capacity) }

// Bucket returns a snapshot of the issuance bucket.
func (e *Engine) Bucket() common.Bucket { return e.bucket.Clone() }

// Remaining reports the tokens still available in the window active at now.
func (e *Engine) Remaining(now types.BlockTime) *big.Int {
	if !e.Started() {
		return big.NewInt(0)
	}
	return e.bucket.Remaining(now.Timestamp)
}

// Start opens the first bucket window at now.
func (e *Engine) Start(caller [20]byte, now types.BlockTime) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	if e.status == StatusStarted {
		return ErrAlreadyStarted
	}
	bucket := common.NewBucket(now.Timestamp, e.bucket.WindowSize, e.bucket.Capacity)
	if err := e.persist(newState(e.rate, StatusStarted, bucket), nil); err != nil {
		return err
	}
	e.bucket = bucket
	e.status = StatusStarted
	e.emitter.Emit(events.ContinuousStarted{
		Allocator:   e.self,
		WindowStart: e.bucket.WindowStart,
		WindowSize:  e.bucket.WindowSize,
		Capacity:    e.Issuance(),
		Rate:        e.Rate(),
	})
	return nil
}

// SetRate replaces the purchase rate. The bucket capacity is unaffected.
func (e *Engine) SetRate(caller [20]byte, rate *big.Int) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	if rate == nil || rate.Sign() < 0 {
		return ErrInvalidRate
	}
	if err := e.persist(newState(rate, e.status, e.bucket), nil); err != nil {
		return err
	}
	previous := e.rate
	e.rate = new(big.Int).Set(rate)
	e.emitter.Emit(events.SaleRateChanged{Previous: previous, Current: e.Rate()})
	return nil
}

// SetWallet replaces the address recorded as the value recipient. The wallet
// is not part of the persisted state; the controller persists its own.
func (e *Engine) SetWallet(caller, wallet [20]byte) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	e.wallet = wallet
	return nil
}

// BuyTokens mints value*rate tokens to beneficiary when the active bucket has
// room for all of them. Nothing is minted otherwise.
func (e *Engine) BuyTokens(sender, beneficiary [20]byte, value *big.Int, now types.BlockTime) (*Purchase, error) {
	if e.status != StatusStarted {
		return nil, ErrNotStarted
	}
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidValue
	}
	tokens := new(big.Int).Mul(value, e.rate)
	next, err := common.ConsumeBucket(e.bucket, now.Timestamp, tokens)
	if err != nil {
		return nil, err
	}
	if err := e.persist(newState(e.rate, e.status, next), func(w token.Writer) error {
		return w.Mint(e.self, beneficiary, tokens)
	}); err != nil {
		return nil, err
	}
	e.bucket = next

	purchase := &Purchase{
		Purchaser:   sender,
		Beneficiary: beneficiary,
		Value:       new(big.Int).Set(value),
		Tokens:      tokens,
		Rate:        e.Rate(),
	}
	e.emitter.Emit(events.SalePurchase{
		Phase:       events.PhaseContinuous,
		Purchaser:   sender,
		Beneficiary: beneficiary,
		Value:       purchase.Value,
		Tokens:      purchase.Tokens,
		Rate:        purchase.Rate,
		Wallet:      e.wallet,
	})
	return purchase, nil
}

// Contribute is the fallback path: the sender is also the beneficiary.
func (e *Engine) Contribute(sender [20]byte, value *big.Int, now types.BlockTime) (*Purchase, error) {
	return e.BuyTokens(sender, sender, value, now)
}

// PauseToken pauses the ledger on behalf of the allocator.
func (e *Engine) PauseToken(caller [20]byte) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	return e.ledger.Update(func(w token.Writer) error { return w.Pause(e.self) })
}

// UnpauseToken lifts a ledger pause on behalf of the allocator.
func (e *Engine) UnpauseToken(caller [20]byte) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	return e.ledger.Update(func(w token.Writer) error { return w.Unpause(e.self) })
}
