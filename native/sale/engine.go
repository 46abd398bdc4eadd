package sale

import (
	"math/big"

	"tokensale/core/events"
	"tokensale/core/types"
	"tokensale/crypto"
	"tokensale/native/common"
	"tokensale/native/continuous"
	"tokensale/native/token"
)

// allocatorNonce is the creation nonce used to derive the allocator address
// from the controller address.
const allocatorNonce = 1

// Engine is the sale controller. It runs the timed auction, finalizes it and
// then fronts the continuous allocator it created. It is not safe for
// concurrent use; the host serialises calls and passes the current time.
type Engine struct {
	self   [20]byte
	owner  [20]byte
	wallet [20]byte

	params     Params
	curve      RateCurve
	whitelist  *Whitelist
	capGuard   *CapGuard
	tokensSold *big.Int

	finalization *Finalization
	allocator    *continuous.Engine

	ledger  Ledger
	emitter events.Emitter
}

// NewEngine validates cfg and returns the controller. State persisted by an
// earlier engine at cfg.Self is restored, including the allocator once
// finalized; owner and wallet then come from storage rather than cfg.
func NewEngine(cfg Config, ledger Ledger) (*Engine, error) {
	if ledger == nil {
		return nil, errNilLedger
	}
	if cfg.Self == ([20]byte{}) || cfg.Owner == ([20]byte{}) || cfg.Wallet == ([20]byte{}) {
		return nil, ErrInvalidAddress
	}
	params := cfg.Params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	curve, err := NewRateCurve(params.StartBlock, params.EndBlock, params.StartRate, params.EndRate)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		self:       cfg.Self,
		owner:      cfg.Owner,
		wallet:     cfg.Wallet,
		params:     params,
		curve:      curve,
		whitelist:  NewWhitelist(params.StartBlock),
		capGuard:   NewCapGuard(params.Cap),
		tokensSold: big.NewInt(0),
		ledger:     ledger,
		emitter:    events.NoopEmitter{},
	}
	if _, err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) currentStage() stage {
	switch {
	case e.finalization == nil:
		return stageAuction
	case e.allocator.Started():
		return stageContinuous
	default:
		return stageFinalized
	}
}

// LedgerOwner returns the account that must own the ledger: the controller
// during the auction and the allocator once finalized.
func (e *Engine) LedgerOwner() [20]byte {
	if e.finalization != nil {
		return e.finalization.Allocator
	}
	return e.self
}

// SetEmitter configures the event emitter used by the engine and the
// allocator it creates. Passing nil resets the emitter to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
	if e.allocator != nil {
		e.allocator.SetEmitter(emitter)
	}
}

// AllocatorAddress returns the address the allocator is created at.
func (e *Engine) AllocatorAddress() [20]byte {
	return crypto.DeriveAddress(e.self, allocatorNonce)
}

func (e *Engine) Address() [20]byte { return e.self }
func (e *Engine) Owner() [20]byte   { return e.owner }
func (e *Engine) Wallet() [20]byte  { return e.wallet }
func (e *Engine) Params() Params    { return e.params.Clone() }
func (e *Engine) Curve() RateCurve  { return e.curve }

func (e *Engine) Cap() *big.Int        { return e.capGuard.Cap() }
func (e *Engine) WeiRaised() *big.Int  { return e.capGuard.Raised() }
func (e *Engine) TokensSold() *big.Int { return new(big.Int).Set(e.tokensSold) }

func (e *Engine) IsWhitelisted(addr [20]byte) bool { return e.whitelist.IsWhitelisted(addr) }

// OverrideRate returns the buyer-specific rate, if any.
func (e *Engine) OverrideRate(addr [20]byte) (*big.Int, bool) {
	return e.whitelist.OverrideRateOf(addr)
}

// Whitelisted lists whitelisted addresses in registration order.
func (e *Engine) Whitelisted() [][20]byte { return e.whitelist.Members() }

// Phase reports the lifecycle position at now.
func (e *Engine) Phase(now types.BlockTime) Phase {
	switch e.currentStage() {
	case stageContinuous:
		return PhaseContinuousActive
	case stageFinalized:
		return PhaseFinalized
	}
	switch {
	case now.Height < e.params.StartBlock:
		return PhasePreSale
	case now.Height < e.params.EndBlock:
		return PhaseActive
	default:
		return PhaseEnded
	}
}

// Rate returns the public rate at now: the curve price during the auction and
// the allocator rate afterwards.
func (e *Engine) Rate(now types.BlockTime) *big.Int {
	if e.allocator != nil {
		return e.allocator.Rate()
	}
	return e.curve.PriceAt(now.Height)
}

// Issuance returns the tokens released per bucket; zero before finalization.
func (e *Engine) Issuance() *big.Int {
	if e.allocator == nil {
		return big.NewInt(0)
	}
	return e.allocator.Issuance()
}

// Started reports whether continuous sales are open.
func (e *Engine) Started() bool {
	return e.allocator != nil && e.allocator.Started()
}

// ContinuousSale returns the allocator, or nil before finalization.
func (e *Engine) ContinuousSale() *continuous.Engine { return e.allocator }

// Finalization returns the finalization record, if written.
func (e *Engine) Finalization() (Finalization, bool) {
	if e.finalization == nil {
		return Finalization{}, false
	}
	return e.finalization.Clone(), true
}

// RateFor returns the rate beneficiary would pay at height, or
// ErrSaleNotActive when it may not buy.
func (e *Engine) RateFor(beneficiary [20]byte, height uint64) (*big.Int, error) {
	if e.currentStage() != stageAuction || height >= e.params.EndBlock {
		return nil, ErrSaleNotActive
	}
	if e.whitelist.IsWhitelisted(beneficiary) {
		if rate, ok := e.whitelist.OverrideRateOf(beneficiary); ok {
			return rate, nil
		}
		return new(big.Int).Set(e.params.PreferentialRate), nil
	}
	if height < e.params.StartBlock {
		return nil, ErrSaleNotActive
	}
	return e.curve.PriceAt(height), nil
}

// BuyTokens exchanges value for tokens minted to beneficiary during the
// auction. Either the raise and the mint both happen or neither does.
func (e *Engine) BuyTokens(sender, beneficiary [20]byte, value *big.Int, now types.BlockTime) (*Purchase, error) {
	if e.currentStage() != stageAuction {
		return nil, ErrSaleNotActive
	}
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidValue
	}
	if beneficiary == ([20]byte{}) {
		return nil, ErrInvalidAddress
	}
	rate, err := e.RateFor(beneficiary, now.Height)
	if err != nil {
		return nil, err
	}
	raised, err := e.capGuard.Check(value)
	if err != nil {
		return nil, err
	}
	tokens := new(big.Int).Mul(value, rate)
	sold := new(big.Int).Add(e.tokensSold, tokens)
	state := e.snapshot()
	state.Raised = raised
	state.TokensSold = sold
	if err := e.persist(state, func(w token.Writer) error {
		return w.Mint(e.self, beneficiary, tokens)
	}); err != nil {
		return nil, err
	}
	e.capGuard.Commit(raised)
	e.tokensSold = sold

	purchase := &Purchase{
		Phase:       events.PhaseAuction,
		Purchaser:   sender,
		Beneficiary: beneficiary,
		Value:       new(big.Int).Set(value),
		Tokens:      tokens,
		Rate:        rate,
	}
	e.emitter.Emit(events.SalePurchase{
		Phase:       purchase.Phase,
		Purchaser:   sender,
		Beneficiary: beneficiary,
		Value:       purchase.Value,
		Tokens:      purchase.Tokens,
		Rate:        purchase.Rate,
		Wallet:      e.wallet,
	})
	return purchase, nil
}

// Contribute is the fallback path with the sender as beneficiary. Once the
// auction is finalized contributions go to the allocator.
func (e *Engine) Contribute(sender [20]byte, value *big.Int, now types.BlockTime) (*Purchase, error) {
	if e.currentStage() == stageAuction {
		return e.BuyTokens(sender, sender, value, now)
	}
	bought, err := e.allocator.Contribute(sender, value, now)
	if err != nil {
		return nil, err
	}
	return &Purchase{
		Phase:       events.PhaseContinuous,
		Purchaser:   bought.Purchaser,
		Beneficiary: bought.Beneficiary,
		Value:       bought.Value,
		Tokens:      bought.Tokens,
		Rate:        bought.Rate,
	}, nil
}

// SetWallet replaces the value recipient, on the allocator too once it exists.
func (e *Engine) SetWallet(caller, wallet [20]byte) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	if wallet == ([20]byte{}) {
		return ErrInvalidAddress
	}
	state := e.snapshot()
	state.Wallet = wallet
	if err := e.persist(state, nil); err != nil {
		return err
	}
	if e.allocator != nil {
		if err := e.allocator.SetWallet(e.self, wallet); err != nil {
			return err
		}
	}
	previous := e.wallet
	e.wallet = wallet
	e.emitter.Emit(events.SaleWalletChanged{Previous: previous, Current: wallet})
	return nil
}

// AddToWhitelist registers addr. Repeated calls are no-ops.
func (e *Engine) AddToWhitelist(caller, addr [20]byte) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	if addr == ([20]byte{}) {
		return ErrInvalidAddress
	}
	if e.whitelist.IsWhitelisted(addr) {
		return nil
	}
	state := e.snapshot()
	state.Members++
	if err := e.persist(state, func(w token.Writer) error {
		return e.putMember(w, state.Members-1, addr, nil)
	}); err != nil {
		return err
	}
	e.whitelist.Add(addr)
	e.emitter.Emit(events.SaleWhitelisted{Address: addr})
	return nil
}

// SetBuyerRate assigns a one-time preferential rate to a whitelisted buyer
// before the auction opens.
func (e *Engine) SetBuyerRate(caller, addr [20]byte, rate *big.Int, now types.BlockTime) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	if err := e.whitelist.CheckOverrideRate(addr, rate, now.Height); err != nil {
		return err
	}
	index, _ := e.whitelist.IndexOf(addr)
	if err := e.persist(e.snapshot(), func(w token.Writer) error {
		return e.putMember(w, index, addr, rate)
	}); err != nil {
		return err
	}
	if err := e.whitelist.SetOverrideRate(addr, rate, now.Height); err != nil {
		return err
	}
	e.emitter.Emit(events.SalePreferentialRate{Buyer: addr, Rate: new(big.Int).Set(rate)})
	return nil
}

// TransferOwnership hands sale administration to next.
func (e *Engine) TransferOwnership(caller, next [20]byte) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	if next == ([20]byte{}) {
		return ErrInvalidAddress
	}
	state := e.snapshot()
	state.Owner = next
	if err := e.persist(state, nil); err != nil {
		return err
	}
	e.owner = next
	return nil
}

// BeginContinuousSale opens the allocator's first issuance bucket at now.
func (e *Engine) BeginContinuousSale(caller [20]byte, now types.BlockTime) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	if e.currentStage() == stageAuction {
		return ErrNotFinalized
	}
	return e.allocator.Start(e.self, now)
}

// SetRate changes the continuous-sale rate.
func (e *Engine) SetRate(caller [20]byte, rate *big.Int) error {
	if err := e.requireAllocator(caller); err != nil {
		return err
	}
	return e.allocator.SetRate(e.self, rate)
}

// PauseToken pauses the ledger through the allocator.
func (e *Engine) PauseToken(caller [20]byte) error {
	if err := e.requireAllocator(caller); err != nil {
		return err
	}
	return e.allocator.PauseToken(e.self)
}

// UnpauseToken unpauses the ledger through the allocator.
func (e *Engine) UnpauseToken(caller [20]byte) error {
	if err := e.requireAllocator(caller); err != nil {
		return err
	}
	return e.allocator.UnpauseToken(e.self)
}

func (e *Engine) requireAllocator(caller [20]byte) error {
	if err := common.RequireOwner(e.owner, caller); err != nil {
		return err
	}
	if e.allocator == nil {
		return ErrNotFinalized
	}
	return nil
}
