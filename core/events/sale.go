package events

import (
	"math/big"

	"tokensale/core/types"
)

const (
	// TypeSalePurchase is emitted for every accepted contribution.
	TypeSalePurchase = "sale.purchase"
	// TypeSaleRateChanged is emitted when the continuous-sale rate changes.
	TypeSaleRateChanged = "sale.rate.changed"
	// TypeSalePreferentialRate is emitted when a buyer receives an override rate.
	TypeSalePreferentialRate = "sale.preferential_rate.changed"
	// TypeSaleWhitelisted is emitted the first time an address is whitelisted.
	TypeSaleWhitelisted = "sale.whitelist.added"
	// TypeSaleWalletChanged is emitted when the fund recipient changes.
	TypeSaleWalletChanged = "sale.wallet.changed"
	// TypeSaleFinalized is emitted once, when the auction is finalized.
	TypeSaleFinalized = "sale.finalized"
	// TypeContinuousStarted is emitted when the continuous sale opens.
	TypeContinuousStarted = "sale.continuous.started"

	// PhaseAuction labels purchases processed by the timed auction.
	PhaseAuction = "auction"
	// PhaseContinuous labels purchases processed by the continuous allocator.
	PhaseContinuous = "continuous"
)

// SalePurchase records tokens minted in exchange for a contribution.
type SalePurchase struct {
	Phase       string
	Purchaser   [20]byte
	Beneficiary [20]byte
	Value       *big.Int
	Tokens      *big.Int
	Rate        *big.Int
	Wallet      [20]byte
}

func (SalePurchase) EventType() string { return TypeSalePurchase }

func (e SalePurchase) Event() *types.Event {
	return &types.Event{
		Type: TypeSalePurchase,
		Attributes: map[string]string{
			"phase":       e.Phase,
			"purchaser":   formatAddress(e.Purchaser),
			"beneficiary": formatAddress(e.Beneficiary),
			"value":       formatAmount(e.Value),
			"tokens":      formatAmount(e.Tokens),
			"rate":        formatAmount(e.Rate),
			"wallet":      formatAddress(e.Wallet),
		},
	}
}

// SaleRateChanged captures an owner-driven change of the continuous-sale rate.
type SaleRateChanged struct {
	Previous *big.Int
	Current  *big.Int
}

func (SaleRateChanged) EventType() string { return TypeSaleRateChanged }

func (e SaleRateChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleRateChanged,
		Attributes: map[string]string{
			"previous": formatAmount(e.Previous),
			"current":  formatAmount(e.Current),
		},
	}
}

// SalePreferentialRate captures a per-buyer override rate.
type SalePreferentialRate struct {
	Buyer [20]byte
	Rate  *big.Int
}

func (SalePreferentialRate) EventType() string { return TypeSalePreferentialRate }

func (e SalePreferentialRate) Event() *types.Event {
	return &types.Event{
		Type: TypeSalePreferentialRate,
		Attributes: map[string]string{
			"buyer": formatAddress(e.Buyer),
			"rate":  formatAmount(e.Rate),
		},
	}
}

// SaleWhitelisted records a newly whitelisted address.
type SaleWhitelisted struct {
	Address [20]byte
}

func (SaleWhitelisted) EventType() string { return TypeSaleWhitelisted }

func (e SaleWhitelisted) Event() *types.Event {
	return &types.Event{
		Type:       TypeSaleWhitelisted,
		Attributes: map[string]string{"address": formatAddress(e.Address)},
	}
}

// SaleWalletChanged records a change of the fund recipient.
type SaleWalletChanged struct {
	Previous [20]byte
	Current  [20]byte
}

func (SaleWalletChanged) EventType() string { return TypeSaleWalletChanged }

func (e SaleWalletChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleWalletChanged,
		Attributes: map[string]string{
			"previous": formatAddress(e.Previous),
			"current":  formatAddress(e.Current),
		},
	}
}

// SaleFinalized captures the one-time finalization record.
type SaleFinalized struct {
	Caller          [20]byte
	Wallet          [20]byte
	TokensSold      *big.Int
	FoundationShare *big.Int
	TotalSupply     *big.Int
	IssuanceRate    *big.Int
	Allocator       [20]byte
	Height          uint64
}

func (SaleFinalized) EventType() string { return TypeSaleFinalized }

func (e SaleFinalized) Event() *types.Event {
	return &types.Event{
		Type: TypeSaleFinalized,
		Attributes: map[string]string{
			"caller":          formatAddress(e.Caller),
			"wallet":          formatAddress(e.Wallet),
			"tokensSold":      formatAmount(e.TokensSold),
			"foundationShare": formatAmount(e.FoundationShare),
			"totalSupply":     formatAmount(e.TotalSupply),
			"issuanceRate":    formatAmount(e.IssuanceRate),
			"allocator":       formatAddress(e.Allocator),
			"height":          formatUint(e.Height),
		},
	}
}

// ContinuousStarted records the opening of the continuous sale.
type ContinuousStarted struct {
	Allocator   [20]byte
	WindowStart uint64
	WindowSize  uint64
	Capacity    *big.Int
	Rate        *big.Int
}

func (ContinuousStarted) EventType() string { return TypeContinuousStarted }

func (e ContinuousStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeContinuousStarted,
		Attributes: map[string]string{
			"allocator":   formatAddress(e.Allocator),
			"windowStart": formatUint(e.WindowStart),
			"windowSize":  formatUint(e.WindowSize),
			"capacity":    formatAmount(e.Capacity),
			"rate":        formatAmount(e.Rate),
		},
	}
}
