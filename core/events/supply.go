package events

import (
	"math/big"
	"strings"

	"tokensale/core/types"
)

const (
	// TypeTokenSupply is emitted whenever a token supply changes.
	TypeTokenSupply = "token.supply"
	// TypeTokenTransfer is emitted for holder-to-holder balance movements.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenPaused is emitted when the ledger pause flag changes.
	TypeTokenPaused = "token.paused"
	// TypeTokenOwnership is emitted when ledger ownership moves.
	TypeTokenOwnership = "token.ownership.transferred"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
)

// TokenSupply captures a supply delta for a fungible token.
type TokenSupply struct {
	Token   string
	Account [20]byte
	Total   *big.Int
	Delta   *big.Int
	Reason  string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the structured supply change event for downstream consumers.
func (e TokenSupply) Event() *types.Event {
	attrs := map[string]string{}
	attrs["token"] = normalizeToken(e.Token)
	attrs["account"] = formatAddress(e.Account)
	attrs["total"] = formatAmount(e.Total)

	if e.Delta != nil {
		attrs["delta"] = e.Delta.String()
	}

	reason := strings.TrimSpace(e.Reason)
	if reason != "" {
		attrs["reason"] = reason
	}

	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}

// TokenTransfer captures a balance movement between holders.
type TokenTransfer struct {
	Token  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransfer,
		Attributes: map[string]string{
			"token":  normalizeToken(e.Token),
			"from":   formatAddress(e.From),
			"to":     formatAddress(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

// TokenPaused captures a change of the ledger pause flag.
type TokenPaused struct {
	Token  string
	Paused bool
	Caller [20]byte
}

func (TokenPaused) EventType() string { return TypeTokenPaused }

func (e TokenPaused) Event() *types.Event {
	paused := "false"
	if e.Paused {
		paused = "true"
	}
	return &types.Event{
		Type: TypeTokenPaused,
		Attributes: map[string]string{
			"token":  normalizeToken(e.Token),
			"paused": paused,
			"caller": formatAddress(e.Caller),
		},
	}
}

// TokenOwnership captures the handoff of ledger administration.
type TokenOwnership struct {
	Token    string
	Previous [20]byte
	Current  [20]byte
}

func (TokenOwnership) EventType() string { return TypeTokenOwnership }

func (e TokenOwnership) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenOwnership,
		Attributes: map[string]string{
			"token":    normalizeToken(e.Token),
			"previous": formatAddress(e.Previous),
			"current":  formatAddress(e.Current),
		},
	}
}

func normalizeToken(token string) string {
	normalized := strings.ToUpper(strings.TrimSpace(token))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}
