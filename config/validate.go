package config

import (
	"fmt"
	"math/big"
	"strings"

	"tokensale/crypto"
	"tokensale/native/sale"
	"tokensale/services/finalizer"
)

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	params, err := c.Sale.Params()
	if err != nil {
		return err
	}
	if err := params.WithDefaults().Validate(); err != nil {
		return err
	}
	if _, err := c.Sale.WalletAddress(); err != nil {
		return fmt.Errorf("sale: wallet: %w", err)
	}
	if strings.TrimSpace(c.Token.Symbol) == "" {
		return fmt.Errorf("token: symbol must not be empty")
	}
	switch c.StorageEngine {
	case "leveldb", "bolt":
	default:
		return fmt.Errorf("storage: unknown engine %q", c.StorageEngine)
	}
	if c.Chain.BlockIntervalSeconds == 0 {
		return fmt.Errorf("chain: block interval must be positive")
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.Finalizer.Enabled {
		if err := finalizer.ValidateSchedule(c.Finalizer.Schedule); err != nil {
			return fmt.Errorf("finalizer: schedule: %w", err)
		}
	}
	return nil
}

// Params parses the sale section into engine parameters. Defaults are applied
// by the engine.
func (s Sale) Params() (sale.Params, error) {
	params := sale.Params{
		StartBlock:         s.StartBlock,
		EndBlock:           s.EndBlock,
		FoundationShareBps: s.FoundationShareBps,
		AnnualIssuanceBps:  s.AnnualIssuanceBps,
		BucketSeconds:      s.BucketSeconds,
		SecondsPerYear:     s.SecondsPerYear,
		PauseAfterFinalize: s.PauseAfterFinalize,
	}
	var err error
	if params.StartRate, err = parseUintAmount(s.StartRate); err != nil {
		return params, fmt.Errorf("invalid sale.StartRate: %w", err)
	}
	if params.EndRate, err = parseUintAmount(s.EndRate); err != nil {
		return params, fmt.Errorf("invalid sale.EndRate: %w", err)
	}
	if params.PreferentialRate, err = parseUintAmount(s.PreferentialRate); err != nil {
		return params, fmt.Errorf("invalid sale.PreferentialRate: %w", err)
	}
	if params.Cap, err = parseUintAmount(s.Cap); err != nil {
		return params, fmt.Errorf("invalid sale.Cap: %w", err)
	}
	if strings.TrimSpace(s.ContinuousRate) != "" {
		if params.ContinuousRate, err = parseUintAmount(s.ContinuousRate); err != nil {
			return params, fmt.Errorf("invalid sale.ContinuousRate: %w", err)
		}
	}
	return params, nil
}

// WalletAddress parses the configured wallet.
func (s Sale) WalletAddress() ([20]byte, error) {
	return crypto.ParseAddress(s.Wallet)
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative: %q", raw)
	}
	return value, nil
}
