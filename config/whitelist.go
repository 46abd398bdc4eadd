package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"tokensale/crypto"

	"gopkg.in/yaml.v3"
)

// WhitelistEntry is a parsed whitelist seed record. Rate is nil when the
// buyer pays the sale's preferential rate.
type WhitelistEntry struct {
	Address [20]byte
	Rate    *big.Int
}

type whitelistFile struct {
	Entries []struct {
		Address string `yaml:"address"`
		Rate    string `yaml:"rate"`
	} `yaml:"entries"`
}

// LoadWhitelist reads a YAML whitelist seed:
//
//	entries:
//	  - address: sale1...
//	    rate: "1500"
func LoadWhitelist(path string) ([]WhitelistEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file whitelistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode whitelist %s: %w", path, err)
	}
	seen := make(map[[20]byte]struct{}, len(file.Entries))
	entries := make([]WhitelistEntry, 0, len(file.Entries))
	for i, raw := range file.Entries {
		addr, err := crypto.ParseAddress(raw.Address)
		if err != nil {
			return nil, fmt.Errorf("whitelist entry %d: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("whitelist entry %d: duplicate address %s", i, raw.Address)
		}
		seen[addr] = struct{}{}
		entry := WhitelistEntry{Address: addr}
		if strings.TrimSpace(raw.Rate) != "" {
			rate, err := parseUintAmount(raw.Rate)
			if err != nil {
				return nil, fmt.Errorf("whitelist entry %d: %w", i, err)
			}
			if rate.Sign() == 0 {
				return nil, fmt.Errorf("whitelist entry %d: rate must be positive", i)
			}
			entry.Rate = rate
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
