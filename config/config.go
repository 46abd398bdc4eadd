package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tokensale/crypto"
	"tokensale/native/sale"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/unicode/norm"
)

type Config struct {
	DataDir           string `toml:"DataDir"`
	OwnerKeystorePath string `toml:"OwnerKeystorePath"`
	// StorageEngine is "leveldb" (default) or "bolt".
	StorageEngine string `toml:"StorageEngine"`
	// JournalPath enables the SQLite event journal when set.
	JournalPath string `toml:"JournalPath,omitempty"`

	Chain     Chain     `toml:"chain"`
	Sale      Sale      `toml:"sale"`
	Token     Token     `toml:"token"`
	RPC       RPC       `toml:"rpc"`
	Finalizer Finalizer `toml:"finalizer"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// (and a fresh owner keystore) when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	// An explicit zero share is honoured; only an omitted key takes the default.
	if !meta.IsDefined("sale", "FoundationShareBps") {
		cfg.Sale.FoundationShareBps = sale.DefaultFoundationShareBps
	}

	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaleParams converts the sale section into engine parameters.
func (c *Config) SaleParams() (sale.Params, error) {
	return c.Sale.Params()
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file. The sale
// wallet defaults to the generated owner.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.OwnerKeystorePath = keystorePath
	cfg.Sale.Wallet = key.PubKey().Address().String()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration for a local sale opening shortly after
// genesis. The wallet is left empty.
func Default() *Config {
	cfg := &Config{
		DataDir: "./sale-data",
		Chain: Chain{
			BlockIntervalSeconds: 5,
		},
		Sale: Sale{
			StartBlock:         100,
			EndBlock:           100 + 30_720,
			StartRate:          "1000",
			EndRate:            "900",
			PreferentialRate:   "1200",
			Cap:                "100000000000000000000000",
			FoundationShareBps: sale.DefaultFoundationShareBps,
			AnnualIssuanceBps:  sale.DefaultAnnualIssuanceBps,
			BucketSeconds:      sale.DefaultBucketSeconds,
			SecondsPerYear:     sale.DefaultSecondsPerYear,
		},
		Token: Token{Symbol: "SALE", Name: "Sale Token", Decimals: 18},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./sale-data"
	}
	if cfg.Chain.BlockIntervalSeconds == 0 {
		cfg.Chain.BlockIntervalSeconds = 5
	}
	if cfg.StorageEngine == "" {
		cfg.StorageEngine = "leveldb"
	}
	if strings.TrimSpace(cfg.Token.Symbol) == "" {
		cfg.Token.Symbol = "SALE"
	}
	cfg.Token.Name = norm.NFKC.String(strings.TrimSpace(cfg.Token.Name))
	if cfg.RPC.Address == "" {
		cfg.RPC.Address = ":8545"
	}
	if cfg.RPC.JWTSecretEnv == "" {
		cfg.RPC.JWTSecretEnv = "SALE_RPC_JWT_SECRET"
	}
	if cfg.RPC.JWTIssuer == "" {
		cfg.RPC.JWTIssuer = "sale-cli"
	}
	if cfg.RPC.RateLimitPerSecond == 0 {
		cfg.RPC.RateLimitPerSecond = 20
	}
	if cfg.RPC.RateLimitBurst == 0 {
		cfg.RPC.RateLimitBurst = 40
	}
	if cfg.RPC.ReadHeaderTimeout == 0 {
		cfg.RPC.ReadHeaderTimeout = 5
	}
	if cfg.RPC.WriteTimeout == 0 {
		cfg.RPC.WriteTimeout = 15
	}
	if cfg.RPC.IdleTimeout == 0 {
		cfg.RPC.IdleTimeout = 60
	}
	if cfg.RPC.MaxRequestBodyBytes == 0 {
		cfg.RPC.MaxRequestBodyBytes = 1 << 20
	}
	if cfg.Finalizer.Schedule == "" {
		cfg.Finalizer.Schedule = "*/30 * * * * *"
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// StoragePath is where the selected engine keeps its data: the directory
// itself for leveldb, a file inside it for bolt.
func (c *Config) StoragePath() string {
	if c.StorageEngine == "bolt" {
		return filepath.Join(c.DataDir, "sale.db")
	}
	return c.DataDir
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
