package config

// Sale captures the auction parameters. Amounts are base-10 integer strings so
// values wider than 64 bits survive the TOML round trip.
type Sale struct {
	StartBlock         uint64 `toml:"StartBlock"`
	EndBlock           uint64 `toml:"EndBlock"`
	StartRate          string `toml:"StartRate"`
	EndRate            string `toml:"EndRate"`
	PreferentialRate   string `toml:"PreferentialRate"`
	Cap                string `toml:"Cap"`
	ContinuousRate     string `toml:"ContinuousRate,omitempty"`
	FoundationShareBps uint64 `toml:"FoundationShareBps"`
	AnnualIssuanceBps  uint64 `toml:"AnnualIssuanceBps"`
	BucketSeconds      uint64 `toml:"BucketSeconds"`
	SecondsPerYear     uint64 `toml:"SecondsPerYear"`
	PauseAfterFinalize bool   `toml:"PauseAfterFinalize"`
	// Wallet receives contributions and the foundation share.
	Wallet string `toml:"Wallet"`
	// WhitelistFile optionally seeds the whitelist from YAML at startup.
	WhitelistFile string `toml:"WhitelistFile,omitempty"`
}

// Token describes the ledger registered on first start.
type Token struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// Chain maps wall-clock time onto block heights.
type Chain struct {
	GenesisTime          int64  `toml:"GenesisTime"`
	BlockIntervalSeconds uint64 `toml:"BlockIntervalSeconds"`
}

// RPC controls the JSON-RPC listener.
type RPC struct {
	Address             string  `toml:"Address"`
	JWTSecretEnv        string  `toml:"JWTSecretEnv"`
	JWTIssuer           string  `toml:"JWTIssuer"`
	RateLimitPerSecond  float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst      int     `toml:"RateLimitBurst"`
	ReadHeaderTimeout   int     `toml:"ReadHeaderTimeout"`
	WriteTimeout        int     `toml:"WriteTimeout"`
	IdleTimeout         int     `toml:"IdleTimeout"`
	MaxRequestBodyBytes int64   `toml:"MaxRequestBodyBytes"`
}

// Finalizer schedules the automatic finalization job.
type Finalizer struct {
	Enabled bool `toml:"Enabled"`
	// Schedule is a six-field cron expression (seconds first).
	Schedule string `toml:"Schedule"`
}

// Telemetry configures logging and OTLP export.
type Telemetry struct {
	Environment  string `toml:"Environment"`
	LogFile      string `toml:"LogFile,omitempty"`
	OTLPEndpoint string `toml:"OTLPEndpoint,omitempty"`
	OTLPHeaders  string `toml:"OTLPHeaders,omitempty"`
	Insecure     bool   `toml:"Insecure"`
	Traces       bool   `toml:"Traces"`
	Metrics      bool   `toml:"Metrics"`
}
