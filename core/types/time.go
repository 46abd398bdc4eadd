package types

// BlockTime identifies the chain position an operation executes at. Height is
// the discrete unit auction windows and price curves are evaluated against;
// Timestamp (unix seconds) drives issuance buckets.
type BlockTime struct {
	Height    uint64 `json:"height"`
	Timestamp uint64 `json:"timestamp"`
}
