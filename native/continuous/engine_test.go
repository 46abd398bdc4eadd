package continuous

import (
	"errors"
	"math/big"
	"testing"

	"tokensale/core/events"
	"tokensale/core/types"
	"tokensale/native/common"
	"tokensale/native/token"
	"tokensale/storage"
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

var (
	allocatorAddr = [20]byte{0xc0}
	controller    = [20]byte{0xc1}
	wallet        = [20]byte{0xc2}
	buyer         = [20]byte{0x01}
	stranger      = [20]byte{0x02}
)

const bucketSeconds = 43_200

func newTestEngine(t *testing.T, rate, capacity int64) (*Engine, *token.Ledger, *captureEmitter) {
	t.Helper()
	ledger, err := token.Open(storage.NewMemDB(), token.Metadata{Symbol: "SALE", Owner: allocatorAddr})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	engine, err := NewEngine(Config{
		Self:          allocatorAddr,
		Owner:         controller,
		Wallet:        wallet,
		Rate:          big.NewInt(rate),
		Capacity:      big.NewInt(capacity),
		WindowSeconds: bucketSeconds,
	}, ledger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	return engine, ledger, emitter
}

func at(ts uint64) types.BlockTime { return types.BlockTime{Height: 1, Timestamp: ts} }

func TestBuyBeforeStartFails(t *testing.T) {
	engine, _, _ := newTestEngine(t, 1, 109)
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(1), at(10)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if _, err := engine.Contribute(buyer, big.NewInt(1), at(10)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted on contribute, got %v", err)
	}
}

func TestStartIsOwnerOnlyAndOnce(t *testing.T) {
	engine, _, emitter := newTestEngine(t, 1, 109)
	if err := engine.Start(stranger, at(5)); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.Start(controller, at(5)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.Start(controller, at(6)); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if engine.Bucket().WindowStart != 5 || engine.Status() != StatusStarted {
		t.Fatalf("unexpected state after start: %+v %s", engine.Bucket(), engine.Status())
	}
	started, ok := emitter.events[0].(events.ContinuousStarted)
	if !ok || started.Capacity.Cmp(big.NewInt(109)) != 0 {
		t.Fatalf("unexpected start event %#v", emitter.events[0])
	}
}

func TestBucketExhaustsThenRefills(t *testing.T) {
	engine, ledger, _ := newTestEngine(t, 1, 109)
	start := uint64(1_000)
	if err := engine.Start(controller, at(start)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(100), at(start+1)); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(9), at(start+2)); err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(1), at(start+3)); !errors.Is(err, ErrBucketExceeded) {
		t.Fatalf("expected ErrBucketExceeded, got %v", err)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(1), at(start+bucketSeconds)); err != nil {
		t.Fatalf("purchase after refill: %v", err)
	}
	balance, err := ledger.BalanceOf(buyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("unexpected balance %s", balance)
	}
}

func TestOversizedPurchaseRejectedWithoutMint(t *testing.T) {
	engine, ledger, emitter := newTestEngine(t, 1, 109)
	if err := engine.Start(controller, at(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	emitter.events = nil
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(1000), at(1)); !errors.Is(err, ErrBucketExceeded) {
		t.Fatalf("expected ErrBucketExceeded, got %v", err)
	}
	balance, _ := ledger.BalanceOf(buyer)
	if balance.Sign() != 0 {
		t.Fatalf("rejected purchase minted %s", balance)
	}
	if engine.Bucket().Consumed.Sign() != 0 {
		t.Fatalf("rejected purchase consumed bucket")
	}
	if len(emitter.events) != 0 {
		t.Fatalf("rejected purchase emitted events")
	}
}

func TestIdleWindowsCollapseIntoOne(t *testing.T) {
	engine, _, _ := newTestEngine(t, 1, 109)
	if err := engine.Start(controller, at(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(109), at(10)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	late := uint64(bucketSeconds*5 + 777)
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(109), at(late)); err != nil {
		t.Fatalf("purchase after idle: %v", err)
	}
	if got := engine.Bucket().WindowStart; got != late {
		t.Fatalf("window should restart at %d, got %d", late, got)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(1), at(late+1)); !errors.Is(err, ErrBucketExceeded) {
		t.Fatalf("only one window of capacity must be available, got %v", err)
	}
}

func TestSetRateEmitsAndKeepsCapacity(t *testing.T) {
	engine, _, emitter := newTestEngine(t, 1000, 109)
	if err := engine.SetRate(stranger, big.NewInt(5)); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.SetRate(controller, big.NewInt(5)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	changed, ok := emitter.events[len(emitter.events)-1].(events.SaleRateChanged)
	if !ok || changed.Previous.Cmp(big.NewInt(1000)) != 0 || changed.Current.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected rate event %#v", emitter.events[len(emitter.events)-1])
	}
	if engine.Issuance().Cmp(big.NewInt(109)) != 0 {
		t.Fatalf("rate change must not alter capacity")
	}
	if err := engine.Start(controller, at(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	purchase, err := engine.BuyTokens(buyer, stranger, big.NewInt(20), at(1))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if purchase.Tokens.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 tokens at rate 5, got %s", purchase.Tokens)
	}
}

func TestPauseTokenBlocksPurchases(t *testing.T) {
	engine, _, _ := newTestEngine(t, 1, 109)
	if err := engine.Start(controller, at(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.PauseToken(stranger); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.PauseToken(controller); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(1), at(1)); !errors.Is(err, token.ErrPaused) {
		t.Fatalf("expected token.ErrPaused, got %v", err)
	}
	if engine.Bucket().Consumed.Sign() != 0 {
		t.Fatalf("failed mint must not consume the bucket")
	}
	if err := engine.UnpauseToken(controller); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(1), at(2)); err != nil {
		t.Fatalf("purchase after unpause: %v", err)
	}
}

func TestZeroRateHaltsPurchases(t *testing.T) {
	engine, ledger, _ := newTestEngine(t, 10, 109)
	if err := engine.Start(controller, at(0)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.SetRate(controller, big.NewInt(0)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(3), at(5)); !errors.Is(err, token.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	balance, err := ledger.BalanceOf(buyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected no tokens minted, got %s", balance)
	}
	if err := engine.SetRate(controller, big.NewInt(-1)); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
}

func TestLoadRestoresPersistedAllocator(t *testing.T) {
	engine, ledger, _ := newTestEngine(t, 10, 109)
	cfg := Config{Self: allocatorAddr, Owner: controller, Wallet: wallet}
	if _, err := Load(cfg, ledger); !errors.Is(err, ErrStateMissing) {
		t.Fatalf("expected ErrStateMissing before any write, got %v", err)
	}
	if err := engine.Start(controller, at(100)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := engine.BuyTokens(buyer, buyer, big.NewInt(4), at(150)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := engine.SetRate(controller, big.NewInt(7)); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	loaded, err := Load(cfg, ledger)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Started() || loaded.Rate().Cmp(big.NewInt(7)) != 0 || loaded.Issuance().Cmp(big.NewInt(109)) != 0 {
		t.Fatalf("unexpected restored allocator: started=%v rate=%s issuance=%s", loaded.Started(), loaded.Rate(), loaded.Issuance())
	}
	bucket := loaded.Bucket()
	if bucket.WindowStart != 100 || bucket.Consumed.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected restored bucket %+v", bucket)
	}
}
