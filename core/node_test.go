package core

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"tokensale/core/clock"
	"tokensale/core/events"
	"tokensale/core/types"
	"tokensale/native/continuous"
	"tokensale/native/sale"
	"tokensale/native/token"
	"tokensale/storage"
)

var (
	controller = [20]byte{0x5a}
	owner      = [20]byte{0x0a}
	wallet     = [20]byte{0x0b}
	buyer      = [20]byte{0x01}
)

func newTestNode(t *testing.T, db storage.Database, clk clock.Clock) *Node {
	t.Helper()
	node, err := NewNode(Options{
		DB:    db,
		Token: token.Metadata{Symbol: "SALE", Name: "Sale", Decimals: 18},
		Sale: sale.Config{
			Self:   controller,
			Owner:  owner,
			Wallet: wallet,
			Params: sale.Params{
				StartBlock:       10,
				EndBlock:         20,
				StartRate:        big.NewInt(100),
				EndRate:          big.NewInt(50),
				PreferentialRate: big.NewInt(200),
				Cap:              big.NewInt(10_000),

				FoundationShareBps: sale.DefaultFoundationShareBps,
			},
		},
		Clock: clk,
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func TestNodeLifecycle(t *testing.T) {
	clk := clock.NewManual(types.BlockTime{Height: 10, Timestamp: 1_000})
	node := newTestNode(t, storage.NewMemDB(), clk)

	if _, err := node.Contribute(buyer, big.NewInt(10)); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	clk.Set(types.BlockTime{Height: 20, Timestamp: 2_000})
	record, err := node.Finalize(buyer)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if record.FoundationShare.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("unexpected foundation share %s", record.FoundationShare)
	}
	if err := node.BeginContinuousSale(owner); err != nil {
		t.Fatalf("begin: %v", err)
	}
	status, err := node.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Phase != sale.PhaseContinuousActive || !status.Started {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.TotalSupply.Cmp(big.NewInt(2_500)) != 0 || status.Finalization == nil {
		t.Fatalf("unexpected supply or record %+v", status)
	}

	var trail []string
	for _, evt := range node.Events(0) {
		trail = append(trail, evt.Type)
	}
	want := []string{
		events.TypeTokenSupply,
		events.TypeSalePurchase,
		events.TypeTokenSupply,
		events.TypeTokenOwnership,
		events.TypeSaleFinalized,
		events.TypeContinuousStarted,
	}
	if len(trail) != len(want) {
		t.Fatalf("unexpected event trail %v", trail)
	}
	for i := range want {
		if trail[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (%v)", i, want[i], trail[i], trail)
		}
	}
}

func TestNodeSerialisesPurchases(t *testing.T) {
	clk := clock.NewManual(types.BlockTime{Height: 12, Timestamp: 1_000})
	node := newTestNode(t, storage.NewMemDB(), clk)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := node.BuyTokens(buyer, buyer, big.NewInt(300)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, sale.ErrCapExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if accepted != 33 {
		t.Fatalf("expected 33 accepted purchases under a 10000 cap, got %d", accepted)
	}
	status, err := node.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.WeiRaised.Cmp(big.NewInt(9_900)) != 0 {
		t.Fatalf("unexpected raised %s", status.WeiRaised)
	}
}

func TestNodeRejectsForeignLedgerOwner(t *testing.T) {
	db := storage.NewMemDB()
	if _, err := token.Open(db, token.Metadata{Symbol: "SALE", Owner: [20]byte{0xff}}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	_, err := NewNode(Options{
		DB:    db,
		Token: token.Metadata{Symbol: "SALE"},
		Sale: sale.Config{Self: controller, Owner: owner, Wallet: wallet, Params: sale.Params{
			StartBlock: 1, EndBlock: 2, StartRate: big.NewInt(1), EndRate: big.NewInt(1),
			PreferentialRate: big.NewInt(1), Cap: big.NewInt(1),
		}},
		Clock: clock.NewManual(types.BlockTime{}),
	})
	if !errors.Is(err, ErrLedgerOwnerMismatch) {
		t.Fatalf("expected ErrLedgerOwnerMismatch, got %v", err)
	}
}

func TestNodeRestartKeepsAuctionState(t *testing.T) {
	db := storage.NewMemDB()
	clk := clock.NewManual(types.BlockTime{Height: 5, Timestamp: 500})
	node := newTestNode(t, db, clk)

	vip := [20]byte{0x0c}
	if err := node.AddToWhitelist(owner, vip); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if err := node.SetBuyerRate(owner, vip, big.NewInt(300)); err != nil {
		t.Fatalf("buyer rate: %v", err)
	}
	clk.Set(types.BlockTime{Height: 10, Timestamp: 1_000})
	if _, err := node.Contribute(buyer, big.NewInt(10_000)); err != nil {
		t.Fatalf("fill cap: %v", err)
	}

	restarted := newTestNode(t, db, clk)
	status, err := restarted.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.WeiRaised.Cmp(big.NewInt(10_000)) != 0 || status.TokensSold.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("raise not restored: raised=%s sold=%s", status.WeiRaised, status.TokensSold)
	}
	if _, err := restarted.Contribute(buyer, big.NewInt(1)); !errors.Is(err, sale.ErrCapExceeded) {
		t.Fatalf("expected ErrCapExceeded after restart, got %v", err)
	}
	if !restarted.IsWhitelisted(vip) {
		t.Fatalf("whitelist not restored")
	}
	rate, err := restarted.RateFor(vip)
	if err != nil || rate.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("override rate not restored: %v %v", rate, err)
	}
	if err := restarted.AddToWhitelist(owner, vip); err != nil {
		t.Fatalf("re-adding a restored member: %v", err)
	}
	if got := restarted.EventCount(); got != 0 {
		t.Fatalf("re-adding a restored member must not emit, got %d events", got)
	}

	clk.Set(types.BlockTime{Height: 20, Timestamp: 2_000})
	record, err := restarted.Finalize(owner)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if record.FoundationShare.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Fatalf("foundation share must cover pre-restart sales, got %s", record.FoundationShare)
	}
}

func TestNodeRestartAfterFinalize(t *testing.T) {
	db := storage.NewMemDB()
	clk := clock.NewManual(types.BlockTime{Height: 10, Timestamp: 1_000})
	node := newTestNode(t, db, clk)
	if _, err := node.Contribute(buyer, big.NewInt(10_000)); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	clk.Set(types.BlockTime{Height: 20, Timestamp: 2_000})
	if _, err := node.Finalize(owner); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	finalized := newTestNode(t, db, clk)
	status, err := finalized.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	// supply 2_500_000 at 8% a year over 12h buckets
	if status.Phase != sale.PhaseFinalized || status.Finalization == nil || status.Issuance.Cmp(big.NewInt(273)) != 0 {
		t.Fatalf("finalization not restored: %+v", status)
	}
	if _, err := finalized.Finalize(owner); !errors.Is(err, sale.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if err := finalized.BeginContinuousSale(owner); err != nil {
		t.Fatalf("begin: %v", err)
	}
	clk.Set(types.BlockTime{Height: 21, Timestamp: 2_100})
	if _, err := finalized.Contribute(buyer, big.NewInt(2)); err != nil {
		t.Fatalf("continuous purchase: %v", err)
	}

	continuing := newTestNode(t, db, clk)
	status, err = continuing.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Phase != sale.PhaseContinuousActive || !status.Started {
		t.Fatalf("continuous sale not restored: %+v", status)
	}
	if status.Remaining.Cmp(big.NewInt(73)) != 0 {
		t.Fatalf("bucket consumption not restored, remaining %s", status.Remaining)
	}
	if _, err := continuing.Contribute(buyer, big.NewInt(1)); !errors.Is(err, continuous.ErrBucketExceeded) {
		t.Fatalf("expected ErrBucketExceeded, got %v", err)
	}
}

func TestNodeSeedsEventLogFromHistory(t *testing.T) {
	clk := clock.NewManual(types.BlockTime{Height: 10, Timestamp: 1_000})
	node, err := NewNode(Options{
		DB:    storage.NewMemDB(),
		Token: token.Metadata{Symbol: "SALE"},
		Sale: sale.Config{Self: controller, Owner: owner, Wallet: wallet, Params: sale.Params{
			StartBlock: 10, EndBlock: 20, StartRate: big.NewInt(100), EndRate: big.NewInt(50),
			PreferentialRate: big.NewInt(200), Cap: big.NewInt(10_000),
		}},
		Clock:   clk,
		History: []*types.Event{{Type: events.TypeSaleWhitelisted, Attributes: map[string]string{}}},
	})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if _, err := node.Contribute(buyer, big.NewInt(1)); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	recorded := node.Events(0)
	if len(recorded) != 3 || recorded[0].Type != events.TypeSaleWhitelisted || recorded[2].Type != events.TypeSalePurchase {
		t.Fatalf("unexpected log %v", recorded)
	}
}
