package token

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"tokensale/core/events"
	"tokensale/native/common"
	"tokensale/storage"
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

var (
	owner  = [20]byte{0xaa}
	holder = [20]byte{0x01}
	other  = [20]byte{0x02}
)

func newTestLedger(t *testing.T) (*Ledger, *captureEmitter) {
	t.Helper()
	ledger, err := Open(storage.NewMemDB(), Metadata{Symbol: "sale", Name: "Sale Token", Decimals: 18, Owner: owner})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	emitter := &captureEmitter{}
	ledger.SetEmitter(emitter)
	return ledger, emitter
}

func mustBalance(t *testing.T, r Reader, addr [20]byte) *big.Int {
	t.Helper()
	balance, err := r.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func TestMintRequiresOwner(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.Mint(holder, holder, big.NewInt(10)); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := ledger.Mint(owner, holder, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected supply %s", supply)
	}
}

func TestBurnReducesSupplyAndBalance(t *testing.T) {
	ledger, emitter := newTestLedger(t)
	if err := ledger.Mint(owner, holder, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(holder, big.NewInt(200)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := mustBalance(t, ledger, holder); got.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("unexpected balance %s", got)
	}
	supply, _ := ledger.TotalSupply()
	if supply.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("unexpected supply %s", supply)
	}
	last, ok := emitter.events[len(emitter.events)-1].(events.TokenSupply)
	if !ok || last.Reason != events.SupplyReasonBurn || last.Delta.Cmp(big.NewInt(-200)) != 0 {
		t.Fatalf("unexpected burn event %#v", emitter.events[len(emitter.events)-1])
	}
}

func TestBurnMoreThanBalanceFails(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.Mint(owner, holder, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(holder, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := mustBalance(t, ledger, holder); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance changed on failed burn: %s", got)
	}
}

func TestPausedLedgerRejectsMovements(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.Mint(owner, holder, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Pause(holder); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := ledger.Pause(owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := ledger.Transfer(holder, other, big.NewInt(1)); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on transfer, got %v", err)
	}
	if err := ledger.Burn(holder, big.NewInt(1)); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on burn, got %v", err)
	}
	if err := ledger.Mint(owner, holder, big.NewInt(1)); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused on mint, got %v", err)
	}
	if err := ledger.Unpause(owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := ledger.Transfer(holder, other, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := mustBalance(t, ledger, other); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected recipient balance %s", got)
	}
}

func TestTransferOwnershipMovesMintAuthority(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.TransferOwnership(holder, other); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := ledger.TransferOwnership(owner, other); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if err := ledger.Mint(owner, holder, big.NewInt(1)); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("previous owner must lose mint authority, got %v", err)
	}
	if err := ledger.Mint(other, holder, big.NewInt(1)); err != nil {
		t.Fatalf("new owner mint: %v", err)
	}
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	ledger, emitter := newTestLedger(t)
	failure := errors.New("boom")
	err := ledger.Update(func(w Writer) error {
		if err := w.Mint(owner, holder, big.NewInt(50)); err != nil {
			return err
		}
		staged, err := w.BalanceOf(holder)
		if err != nil {
			return err
		}
		if staged.Cmp(big.NewInt(50)) != 0 {
			t.Fatalf("staged balance not visible inside update: %s", staged)
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if got := mustBalance(t, ledger, holder); got.Sign() != 0 {
		t.Fatalf("rolled back mint leaked balance %s", got)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("rolled back update emitted %d events", len(emitter.events))
	}
}

func TestMintRejectsBalanceOverflow(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ceiling := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := ledger.Mint(owner, holder, ceiling); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := ledger.Mint(owner, holder, big.NewInt(1)); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
}

func TestLedgerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	db, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	ledger, err := Open(db, Metadata{Symbol: "SALE", Owner: owner})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if err := ledger.Update(func(w Writer) error {
		if err := w.Mint(owner, holder, big.NewInt(77)); err != nil {
			return err
		}
		return w.Pause(owner)
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	db.Close()

	reopened, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen leveldb: %v", err)
	}
	defer reopened.Close()
	restored, err := Open(reopened, Metadata{Symbol: "sale", Owner: other})
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	if got := mustBalance(t, restored, holder); got.Cmp(big.NewInt(77)) != 0 {
		t.Fatalf("unexpected restored balance %s", got)
	}
	if o, _ := restored.Owner(); o != owner {
		t.Fatalf("stored owner must win over supplied metadata")
	}
	if paused, _ := restored.Paused(); !paused {
		t.Fatalf("expected pause flag to persist")
	}
}

type testRecord struct {
	Label  string
	Amount *big.Int
}

func TestRecordsCommitWithLedgerWrites(t *testing.T) {
	ledger, _ := newTestLedger(t)
	key := []byte("engine/state")

	var got testRecord
	found, err := ledger.Record(key, &got)
	if err != nil || found {
		t.Fatalf("expected no record, found=%v err=%v", found, err)
	}

	errAbort := errors.New("abort")
	err = ledger.Update(func(w Writer) error {
		if err := w.PutRecord(key, &testRecord{Label: "dropped", Amount: big.NewInt(1)}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected abort, got %v", err)
	}
	if found, _ := ledger.Record(key, &got); found {
		t.Fatalf("aborted update must not persist the record")
	}

	err = ledger.Update(func(w Writer) error {
		if err := w.Mint(owner, holder, big.NewInt(5)); err != nil {
			return err
		}
		if err := w.PutRecord(key, &testRecord{Label: "kept", Amount: big.NewInt(5)}); err != nil {
			return err
		}
		var staged testRecord
		if found, err := w.Record(key, &staged); err != nil || !found || staged.Label != "kept" {
			t.Fatalf("staged record not visible inside the update: %+v %v", staged, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	found, err = ledger.Record(key, &got)
	if err != nil || !found {
		t.Fatalf("expected record, found=%v err=%v", found, err)
	}
	if got.Label != "kept" || got.Amount.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected record %+v", got)
	}
	if mustBalance(t, ledger, holder).Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("mint missing")
	}
}
