package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"tokensale/core/events"
	"tokensale/native/common"
	"tokensale/storage"
)

// Metadata is the persisted administrative record of the token.
type Metadata struct {
	Symbol   string
	Name     string
	Decimals uint8
	Owner    [20]byte
	Paused   bool
}

// Reader exposes the read-only view of the ledger.
type Reader interface {
	Symbol() string
	BalanceOf(addr [20]byte) (*big.Int, error)
	TotalSupply() (*big.Int, error)
	Owner() ([20]byte, error)
	Paused() (bool, error)
	// Record decodes the rlp record stored under key into out and reports
	// whether one was found.
	Record(key []byte, out interface{}) (bool, error)
}

// Writer is the mutating view handed to Update callbacks. The owner of the
// ledger is the only account allowed to mint.
type Writer interface {
	Reader
	Mint(caller, to [20]byte, amount *big.Int) error
	Burn(holder [20]byte, amount *big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
	Pause(caller [20]byte) error
	Unpause(caller [20]byte) error
	TransferOwnership(caller, next [20]byte) error
	// PutRecord stages an rlp-encoded engine record in the same batch as the
	// ledger writes.
	PutRecord(key []byte, value interface{}) error
}

// Ledger is a single fungible token persisted in a storage.Database.
type Ledger struct {
	db      storage.Database
	symbol  string
	emitter events.Emitter
}

// Open loads the token identified by meta.Symbol, registering it with the
// supplied metadata when the database holds no record yet.
func Open(db storage.Database, meta Metadata) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("token: database required")
	}
	symbol := normalizeSymbol(meta.Symbol)
	if symbol == "" {
		return nil, ErrSymbolRequired
	}
	l := &Ledger{db: db, symbol: symbol, emitter: events.NoopEmitter{}}
	existing, err := l.loadMetadata()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Symbol != symbol {
			return nil, ErrSymbolMismatch
		}
		return l, nil
	}
	if meta.Owner == ([20]byte{}) {
		return nil, ErrZeroOwner
	}
	meta.Symbol = symbol
	meta.Name = strings.TrimSpace(meta.Name)
	encoded, err := rlp.EncodeToBytes(&meta)
	if err != nil {
		return nil, err
	}
	supply, err := rlp.EncodeToBytes(big.NewInt(0))
	if err != nil {
		return nil, err
	}
	batch := storage.NewBatch()
	batch.Put(metadataKey(symbol), encoded)
	batch.Put(supplyKey(symbol), supply)
	if err := db.Write(batch); err != nil {
		return nil, err
	}
	return l, nil
}

// SetEmitter configures the event emitter used for ledger events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) Symbol() string { return l.symbol }

// Metadata returns the persisted token record.
func (l *Ledger) Metadata() (Metadata, error) {
	meta, err := l.loadMetadata()
	if err != nil {
		return Metadata{}, err
	}
	if meta == nil {
		return Metadata{}, fmt.Errorf("token: %s not registered", l.symbol)
	}
	return *meta, nil
}

func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	return readAmount(l.db.Get, balanceKey(addr, l.symbol))
}

func (l *Ledger) TotalSupply() (*big.Int, error) {
	return readAmount(l.db.Get, supplyKey(l.symbol))
}

func (l *Ledger) Owner() ([20]byte, error) {
	meta, err := l.Metadata()
	if err != nil {
		return [20]byte{}, err
	}
	return meta.Owner, nil
}

func (l *Ledger) Paused() (bool, error) {
	meta, err := l.Metadata()
	if err != nil {
		return false, err
	}
	return meta.Paused, nil
}

// Update runs fn against a staged view of the ledger. Every write performed by
// fn lands in a single database batch when fn returns nil; any error discards
// all of them. Events are emitted only after the batch is committed.
func (l *Ledger) Update(fn func(Writer) error) error {
	tx := &txn{ledger: l, staged: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.order) > 0 {
		batch := storage.NewBatch()
		for _, key := range tx.order {
			batch.Put([]byte(key), tx.staged[key])
		}
		if err := l.db.Write(batch); err != nil {
			return err
		}
	}
	for _, evt := range tx.events {
		l.emitter.Emit(evt)
	}
	return nil
}

// Mint is a single-operation Update.
func (l *Ledger) Mint(caller, to [20]byte, amount *big.Int) error {
	return l.Update(func(w Writer) error { return w.Mint(caller, to, amount) })
}

// Burn is a single-operation Update.
func (l *Ledger) Burn(holder [20]byte, amount *big.Int) error {
	return l.Update(func(w Writer) error { return w.Burn(holder, amount) })
}

// Transfer is a single-operation Update.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	return l.Update(func(w Writer) error { return w.Transfer(from, to, amount) })
}

// Pause is a single-operation Update.
func (l *Ledger) Pause(caller [20]byte) error {
	return l.Update(func(w Writer) error { return w.Pause(caller) })
}

// Unpause is a single-operation Update.
func (l *Ledger) Unpause(caller [20]byte) error {
	return l.Update(func(w Writer) error { return w.Unpause(caller) })
}

// TransferOwnership is a single-operation Update.
func (l *Ledger) TransferOwnership(caller, next [20]byte) error {
	return l.Update(func(w Writer) error { return w.TransferOwnership(caller, next) })
}

func (l *Ledger) Record(key []byte, out interface{}) (bool, error) {
	return readRecord(l.db.Get, key, out)
}

func (l *Ledger) loadMetadata() (*Metadata, error) {
	return decodeMetadata(l.db.Get, l.symbol)
}

type getter func(key []byte) ([]byte, error)

func decodeMetadata(get getter, symbol string) (*Metadata, error) {
	data, err := get(metadataKey(symbol))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	meta := new(Metadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func readRecord(get getter, key []byte, out interface{}) (bool, error) {
	data, err := get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("token: decode record: %w", err)
	}
	return true, nil
}

func readAmount(get getter, key []byte) (*big.Int, error) {
	data, err := get(key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && len(data) == 0) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// txn stages writes in memory until Update commits them.
type txn struct {
	ledger *Ledger
	staged map[string][]byte
	order  []string
	events []events.Event
}

func (t *txn) get(key []byte) ([]byte, error) {
	if value, ok := t.staged[string(key)]; ok {
		return value, nil
	}
	return t.ledger.db.Get(key)
}

func (t *txn) put(key []byte, value []byte) {
	k := string(key)
	if _, ok := t.staged[k]; !ok {
		t.order = append(t.order, k)
	}
	t.staged[k] = value
}

func (t *txn) putAmount(key []byte, amount *big.Int) error {
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrBalanceOverflow
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	t.put(key, encoded)
	return nil
}

func (t *txn) metadata() (*Metadata, error) {
	meta, err := decodeMetadata(t.get, t.ledger.symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("token: %s not registered", t.ledger.symbol)
	}
	return meta, nil
}

func (t *txn) writeMetadata(meta *Metadata) error {
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	t.put(metadataKey(t.ledger.symbol), encoded)
	return nil
}

func (t *txn) Symbol() string { return t.ledger.symbol }

func (t *txn) Record(key []byte, out interface{}) (bool, error) {
	return readRecord(t.get, key, out)
}

func (t *txn) PutRecord(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("token: empty record key")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	t.put(key, encoded)
	return nil
}

func (t *txn) BalanceOf(addr [20]byte) (*big.Int, error) {
	return readAmount(t.get, balanceKey(addr, t.ledger.symbol))
}

func (t *txn) TotalSupply() (*big.Int, error) {
	return readAmount(t.get, supplyKey(t.ledger.symbol))
}

func (t *txn) Owner() ([20]byte, error) {
	meta, err := t.metadata()
	if err != nil {
		return [20]byte{}, err
	}
	return meta.Owner, nil
}

func (t *txn) Paused() (bool, error) {
	meta, err := t.metadata()
	if err != nil {
		return false, err
	}
	return meta.Paused, nil
}

func (t *txn) Mint(caller, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	meta, err := t.metadata()
	if err != nil {
		return err
	}
	if err := common.RequireOwner(meta.Owner, caller); err != nil {
		return err
	}
	if meta.Paused {
		return ErrPaused
	}
	balance, err := t.BalanceOf(to)
	if err != nil {
		return err
	}
	supply, err := t.TotalSupply()
	if err != nil {
		return err
	}
	if err := t.putAmount(balanceKey(to, t.ledger.symbol), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	total := new(big.Int).Add(supply, amount)
	if err := t.putAmount(supplyKey(t.ledger.symbol), total); err != nil {
		return err
	}
	t.events = append(t.events, events.TokenSupply{
		Token:   t.ledger.symbol,
		Account: to,
		Total:   total,
		Delta:   new(big.Int).Set(amount),
		Reason:  events.SupplyReasonMint,
	})
	return nil
}

func (t *txn) Burn(holder [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	meta, err := t.metadata()
	if err != nil {
		return err
	}
	if meta.Paused {
		return ErrPaused
	}
	balance, err := t.BalanceOf(holder)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := t.TotalSupply()
	if err != nil {
		return err
	}
	if err := t.putAmount(balanceKey(holder, t.ledger.symbol), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	total := new(big.Int).Sub(supply, amount)
	if total.Sign() < 0 {
		return fmt.Errorf("token: %s supply underflow", t.ledger.symbol)
	}
	if err := t.putAmount(supplyKey(t.ledger.symbol), total); err != nil {
		return err
	}
	t.events = append(t.events, events.TokenSupply{
		Token:   t.ledger.symbol,
		Account: holder,
		Total:   total,
		Delta:   new(big.Int).Neg(amount),
		Reason:  events.SupplyReasonBurn,
	})
	return nil
}

func (t *txn) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	meta, err := t.metadata()
	if err != nil {
		return err
	}
	if meta.Paused {
		return ErrPaused
	}
	fromBalance, err := t.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from != to {
		if err := t.putAmount(balanceKey(from, t.ledger.symbol), new(big.Int).Sub(fromBalance, amount)); err != nil {
			return err
		}
		toBalance, err := t.BalanceOf(to)
		if err != nil {
			return err
		}
		if err := t.putAmount(balanceKey(to, t.ledger.symbol), new(big.Int).Add(toBalance, amount)); err != nil {
			return err
		}
	}
	t.events = append(t.events, events.TokenTransfer{
		Token:  t.ledger.symbol,
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

func (t *txn) Pause(caller [20]byte) error {
	return t.setPaused(caller, true)
}

func (t *txn) Unpause(caller [20]byte) error {
	return t.setPaused(caller, false)
}

func (t *txn) setPaused(caller [20]byte, paused bool) error {
	meta, err := t.metadata()
	if err != nil {
		return err
	}
	if err := common.RequireOwner(meta.Owner, caller); err != nil {
		return err
	}
	if meta.Paused == paused {
		return nil
	}
	meta.Paused = paused
	if err := t.writeMetadata(meta); err != nil {
		return err
	}
	t.events = append(t.events, events.TokenPaused{Token: t.ledger.symbol, Paused: paused, Caller: caller})
	return nil
}

func (t *txn) TransferOwnership(caller, next [20]byte) error {
	if next == ([20]byte{}) {
		return ErrZeroOwner
	}
	meta, err := t.metadata()
	if err != nil {
		return err
	}
	if err := common.RequireOwner(meta.Owner, caller); err != nil {
		return err
	}
	previous := meta.Owner
	meta.Owner = next
	if err := t.writeMetadata(meta); err != nil {
		return err
	}
	t.events = append(t.events, events.TokenOwnership{Token: t.ledger.symbol, Previous: previous, Current: next})
	return nil
}
