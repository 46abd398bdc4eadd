package journal

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"tokensale/core/events"
	"tokensale/core/types"
)

// ErrTampered is returned by Verify when a stored entry no longer matches its
// digest or does not link to its predecessor.
var ErrTampered = errors.New("journal: entry digest mismatch")

// Entry is one recorded event. Digest chains every entry to the one before
// it, so an edited or deleted row breaks every later digest.
type Entry struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	PrevDigest string    `gorm:"size:64"`
	Digest     string    `gorm:"size:64;uniqueIndex"`
	RecordedAt time.Time `gorm:"index"`
}

// Journal is an events.Emitter that appends every event to a SQLite table.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger

	mu   sync.Mutex
	head [32]byte
	now  func() time.Time
}

// Open opens (or creates) the journal at dsn, a SQLite path or URI.
func Open(dsn string, log *slog.Logger) (*Journal, error) {
	if dsn == "" {
		return nil, errors.New("journal: dsn required")
	}
	if log == nil {
		log = slog.Default()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	j := &Journal{db: db, logger: log.With(slog.String("component", "journal")), now: time.Now}
	var last Entry
	err = db.Order("seq desc").Limit(1).Take(&last).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("journal: load head: %w", err)
	default:
		if j.head, err = decodeDigest(last.Digest); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// Emit records evt. Write failures are logged; they never fail the sale
// operation that produced the event.
func (j *Journal) Emit(evt events.Event) {
	if err := j.Append(events.Render(evt)); err != nil {
		j.logger.Error("journal append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append writes a rendered event and advances the chain head.
func (j *Journal) Append(evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	digest := chain(j.head, evt.Type, attrs)
	entry := Entry{
		Type:       evt.Type,
		Attributes: string(attrs),
		PrevDigest: hex.EncodeToString(j.head[:]),
		Digest:     hex.EncodeToString(digest[:]),
		RecordedAt: j.now().UTC(),
	}
	if err := j.db.Create(&entry).Error; err != nil {
		return err
	}
	j.head = digest
	return nil
}

// Entries returns up to limit entries with Seq > after, oldest first.
func (j *Journal) Entries(after uint64, limit int) ([]Entry, error) {
	var out []Entry
	query := j.db.Where("seq > ?", after).Order("seq asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Event decodes the entry back into its rendered form.
func (e Entry) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if e.Attributes != "" {
		if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("journal: seq %d attributes: %w", e.Seq, err)
		}
	}
	return &types.Event{Type: e.Type, Attributes: attrs}, nil
}

// History returns every recorded event, oldest first. The event at position
// i is the entry with Seq i+1.
func (j *Journal) History() ([]*types.Event, error) {
	var out []*types.Event
	var after uint64
	for {
		batch, err := j.Entries(after, 500)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return out, nil
		}
		for _, entry := range batch {
			evt, err := entry.Event()
			if err != nil {
				return nil, err
			}
			out = append(out, evt)
			after = entry.Seq
		}
	}
}

// Verify walks the whole journal and recomputes the digest chain.
func (j *Journal) Verify() error {
	var prev [32]byte
	var after uint64
	for {
		batch, err := j.Entries(after, 500)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, entry := range batch {
			if entry.PrevDigest != hex.EncodeToString(prev[:]) {
				return fmt.Errorf("%w: seq %d does not link to its predecessor", ErrTampered, entry.Seq)
			}
			digest := chain(prev, entry.Type, []byte(entry.Attributes))
			if entry.Digest != hex.EncodeToString(digest[:]) {
				return fmt.Errorf("%w: seq %d", ErrTampered, entry.Seq)
			}
			prev = digest
			after = entry.Seq
		}
	}
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func chain(prev [32]byte, eventType string, attrs []byte) [32]byte {
	buf := make([]byte, 0, len(prev)+len(eventType)+1+len(attrs))
	buf = append(buf, prev[:]...)
	buf = append(buf, eventType...)
	buf = append(buf, 0)
	buf = append(buf, attrs...)
	return blake3.Sum256(buf)
}

func decodeDigest(raw string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("journal: malformed digest %q", raw)
	}
	copy(out[:], decoded)
	return out, nil
}
