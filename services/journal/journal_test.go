package journal

import (
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tokensale/core/events"
	"tokensale/core/types"
)

func openMemory(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	j, err := Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func supply(total int64) events.TokenSupply {
	return events.TokenSupply{
		Token:   "SALE",
		Account: [20]byte{0x01},
		Total:   big.NewInt(total),
		Delta:   big.NewInt(total),
		Reason:  events.SupplyReasonMint,
	}
}

func TestJournalChainsEntries(t *testing.T) {
	j := openMemory(t)
	j.Emit(supply(100))
	j.Emit(events.SaleWhitelisted{Address: [20]byte{0x02}})
	j.Emit(supply(250))

	entries, err := j.Entries(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, events.TypeTokenSupply, entries[0].Type)
	require.Equal(t, events.TypeSaleWhitelisted, entries[1].Type)
	require.Equal(t, entries[0].Digest, entries[1].PrevDigest)
	require.Equal(t, entries[1].Digest, entries[2].PrevDigest)
	require.NoError(t, j.Verify())

	page, err := j.Entries(entries[0].Seq, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, entries[1].Seq, page[0].Seq)
}

func TestJournalDetectsTampering(t *testing.T) {
	j := openMemory(t)
	j.Emit(supply(100))
	j.Emit(supply(200))

	require.NoError(t, j.db.Model(&Entry{}).Where("seq = ?", 1).Update("attributes", `{"total":"1"}`).Error)
	err := j.Verify()
	require.True(t, errors.Is(err, ErrTampered), "expected ErrTampered, got %v", err)
}

func TestJournalResumesChainAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	first, err := Open(path, nil)
	require.NoError(t, err)
	first.Emit(supply(100))
	require.NoError(t, first.Close())

	second, err := Open(path, nil)
	require.NoError(t, err)
	defer second.Close()
	second.Emit(supply(200))
	require.NoError(t, second.Verify())

	entries, err := second.Entries(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entries[0].Digest, entries[1].PrevDigest)
}

func TestHistoryReplaysEventsInOrder(t *testing.T) {
	j := openMemory(t)

	require.NoError(t, j.Append(&types.Event{Type: "sale.whitelist.added", Attributes: map[string]string{"address": "a"}}))
	require.NoError(t, j.Append(&types.Event{Type: "sale.purchase", Attributes: map[string]string{"tokens": "1000"}}))

	history, err := j.History()
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "sale.whitelist.added", history[0].Type)
	require.Equal(t, "1000", history[1].Attributes["tokens"])

	entries, err := j.Entries(0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(2), entries[1].Seq)
}
