package main

import (
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tokensale/config"
	"tokensale/core/events"
	"tokensale/crypto"
	"tokensale/services/journal"
	"tokensale/storage"
)

func TestBuildNodeDerivesControllerAndSeedsWhitelist(t *testing.T) {
	cfg := config.Default()
	cfg.Sale.Wallet = crypto.FormatAddress([20]byte{0x0b})
	cfg.Chain.GenesisTime = time.Now().Unix()
	owner := [20]byte{0x0a}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	node, err := buildNode(cfg, storage.NewMemDB(), owner, logger, nil)
	require.NoError(t, err)
	require.Equal(t, crypto.DeriveAddress(owner, 0), node.Self())
	require.Equal(t, owner, node.Owner())

	preferred := [20]byte{0x01}
	plain := [20]byte{0x02}
	applied := seedWhitelist(node, owner, []config.WhitelistEntry{
		{Address: preferred, Rate: big.NewInt(1500)},
		{Address: plain},
		{Address: [20]byte{}},
	}, logger)
	require.Equal(t, 2, applied)
	require.True(t, node.IsWhitelisted(preferred))
	require.True(t, node.IsWhitelisted(plain))

	var rates int
	for _, evt := range node.Events(0) {
		if evt.Type == events.TypeSalePreferentialRate {
			rates++
		}
	}
	require.Equal(t, 1, rates)
}

func TestBuildNodeRejectsForeignLedger(t *testing.T) {
	cfg := config.Default()
	cfg.Sale.Wallet = crypto.FormatAddress([20]byte{0x0b})
	db := storage.NewMemDB()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := buildNode(cfg, db, [20]byte{0x0a}, logger, nil)
	require.NoError(t, err)
	_, err = buildNode(cfg, db, [20]byte{0x0c}, logger, nil)
	require.Error(t, err)
}

func TestBuildNodeForwardsEventsToJournal(t *testing.T) {
	cfg := config.Default()
	cfg.Sale.Wallet = crypto.FormatAddress([20]byte{0x0b})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trail, err := journal.Open("file:saled-journal?mode=memory&cache=shared", logger)
	require.NoError(t, err)
	defer trail.Close()

	owner := [20]byte{0x0a}
	node, err := buildNode(cfg, storage.NewMemDB(), owner, logger, nil, trail)
	require.NoError(t, err)
	require.NoError(t, node.AddToWhitelist(owner, [20]byte{0x01}))

	entries, err := trail.Entries(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, node.EventCount(), len(entries))
	require.Equal(t, events.TypeSaleWhitelisted, entries[0].Type)
	require.NoError(t, trail.Verify())
}
