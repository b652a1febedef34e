package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(filepath.Join(dir, "hasil.json"), filepath.Join(dir, "empty_wallets.json"), logger)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestSaveFound_AppendsOneLinePerRecord(t *testing.T) {
	s := newTestStore(t)

	rec := model.WalletRecord{
		Address:       "0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
		PrivateKey:    "1837c1be8e2995ec11cda2b066151be2cfb48adf9e47b151d46adab3a21cdf67",
		Phrase:        []string{"abandon", "about"},
		BalanceUSD:    decimal.NewFromFloat(12.5),
		Coins:         map[string]decimal.Decimal{"ETH": decimal.NewFromFloat(0.005)},
		ChainsChecked: []string{"eth"},
		Nonce:         3,
		DiscoveredAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveFound(context.Background(), rec))
	require.NoError(t, s.SaveFound(context.Background(), rec))

	lines := readLines(t, s.FoundPath())
	require.Len(t, lines, 2)

	var got model.WalletRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, rec.Address, got.Address)
	assert.Equal(t, rec.PrivateKey, got.PrivateKey)
	assert.Equal(t, rec.Phrase, got.Phrase)
	assert.True(t, rec.BalanceUSD.Equal(got.BalanceUSD))
	assert.Equal(t, uint64(3), got.Nonce)
}

func TestSaveFound_KeepsKeyMaterialOwnerOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix permissions")
	}
	s := newTestStore(t)
	require.NoError(t, s.SaveFound(context.Background(), model.WalletRecord{Address: "0xabc"}))

	info, err := os.Stat(s.FoundPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveFound_UndeliveredMarkerSurvives(t *testing.T) {
	s := newTestStore(t)
	rec := model.WalletRecord{Address: "0xabc", Undelivered: true}
	require.NoError(t, s.SaveFound(context.Background(), rec))

	lines := readLines(t, s.FoundPath())
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"undelivered":true`)
}

func TestSaveEmpty_NeverWritesKeyMaterial(t *testing.T) {
	s := newTestStore(t)

	rec := model.EmptyRecord{
		Address:       "0xdef",
		ChainsChecked: []string{"eth", "bsc"},
		CheckedAt:     time.Now().UTC(),
		CheckFailed:   true,
	}
	require.NoError(t, s.SaveEmpty(context.Background(), rec))

	lines := readLines(t, s.EmptyPath())
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "private_key")
	assert.NotContains(t, lines[0], "phrase")
	assert.Contains(t, lines[0], `"check_failed":true`)
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)

	ctx := context.Background()
	found, err := s.CountFound(ctx)
	require.NoError(t, err)
	assert.Zero(t, found, "missing log counts as empty")

	require.NoError(t, s.SaveFound(ctx, model.WalletRecord{Address: "0x1"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveEmpty(ctx, model.EmptyRecord{Address: "0x2"}))
	}

	found, err = s.CountFound(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found)

	empty, err := s.CountEmpty(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), empty)
}

func TestReadFound_RoundTripsRecordsInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := model.WalletRecord{
		Address:    "0x1111",
		PrivateKey: "aa",
		Phrase:     []string{"abandon", "about"},
		BalanceUSD: decimal.NewFromInt(42),
		Nonce:      7,
	}
	second := model.WalletRecord{Address: "0x2222", Undelivered: true}
	require.NoError(t, s.SaveFound(ctx, first))
	require.NoError(t, s.SaveFound(ctx, second))

	records, err := s.ReadFound(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "0x1111", records[0].Address)
	assert.Equal(t, []string{"abandon", "about"}, records[0].Phrase)
	assert.True(t, records[0].BalanceUSD.Equal(decimal.NewFromInt(42)))
	assert.True(t, records[1].Undelivered)
}

func TestReadFound_MissingLogYieldsNothing(t *testing.T) {
	s := newTestStore(t)

	records, err := s.ReadFound(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadFound_CorruptLineReportsPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFound(ctx, model.WalletRecord{Address: "0x1"}))
	f, err := os.OpenFile(s.FoundPath(), os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.ReadFound(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestRecentFound_NewestFirstAndSanitized(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, addr := range []string{"0x1", "0x2", "0x3"} {
		require.NoError(t, s.SaveFound(ctx, model.WalletRecord{
			Address:      addr,
			PrivateKey:   "deadbeef",
			Phrase:       []string{"abandon", "about"},
			BalanceUSD:   decimal.NewFromInt(int64(i + 1)),
			DiscoveredAt: time.Date(2025, 3, 1, 10, i, 0, 0, time.UTC),
		}))
	}

	summaries, err := s.RecentFound(ctx, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Tail of the log first.
	assert.Equal(t, "0x3", summaries[0].Address)
	assert.Equal(t, "0x2", summaries[1].Address)
	assert.True(t, summaries[0].BalanceUSD.Equal(decimal.NewFromInt(3)))

	// No key material in the marshalled form.
	raw, err := json.Marshal(summaries[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "deadbeef")
	assert.NotContains(t, string(raw), "abandon")
}

func TestRecentFound_LimitLargerThanLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFound(ctx, model.WalletRecord{Address: "0x1"}))

	summaries, err := s.RecentFound(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestConcurrentAppendsStayLineAtomic(t *testing.T) {
	s := newTestStore(t)

	const goroutines = 8
	const perGoroutine = 25

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_ = s.SaveEmpty(context.Background(), model.EmptyRecord{
					Address:   "0xconcurrent",
					CheckedAt: time.Now(),
				})
			}
		}()
	}
	wg.Wait()

	lines := readLines(t, s.EmptyPath())
	require.Len(t, lines, goroutines*perGoroutine)
	for _, line := range lines {
		var rec model.EmptyRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "every line must be standalone JSON")
	}
}
