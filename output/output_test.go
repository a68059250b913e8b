package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctcbalance/storage"
)

func history(rows map[string]map[string]float64) storage.History {
	h := make(storage.History, len(rows))
	for date, amounts := range rows {
		h[date] = make(map[string]decimal.Decimal, len(amounts))
		for name, v := range amounts {
			h[date][name] = decimal.NewFromFloat(v)
		}
	}
	return h
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	return rows
}

func TestBuildEntries(t *testing.T) {

	dates := []string{"2024-09-01", "2024-09-02", "2024-09-03"}
	names := []string{"alice", "bob"}

	balances := history(map[string]map[string]float64{
		"2024-09-01": {"alice": 100, "bob": 50},
		"2024-09-02": {"alice": 110, "bob": 50},
		"2024-09-03": {"alice": 120},
	})
	rewards := history(map[string]map[string]float64{
		"2024-09-01": {"alice": 1},
		"2024-09-02": {"alice": 2, "bob": 1},
	})

	entries := BuildEntries(dates, names, balances, rewards)
	require.Len(t, entries, 3)

	assert.Equal(t, 150.0, entries[0].Total)
	assert.Equal(t, 0.0, entries[0].Diff)
	assert.Equal(t, 10.0, entries[1].Diff)
	assert.Equal(t, 5.0, entries[1].DiffAvg10)

	// bob missing on the last day counts as zero
	assert.Equal(t, -40.0, entries[2].Diff)
	assert.InDelta(t, -10.0, entries[2].DiffAvg10, 1e-9)

	assert.Equal(t, 3.0, entries[1].TotalReward)
	assert.Equal(t, 2.0, entries[1].RewardAvg10)
	assert.Equal(t, 4.0, entries[2].TotalRewardCumulative)
	assert.Equal(t, 0.0, entries[2].TotalReward)
}

func TestMovingAverageWindow(t *testing.T) {

	var m movingAvg
	for i := 1; i <= 10; i++ {
		m.add(float64(i))
	}

	// 2..11
	assert.Equal(t, 6.5, m.add(11))
	assert.Len(t, m.values, AVG_WINDOW)
}

func TestSaveCombinedCSV(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "out", "balances.csv")

	entries := BuildEntries(
		[]string{"2024-09-01", "2024-09-02"},
		[]string{"alice"},
		history(map[string]map[string]float64{"2024-09-01": {"alice": 100.04}, "2024-09-02": {"alice": 101.26}}),
		history(map[string]map[string]float64{"2024-09-02": {"alice": 1.23456}}),
	)

	require.NoError(t, SaveCombinedCSV(path, []string{"alice"}, entries, true))

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{
		"date", "alice", "total", "diff", "diff_avg10",
		"alice_reward", "total_reward", "reward_avg10", "total_reward_cumulative",
	}, rows[0])
	assert.Equal(t, []string{"2024-09-02", "101.3", "101.3", "1.2", "0.6", "1.2346", "1.2346", "0.6173", "1.2346"}, rows[2])

	require.NoError(t, SaveCombinedCSV(path, []string{"alice"}, entries, false))
	rows = readCSV(t, path)
	assert.Len(t, rows[0], 5)
}

func TestSaveIndividualCSVs(t *testing.T) {

	dir := t.TempDir()

	dates := []string{"2024-09-01", "2024-09-02"}
	balances := history(map[string]map[string]float64{
		"2024-09-01": {"alice": 10, "bob": 5},
		"2024-09-02": {"alice": 12, "bob": 5},
	})
	rewards := history(map[string]map[string]float64{"2024-09-02": {"alice": 0.5}})

	require.NoError(t, SaveIndividualCSVs(dir, []string{"alice", "bob"}, dates, balances, rewards))

	rows := readCSV(t, filepath.Join(dir, "alice.csv"))
	assert.Equal(t, []string{"date", "balance", "diff", "diff_avg10", "reward", "reward_avg10", "reward_cumulative"}, rows[0])
	assert.Equal(t, []string{"2024-09-02", "12.0", "2.0", "1.0", "0.5000", "0.2500", "0.5000"}, rows[2])

	require.NoError(t, SaveIndividualCSVs(dir, []string{"bob"}, dates, balances, nil))
	rows = readCSV(t, filepath.Join(dir, "bob.csv"))
	assert.Equal(t, []string{"2024-09-01", "5.0", "0.0", "0.0"}, rows[1])
}

func TestPlotBalances(t *testing.T) {

	dir := t.TempDir()
	base := filepath.Join(dir, "balances.csv")

	entries := BuildEntries(
		[]string{"2024-09-01", "2024-09-02", "2024-09-03"},
		[]string{"alice", "bob"},
		history(map[string]map[string]float64{
			"2024-09-01": {"alice": 1000, "bob": 500},
			"2024-09-02": {"alice": 1100, "bob": 520},
			"2024-09-03": {"alice": 1200, "bob": 540},
		}),
		history(map[string]map[string]float64{"2024-09-02": {"alice": 3}}),
	)

	files, err := PlotBalances(base, "CTC Balance History", []string{"alice", "bob"}, entries, true)
	require.NoError(t, err)
	require.Len(t, files, 3)

	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	files, err = PlotBalances(base, "single", []string{"alice"}, entries[:1], true)
	require.NoError(t, err)
	assert.Empty(t, files)
}
