package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctcbalance/rewards"
	"ctcbalance/storage"
)

var genesis = time.Date(2024, 8, 29, 0, 0, 0, 0, time.UTC)

func TestParseDatesDefaults(t *testing.T) {

	now := time.Date(2024, 9, 2, 15, 4, 5, 0, time.UTC)

	start, end, err := parseDates("", "", genesis, now)
	require.NoError(t, err)
	assert.Equal(t, genesis, start)
	assert.Equal(t, time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC), end)

	dates := dateRange(start, end)
	assert.Equal(t, []string{"2024-08-29", "2024-08-30", "2024-08-31", "2024-09-01", "2024-09-02"}, dates)
}

func TestParseDatesErrors(t *testing.T) {

	now := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)

	_, _, err := parseDates("2024-13-01", "", genesis, now)
	assert.Error(t, err)

	_, _, err = parseDates("2024-09-02", "2024-09-01", genesis, now)
	assert.Error(t, err)

	start, end, err := parseDates("2024-09-01", "2024-09-01", genesis, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-09-01"}, dateRange(start, end))
}

func TestNeedsBalances(t *testing.T) {

	names := []string{"alice", "bob"}
	zero := decimal.Zero
	one := decimal.NewFromInt(1)

	assert.True(t, needsBalances(nil, names, false))
	assert.True(t, needsBalances(map[string]decimal.Decimal{"alice": one}, names, false))
	assert.False(t, needsBalances(map[string]decimal.Decimal{"alice": one, "bob": zero}, names, true))
	assert.False(t, needsBalances(map[string]decimal.Decimal{"alice": zero, "bob": zero}, names, false))
	assert.True(t, needsBalances(map[string]decimal.Decimal{"alice": zero, "bob": zero}, names, true))
}

func TestRewardWindows(t *testing.T) {

	dates := []string{"2024-09-01", "2024-09-02", "2024-09-03", "2024-09-04"}
	blocks := map[string]storage.BlockRecord{
		"2024-09-01": {Block: 1000},
		"2024-09-02": {Block: 6760},
		// 2024-09-03 missing
		"2024-09-04": {Block: 18280},
	}

	windows := rewardWindows(dates, blocks, 20000, 5760)

	assert.Equal(t, []rewards.Window{
		{Date: "2024-09-01", Start: 1000, End: 6760},
		{Date: "2024-09-02", Start: 6760, End: 12520},
		{Date: "2024-09-04", Start: 18280, End: 20000},
	}, windows)
}

func TestRewardWindowsPastHead(t *testing.T) {

	blocks := map[string]storage.BlockRecord{"2024-09-01": {Block: 500}}

	assert.Empty(t, rewardWindows([]string{"2024-09-01"}, blocks, 400, 5760))
	assert.Equal(t, []rewards.Window{{Date: "2024-09-01", Start: 500, End: 500}},
		rewardWindows([]string{"2024-09-01"}, blocks, 500, 5760))
}
