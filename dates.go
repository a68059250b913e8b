package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ctcbalance/rewards"
	"ctcbalance/storage"
	"ctcbalance/util"
)

// parseDates resolves the optional --start and --end flags; start defaults to
// genesis and end to today (UTC)
func parseDates(start, end string, genesis, now time.Time) (time.Time, time.Time, error) {

	startDate := genesis
	endDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if start != "" {
		t, err := time.Parse(util.DATE_FORMAT, start)
		if err != nil {
			return startDate, endDate, errors.Wrapf(err, "Invalid start date '%s'", start)
		}
		startDate = t
	}

	if end != "" {
		t, err := time.Parse(util.DATE_FORMAT, end)
		if err != nil {
			return startDate, endDate, errors.Wrapf(err, "Invalid end date '%s'", end)
		}
		endDate = t
	}

	if endDate.Before(startDate) {
		return startDate, endDate, errors.Errorf("End date %s is before start date %s",
			endDate.Format(util.DATE_FORMAT), startDate.Format(util.DATE_FORMAT))
	}

	return startDate, endDate, nil
}

// dateRange lists every date from start to end inclusive
func dateRange(start, end time.Time) []string {

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(util.DATE_FORMAT))
	}

	return dates
}

// needsBalances is true when any account lacks a stored balance for the date,
// or, with refetchZero, when every account's stored balance is zero
func needsBalances(stored map[string]decimal.Decimal, names []string, refetchZero bool) bool {

	allZero := true

	for _, name := range names {
		v, ok := stored[name]
		if !ok {
			return true
		}
		if !v.IsZero() {
			allZero = false
		}
	}

	return refetchZero && allZero
}

// rewardWindows pairs each date's block with the next date's. The last window
// runs one day of blocks past its start. Windows end at the head at the latest.
func rewardWindows(dates []string, blocks map[string]storage.BlockRecord, latest, blocksPerDay uint64) []rewards.Window {

	var windows []rewards.Window

	for i, date := range dates {

		start, ok := blocks[date]
		if !ok {
			continue
		}

		end := start.Block + blocksPerDay
		if i+1 < len(dates) {
			if next, ok := blocks[dates[i+1]]; ok {
				end = next.Block
			}
		}

		if end > latest {
			end = latest
		}

		if end >= start.Block {
			windows = append(windows, rewards.Window{Date: date, Start: start.Block, End: end})
		}
	}

	return windows
}
