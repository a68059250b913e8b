package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ctcbalance/storage"
)

// Number of trailing days in the moving averages
const AVG_WINDOW = 10

// HistoryEntry is one row of the combined CSV
type HistoryEntry struct {
	Date     string
	Balances map[string]float64
	Total    float64

	Diff      float64
	DiffAvg10 float64

	Rewards               map[string]float64
	TotalReward           float64
	RewardAvg10           float64
	TotalRewardCumulative float64
}

// movingAvg keeps the last AVG_WINDOW values; the mean covers fewer at the start
type movingAvg struct {
	values []float64
}

func (m *movingAvg) add(v float64) float64 {

	m.values = append(m.values, v)
	if len(m.values) > AVG_WINDOW {
		m.values = m.values[1:]
	}

	sum := 0.0
	for _, x := range m.values {
		sum += x
	}

	return sum / float64(len(m.values))
}

func amount(h storage.History, date, name string) float64 {
	v, ok := h[date][name]
	if !ok {
		return 0
	}
	f, _ := v.Float64()
	return f
}

// BuildEntries computes one entry per date in the given order. Missing balances
// and rewards count as zero. The first date's diff is zero.
func BuildEntries(dates, names []string, balances, rewards storage.History) []HistoryEntry {

	entries := make([]HistoryEntry, 0, len(dates))

	var (
		diffs      movingAvg
		dailies    movingAvg
		cumulative float64
	)

	for i, date := range dates {

		e := HistoryEntry{
			Date:     date,
			Balances: make(map[string]float64, len(names)),
			Rewards:  make(map[string]float64, len(names)),
		}

		for _, name := range names {

			b := amount(balances, date, name)
			e.Balances[name] = b
			e.Total += b

			r := amount(rewards, date, name)
			e.Rewards[name] = r
			e.TotalReward += r
		}

		if i > 0 {
			e.Diff = e.Total - entries[i-1].Total
		}
		e.DiffAvg10 = diffs.add(e.Diff)

		cumulative += e.TotalReward
		e.RewardAvg10 = dailies.add(e.TotalReward)
		e.TotalRewardCumulative = cumulative

		entries = append(entries, e)
	}

	return entries
}

func createFile(path string) (*os.File, error) {

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "Unable to create output directory")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to create %s", path)
	}

	return f, nil
}

func writeRows(path string, rows [][]string) error {

	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "Unable to write %s", path)
	}

	return nil
}

func f1(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func f4(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

// SaveCombinedCSV writes one row per entry with every account's balance, and
// the reward columns when includeRewards is set
func SaveCombinedCSV(path string, names []string, entries []HistoryEntry, includeRewards bool) error {

	header := append([]string{"date"}, names...)
	header = append(header, "total", "diff", "diff_avg10")

	if includeRewards {
		for _, name := range names {
			header = append(header, name+"_reward")
		}
		header = append(header, "total_reward", "reward_avg10", "total_reward_cumulative")
	}

	rows := [][]string{header}

	for _, e := range entries {

		row := []string{e.Date}
		for _, name := range names {
			row = append(row, f1(e.Balances[name]))
		}
		row = append(row, f1(e.Total), f1(e.Diff), f1(e.DiffAvg10))

		if includeRewards {
			for _, name := range names {
				row = append(row, f4(e.Rewards[name]))
			}
			row = append(row, f4(e.TotalReward), f4(e.RewardAvg10), f4(e.TotalRewardCumulative))
		}

		rows = append(rows, row)
	}

	if err := writeRows(path, rows); err != nil {
		return err
	}

	log.WithFields(log.Fields{"File": path, "Rows": len(entries)}).Info("Saved combined CSV")

	return nil
}

// SaveIndividualCSVs writes dir/<name>.csv per account. rewards may be nil.
func SaveIndividualCSVs(dir string, names, dates []string, balances, rewards storage.History) error {

	for _, name := range names {

		header := []string{"date", "balance", "diff", "diff_avg10"}
		if rewards != nil {
			header = append(header, "reward", "reward_avg10", "reward_cumulative")
		}

		rows := [][]string{header}

		var (
			diffs      movingAvg
			dailies    movingAvg
			prev       float64
			cumulative float64
		)

		for i, date := range dates {

			balance := amount(balances, date, name)

			diff := 0.0
			if i > 0 {
				diff = balance - prev
			}
			prev = balance

			row := []string{date, f1(balance), f1(diff), f1(diffs.add(diff))}

			if rewards != nil {
				r := amount(rewards, date, name)
				cumulative += r
				row = append(row, f4(r), f4(dailies.add(r)), f4(cumulative))
			}

			rows = append(rows, row)
		}

		if err := writeRows(filepath.Join(dir, name+".csv"), rows); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{"Dir": dir, "Accounts": len(names)}).Info("Saved individual CSVs")

	return nil
}
