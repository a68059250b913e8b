package main

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"ctcbalance/accounts"
	"ctcbalance/config"
	"ctcbalance/ctcclient"
	"ctcbalance/notifications"
	"ctcbalance/output"
	"ctcbalance/rewards"
	"ctcbalance/storage"
	"ctcbalance/subscan"
	"ctcbalance/util"
)

const (
	SOURCE_RPC     = "rpc"
	SOURCE_SUBSCAN = "subscan"

	DEFAULT_OUTPUT_DIR = "output"
)

func newCmd_Track() *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "Fetch daily balances and staking rewards, then write CSV and charts",
		Flags: append(accountFlags(),
			&cli.StringFlag{
				Name:  "start",
				Usage: "Start date (YYYY-MM-DD), defaults to genesis",
			},
			&cli.StringFlag{
				Name:  "end",
				Usage: "End date (YYYY-MM-DD), defaults to today",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Combined CSV file, defaults to output/<name>_history.csv",
			},
			&cli.BoolFlag{
				Name:    "graph",
				Aliases: []string{"g"},
				Usage:   "Generate PNG charts",
			},
			&cli.BoolFlag{
				Name:  "no-rewards",
				Usage: "Skip staking rewards",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Reward source: rpc or subscan",
				Value: SOURCE_RPC,
			},
			&cli.StringFlag{
				Name:  "local-rpc",
				Usage: "Local node URL for recent blocks (may be pruned)",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Ignore stored blocks, balances and rewards",
			},
			&cli.BoolFlag{
				Name:  "refetch-zero",
				Usage: "Re-fetch dates where every account has zero balance",
			},
		),
		Action: func(c *cli.Context) error {
			return server.track(c)
		},
	}
}

// trackRun holds one invocation of the track pipeline
type trackRun struct {
	cfg     *config.Config
	store   *storage.Storage
	client  *ctcclient.Client
	tracked []accounts.TrackedAccount
	names   []string

	noCache     bool
	refetchZero bool
}

func (s *CtcBalanceServer) track(c *cli.Context) error {

	ctx := c.Context
	started := time.Now().UTC()

	source := c.String("source")
	if source != SOURCE_RPC && source != SOURCE_SUBSCAN {
		return errors.Errorf("Unknown reward source '%s'", source)
	}

	// Addresses are validated before any chain access
	tracked, sourceName, err := loadAccounts(c, s.config)
	if err != nil {
		return err
	}
	log.WithField("Accounts", len(tracked)).Info("Loaded accounts")

	startDate, endDate, err := parseDates(c.String("start"), c.String("end"), s.config.Constants.GenesisTime(), started)
	if err != nil {
		return err
	}

	if err := s.openStorage(); err != nil {
		return err
	}

	client, err := s.connect(ctx, s.config.NodeURL)
	if err != nil {
		return errors.Wrap(err, "Unable to connect to node")
	}
	defer client.Close()

	run := &trackRun{
		cfg:         s.config,
		store:       s.storage,
		client:      client,
		tracked:     tracked,
		names:       accounts.Names(tracked),
		noCache:     c.Bool("no-cache"),
		refetchZero: c.Bool("refetch-zero"),
	}

	latest, err := client.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}

	dates := dateRange(startDate, endDate)
	log.WithFields(log.Fields{
		"Start": dates[0], "End": dates[len(dates)-1], "Days": len(dates), "Head": latest,
	}).Info("Date range")

	blocks := run.findBlocks(ctx, dates)

	if err := run.fetchBalances(ctx, dates, blocks); err != nil {
		return err
	}

	summary := storage.RunSummary{
		Started:  started,
		Accounts: len(tracked),
		Dates:    len(dates),
		Head:     latest,
		Methods:  make(map[string]int),
	}

	includeRewards := !c.Bool("no-rewards")
	if includeRewards {

		switch source {
		case SOURCE_SUBSCAN:
			err = run.explorerRewards(ctx, dates, startDate, endDate, &summary)
		default:
			err = run.chainRewards(ctx, c.String("local-rpc"), dates, blocks, latest, &summary)
		}

		if err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "Tracking interrupted")
	}

	entries, err := run.writeOutput(c, sourceName, dates, includeRewards)
	if err != nil {
		return err
	}

	summary.Finished = time.Now().UTC()
	if _, err := s.storage.RecordRun(summary); err != nil {
		log.WithError(err).Error("Unable to record run")
	}

	latestEntry := entries[len(entries)-1]
	log.WithFields(log.Fields{
		"Date": latestEntry.Date, "Total": latestEntry.Total,
	}).Info("Completed")

	category := notifications.RUN_OK
	if summary.Failed > 0 {
		category = notifications.RUN_FAIL
	}

	notifications.NewHandler(s.config.Telegram).SendNotification(ctx,
		notifications.RunMessage(s.config.Network, summary, latestEntry.Date, latestEntry.Total), category)

	return nil
}

// findBlocks returns the block at midnight UTC of each date, from the store when
// known. Dates whose block cannot be found are missing from the result.
func (r *trackRun) findBlocks(ctx context.Context, dates []string) map[string]storage.BlockRecord {

	blocks := make(map[string]storage.BlockRecord, len(dates))
	var missing []string

	for _, date := range dates {
		if !r.noCache {
			rec, ok, err := r.store.GetBlock(date)
			if err != nil {
				log.WithError(err).WithField("Date", date).Warn("Unable to read stored block")
			}
			if ok {
				blocks[date] = rec
				continue
			}
		}
		missing = append(missing, date)
	}

	if len(missing) == 0 {
		return blocks
	}

	log.WithField("Dates", len(missing)).Info("Finding blocks for uncached dates")

	var lock sync.Mutex
	bar := progressbar.Default(int64(len(missing)), "blocks")

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Rewards.DateConcurrency)

	for _, date := range missing {

		date := date

		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			defer func() { _ = bar.Add(1) }()

			midnight, _ := time.Parse(util.DATE_FORMAT, date)

			info, err := r.client.FindBlockAtTimestamp(ctx, midnight.Unix(), ctcclient.DEFAULT_TIMESTAMP_TOLERANCE, r.cfg.Constants.BlockTime)
			if err != nil {
				log.WithError(err).WithField("Date", date).Warn("Unable to find block")
				return nil
			}

			rec := storage.BlockRecord{Block: info.Block, Hash: info.Hash}
			if err := r.store.SaveBlock(date, rec); err != nil {
				log.WithError(err).WithField("Date", date).Error("Unable to save block")
			}

			lock.Lock()
			blocks[date] = rec
			lock.Unlock()

			return nil
		})
	}

	_ = g.Wait()
	_ = bar.Finish()

	return blocks
}

// fetchBalances stores the free balance of every account at each date's block.
// Failed dates are logged and show as zero in the output.
func (r *trackRun) fetchBalances(ctx context.Context, dates []string, blocks map[string]storage.BlockRecord) error {

	history := make(storage.History)
	if !r.noCache {
		h, err := r.store.GetBalanceHistory()
		if err != nil {
			return errors.Wrap(err, "Unable to read balance history")
		}
		history = h
	}

	var todo []string
	for _, date := range dates {
		if needsBalances(history[date], r.names, r.refetchZero) {
			todo = append(todo, date)
		}
	}

	if len(todo) == 0 {
		log.Info("All balances found in store")
		return nil
	}

	log.WithField("Dates", len(todo)).Info("Fetching balances")

	var (
		lock   sync.Mutex
		failed []string
	)
	bar := progressbar.Default(int64(len(todo)), "balances")

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Rewards.DateConcurrency)

	for _, date := range todo {

		date := date

		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			defer func() { _ = bar.Add(1) }()

			if err := r.fetchDateBalances(ctx, date, blocks); err != nil {
				log.WithError(err).WithField("Date", date).Warn("Unable to fetch balances")
				lock.Lock()
				failed = append(failed, date)
				lock.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait()
	_ = bar.Finish()

	if len(failed) > 0 {
		log.WithField("Dates", len(failed)).Warn("Some dates failed to fetch and will appear as 0.0; run again to retry them")
	}

	return nil
}

func (r *trackRun) fetchDateBalances(ctx context.Context, date string, blocks map[string]storage.BlockRecord) error {

	rec, ok := blocks[date]
	if !ok {
		return errors.New("Missing block for date")
	}

	hash, err := r.client.BlockHash(ctx, rec.Block)
	if err != nil {
		return err
	}

	balances := make(map[string]decimal.Decimal, len(r.tracked))
	for _, a := range r.tracked {

		bal, err := r.client.Balance(ctx, a.ID, hash)
		if err != nil {
			return errors.Wrapf(err, "Unable to fetch balance of %s", a.Name)
		}

		balances[a.Name] = util.FromPlanck(bal.Free, r.cfg.Constants.Decimals)
	}

	return r.store.SaveBalances(date, balances)
}

// chainRewards reconstructs each date's rewards from the node
func (r *trackRun) chainRewards(ctx context.Context, localRPC string, dates []string, blocks map[string]storage.BlockRecord, latest uint64, summary *storage.RunSummary) error {

	windows := rewardWindows(dates, blocks, latest, r.cfg.Constants.BlocksPerDay)

	if !r.noCache {
		pending, err := r.pendingWindows(windows)
		if err != nil {
			return err
		}
		windows = pending
	}

	if len(windows) == 0 {
		log.Info("All rewards found in store")
		return nil
	}

	tracker := rewards.NewTracker(r.client, r.cfg.Rewards)

	if localRPC == "" {
		localRPC = r.cfg.LocalRPC
	}

	if localRPC != "" {
		local, err := server.connect(ctx, localRPC)
		if err != nil {
			log.WithError(err).WithField("URL", localRPC).Warn("Failed to connect to local node")
		} else {
			defer local.Close()

			first, err := local.FirstBlockWithEvents(ctx)
			if err != nil {
				log.WithError(err).Warn("Unable to detect local node history")
			} else {
				tracker.UseLocal(local, first)
			}
		}
	}

	log.WithField("Windows", len(windows)).Info("Fetching staking rewards")
	bar := progressbar.Default(int64(len(windows)), "rewards")

	err := tracker.RewardsForDates(ctx, r.tracked, windows, func(wr rewards.WindowResult) {

		_ = bar.Add(1)
		summary.Methods[string(wr.Method)]++

		logger := log.WithFields(log.Fields{
			"Date": wr.Window.Date, "StartBlock": wr.Window.Start, "EndBlock": wr.Window.End,
		})

		if wr.Err != nil {
			summary.Failed++
			logger.WithError(wr.Err).Error("Unable to fetch rewards")
			return
		}

		logger.WithFields(log.Fields{
			"Method": wr.Method, "Total": wr.Result.Total().StringFixed(4),
		}).Debug("Rewards")

		if err := r.store.SaveRewards(wr.Window.Date, string(wr.Method), wr.Result); err != nil {
			logger.WithError(err).Error("Unable to save rewards")
		}
	})

	_ = bar.Finish()

	return err
}

// pendingWindows drops windows whose rewards are already stored for every
// account. Figures that came from the explorer never count as stored here.
func (r *trackRun) pendingWindows(windows []rewards.Window) ([]rewards.Window, error) {

	methods, err := r.store.GetRewardMethods()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read reward methods")
	}

	var pending []rewards.Window
	for _, w := range windows {
		if methods[w.Date] == SOURCE_SUBSCAN || !r.store.HasRewards(w.Date, r.names) {
			pending = append(pending, w)
		}
	}

	return pending, nil
}

// explorerRewards takes daily rewards from Subscan instead of the node. Accounts
// the explorer failed on are not stored, so a later run fetches them again.
func (r *trackRun) explorerRewards(ctx context.Context, dates []string, start, end time.Time, summary *storage.RunSummary) error {

	client := subscan.New(r.cfg.Subscan.URL, r.cfg.Subscan.APIKey, r.cfg.Constants.Decimals, r.cfg.RetryPolicy())
	all, failed := client.AllDailyRewards(ctx, r.tracked, start, end)

	if len(failed) > 0 {
		summary.Failed += len(failed)
		log.WithField("Accounts", len(failed)).Warn("Explorer rewards missing for some accounts; run again to retry them")
	}

	if len(all) == 0 {
		return nil
	}

	for _, date := range dates {

		day := make(map[string]decimal.Decimal, len(all))
		for name, daily := range all {
			day[name] = daily[date]
		}

		if err := r.store.SaveRewards(date, SOURCE_SUBSCAN, day); err != nil {
			return errors.Wrapf(err, "Unable to save rewards for %s", date)
		}
		summary.Methods[SOURCE_SUBSCAN]++
	}

	return nil
}

func (r *trackRun) writeOutput(c *cli.Context, sourceName string, dates []string, includeRewards bool) ([]output.HistoryEntry, error) {

	balances, err := r.store.GetBalanceHistory()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read balance history")
	}

	rewardHistory := make(storage.History)
	if includeRewards {
		if rewardHistory, err = r.store.GetRewardHistory(); err != nil {
			return nil, errors.Wrap(err, "Unable to read reward history")
		}
	}

	outputFile := c.String("output")
	if outputFile == "" {
		outputFile = filepath.Join(DEFAULT_OUTPUT_DIR, sourceName+"_history.csv")
	}

	entries := output.BuildEntries(dates, r.names, balances, rewardHistory)

	if err := output.SaveCombinedCSV(outputFile, r.names, entries, includeRewards); err != nil {
		return nil, err
	}

	var individualRewards storage.History
	if includeRewards {
		individualRewards = rewardHistory
	}

	individualDir := filepath.Join(filepath.Dir(outputFile), "individual")
	if err := output.SaveIndividualCSVs(individualDir, r.names, dates, balances, individualRewards); err != nil {
		return nil, err
	}

	if c.Bool("graph") {
		if _, err := output.PlotBalances(outputFile, "CTC Balance History - "+sourceName, r.names, entries, includeRewards); err != nil {
			return nil, err
		}
	}

	return entries, nil
}
