package rewards

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ctcbalance/accounts"
	"ctcbalance/metrics"
)

// Tracker runs the era reconstruction for a window and falls back to scanning
// events. A Local node, when set, serves every window starting at or after
// LocalFirstBlock; everything else goes to Primary.
type Tracker struct {
	Primary         Chain
	Local           Chain
	LocalFirstBlock uint64

	Config Config
}

// Window is the block range whose rewards are attributed to Date
type Window struct {
	Date  string
	Start uint64
	End   uint64
}

// WindowResult is delivered once per window by RewardsForDates
type WindowResult struct {
	Window Window
	Result Result
	Method Method
	Err    error
}

func NewTracker(primary Chain, config Config) *Tracker {
	return &Tracker{
		Primary: primary,
		Config:  config.withDefaults(),
	}
}

// UseLocal routes windows from firstBlock onwards to a local node
func (t *Tracker) UseLocal(local Chain, firstBlock uint64) {
	t.Local = local
	t.LocalFirstBlock = firstBlock
}

func (t *Tracker) chainFor(startBlock uint64) Chain {
	if t.Local != nil && startBlock >= t.LocalFirstBlock {
		return t.Local
	}
	return t.Primary
}

// Rewards tries era reconstruction first and event scanning second. When both
// fail the Result is all zero, the Method is METHOD_NONE and the scan's error is
// returned for the caller to report.
func (t *Tracker) Rewards(ctx context.Context, tracked []accounts.TrackedAccount, startBlock, endBlock uint64) (Result, Method, error) {

	chain := t.chainFor(startBlock)
	logger := log.WithFields(log.Fields{"StartBlock": startBlock, "EndBlock": endBlock})

	res, err := NewEraReconstructor(chain, t.Config).RewardsViaEras(ctx, tracked, startBlock, endBlock)
	if err == nil {
		metrics.RewardWindowsByMethod.WithLabelValues(string(METHOD_ERA)).Inc()
		return res, METHOD_ERA, nil
	}

	if errors.Is(err, ErrEraUnavailable) {
		logger.Debug("Era data unavailable, scanning events")
	} else {
		logger.WithError(err).Warn("Era reconstruction failed, scanning events")
	}

	res, scanErr := NewEventScanner(chain, t.Config).RewardsViaEventScan(ctx, tracked, startBlock, endBlock)
	if scanErr == nil {
		metrics.RewardWindowsByMethod.WithLabelValues(string(METHOD_SCAN)).Inc()
		return res, METHOD_SCAN, nil
	}

	metrics.RewardWindowsByMethod.WithLabelValues(string(METHOD_NONE)).Inc()

	return NewResult(tracked), METHOD_NONE, errors.Wrap(scanErr, "Both era reconstruction and event scan failed")
}

// RewardsForDates resolves windows DateConcurrency at a time. fn is called on the
// calling goroutine, once per window, in completion order.
func (t *Tracker) RewardsForDates(ctx context.Context, tracked []accounts.TrackedAccount, windows []Window, fn func(WindowResult)) error {

	results := make(chan WindowResult)

	g := new(errgroup.Group)
	g.SetLimit(t.Config.withDefaults().DateConcurrency)

	go func() {
		for _, w := range windows {

			w := w

			if ctx.Err() != nil {
				break
			}

			g.Go(func() error {
				res, method, err := t.Rewards(ctx, tracked, w.Start, w.End)
				results <- WindowResult{Window: w, Result: res, Method: method, Err: err}
				return nil
			})
		}

		_ = g.Wait()
		close(results)
	}()

	for r := range results {
		fn(r)
	}

	return ctx.Err()
}
