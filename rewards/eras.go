package rewards

import (
	"context"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ctcbalance/accounts"
	"ctcbalance/metrics"
	"ctcbalance/util"
	"ctcbalance/value"
)

const STAKING = "Staking"

// EraReconstructor computes rewards from the staking pallet's per-era records
type EraReconstructor struct {
	chain  Chain
	config Config
}

func NewEraReconstructor(chain Chain, config Config) *EraReconstructor {
	return &EraReconstructor{
		chain:  chain,
		config: config.withDefaults(),
	}
}

// credit is one tracked account's share from one validator
type credit struct {
	id     [32]byte
	amount float64
}

// RewardsViaEras credits the tracked accounts with their share of every era
// active between startBlock and endBlock inclusive. All era records are read at
// endBlock. ErrEraUnavailable is returned, with a zero Result, when either
// boundary's active era cannot be read.
func (r *EraReconstructor) RewardsViaEras(ctx context.Context, tracked []accounts.TrackedAccount, startBlock, endBlock uint64) (Result, error) {

	res := NewResult(tracked)

	startHash, err := r.chain.BlockHash(ctx, startBlock)
	if err != nil {
		return res, errors.Wrap(err, "Unable to fetch start block hash")
	}

	endHash, err := r.chain.BlockHash(ctx, endBlock)
	if err != nil {
		return res, errors.Wrap(err, "Unable to fetch end block hash")
	}

	startEra, ok, err := r.activeEra(ctx, startHash)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, ErrEraUnavailable
	}

	endEra, ok, err := r.activeEra(ctx, endHash)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, ErrEraUnavailable
	}

	log.WithFields(log.Fields{
		"StartBlock": startBlock, "EndBlock": endBlock,
		"StartEra": startEra, "EndEra": endEra,
	}).Debug("Resolved era range")

	totals := make(map[string]float64, len(tracked))

	for era := startEra; era <= endEra; era++ {
		if err := r.ProcessEra(ctx, era, endHash, tracked, totals); err != nil {
			return NewResult(tracked), errors.Wrapf(err, "Unable to process era %d", era)
		}
	}

	for name, planck := range totals {
		res[name] = decimal.NewFromFloat(planck).Shift(-r.config.Decimals)
	}

	return res, nil
}

func (r *EraReconstructor) activeEra(ctx context.Context, at types.Hash) (uint32, bool, error) {

	v, err := r.chain.FetchStorage(ctx, STAKING, "ActiveEra", nil, at)
	if err != nil {
		return 0, false, errors.Wrap(err, "Unable to fetch active era")
	}

	idx, ok := value.Uint64(fieldOf(v, "index"))
	if !ok {
		return 0, false, nil
	}

	return uint32(idx), true, nil
}

// ProcessEra adds the tracked accounts' planck rewards for one era to totals.
// Eras without a reward or without points contribute nothing. A validator whose
// records cannot be fetched is skipped, while a failure to read the era's
// reward or points is returned. ErrExposureMissing is returned when no scored
// validator has a readable exposure.
func (r *EraReconstructor) ProcessEra(ctx context.Context, era uint32, at types.Hash, tracked []accounts.TrackedAccount, totals map[string]float64) error {

	logger := log.WithField("Era", era)

	rewardVal, err := r.chain.FetchStorage(ctx, STAKING, "ErasValidatorReward", []any{era}, at)
	if err != nil {
		return errors.Wrap(err, "Unable to fetch era reward")
	}

	eraReward, ok := value.U128(rewardVal)
	if !ok || eraReward.Sign() == 0 {
		logger.Debug("No era reward")
		return nil
	}

	pointsVal, err := r.chain.FetchStorage(ctx, STAKING, "ErasRewardPoints", []any{era}, at)
	if err != nil {
		return errors.Wrap(err, "Unable to fetch era reward points")
	}

	points, ok := parseRewardPoints(pointsVal)
	if !ok || points.Total == 0 {
		logger.Debug("No era reward points")
		return nil
	}

	index := indexAccounts(tracked)
	total := toFloat(eraReward)

	// Each validator writes only its own slot
	credits := make([][]credit, len(points.Individual))
	found := make([]bool, len(points.Individual))
	scored := 0

	g := new(errgroup.Group)
	g.SetLimit(r.config.ValidatorConcurrency)

	for i, entry := range points.Individual {

		if entry.Points == 0 {
			continue
		}

		i, entry := i, entry
		share := total * float64(entry.Points) / float64(points.Total)
		scored++

		g.Go(func() error {
			credits[i], found[i] = r.validatorCredits(ctx, era, at, entry.ID, share, index)
			return nil
		})
	}

	_ = g.Wait()

	missing := 0
	for i, entry := range points.Individual {
		if entry.Points > 0 && !found[i] {
			missing++
		}
	}

	// The node cannot serve this era's exposures at all
	if scored > 0 && missing == scored {
		metrics.ErasWithoutExposure.Inc()
		logger.WithField("Validators", scored).Warn("No exposure found for any validator")
		return ErrExposureMissing
	}

	for _, vc := range credits {
		for _, c := range vc {
			for _, name := range index[c.id] {
				totals[name] += c.amount
			}
		}
	}

	logger.WithFields(log.Fields{
		"Validators": len(points.Individual), "Reward": eraReward.String(),
	}).Trace("Processed era")

	return nil
}

// validatorCredits splits one validator's share of the era reward between the
// validator and its nominators, returning the parts owed to tracked accounts.
// The bool reports whether the validator's exposure could be read at all.
func (r *EraReconstructor) validatorCredits(ctx context.Context, era uint32, at types.Hash, validator [32]byte, share float64, index accountIndex) ([]credit, bool) {

	logger := log.WithFields(log.Fields{"Era": era, "Validator": util.AccountHex(validator)})

	exp, ok := r.exposure(ctx, era, at, validator)
	if !ok {
		return nil, false
	}
	if exp.Total.Sign() == 0 {
		return nil, true
	}

	commission := 0.0
	prefs, err := r.chain.FetchStorage(ctx, STAKING, "ErasValidatorPrefs", []any{era, validator}, at)
	if err != nil {
		logger.WithError(err).Debug("Skipping validator, prefs unavailable")
		return nil, true
	}
	if prefs != nil {
		commission = parseCommission(prefs)
	}

	nominators := exp.Nominators
	if len(nominators) == 0 && exp.PageCount > 0 {
		nominators = r.pagedNominators(ctx, era, at, validator, exp.PageCount)
	}

	stakeTotal := toFloat(exp.Total)
	var out []credit

	if _, tracked := index[validator]; tracked {
		own := share*commission + share*(1-commission)*(toFloat(exp.Own)/stakeTotal)
		out = append(out, credit{id: validator, amount: own})
	}

	for _, n := range nominators {
		if _, tracked := index[n.ID]; tracked {
			out = append(out, credit{
				id:     n.ID,
				amount: share * (1 - commission) * (toFloat(n.Stake) / stakeTotal),
			})
		}
	}

	return out, true
}

// exposure reads ErasStakersOverview, falling back to the legacy
// ErasStakersClipped; the first one present wins
func (r *EraReconstructor) exposure(ctx context.Context, era uint32, at types.Hash, validator [32]byte) (Exposure, bool) {

	for _, item := range []string{"ErasStakersOverview", "ErasStakersClipped"} {

		v, err := r.chain.FetchStorage(ctx, STAKING, item, []any{era, validator}, at)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"Era": era, "Item": item,
			}).Debug("Unable to fetch exposure")
			continue
		}

		if exp, ok := parseExposure(v); ok {
			return exp, true
		}
	}

	return Exposure{}, false
}

// pagedNominators fetches pages 0..pageCount-1 in order. A failed page is
// logged and skipped.
func (r *EraReconstructor) pagedNominators(ctx context.Context, era uint32, at types.Hash, validator [32]byte, pageCount uint32) []NominatorStake {

	var out []NominatorStake

	for page := uint32(0); page < pageCount; page++ {

		v, err := r.chain.FetchStorage(ctx, STAKING, "ErasStakersPaged", []any{era, validator, page}, at)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"Era": era, "Page": page,
			}).Warn("Unable to fetch exposure page")
			continue
		}

		out = append(out, parseNominators(fieldOf(v, "others"))...)
	}

	return out
}
