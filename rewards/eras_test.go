package rewards

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{ValidatorConcurrency: 4, BlockConcurrency: 4, DateConcurrency: 1, Decimals: 0}

func floatOf(t *testing.T, r Result, name string) float64 {
	t.Helper()
	v, ok := r[name]
	require.True(t, ok, "missing %s", name)
	f, _ := v.Float64()
	return f
}

func TestCommissionSplit(t *testing.T) {

	acc := tracked("validator", "nominator")
	v, n := acc[0].ID, acc[1].ID

	chain := newFakeChain()
	chain.activeEra[100] = 5
	chain.activeEra[200] = 5
	chain.set("Staking", "ErasValidatorReward", valueU(1000), uint32(5))
	chain.set("Staking", "ErasRewardPoints", pointsValue(100, pointsPair(v, 100)), uint32(5))
	chain.set("Staking", "ErasValidatorPrefs", prefsValue(100_000_000), uint32(5), v)
	chain.set("Staking", "ErasStakersClipped", clippedValue(1000, 200, stakeEntry(n, 800)), uint32(5), v)

	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 100, 200)
	require.NoError(t, err)

	assert.InDelta(t, 280, floatOf(t, res, "validator"), 1e-9)
	assert.InDelta(t, 720, floatOf(t, res, "nominator"), 1e-9)
	assert.InDelta(t, 1000, floatOf(t, res, "validator")+floatOf(t, res, "nominator"), 1e-9)
}

func TestZeroTotalPointsContributesNothing(t *testing.T) {

	acc := tracked("validator")
	v := acc[0].ID

	chain := newFakeChain()
	chain.activeEra[1] = 3
	chain.activeEra[2] = 3
	chain.set("Staking", "ErasValidatorReward", valueU(1000), uint32(3))
	chain.set("Staking", "ErasRewardPoints", pointsValue(0, pointsPair(v, 0)), uint32(3))

	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 1, 2)
	require.NoError(t, err)
	assert.True(t, res["validator"].IsZero())
}

func TestZeroStakeContributesNothing(t *testing.T) {

	acc := tracked("validator", "nominator")
	v, n := acc[0].ID, acc[1].ID

	chain := newFakeChain()
	chain.activeEra[1] = 3
	chain.activeEra[2] = 3
	chain.set("Staking", "ErasValidatorReward", valueU(1000), uint32(3))
	chain.set("Staking", "ErasRewardPoints", pointsValue(10, pointsPair(v, 10)), uint32(3))
	chain.set("Staking", "ErasStakersClipped", clippedValue(0, 0, stakeEntry(n, 0)), uint32(3), v)

	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 1, 2)
	require.NoError(t, err)
	assert.True(t, res["validator"].IsZero())
	assert.True(t, res["nominator"].IsZero())
}

func TestPagedExposureConcatenatesPages(t *testing.T) {

	acc := tracked("a", "b", "validator")
	a, b, v := acc[0].ID, acc[1].ID, acc[2].ID

	chain := newFakeChain()
	chain.activeEra[1] = 7
	chain.activeEra[2] = 7
	chain.set("Staking", "ErasValidatorReward", valueU(1000), uint32(7))
	chain.set("Staking", "ErasRewardPoints", pointsValue(50, pointsPair(v, 50)), uint32(7))
	chain.set("Staking", "ErasStakersOverview", overviewValue(1000, 0, 2), uint32(7), v)
	chain.set("Staking", "ErasStakersPaged", pageValue(300, stakeEntry(a, 300)), uint32(7), v, uint32(0))
	chain.set("Staking", "ErasStakersPaged", pageValue(700, stakeEntry(b, 700)), uint32(7), v, uint32(1))

	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 1, 2)
	require.NoError(t, err)

	// no prefs, so no commission
	assert.InDelta(t, 300, floatOf(t, res, "a"), 1e-9)
	assert.InDelta(t, 700, floatOf(t, res, "b"), 1e-9)
	assert.True(t, res["validator"].IsZero())
}

func TestPagedExposureToleratesMissingPage(t *testing.T) {

	acc := tracked("a", "b", "validator")
	b, v := acc[1].ID, acc[2].ID

	chain := newFakeChain()
	chain.activeEra[1] = 7
	chain.activeEra[2] = 7
	chain.set("Staking", "ErasValidatorReward", valueU(1000), uint32(7))
	chain.set("Staking", "ErasRewardPoints", pointsValue(50, pointsPair(v, 50)), uint32(7))
	chain.set("Staking", "ErasStakersOverview", overviewValue(1000, 0, 2), uint32(7), v)
	chain.fail("Staking", "ErasStakersPaged", uint32(7), v, uint32(0))
	chain.set("Staking", "ErasStakersPaged", pageValue(700, stakeEntry(b, 700)), uint32(7), v, uint32(1))

	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 1, 2)
	require.NoError(t, err)

	assert.True(t, res["a"].IsZero())
	assert.InDelta(t, 700, floatOf(t, res, "b"), 1e-9)
}

func TestErasAccumulateAcrossRange(t *testing.T) {

	acc := tracked("validator")
	v := acc[0].ID

	chain := newFakeChain()
	chain.activeEra[10] = 1
	chain.activeEra[20] = 2

	for _, era := range []uint32{1, 2} {
		chain.set("Staking", "ErasValidatorReward", valueU(500), era)
		chain.set("Staking", "ErasRewardPoints", pointsValue(20, pointsPair(v, 20)), era)
		chain.set("Staking", "ErasStakersClipped", clippedValue(100, 100), era, v)
	}

	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 10, 20)
	require.NoError(t, err)
	assert.InDelta(t, 1000, floatOf(t, res, "validator"), 1e-9)
}

func TestEraUnavailable(t *testing.T) {

	acc := tracked("a", "b")

	chain := newFakeChain()
	chain.activeEra[1] = 1

	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 1, 2)
	require.True(t, errors.Is(err, ErrEraUnavailable))
	assert.Len(t, res, 2)
	assert.True(t, res.Total().IsZero())
}

func TestEraLevelFailureAborts(t *testing.T) {

	acc := tracked("a")

	chain := newFakeChain()
	chain.activeEra[1] = 4
	chain.activeEra[2] = 4
	chain.fail("Staking", "ErasValidatorReward", uint32(4))

	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 1, 2)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEraUnavailable))
	assert.True(t, res["a"].IsZero())
}

func TestValidatorFailureIsSkipped(t *testing.T) {

	acc := tracked("good", "bad")
	good, bad := acc[0].ID, acc[1].ID

	chain := newFakeChain()
	chain.activeEra[1] = 2
	chain.activeEra[2] = 2
	chain.set("Staking", "ErasValidatorReward", valueU(1000), uint32(2))
	chain.set("Staking", "ErasRewardPoints", pointsValue(100, pointsPair(good, 50), pointsPair(bad, 50)), uint32(2))
	chain.set("Staking", "ErasStakersClipped", clippedValue(10, 10), uint32(2), good)
	chain.fail("Staking", "ErasStakersOverview", uint32(2), bad)
	chain.fail("Staking", "ErasStakersClipped", uint32(2), bad)

	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 1, 2)
	require.NoError(t, err)

	assert.InDelta(t, 500, floatOf(t, res, "good"), 1e-9)
	assert.True(t, res["bad"].IsZero())
}

func TestEraWithoutAnyExposureFails(t *testing.T) {

	acc := tracked("a", "b")
	a, b := acc[0].ID, acc[1].ID

	chain := newFakeChain()
	chain.activeEra[1] = 6
	chain.activeEra[2] = 6
	chain.set("Staking", "ErasValidatorReward", valueU(1000), uint32(6))
	chain.set("Staking", "ErasRewardPoints", pointsValue(30, pointsPair(a, 10), pointsPair(b, 20)), uint32(6))

	// neither ErasStakersOverview nor ErasStakersClipped holds anything
	res, err := NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 1, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExposureMissing))
	assert.True(t, res.Total().IsZero())

	// one readable exposure is enough for the era to count
	chain.set("Staking", "ErasStakersClipped", clippedValue(10, 10), uint32(6), a)

	res, err = NewEraReconstructor(chain, testConfig).RewardsViaEras(context.Background(), acc, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0/3, floatOf(t, res, "a"), 1e-9)
	assert.True(t, res["b"].IsZero())
}

func TestEraResultInWholeCTC(t *testing.T) {

	acc := tracked("validator")
	v := acc[0].ID

	chain := newFakeChain()
	chain.activeEra[1] = 1
	chain.activeEra[2] = 1
	chain.set("Staking", "ErasValidatorReward", valueU(2_000_000_000_000_000_000), uint32(1))
	chain.set("Staking", "ErasRewardPoints", pointsValue(1, pointsPair(v, 1)), uint32(1))
	chain.set("Staking", "ErasStakersClipped", clippedValue(5, 5), uint32(1), v)

	res, err := NewEraReconstructor(chain, DefaultConfig()).RewardsViaEras(context.Background(), acc, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "2.0000", res["validator"].StringFixed(4))
}

func TestParseCommission(t *testing.T) {

	assert.InDelta(t, 0.1, parseCommission(prefsValue(100_000_000)), 1e-12)
	assert.Equal(t, 0.0, parseCommission(nil))
	assert.Equal(t, 1.0, parseCommission(prefsValue(5_000_000_000)))
}
