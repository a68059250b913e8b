package rewards

import (
	"math/big"

	"ctcbalance/value"
)

// RewardPoints is an era's ErasRewardPoints
type RewardPoints struct {
	Total      uint64
	Individual []value.PointEntry
}

type NominatorStake struct {
	ID    [32]byte
	Stake *big.Int
}

// Exposure is the stake behind one validator in one era. Paged runtimes leave
// Nominators empty and report PageCount instead.
type Exposure struct {
	Total      *big.Int
	Own        *big.Int
	Nominators []NominatorStake
	PageCount  uint32
}

func parseRewardPoints(v *value.Value) (RewardPoints, bool) {

	total, ok := value.Uint64(fieldOf(v, "total"))
	if !ok {
		return RewardPoints{}, false
	}

	return RewardPoints{
		Total:      total,
		Individual: value.RewardPointEntries(fieldOf(v, "individual")),
	}, true
}

func parseExposure(v *value.Value) (Exposure, bool) {

	total, ok := value.U128(fieldOf(v, "total"))
	if !ok {
		return Exposure{}, false
	}

	own, ok := value.U128(fieldOf(v, "own"))
	if !ok {
		own = new(big.Int)
	}

	exp := Exposure{
		Total:      total,
		Own:        own,
		Nominators: parseNominators(fieldOf(v, "others")),
	}

	if pages, ok := value.Uint64(fieldOf(v, "page_count")); ok {
		exp.PageCount = uint32(pages)
	}

	return exp, true
}

// parseNominators reads a list of {who, value} records, or (who, value) pairs
func parseNominators(others *value.Value) []NominatorStake {

	var out []NominatorStake

	for _, item := range others.Children() {

		who, ok := value.NamedField(item, "who")
		if !ok {
			who, _ = value.Index(item, 0)
		}

		stake, ok := value.NamedField(item, "value")
		if !ok {
			stake, _ = value.Index(item, 1)
		}

		id, ok := value.AccountID(who)
		if !ok {
			continue
		}

		amount, ok := value.U128(stake)
		if !ok {
			continue
		}

		out = append(out, NominatorStake{ID: id, Stake: amount})
	}

	return out
}

// parseCommission reads ValidatorPrefs.commission as a ratio. Perbill may be a
// bare number or wrapped in newtype composites. Anything unreadable is 0.
func parseCommission(prefs *value.Value) float64 {

	c := fieldOf(prefs, "commission")

	for i := 0; c != nil && c.IsComposite() && i < 4; i++ {
		if value.Len(c) != 1 {
			return 0
		}
		c, _ = value.Index(c, 0)
	}

	parts, ok := value.Uint64(c)
	if !ok {
		return 0
	}

	ratio := float64(parts) / PERBILL
	if ratio > 1 {
		ratio = 1
	}

	return ratio
}

func fieldOf(v *value.Value, name string) *value.Value {
	f, _ := value.NamedField(v, name)
	return f
}

func toFloat(n *big.Int) float64 {
	if n == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}
