package rewards

import (
	"context"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"ctcbalance/accounts"
	"ctcbalance/value"
)

const (
	DEFAULT_VALIDATOR_CONCURRENCY = 20
	DEFAULT_BLOCK_CONCURRENCY     = 50
	DEFAULT_DATE_CONCURRENCY      = 2

	CTC_DECIMALS = 18

	// Perbill denominator of validator commission
	PERBILL = 1_000_000_000
)

// Method names the strategy that produced a window's figures
type Method string

const (
	METHOD_ERA  Method = "era"
	METHOD_SCAN Method = "scan"
	METHOD_NONE Method = "none"
)

// ErrEraUnavailable signals that the active era could not be read at one of the
// window's boundary blocks. Callers fall back to event scanning.
var ErrEraUnavailable = errors.New("active era unavailable")

// ErrExposureMissing signals an era with points but no readable exposure for
// any validator, as when a runtime no longer exposes the era's storage item
var ErrExposureMissing = errors.New("no validator exposure available")

// Chain is the node access the reconstructors need. Every call is expected to
// apply its own retry policy.
type Chain interface {
	BlockHash(ctx context.Context, n uint64) (types.Hash, error)
	FetchStorage(ctx context.Context, pallet, item string, keys []any, at types.Hash) (*value.Value, error)
	Events(ctx context.Context, at types.Hash) ([]value.Event, error)
}

// Config carries the fan-out limits of each phase
type Config struct {
	ValidatorConcurrency int `yaml:"validatorConcurrency"`
	BlockConcurrency     int `yaml:"blockConcurrency"`
	DateConcurrency      int `yaml:"dateConcurrency"`

	Decimals int32 `yaml:"decimals"`
}

func DefaultConfig() Config {
	return Config{
		ValidatorConcurrency: DEFAULT_VALIDATOR_CONCURRENCY,
		BlockConcurrency:     DEFAULT_BLOCK_CONCURRENCY,
		DateConcurrency:      DEFAULT_DATE_CONCURRENCY,
		Decimals:             CTC_DECIMALS,
	}
}

// withDefaults replaces non-positive limits so a zero Config still works
func (c Config) withDefaults() Config {

	d := DefaultConfig()

	if c.ValidatorConcurrency <= 0 {
		c.ValidatorConcurrency = d.ValidatorConcurrency
	}
	if c.BlockConcurrency <= 0 {
		c.BlockConcurrency = d.BlockConcurrency
	}
	if c.DateConcurrency <= 0 {
		c.DateConcurrency = d.DateConcurrency
	}
	if c.Decimals < 0 {
		c.Decimals = d.Decimals
	}

	return c
}

// Result maps every tracked account name to its reward in whole CTC
type Result map[string]decimal.Decimal

// NewResult returns a Result holding zero for every tracked account
func NewResult(tracked []accounts.TrackedAccount) Result {
	r := make(Result, len(tracked))
	for _, a := range tracked {
		r[a.Name] = decimal.Zero
	}
	return r
}

// Total sums the result across accounts
func (r Result) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range r {
		sum = sum.Add(v)
	}
	return sum
}

// accountIndex maps raw account ids to the names tracking them
type accountIndex map[[32]byte][]string

func indexAccounts(tracked []accounts.TrackedAccount) accountIndex {
	idx := make(accountIndex, len(tracked))
	for _, a := range tracked {
		idx[a.ID] = append(idx[a.ID], a.Name)
	}
	return idx
}
