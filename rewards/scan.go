package rewards

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ctcbalance/accounts"
	"ctcbalance/metrics"
	"ctcbalance/util"
	"ctcbalance/value"
)

// Events from these pallets and variants carry staking payouts
var (
	rewardPallets  = map[string]bool{"Staking": true, "StakingReward": true, "Rewards": true, "Creditstaking": true}
	rewardVariants = map[string]bool{"Rewarded": true, "Reward": true}

	amountFields = []string{"amount", "reward", "value"}
)

// Numbers this small are indices or enum tags, not planck amounts
const MIN_HEURISTIC_AMOUNT = 1000

// EventScanner attributes reward events found block by block
type EventScanner struct {
	chain  Chain
	config Config
}

func NewEventScanner(chain Chain, config Config) *EventScanner {
	return &EventScanner{
		chain:  chain,
		config: config.withDefaults(),
	}
}

// EventCredit is one tracked account's amount from one event. Heuristic credits
// were matched by searching the event's rendering rather than its fields.
type EventCredit struct {
	Name      string
	Amount    *big.Int
	Heuristic bool
}

// RewardsViaEventScan sums reward events for the tracked accounts across every
// block in [startBlock, endBlock]. Blocks that cannot be fetched contribute
// nothing.
func (s *EventScanner) RewardsViaEventScan(ctx context.Context, tracked []accounts.TrackedAccount, startBlock, endBlock uint64) (Result, error) {

	res := NewResult(tracked)
	if endBlock < startBlock {
		return res, nil
	}

	count := endBlock - startBlock + 1
	perBlock := make([][]EventCredit, count)

	g := new(errgroup.Group)
	g.SetLimit(s.config.BlockConcurrency)

	for n := startBlock; n <= endBlock; n++ {

		n := n

		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			perBlock[n-startBlock] = s.scanBlock(ctx, n, tracked)
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return NewResult(tracked), errors.Wrap(err, "Event scan cancelled")
	}

	sums := make(map[string]*big.Int, len(tracked))
	for _, credits := range perBlock {
		for _, c := range credits {
			if sums[c.Name] == nil {
				sums[c.Name] = new(big.Int)
			}
			sums[c.Name].Add(sums[c.Name], c.Amount)
		}
	}

	for name, sum := range sums {
		res[name] = util.FromPlanck(sum, s.config.Decimals)
	}

	return res, nil
}

func (s *EventScanner) scanBlock(ctx context.Context, n uint64, tracked []accounts.TrackedAccount) []EventCredit {

	hash, err := s.chain.BlockHash(ctx, n)
	if err != nil {
		log.WithError(err).WithField("Block", n).Debug("Skipping block")
		return nil
	}

	events, err := s.chain.Events(ctx, hash)
	if err != nil {
		log.WithError(err).WithField("Block", n).Debug("Skipping block, no events")
		return nil
	}

	metrics.BlocksScanned.Inc()

	var out []EventCredit
	for _, ev := range events {
		for _, c := range ExtractRewardCredits(ev, tracked) {
			if c.Heuristic {
				metrics.HeuristicRewardMatches.Inc()
				log.WithFields(log.Fields{
					"Block": n, "Account": c.Name, "Amount": c.Amount.String(),
					"Event": ev.Pallet + "." + ev.Variant,
				}).Debug("Reward matched heuristically")
			}
			out = append(out, c)
		}
	}

	return out
}

// IsRewardEvent reports whether pallet.variant is a staking payout
func IsRewardEvent(pallet, variant string) bool {
	return rewardPallets[pallet] && rewardVariants[variant]
}

// ExtractRewardCredits returns the credits a single event owes tracked accounts.
// Structured extraction reads a {stash, amount|reward|value} record or an
// (account, amount, ...) tuple. Only when no account id can be read that way is
// the event searched for each tracked account's address, hex id, or raw bytes.
func ExtractRewardCredits(ev value.Event, tracked []accounts.TrackedAccount) []EventCredit {

	if !IsRewardEvent(ev.Pallet, ev.Variant) {
		return nil
	}

	if id, amount, ok := structuredReward(ev.Fields); ok {

		if amount == nil {
			return nil
		}

		var out []EventCredit
		for _, a := range tracked {
			if a.ID == id {
				out = append(out, EventCredit{Name: a.Name, Amount: new(big.Int).Set(amount)})
			}
		}
		return out
	}

	return heuristicReward(ev.Fields, tracked)
}

// structuredReward returns the rewarded account, and the amount when one can be
// read. ok is false when no account id could be extracted.
func structuredReward(fields *value.Value) ([32]byte, *big.Int, bool) {

	if fields == nil {
		return [32]byte{}, nil, false
	}

	switch fields.Kind {
	case value.Named:
		stash, ok := value.NamedField(fields, "stash")
		if !ok {
			break
		}
		id, ok := value.AccountID(stash)
		if !ok {
			break
		}
		return id, namedAmount(fields), true

	case value.Positional:
		if value.Len(fields) < 2 {
			break
		}
		first, _ := value.Index(fields, 0)
		id, ok := value.AccountID(first)
		if !ok {
			break
		}
		second, _ := value.Index(fields, 1)
		amount, _ := value.U128(second)
		return id, amount, true
	}

	return [32]byte{}, nil, false
}

func namedAmount(fields *value.Value) *big.Int {
	for _, name := range amountFields {
		if f, ok := value.NamedField(fields, name); ok {
			if n, ok := value.U128(f); ok {
				return n
			}
		}
	}
	return nil
}

// heuristicReward is the last resort for events whose shape is not understood.
// The SS58 match only fires on text fields. Byte arrays render as hex in the
// debug form, so the hex match also covers raw account ids.
func heuristicReward(fields *value.Value, tracked []accounts.TrackedAccount) []EventCredit {

	if fields == nil {
		return nil
	}

	rendered := fields.String()
	lowered := strings.ToLower(rendered)
	children := fields.Children()
	flat := value.Numbers(fields)

	var out []EventCredit
	for _, a := range tracked {

		matched := (a.Address != "" && strings.Contains(rendered, a.Address)) ||
			strings.Contains(lowered, hex.EncodeToString(a.ID[:])) ||
			containsID(flat, a.ID)

		if !matched {
			continue
		}

		amount := heuristicAmount(fields, children, flat)
		if amount == nil {
			log.WithField("Account", a.Name).Debug("Matched reward event without a readable amount")
			continue
		}

		out = append(out, EventCredit{Name: a.Name, Amount: amount, Heuristic: true})
	}

	return out
}

func heuristicAmount(fields *value.Value, children []*value.Value, flat []*big.Int) *big.Int {

	if n := namedAmount(fields); n != nil {
		return n
	}

	if fields.Kind == value.Positional && len(children) >= 2 {
		if n, ok := value.U128(children[1]); ok {
			return n
		}
	}

	var last *big.Int
	limit := big.NewInt(MIN_HEURISTIC_AMOUNT)
	for _, n := range flat {
		if n.Cmp(limit) > 0 {
			last = n
		}
	}

	if last == nil {
		return nil
	}

	return new(big.Int).Set(last)
}

// containsID looks for the id's 32 bytes as a contiguous run of numbers
func containsID(numbers []*big.Int, id [32]byte) bool {

	for i := 0; i+len(id) <= len(numbers); i++ {

		match := true
		for j, b := range id {
			n := numbers[i+j]
			if !n.IsUint64() || n.Uint64() != uint64(b) {
				match = false
				break
			}
		}

		if match {
			return true
		}
	}

	return false
}
