package rewards

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"

	"ctcbalance/accounts"
	"ctcbalance/value"
)

// fakeChain serves storage and events from maps. Storage ignores the block hash
// except for ActiveEra, which is looked up per block.
type fakeChain struct {
	lock sync.Mutex

	activeEra map[uint64]uint32
	storage   map[string]*value.Value
	failing   map[string]bool

	events     map[uint64][]value.Event
	failBlocks map[uint64]bool

	calls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		activeEra:  make(map[uint64]uint32),
		storage:    make(map[string]*value.Value),
		failing:    make(map[string]bool),
		events:     make(map[uint64][]value.Event),
		failBlocks: make(map[uint64]bool),
	}
}

func hashOf(n uint64) types.Hash {
	var h types.Hash
	h[0] = 0xff
	binary.BigEndian.PutUint64(h[24:], n)
	return h
}

func blockOf(h types.Hash) uint64 {
	return binary.BigEndian.Uint64(h[24:])
}

func storageKey(pallet, item string, keys []any) string {
	return fmt.Sprintf("%s.%s%v", pallet, item, keys)
}

func (f *fakeChain) set(pallet, item string, v *value.Value, keys ...any) {
	f.storage[storageKey(pallet, item, keys)] = v
}

func (f *fakeChain) fail(pallet, item string, keys ...any) {
	f.failing[storageKey(pallet, item, keys)] = true
}

func (f *fakeChain) count() {
	f.lock.Lock()
	f.calls++
	f.lock.Unlock()
}

func (f *fakeChain) BlockHash(_ context.Context, n uint64) (types.Hash, error) {
	f.count()
	if f.failBlocks[n] {
		return types.Hash{}, errors.Errorf("block %d unavailable", n)
	}
	return hashOf(n), nil
}

func (f *fakeChain) FetchStorage(_ context.Context, pallet, item string, keys []any, at types.Hash) (*value.Value, error) {
	f.count()

	if pallet == "Staking" && item == "ActiveEra" {
		era, ok := f.activeEra[blockOf(at)]
		if !ok {
			return nil, nil
		}
		return value.NewNamed(value.F("index", value.NewUint(uint64(era)))), nil
	}

	k := storageKey(pallet, item, keys)
	if f.failing[k] {
		return nil, errors.Errorf("fetch %s failed", k)
	}

	return f.storage[k], nil
}

func (f *fakeChain) Events(_ context.Context, at types.Hash) ([]value.Event, error) {
	f.count()
	return f.events[blockOf(at)], nil
}

func testID(seed byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = seed + byte(i)
	}
	return id
}

func tracked(names ...string) []accounts.TrackedAccount {
	out := make([]accounts.TrackedAccount, len(names))
	for i, n := range names {
		out[i] = accounts.TrackedAccount{Name: n, ID: testID(byte(i+1) * 40)}
	}
	return out
}

// Builders in the shapes the node client produces

func valueU(n uint64) *value.Value {
	return value.NewUint(n)
}

func pointsValue(total uint64, pairs ...*value.Value) *value.Value {
	return value.NewNamed(
		value.F("total", value.NewUint(total)),
		value.F("individual", value.NewPositional(pairs...)),
	)
}

func pointsPair(id [32]byte, pts uint64) *value.Value {
	return value.NewPositional(value.NewAccount(id), value.NewUint(pts))
}

func prefsValue(perbill uint64) *value.Value {
	return value.NewNamed(
		value.F("commission", value.NewPositional(value.NewUint(perbill))),
		value.F("blocked", value.NewBool(false)),
	)
}

func stakeEntry(id [32]byte, stake uint64) *value.Value {
	return value.NewNamed(
		value.F("who", value.NewAccount(id)),
		value.F("value", value.NewUint(stake)),
	)
}

func clippedValue(total, own uint64, others ...*value.Value) *value.Value {
	return value.NewNamed(
		value.F("total", value.NewUint(total)),
		value.F("own", value.NewUint(own)),
		value.F("others", value.NewPositional(others...)),
	)
}

func overviewValue(total, own, pages uint64) *value.Value {
	return value.NewNamed(
		value.F("total", value.NewUint(total)),
		value.F("own", value.NewUint(own)),
		value.F("nominator_count", value.NewUint(0)),
		value.F("page_count", value.NewUint(pages)),
	)
}

func pageValue(total uint64, others ...*value.Value) *value.Value {
	return value.NewNamed(
		value.F("page_total", value.NewUint(total)),
		value.F("others", value.NewPositional(others...)),
	)
}

func rewardEvent(id [32]byte, amount uint64) value.Event {
	return value.Event{
		Pallet:  "Staking",
		Variant: "Rewarded",
		Fields: value.NewNamed(
			value.F("stash", value.NewAccount(id)),
			value.F("dest", value.NewUint(0)),
			value.F("amount", value.NewUint(amount)),
		),
	}
}
