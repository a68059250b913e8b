package ctcclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ctcbalance/value"
)

const (
	// Blocks either side of the estimated block searched for a timestamp
	SEARCH_WINDOW = 20000

	DEFAULT_TIMESTAMP_TOLERANCE = 60 * time.Second
)

// BlockInfo is the block chosen for a calendar date
type BlockInfo struct {
	Block uint64 `json:"block"`
	Hash  string `json:"hash"`
}

// AccountBalance is the System.Account data of an account, in planck
type AccountBalance struct {
	Free     *big.Int
	Reserved *big.Int
	Frozen   *big.Int
}

type ChainInfo struct {
	Chain       string `json:"chain"`
	SpecVersion uint32 `json:"specVersion"`
	TxVersion   uint32 `json:"txVersion"`
	GenesisHash string `json:"genesisHash"`
}

func (i ChainInfo) String() string {
	return fmt.Sprintf("%s v%d.%d", i.Chain, i.SpecVersion, i.TxVersion)
}

// BlockHash returns the hash of block n; numbers past the head are an error
func (c *Client) BlockHash(ctx context.Context, n uint64) (types.Hash, error) {

	if item := c.blockHashes.Get(n); item != nil {
		return item.Value(), nil
	}

	hash, err := call(ctx, c, "chain_getBlockHash", func() (types.Hash, error) {
		return c.api.RPC.Chain.GetBlockHash(n)
	})
	if err != nil {
		return types.Hash{}, errors.Wrapf(err, "Unable to fetch hash of block %d", n)
	}

	if hash == (types.Hash{}) {
		return types.Hash{}, errors.Errorf("Block %d not found", n)
	}

	c.blockHashes.Set(n, hash, ttlcache.DefaultTTL)

	return hash, nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {

	header, err := call(ctx, c, "chain_getHeader", c.api.RPC.Chain.GetHeaderLatest)
	if err != nil {
		return 0, errors.Wrap(err, "Unable to fetch latest header")
	}

	c.Status.SetHead(uint64(header.Number))

	return uint64(header.Number), nil
}

// Timestamp returns the block's Timestamp.Now in unix seconds
func (c *Client) Timestamp(ctx context.Context, at types.Hash) (int64, error) {

	v, err := c.FetchStorage(ctx, "Timestamp", "Now", nil, at)
	if err != nil {
		return 0, err
	}

	ms, ok := value.Uint64(v)
	if !ok {
		return 0, errors.Errorf("No timestamp at block %s", at.Hex())
	}

	return int64(ms / 1000), nil
}

// GenesisTimestamp is the timestamp of block 1, block 0 carries none
func (c *Client) GenesisTimestamp(ctx context.Context) (int64, error) {

	c.genesisLock.Lock()
	defer c.genesisLock.Unlock()

	if c.genesisTS != 0 {
		return c.genesisTS, nil
	}

	hash, err := c.BlockHash(ctx, 1)
	if err != nil {
		return 0, err
	}

	ts, err := c.Timestamp(ctx, hash)
	if err != nil {
		return 0, err
	}
	c.genesisTS = ts

	return ts, nil
}

// FindBlockAtTimestamp binary searches for a block whose timestamp lies within
// tolerance of target (unix seconds). When none does, the closest block seen is
// returned.
func (c *Client) FindBlockAtTimestamp(ctx context.Context, target int64, tolerance time.Duration, blockTime time.Duration) (BlockInfo, error) {

	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return BlockInfo{}, err
	}

	genesis, err := c.GenesisTimestamp(ctx)
	if err != nil {
		return BlockInfo{}, errors.Wrap(err, "Unable to fetch genesis timestamp")
	}

	var estimate uint64
	if target > genesis {
		estimate = uint64(target-genesis) / uint64(blockTime/time.Second)
	}

	lookup := func(n uint64) (types.Hash, int64, error) {
		hash, err := c.BlockHash(ctx, n)
		if err != nil {
			return hash, 0, err
		}
		ts, err := c.Timestamp(ctx, hash)
		return hash, ts, err
	}

	return searchBlock(lookup, latest, estimate, target, int64(tolerance/time.Second))
}

func searchBlock(lookup func(uint64) (types.Hash, int64, error), latest, estimate uint64, target, tolerance int64) (BlockInfo, error) {

	var low uint64
	if estimate > SEARCH_WINDOW {
		low = estimate - SEARCH_WINDOW
	}

	high := estimate + SEARCH_WINDOW
	if high > latest {
		high = latest
	}

	var (
		best     BlockInfo
		bestDiff int64 = -1
	)

	for low <= high {

		mid := (low + high) / 2

		hash, ts, err := lookup(mid)
		if err != nil {
			return BlockInfo{}, err
		}

		diff := ts - target
		if diff < 0 {
			diff = -diff
		}

		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			best = BlockInfo{Block: mid, Hash: hash.Hex()}
		}

		if diff <= tolerance {
			return best, nil
		}

		if ts < target {
			low = mid + 1
		} else {
			if mid == 0 {
				break
			}
			high = mid - 1
		}
	}

	if bestDiff < 0 {
		return BlockInfo{}, errors.Errorf("No blocks between %d and %d to search", low, high)
	}

	return best, nil
}

// HasEvents reports whether the node can serve events for block n. Pruned nodes
// fail for blocks older than their history.
func (c *Client) HasEvents(ctx context.Context, n uint64) bool {

	hash, err := c.BlockHash(ctx, n)
	if err != nil {
		return false
	}

	_, err = c.Events(ctx, hash)

	return err == nil
}

// FirstBlockWithEvents returns 0 for a full archive node, otherwise the first
// block it still holds events for
func (c *Client) FirstBlockWithEvents(ctx context.Context) (uint64, error) {

	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	first := firstAvailable(func(n uint64) bool { return c.HasEvents(ctx, n) }, latest)

	c.Status.SetFirstBlock(first)
	log.WithFields(log.Fields{
		"URL": c.url, "FirstBlock": first,
	}).Info("Detected node history")

	return first, nil
}

func firstAvailable(has func(uint64) bool, latest uint64) uint64 {

	if has(0) && has(1) {
		return 0
	}

	low, high := uint64(0), latest
	for low < high {

		mid := (low + high) / 2
		if mid == 0 {
			low = 1
			continue
		}

		if has(mid) {
			high = mid
		} else {
			low = mid + 1
		}
	}

	return low
}

// Balance reads System.Account for id. Accounts that do not exist have zero balance.
func (c *Client) Balance(ctx context.Context, id [32]byte, at types.Hash) (AccountBalance, error) {

	bal := AccountBalance{
		Free:     new(big.Int),
		Reserved: new(big.Int),
		Frozen:   new(big.Int),
	}

	v, err := c.FetchStorage(ctx, "System", "Account", []any{id}, at)
	if err != nil {
		return bal, err
	}

	data, ok := value.NamedField(v, "data")
	if !ok {
		return bal, nil
	}

	if n, ok := value.U128(fieldOf(data, "free")); ok {
		bal.Free = n
	}
	if n, ok := value.U128(fieldOf(data, "reserved")); ok {
		bal.Reserved = n
	}
	if n, ok := value.U128(fieldOf(data, "frozen")); ok {
		bal.Frozen = n
	}

	return bal, nil
}

func fieldOf(v *value.Value, name string) *value.Value {
	f, _ := value.NamedField(v, name)
	return f
}

func (c *Client) ChainInfo(ctx context.Context) (ChainInfo, error) {

	chain, err := call(ctx, c, "system_chain", c.api.RPC.System.Chain)
	if err != nil {
		return ChainInfo{}, errors.Wrap(err, "Unable to fetch chain name")
	}

	rv, err := call(ctx, c, "state_getRuntimeVersion", c.api.RPC.State.GetRuntimeVersionLatest)
	if err != nil {
		return ChainInfo{}, errors.Wrap(err, "Unable to fetch runtime version")
	}

	genesis, err := c.BlockHash(ctx, 0)
	if err != nil {
		return ChainInfo{}, err
	}

	info := ChainInfo{
		Chain:       string(chain),
		SpecVersion: uint32(rv.SpecVersion),
		TxVersion:   uint32(rv.TransactionVersion),
		GenesisHash: genesis.Hex(),
	}

	c.Status.SetChain(info)

	return info, nil
}
