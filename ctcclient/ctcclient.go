package ctcclient

import (
	"context"
	"sync"
	"time"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ctcbalance/metrics"
	"ctcbalance/util"
)

const (
	BLOCK_HASH_CACHE_TTL      = 2 * time.Hour
	BLOCK_HASH_CACHE_CAPACITY = 200000
)

// Client is a Creditcoin3 node connection. All calls are safe for concurrent use.
type Client struct {
	url   string
	api   *gsrpc.SubstrateAPI
	retry util.RetryPolicy

	metaLock sync.RWMutex
	meta     *types.Metadata

	eventRetriever retriever.EventRetriever

	blockHashes *ttlcache.Cache[uint64, types.Hash]

	genesisLock sync.Mutex
	genesisTS   int64

	Status *ChainStatus
}

// New connects to the node at url and loads the latest runtime metadata
func New(ctx context.Context, url string, retry util.RetryPolicy) (*Client, error) {

	retry.OnRetry = func(name string, _ error) {
		metrics.RpcRetriesByMethod.WithLabelValues(name).Inc()
	}

	c := &Client{
		url:    url,
		retry:  retry,
		Status: &ChainStatus{URL: url},
	}

	api, err := util.RetryValue(ctx, retry, "connect", func() (*gsrpc.SubstrateAPI, error) {
		return gsrpc.NewSubstrateAPI(url)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to connect to %s", url)
	}
	c.api = api

	meta, err := call(ctx, c, "state_getMetadata", c.api.RPC.State.GetMetadataLatest)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to fetch runtime metadata")
	}
	c.meta = meta

	// Resolves the metadata of each block's runtime version on its own
	c.eventRetriever, err = retriever.NewDefaultEventRetriever(state.NewEventProvider(api.RPC.State), api.RPC.State)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create event retriever")
	}

	c.blockHashes = ttlcache.New[uint64, types.Hash](
		ttlcache.WithTTL[uint64, types.Hash](BLOCK_HASH_CACHE_TTL),
		ttlcache.WithCapacity[uint64, types.Hash](BLOCK_HASH_CACHE_CAPACITY),
	)
	go c.blockHashes.Start()

	log.WithField("URL", url).Info("Connected to node")

	return c, nil
}

func (c *Client) URL() string {
	return c.url
}

// Close stops the block hash cache and closes the websocket when the transport
// supports it
func (c *Client) Close() {

	if c.blockHashes != nil {
		c.blockHashes.Stop()
	}

	if closer, ok := c.api.Client.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (c *Client) metadata() *types.Metadata {
	c.metaLock.RLock()
	defer c.metaLock.RUnlock()
	return c.meta
}

// RefreshMetadata reloads the latest runtime metadata, used after a runtime upgrade
func (c *Client) RefreshMetadata(ctx context.Context) error {

	meta, err := call(ctx, c, "state_getMetadata", c.api.RPC.State.GetMetadataLatest)
	if err != nil {
		return errors.Wrap(err, "Unable to refresh runtime metadata")
	}

	c.metaLock.Lock()
	c.meta = meta
	c.metaLock.Unlock()

	return nil
}

// call runs one node RPC under the retry policy, counting attempts and failures
func call[T any](ctx context.Context, c *Client, method string, fn func() (T, error)) (T, error) {

	res, err := util.RetryValue(ctx, c.retry, method, func() (T, error) {
		metrics.RpcRequestByMethod.WithLabelValues(method).Inc()
		return fn()
	})
	if err != nil {
		metrics.RpcFailuresByMethod.WithLabelValues(method).Inc()
	}

	return res, err
}
