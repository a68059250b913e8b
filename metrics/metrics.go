package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var RpcRequestByMethod = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ctcbalance_rpc_requests_by_method",
		Help: "Node RPC requests by method",
	},
	[]string{"method"},
)

var RpcRetriesByMethod = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ctcbalance_rpc_retries_by_method",
		Help: "Node RPC retries by method",
	},
	[]string{"method"},
)

var RpcFailuresByMethod = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ctcbalance_rpc_failures_by_method",
		Help: "Node RPC calls that failed after all retries",
	},
	[]string{"method"},
)

// Reward windows completed, by the method that produced the figures (era, scan, none)
var RewardWindowsByMethod = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ctcbalance_reward_windows_by_method",
		Help: "Reward windows by reconstruction method",
	},
	[]string{"method"},
)

var BlocksScanned = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "ctcbalance_blocks_scanned",
		Help: "Blocks whose events were scanned for rewards",
	},
)

var HeuristicRewardMatches = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "ctcbalance_heuristic_reward_matches",
		Help: "Reward events attributed by textual or numeric matching",
	},
)

var ErasWithoutExposure = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "ctcbalance_eras_without_exposure",
		Help: "Eras where no scored validator had a readable exposure",
	},
)

var ExplorerRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ctcbalance_explorer_requests",
		Help: "Explorer API requests by endpoint and status",
	},
	[]string{"endpoint", "status"},
)

// - Version information of this binary
var Version = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ctcbalance_version",
		Help: "Version information of this binary",
	},
	[]string{"version"},
)
