package util

import (
	"fmt"
	"strings"
	"time"
)

const (
	NETWORK_MAINNET = "mainnet"
	NETWORK_LOCAL   = "local"

	DATE_FORMAT = "2006-01-02"
)

type NetworkConstants struct {
	NodeURL     string
	SubscanURL  string
	GenesisDate string
	BlockTime   time.Duration
	Decimals    int32
	SS58Prefix  uint16

	// Blocks per day at BlockTime, used to close the last reward window
	BlocksPerDay uint64
}

func GetNetworkConstants(network string) (*NetworkConstants, error) {

	switch network {
	case NETWORK_MAINNET:
		return &NetworkConstants{
			NodeURL:      "wss://mainnet3.creditcoin.network",
			SubscanURL:   "https://creditcoin.api.subscan.io",
			GenesisDate:  "2024-08-29",
			BlockTime:    15 * time.Second,
			Decimals:     18,
			SS58Prefix:   42,
			BlocksPerDay: 5760,
		}, nil

	// Archive node of mainnet running on this machine
	case NETWORK_LOCAL:
		return &NetworkConstants{
			NodeURL:      "ws://127.0.0.1:9944",
			SubscanURL:   "https://creditcoin.api.subscan.io",
			GenesisDate:  "2024-08-29",
			BlockTime:    15 * time.Second,
			Decimals:     18,
			SS58Prefix:   42,
			BlocksPerDay: 5760,
		}, nil
	}

	// Unknown network
	return nil, fmt.Errorf("No such network '%s' exists", network)
}

// GenesisTime parses GenesisDate as midnight UTC
func (n *NetworkConstants) GenesisTime() time.Time {
	t, _ := time.Parse(DATE_FORMAT, n.GenesisDate)
	return t
}

func IsValidNetwork(maybeNetwork string) bool {
	return maybeNetwork == NETWORK_MAINNET || maybeNetwork == NETWORK_LOCAL
}

func AvailableNetworks() string {
	return strings.Join([]string{NETWORK_MAINNET, NETWORK_LOCAL}, ",")
}
