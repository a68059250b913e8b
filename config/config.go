package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"ctcbalance/notifications"
	"ctcbalance/rewards"
	"ctcbalance/util"
	"ctcbalance/webserver"
)

const DEFAULT_DATA_DIR = "data"

type SubscanConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey"`
}

type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"baseDelay"`
}

type WebConfig struct {
	BindAddr string `yaml:"bindAddr"`
	BindPort int    `yaml:"bindPort"`
}

type Config struct {
	Network  string `yaml:"network"`
	NodeURL  string `yaml:"nodeUrl"`
	LocalRPC string `yaml:"localRpc"`
	DataDir  string `yaml:"dataDir"`

	// Name to SS58 address, merged under accounts given on the command line
	Accounts map[string]string `yaml:"accounts"`

	Subscan  SubscanConfig                `yaml:"subscan"`
	Rewards  rewards.Config               `yaml:"rewards"`
	Retry    RetryConfig                  `yaml:"retry"`
	Web      WebConfig                    `yaml:"web"`
	Telegram notifications.TelegramConfig `yaml:"telegram"`

	// Resolved from Network
	Constants *util.NetworkConstants `yaml:"-"`
}

// Default returns the configuration for network without any file applied
func Default(network string) (*Config, error) {

	nc, err := util.GetNetworkConstants(network)
	if err != nil {
		return nil, err
	}

	r := rewards.DefaultConfig()
	r.Decimals = nc.Decimals

	return &Config{
		Network: network,
		NodeURL: nc.NodeURL,
		DataDir: DEFAULT_DATA_DIR,
		Subscan: SubscanConfig{
			URL: nc.SubscanURL,
		},
		Rewards: r,
		Retry: RetryConfig{
			Attempts:  util.DEFAULT_RETRY_ATTEMPTS,
			BaseDelay: util.DEFAULT_RETRY_DELAY,
		},
		Web: WebConfig{
			BindAddr: webserver.DEFAULT_BIND_ADDR,
			BindPort: webserver.DEFAULT_BIND_PORT,
		},
		Constants: nc,
	}, nil
}

// Load applies the YAML file at path, if any, over the defaults of the chosen
// network. A non-empty network wins over the file's; with neither set the
// network is mainnet.
func Load(path, network string) (*Config, error) {

	var raw []byte

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to read config file")
		}
		raw = b
	}

	if network == "" {

		var peek struct {
			Network string `yaml:"network"`
		}
		if err := yaml.Unmarshal(raw, &peek); err != nil {
			return nil, errors.Wrap(err, "Unable to parse config file")
		}

		network = peek.Network
		if network == "" {
			network = util.NETWORK_MAINNET
		}
	}

	c, err := Default(network)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, errors.Wrap(err, "Unable to parse config file")
	}

	// The file may name another network; the resolved one stays
	c.Network = network

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) Validate() error {

	if c.NodeURL == "" {
		return errors.New("No node URL configured")
	}

	if c.Retry.Attempts < 1 {
		return errors.Errorf("Retry attempts must be at least 1, got %d", c.Retry.Attempts)
	}

	if c.Retry.BaseDelay < 0 {
		return errors.New("Retry delay cannot be negative")
	}

	if c.Web.BindPort < 0 || c.Web.BindPort > 65535 {
		return errors.Errorf("Invalid web port %d", c.Web.BindPort)
	}

	return nil
}

func (c *Config) RetryPolicy() util.RetryPolicy {
	return util.RetryPolicy{
		Attempts:  c.Retry.Attempts,
		BaseDelay: c.Retry.BaseDelay,
	}
}
