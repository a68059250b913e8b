package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"ctcbalance/accounts"
	"ctcbalance/config"
	"ctcbalance/ctcclient"
	"ctcbalance/metrics"
	"ctcbalance/storage"
	"ctcbalance/util"
)

var (
	version    = "dev"
	commitHash = ""

	server *CtcBalanceServer
)

type CtcBalanceServer struct {
	config  *config.Config
	storage *storage.Storage

	shutdownChannel chan interface{}

	// Opens node connections, ctcclient.New unless replaced
	dial func(ctx context.Context, url string, retry util.RetryPolicy) (*ctcclient.Client, error)
}

func main() {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server = &CtcBalanceServer{
		shutdownChannel: setupCloseChannel(),
		dial:            ctcclient.New,
	}

	// Cancel in-flight work on shutdown
	go func() {
		select {
		case <-server.shutdownChannel:
			log.Warn("Shutting things down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	app := &cli.App{
		Name:    "ctcbalance",
		Usage:   "Track Creditcoin3 wallet balances and staking rewards",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"CTCBALANCE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "Which network to use: " + util.AvailableNetworks(),
			},
			&cli.StringFlag{
				Name:  "datadir",
				Usage: "Location of database",
			},
			&cli.StringFlag{
				Name:  "logfile",
				Usage: "Also write logs to this file",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug-level logging",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "Enable trace-level logging",
			},
		},
		Before: server.setup,
		After: func(c *cli.Context) error {
			server.close()
			return nil
		},
		Commands: []*cli.Command{
			newCmd_Track(),
			newCmd_Rewards(),
			newCmd_Serve(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.WithError(err).Fatal("ctcbalance failed")
	}

	closeLogging()
}

// setup runs before every command: logging, then configuration
func (s *CtcBalanceServer) setup(c *cli.Context) error {

	if err := setupLogging(c.Bool("debug"), c.Bool("trace"), c.String("logfile")); err != nil {
		return err
	}

	network := c.String("network")
	if network != "" && !util.IsValidNetwork(network) {
		return errors.Errorf("Unknown network: %s", network)
	}

	cfg, err := config.Load(c.String("config"), network)
	if err != nil {
		return errors.Wrap(err, "Unable to load configuration")
	}

	if dir := c.String("datadir"); dir != "" {
		cfg.DataDir = dir
	}

	s.config = cfg

	metrics.Version.WithLabelValues(version).Set(1)

	log.Infof("=== ctcbalance %s (%s) ===", version, commitHash)
	log.Infof("=== Network: %s ===", cfg.Network)

	return nil
}

func (s *CtcBalanceServer) openStorage() error {

	db, err := storage.InitStorage(s.config.DataDir, s.config.Network)
	if err != nil {
		return errors.Wrap(err, "Could not open storage")
	}
	s.storage = db

	return nil
}

func (s *CtcBalanceServer) close() {

	if s.storage != nil {
		s.storage.Close()
		s.storage = nil
	}
}

// connect opens a node client and records the chain it serves on its status
func (s *CtcBalanceServer) connect(ctx context.Context, url string) (*ctcclient.Client, error) {

	dial := s.dial
	if dial == nil {
		dial = ctcclient.New
	}

	client, err := dial(ctx, url, s.config.RetryPolicy())
	if err != nil {
		return nil, err
	}

	info, err := client.ChainInfo(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	client.Status.SetChain(info)

	log.WithFields(log.Fields{"URL": url, "Chain": info.String()}).Info("Node ready")

	return client, nil
}

func accountFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Accounts file of 'Name = Address' lines",
		},
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "Single wallet address",
		},
		&cli.StringFlag{
			Name:    "name",
			Aliases: []string{"n"},
			Usage:   "Name for the single wallet",
			Value:   "wallet",
		},
	}
}

// loadAccounts returns the validated accounts and a name for the output files.
// A file wins over --address, which wins over accounts in the configuration.
func loadAccounts(c *cli.Context, cfg *config.Config) ([]accounts.TrackedAccount, string, error) {

	if path := c.String("file"); path != "" {
		tracked, err := accounts.Load(path)
		return tracked, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), err
	}

	if address := c.String("address"); address != "" {
		name := c.String("name")
		tracked, err := accounts.New(map[string]string{name: address})
		return tracked, name, err
	}

	if len(cfg.Accounts) > 0 {
		tracked, err := accounts.New(cfg.Accounts)
		return tracked, "accounts", err
	}

	return nil, "", errors.New("Either --file or --address must be specified")
}

func setupCloseChannel() chan interface{} {

	// Create channels for signals
	signalChan := make(chan os.Signal, 1)
	closingChan := make(chan interface{}, 1)

	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChan
		close(closingChan)
	}()

	return closingChan
}
