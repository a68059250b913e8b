package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"ctcbalance/rewards"
)

const (
	QUERY_ERA  = "era"
	QUERY_SCAN = "scan"
	QUERY_AUTO = "auto"
)

func newCmd_Rewards() *cli.Command {
	return &cli.Command{
		Name:  "rewards",
		Usage: "Compute staking rewards for a block range and print them",
		Flags: append(accountFlags(),
			&cli.Uint64Flag{
				Name:     "start-block",
				Usage:    "First block of the window",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:     "end-block",
				Usage:    "Last block of the window, inclusive",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "method",
				Usage: "era, scan, or auto (era with scan fallback)",
				Value: QUERY_AUTO,
			},
			&cli.StringFlag{
				Name:  "rpc",
				Usage: "Node URL, defaults to the network's",
			},
		),
		Action: func(c *cli.Context) error {
			return server.rewards(c)
		},
	}
}

func (s *CtcBalanceServer) rewards(c *cli.Context) error {

	ctx := c.Context

	start, end := c.Uint64("start-block"), c.Uint64("end-block")
	if end < start {
		return errors.Errorf("End block %d is before start block %d", end, start)
	}

	method := c.String("method")
	if method != QUERY_ERA && method != QUERY_SCAN && method != QUERY_AUTO {
		return errors.Errorf("Unknown method '%s'", method)
	}

	tracked, _, err := loadAccounts(c, s.config)
	if err != nil {
		return err
	}

	url := c.String("rpc")
	if url == "" {
		url = s.config.NodeURL
	}

	client, err := s.connect(ctx, url)
	if err != nil {
		return errors.Wrap(err, "Unable to connect to node")
	}
	defer client.Close()

	var (
		res  rewards.Result
		used = rewards.Method(method)
	)

	switch method {
	case QUERY_ERA:
		res, err = rewards.NewEraReconstructor(client, s.config.Rewards).RewardsViaEras(ctx, tracked, start, end)
	case QUERY_SCAN:
		res, err = rewards.NewEventScanner(client, s.config.Rewards).RewardsViaEventScan(ctx, tracked, start, end)
	default:
		res, used, err = rewards.NewTracker(client, s.config.Rewards).Rewards(ctx, tracked, start, end)
	}

	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"StartBlock": start, "EndBlock": end, "Method": used}).Info("Rewards computed")

	for _, a := range tracked {
		f, _ := res[a.Name].Float64()
		fmt.Printf("%-20s %s CTC\n", a.Name, humanize.CommafWithDigits(f, 4))
	}
	total, _ := res.Total().Float64()
	fmt.Printf("%-20s %s CTC\n", "total", humanize.CommafWithDigits(total, 4))

	return nil
}
