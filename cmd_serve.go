package main

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"ctcbalance/accounts"
	"ctcbalance/ctcclient"
	"ctcbalance/webserver"
)

func newCmd_Serve() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the stored history over a read-only JSON API",
		Flags: append(accountFlags(),
			&cli.StringFlag{
				Name:  "webuiaddr",
				Usage: "Address on which to bind the API server",
			},
			&cli.IntFlag{
				Name:  "webuiport",
				Usage: "Port on which to bind the API server",
			},
		),
		Action: func(c *cli.Context) error {
			return server.serve(c)
		},
	}
}

func (s *CtcBalanceServer) serve(c *cli.Context) error {

	ctx := c.Context

	if err := s.openStorage(); err != nil {
		return err
	}

	// Accounts are optional here, they only feed /api/accounts
	tracked, _, err := loadAccounts(c, s.config)
	if err != nil {
		log.WithError(err).Warn("No accounts loaded")
		tracked = []accounts.TrackedAccount{}
	}

	bindAddr, bindPort := s.config.Web.BindAddr, s.config.Web.BindPort
	if c.IsSet("webuiaddr") {
		bindAddr = c.String("webuiaddr")
	}
	if c.IsSet("webuiport") {
		bindPort = c.Int("webuiport")
	}

	status := &ctcclient.ChainStatus{URL: s.config.NodeURL}

	client, err := s.connect(ctx, s.config.NodeURL)
	if err != nil {
		log.WithError(err).Warn("Serving without a node connection")
		status.SetError(err)
	} else {
		defer client.Close()
		status = client.Status
	}

	var wg sync.WaitGroup

	ws := webserver.New(webserver.Args{
		Store:    s.storage,
		Accounts: tracked,
		Status:   status,
		BindAddr: bindAddr,
		BindPort: bindPort,
	})
	ws.Start(s.shutdownChannel, &wg)

	if client != nil {
		wg.Add(1)
		go s.watchHead(client, &wg)
	}

	wg.Wait()

	return nil
}

// watchHead keeps the reported head current until shutdown
func (s *CtcBalanceServer) watchHead(client *ctcclient.Client, wg *sync.WaitGroup) {

	defer wg.Done()

	ticker := time.NewTicker(s.config.Constants.BlockTime * 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := client.LatestBlockNumber(ctx); err != nil {
				log.WithError(err).Warn("Unable to refresh head")
				client.Status.SetError(err)
			} else {
				client.Status.ClearError()
			}
			cancel()

		case <-s.shutdownChannel:
			return
		}
	}
}
