// Copyright 2023 The neon-proxy-go Authors
// This file is part of the neon-proxy-go library.
//
// The neon-proxy-go library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The neon-proxy-go library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the neon-proxy-go library. If not, see <http://www.gnu.org/licenses/>.

// Command neon-proxy runs the JSON-RPC gateway: the Mempool Scheduler,
// Executor Dispatch, Indexer, and the thin rpcapi facade, all as one
// process sharing one configuration file.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/neonlabsorg/neon-proxy-go/internal/config"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
)

var logger = nlog.New("neon-proxy")

// liveCursorInterval paces the live cursor's Tick calls; finalized/confirmed
// slots only advance every ~400ms of Solana block time, so ticking faster
// just burns RPC calls for no new data.
const liveCursorInterval = 400 * time.Millisecond

var configFlag = cli.StringFlag{
	Name:  "config",
	Usage: "path to the TOML configuration file; defaults are used for anything it omits",
}

func main() {
	app := cli.NewApp()
	app.Name = "neon-proxy"
	app.Usage = "Ethereum-compatible JSON-RPC gateway over the Neon EVM settlement program"
	app.Flags = []cli.Flag{configFlag}
	app.Action = runAction
	app.Commands = []cli.Command{holderCommand}

	if err := app.Run(os.Args); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func loadConfigFromFlag(c *cli.Context) (config.Config, error) {
	return config.Load(c.String(configFlag.Name))
}

// runAction builds every component and runs them until SIGINT/SIGTERM:
// the Mempool Scheduler and Operator Resource Manager live in
// one process alongside the Executor's worker pool, the Housekeeper's
// cooperative loop, the Indexer's live cursor, and the rpcapi facade.
func runAction(c *cli.Context) error {
	cfg, err := loadConfigFromFlag(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := build(cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	a.exec.Start(ctx)
	go a.housekeeper.Run(ctx, cfg.ConfirmCheckMsec)
	go runLiveCursor(ctx, a)
	go a.runReindexWorkers(ctx)

	srv := &http.Server{Addr: cfg.RPCListenAddr, Handler: a.rpc.Handler()}
	go func() {
		logger.Info("rpcapi listening", "addr", cfg.RPCListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpcapi server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	a.exec.Stop()
	a.housekeeper.Stop()
	_ = srv.Close()
	if a.feed != nil {
		_ = a.feed.Close()
	}
	_ = a.sql.Close()
	_ = a.cache.Close()
	return nil
}

// runLiveCursor ticks the Indexer's live cursor on a steady interval until
// ctx is cancelled.
func runLiveCursor(ctx context.Context, a *app) {
	ticker := time.NewTicker(liveCursorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.live.Tick(ctx); err != nil {
				logger.Warn("live cursor tick failed", "err", err)
			}
		}
	}
}
