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

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/opresource"
	"github.com/neonlabsorg/neon-proxy-go/sender"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
)

// holderCommand is the admin CLI's holder-account tooling: list every
// registered operator resource, or create/delete one resource's holder
// account on chain.
var holderCommand = cli.Command{
	Name:        "holder",
	Usage:       "inspect or manage operator holder accounts",
	Description: "list registered operator resources, or create/delete a holder account for one",
	Subcommands: []cli.Command{
		holderListCommand,
		holderCreateCommand,
		holderDeleteCommand,
	},
}

var holderListCommand = cli.Command{
	Name:   "list",
	Usage:  "list every registered operator resource",
	Action: holderListAction,
	Flags:  []cli.Flag{configFlag},
}

var resourceIDFlag = cli.StringFlag{
	Name:  "resource-id",
	Usage: "resource id as reported by 'holder list'",
}

var holderCreateCommand = cli.Command{
	Name:   "create",
	Usage:  "create the holder account for one registered resource",
	Action: holderCreateAction,
	Flags:  []cli.Flag{configFlag, resourceIDFlag},
}

var holderDeleteCommand = cli.Command{
	Name:   "delete",
	Usage:  "delete the holder account for one registered resource",
	Action: holderDeleteAction,
	Flags:  []cli.Flag{configFlag, resourceIDFlag},
}

func holderListAction(c *cli.Context) error {
	cfg, err := loadConfigFromFlag(c)
	if err != nil {
		return err
	}
	a, err := build(cfg)
	if err != nil {
		return err
	}
	for _, res := range a.resources.List() {
		fmt.Printf("%s\tsigner=%s\tholder=%s\tstate=%s\n", res.ResourceID, res.Signer.String(), res.Holder.String(), res.State())
	}
	return nil
}

func findResource(a *app, resourceID string) (*opresource.OpRes, error) {
	for _, res := range a.resources.List() {
		if res.ResourceID == resourceID {
			return res, nil
		}
	}
	return nil, fmt.Errorf("unknown operator resource %q", resourceID)
}

// holderSeed derives the deterministic holder seed: one fixed seed per
// resource, since this module registers exactly one holder per resource
// rather than a signer-relative holder index.
func holderSeed(resourceID string) string {
	return "holder-" + resourceID
}

func holderCreateAction(c *cli.Context) error {
	cfg, err := loadConfigFromFlag(c)
	if err != nil {
		return err
	}
	a, err := build(cfg)
	if err != nil {
		return err
	}
	res, err := findResource(a, c.String(resourceIDFlag.Name))
	if err != nil {
		return err
	}

	ctx := context.Background()
	acc, err := a.chain.GetAccount(ctx, res.Holder, common.Confirmed)
	if err != nil {
		return fmt.Errorf("check existing holder account: %w", err)
	}
	if acc != nil {
		return fmt.Errorf("holder account %s already exists", res.Holder.String())
	}

	builder := txcodec.NewBuilder(res.Signer, res.Holder, a.evmProgram, a.altProgram)
	ix := builder.HolderCreate(holderSeed(res.ResourceID), cfg.HolderSize)
	tx := txcodec.NewSTx(common.Hash{}, []txcodec.Instruction{ix})
	snd := sender.New(a.chain, sender.Config{
		RetryOnFail:       cfg.RetryOnFail,
		ConfirmTimeout:    cfg.ConfirmTimeoutSec,
		ConfirmCheckEvery: cfg.ConfirmCheckMsec,
		MinCommitForDone:  mustParseCommit(cfg.MinCommitForDone),
	}, a.keys.signerFor)

	if _, err := snd.Send(ctx, []*txcodec.STx{tx}); err != nil {
		return fmt.Errorf("send holder-create tx: %w", err)
	}
	fmt.Printf("holder account %s created for resource %s\n", res.Holder.String(), res.ResourceID)
	return nil
}

func holderDeleteAction(c *cli.Context) error {
	cfg, err := loadConfigFromFlag(c)
	if err != nil {
		return err
	}
	a, err := build(cfg)
	if err != nil {
		return err
	}
	res, err := findResource(a, c.String(resourceIDFlag.Name))
	if err != nil {
		return err
	}

	ctx := context.Background()
	acc, err := a.chain.GetAccount(ctx, res.Holder, common.Confirmed)
	if err != nil {
		return fmt.Errorf("check existing holder account: %w", err)
	}
	if acc == nil {
		return fmt.Errorf("holder account %s does not exist", res.Holder.String())
	}

	builder := txcodec.NewBuilder(res.Signer, res.Holder, a.evmProgram, a.altProgram)
	ix := builder.HolderDelete()
	tx := txcodec.NewSTx(common.Hash{}, []txcodec.Instruction{ix})
	snd := sender.New(a.chain, sender.Config{
		RetryOnFail:       cfg.RetryOnFail,
		ConfirmTimeout:    cfg.ConfirmTimeoutSec,
		ConfirmCheckEvery: cfg.ConfirmCheckMsec,
		MinCommitForDone:  mustParseCommit(cfg.MinCommitForDone),
	}, a.keys.signerFor)

	if _, err := snd.Send(ctx, []*txcodec.STx{tx}); err != nil {
		return fmt.Errorf("send holder-delete tx: %w", err)
	}
	fmt.Printf("holder account %s deleted for resource %s\n", res.Holder.String(), res.ResourceID)
	return nil
}
