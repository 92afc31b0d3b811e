// Copyright (C) 2024 The serialsync Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command serialsync is the CLI shell: a development/test harness for
// running a peer over a TCP ByteLink, plus standalone subcommands that
// exercise the Manifest Engine and ChangeSet diff without a connection.
package main

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	_ "go.uber.org/automaxprocs"

	"github.com/nullmodem/serialsync/internal/bytelink"
	"github.com/nullmodem/serialsync/internal/eventbus"
	"github.com/nullmodem/serialsync/internal/logger"
	"github.com/nullmodem/serialsync/internal/manifest"
	"github.com/nullmodem/serialsync/internal/osutil"
	"github.com/nullmodem/serialsync/internal/peer"
)

// stopGrace bounds how long serve waits for an in-flight sync session to
// unwind after a shutdown signal.
const stopGrace = 2 * time.Second

var log = logger.Default

func main() {
	app := cli.NewApp()
	app.Name = "serialsync"
	app.Usage = "P2P file sync over a framed serial link"
	app.Version = "0.1.0"
	app.HideHelp = true

	app.Commands = []cli.Command{
		serveCommand,
		manifestCommand,
		diffCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Warnf("%v", err)
		os.Exit(1)
	}
}

var serveCommand = cli.Command{
	Name:  "serve",
	Usage: "run a peer over TCP, dialing or listening",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "listen", Usage: "address to listen on, e.g. :22000"},
		cli.StringFlag{Name: "dial", Usage: "address to dial, e.g. host:22000"},
		cli.StringFlag{Name: "root", Usage: "sync folder root", Value: "."},
		cli.BoolFlag{Name: "gitignore", Usage: "respect .gitignore during manifest scans"},
		cli.BoolFlag{Name: "quick", Usage: "quick mode: skip content hashing"},
		cli.BoolFlag{Name: "strict", Usage: "strict mode: delete files absent from the sender"},
		cli.IntFlag{Name: "bytes-per-sec", Usage: "cap throughput to model a real serial link's baud rate (0 disables)"},
	},
	Action: runServe,
}

func runServe(c *cli.Context) error {
	listen, dial := c.String("listen"), c.String("dial")
	if (listen == "") == (dial == "") {
		return cli.NewExitError("exactly one of --listen or --dial is required", 1)
	}
	root, err := osutil.ExpandTilde(c.String("root"))
	if err != nil {
		return err
	}

	var tcp *bytelink.TCPLink
	if dial != "" {
		tcp = new(bytelink.TCPLink)
		if err := tcp.Open(dial); err != nil {
			return err
		}
	} else {
		conn, err := acceptOnce(listen)
		if err != nil {
			return err
		}
		tcp = bytelink.NewTCPLink(conn)
	}
	defer tcp.Close()

	var link bytelink.ByteLink = tcp
	if bps := c.Int("bytes-per-sec"); bps > 0 {
		link = bytelink.NewRateLimited(tcp, bps)
		log.Infof("throughput capped at %d bytes/sec", bps)
	}

	bus := eventbus.Default
	sub := bus.Subscribe(eventbus.All)
	go logEvents(sub)

	ctrl := peer.New(link, peer.Config{
		Root:             root,
		RespectGitignore: c.Bool("gitignore"),
		QuickMode:        c.Bool("quick"),
		Strict:           c.Bool("strict"),
	}, bus, log)
	ctrl.Start()
	log.Infoln("peer started, root:", root)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	ctrl.Stop(ctx)
	return nil
}

func logEvents(sub *eventbus.Subscription) {
	for {
		ev, err := sub.Poll(time.Second)
		if err != nil {
			continue
		}
		log.Infoln(ev.Kind, ev.Data)
	}
}

var manifestCommand = cli.Command{
	Name:      "manifest",
	Usage:     "generate a manifest for a directory and print it as JSON",
	ArgsUsage: "<root>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "gitignore", Usage: "respect .gitignore"},
		cli.BoolFlag{Name: "quick", Usage: "quick mode: skip content hashing"},
	},
	Action: runManifest,
}

func runManifest(c *cli.Context) error {
	if c.Args().First() == "" {
		return cli.NewExitError("manifest: root directory required", 1)
	}
	root, err := osutil.ExpandTilde(c.Args().First())
	if err != nil {
		return err
	}
	m, err := manifest.NewScanner().Generate(root, manifest.Options{
		RespectGitignore: c.Bool("gitignore"),
		QuickMode:        c.Bool("quick"),
	})
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(m)
}

var diffCommand = cli.Command{
	Name:      "diff",
	Usage:     "diff two manifest JSON files and print the resulting ChangeSet",
	ArgsUsage: "<local.json> <remote.json>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "strict", Usage: "strict mode: include deletions"},
	},
	Action: runDiff,
}

func runDiff(c *cli.Context) error {
	if len(c.Args()) != 2 {
		return cli.NewExitError("diff: exactly two manifest paths required", 1)
	}
	local, err := manifest.LoadJSON(c.Args().Get(0))
	if err != nil {
		return err
	}
	remote, err := manifest.LoadJSON(c.Args().Get(1))
	if err != nil {
		return err
	}
	cs := manifest.Diff(local, remote, c.Bool("strict"))
	return json.NewEncoder(os.Stdout).Encode(cs)
}

// acceptOnce listens on addr, accepts a single connection, and closes the
// listener. One serve invocation handles one peer for its whole lifetime.
func acceptOnce(addr string) (net.Conn, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	return ln.Accept()
}
