// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command ec262-worker runs a map-reduce worker: it registers with a
// discovery service, listens for foreman connections, and executes
// whatever mapfn/reducefn code it is shipped inside a sandbox
// (spec.md §4.8, §6's CLI surface).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/base/log"
	"github.com/urfave/cli/v2"

	"github.com/ec262/mapreduce/discovery"
	"github.com/ec262/mapreduce/exec"
)

const defaultPort = 2626

func main() {
	app := &cli.App{
		Name:  "ec262-worker",
		Usage: "run a map-reduce worker",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"P"}, Value: defaultPort, Usage: "listen port"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "accepted for compatibility; does not change the log level"},
			&cli.BoolFlag{Name: "loud", Aliases: []string{"V"}, Usage: "accepted for compatibility; does not change the log level"},
			&cli.StringFlag{Name: "discovery-url", Value: "http://localhost:8080", Usage: "discovery service base URL"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	// log.AddFlags registers grailbio/base/log's own verbosity flag on
	// the standard flag set, which this command never parses. -v and -V
	// are accepted for the source's legacy verbose/loud naming (spec.md
	// §6), but their values are not read, so neither changes the log
	// level.
	log.AddFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	disco := discovery.NewClient(c.String("discovery-url"))
	w := exec.NewWorker(disco)

	addr := fmt.Sprintf(":%d", c.Int("port"))
	log.Printf("ec262-worker: listening on %s, discovery at %s", addr, c.String("discovery-url"))
	return w.ListenAndServe(ctx, addr)
}
