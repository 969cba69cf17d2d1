// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command ec262-foreman drives a map-reduce job against a discovery
// service and a roster of already-running ec262-worker processes. It
// ships a mapfn/reducefn pair read from disk and a line-numbered text
// file as the data source — the CLI front-end spec.md §6 leaves to
// external collaborators, reduced here to the minimum needed to
// exercise a real job end to end.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/grailbio/base/log"
	"github.com/urfave/cli/v2"

	ec262 "github.com/ec262/mapreduce"
	"github.com/ec262/mapreduce/discovery"
	"github.com/ec262/mapreduce/exec"
)

func main() {
	app := &cli.App{
		Name:  "ec262-foreman",
		Usage: "run a map-reduce job",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "discovery-url", Value: "http://localhost:8080", Usage: "discovery service base URL"},
			&cli.StringFlag{Name: "mapfn", Required: true, Usage: "path to a JS file exporting a map function"},
			&cli.StringFlag{Name: "reducefn", Required: true, Usage: "path to a JS file exporting a reduce function"},
			&cli.StringFlag{Name: "input", Required: true, Usage: "path to a newline-delimited text file, one value per line"},
			&cli.IntFlag{Name: "replicas", Aliases: []string{"r"}, Value: 3, Usage: "replication factor"},
			&cli.IntFlag{Name: "rows", Value: 1, Usage: "chunk size in (key, value) pairs"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log.AddFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mapFn, err := os.ReadFile(c.String("mapfn"))
	if err != nil {
		return err
	}
	reduceFn, err := os.ReadFile(c.String("reducefn"))
	if err != nil {
		return err
	}
	source, err := loadLines(c.String("input"))
	if err != nil {
		return err
	}

	disco := discovery.NewClient(c.String("discovery-url"))
	foreman := exec.NewForeman(disco, string(mapFn), string(reduceFn))

	job := ec262.NewMapReduceJob(source, c.Int("replicas"), c.Int("rows"))
	result, err := foreman.Run(ctx, job)
	if err != nil {
		return err
	}

	for k, v := range result {
		fmt.Printf("%s\t%v\n", k, v)
	}
	return nil
}

// loadLines builds a DataSource with one entry per input line, keyed
// by its line number — the shape spec.md §8's word-count scenario
// assumes.
func loadLines(path string) (ec262.DataSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pairs []ec262.Pair
	scanner := bufio.NewScanner(f)
	for i := 0; scanner.Scan(); i++ {
		pairs = append(pairs, ec262.Pair{Key: strconv.Itoa(i), Value: scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ec262.NewDataSource(pairs...), nil
}
