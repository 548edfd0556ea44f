//go:build linux

// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command sockbench measures loopback TCP round trips through the sockets
// wrappers.
package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cheggaaa/pb/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/noisysockets/sockets"
	"github.com/rogpeppe/go-internal/par"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	app := &cli.App{
		Name:  "sockbench",
		Usage: "Benchmark loopback round trips through the socket wrappers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "The host to listen on, each of its addresses is used",
				Value: "localhost",
			},
			&cli.IntFlag{
				Name:    "requests",
				Aliases: []string{"n"},
				Usage:   "The number of round trips to make",
				Value:   10000,
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "The number of concurrent clients",
				Value: 10,
			},
			&cli.IntFlag{
				Name:  "message-size",
				Usage: "The size of each message in bytes",
				Value: 1024,
			},
			&cli.GenericFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set the log level",
				Value:   fromLogLevel(slog.LevelInfo),
			},
		},
		Before: func(c *cli.Context) error {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: (*slog.Level)(c.Generic("log-level").(*logLevelFlag)),
			}))

			return nil
		},
		Action: func(c *cli.Context) error {
			nRequests := c.Int("requests")
			nConcurrent := c.Int("concurrency")

			list, err := sockets.GetAddrInfo(c.Context, c.String("host"), "0", &sockets.Hints{
				Flags:      sockets.AI_PASSIVE,
				SocketType: unix.SOCK_STREAM,
			})
			if err != nil {
				return fmt.Errorf("failed to resolve listen address: %w", err)
			}
			candidates := append([]sockets.AddrInfo(nil), list.Entries()...)
			list.Release()

			srv, err := newEchoServer(logger, candidates)
			if err != nil {
				return fmt.Errorf("failed to start echo server: %w", err)
			}
			defer srv.Close()

			go srv.Serve()

			for _, ep := range srv.endpoints {
				logger.Info("Listening for connections", "addr", sockets.FormatSockaddr(ep.addr))
			}

			msg := make([]byte, c.Int("message-size"))
			if _, err := rand.Read(msg); err != nil {
				return fmt.Errorf("failed to read random data: %w", err)
			}

			var work par.Work

			for i := 0; i < nRequests; i++ {
				work.Add(i)
			}

			var errsMu sync.Mutex
			var errs *multierror.Error

			var roundTripsMu sync.Mutex
			roundTrips := hdrhistogram.New(1, time.Minute.Microseconds(), 2)

			bar := pb.StartNew(nRequests)

			startTime := time.Now()
			work.Do(nConcurrent, func(item any) {
				defer bar.Increment()

				roundTripStartTime := time.Now()
				// Spread the clients over every address.
				ep := srv.endpoints[item.(int)%len(srv.endpoints)]
				err := exchange(ep, msg)
				roundTripDuration := time.Since(roundTripStartTime)
				if err != nil {
					errsMu.Lock()
					errs = multierror.Append(errs, fmt.Errorf("request %d: %w", item.(int), err))
					errsMu.Unlock()
					return
				}

				roundTripsMu.Lock()
				if err := roundTrips.RecordValue(roundTripDuration.Microseconds()); err != nil {
					logger.Error("Failed to record round trip duration", "error", err)
				}
				roundTripsMu.Unlock()
			})
			totalDuration := time.Since(startTime)

			bar.Finish()

			var nErrors int
			if errs != nil {
				nErrors = len(errs.Errors)
				fmt.Println("Errors:")
				for _, err := range errs.Errors {
					fmt.Println(err)
				}
			}

			fmt.Printf("Total round trips: %d\n", nRequests)
			fmt.Printf("Total errors: %d\n", nErrors)
			fmt.Printf("Total duration: %.2fs\n", totalDuration.Seconds())
			fmt.Printf("Round trips per second: %.2f\n", float64(nRequests)/totalDuration.Seconds())

			fmt.Println("Round trip durations:")
			fmt.Printf("  Median: %dus\n", roundTrips.ValueAtQuantile(50))
			fmt.Printf("  95th: %dus\n", roundTrips.ValueAtQuantile(95))
			fmt.Printf("  99th: %dus\n", roundTrips.ValueAtQuantile(99))
			fmt.Printf("  99.9th: %dus\n", roundTrips.ValueAtQuantile(99.9))
			fmt.Printf("  Max: %dus\n", roundTrips.Max())

			return errs.ErrorOrNil()
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("Failed to run app", "error", err)
		os.Exit(1)
	}
}

type logLevelFlag slog.Level

func fromLogLevel(l slog.Level) *logLevelFlag {
	f := logLevelFlag(l)
	return &f
}

func (f *logLevelFlag) Set(value string) error {
	return (*slog.Level)(f).UnmarshalText([]byte(value))
}

func (f *logLevelFlag) String() string {
	return (*slog.Level)(f).String()
}
