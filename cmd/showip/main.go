// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command showip prints the IP addresses of the hosts given on the command
// line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/noisysockets/sockets"
	"github.com/noisysockets/sockets/config"
	latestconfig "github.com/noisysockets/sockets/config/v1alpha1"
	"github.com/noisysockets/sockets/failfast"
	"github.com/noisysockets/sockets/types"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func main() {
	os.Exit(run(os.Args, os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var conf *latestconfig.Config

	app := &cli.App{
		Name:      "showip",
		Usage:     "Show IP addresses for hosts given on the command line",
		ArgsUsage: "<hostname>...",
		Writer:    stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "The configuration file to use",
			},
			&cli.StringFlag{
				Name:  "family",
				Usage: "Address family to resolve (unspec, inet, inet6)",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Socket type to resolve (any, stream, dgram, raw)",
			},
			&cli.BoolFlag{
				Name:  "canonname",
				Usage: "Show the canonical name of each host",
			},
			&cli.StringSliceFlag{
				Name:  "nameserver",
				Usage: "Query this nameserver directly instead of using the system resolver",
			},
			&cli.StringFlag{
				Name:  "protocol",
				Usage: "Protocol used to query nameservers (udp, tcp)",
			},
			&cli.GenericFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set the log level",
				Value:   fromLogLevel(config.DefaultLogLevel),
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			conf, err = loadConfig(c)
			if err != nil {
				return err
			}

			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: conf.Log.Level,
			}))

			return nil
		},
		Action: func(c *cli.Context) error {
			hosts := c.Args().Slice()
			if len(hosts) == 0 {
				return errors.New("usage: showip <hostname>...")
			}

			hints, err := config.Hints(conf)
			if err != nil {
				return fmt.Errorf("invalid hints: %w", err)
			}

			resolver, err := sockets.NewResolver(logger, string(conf.Resolver.Protocol), config.Nameservers(conf))
			if err != nil {
				return fmt.Errorf("failed to create resolver: %w", err)
			}

			policy := failfast.New(logger, nil).WithResolver(resolver)

			// Any failure terminates the process, so there is nothing to
			// collect from the group.
			results := make([]*sockets.AddrInfoList, len(hosts))
			g, ctx := errgroup.WithContext(c.Context)
			for i, host := range hosts {
				i, host := i, host
				g.Go(func() error {
					results[i] = policy.GetAddrInfo(ctx, host, "", &hints)
					return nil
				})
			}
			_ = g.Wait()

			for i, host := range hosts {
				printAddrs(c.App.Writer, host, results[i])
				policy.FreeAddrInfo(results[i])
			}

			return nil
		},
	}

	if err := app.RunContext(context.Background(), args); err != nil {
		logger.Error("Failed to run app", "error", err)
		return failfast.ExitFailure
	}

	return 0
}

func printAddrs(w io.Writer, host string, list *sockets.AddrInfoList) {
	fmt.Fprintf(w, "IP addresses for %s:\n", host)

	for _, ai := range list.Entries() {
		if ai.CanonName != "" {
			fmt.Fprintf(w, "Canonical name %s\n", ai.CanonName)
		}
		fmt.Fprintf(w, "%s %s\n", sockets.FamilyName(ai.Family), sockets.FormatAddr(ai.Addr))
	}
}

// loadConfig reads the configuration file, if any, and applies the command
// line flags on top of it.
func loadConfig(c *cli.Context) (*latestconfig.Config, error) {
	conf := config.Default()

	if path := c.String("config"); path != "" {
		configFile, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer configFile.Close()

		fileConf, err := config.FromYAML(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if fileConf.Resolver != nil {
			conf.Resolver = fileConf.Resolver
		}
		if fileConf.Hints != nil {
			if fileConf.Hints.Family != "" {
				conf.Hints.Family = fileConf.Hints.Family
			}
			if fileConf.Hints.SocketType != "" {
				conf.Hints.SocketType = fileConf.Hints.SocketType
			}
			conf.Hints.Flags = fileConf.Hints.Flags
		}
		if fileConf.Log != nil && fileConf.Log.Level != nil {
			conf.Log = fileConf.Log
		}
	}

	if c.IsSet("family") {
		if err := unmarshalFlag(c.String("family"), &conf.Hints.Family); err != nil {
			return nil, err
		}
	}

	if c.IsSet("type") {
		if err := unmarshalFlag(c.String("type"), &conf.Hints.SocketType); err != nil {
			return nil, err
		}
	}

	if c.Bool("canonname") {
		conf.Hints.Flags = append(conf.Hints.Flags, latestconfig.FlagCanonName)
	}

	if c.IsSet("nameserver") {
		nameservers, err := types.ParseMaybeAddrPorts(c.StringSlice("nameserver"))
		if err != nil {
			return nil, fmt.Errorf("invalid nameserver: %w", err)
		}
		conf.Resolver.Nameservers = nameservers
	}

	if c.IsSet("protocol") {
		if err := unmarshalFlag(c.String("protocol"), &conf.Resolver.Protocol); err != nil {
			return nil, err
		}
	}

	if c.IsSet("log-level") {
		level := slog.Level(*c.Generic("log-level").(*logLevelFlag))
		conf.Log.Level = &level
	}

	return conf, nil
}

// unmarshalFlag validates a flag value the same way as the configuration
// file does.
func unmarshalFlag(value string, v any) error {
	node := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	return node.Decode(v)
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
