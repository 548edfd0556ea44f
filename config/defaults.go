// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config

import (
	"log/slog"

	latestconfig "github.com/noisysockets/sockets/config/v1alpha1"
)

const (
	// DefaultNameserverPort is the port used for nameservers configured
	// without one.
	DefaultNameserverPort = 53
	// DefaultFamily is the address family resolved when none is configured.
	DefaultFamily = latestconfig.FamilyUnspec
	// DefaultSocketType is the socket type resolved when none is configured.
	DefaultSocketType = latestconfig.SocketTypeStream
	// DefaultLogLevel is the minimum level of logged messages.
	DefaultLogLevel = slog.LevelInfo
)

// Default returns the configuration used when no configuration file is
// given.
func Default() *latestconfig.Config {
	level := DefaultLogLevel

	conf := &latestconfig.Config{
		Resolver: &latestconfig.ResolverConfig{
			Protocol: latestconfig.ProtocolSystem,
		},
		Hints: &latestconfig.HintsConfig{
			Family:     DefaultFamily,
			SocketType: DefaultSocketType,
		},
		Log: &latestconfig.LogConfig{
			Level: &level,
		},
	}
	conf.PopulateTypeMeta()

	return conf
}
