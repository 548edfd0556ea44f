// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config reads and writes the versioned configuration used by the
// sockets command line tools.
package config

import (
	"fmt"
	"io"
	"net/netip"

	"github.com/noisysockets/sockets"
	configtypes "github.com/noisysockets/sockets/config/types"
	latestconfig "github.com/noisysockets/sockets/config/v1alpha1"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// FromYAML reads the given reader and returns a config object.
func FromYAML(r io.Reader) (*latestconfig.Config, error) {
	confBytes, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from reader: %w", err)
	}

	var typeMeta configtypes.TypeMeta
	if err := yaml.Unmarshal(confBytes, &typeMeta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal type meta from config file: %w", err)
	}

	var versionedConf configtypes.Config
	switch typeMeta.APIVersion {
	case latestconfig.APIVersion:
		versionedConf, err = latestconfig.GetConfigByKind(typeMeta.Kind)
	default:
		return nil, fmt.Errorf("unsupported api version: %s", typeMeta.APIVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config by kind %q: %w", typeMeta.Kind, err)
	}

	if err := yaml.Unmarshal(confBytes, versionedConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from config file: %w", err)
	}

	return MigrateToLatest(versionedConf)
}

// ToYAML writes the given config object to the given writer.
func ToYAML(w io.Writer, versionedConf configtypes.Config) error {
	versionedConf.PopulateTypeMeta()

	if err := yaml.NewEncoder(w).Encode(versionedConf); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return nil
}

// MigrateToLatest migrates the given config object to the latest version.
func MigrateToLatest(versionedConf configtypes.Config) (*latestconfig.Config, error) {
	switch conf := versionedConf.(type) {
	case *latestconfig.Config:
		// Nothing to do, already at the latest version.
		return conf, nil
	default:
		return nil, fmt.Errorf("unsupported config version: %s", conf.GetAPIVersion())
	}
}

// Hints converts the configured hints into resolution hints.
func Hints(conf *latestconfig.Config) (sockets.Hints, error) {
	var hints sockets.Hints
	if conf.Hints == nil {
		return hints, nil
	}

	switch conf.Hints.Family {
	case "", latestconfig.FamilyUnspec:
		hints.Family = unix.AF_UNSPEC
	case latestconfig.FamilyInet:
		hints.Family = unix.AF_INET
	case latestconfig.FamilyInet6:
		hints.Family = unix.AF_INET6
	default:
		return hints, fmt.Errorf("unknown address family: %s", conf.Hints.Family)
	}

	switch conf.Hints.SocketType {
	case "", latestconfig.SocketTypeAny:
	case latestconfig.SocketTypeStream:
		hints.SocketType = unix.SOCK_STREAM
	case latestconfig.SocketTypeDgram:
		hints.SocketType = unix.SOCK_DGRAM
	case latestconfig.SocketTypeRaw:
		hints.SocketType = unix.SOCK_RAW
	default:
		return hints, fmt.Errorf("unknown socket type: %s", conf.Hints.SocketType)
	}

	for _, flag := range conf.Hints.Flags {
		switch flag {
		case latestconfig.FlagPassive:
			hints.Flags |= sockets.AI_PASSIVE
		case latestconfig.FlagCanonName:
			hints.Flags |= sockets.AI_CANONNAME
		case latestconfig.FlagNumericHost:
			hints.Flags |= sockets.AI_NUMERICHOST
		case latestconfig.FlagV4Mapped:
			hints.Flags |= sockets.AI_V4MAPPED
		case latestconfig.FlagAll:
			hints.Flags |= sockets.AI_ALL
		case latestconfig.FlagAddrConfig:
			hints.Flags |= sockets.AI_ADDRCONFIG
		case latestconfig.FlagNumericServ:
			hints.Flags |= sockets.AI_NUMERICSERV
		default:
			return hints, fmt.Errorf("unknown resolution flag: %s", flag)
		}
	}

	return hints, nil
}

// Nameservers returns the configured nameservers, with the default port
// filled in where none was given.
func Nameservers(conf *latestconfig.Config) []netip.AddrPort {
	if conf.Resolver == nil {
		return nil
	}

	nameservers := make([]netip.AddrPort, len(conf.Resolver.Nameservers))
	for i, ns := range conf.Resolver.Nameservers {
		nameservers[i] = ns.WithDefaultPort(DefaultNameserverPort)
	}
	return nameservers
}
