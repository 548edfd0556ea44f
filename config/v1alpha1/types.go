// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package v1alpha1

import (
	"fmt"
	"log/slog"
	"strings"

	configtypes "github.com/noisysockets/sockets/config/types"
	"github.com/noisysockets/sockets/types"
)

const APIVersion = "sockets.noisysockets.github.com/v1alpha1"

// Config is the configuration shared by the sockets command line tools.
type Config struct {
	configtypes.TypeMeta `yaml:",inline"`
	// Resolver configures how host names are resolved.
	Resolver *ResolverConfig `yaml:"resolver,omitempty"`
	// Hints restricts the candidates returned by address resolution.
	Hints *HintsConfig `yaml:"hints,omitempty"`
	// Log configures diagnostic logging.
	Log *LogConfig `yaml:"log,omitempty"`
}

type Protocol string

const (
	// ProtocolSystem resolves names using the system configuration.
	ProtocolSystem Protocol = ""
	// ProtocolUDP queries the configured nameservers over UDP.
	ProtocolUDP Protocol = "udp"
	// ProtocolTCP queries the configured nameservers over TCP.
	ProtocolTCP Protocol = "tcp"
)

func (p *Protocol) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	switch Protocol(strings.ToLower(str)) {
	case ProtocolSystem, ProtocolUDP, ProtocolTCP:
		*p = Protocol(strings.ToLower(str))
		return nil
	default:
		return fmt.Errorf("unknown resolver protocol: %s", str)
	}
}

// ResolverConfig is the configuration for name resolution.
type ResolverConfig struct {
	// Protocol is the protocol used to query nameservers. If not specified,
	// the system resolver is used, unless nameservers are given in which
	// case UDP is used.
	Protocol Protocol `yaml:"protocol,omitempty"`
	// Nameservers is an optional list of nameservers to query directly. If
	// a port is not specified, 53 is used.
	Nameservers []types.MaybeAddrPort `yaml:"nameservers,omitempty"`
}

type Family string

const (
	FamilyUnspec Family = "unspec"
	FamilyInet   Family = "inet"
	FamilyInet6  Family = "inet6"
)

func (f *Family) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	switch Family(strings.ToLower(str)) {
	case FamilyUnspec, FamilyInet, FamilyInet6:
		*f = Family(strings.ToLower(str))
		return nil
	default:
		return fmt.Errorf("unknown address family: %s", str)
	}
}

type SocketType string

const (
	SocketTypeAny    SocketType = "any"
	SocketTypeStream SocketType = "stream"
	SocketTypeDgram  SocketType = "dgram"
	SocketTypeRaw    SocketType = "raw"
)

func (s *SocketType) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	switch SocketType(strings.ToLower(str)) {
	case SocketTypeAny, SocketTypeStream, SocketTypeDgram, SocketTypeRaw:
		*s = SocketType(strings.ToLower(str))
		return nil
	default:
		return fmt.Errorf("unknown socket type: %s", str)
	}
}

type Flag string

const (
	FlagPassive     Flag = "passive"
	FlagCanonName   Flag = "canonname"
	FlagNumericHost Flag = "numerichost"
	FlagV4Mapped    Flag = "v4mapped"
	FlagAll         Flag = "all"
	FlagAddrConfig  Flag = "addrconfig"
	FlagNumericServ Flag = "numericserv"
)

func (f *Flag) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	switch Flag(strings.ToLower(str)) {
	case FlagPassive, FlagCanonName, FlagNumericHost, FlagV4Mapped,
		FlagAll, FlagAddrConfig, FlagNumericServ:
		*f = Flag(strings.ToLower(str))
		return nil
	default:
		return fmt.Errorf("unknown resolution flag: %s", str)
	}
}

// HintsConfig is the configuration for address resolution hints.
type HintsConfig struct {
	// Family is the address family of the candidates. If not specified,
	// both IPv4 and IPv6 candidates are returned.
	Family Family `yaml:"family,omitempty"`
	// SocketType is the socket type of the candidates.
	SocketType SocketType `yaml:"socketType,omitempty"`
	// Flags modify how node and service names are interpreted.
	Flags []Flag `yaml:"flags,omitempty"`
}

// LogConfig is the configuration for diagnostic logging.
type LogConfig struct {
	// Level is the minimum level of logged messages, eg. "debug".
	Level *slog.Level `yaml:"level,omitempty"`
}

func (c *Config) GetAPIVersion() string {
	return APIVersion
}

func (c *Config) GetKind() string {
	return "Config"
}

func (c *Config) PopulateTypeMeta() {
	c.TypeMeta = configtypes.TypeMeta{
		APIVersion: APIVersion,
		Kind:       "Config",
	}
}

func GetConfigByKind(kind string) (configtypes.Config, error) {
	switch kind {
	case "Config":
		return &Config{}, nil
	default:
		return nil, fmt.Errorf("unsupported kind: %s", kind)
	}
}
