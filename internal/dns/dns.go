// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dns

import (
	"context"
	"fmt"
	stdnet "net"
	"net/netip"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
	"github.com/noisysockets/sockets/internal/util"
	"github.com/noisysockets/sockets/network"
)

const (
	// DefaultPort is the port used for nameservers configured without one.
	DefaultPort = 53
	// DefaultTimeout bounds a single query to a single nameserver.
	DefaultTimeout = 10 * time.Second
)

// nameserverResolver queries a fixed list of nameservers directly.
type nameserverResolver struct {
	net         network.Network
	protocol    string
	nameservers []netip.AddrPort
}

// NewResolver creates a resolver that queries the given nameservers over
// protocol ("udp" or "tcp", "" meaning "udp").
func NewResolver(net network.Network, protocol string, nameservers []netip.AddrPort) (Resolver, error) {
	switch strings.ToLower(protocol) {
	case "", "udp":
		protocol = "udp"
	case "tcp":
		protocol = "tcp"
	default:
		return nil, fmt.Errorf("unsupported DNS protocol: %s", protocol)
	}

	if len(nameservers) == 0 {
		return nil, fmt.Errorf("no nameservers configured")
	}

	withPorts := make([]netip.AddrPort, len(nameservers))
	for i, ns := range nameservers {
		if ns.Port() == 0 {
			ns = netip.AddrPortFrom(ns.Addr(), DefaultPort)
		}
		withPorts[i] = ns
	}

	return &nameserverResolver{
		net:         net,
		protocol:    protocol,
		nameservers: withPorts,
	}, nil
}

type lookupResult struct {
	addrs []netip.Addr
	cname string
}

func (r *nameserverResolver) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	var queryTypes []uint16
	switch network {
	case "ip":
		queryTypes = []uint16{dns.TypeA, dns.TypeAAAA}
	case "ip4":
		queryTypes = []uint16{dns.TypeA}
	case "ip6":
		queryTypes = []uint16{dns.TypeAAAA}
	default:
		return nil, stdnet.UnknownNetworkError(network)
	}

	res, err := r.lookup(ctx, host, queryTypes)
	if err != nil {
		return nil, err
	}

	return res.addrs, nil
}

func (r *nameserverResolver) LookupCNAME(ctx context.Context, host string) (string, error) {
	res, err := r.lookup(ctx, host, []uint16{dns.TypeA, dns.TypeAAAA})
	if err != nil {
		return "", err
	}

	return res.cname, nil
}

func (r *nameserverResolver) lookup(ctx context.Context, host string, queryTypes []uint16) (*lookupResult, error) {
	fqdn := dns.Fqdn(host)

	// Shuffle the nameserver list for load balancing.
	shuffledNameservers := make([]netip.AddrPort, len(r.nameservers))
	copy(shuffledNameservers, r.nameservers)
	shuffledNameservers = util.Shuffle(shuffledNameservers)

	var queryResult *multierror.Error
	for _, ns := range shuffledNameservers {
		res := &lookupResult{cname: fqdn}
		answered := true

		for _, queryType := range queryTypes {
			reply, err := r.queryNameserver(ctx, ns, fqdn, queryType)
			if err != nil {
				queryResult = multierror.Append(queryResult, err)
				answered = false
				continue
			}

			if reply.Rcode != dns.RcodeSuccess && reply.Rcode != dns.RcodeNameError {
				queryResult = multierror.Append(queryResult,
					fmt.Errorf("nameserver %s returned %s", ns, dns.RcodeToString[reply.Rcode]))
				answered = false
				continue
			}

			for _, rr := range reply.Answer {
				switch rr := rr.(type) {
				case *dns.A:
					res.addrs = append(res.addrs, netip.AddrFrom4([4]byte(rr.A.To4())))
				case *dns.AAAA:
					res.addrs = append(res.addrs, netip.AddrFrom16([16]byte(rr.AAAA.To16())))
				case *dns.CNAME:
					if strings.EqualFold(rr.Hdr.Name, res.cname) {
						res.cname = rr.Target
					}
				}
			}
		}

		if len(res.addrs) > 0 {
			return res, nil
		}

		// Only a nameserver that answered every query without any addresses
		// settles the matter.
		if answered {
			return nil, &stdnet.DNSError{Err: "no such host", Name: host, IsNotFound: true}
		}
	}

	if queryResult != nil {
		return nil, &stdnet.DNSError{Err: queryResult.Error(), Name: host, IsTemporary: true}
	}

	return nil, &stdnet.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func (r *nameserverResolver) queryNameserver(ctx context.Context, nameserver netip.AddrPort, fqdn string, queryType uint16) (*dns.Msg, error) {
	client := &dns.Client{
		Net:     r.protocol,
		Timeout: DefaultTimeout,
	}

	ctx, cancel := context.WithTimeout(ctx, client.Timeout)
	defer cancel()

	conn, err := r.net.DialContext(ctx, client.Net, nameserver.String())
	if err != nil {
		return nil, fmt.Errorf("could not connect to DNS server %s: %w", nameserver, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := new(dns.Msg)
	req.SetQuestion(fqdn, queryType)

	reply, _, err := client.ExchangeWithConn(req, &dns.Conn{Conn: conn})
	if err != nil {
		return nil, fmt.Errorf("could not query DNS server %s: %w", nameserver, err)
	}

	return reply, nil
}
