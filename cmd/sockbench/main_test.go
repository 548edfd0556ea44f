//go:build linux

// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"context"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/noisysockets/sockets"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func TestEchoServer(t *testing.T) {
	logger := slogt.New(t)

	hosts := []string{"127.0.0.1"}
	if nettest.SupportsIPv6() {
		hosts = append(hosts, "::1")
	}

	var candidates []sockets.AddrInfo
	for _, host := range hosts {
		list, err := sockets.GetAddrInfo(context.Background(), host, "0", &sockets.Hints{
			SocketType: unix.SOCK_STREAM,
		})
		require.NoError(t, err)
		candidates = append(candidates, list.Entries()...)
		list.Release()
	}

	srv, err := newEchoServer(logger, candidates)
	require.NoError(t, err)
	require.Len(t, srv.endpoints, len(hosts))

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve()
	}()

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		size := 1 << (8 + 4*i)
		ep := srv.endpoints[i%len(srv.endpoints)]
		g.Go(func() error {
			msg := make([]byte, size)
			for j := range msg {
				msg[j] = byte(j)
			}
			return exchange(ep, msg)
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, srv.Close())
	<-done

	err = exchange(srv.endpoints[0], []byte("hello"))
	require.ErrorIs(t, err, unix.ECONNREFUSED)
}

func TestEchoServerAcceptAfterClose(t *testing.T) {
	list, err := sockets.GetAddrInfo(context.Background(), "127.0.0.1", "0", &sockets.Hints{
		SocketType: unix.SOCK_STREAM,
	})
	require.NoError(t, err)
	defer list.Release()

	srv, err := newEchoServer(slogt.New(t), list.Entries())
	require.NoError(t, err)

	ep := srv.endpoints[0]

	// Queue a connection in the backlog before anything accepts it.
	client, err := sockets.NewSocket(ep.ai.Family, ep.ai.SocketType, ep.ai.Protocol)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Connect(ep.addr))

	// Close has started but the listeners are still open.
	srv.mu.Lock()
	srv.closed = true
	srv.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve()
	}()
	<-done

	// The connection was closed rather than served.
	n, err := client.Receive(make([]byte, 16), 0)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, srv.lis.Close())
}

func TestEchoServerNoUsableAddress(t *testing.T) {
	_, err := newEchoServer(slogt.New(t), []sockets.AddrInfo{{
		Family:     unix.AF_INET,
		SocketType: unix.SOCK_STREAM,
		Protocol:   unix.IPPROTO_TCP,
		// Documentation address, not configured on this host.
		Addr: &unix.SockaddrInet4{Addr: [4]byte{192, 0, 2, 1}},
	}})
	require.ErrorContains(t, err, "no usable listen address")
	require.ErrorIs(t, err, unix.EADDRNOTAVAIL)
}
