// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sockets_test

import (
	"errors"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/noisysockets/sockets"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
	"golang.org/x/sys/unix"
)

func TestSocket(t *testing.T) {
	t.Run("Close once", func(t *testing.T) {
		s, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		require.GreaterOrEqual(t, s.Fd(), 0)

		require.NoError(t, s.Close())
		require.Equal(t, -1, s.Fd())

		err = s.Close()
		require.ErrorIs(t, err, sockets.ErrClosed)
		require.Equal(t, "close error: use of closed socket", err.Error())
	})

	t.Run("Use after close", func(t *testing.T) {
		s, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		_, err = s.Send([]byte("hello"), 0)
		require.ErrorIs(t, err, sockets.ErrClosed)

		_, err = s.Receive(make([]byte, 16), 0)
		require.ErrorIs(t, err, sockets.ErrClosed)

		var opErr *sockets.OpError
		require.ErrorAs(t, err, &opErr)
		require.Equal(t, "recv", opErr.Op)
	})

	t.Run("Missing address", func(t *testing.T) {
		s, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		defer s.Close()

		err = s.Bind(nil)
		require.ErrorIs(t, err, unix.EINVAL)

		var opErr *sockets.OpError
		require.ErrorAs(t, err, &opErr)
		require.Equal(t, "bind", opErr.Op)

		err = s.Connect(nil)
		require.ErrorIs(t, err, unix.EINVAL)
		require.ErrorAs(t, err, &opErr)
		require.Equal(t, "connect", opErr.Op)
	})

	t.Run("Unsupported family", func(t *testing.T) {
		_, err := sockets.NewSocket(-1, unix.SOCK_STREAM, 0)
		require.ErrorIs(t, err, unix.EAFNOSUPPORT)
		require.Contains(t, err.Error(), "socket error: ")
	})

	t.Run("Close on exec", func(t *testing.T) {
		s, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_DGRAM, 0)
		require.NoError(t, err)
		defer s.Close()

		flags, err := unix.FcntlInt(uintptr(s.Fd()), unix.F_GETFD, 0)
		require.NoError(t, err)
		require.NotZero(t, flags&unix.FD_CLOEXEC)
	})

	t.Run("Options", func(t *testing.T) {
		s, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		defer s.Close()

		require.NoError(t, s.SetOption(unix.SOL_SOCKET, unix.SO_REUSEADDR, 1))

		v, err := s.Option(unix.SOL_SOCKET, unix.SO_REUSEADDR)
		require.NoError(t, err)
		require.NotZero(t, v)

		v, err = s.Option(unix.SOL_SOCKET, unix.SO_TYPE)
		require.NoError(t, err)
		require.Equal(t, unix.SOCK_STREAM, v)

		require.NoError(t, s.SetLinger(0))
		require.NoError(t, s.SetTimeout(unix.SO_RCVTIMEO, time.Second))

		err = s.SetOption(unix.SOL_SOCKET, -1, 1)
		require.Error(t, err)
		require.Contains(t, err.Error(), "setsockopt error: ")
	})
}

func TestStream(t *testing.T) {
	t.Run("Loopback exchange", func(t *testing.T) {
		client, server := loopbackPair(t, unix.AF_INET)

		msg := []byte("Hello, world!")
		n, err := client.Send(msg, 0)
		require.NoError(t, err)
		require.Equal(t, len(msg), n)

		buf := make([]byte, 64)
		n, err = server.Receive(buf, 0)
		require.NoError(t, err)
		require.Equal(t, msg, buf[:n])

		n, err = server.Send(buf[:n], 0)
		require.NoError(t, err)

		reply := make([]byte, 64)
		n, err = client.Receive(reply, 0)
		require.NoError(t, err)
		require.Equal(t, msg, reply[:n])
	})

	t.Run("Loopback exchange over IPv6", func(t *testing.T) {
		if !nettest.SupportsIPv6() {
			t.Skip("IPv6 is not supported")
		}

		client, server := loopbackPair(t, unix.AF_INET6)

		_, err := client.Send([]byte("ping"), 0)
		require.NoError(t, err)

		buf := make([]byte, 4)
		n, err := server.Receive(buf, unix.MSG_WAITALL)
		require.NoError(t, err)
		require.Equal(t, "ping", string(buf[:n]))
	})

	t.Run("Orderly shutdown", func(t *testing.T) {
		client, server := loopbackPair(t, unix.AF_INET)

		require.NoError(t, client.Shutdown(unix.SHUT_WR))

		n, err := server.Receive(make([]byte, 16), 0)
		require.NoError(t, err)
		require.Zero(t, n)

		// The other direction is still open.
		_, err = server.Send([]byte("bye"), 0)
		require.NoError(t, err)

		buf := make([]byte, 16)
		n, err = client.Receive(buf, 0)
		require.NoError(t, err)
		require.Equal(t, "bye", string(buf[:n]))
	})

	t.Run("Peer name", func(t *testing.T) {
		client, server := loopbackPair(t, unix.AF_INET)

		clientAddr, err := client.LocalAddr()
		require.NoError(t, err)

		peerAddr, err := server.PeerName()
		require.NoError(t, err)
		require.Equal(t, sockets.FormatSockaddr(clientAddr), sockets.FormatSockaddr(peerAddr))
	})

	t.Run("Peer name on unconnected socket", func(t *testing.T) {
		s, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		defer s.Close()

		_, err = s.PeerName()
		require.ErrorIs(t, err, unix.ENOTCONN)
	})

	t.Run("Connection refused", func(t *testing.T) {
		// Bind without listening to reserve a port nobody accepts on.
		reserved, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		defer reserved.Close()

		require.NoError(t, reserved.Bind(&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
		addr, err := reserved.LocalAddr()
		require.NoError(t, err)

		s, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		defer s.Close()

		err = s.Connect(addr)
		require.ErrorIs(t, err, unix.ECONNREFUSED)

		var opErr *sockets.OpError
		require.ErrorAs(t, err, &opErr)
		require.Equal(t, "connect", opErr.Op)
	})

	t.Run("Address in use", func(t *testing.T) {
		lis, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		defer lis.Close()

		require.NoError(t, lis.Bind(&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
		require.NoError(t, lis.Listen(1))
		addr, err := lis.LocalAddr()
		require.NoError(t, err)

		s, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_STREAM, 0)
		require.NoError(t, err)
		defer s.Close()

		err = s.Bind(addr)
		require.ErrorIs(t, err, unix.EADDRINUSE)
		require.Contains(t, err.Error(), "bind error: ")
	})
}

func TestDatagram(t *testing.T) {
	receiver, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = receiver.Close()
	})

	require.NoError(t, receiver.Bind(&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, receiver.SetTimeout(unix.SO_RCVTIMEO, 5*time.Second))

	receiverAddr, err := receiver.LocalAddr()
	require.NoError(t, err)

	sender, err := sockets.NewSocket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sender.Close()
	})

	require.NoError(t, sender.Bind(&unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	senderAddr, err := sender.LocalAddr()
	require.NoError(t, err)

	t.Run("Send to and receive from", func(t *testing.T) {
		n, err := sender.SendTo([]byte("datagram"), 0, receiverAddr)
		require.NoError(t, err)
		require.Equal(t, 8, n)

		buf := make([]byte, 64)
		n, from, err := receiver.ReceiveFrom(buf, 0)
		require.NoError(t, err)
		require.Equal(t, "datagram", string(buf[:n]))
		require.Equal(t, sockets.FormatSockaddr(senderAddr), sockets.FormatSockaddr(from))
	})

	t.Run("Empty datagram", func(t *testing.T) {
		n, err := sender.SendTo(nil, 0, receiverAddr)
		require.NoError(t, err)
		require.Zero(t, n)

		n, from, err := receiver.ReceiveFrom(make([]byte, 64), 0)
		require.NoError(t, err)
		require.Zero(t, n)
		require.NotNil(t, from)
	})

	t.Run("Receive timeout", func(t *testing.T) {
		require.NoError(t, receiver.SetTimeout(unix.SO_RCVTIMEO, 10*time.Millisecond))
		t.Cleanup(func() {
			_ = receiver.SetTimeout(unix.SO_RCVTIMEO, 5*time.Second)
		})

		_, _, err := receiver.ReceiveFrom(make([]byte, 64), 0)
		require.Error(t, err)
		require.True(t, errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK))

		var opErr *sockets.OpError
		require.ErrorAs(t, err, &opErr)
		require.True(t, opErr.Timeout())
	})
}

func TestHostName(t *testing.T) {
	want, err := os.Hostname()
	require.NoError(t, err)

	name, err := sockets.HostName(256)
	require.NoError(t, err)
	require.Equal(t, want, name)

	_, err = sockets.HostName(len(want))
	require.ErrorIs(t, err, unix.ENAMETOOLONG)

	_, err = sockets.HostName(0)
	require.ErrorIs(t, err, unix.EINVAL)

	_, err = sockets.HostName(-1)
	require.ErrorIs(t, err, unix.EINVAL)

	var opErr *sockets.OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, "gethostname", opErr.Op)
}

func TestSockaddr(t *testing.T) {
	for _, s := range []string{"192.0.2.1:80", "[2001:db8::1]:443", "[::ffff:192.0.2.1]:53"} {
		addrPort := netip.MustParseAddrPort(s)

		sa := sockets.SockaddrFromAddrPort(addrPort)
		got, ok := sockets.AddrPortFromSockaddr(sa)
		require.True(t, ok)
		require.Equal(t, addrPort, got)
		require.Equal(t, s, sockets.FormatSockaddr(sa))
	}

	require.Equal(t, "IPv4", sockets.FamilyName(sockets.Family(&unix.SockaddrInet4{})))
	require.Equal(t, "IPv6", sockets.FamilyName(sockets.Family(&unix.SockaddrInet6{})))
	require.Equal(t, "/tmp/sock", sockets.FormatAddr(&unix.SockaddrUnix{Name: "/tmp/sock"}))
}

// loopbackPair returns the two ends of a loopback TCP connection.
func loopbackPair(t *testing.T, family int) (client, server *sockets.Socket) {
	t.Helper()

	var loopback unix.Sockaddr = &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}
	if family == unix.AF_INET6 {
		loopback = &unix.SockaddrInet6{Addr: netip.IPv6Loopback().As16()}
	}

	lis, err := sockets.NewSocket(family, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer lis.Close()

	require.NoError(t, lis.Bind(loopback))
	require.NoError(t, lis.Listen(1))

	addr, err := lis.LocalAddr()
	require.NoError(t, err)

	client, err = sockets.NewSocket(family, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	require.NoError(t, client.Connect(addr))

	server, peerAddr, err := lis.Accept()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = server.Close()
	})

	require.Equal(t, family, sockets.Family(peerAddr))

	return client, server
}
