// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package failfast

import (
	"context"

	"github.com/noisysockets/sockets"
	"golang.org/x/sys/unix"
)

// GetAddrInfo resolves node and service into candidate endpoints. The
// returned list is never empty.
func (p *Policy) GetAddrInfo(ctx context.Context, node, service string, hints *sockets.Hints) *sockets.AddrInfoList {
	list, err := p.resolver.GetAddrInfo(ctx, node, service, hints)
	if !p.check(err) {
		return nil
	}
	return list
}

// FreeAddrInfo releases a list returned by GetAddrInfo.
func (p *Policy) FreeAddrInfo(list *sockets.AddrInfoList) {
	list.Release()
}

// Socket creates a socket endpoint.
func (p *Policy) Socket(family, sotype, proto int) *sockets.Socket {
	s, err := sockets.NewSocket(family, sotype, proto)
	if !p.check(err) {
		return nil
	}
	return s
}

// Bind assigns a local address to s.
func (p *Policy) Bind(s *sockets.Socket, sa unix.Sockaddr) {
	p.check(s.Bind(sa))
}

// SetOption sets an integer socket option.
func (p *Policy) SetOption(s *sockets.Socket, level, name, value int) {
	p.check(s.SetOption(level, name, value))
}

// Option returns the value of an integer socket option.
func (p *Policy) Option(s *sockets.Socket, level, name int) int {
	v, err := s.Option(level, name)
	if !p.check(err) {
		return 0
	}
	return v
}

// LocalAddr returns the address s is bound to.
func (p *Policy) LocalAddr(s *sockets.Socket) unix.Sockaddr {
	sa, err := s.LocalAddr()
	if !p.check(err) {
		return nil
	}
	return sa
}

// Connect connects s to a peer.
func (p *Policy) Connect(s *sockets.Socket, sa unix.Sockaddr) {
	p.check(s.Connect(sa))
}

// Listen marks s as accepting connections.
func (p *Policy) Listen(s *sockets.Socket, backlog int) {
	p.check(s.Listen(backlog))
}

// Accept waits for a connection on s.
func (p *Policy) Accept(s *sockets.Socket) (*sockets.Socket, unix.Sockaddr) {
	conn, sa, err := s.Accept()
	if !p.check(err) {
		return nil, nil
	}
	return conn, sa
}

// Send writes b to the connected peer of s, returning the number of bytes
// accepted by the kernel.
func (p *Policy) Send(s *sockets.Socket, b []byte, flags int) int {
	n, err := s.Send(b, flags)
	if !p.check(err) {
		return 0
	}
	return n
}

// Receive reads from s into b. A zero return means the peer performed an
// orderly shutdown, which is reported but is not a failure.
func (p *Policy) Receive(s *sockets.Socket, b []byte, flags int) int {
	n, err := s.Receive(b, flags)
	if !p.check(err) {
		return 0
	}
	if n == 0 && len(b) > 0 {
		p.Warn("recv", "Peer performed an orderly shutdown")
	}
	return n
}

// SendTo sends the datagram b to the address to.
func (p *Policy) SendTo(s *sockets.Socket, b []byte, flags int, to unix.Sockaddr) int {
	n, err := s.SendTo(b, flags, to)
	if !p.check(err) {
		return 0
	}
	return n
}

// ReceiveFrom reads a datagram into b and returns its sender.
func (p *Policy) ReceiveFrom(s *sockets.Socket, b []byte, flags int) (int, unix.Sockaddr) {
	n, from, err := s.ReceiveFrom(b, flags)
	if !p.check(err) {
		return 0, nil
	}
	if n == 0 && len(b) > 0 {
		p.Warn("recvfrom", "Peer performed an orderly shutdown")
	}
	return n, from
}

// Close closes s.
func (p *Policy) Close(s *sockets.Socket) {
	p.check(s.Close())
}

// Shutdown shuts down part or all of a full duplex connection.
func (p *Policy) Shutdown(s *sockets.Socket, how int) {
	p.check(s.Shutdown(how))
}

// PeerName returns the address of the peer connected to s.
func (p *Policy) PeerName(s *sockets.Socket) unix.Sockaddr {
	sa, err := s.PeerName()
	if !p.check(err) {
		return nil
	}
	return sa
}

// HostName returns the host name, which must fit in capacity bytes
// including a terminating NUL.
func (p *Policy) HostName(capacity int) string {
	name, err := sockets.HostName(capacity)
	if !p.check(err) {
		return ""
	}
	return name
}

// GetAddrInfo calls Default.GetAddrInfo.
func GetAddrInfo(ctx context.Context, node, service string, hints *sockets.Hints) *sockets.AddrInfoList {
	return Default.GetAddrInfo(ctx, node, service, hints)
}

// FreeAddrInfo calls Default.FreeAddrInfo.
func FreeAddrInfo(list *sockets.AddrInfoList) {
	Default.FreeAddrInfo(list)
}

// Socket calls Default.Socket.
func Socket(family, sotype, proto int) *sockets.Socket {
	return Default.Socket(family, sotype, proto)
}

// Bind calls Default.Bind.
func Bind(s *sockets.Socket, sa unix.Sockaddr) {
	Default.Bind(s, sa)
}

// SetOption calls Default.SetOption.
func SetOption(s *sockets.Socket, level, name, value int) {
	Default.SetOption(s, level, name, value)
}

// Option calls Default.Option.
func Option(s *sockets.Socket, level, name int) int {
	return Default.Option(s, level, name)
}

// LocalAddr calls Default.LocalAddr.
func LocalAddr(s *sockets.Socket) unix.Sockaddr {
	return Default.LocalAddr(s)
}

// Connect calls Default.Connect.
func Connect(s *sockets.Socket, sa unix.Sockaddr) {
	Default.Connect(s, sa)
}

// Listen calls Default.Listen.
func Listen(s *sockets.Socket, backlog int) {
	Default.Listen(s, backlog)
}

// Accept calls Default.Accept.
func Accept(s *sockets.Socket) (*sockets.Socket, unix.Sockaddr) {
	return Default.Accept(s)
}

// Send calls Default.Send.
func Send(s *sockets.Socket, b []byte, flags int) int {
	return Default.Send(s, b, flags)
}

// Receive calls Default.Receive.
func Receive(s *sockets.Socket, b []byte, flags int) int {
	return Default.Receive(s, b, flags)
}

// SendTo calls Default.SendTo.
func SendTo(s *sockets.Socket, b []byte, flags int, to unix.Sockaddr) int {
	return Default.SendTo(s, b, flags, to)
}

// ReceiveFrom calls Default.ReceiveFrom.
func ReceiveFrom(s *sockets.Socket, b []byte, flags int) (int, unix.Sockaddr) {
	return Default.ReceiveFrom(s, b, flags)
}

// Close calls Default.Close.
func Close(s *sockets.Socket) {
	Default.Close(s)
}

// Shutdown calls Default.Shutdown.
func Shutdown(s *sockets.Socket, how int) {
	Default.Shutdown(s, how)
}

// PeerName calls Default.PeerName.
func PeerName(s *sockets.Socket) unix.Sockaddr {
	return Default.PeerName(s)
}

// HostName calls Default.HostName.
func HostName(capacity int) string {
	return Default.HostName(capacity)
}
