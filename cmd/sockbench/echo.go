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
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/noisysockets/sockets"
	"github.com/noisysockets/sockets/internal/multilistener"
	"golang.org/x/sys/unix"
)

// endpoint is an address the echo server is listening on.
type endpoint struct {
	ai   sockets.AddrInfo
	addr unix.Sockaddr
}

// echoServer echoes everything it receives on each accepted connection
// back to the sender.
type echoServer struct {
	logger    *slog.Logger
	lis       *multilistener.Listener
	endpoints []endpoint

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// newEchoServer listens on each of the candidate addresses that can be
// bound. It fails only if none can.
func newEchoServer(logger *slog.Logger, candidates []sockets.AddrInfo) (*echoServer, error) {
	var listeners []*sockets.Socket
	var endpoints []endpoint
	var errs *multierror.Error

	for _, ai := range candidates {
		lis, addr, err := listen(ai)
		if err != nil {
			logger.Warn("Failed to listen",
				"addr", sockets.FormatSockaddr(ai.Addr), "error", err)
			errs = multierror.Append(errs, err)
			continue
		}

		listeners = append(listeners, lis)
		endpoints = append(endpoints, endpoint{ai: ai, addr: addr})
	}

	if len(listeners) == 0 {
		return nil, fmt.Errorf("no usable listen address: %w", errs.ErrorOrNil())
	}

	ml, err := multilistener.New(listeners...)
	if err != nil {
		return nil, err
	}

	return &echoServer{
		logger:    logger,
		lis:       ml,
		endpoints: endpoints,
	}, nil
}

func listen(ai sockets.AddrInfo) (*sockets.Socket, unix.Sockaddr, error) {
	lis, err := sockets.NewSocket(ai.Family, ai.SocketType, ai.Protocol)
	if err != nil {
		return nil, nil, err
	}

	addr, err := func() (unix.Sockaddr, error) {
		if err := lis.SetOption(unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return nil, err
		}

		// Keep the families apart, there is a listener for each.
		if ai.Family == unix.AF_INET6 {
			if err := lis.SetOption(unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
				return nil, err
			}
		}

		if err := lis.Bind(ai.Addr); err != nil {
			return nil, err
		}

		if err := lis.Listen(sockets.DefaultBacklog); err != nil {
			return nil, err
		}

		return lis.LocalAddr()
	}()
	if err != nil {
		_ = lis.Close()
		return nil, nil, err
	}

	return lis, addr, nil
}

// Serve accepts connections until the server is closed.
func (s *echoServer) Serve() {
	for {
		conn, peerAddr, err := s.lis.Accept()
		if err != nil {
			// Listeners that are shut down report EINVAL.
			if errors.Is(err, multilistener.ErrClosed) || errors.Is(err, unix.EINVAL) {
				return
			}
			s.logger.Error("Failed to accept connection", "error", err)
			continue
		}

		s.logger.Debug("Accepted connection", "peer", sockets.FormatSockaddr(peerAddr))

		// Close may already be waiting on the open connections.
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			defer conn.Close()

			if err := echo(conn); err != nil {
				s.logger.Warn("Failed to echo", "peer", sockets.FormatSockaddr(peerAddr), "error", err)
			}
		}()
	}
}

// Close stops accepting connections and waits for open connections to
// finish.
func (s *echoServer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.lis.Close()
	s.wg.Wait()
	return err
}

func echo(conn *sockets.Socket) error {
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Receive(buf, 0)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		if err := sendAll(conn, buf[:n]); err != nil {
			return err
		}
	}
}

// sendAll sends the whole of b, which may take more than one send.
func sendAll(conn *sockets.Socket, b []byte) error {
	for len(b) > 0 {
		n, err := conn.Send(b, unix.MSG_NOSIGNAL)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// exchange opens a connection to the endpoint, sends msg and checks that it is
// echoed back unchanged.
func exchange(ep endpoint, msg []byte) error {
	conn, err := sockets.NewSocket(ep.ai.Family, ep.ai.SocketType, ep.ai.Protocol)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Connect(ep.addr); err != nil {
		return err
	}

	// Send and receive at the same time, the echo would otherwise fill the
	// socket buffers of a large message and stall both ends.
	sendErr := make(chan error, 1)
	go func() {
		err := sendAll(conn, msg)
		if err == nil {
			err = conn.Shutdown(unix.SHUT_WR)
		}
		sendErr <- err
	}()

	reply, recvErr := receiveAll(conn, len(msg))
	if recvErr != nil {
		_ = conn.Shutdown(unix.SHUT_RDWR)
	}

	if err := <-sendErr; err != nil && recvErr == nil {
		return err
	}
	if recvErr != nil {
		return recvErr
	}

	if !bytes.Equal(msg, reply) {
		return fmt.Errorf("echoed %d bytes, expected %d", len(reply), len(msg))
	}

	return nil
}

// receiveAll reads until the peer shuts down its side of the connection.
func receiveAll(conn *sockets.Socket, sizeHint int) ([]byte, error) {
	data := make([]byte, 0, sizeHint)
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Receive(buf, 0)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return data, nil
		}
		data = append(data, buf[:n]...)
	}
}
