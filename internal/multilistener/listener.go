//go:build linux

// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 *
 * Portions of this file are based on code originally:
 *
 * Copyright (c) 2016 Daniel Garcia
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package multilistener accepts connections from several listening sockets
// as if they were one, eg. an IPv4 and an IPv6 listener for the same host.
package multilistener

import (
	"errors"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/noisysockets/sockets"
	"golang.org/x/sys/unix"
)

// ErrClosed is returned by Accept once the listener has been closed.
var ErrClosed = errors.New("listener is closed")

// Listener multiplexes the connections accepted by a set of listening
// sockets.
type Listener struct {
	listeners []*sockets.Socket
	closeOnce sync.Once
	closing   chan struct{}
	conns     chan acceptResult
	wg        sync.WaitGroup
}

type acceptResult struct {
	conn *sockets.Socket
	peer unix.Sockaddr
	err  error
}

// New creates a listener that accepts from each of the given listening
// sockets, and takes ownership of them. At least one is required.
func New(listeners ...*sockets.Socket) (*Listener, error) {
	if len(listeners) == 0 {
		return nil, errors.New("multilistener requires at least 1 listener")
	}

	ml := &Listener{
		listeners: listeners,
		closing:   make(chan struct{}),
		conns:     make(chan acceptResult),
	}

	for _, lis := range ml.listeners {
		ml.wg.Add(1)
		go ml.acceptLoop(lis)
	}

	return ml, nil
}

// Accept waits for a connection on any of the underlying sockets.
func (ml *Listener) Accept() (*sockets.Socket, unix.Sockaddr, error) {
	select {
	case r := <-ml.conns:
		return r.conn, r.peer, r.err
	case <-ml.closing:
		return nil, nil, ErrClosed
	}
}

// Close stops accepting and closes the underlying sockets. Only the first
// call has any effect.
func (ml *Listener) Close() error {
	var result *multierror.Error
	ml.closeOnce.Do(func() {
		close(ml.closing)

		// A blocked accept is woken by shutdown, not by close. Other systems
		// reject shutdown on a listening socket, hence the linux build tag.
		for _, lis := range ml.listeners {
			_ = lis.Shutdown(unix.SHUT_RDWR)
		}
		ml.wg.Wait()

		for _, lis := range ml.listeners {
			if err := lis.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	})
	return result.ErrorOrNil()
}

func (ml *Listener) acceptLoop(lis *sockets.Socket) {
	defer ml.wg.Done()

	for {
		conn, peer, err := lis.Accept()
		select {
		case ml.conns <- acceptResult{conn: conn, peer: peer, err: err}:
		case <-ml.closing:
			if err == nil {
				_ = conn.Close()
			}
			return
		}
	}
}
