// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sockets

import (
	"context"
	"errors"
	stdnet "net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAdapters(t *testing.T) {
	t.Run("Status", func(t *testing.T) {
		require.NoError(t, checkStatus("bind", nil))

		err := checkStatus("bind", unix.EADDRINUSE)
		require.ErrorIs(t, err, unix.EADDRINUSE)
		require.Equal(t, "bind error: address already in use", err.Error())
	})

	t.Run("Handle", func(t *testing.T) {
		fd, err := checkHandle("socket", 3, nil)
		require.NoError(t, err)
		require.Equal(t, 3, fd)

		fd, err = checkHandle("socket", -1, nil)
		require.ErrorIs(t, err, unix.EBADF)
		require.Equal(t, -1, fd)

		_, err = checkHandle("accept", -1, unix.EMFILE)
		require.ErrorIs(t, err, unix.EMFILE)
	})

	t.Run("Count", func(t *testing.T) {
		n, err := checkCount("send", 5, nil)
		require.NoError(t, err)
		require.Equal(t, 5, n)

		n, err = checkCount("send", -1, nil)
		require.ErrorIs(t, err, unix.EINVAL)
		require.Zero(t, n)

		_, err = checkCount("send", 0, unix.EPIPE)
		require.ErrorIs(t, err, unix.EPIPE)
	})

	t.Run("Receive zero is not a failure", func(t *testing.T) {
		n, err := checkReceive("recv", 0, nil)
		require.NoError(t, err)
		require.Zero(t, n)

		_, err = checkReceive("recv", -1, nil)
		require.Error(t, err)
	})

	t.Run("Resolve", func(t *testing.T) {
		require.NoError(t, checkResolve(0))

		err := checkResolve(EAI_AGAIN)
		require.Equal(t, "getaddrinfo error: Temporary failure in name resolution", err.Error())

		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		require.True(t, opErr.Temporary())
		require.False(t, opErr.Timeout())
	})

	t.Run("Query", func(t *testing.T) {
		name, err := checkQuery("gethostname", "host", nil)
		require.NoError(t, err)
		require.Equal(t, "host", name)

		name, err = checkQuery("gethostname", "host", unix.ENAMETOOLONG)
		require.ErrorIs(t, err, unix.ENAMETOOLONG)
		require.Empty(t, name)
	})
}

func TestIgnoreEINTR(t *testing.T) {
	var calls int
	err := ignoreEINTR(func() error {
		calls++
		if calls < 3 {
			return unix.EINTR
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	n, err := ignoreEINTR2(func() (int, error) {
		calls++
		if calls < 2 {
			return -1, unix.EINTR
		}
		return 42, unix.EAGAIN
	})
	require.ErrorIs(t, err, unix.EAGAIN)
	require.Equal(t, 42, n)
}

func TestAddrinfoErrno(t *testing.T) {
	require.Equal(t, "Name or service not known", EAI_NONAME.Error())
	require.Equal(t, "Servname not supported for ai_socktype", EAI_SERVICE.Error())
	require.Equal(t, "Unknown error -100", AddrinfoErrno(-100).Error())

	tests := []struct {
		name string
		err  error
		want AddrinfoErrno
	}{
		{"Not found", &stdnet.DNSError{IsNotFound: true}, EAI_NONAME},
		{"Temporary", &stdnet.DNSError{IsTemporary: true}, EAI_AGAIN},
		{"Timeout", &stdnet.DNSError{IsTimeout: true}, EAI_AGAIN},
		{"Deadline", context.DeadlineExceeded, EAI_AGAIN},
		{"Other DNS error", &stdnet.DNSError{Err: "server misbehaving"}, EAI_FAIL},
		{"Other error", errors.New("boom"), EAI_FAIL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, eaiFromLookupError(tt.err))
		})
	}
}
