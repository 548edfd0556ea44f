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
	"strconv"
)

// AddrinfoErrno is a getaddrinfo specific error number. It is not an errno,
// resolution failures are reported separately from the OS error mechanism.
// The values follow glibc.
type AddrinfoErrno int

const (
	EAI_BADFLAGS   AddrinfoErrno = -1
	EAI_NONAME     AddrinfoErrno = -2
	EAI_AGAIN      AddrinfoErrno = -3
	EAI_FAIL       AddrinfoErrno = -4
	EAI_NODATA     AddrinfoErrno = -5
	EAI_FAMILY     AddrinfoErrno = -6
	EAI_SOCKTYPE   AddrinfoErrno = -7
	EAI_SERVICE    AddrinfoErrno = -8
	EAI_ADDRFAMILY AddrinfoErrno = -9
	EAI_MEMORY     AddrinfoErrno = -10
	EAI_SYSTEM     AddrinfoErrno = -11
	EAI_OVERFLOW   AddrinfoErrno = -12
)

var eaiText = map[AddrinfoErrno]string{
	EAI_BADFLAGS:   "Bad value for ai_flags",
	EAI_NONAME:     "Name or service not known",
	EAI_AGAIN:      "Temporary failure in name resolution",
	EAI_FAIL:       "Non-recoverable failure in name resolution",
	EAI_NODATA:     "No address associated with hostname",
	EAI_FAMILY:     "ai_family not supported",
	EAI_SOCKTYPE:   "ai_socktype not supported",
	EAI_SERVICE:    "Servname not supported for ai_socktype",
	EAI_ADDRFAMILY: "Address family for hostname not supported",
	EAI_MEMORY:     "Memory allocation failure",
	EAI_SYSTEM:     "System error",
	EAI_OVERFLOW:   "Argument buffer overflow",
}

// Error returns the gai_strerror(3) text for the code.
func (eai AddrinfoErrno) Error() string {
	if text, ok := eaiText[eai]; ok {
		return text
	}
	return "Unknown error " + strconv.Itoa(int(eai))
}

func (eai AddrinfoErrno) Temporary() bool {
	return eai == EAI_AGAIN
}

func (eai AddrinfoErrno) Timeout() bool {
	return false
}

// eaiFromLookupError maps a name lookup failure onto a getaddrinfo code.
func eaiFromLookupError(err error) AddrinfoErrno {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return EAI_AGAIN
	}

	var dnsErr *stdnet.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return EAI_NONAME
		case dnsErr.IsTemporary, dnsErr.IsTimeout:
			return EAI_AGAIN
		}
	}

	return EAI_FAIL
}
