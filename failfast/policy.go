// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package failfast wraps the sockets package with a fail-fast policy: any
// failing operation writes a one line diagnostic to standard error and
// terminates the process. Successful operations return their values
// unchanged.
package failfast

import (
	"errors"
	"log/slog"
	"os"

	"github.com/noisysockets/sockets"
)

// ExitFailure is the exit status of a process terminated by the policy.
const ExitFailure = 1

// Policy decides what happens when a wrapped operation fails.
type Policy struct {
	logger   *slog.Logger
	exit     func(code int)
	resolver *sockets.Resolver
}

// Default is the policy used by the package level functions. It logs to
// standard error and calls os.Exit.
var Default = New(nil, nil)

// New creates a policy. A nil logger writes text to standard error, a nil
// exit function is os.Exit.
func New(logger *slog.Logger, exit func(code int)) *Policy {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if exit == nil {
		exit = os.Exit
	}

	return &Policy{
		logger:   logger,
		exit:     exit,
		resolver: sockets.DefaultResolver,
	}
}

// WithResolver returns a copy of the policy that resolves names using r.
func (p *Policy) WithResolver(r *sockets.Resolver) *Policy {
	pp := *p
	pp.resolver = r
	return &pp
}

// Fail reports err and terminates the process. It only returns if the
// policy's exit function does.
func (p *Policy) Fail(err error) {
	op := "unknown"
	var opErr *sockets.OpError
	if errors.As(err, &opErr) {
		op = opErr.Op
	}

	p.logger.Error(err.Error(), slog.String("op", op))
	p.exit(ExitFailure)
}

// Warn reports a condition worth a diagnostic that is not a failure.
func (p *Policy) Warn(op, msg string) {
	p.logger.Warn(msg, slog.String("op", op))
}

// check invokes the policy if err is non-nil, and reports whether the
// operation succeeded.
func (p *Policy) check(err error) bool {
	if err != nil {
		p.Fail(err)
		return false
	}
	return true
}
