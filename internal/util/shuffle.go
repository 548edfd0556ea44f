// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package util contains small generic helpers.
package util

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand"
)

// Shuffle shuffles the elements of a slice in place (Fisher-Yates) and
// returns it.
func Shuffle[T any](s []T) []T {
	for i := len(s) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
	return s
}

func randIntn(n int) int {
	jBig, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return mathrand.Intn(n)
	}
	return int(jBig.Int64())
}
