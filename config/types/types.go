// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package types contains the parts of the configuration shared by every
// version.
package types

// TypeMeta identifies the version and kind of a configuration document.
type TypeMeta struct {
	Kind       string `yaml:"kind"`
	APIVersion string `yaml:"apiVersion"`
}

// Config is implemented by every version of the configuration.
type Config interface {
	GetKind() string
	GetAPIVersion() string
	PopulateTypeMeta()
}
