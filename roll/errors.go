// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package roll

import "errors"

// Errors defined by the roll package. No function here returns them: Roll
// reports an invalid size with its own formatted error.
var (
	// ErrInvalidDieSize indicates an invalid die size (must be > 0)
	ErrInvalidDieSize = errors.New("roll: invalid die size")

	// ErrInvalidDieCount indicates an invalid die count
	ErrInvalidDieCount = errors.New("roll: invalid die count")

	// ErrNilSource indicates a nil Source was provided
	ErrNilSource = errors.New("roll: source cannot be nil")
)
