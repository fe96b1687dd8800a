// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "errors"

var (
	// ErrNotFound is returned when a row does not exist or is not owned
	// by the requesting user. The two cases are deliberately not
	// distinguished so handlers cannot leak existence.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned by CreateUser for an email that is
	// already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInsufficientCredits is returned by DebitCredits when the balance
	// cannot cover the charge. No debit happens.
	ErrInsufficientCredits = errors.New("insufficient credits")
)
