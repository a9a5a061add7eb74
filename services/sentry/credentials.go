// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentry

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// Credentials holds the controller login. The password lives in a memguard
// enclave so it is encrypted at rest in process memory and only decrypted
// for the few microseconds an authentication request is being built.
type Credentials struct {
	Username string
	password *memguard.Enclave
}

// NewCredentials seals the password into an enclave. The plaintext argument
// should not be retained by the caller.
func NewCredentials(username, password string) Credentials {
	return Credentials{
		Username: username,
		password: memguard.NewEnclave([]byte(password)),
	}
}

// openPassword decrypts the password for immediate use. The returned
// destroy function must be called as soon as the plaintext has been
// consumed.
func (c Credentials) openPassword() (string, func(), error) {
	if c.password == nil {
		return "", nil, fmt.Errorf("credentials not initialized")
	}
	buf, err := c.password.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open credential enclave: %w", err)
	}
	return buf.String(), buf.Destroy, nil
}
