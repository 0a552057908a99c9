// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultPasswordLength is the length of passwords assigned to accounts
// created through the login flow. The password is never shown to anyone; it
// only exists to satisfy stores which require one.
const DefaultPasswordLength = 32

const passwordCharset = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"0123456789" +
	"!@#$%^&*()-_=+"

// GeneratePassword returns a random password of length n drawn from a mixed
// charset of letters, digits and punctuation.
func GeneratePassword(n int) (string, error) {
	if n <= 0 {
		n = DefaultPasswordLength
	}
	data, err := uuid.GenerateRandomBytes(n)
	if err != nil {
		return "", fmt.Errorf("unable to generate password entropy: %w", err)
	}
	pw := make([]byte, n)
	for i, b := range data {
		pw[i] = passwordCharset[int(b)%len(passwordCharset)]
	}
	return string(pw), nil
}
