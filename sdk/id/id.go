// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package id

import (
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// New generates an ID with an optional prefix. The ID is built from 20 bytes
// of crypto/rand entropy and is suitable for a state token or nonce.
func New(optionalPrefix string) (string, error) {
	data, err := uuid.GenerateRandomBytes(20)
	if err != nil {
		return "", fmt.Errorf("unable to generate id: %w", err)
	}
	id := base64.RawURLEncoding.EncodeToString(data)
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}
