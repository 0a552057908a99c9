// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every settings environment variable, so the
// client id is read from OIDC_CLIENT_ID and so on.
const EnvPrefix = "OIDC_"

// FromEnv reads Settings from the process environment and runs any pending
// schema upgrade on them.
func FromEnv() (*Settings, error) {
	const op = "settings.FromEnv"
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := Upgrade(&s); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &s, nil
}
