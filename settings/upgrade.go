// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"fmt"

	"github.com/blang/semver"

	"github.com/oidcauth/rp/oidc"
)

// SchemaVersion is the current settings schema version. Stored settings
// written for an older version are migrated forward by Upgrade.
const SchemaVersion = "1.2.0"

// migrations run in order against settings whose version is below the given
// threshold.
var migrations = []struct {
	below semver.Version
	apply func(*Settings)
}{
	{
		// 1.1.0 introduced the durable identity key; earlier settings keyed
		// identity off the bare subject.
		below: semver.MustParse("1.1.0"),
		apply: func(s *Settings) {
			if s.IdentityKey == "" {
				s.IdentityKey = oidc.DefaultIdentityKey
			}
		},
	},
	{
		// 1.2.0 introduced explicit flow timeouts.
		below: semver.MustParse("1.2.0"),
		apply: func(s *Settings) {
			if s.StateTimeLimit <= 0 {
				s.StateTimeLimit = oidc.DefaultStateTimeLimit
			}
			if s.RequestTimeout <= 0 {
				s.RequestTimeout = oidc.DefaultRequestTimeout
			}
			if s.LogLimit <= 0 {
				s.LogLimit = 1000
			}
		},
	},
}

// Upgrade migrates s forward to the current schema version. An empty
// version is treated as pre-versioning (0.0.0). Versions from the future
// are rejected rather than guessed at.
func Upgrade(s *Settings) error {
	const op = "settings.Upgrade"
	from := s.Version
	if from == "" {
		from = "0.0.0"
	}
	v, err := semver.ParseTolerant(from)
	if err != nil {
		return fmt.Errorf("%s: unparseable settings version %q: %w", op, s.Version, err)
	}
	current := semver.MustParse(SchemaVersion)
	if v.GT(current) {
		return fmt.Errorf("%s: settings version %s is newer than supported %s: %w",
			op, v, current, oidc.ErrInvalidConfiguration)
	}
	for _, m := range migrations {
		if v.LT(m.below) {
			m.apply(s)
		}
	}
	s.Version = SchemaVersion
	return nil
}
