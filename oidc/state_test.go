// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		st, err := NewState(1 * time.Minute)
		require.NoError(err)
		assert.True(strings.HasPrefix(st.ID(), "st_"))
		assert.True(strings.HasPrefix(st.Nonce(), "n_"))
		assert.NotEqual(st.ID(), st.Nonce())
		assert.False(st.IsExpired())
	})
	t.Run("ids-are-unique", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewState(1 * time.Minute)
		require.NoError(err)
		b, err := NewState(1 * time.Minute)
		require.NoError(err)
		assert.NotEqual(a.ID(), b.ID())
		assert.NotEqual(a.Nonce(), b.Nonce())
	})
	t.Run("zero-expiry-rejected", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewState(0)
		require.Error(err)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
}

func TestState_IsExpired(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	// the default skew treats anything expiring inside a second as expired
	st, err := NewState(10 * time.Millisecond)
	require.NoError(err)
	assert.True(st.IsExpired())
	assert.False(st.IsExpired(WithExpirySkew(-1*time.Minute)))

	st, err = NewState(1 * time.Hour)
	require.NoError(err)
	assert.False(st.IsExpired())
	assert.True(st.IsExpired(WithExpirySkew(2*time.Hour)))
}
