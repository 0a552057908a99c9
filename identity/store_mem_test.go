// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("create-and-get", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewMemStore()
		id, err := s.CreateUser(ctx, "alice", "pw", "alice@example.com")
		require.NoError(err)

		u, err := s.GetUser(ctx, id)
		require.NoError(err)
		assert.Equal("alice", u.Username)
		assert.Equal("alice@example.com", u.Email)

		exists, err := s.UsernameExists(ctx, "alice")
		require.NoError(err)
		assert.True(exists)
		exists, err = s.UsernameExists(ctx, "bob")
		require.NoError(err)
		assert.False(exists)
	})
	t.Run("duplicate-username", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewMemStore()
		_, err := s.CreateUser(ctx, "alice", "pw", "")
		require.NoError(err)
		_, err = s.CreateUser(ctx, "alice", "pw", "")
		require.Error(err)
		assert.ErrorIs(err, ErrDuplicate)
	})
	t.Run("unknown-user", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewMemStore()
		_, err := s.GetUser(ctx, "nope")
		require.Error(err)
		assert.ErrorIs(err, ErrNotFound)
		err = s.SetUserMeta(ctx, "nope", "k", "v")
		require.Error(err)
		assert.ErrorIs(err, ErrNotFound)
	})
	t.Run("meta-roundtrip-and-find", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewMemStore()
		id, err := s.CreateUser(ctx, "alice", "pw", "")
		require.NoError(err)

		v, err := s.GetUserMeta(ctx, id, MetaSubjectIdentity)
		require.NoError(err)
		assert.Empty(v)

		require.NoError(s.SetUserMeta(ctx, id, MetaSubjectIdentity, "alice@idp"))
		v, err = s.GetUserMeta(ctx, id, MetaSubjectIdentity)
		require.NoError(err)
		assert.Equal("alice@idp", v)

		found, err := s.FindUsersByMeta(ctx, MetaSubjectIdentity, "alice@idp")
		require.NoError(err)
		require.Len(found, 1)
		assert.Equal(id, found[0].ID)

		found, err = s.FindUsersByMeta(ctx, MetaSubjectIdentity, "")
		require.NoError(err)
		assert.Empty(found)
	})
	t.Run("unique-meta-key", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewMemStore(MetaSubjectIdentity)
		first, err := s.CreateUser(ctx, "alice", "pw", "")
		require.NoError(err)
		second, err := s.CreateUser(ctx, "bob", "pw", "")
		require.NoError(err)

		require.NoError(s.SetUserMeta(ctx, first, MetaSubjectIdentity, "alice@idp"))
		err = s.SetUserMeta(ctx, second, MetaSubjectIdentity, "alice@idp")
		require.Error(err)
		assert.ErrorIs(err, ErrDuplicate)

		// Re-binding the same value to the same user is fine, as is a
		// duplicate on a key with no constraint.
		require.NoError(s.SetUserMeta(ctx, first, MetaSubjectIdentity, "alice@idp"))
		require.NoError(s.SetUserMeta(ctx, first, "color", "blue"))
		require.NoError(s.SetUserMeta(ctx, second, "color", "blue"))
	})
}
