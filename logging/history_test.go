// Copyright (c) oidcauth contributors
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"fmt"
	"io/ioutil"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistorySink(t *testing.T) {
	t.Parallel()

	t.Run("retains-in-order", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewHistorySink(10)
		s.Accept("auth", hclog.Info, "first", "k", "v")
		s.Accept("auth", hclog.Warn, "second")

		got := s.Entries()
		require.Len(got, 2)
		assert.Equal("first", got[0].Msg)
		assert.Equal(hclog.Info, got[0].Level)
		assert.Equal([]interface{}{"k", "v"}, got[0].Args)
		assert.Equal("second", got[1].Msg)
	})
	t.Run("overwrites-oldest-at-limit", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewHistorySink(3)
		for i := 0; i < 5; i++ {
			s.Accept("auth", hclog.Info, fmt.Sprintf("msg-%d", i))
		}
		got := s.Entries()
		require.Len(got, 3)
		assert.Equal("msg-2", got[0].Msg)
		assert.Equal("msg-4", got[2].Msg)
		assert.Equal(3, s.Len())
	})
	t.Run("default-limit", func(t *testing.T) {
		assert := assert.New(t)
		s := NewHistorySink(0)
		for i := 0; i < DefaultHistoryLimit+5; i++ {
			s.Accept("", hclog.Debug, "x")
		}
		assert.Equal(DefaultHistoryLimit, s.Len())
	})
	t.Run("clear", func(t *testing.T) {
		assert := assert.New(t)
		s := NewHistorySink(3)
		s.Accept("", hclog.Info, "x")
		s.Clear()
		assert.Zero(s.Len())
		assert.Empty(s.Entries())
	})
	t.Run("registers-as-sink", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewHistorySink(10)
		logger := hclog.NewInterceptLogger(&hclog.LoggerOptions{
			Name:   "rp",
			Level:  hclog.Debug,
			Output: ioutil.Discard,
		})
		logger.RegisterSink(s)
		logger.Info("hello", "user", "alice")

		require.Equal(1, s.Len())
		got := s.Entries()[0]
		assert.Equal("hello", got.Msg)
		assert.Contains(got.Args, "user")
	})
}
