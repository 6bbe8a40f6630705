// Copyright 2023 The neon-proxy-go Authors
// This file is part of the neon-proxy-go library.
//
// The neon-proxy-go library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The neon-proxy-go library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the neon-proxy-go library. If not, see <http://www.gnu.org/licenses/>.

package opresource

import (
	"testing"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/stretchr/testify/require"
)

func TestLifecycleDisabledEnabledTaken(t *testing.T) {
	m := NewManager()
	r, err := m.Register(common.Pubkey{1}, common.Pubkey{2})
	require.NoError(t, err)
	require.Equal(t, Disabled, r.State())

	require.Same(t, r, m.GetDisabled())
	m.Enable(r)
	require.Equal(t, Enabled, r.State())
	require.Nil(t, m.GetDisabled())

	var sig common.Hash
	sig[0] = 9
	acquired := m.Acquire(sig)
	require.Same(t, r, acquired)
	require.Equal(t, Taken, r.State())

	// Re-acquiring the same ethereum tx signature returns the same pinned resource.
	require.Same(t, r, m.Acquire(sig))

	m.Release(r, sig)
	require.Equal(t, Enabled, r.State())
}

func TestAcquireReturnsNilWhenNoneEnabled(t *testing.T) {
	m := NewManager()
	_, _ = m.Register(common.Pubkey{1}, common.Pubkey{2})
	var sig common.Hash
	require.Nil(t, m.Acquire(sig))
}

func TestDisableClearsPin(t *testing.T) {
	m := NewManager()
	r, _ := m.Register(common.Pubkey{1}, common.Pubkey{2})
	m.Enable(r)
	var sig common.Hash
	sig[0] = 1
	m.Acquire(sig)
	m.Disable(r)
	require.Equal(t, Disabled, r.State())
	require.Nil(t, m.Acquire(sig)) // no longer pinned, and no Enabled resource left to acquire
}

func TestListReturnsSnapshot(t *testing.T) {
	m := NewManager()
	m.Register(common.Pubkey{1}, common.Pubkey{2})
	m.Register(common.Pubkey{3}, common.Pubkey{4})
	require.Len(t, m.List(), 2)
}
