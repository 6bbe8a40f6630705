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

package localdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfirmedOverlayPutGetPrune(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, 0, 0)
	require.NoError(t, err)
	defer db.Close()

	overlay := NewConfirmedOverlay(db)
	require.NoError(t, overlay.Put(ConfirmedBlock{Slot: 10, TxCount: 2}))
	require.NoError(t, overlay.Put(ConfirmedBlock{Slot: 20, TxCount: 5}))

	got, err := overlay.Get(10)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 2, got.TxCount)

	missing, err := overlay.Get(999)
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, overlay.PruneBelow(10))
	pruned, err := overlay.Get(10)
	require.NoError(t, err)
	require.Nil(t, pruned)

	stillThere, err := overlay.Get(20)
	require.NoError(t, err)
	require.NotNil(t, stillThere)
}
