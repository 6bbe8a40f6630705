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

package indexer

import (
	"testing"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/stretchr/testify/require"
)

func TestDecodeBlockPayloadParsesInstructions(t *testing.T) {
	raw := []byte(`{
		"transactions": [{
			"transaction": {
				"signatures": ["111111111111111111111111111111"],
				"message": {
					"accountKeys": ["111111111111111111111111111112", "111111111111111111111111111113"],
					"instructions": [{"programIdIndex": 1, "accounts": [0], "data": "2"}]
				}
			}
		}]
	}`)

	payload, err := DecodeBlockPayload(42, common.Hash{1}, 41, raw)
	require.NoError(t, err)
	require.Equal(t, uint64(42), payload.Slot)
	require.Len(t, payload.Instructions, 1)
	require.Equal(t, pubkeyFromBase58("111111111111111111111111111113"), payload.Instructions[0].ProgramID)
	require.Len(t, payload.Instructions[0].Accounts, 1)
}
