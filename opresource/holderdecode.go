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
	"encoding/binary"
	"fmt"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// holderAccountTag values, the on-chain holder account's first data byte.
// These are a self-consistent stand-in for the settlement program's
// account layout, documented here rather than silently assumed to match
// the deployed program.
const (
	holderTagEmpty     byte = 0x00
	holderTagOnly      byte = 0x01
	holderTagActive    byte = 0x02
	holderTagFinalized byte = 0x03
)

// DefaultHolderDecoder implements HolderDecoder against that tag layout:
// [0]=tag, [1:33]=active tx signature (zero when not Active), [33:41]=chain
// id (little-endian).
type DefaultHolderDecoder struct{}

func (DefaultHolderDecoder) Decode(data []byte) (HolderStatus, common.Hash, uint64, error) {
	if len(data) == 0 {
		return HolderEmpty, common.Hash{}, 0, nil
	}
	if len(data) < 41 {
		return 0, common.Hash{}, 0, fmt.Errorf("holder account data too short: %d bytes", len(data))
	}

	var status HolderStatus
	switch data[0] {
	case holderTagEmpty:
		status = HolderEmpty
	case holderTagOnly:
		status = HolderOnly
	case holderTagActive:
		status = HolderActive
	case holderTagFinalized:
		status = HolderFinalized
	default:
		return 0, common.Hash{}, 0, fmt.Errorf("unknown holder tag %#x", data[0])
	}

	activeTxSig := common.BytesToHash(data[1:33])
	chainID := binary.LittleEndian.Uint64(data[33:41])
	return status, activeTxSig, chainID, nil
}
