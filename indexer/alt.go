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

// ApplyALTInstruction records (or updates) a block's view of one address
// lookup table's referencing signature.H's ALT close-out
// tracking. It is called alongside ApplyInstruction for any instruction
// whose ProgramID is the ALT program, which uses its own op-code space
// distinct from the settlement program's tags in decode.go. The Housekeeper
// (executor package) makes the deactivate/close decision; the indexer only
// maintains the facts it observes.
func ApplyALTInstruction(block *NeonIndexedBlock, ix RawInstruction) {
	if len(ix.Accounts) == 0 {
		return
	}
	altAddress := ix.Accounts[0]
	info, ok := block.ALTs[altAddress]
	if !ok {
		info = &ALTInfo{Address: altAddress}
		block.ALTs[altAddress] = info
	}
	info.ReferencingSigs = append(info.ReferencingSigs, ix.SenderSig)

	if len(ix.Data) > 0 {
		switch ix.Data[0] {
		case tagAltFreeze:
			info.Frozen = true
		case tagAltClose:
			info.Closed = true
		}
	}
}

const (
	tagAltFreeze byte = 0x05
	tagAltClose  byte = 0x04
)
