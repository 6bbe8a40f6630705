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

// Package common holds the domain value types shared by every other
// package: Ethereum-side addresses/hashes and Solana-side pubkeys/
// signatures, plus the commitment-level lattice.
package common

import (
	"encoding/hex"
	"fmt"
)

// Address is a 20-byte Ethereum account address.
type Address [20]byte

func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }
func (a Address) String() string { return a.Hex() }

// Hash is a 32-byte Ethereum hash (block hash, tx hash, topic, ...).
type Hash [32]byte

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) String() string { return h.Hex() }

// BytesToHash left-pads or truncates b into a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > len(h) {
		b = b[len(b)-len(h):]
	}
	copy(h[len(h)-len(b):], b)
	return h
}

func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > len(a) {
		b = b[len(b)-len(a):]
	}
	copy(a[len(a)-len(b):], b)
	return a
}

// Pubkey is a 32-byte settlement-chain (Solana) account public key.
type Pubkey [32]byte

func (p Pubkey) String() string { return base58Encode(p[:]) }

// Signature is a 64-byte settlement-chain transaction signature.
type Signature [64]byte

func (s Signature) String() string { return base58Encode(s[:]) }

// CommitLevel is the strict ordering NotProcessed < Processed < Confirmed <
// Safe < Finalized. Safe is the internal synonym for
// "≥⅔ voted"; the Chain Adapter maps it to the chain RPC's "Confirmed" value
// when issuing a request, but internally the two are distinct
// because Safe additionally drives the 400-block escalation in check_confirm.
type CommitLevel int

const (
	NotProcessed CommitLevel = iota
	Processed
	Confirmed
	Safe
	Finalized
)

func (c CommitLevel) String() string {
	switch c {
	case NotProcessed:
		return "NotProcessed"
	case Processed:
		return "Processed"
	case Confirmed:
		return "Confirmed"
	case Safe:
		return "Safe"
	case Finalized:
		return "Finalized"
	default:
		return fmt.Sprintf("CommitLevel(%d)", int(c))
	}
}

// ParseCommitLevel parses the config-file spelling of a commitment level.
func ParseCommitLevel(s string) (CommitLevel, error) {
	switch s {
	case "NotProcessed":
		return NotProcessed, nil
	case "Processed":
		return Processed, nil
	case "Confirmed":
		return Confirmed, nil
	case "Safe":
		return Safe, nil
	case "Finalized":
		return Finalized, nil
	default:
		return NotProcessed, fmt.Errorf("unknown commit level %q", s)
	}
}

// AtLeast reports whether c satisfies a minimum requirement of min.
func (c CommitLevel) AtLeast(min CommitLevel) bool { return c >= min }

// RPCCommitment maps Safe to the chain RPC's "Confirmed" spelling, the only
// place in the codebase where the two are conflated.
func (c CommitLevel) RPCCommitment() string {
	switch c {
	case Safe:
		return "confirmed"
	case Finalized:
		return "finalized"
	case Confirmed:
		return "confirmed"
	case Processed:
		return "processed"
	default:
		return "processed"
	}
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// base58Encode is the minimal base58 (Bitcoin/Solana alphabet) encoder used
// only for human-readable String() forms of Pubkey/Signature; it is not on
// any hot path and never participates in wire encoding (txcodec owns that).
func base58Encode(b []byte) string {
	zero := byte(0)
	zeros := 0
	for zeros < len(b) && b[zeros] == zero {
		zeros++
	}

	input := make([]byte, len(b))
	copy(input, b)
	var out []byte
	for len(input) > 0 {
		// Divide input (big-endian base-256) by 58, collecting remainders.
		var rem int
		newInput := make([]byte, 0, len(input))
		started := false
		for _, digit := range input {
			acc := rem*256 + int(digit)
			q := acc / 58
			rem = acc % 58
			if q != 0 || started {
				newInput = append(newInput, byte(q))
				started = true
			}
		}
		out = append(out, base58Alphabet[rem])
		input = newInput
	}
	for i := 0; i < zeros; i++ {
		out = append(out, base58Alphabet[0])
	}
	// reverse
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
