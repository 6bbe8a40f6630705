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
	"encoding/json"
	"math/big"
	"strings"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// rawBlockJSON is the shape of getBlock's JSON-encoded response body,
// enough of it for instruction walking: account keys, per-transaction
// instruction lists, and signatures. Mirrors solana-core's RPC block
// encoding; unrecognized fields are left to the JSON decoder to drop.
type rawBlockJSON struct {
	Transactions []struct {
		Transaction struct {
			Signatures []string `json:"signatures"`
			Message    struct {
				AccountKeys  []string `json:"accountKeys"`
				Instructions []struct {
					ProgramIDIndex int    `json:"programIdIndex"`
					Accounts       []int  `json:"accounts"`
					Data           string `json:"data"`
				} `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
	} `json:"transactions"`
}

// DecodeBlockPayload turns one getBlock response body into a BlockPayload
// the live/reindex cursors can walk: an ordered instruction list addressed
// by ProgramID.
// slot/blockhash/parentSlot come from the Chain Adapter's own typed fields
// (solclient.BlockInfo) rather than being re-parsed out of raw, since those
// three are returned outside the JSON body on the wire.
func DecodeBlockPayload(slot uint64, blockhash common.Hash, parentSlot uint64, raw []byte) (*BlockPayload, error) {
	var body rawBlockJSON
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	payload := &BlockPayload{
		Slot:       slot,
		Blockhash:  blockhash,
		ParentSlot: parentSlot,
		Returns:    make(map[common.Hash]NeonTxReturn),
	}

	for _, tx := range body.Transactions {
		keys := make([]common.Pubkey, len(tx.Transaction.Message.AccountKeys))
		for i, k := range tx.Transaction.Message.AccountKeys {
			keys[i] = pubkeyFromBase58(k)
		}
		var sig common.Signature
		if len(tx.Transaction.Signatures) > 0 {
			sig = signatureFromBase58(tx.Transaction.Signatures[0])
		}

		for _, ix := range tx.Transaction.Message.Instructions {
			if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(keys) {
				continue
			}
			accounts := make([]common.Pubkey, 0, len(ix.Accounts))
			for _, idx := range ix.Accounts {
				if idx >= 0 && idx < len(keys) {
					accounts = append(accounts, keys[idx])
				}
			}
			payload.Instructions = append(payload.Instructions, RawInstruction{
				ProgramID: keys[ix.ProgramIDIndex],
				Accounts:  accounts,
				Data:      base58Decode(ix.Data),
				SenderSig: sig,
			})
		}
	}
	return payload, nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// base58Decode is duplicated from solclient's copy rather than imported,
// same rationale as decode.go's tag constants: indexer must not depend
// upward on the Chain Adapter package.
func base58Decode(s string) []byte {
	zeros := 0
	for zeros < len(s) && s[zeros] == base58Alphabet[0] {
		zeros++
	}
	num := big.NewInt(0)
	base := big.NewInt(58)
	for _, r := range s {
		idx := strings.IndexRune(base58Alphabet, r)
		if idx < 0 {
			continue
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(idx)))
	}
	decoded := num.Bytes()
	out := make([]byte, zeros+len(decoded))
	copy(out[zeros:], decoded)
	return out
}

func pubkeyFromBase58(s string) common.Pubkey {
	var p common.Pubkey
	copy(p[:], base58Decode(s))
	return p
}

func signatureFromBase58(s string) common.Signature {
	var sig common.Signature
	copy(sig[:], base58Decode(s))
	return sig
}
