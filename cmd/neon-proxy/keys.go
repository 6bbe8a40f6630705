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

package main

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// loadOperatorKeypairs reads the configured signer keypair files and
// returns an operatorKeyset ready for registration and for resolving a
// settlement tx's fee payer back to a private key; holder keypairs are
// attached separately by attachHolderKeypairs.
//
// Each keypair file is the standard Solana CLI format: a JSON array of 64
// bytes holding an ed25519 private key (32-byte seed + 32-byte public key),
// which is exactly the shape of Go's ed25519.PrivateKey.
func loadOperatorKeypairs(signerPaths []string) (*operatorKeyset, error) {
	ks := &operatorKeyset{byPubkey: make(map[common.Pubkey]ed25519.PrivateKey)}
	for _, path := range signerPaths {
		priv, pub, err := loadKeypairFile(path)
		if err != nil {
			return nil, fmt.Errorf("load signer keypair %s: %w", path, err)
		}
		holder := pub // standing in for the signer's own account until a
		// program-derived holder address is wired; the caller overwrites
		// this with the paired holder keypair below when configured.
		ks.operators = append(ks.operators, operatorKey{signer: pub, holder: holder, priv: priv})
		ks.byPubkey[pub] = priv
	}
	return ks, nil
}

func loadKeypairFile(path string) (ed25519.PrivateKey, common.Pubkey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.Pubkey{}, err
	}
	// The file is a JSON array of byte values, not a base64 string, so it
	// cannot be unmarshaled into []byte directly.
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return nil, common.Pubkey{}, fmt.Errorf("decode keypair json: %w", err)
	}
	if len(nums) != ed25519.PrivateKeySize {
		return nil, common.Pubkey{}, fmt.Errorf("keypair file %s: expected %d bytes, got %d", path, ed25519.PrivateKeySize, len(nums))
	}
	raw := make([]byte, len(nums))
	for i, n := range nums {
		raw[i] = byte(n)
	}
	priv := ed25519.PrivateKey(raw)
	var pub common.Pubkey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return priv, pub, nil
}

func attachHolderKeypairs(ks *operatorKeyset, holderPaths []string) error {
	for i, path := range holderPaths {
		if i >= len(ks.operators) {
			break
		}
		_, pub, err := loadKeypairFile(path)
		if err != nil {
			return fmt.Errorf("load holder keypair %s: %w", path, err)
		}
		ks.operators[i].holder = pub
	}
	return nil
}
