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

// Package opresource is the Operator Resource Manager: a pool
// of (signer, resource-id, holder-pubkey) tuples cycling through
// Disabled → Enabled → Taken, pinning resources to in-flight ETx signatures.
//
// One mutex guards the whole pool; resource ids are minted with
// github.com/hashicorp/go-uuid.
package opresource

import (
	"sync"

	"github.com/hashicorp/go-uuid"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/metrics"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
)

var logger = nlog.New("opresource")

// State is an OpRes's lifecycle state.
type State int

const (
	Disabled State = iota
	Enabled
	Taken
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "Disabled"
	case Enabled:
		return "Enabled"
	case Taken:
		return "Taken"
	default:
		return "Unknown"
	}
}

// HolderStatus is the on-chain holder account's status.
type HolderStatus int

const (
	HolderEmpty HolderStatus = iota
	HolderOnly
	HolderActive
	HolderFinalized
)

// OpRes is one (signer, resource-id, holder-pubkey) tuple.
type OpRes struct {
	ResourceID   string
	Signer       common.Pubkey
	Holder       common.Pubkey
	state        State
	pinnedTxSig  common.Hash
	hasPin       bool
}

func (r *OpRes) State() State { return r.state }

// Manager owns the full resource set and the round-robin acquire cursor.
type Manager struct {
	mu        sync.Mutex
	resources []*OpRes
	byID      map[string]*OpRes
	bySig     map[common.Hash]*OpRes
	cursor    int
}

func NewManager() *Manager {
	return &Manager{byID: make(map[string]*OpRes), bySig: make(map[common.Hash]*OpRes)}
}

// Register adds a new resource in the Disabled state, built from one
// configured signer keypair + its configured holder account address.
func (m *Manager) Register(signer, holder common.Pubkey) (*OpRes, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, xerr.Wrapf(err, "generate resource id")
	}
	r := &OpRes{ResourceID: id, Signer: signer, Holder: holder, state: Disabled}
	m.mu.Lock()
	m.resources = append(m.resources, r)
	m.byID[id] = r
	m.mu.Unlock()
	m.refreshGauges()
	return r, nil
}

// List returns a snapshot of every registered resource, for admin/CLI
// inspection (e.g. the neon-proxy holder list subcommand).
func (m *Manager) List() []*OpRes {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*OpRes, len(m.resources))
	copy(out, m.resources)
	return out
}

// GetDisabled returns the first Disabled resource for initialization,
// leaving its state unchanged.
func (m *Manager) GetDisabled() *OpRes {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.resources {
		if r.state == Disabled {
			return r
		}
	}
	return nil
}

// Enable transitions res to Enabled after successful initialization.
func (m *Manager) Enable(res *OpRes) {
	m.mu.Lock()
	res.state = Enabled
	m.mu.Unlock()
	m.refreshGauges()
}

// Disable transitions res back to Disabled, e.g. on BadResourceError.
func (m *Manager) Disable(res *OpRes) {
	m.mu.Lock()
	res.state = Disabled
	if res.hasPin {
		delete(m.bySig, res.pinnedTxSig)
		res.hasPin = false
	}
	m.mu.Unlock()
	m.refreshGauges()
	logger.Warn("resource disabled", "resource_id", res.ResourceID)
}

// Acquire returns the resource already pinned to ethereumTxSig if one
// exists, otherwise round-robins across Enabled resources and pins the
// chosen one.
func (m *Manager) Acquire(ethereumTxSig common.Hash) *OpRes {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.bySig[ethereumTxSig]; ok {
		return r
	}

	n := len(m.resources)
	for i := 0; i < n; i++ {
		idx := (m.cursor + i) % n
		r := m.resources[idx]
		if r.state == Enabled {
			r.state = Taken
			r.pinnedTxSig = ethereumTxSig
			r.hasPin = true
			m.bySig[ethereumTxSig] = r
			m.cursor = (idx + 1) % n
			m.refreshGaugesLocked()
			return r
		}
	}
	return nil
}

// Release returns res to the Enabled pool.
func (m *Manager) Release(res *OpRes, ethereumTxSig common.Hash) {
	m.mu.Lock()
	if res.hasPin && res.pinnedTxSig == ethereumTxSig {
		delete(m.bySig, ethereumTxSig)
		res.hasPin = false
	}
	if res.state == Taken {
		res.state = Enabled
	}
	m.mu.Unlock()
	m.refreshGauges()
}

func (m *Manager) refreshGauges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshGaugesLocked()
}

func (m *Manager) refreshGaugesLocked() {
	var enabled, disabled, taken int64
	for _, r := range m.resources {
		switch r.state {
		case Enabled:
			enabled++
		case Disabled:
			disabled++
		case Taken:
			taken++
		}
	}
	metrics.ResourceEnabledCount.Update(enabled)
	metrics.ResourceDisabledCount.Update(disabled)
	metrics.ResourceTakenCount.Update(taken)
}
