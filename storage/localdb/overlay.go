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
	"encoding/binary"
	"encoding/json"

	"github.com/syndtr/goleveldb/leveldb/util"
)

// ConfirmedBlock is the JSON-encoded shape stored for one confirmed (not yet
// finalized) slot, independent of indexer.NeonIndexedBlock so this package
// has no dependency on the indexer package.
type ConfirmedBlock struct {
	Slot      uint64 `json:"slot"`
	Blockhash [32]byte `json:"blockhash"`
	TxCount   int    `json:"tx_count"`
}

// ConfirmedOverlay persists the confirmed-head view across
// restarts, keyed by slot; entries below a finalized watermark are safe to
// drop since the finalized store is now authoritative for them.
type ConfirmedOverlay struct {
	db *DB
}

func NewConfirmedOverlay(db *DB) *ConfirmedOverlay {
	return &ConfirmedOverlay{db: db}
}

func slotKey(slot uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'c'
	binary.BigEndian.PutUint64(key[1:], slot)
	return key
}

func (o *ConfirmedOverlay) Put(block ConfirmedBlock) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	return o.db.Put(slotKey(block.Slot), data)
}

func (o *ConfirmedOverlay) Get(slot uint64) (*ConfirmedBlock, error) {
	data, err := o.db.Get(slotKey(slot))
	if err != nil || data == nil {
		return nil, err
	}
	var block ConfirmedBlock
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// PruneBelow deletes every confirmed entry at or below the finalized
// watermark, since the finalized store now owns that range. Walks a
// bounded leveldb range iterator rather than probing every slot number,
// walking a bounded iterator range rather than probing every slot.
func (o *ConfirmedOverlay) PruneBelow(finalizedSlot uint64) error {
	start := []byte{'c'}
	limit := slotKey(finalizedSlot + 1)
	iter := o.db.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	defer iter.Release()

	batch := o.db.NewBatch()
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return batch.Write()
}
