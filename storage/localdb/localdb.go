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

// Package localdb is the local, non-replicated engine backing the
// confirmed-block overlay ("parse confirmed blocks into a
// separate in-memory overlay that is not persisted as finalized"): this
// package gives that overlay a restart-survivable backing store so a
// gateway process can resume its confirmed view without re-fetching every
// block since the last finalized cursor.
//
// The open path follows the usual goleveldb lifecycle:
// open-or-recover-corrupted, bloom-filter options, write-buffer sizing.
package localdb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
)

var logger = nlog.New("localdb")

// DB wraps one goleveldb instance used to cache confirmed (not-yet-final)
// settlement blocks keyed by slot.
type DB struct {
	path string
	db   *leveldb.DB
}

func ldbOptions(cacheSizeMB, numHandles int) *opt.Options {
	if cacheSizeMB < 16 {
		cacheSizeMB = 16
	}
	if numHandles < 16 {
		numHandles = 16
	}
	return &opt.Options{
		OpenFilesCacheCapacity: numHandles,
		BlockCacheCapacity:     cacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            cacheSizeMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

// Open opens (recovering a corrupted file if needed) the leveldb instance at
// path before giving up on the store entirely.
func Open(path string, cacheSizeMB, numHandles int) (*DB, error) {
	db, err := leveldb.OpenFile(path, ldbOptions(cacheSizeMB, numHandles))
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		logger.Warn("confirmed overlay db corrupted, recovering", "path", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &DB{path: path, db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Put(key, value []byte) error {
	return d.db.Put(key, value, nil)
}

func (d *DB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (d *DB) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

func (d *DB) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

// Batch is a write-batch of puts/deletes applied atomically, mirroring the
// leveldb.Batch so callers never hold a raw batch handle.
type Batch struct {
	db    *DB
	batch *leveldb.Batch
}

func (d *DB) NewBatch() *Batch {
	return &Batch{db: d, batch: new(leveldb.Batch)}
}

func (b *Batch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *Batch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *Batch) Write() error          { return b.db.db.Write(b.batch, nil) }
func (b *Batch) Reset()                { b.batch.Reset() }
