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

package sqlstore

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
)

var logger = nlog.New("sqlstore")

// Config carries the store tunables; defaults are applied and logged
// rather than silently assumed.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
}

func DefaultConfig(dsn string) Config {
	return Config{DSN: dsn, MaxOpenConns: 32, MaxIdleConns: 8}
}

func (c *Config) sanitize() {
	if c.MaxOpenConns <= 0 {
		logger.Warn("sanitizing MaxOpenConns", "given", c.MaxOpenConns, "default", 32)
		c.MaxOpenConns = 32
	}
	if c.MaxIdleConns <= 0 {
		logger.Warn("sanitizing MaxIdleConns", "given", c.MaxIdleConns, "default", 8)
		c.MaxIdleConns = 8
	}
}

// Store is the relational Persistence backend.
type Store struct {
	db *gorm.DB
}

func Open(cfg Config) (*Store, error) {
	cfg.sanitize()
	db, err := gorm.Open("mysql", cfg.DSN+"?parseTime=true")
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.DB().SetMaxOpenConns(cfg.MaxOpenConns)
	db.DB().SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.AutoMigrate(&BlockRow{}, &TxRow{}, &LogRow{}, &ReindexRangeRow{}).Error; err != nil {
		db.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Block is the shape handed to AppendBlockBatch, kept independent of
// indexer.NeonIndexedBlock so the indexer and storage packages stay
// decoupled; a wiring layer converts between them.
type Block struct {
	Slot       uint64
	Blockhash  string
	ParentSlot uint64
	Status     int
	Txs        []Tx
}

type Tx struct {
	NeonTxSig    string
	TxIndex      int
	Sender       string
	Nonce        uint64
	Status       uint8
	GasUsed      uint64
	HolderPubkey string
	Logs         []Log
}

type Log struct {
	LogIndex int
	Address  string
	Topics   [4]string
	Data     []byte
}

// AppendBlockBatch writes a batch of blocks (with their txs and logs) inside
// one transaction: "append-only batch writes... only then
// advance finalized cursor" — the caller advances its own cursor only after
// this returns nil.
func (s *Store) AppendBlockBatch(ctx context.Context, blocks []Block) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, b := range blocks {
			row := BlockRow{
				Slot: b.Slot, Blockhash: b.Blockhash, ParentSlot: b.ParentSlot,
				Status: b.Status, Activated: false, Finalized: false,
			}
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("save block %d: %w", b.Slot, err)
			}
			for _, t := range b.Txs {
				txRow := TxRow{
					NeonTxSig: t.NeonTxSig, BlockSlot: b.Slot, TxIndex: t.TxIndex,
					Sender: t.Sender, Nonce: t.Nonce, Status: t.Status,
					GasUsed: t.GasUsed, HolderPubkey: t.HolderPubkey,
				}
				if err := tx.Save(&txRow).Error; err != nil {
					return fmt.Errorf("save tx %s: %w", t.NeonTxSig, err)
				}
				for _, l := range t.Logs {
					logRow := LogRow{
						NeonTxSig: t.NeonTxSig, BlockSlot: b.Slot, LogIndex: l.LogIndex,
						Address: l.Address, Topic0: l.Topics[0], Topic1: l.Topics[1],
						Topic2: l.Topics[2], Topic3: l.Topics[3], Data: l.Data,
					}
					if err := tx.Create(&logRow).Error; err != nil {
						return fmt.Errorf("save log for tx %s: %w", t.NeonTxSig, err)
					}
				}
			}
		}
		return nil
	})
}

// ActivateBlocks marks blocks confirmed-but-not-yet-finalized as activated,
// the activate/finalize split.
func (s *Store) ActivateBlocks(ctx context.Context, fromSlot, toSlot uint64) error {
	return s.db.Model(&BlockRow{}).
		Where("slot >= ? AND slot <= ?", fromSlot, toSlot).
		Update("activated", true).Error
}

// FinalizeBlocks marks blocks finalized once the settlement chain has
// confirmed them past the safety threshold.
func (s *Store) FinalizeBlocks(ctx context.Context, fromSlot, toSlot uint64) error {
	return s.db.Model(&BlockRow{}).
		Where("slot >= ? AND slot <= ?", fromSlot, toSlot).
		Update("finalized", true).Error
}

// DropNotFinalized deletes every row for blocks never finalized (a
// reorg'd-away confirmed branch).
func (s *Store) DropNotFinalized(ctx context.Context, belowSlot uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var slots []uint64
		if err := tx.Model(&BlockRow{}).
			Where("slot < ? AND finalized = ?", belowSlot, false).
			Pluck("slot", &slots).Error; err != nil {
			return err
		}
		if len(slots) == 0 {
			return nil
		}
		if err := tx.Where("block_slot IN (?)", slots).Delete(&LogRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("block_slot IN (?)", slots).Delete(&TxRow{}).Error; err != nil {
			return err
		}
		return tx.Where("slot IN (?)", slots).Delete(&BlockRow{}).Error
	})
}

// TxBySig reads one transaction by its neon tx signature.
func (s *Store) TxBySig(ctx context.Context, sig string) (*TxRow, error) {
	var row TxRow
	err := s.db.Where("neon_tx_sig = ?", sig).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &row, err
}

// TxBySenderNonce reads one transaction by (sender, nonce).
func (s *Store) TxBySenderNonce(ctx context.Context, sender string, nonce uint64) (*TxRow, error) {
	var row TxRow
	err := s.db.Where("sender = ? AND nonce = ?", sender, nonce).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &row, err
}

// TxByBlockIndex reads one transaction by (block slot, index within block).
func (s *Store) TxByBlockIndex(ctx context.Context, slot uint64, index int) (*TxRow, error) {
	var row TxRow
	err := s.db.Where("block_slot = ? AND tx_index = ?", slot, index).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &row, err
}

// BlockBySlot reads one block by slot.
func (s *Store) BlockBySlot(ctx context.Context, slot uint64) (*BlockRow, error) {
	var row BlockRow
	err := s.db.Where("slot = ?", slot).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &row, err
}

// MaxFinalizedSlot reads the highest finalized block slot, the resume point
// for start_slot=CONTINUE. Returns 0 when nothing has been finalized yet.
func (s *Store) MaxFinalizedSlot(ctx context.Context) (uint64, error) {
	var row BlockRow
	err := s.db.Where("finalized = ?", true).Order("slot desc").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	return row.Slot, err
}

// ReindexRanges loads every recorded reindex range, done or not; range
// planning merges them with fresh gaps on startup.
func (s *Store) ReindexRanges(ctx context.Context) ([]ReindexRangeRow, error) {
	var rows []ReindexRangeRow
	err := s.db.Order("from_slot").Find(&rows).Error
	return rows, err
}

// PutReindexRange records one planned range before its worker starts.
func (s *Store) PutReindexRange(ctx context.Context, row ReindexRangeRow) error {
	return s.db.Save(&row).Error
}

// MarkReindexDone flags a range complete once its worker finishes the walk.
func (s *Store) MarkReindexDone(ctx context.Context, ident string) error {
	return s.db.Model(&ReindexRangeRow{}).
		Where("ident = ?", ident).
		Update("done", true).Error
}

// LogFilter is the (from, to, addresses, topic matrix) shape of the log
// read API. An empty Topics entry position matches any topic at
// that index; non-empty entries are OR-matched within the position.
type LogFilter struct {
	FromSlot, ToSlot uint64
	Addresses        []string
	Topics           [4][]string
}

// FilterLogs reads logs matching the filter, ordered by (block, log index).
func (s *Store) FilterLogs(ctx context.Context, f LogFilter) ([]LogRow, error) {
	q := s.db.Where("block_slot >= ? AND block_slot <= ?", f.FromSlot, f.ToSlot)
	if len(f.Addresses) > 0 {
		q = q.Where("address IN (?)", f.Addresses)
	}
	topicCols := [4]string{"topic0", "topic1", "topic2", "topic3"}
	for i, values := range f.Topics {
		if len(values) == 0 {
			continue
		}
		q = q.Where(fmt.Sprintf("%s IN (?)", topicCols[i]), values)
	}
	var rows []LogRow
	err := q.Order("block_slot, log_index").Find(&rows).Error
	return rows, err
}
