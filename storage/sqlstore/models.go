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

// Package sqlstore is Persistence: an append-only, batch-write
// relational store for finalized settlement blocks/txs/logs, with explicit
// activate/finalize/drop-not-finalized transitions and the read APIs the
// RPC facade needs.
//
// One package exposes every accessor the rest of the system needs, built
// on github.com/jinzhu/gorm over github.com/go-sql-driver/mysql.
package sqlstore

import "time"

// BlockRow is one finalized settlement block.
type BlockRow struct {
	Slot       uint64 `gorm:"primary_key"`
	Blockhash  string `gorm:"size:88;index"`
	ParentSlot uint64
	Status     int
	Activated  bool `gorm:"index"`
	Finalized  bool `gorm:"index"`
	CreatedAt  time.Time
}

func (BlockRow) TableName() string { return "blocks" }

// TxRow is one reconstructed ETx, keyed by its neon tx signature and
// addressable by (sender, nonce) and (block, index).I's read
// API list.
type TxRow struct {
	ID          uint64 `gorm:"primary_key;auto_increment"`
	NeonTxSig   string `gorm:"size:88;unique_index"`
	BlockSlot   uint64 `gorm:"index"`
	TxIndex     int
	Sender      string `gorm:"size:42;index:idx_sender_nonce"`
	Nonce       uint64 `gorm:"index:idx_sender_nonce"`
	Status      uint8
	GasUsed     uint64
	HolderPubkey string `gorm:"size:88"`
}

func (TxRow) TableName() string { return "transactions" }

// LogRow is one EVM log entry, addressable by the (from, to, addresses,
// topic matrix) filter API.
type LogRow struct {
	ID        uint64 `gorm:"primary_key;auto_increment"`
	NeonTxSig string `gorm:"size:88;index"`
	BlockSlot uint64 `gorm:"index"`
	LogIndex  int
	Address   string `gorm:"size:42;index"`
	Topic0    string `gorm:"size:66;index"`
	Topic1    string `gorm:"size:66;index"`
	Topic2    string `gorm:"size:66;index"`
	Topic3    string `gorm:"size:66;index"`
	Data      []byte
}

func (LogRow) TableName() string { return "logs" }

// ReindexRangeRow is one historical reindex range owned by one worker.
// Ident is the range's reindex_ident; workers key their writes by it so
// concurrent ranges never touch the same rows.
type ReindexRangeRow struct {
	Ident     string `gorm:"primary_key;size:40"`
	FromSlot  uint64
	ToSlot    uint64
	Done      bool `gorm:"index"`
	CreatedAt time.Time
}

func (ReindexRangeRow) TableName() string { return "reindex_ranges" }
