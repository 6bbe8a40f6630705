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

// Package config loads the process configuration: a single struct with
// toml-tagged fields, a DefaultConfig value, and a sanitize() pass that
// clamps unreasonable values and logs what it corrected.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/naoina/toml"

	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
)

var logger = nlog.New("config")

// StartSlotMode is the indexer's initial-cursor mode (start_slot).
type StartSlotMode int

const (
	StartLatest StartSlotMode = iota
	StartContinue
	StartAt
)

// StartSlot encodes "LATEST | CONTINUE | <int>".
type StartSlot struct {
	Mode StartSlotMode
	Slot uint64
}

func ParseStartSlot(s string) (StartSlot, error) {
	switch s {
	case "", "LATEST":
		return StartSlot{Mode: StartLatest}, nil
	case "CONTINUE":
		return StartSlot{Mode: StartContinue}, nil
	default:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return StartSlot{}, fmt.Errorf("invalid start_slot %q: %w", s, err)
		}
		return StartSlot{Mode: StartAt, Slot: n}, nil
	}
}

// Config is the full process configuration.
type Config struct {
	// Settlement chain RPC endpoints.
	SolanaRPCURL     string `toml:"solana_rpc_url"`
	SolanaWSURL      string `toml:"solana_ws_url"`

	// Indexer cursor.
	StartSlot         string `toml:"start_slot"`
	ReindexStartSlot  string `toml:"reindex_start_slot"`
	ReindexThreadCnt  int    `toml:"reindex_thread_cnt"`
	ReindexRangeLen   uint64 `toml:"reindex_range_len"`
	ReindexMaxRangeCnt int   `toml:"reindex_max_range_cnt"`

	// Submission.
	RetryOnFail       int           `toml:"retry_on_fail"`
	ConfirmTimeoutSec time.Duration `toml:"confirm_timeout_sec"`
	ConfirmCheckMsec  time.Duration `toml:"confirm_check_msec"`

	// Mempool.
	MempoolCapacity             int           `toml:"mempool_capacity"`
	MempoolCapacityHighWatermark float64      `toml:"mempool_capacity_high_watermark"`
	MempoolGasPriceWindow       time.Duration `toml:"mempool_gas_price_window"`
	MempoolEvictionTimeoutSec   time.Duration `toml:"mempool_eviction_timeout_sec"`

	// Holder / resource.
	HolderSize    uint64        `toml:"holder_size"`
	HolderTimeout uint64        `toml:"holder_timeout"` // settlement slots
	AltFreeingDepth uint64      `toml:"alt_freeing_depth"`

	// Compute budget.
	CULimit       uint64 `toml:"cu_limit"`
	CUPriorityFee uint64 `toml:"cu_priority_fee"`

	// Commitment thresholds, one per consumer.
	MinCommitForDone      string `toml:"min_commit_for_done"`
	MinCommitForRPCReceipt string `toml:"min_commit_for_rpc_receipt"`

	// Fault injection (compile/feature gated, never in production use).
	FuzzFailPct int `toml:"fuzz_fail_pct"`

	// Executor.
	WorkerCount int `toml:"worker_count"`

	// Persistence backends.
	MySQLDSN string `toml:"mysql_dsn"`
	RedisAddr string `toml:"redis_addr"`
	LocalDBPath string `toml:"local_db_path"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`

	// External RPC facade listen address for the thin rpcapi shim.
	RPCListenAddr string `toml:"rpc_listen_addr"`
	ChainID       uint64 `toml:"chain_id"`

	// Settlement-program addresses (base58).
	EVMProgramID string `toml:"evm_program_id"`
	ALTProgramID string `toml:"alt_program_id"`

	CUPerEmulatedStep uint64 `toml:"cu_per_emulated_step"`

	// Operator keypairs, index-aligned: OperatorKeypairPaths[i] signs for
	// the holder account at OperatorHolderKeypairPaths[i]. Each path is a
	// Solana CLI keypair file (JSON array of 64 bytes). Real holder-account
	// addresses are normally derived as a program-derived address from the
	// signer; that derivation needs a sha256-based off-curve search, so
	// holder keypairs are configured explicitly instead.
	OperatorKeypairPaths       []string `toml:"operator_keypairs"`
	OperatorHolderKeypairPaths []string `toml:"operator_holder_keypairs"`
}

// DefaultConfig mirrors gxp.DefaultConfig: sensible defaults for every field
// so a zero-value override file still produces a runnable process.
var DefaultConfig = Config{
	SolanaRPCURL: "http://localhost:8899",

	StartSlot:        "LATEST",
	ReindexStartSlot: "CONTINUE",
	ReindexThreadCnt: 4,
	ReindexRangeLen:  1_000_000,
	ReindexMaxRangeCnt: 16,

	RetryOnFail:       8,
	ConfirmTimeoutSec: 30 * time.Second,
	ConfirmCheckMsec:  400 * time.Millisecond,

	MempoolCapacity:             4096,
	MempoolCapacityHighWatermark: 0.9,
	MempoolGasPriceWindow:       10 * time.Minute,
	MempoolEvictionTimeoutSec:   time.Hour,

	HolderSize:      256 * 1024,
	HolderTimeout:   1000,
	AltFreeingDepth: 512,

	CULimit:       1_400_000,
	CUPriorityFee: 0,

	MinCommitForDone:       "Finalized",
	MinCommitForRPCReceipt: "Confirmed",

	WorkerCount: 4,

	RPCListenAddr: "127.0.0.1:9090",
	ChainID:       245022934, // Neon devnet chain id

	CUPerEmulatedStep: 1000,
}

// sanitize clamps unreasonable values, logging each correction exactly the
// way BridgeTxPoolConfig.sanitize() does.
func (c Config) sanitize() Config {
	if c.RetryOnFail <= 0 {
		logger.Error("sanitizing invalid retry_on_fail", "provided", c.RetryOnFail, "updated", DefaultConfig.RetryOnFail)
		c.RetryOnFail = DefaultConfig.RetryOnFail
	}
	if c.ConfirmTimeoutSec <= 0 {
		logger.Error("sanitizing invalid confirm_timeout_sec", "provided", c.ConfirmTimeoutSec, "updated", DefaultConfig.ConfirmTimeoutSec)
		c.ConfirmTimeoutSec = DefaultConfig.ConfirmTimeoutSec
	}
	if c.ConfirmCheckMsec <= 0 {
		logger.Error("sanitizing invalid confirm_check_msec", "provided", c.ConfirmCheckMsec, "updated", DefaultConfig.ConfirmCheckMsec)
		c.ConfirmCheckMsec = DefaultConfig.ConfirmCheckMsec
	}
	if c.MempoolCapacity <= 0 {
		logger.Error("sanitizing invalid mempool_capacity", "provided", c.MempoolCapacity, "updated", DefaultConfig.MempoolCapacity)
		c.MempoolCapacity = DefaultConfig.MempoolCapacity
	}
	if c.MempoolCapacityHighWatermark <= 0 || c.MempoolCapacityHighWatermark >= 1 {
		logger.Error("sanitizing invalid mempool_capacity_high_watermark", "provided", c.MempoolCapacityHighWatermark)
		c.MempoolCapacityHighWatermark = DefaultConfig.MempoolCapacityHighWatermark
	}
	if c.WorkerCount <= 0 {
		logger.Error("sanitizing invalid worker_count", "provided", c.WorkerCount, "updated", DefaultConfig.WorkerCount)
		c.WorkerCount = DefaultConfig.WorkerCount
	}
	if c.HolderSize == 0 {
		logger.Error("sanitizing invalid holder_size", "provided", c.HolderSize, "updated", DefaultConfig.HolderSize)
		c.HolderSize = DefaultConfig.HolderSize
	}
	return c
}

// Load reads a TOML file at path, overlays it on DefaultConfig, applies the
// environment-variable overlay (NEON_* names), then sanitizes.
func Load(path string) (Config, error) {
	cfg := DefaultConfig
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	overlayEnv(&cfg)
	return cfg.sanitize(), nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("NEON_SOLANA_RPC_URL"); v != "" {
		cfg.SolanaRPCURL = v
	}
	if v := os.Getenv("NEON_RETRY_ON_FAIL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryOnFail = n
		}
	}
	if v := os.Getenv("NEON_MEMPOOL_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MempoolCapacity = n
		}
	}
	if v := os.Getenv("NEON_FUZZ_FAIL_PCT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FuzzFailPct = n
		}
	}
}
