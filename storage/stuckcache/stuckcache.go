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

// Package stuckcache is the stuck-tx snapshot cache:
// holders and txs exposed by either the Indexer or a resource's own
// initialization sequence as "stuck" (active but incomplete past a
// timeout) are put here so any process can pick them up for takeover,
// independent of which process originally discovered them.
//
// Backed by github.com/go-redis/redis/v7 as a best-effort, short-TTL
// shared dictionary: entries expire on their own, so a crashed process
// never leaves a permanently poisoned snapshot behind.
package stuckcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
)

var logger = nlog.New("stuckcache")

const (
	stuckKeyPrefix    = "neon:stuck:"
	gasPriceKeyPrefix = "neon:gasprice:"
)

// Config carries the cache tunables, sanitized before use.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func (c *Config) sanitize() {
	if c.TTL <= 0 {
		logger.Warn("sanitizing stuckcache TTL", "given", c.TTL, "default", time.Hour)
		c.TTL = time.Hour
	}
}

// Cache is the Redis-backed stuck snapshot store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(cfg Config) *Cache {
	cfg.sanitize()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{client: client, ttl: cfg.TTL}
}

func (c *Cache) Close() error { return c.client.Close() }

// StuckSnapshot is the JSON shape stored per holder pubkey; kept
// independent of indexer/opresource types so this package has no
// dependency on either.
type StuckSnapshot struct {
	Slot         uint64   `json:"slot"`
	HolderPubkey string   `json:"holder_pubkey"`
	ChainID      uint64   `json:"chain_id"`
	ActiveTxSig  string   `json:"active_tx_sig"`
	ALTAddresses []string `json:"alt_addresses"`
	DiscoveredBy string   `json:"discovered_by"` // "own" or "indexer"
}

// PutStuckAt writes (or overwrites) one holder's stuck snapshot, keyed so
// repeated discoveries of the same holder are idempotent.
func (c *Cache) PutStuckAt(ctx context.Context, snap StuckSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal stuck snapshot: %w", err)
	}
	return c.client.WithContext(ctx).Set(stuckKeyPrefix+snap.HolderPubkey, data, c.ttl).Err()
}

// GetStuckAt reads one holder's stuck snapshot, returning (nil, nil) if
// absent or expired.
func (c *Cache) GetStuckAt(ctx context.Context, holderPubkey string) (*StuckSnapshot, error) {
	data, err := c.client.WithContext(ctx).Get(stuckKeyPrefix + holderPubkey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap StuckSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// DeleteStuck removes a snapshot once the resource is reclaimed.
func (c *Cache) DeleteStuck(ctx context.Context, holderPubkey string) error {
	return c.client.WithContext(ctx).Del(stuckKeyPrefix + holderPubkey).Err()
}

// ListStuck scans every stuck key, used by the external stuck-tx poller.
func (c *Cache) ListStuck(ctx context.Context) ([]StuckSnapshot, error) {
	var (
		cursor uint64
		result []StuckSnapshot
	)
	client := c.client.WithContext(ctx)
	for {
		keys, next, err := client.Scan(cursor, stuckKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			data, err := client.Get(key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, err
			}
			var snap StuckSnapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				continue
			}
			result = append(result, snap)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return result, nil
}

// PutGasPriceSample appends one observed suggested-gas-price sample to the
// rolling window cache, kept here so the
// gas-price floor survives process restarts instead of resetting empty.
func (c *Cache) PutGasPriceSample(ctx context.Context, chainID uint64, priceWei string, windowSize int64) error {
	key := fmt.Sprintf("%s%d", gasPriceKeyPrefix, chainID)
	client := c.client.WithContext(ctx)
	if err := client.LPush(key, priceWei).Err(); err != nil {
		return err
	}
	return client.LTrim(key, 0, windowSize-1).Err()
}

// GasPriceWindow reads the current rolling window of samples, most recent
// first.
func (c *Cache) GasPriceWindow(ctx context.Context, chainID uint64) ([]string, error) {
	key := fmt.Sprintf("%s%d", gasPriceKeyPrefix, chainID)
	return c.client.WithContext(ctx).LRange(key, 0, -1).Result()
}
