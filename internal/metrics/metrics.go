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

// Package metrics is the gateway's statistics surface. It does not own an
// exporter: it only registers named counters/gauges that an external
// exporter can read from metrics.DefaultRegistry.
package metrics

import "github.com/rcrowley/go-metrics"

var DefaultRegistry = metrics.DefaultRegistry

// Counter returns (registering if needed) a named counter.
func Counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(name, DefaultRegistry)
}

// Gauge returns (registering if needed) a named gauge.
func Gauge(name string) metrics.Gauge {
	return metrics.GetOrRegisterGauge(name, DefaultRegistry)
}

var (
	MempoolSize           = Gauge("mempool/size")
	MempoolPendingCount   = Gauge("mempool/pending_count")
	MempoolGappedCount    = Gauge("mempool/gapped_count")
	MempoolSuspendedCount = Gauge("mempool/suspended_count")
	MempoolRefused        = Counter("mempool/refused")
	MempoolEvicted         = Counter("mempool/evicted")

	ResourceEnabledCount = Gauge("opresource/enabled_count")
	ResourceDisabledCount = Gauge("opresource/disabled_count")
	ResourceTakenCount   = Gauge("opresource/taken_count")

	StrategyAttemptsSingleShot     = Counter("strategy/attempts/single_shot")
	StrategyAttemptsIterative      = Counter("strategy/attempts/iterative")
	StrategyAttemptsHolderIterative = Counter("strategy/attempts/holder_iterative")
	StrategyAttemptsNoChainID      = Counter("strategy/attempts/no_chain_id")
	StrategyFailures               = Counter("strategy/failures")

	SenderRetries      = Counter("sender/retries")
	SenderNoMoreRetries = Counter("sender/no_more_retries")

	IndexerLagSlots  = Gauge("indexer/lag_slots")
	IndexerStuckTxs  = Gauge("indexer/stuck_txs")
	IndexerReindexRanges = Gauge("indexer/reindex_ranges")
)
