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

// Package ixfeed publishes finalized indexer batches onto a Kafka topic, an
// downstream streaming surface for external consumers (analytics,
// explorers) that should not query the relational store directly.
//
// One process-wide sarama.AsyncProducer, JSON-encoded messages keyed by
// slot, sarama.WaitForLocal acks and snappy compression.
package ixfeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
)

var logger = nlog.New("ixfeed")

// BlockEvent is the wire shape published for one finalized
// indexer.NeonIndexedBlock, deliberately independent of the indexer
// package's types so a consumer's schema does not change shape with
// internal refactors.
type BlockEvent struct {
	Slot      uint64      `json:"slot"`
	Blockhash string      `json:"blockhash"`
	Txs       []TxEvent   `json:"txs"`
}

type TxEvent struct {
	NeonTxSig string `json:"neon_tx_sig"`
	Sender    string `json:"sender"`
	Nonce     uint64 `json:"nonce"`
	Status    uint8  `json:"status"`
	GasUsed   uint64 `json:"gas_used"`
}

// Publisher owns one async Kafka producer and publishes finalized batches
// as they are persisted, never blocking the indexer's persist path on
// broker acks.
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("start sarama producer: %w", err)
	}

	p := &Publisher{producer: producer, topic: topic}
	go p.drainErrors()
	return p, nil
}

func (p *Publisher) drainErrors() {
	for err := range p.producer.Errors() {
		logger.Warn("publish failed", "topic", p.topic, "err", err)
	}
}

// PublishBatch enqueues one message per block in the batch, keyed by slot
// so a compacting topic retains only the latest view of each block.
func (p *Publisher) PublishBatch(blocks []BlockEvent) error {
	for _, b := range blocks {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal block event slot %d: %w", b.Slot, err)
		}
		p.producer.Input() <- &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(fmt.Sprintf("%d", b.Slot)),
			Value: sarama.ByteEncoder(data),
		}
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
