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

package indexer

import (
	"context"
	"sort"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/metrics"
)

// SlotRange is a closed [From, To] inclusive range of settlement slots
// already indexed or pending reindex.
type SlotRange struct {
	From, To uint64
}

func (r SlotRange) overlapsOrAdjoins(other SlotRange, mergeDistance uint64) bool {
	if r.From > other.To {
		return r.From-other.To <= mergeDistance
	}
	if other.From > r.To {
		return other.From-r.To <= mergeDistance
	}
	return true
}

// MergeRanges merges ranges that overlap or sit closer together than
// mergeDistance slots.
func MergeRanges(ranges []SlotRange, mergeDistance uint64) []SlotRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]SlotRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	merged := []SlotRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if last.overlapsOrAdjoins(r, mergeDistance) {
			if r.To > last.To {
				last.To = r.To
			}
			if r.From < last.From {
				last.From = r.From
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// PlanReindexRanges returns the full work-range set: the existing ranges
// plus up to maxRangeCount new ranges of at most rangeLen slots each, cut
// from the parts of [reindexStartSlot, startSlot] the existing ranges do not
// cover, all merged by MergeRanges with rangeLen as the merge distance.
// Adjacent new ranges therefore join into spans longer than rangeLen, and
// existing ranges are not counted against maxRangeCount.
func PlanReindexRanges(existing []SlotRange, reindexStartSlot, startSlot, rangeLen uint64, maxRangeCount int) []SlotRange {
	if reindexStartSlot >= startSlot || rangeLen == 0 {
		return MergeRanges(existing, rangeLen)
	}

	covered := MergeRanges(existing, rangeLen)
	gaps := findGaps(covered, reindexStartSlot, startSlot)

	var fresh []SlotRange
	for _, gap := range gaps {
		for from := gap.From; from <= gap.To; from += rangeLen {
			to := from + rangeLen - 1
			if to > gap.To {
				to = gap.To
			}
			fresh = append(fresh, SlotRange{From: from, To: to})
			if len(fresh) >= maxRangeCount {
				break
			}
		}
		if len(fresh) >= maxRangeCount {
			break
		}
	}

	all := MergeRanges(append(covered, fresh...), rangeLen)
	metrics.IndexerReindexRanges.Update(int64(len(all)))
	return all
}

// findGaps returns the sub-intervals of [lo, hi] not already covered by
// sorted, non-overlapping ranges.
func findGaps(covered []SlotRange, lo, hi uint64) []SlotRange {
	var gaps []SlotRange
	cursor := lo
	for _, r := range covered {
		if r.To < lo || r.From > hi {
			continue
		}
		from, to := r.From, r.To
		if from < lo {
			from = lo
		}
		if to > hi {
			to = hi
		}
		if cursor < from {
			gaps = append(gaps, SlotRange{From: cursor, To: from - 1})
		}
		if to+1 > cursor {
			cursor = to + 1
		}
	}
	if cursor <= hi {
		gaps = append(gaps, SlotRange{From: cursor, To: hi})
	}
	return gaps
}

// ReindexWorker walks one SlotRange to completion against the same
// ChainReader/BatchWriter contracts as live mode, reusing walkBlock-style
// decoding but with no finalized-cursor/confirmed-overlay bookkeeping since a
// reindex range is already known-finalized.
type ReindexWorker struct {
	chain  ChainReader
	writer BatchWriter
	batchBlockCount int
	altProgram      common.Pubkey
}

func NewReindexWorker(chain ChainReader, writer BatchWriter, batchBlockCount int, altProgram common.Pubkey) *ReindexWorker {
	return &ReindexWorker{chain: chain, writer: writer, batchBlockCount: batchBlockCount, altProgram: altProgram}
}

// Run indexes every slot in r and persists in batches of batchBlockCount,
// returning once the whole range is processed (or an error aborts it, so the
// caller can retry the same range later).
func (w *ReindexWorker) Run(ctx context.Context, r SlotRange) error {
	var pending []*NeonIndexedBlock
	for slot := r.From; slot <= r.To; slot++ {
		block, err := w.walkBlock(ctx, slot)
		if err != nil {
			return err
		}
		if block == nil {
			continue
		}
		block.Status = Finalized
		pending = append(pending, block)
		if len(pending) >= w.batchBlockCount {
			if err := w.writer.AppendBlockBatch(ctx, pending, slot); err != nil {
				return err
			}
			pending = nil
		}
	}
	if len(pending) > 0 {
		if err := w.writer.AppendBlockBatch(ctx, pending, r.To); err != nil {
			return err
		}
	}
	return nil
}

func (w *ReindexWorker) walkBlock(ctx context.Context, slot uint64) (*NeonIndexedBlock, error) {
	payload, err := w.chain.GetBlock(ctx, slot, common.Finalized)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	block := NewBlock(payload.Slot, payload.Blockhash, payload.ParentSlot)
	for _, ix := range payload.Instructions {
		if ix.ProgramID == w.altProgram {
			ApplyALTInstruction(block, ix)
			continue
		}
		ret := payload.Returns[instructionTxSig(ix)]
		ApplyInstruction(block, ix, &ret)
	}
	return block, nil
}
