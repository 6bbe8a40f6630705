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

package main

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/pborman/uuid"

	"github.com/neonlabsorg/neon-proxy-go/executor"
	"github.com/neonlabsorg/neon-proxy-go/indexer"
	"github.com/neonlabsorg/neon-proxy-go/indexer/ixfeed"
	"github.com/neonlabsorg/neon-proxy-go/internal/config"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
	"github.com/neonlabsorg/neon-proxy-go/mempool"
	"github.com/neonlabsorg/neon-proxy-go/opresource"
	"github.com/neonlabsorg/neon-proxy-go/rpcapi"
	"github.com/neonlabsorg/neon-proxy-go/sender"
	"github.com/neonlabsorg/neon-proxy-go/solclient"
	"github.com/neonlabsorg/neon-proxy-go/storage/localdb"
	"github.com/neonlabsorg/neon-proxy-go/storage/sqlstore"
	"github.com/neonlabsorg/neon-proxy-go/storage/stuckcache"
	"github.com/neonlabsorg/neon-proxy-go/strategy"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
)

var wiringLogger = nlog.New("wiring")

// liveBatchBlockCount is the live cursor's flush batch size; deliberately
// much smaller than the reindex worker's range length (config's
// reindex_range_len), since live mode flushes every few finalized blocks
// while reindex mode processes historical ranges in bulk.
const liveBatchBlockCount = 32

// app bundles every process-lifetime component, assembled once by build()
// and driven by the run/holder commands.
type app struct {
	cfg config.Config

	chain   *solclient.Client
	sql     *sqlstore.Store
	cache   *stuckcache.Cache
	overlay *localdb.ConfirmedOverlay

	resources *opresource.Manager
	mp        *mempool.Mempool
	keys      *operatorKeyset

	housekeeper *executor.Housekeeper
	exec        *executor.Executor
	rpc         *rpcapi.Server
	live        *indexer.LiveCursor
	feed        *ixfeed.Publisher

	startSlot  uint64
	evmProgram common.Pubkey
	altProgram common.Pubkey
}

func build(cfg config.Config) (*app, error) {
	chain := solclient.New(cfg.SolanaRPCURL, cfg.RetryOnFail, cfg.ConfirmCheckMsec)

	sqlStore, err := sqlstore.Open(sqlstore.DefaultConfig(cfg.MySQLDSN))
	if err != nil {
		return nil, fmt.Errorf("open persistence: %w", err)
	}
	cache := stuckcache.New(stuckcache.Config{Addr: cfg.RedisAddr})
	localDB, err := localdb.Open(cfg.LocalDBPath, 64, 16)
	if err != nil {
		return nil, fmt.Errorf("open confirmed-overlay db: %w", err)
	}

	a := &app{
		cfg:        cfg,
		chain:      chain,
		sql:        sqlStore,
		cache:      cache,
		overlay:    localdb.NewConfirmedOverlay(localDB),
		resources:  opresource.NewManager(),
		mp:         mempool.New(cfg.ChainID, mempoolConfigFrom(cfg)),
		evmProgram: pubkeyFromConfig(cfg.EVMProgramID),
		altProgram: pubkeyFromConfig(cfg.ALTProgramID),
	}

	keys, err := loadOperatorKeypairs(cfg.OperatorKeypairPaths)
	if err != nil {
		return nil, fmt.Errorf("load operator keypairs: %w", err)
	}
	if err := attachHolderKeypairs(keys, cfg.OperatorHolderKeypairPaths); err != nil {
		return nil, fmt.Errorf("load operator holder keypairs: %w", err)
	}
	a.keys = keys

	builderFactory := func(signer, holder common.Pubkey) *txcodec.Builder {
		return txcodec.NewBuilder(signer, holder, a.evmProgram, a.altProgram)
	}
	emulator := strategy.NewDefaultEmulator(&simulationClientAdapter{chain: chain}, func() *txcodec.Builder {
		return txcodec.NewBuilder(common.Pubkey{}, common.Pubkey{}, a.evmProgram, a.altProgram)
	}, cfg.CUPerEmulatedStep)

	snd := sender.New(chain, sender.Config{
		RetryOnFail:       cfg.RetryOnFail,
		ConfirmTimeout:    cfg.ConfirmTimeoutSec,
		ConfirmCheckEvery: cfg.ConfirmCheckMsec,
		MinCommitForDone:  mustParseCommit(cfg.MinCommitForDone),
		Fuzz:              sender.FuzzConfig{Enabled: cfg.FuzzFailPct > 0, FailPct: cfg.FuzzFailPct},
	}, keys.signerFor)

	altLife := &altLifecycle{
		chain: chain,
		snd:   snd,
		builderFor: func(authority common.Pubkey) *txcodec.Builder {
			return txcodec.NewBuilder(authority, common.Pubkey{}, a.evmProgram, a.altProgram)
		},
	}
	engine := strategy.NewEngine(emulator, builderFactory, snd, &holderStatusReader{chain: chain}, &derivedAltAddresser{chain: chain}, altLife, cfg.CUPriorityFee, cfg.RetryOnFail)

	a.exec = executor.New(
		&mempoolPoolAdapter{mp: a.mp},
		a.resources,
		engine,
		&stuckRegistry{cache: cache},
		&rpcResultSink{},
		cfg.WorkerCount,
		cfg.ConfirmCheckMsec,
	)

	a.housekeeper = executor.NewHousekeeper(
		&mempoolSuggestedPriceOracle{mp: a.mp, floorWei: big.NewInt(1)},
		a.mp,
		cfg.MempoolGasPriceWindow,
		&noopEVMConfigReader{cfg: cfg},
		&noopCodecPropagator{},
		&resourceInitializer{
			chain:      chain,
			resources:  a.resources,
			snd:        snd,
			stuck:      &stuckRegistry{cache: cache},
			holderSize: cfg.HolderSize,
			evmProgram: a.evmProgram,
			altProgram: a.altProgram,
		},
		&stuckRegistry{cache: cache},
		altLife,
		a.mp,
		cfg.AltFreeingDepth,
	)

	a.rpc = rpcapi.New(
		&mempoolFacadeAdapter{mp: a.mp},
		&receiptStoreAdapter{store: sqlStore},
		a.housekeeper,
		cfg.ChainID,
	)

	if len(cfg.KafkaBrokers) > 0 {
		feed, err := ixfeed.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("start block feed: %w", err)
		}
		a.feed = feed
	}

	a.startSlot, err = resolveStartSlot(cfg.StartSlot, chain, sqlStore)
	if err != nil {
		return nil, fmt.Errorf("resolve start_slot: %w", err)
	}
	a.live = indexer.NewLiveCursor(
		&chainReaderAdapter{chain: chain},
		&batchWriterAdapter{store: sqlStore, feed: a.feed},
		&stuckHolderSinkAdapter{cache: cache},
		cfg.HolderTimeout,
		liveBatchBlockCount,
		a.startSlot,
		a.altProgram,
	)

	for _, k := range keys.operators {
		res, err := a.resources.Register(k.signer, k.holder)
		if err != nil {
			return nil, fmt.Errorf("register operator resource: %w", err)
		}
		wiringLogger.Info("registered operator resource", "resource_id", res.ResourceID, "signer", k.signer.String())
	}

	return a, nil
}

func mempoolConfigFrom(cfg config.Config) mempool.Config {
	return mempool.Config{
		Capacity:        cfg.MempoolCapacity,
		HighWatermark:   cfg.MempoolCapacityHighWatermark,
		EvictionTimeout: cfg.MempoolEvictionTimeoutSec,
	}
}

func mustParseCommit(s string) common.CommitLevel {
	c, err := common.ParseCommitLevel(s)
	if err != nil {
		return common.Confirmed
	}
	return c
}

// base58Decode is duplicated locally rather than imported from solclient or
// common, matching the module's established one-directional-dependency
// convention (indexer/blockjson.go duplicates the same helper for the same
// reason: cmd is downstream of every package here, but a cross-package
// import of an unexported helper isn't possible, and exporting a one-off
// decoder from solclient just to serve a CLI flag isn't worth the churn).
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func base58Decode(s string) []byte {
	zeros := 0
	for zeros < len(s) && s[zeros] == base58Alphabet[0] {
		zeros++
	}
	num := make([]byte, 0, len(s))
	for _, r := range s {
		idx := strings.IndexRune(base58Alphabet, r)
		if idx < 0 {
			continue
		}
		carry := idx
		for i := 0; i < len(num); i++ {
			carry += int(num[i]) * 58
			num[i] = byte(carry & 0xff)
			carry >>= 8
		}
		for carry > 0 {
			num = append(num, byte(carry&0xff))
			carry >>= 8
		}
	}
	for i, j := 0, len(num)-1; i < j; i, j = i+1, j-1 {
		num[i], num[j] = num[j], num[i]
	}
	return append(make([]byte, zeros), num...)
}

func pubkeyFromConfig(s string) common.Pubkey {
	// An empty config value yields the zero pubkey; fine for local/dev runs
	// against a program id not yet assigned.
	if s == "" {
		return common.Pubkey{}
	}
	var pk common.Pubkey
	copy(pk[:], base58Decode(s))
	return pk
}

// resolveStartSlot turns the start_slot config value into a concrete slot:
// LATEST asks the chain for its finalized head, CONTINUE resumes from the
// highest finalized block Persistence has, and a literal number stands.
func resolveStartSlot(value string, chain *solclient.Client, store *sqlstore.Store) (uint64, error) {
	start, err := config.ParseStartSlot(value)
	if err != nil {
		return 0, err
	}
	switch start.Mode {
	case config.StartLatest:
		return chain.GetBlockSlot(context.Background(), common.Finalized)
	case config.StartContinue:
		return store.MaxFinalizedSlot(context.Background())
	default:
		return start.Slot, nil
	}
}

// runReindexWorkers plans the historical ranges reindex
// mode and walks them with cfg.ReindexThreadCnt workers, each range keyed
// by its reindex_ident so restarts skip completed ranges.
func (a *app) runReindexWorkers(ctx context.Context) {
	reindexStart, err := config.ParseStartSlot(a.cfg.ReindexStartSlot)
	if err != nil {
		wiringLogger.Warn("invalid reindex_start_slot", "err", err)
		return
	}
	if reindexStart.Mode != config.StartAt {
		// CONTINUE (the default) means no new historical floor was
		// requested; only previously recorded unfinished ranges are rerun.
		reindexStart.Slot = a.startSlot
	}

	rows, err := a.sql.ReindexRanges(ctx)
	if err != nil {
		wiringLogger.Warn("load reindex ranges", "err", err)
		return
	}
	recorded := make([]indexer.SlotRange, 0, len(rows))
	doneRanges := make([]indexer.SlotRange, 0, len(rows))
	identByRange := make(map[indexer.SlotRange]string, len(rows))
	for _, r := range rows {
		sr := indexer.SlotRange{From: r.FromSlot, To: r.ToSlot}
		recorded = append(recorded, sr)
		identByRange[sr] = r.Ident
		if r.Done {
			doneRanges = append(doneRanges, sr)
		}
	}

	planned := indexer.PlanReindexRanges(recorded, reindexStart.Slot, a.startSlot, a.cfg.ReindexRangeLen, a.cfg.ReindexMaxRangeCnt)

	type job struct {
		ident string
		r     indexer.SlotRange
	}
	var jobs []job
	for _, r := range planned {
		if coveredBy(r, doneRanges) {
			continue
		}
		ident, ok := identByRange[r]
		if !ok {
			ident = uuid.New()
			if err := a.sql.PutReindexRange(ctx, sqlstore.ReindexRangeRow{Ident: ident, FromSlot: r.From, ToSlot: r.To}); err != nil {
				wiringLogger.Warn("record reindex range", "err", err)
				continue
			}
		}
		jobs = append(jobs, job{ident: ident, r: r})
	}
	if len(jobs) == 0 {
		return
	}

	jobCh := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < a.cfg.ReindexThreadCnt; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := indexer.NewReindexWorker(
				&chainReaderAdapter{chain: a.chain},
				&batchWriterAdapter{store: a.sql, feed: a.feed},
				liveBatchBlockCount,
				a.altProgram,
			)
			for j := range jobCh {
				if err := worker.Run(ctx, j.r); err != nil {
					wiringLogger.Warn("reindex range failed", "ident", j.ident, "from", j.r.From, "to", j.r.To, "err", err)
					continue
				}
				if err := a.sql.MarkReindexDone(ctx, j.ident); err != nil {
					wiringLogger.Warn("mark reindex done", "ident", j.ident, "err", err)
				}
			}
		}()
	}
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			close(jobCh)
			wg.Wait()
			return
		case jobCh <- j:
		}
	}
	close(jobCh)
	wg.Wait()
}

// coveredBy reports whether r lies entirely inside one already-done range.
func coveredBy(r indexer.SlotRange, done []indexer.SlotRange) bool {
	for _, d := range done {
		if d.From <= r.From && r.To <= d.To {
			return true
		}
	}
	return false
}

// chainReaderAdapter satisfies indexer.ChainReader over the Chain Adapter,
// closing the raw-bytes-to-typed-payload gap with indexer.DecodeBlockPayload.
type chainReaderAdapter struct{ chain *solclient.Client }

func (c *chainReaderAdapter) GetBlockSlot(ctx context.Context, commit common.CommitLevel) (uint64, error) {
	return c.chain.GetBlockSlot(ctx, commit)
}

func (c *chainReaderAdapter) GetFirstAvailableSlot(ctx context.Context) (uint64, error) {
	return c.chain.GetFirstAvailableSlot(ctx)
}

func (c *chainReaderAdapter) GetBlock(ctx context.Context, slot uint64, commit common.CommitLevel) (*indexer.BlockPayload, error) {
	info, err := c.chain.GetBlock(ctx, slot, commit)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	return indexer.DecodeBlockPayload(info.Slot, info.Blockhash, info.ParentSlot, info.Raw)
}

// batchWriterAdapter satisfies indexer.BatchWriter over Persistence, with
// an optional Kafka feed publishing each finalized batch after it lands.
type batchWriterAdapter struct {
	store *sqlstore.Store
	feed  *ixfeed.Publisher
}

func (b *batchWriterAdapter) AppendBlockBatch(ctx context.Context, blocks []*indexer.NeonIndexedBlock, finalizedCursor uint64) error {
	converted := make([]sqlstore.Block, len(blocks))
	for i, blk := range blocks {
		converted[i] = sqlstore.Block{
			Slot:       blk.Slot,
			Blockhash:  blk.Blockhash.Hex(),
			ParentSlot: blk.ParentSlot,
			Status:     int(blk.Status),
			Txs:        convertTxs(blk.Txs),
		}
	}
	if err := b.store.AppendBlockBatch(ctx, converted); err != nil {
		return err
	}
	if err := b.store.FinalizeBlocks(ctx, 0, finalizedCursor); err != nil {
		return err
	}
	if b.feed != nil {
		if err := b.feed.PublishBatch(blockEvents(blocks)); err != nil {
			// The feed is best-effort; the batch is already durably persisted.
			wiringLogger.Warn("publish block batch", "err", err)
		}
	}
	return nil
}

func blockEvents(blocks []*indexer.NeonIndexedBlock) []ixfeed.BlockEvent {
	out := make([]ixfeed.BlockEvent, len(blocks))
	for i, blk := range blocks {
		ev := ixfeed.BlockEvent{Slot: blk.Slot, Blockhash: blk.Blockhash.Hex()}
		for _, tx := range blk.Txs {
			ev.Txs = append(ev.Txs, ixfeed.TxEvent{
				NeonTxSig: tx.NeonTxSig.Hex(),
				Sender:    tx.Sender.Hex(),
				Nonce:     tx.Nonce,
				Status:    tx.Status,
				GasUsed:   tx.GasUsed,
			})
		}
		out[i] = ev
	}
	return out
}

func convertTxs(txs []*indexer.NeonIndexedTx) []sqlstore.Tx {
	out := make([]sqlstore.Tx, len(txs))
	for i, tx := range txs {
		holder := ""
		if tx.HolderPubkey != nil {
			holder = tx.HolderPubkey.String()
		}
		out[i] = sqlstore.Tx{
			NeonTxSig:    tx.NeonTxSig.Hex(),
			Sender:       tx.Sender.Hex(),
			Nonce:        tx.Nonce,
			Status:       tx.Status,
			GasUsed:      tx.GasUsed,
			HolderPubkey: holder,
		}
	}
	return out
}

// stuckHolderSinkAdapter satisfies indexer.StuckHolderSink over the Redis
// stuck-tx cache, one snapshot per stuck holder observed.
type stuckHolderSinkAdapter struct{ cache *stuckcache.Cache }

func (s *stuckHolderSinkAdapter) PutStuck(ctx context.Context, slot uint64, holders []*indexer.NeonIndexedHolder, txs []*indexer.NeonIndexedTx, alts []*indexer.ALTInfo) error {
	altAddrs := make([]string, len(alts))
	for i, alt := range alts {
		altAddrs[i] = alt.Address.String()
	}
	for _, h := range holders {
		snap := stuckcache.StuckSnapshot{
			Slot:         slot,
			HolderPubkey: h.Pubkey.String(),
			ChainID:      h.ChainID,
			ActiveTxSig:  h.ActiveTxSig.Hex(),
			ALTAddresses: altAddrs,
			DiscoveredBy: "indexer",
		}
		if err := s.cache.PutStuckAt(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// opresourceChainReaderAdapter satisfies opresource.ChainReader.
type opresourceChainReaderAdapter struct{ chain *solclient.Client }

func (o *opresourceChainReaderAdapter) GetAccount(ctx context.Context, pubkey common.Pubkey, commit common.CommitLevel) (*opresource.AccountInfo, error) {
	acc, err := o.chain.GetAccount(ctx, pubkey, commit)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, nil
	}
	return &opresource.AccountInfo{Lamports: acc.Lamports, Data: acc.Data}, nil
}

// simulationClientAdapter satisfies strategy.SimulationClient, translating
// solclient.SimulationResult to strategy's identically-shaped local copy so
// strategy does not need to import solclient directly (same one-directional
// dependency pattern as holderStatusReader and derivedAltAddresser below).
type simulationClientAdapter struct{ chain *solclient.Client }

func (s *simulationClientAdapter) SimulateTransaction(ctx context.Context, rawTx []byte, accountsToReturn []common.Pubkey) (*strategy.SimulationResult, error) {
	res, err := s.chain.SimulateTransaction(ctx, rawTx, accountsToReturn)
	if err != nil {
		return nil, err
	}
	return &strategy.SimulationResult{
		Err:           res.Err,
		UnitsConsumed: res.UnitsConsumed,
		Logs:          res.Logs,
		Accounts:      res.Accounts,
	}, nil
}

func (s *simulationClientAdapter) GetRecentBlockhash(ctx context.Context, commit common.CommitLevel) (common.Hash, uint64, error) {
	return s.chain.GetRecentBlockhash(ctx, commit)
}

// holderStatusReader satisfies strategy.HolderStatusReader, reading a
// holder account live off the Chain Adapter and decoding it with
// opresource.DefaultHolderDecoder so strategy does not need its own
// on-chain-data decoding logic duplicated a third time.
type holderStatusReader struct{ chain *solclient.Client }

func (h *holderStatusReader) Read(holder common.Pubkey) (opresource.HolderStatus, common.Hash, uint64, error) {
	acc, err := h.chain.GetAccount(context.Background(), holder, common.Confirmed)
	if err != nil {
		return 0, common.Hash{}, 0, err
	}
	if acc == nil {
		return opresource.HolderEmpty, common.Hash{}, 0, nil
	}
	return opresource.DefaultHolderDecoder{}.Decode(acc.Data)
}

// receiptStoreAdapter satisfies rpcapi.ReceiptStore over Persistence.
type receiptStoreAdapter struct{ store *sqlstore.Store }

func (r *receiptStoreAdapter) TxBySig(ctx context.Context, sig string) (*rpcapi.TxReceipt, error) {
	row, err := r.store.TxBySig(ctx, sig)
	if err != nil || row == nil {
		return nil, err
	}
	return &rpcapi.TxReceipt{NeonTxSig: row.NeonTxSig, TxIndex: row.TxIndex, Sender: row.Sender, Nonce: row.Nonce, Status: row.Status, GasUsed: row.GasUsed}, nil
}

func (r *receiptStoreAdapter) TxBySenderNonce(ctx context.Context, sender string, nonce uint64) (*rpcapi.TxReceipt, error) {
	row, err := r.store.TxBySenderNonce(ctx, sender, nonce)
	if err != nil || row == nil {
		return nil, err
	}
	return &rpcapi.TxReceipt{NeonTxSig: row.NeonTxSig, TxIndex: row.TxIndex, Sender: row.Sender, Nonce: row.Nonce, Status: row.Status, GasUsed: row.GasUsed}, nil
}

// mempoolFacadeAdapter satisfies rpcapi.Mempool. The facade derives only an
// identity hash for incoming raw txs (handlers.go), so Sender is left at
// the zero address; full RLP decoding/signature recovery belongs to the
// parsing layer in front of the facade.
type mempoolFacadeAdapter struct{ mp *mempool.Mempool }

func (m *mempoolFacadeAdapter) Add(tx rpcapi.ETx) error {
	return m.mp.Add(&mempool.ETx{
		Hash:     tx.Hash,
		GasPrice: big.NewInt(0),
		GasLimit: big.NewInt(0),
		RLP:      tx.RLP,
	})
}

// mempoolPoolAdapter satisfies executor.Pool.
type mempoolPoolAdapter struct{ mp *mempool.Mempool }

func (m *mempoolPoolAdapter) Acquire() *mempool.ETx { return m.mp.Acquire() }
func (m *mempoolPoolAdapter) Done(hash common.Hash, newStateTxCnt uint64) {
	m.mp.Done(hash, newStateTxCnt)
}
func (m *mempoolPoolAdapter) Fail(hash common.Hash)         { m.mp.Fail(hash) }
func (m *mempoolPoolAdapter) Cancel(hash common.Hash) error { return m.mp.Cancel(hash) }

// rpcResultSink satisfies executor.RPCResultSink; the facade has no
// per-call subscription to notify, so terminal failures are only logged
// (the facade has no per-request result subscription).
type rpcResultSink struct{}

func (rpcResultSink) Failed(txHash common.Hash, err error) {
	wiringLogger.Warn("tx failed terminally", "tx", txHash.Hex(), "err", err)
}

// resourceInitializer satisfies executor.ResourceInitializer: pop one
// Disabled resource per tick and run it through opresource.Initialize.
// A stuck holder is registered and the resource enabled anyway (the
// stuck tx is handed to the Strategy Engine separately); a
// missing or mis-sized holder gets a HolderCreate submitted, leaving the
// resource Disabled so the next tick re-checks the result.
type resourceInitializer struct {
	chain      *solclient.Client
	resources  *opresource.Manager
	snd        *sender.Sender
	stuck      *stuckRegistry
	holderSize uint64
	evmProgram common.Pubkey
	altProgram common.Pubkey
}

func (r *resourceInitializer) InitializeOne(ctx context.Context) error {
	res := r.resources.GetDisabled()
	if res == nil {
		return nil
	}
	err := opresource.Initialize(ctx, &opresourceChainReaderAdapter{chain: r.chain}, opresource.DefaultHolderDecoder{}, res, r.holderSize)
	var stuckErr *xerr.StuckTxError
	var badErr *xerr.BadResourceError
	switch {
	case err == nil:
	case errors.As(err, &stuckErr):
		r.stuck.AddOwn(stuckErr)
	case errors.As(err, &badErr) && strings.Contains(badErr.Reason, "holder missing"):
		return r.createHolder(ctx, res)
	default:
		return err
	}
	r.resources.Enable(res)
	return nil
}

func (r *resourceInitializer) createHolder(ctx context.Context, res *opresource.OpRes) error {
	builder := txcodec.NewBuilder(res.Signer, res.Holder, r.evmProgram, r.altProgram)
	ix := builder.HolderCreate(holderSeed(res.ResourceID), r.holderSize)
	stx := txcodec.NewSTx(common.Hash{}, []txcodec.Instruction{ix})
	_, err := r.snd.Send(ctx, []*txcodec.STx{stx})
	return err
}

// stuckRegistry satisfies both executor.StuckTxSink/StuckTxPoller,
// bridging the Executor's own-discovered stuck txs and the Indexer's externally
// discovered ones through the shared Redis cache.
type stuckRegistry struct{ cache *stuckcache.Cache }

func (s *stuckRegistry) AddOwn(sig *xerr.StuckTxError) {
	if err := s.cache.PutStuckAt(context.Background(), stuckcache.StuckSnapshot{
		HolderPubkey: sig.Holder,
		ChainID:      sig.ChainID,
		ActiveTxSig:  sig.NeonTxSig,
		DiscoveredBy: "own",
	}); err != nil {
		wiringLogger.Warn("failed to record own-discovered stuck tx", "err", err)
	}
}

func (s *stuckRegistry) PollExternal(ctx context.Context) error {
	// Own- and indexer-discovered entries already share one Redis-backed
	// dictionary (PutStuckAt is idempotent per holder pubkey), so there is
	// nothing further to merge here; this satisfies the periodic-poll
	// contract the Housekeeper expects while the dictionary stays the
	// single source of truth for both discovery paths.
	_, err := s.cache.ListStuck(ctx)
	return err
}

// mempoolSuggestedPriceOracle satisfies executor.GasPriceOracle, deriving a
// suggested price from the mempool's own pending top-of-book (the highest
// gas price currently waiting to be scheduled), floored at floorWei so an
// empty mempool never suggests zero. No external SOL/NEON exchange-rate
// feed is configured, so the mempool's own top-of-book stands in.
type mempoolSuggestedPriceOracle struct {
	mp       *mempool.Mempool
	floorWei *big.Int
}

func (o *mempoolSuggestedPriceOracle) SuggestedGasPrice(ctx context.Context) (*big.Int, error) {
	if top := o.mp.TopPendingGasPrice(); top != nil && top.Sign() > 0 {
		return top, nil
	}
	return o.floorWei, nil
}

// noopEVMConfigReader/noopCodecPropagator satisfy the Housekeeper's
// config-refresh dependencies with the values fixed at process start. A
// full implementation would re-read on-chain EVM config each tick; no
// on-chain config account layout is decoded yet, so the
// configured snapshot stands in.
type noopEVMConfigReader struct{ cfg config.Config }

func (n *noopEVMConfigReader) ReadConfig(ctx context.Context) ([]uint64, uint64, uint64, error) {
	return []uint64{n.cfg.ChainID}, 500, n.cfg.CULimit, nil
}

type noopCodecPropagator struct{}

func (noopCodecPropagator) SetConfig(chainIDs []uint64, evmStepMin uint64, cuLimit uint64) {}

// derivedAltAddresser satisfies strategy.AltAddresser. The table address is
// a stand-in derivation, sha256(signer || recent_slot): the ALT program's
// real program-derived-address rules are not represented anywhere in the
// implementation here, same caveat as opresource.DefaultHolderDecoder.
type derivedAltAddresser struct{ chain *solclient.Client }

func (d *derivedAltAddresser) NextAlt(ctx context.Context, signer common.Pubkey) (common.Pubkey, byte, uint64, error) {
	slot, err := d.chain.GetBlockSlot(ctx, common.Confirmed)
	if err != nil {
		return common.Pubkey{}, 0, 0, err
	}
	seed := make([]byte, 0, len(signer)+8)
	seed = append(seed, signer[:]...)
	seed = binary.LittleEndian.AppendUint64(seed, slot)
	return common.Pubkey(sha256.Sum256(seed)), 255, slot, nil
}

// altLifecycle satisfies strategy.AltRegistry and executor.AltCloser: it
// collects the tables the Strategy Engine created and retires them on the
// Housekeeper's deactivate/close cycle, reusing the same Tx List Sender
// path the tables were created through.
type altLifecycle struct {
	chain      *solclient.Client
	snd        *sender.Sender
	builderFor func(authority common.Pubkey) *txcodec.Builder

	mu     sync.Mutex
	tables []*txcodec.AltTable
}

func (l *altLifecycle) Track(t *txcodec.AltTable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tables = append(l.tables, t)
}

func (l *altLifecycle) CurrentSlot(ctx context.Context) (uint64, error) {
	return l.chain.GetBlockSlot(ctx, common.Finalized)
}

func (l *altLifecycle) PendingALTs() []*txcodec.AltTable {
	l.mu.Lock()
	defer l.mu.Unlock()
	open := l.tables[:0]
	for _, t := range l.tables {
		if t.State != txcodec.AltClosed {
			open = append(open, t)
		}
	}
	l.tables = open
	return append([]*txcodec.AltTable(nil), open...)
}

func (l *altLifecycle) Deactivate(ctx context.Context, alt *txcodec.AltTable) error {
	b := l.builderFor(alt.Authority)
	stx := txcodec.NewSTx(common.Hash{}, []txcodec.Instruction{b.AltDeactivate(alt.Address)})
	if _, err := l.snd.Send(ctx, []*txcodec.STx{stx}); err != nil {
		return err
	}
	slot, err := l.chain.GetBlockSlot(ctx, common.Confirmed)
	if err != nil {
		return err
	}
	alt.State = txcodec.AltDeactivating
	alt.DeactivatedSlot = slot
	return nil
}

func (l *altLifecycle) Close(ctx context.Context, alt *txcodec.AltTable) error {
	b := l.builderFor(alt.Authority)
	stx := txcodec.NewSTx(common.Hash{}, []txcodec.Instruction{b.AltClose(alt.Address)})
	if _, err := l.snd.Send(ctx, []*txcodec.STx{stx}); err != nil {
		return err
	}
	alt.State = txcodec.AltClosed
	return nil
}

// operatorKey pairs one loaded signer keypair with its holder account
// pubkey, read from two index-aligned keypair file lists in config.
type operatorKey struct {
	signer common.Pubkey
	holder common.Pubkey
	priv   ed25519.PrivateKey
}

type operatorKeyset struct {
	operators []operatorKey
	byPubkey  map[common.Pubkey]ed25519.PrivateKey
}

// signerFor implements the func(*txcodec.STx) []ed25519.PrivateKey shape
// sender.New expects, resolving the tx's fee-payer account back to a
// loaded keypair. The Strategy Engine always builds with a registered
// resource's signer pubkey, so the lookup hits once at least one operator
// keypair has been configured.
func (k *operatorKeyset) signerFor(tx *txcodec.STx) []ed25519.PrivateKey {
	payer := tx.FeePayer()
	if priv, ok := k.byPubkey[payer]; ok {
		return []ed25519.PrivateKey{priv}
	}
	wiringLogger.Warn("no loaded keypair for fee payer", "payer", payer.String())
	return nil
}
