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

package solclient

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// AccountInfo is the decoded form of a settlement-chain account.
type AccountInfo struct {
	Owner    common.Pubkey
	Lamports uint64
	Data     []byte
	RentEpoch uint64
	Executable bool
}

type accountInfoJSON struct {
	Value *struct {
		Owner      string   `json:"owner"`
		Lamports   uint64   `json:"lamports"`
		Data       []string `json:"data"`
		RentEpoch  uint64   `json:"rentEpoch"`
		Executable bool     `json:"executable"`
	} `json:"value"`
}

func decodeAccountInfo(raw accountInfoJSON) (*AccountInfo, error) {
	if raw.Value == nil {
		return nil, nil
	}
	var data []byte
	if len(raw.Value.Data) > 0 && raw.Value.Data[0] != "" {
		d, err := base64.StdEncoding.DecodeString(raw.Value.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		data = d
	}
	return &AccountInfo{
		Owner:      decodePubkey(raw.Value.Owner),
		Lamports:   raw.Value.Lamports,
		Data:       data,
		RentEpoch:  raw.Value.RentEpoch,
		Executable: raw.Value.Executable,
	}, nil
}

func decodePubkey(s string) common.Pubkey {
	var p common.Pubkey
	b := base58Decode(s)
	copy(p[:], b)
	return p
}

// GetAccount implements get_account(pubkey, commitment, [slice]) → AccountInfo | None.
func (c *Client) GetAccount(ctx context.Context, pubkey common.Pubkey, commit common.CommitLevel) (*AccountInfo, error) {
	params := []interface{}{
		pubkey.String(),
		map[string]interface{}{"encoding": "base64", "commitment": commit.RPCCommitment()},
	}
	var raw accountInfoJSON
	if err := c.callContext(ctx, &raw, "getAccountInfo", params); err != nil {
		return nil, err
	}
	return decodeAccountInfo(raw)
}

const maxBatchedAccounts = 50

// GetMultipleAccounts implements the batched get_account variant: it chunks
// inputs larger than 50 pubkeys, preserves input order, and fills gaps with
// nil.
func (c *Client) GetMultipleAccounts(ctx context.Context, pubkeys []common.Pubkey, commit common.CommitLevel) ([]*AccountInfo, error) {
	out := make([]*AccountInfo, len(pubkeys))
	for start := 0; start < len(pubkeys); start += maxBatchedAccounts {
		end := start + maxBatchedAccounts
		if end > len(pubkeys) {
			end = len(pubkeys)
		}
		chunk := pubkeys[start:end]
		keys := make([]string, len(chunk))
		for i, pk := range chunk {
			keys[i] = pk.String()
		}
		params := []interface{}{
			keys,
			map[string]interface{}{"encoding": "base64", "commitment": commit.RPCCommitment()},
		}
		var raw struct {
			Value []*struct {
				Owner      string   `json:"owner"`
				Lamports   uint64   `json:"lamports"`
				Data       []string `json:"data"`
				RentEpoch  uint64   `json:"rentEpoch"`
				Executable bool     `json:"executable"`
			} `json:"value"`
		}
		if err := c.callContext(ctx, &raw, "getMultipleAccounts", params); err != nil {
			return nil, err
		}
		for i, v := range raw.Value {
			if v == nil {
				out[start+i] = nil
				continue
			}
			ai, err := decodeAccountInfo(accountInfoJSON{Value: v})
			if err != nil {
				return nil, err
			}
			out[start+i] = ai
		}
	}
	return out, nil
}

// GetRecentBlockhash implements get_recent_blockhash(commitment) → (hash, last_valid_block_height).
func (c *Client) GetRecentBlockhash(ctx context.Context, commit common.CommitLevel) (common.Hash, uint64, error) {
	params := []interface{}{map[string]interface{}{"commitment": commit.RPCCommitment()}}
	var raw struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.callContext(ctx, &raw, "getLatestBlockhash", params); err != nil {
		return common.Hash{}, 0, err
	}
	return common.BytesToHash(base58Decode(raw.Value.Blockhash)), raw.Value.LastValidBlockHeight, nil
}

// GetBlockSlot implements get_block_slot(commitment) → u64.
func (c *Client) GetBlockSlot(ctx context.Context, commit common.CommitLevel) (uint64, error) {
	params := []interface{}{map[string]interface{}{"commitment": commit.RPCCommitment()}}
	var slot uint64
	err := c.callContext(ctx, &slot, "getSlot", params)
	return slot, err
}

// GetFirstAvailableSlot implements get_first_available_slot().
func (c *Client) GetFirstAvailableSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.callContext(ctx, &slot, "getFirstAvailableSlot", nil)
	return slot, err
}

// BlockInfo is the decoded form of a settlement block, enough for the
// Indexer to walk instructions; the full transaction/meta
// decoding lives in indexer, which reparses BlockInfo.Raw.
type BlockInfo struct {
	Slot      uint64
	Blockhash common.Hash
	ParentSlot uint64
	Raw       []byte // raw JSON block payload, reparsed by indexer
}

// GetBlock implements get_block(slot, commitment) → BlockInfo | Empty(slot).
func (c *Client) GetBlock(ctx context.Context, slot uint64, commit common.CommitLevel) (*BlockInfo, error) {
	params := []interface{}{
		slot,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     commit.RPCCommitment(),
			"maxSupportedTransactionVersion": 0,
		},
	}
	var raw struct {
		Blockhash  string          `json:"blockhash"`
		ParentSlot uint64          `json:"parentSlot"`
	}
	var rawBody []byte
	if err := c.callRaw(ctx, "getBlock", params, &rawBody, &raw); err != nil {
		return nil, err
	}
	if rawBody == nil {
		return nil, nil // Empty(slot)
	}
	return &BlockInfo{
		Slot:       slot,
		Blockhash:  common.BytesToHash(base58Decode(raw.Blockhash)),
		ParentSlot: raw.ParentSlot,
		Raw:        rawBody,
	}, nil
}

// GetBlocks implements get_block's batch variant.
func (c *Client) GetBlocks(ctx context.Context, slots []uint64, commit common.CommitLevel) ([]*BlockInfo, error) {
	methods := make([]string, len(slots))
	params := make([]interface{}, len(slots))
	for i, slot := range slots {
		methods[i] = "getBlock"
		params[i] = []interface{}{
			slot,
			map[string]interface{}{
				"encoding":                       "json",
				"commitment":                     commit.RPCCommitment(),
				"maxSupportedTransactionVersion": 0,
			},
		}
	}
	raws, err := c.batchCall(ctx, methods, params)
	if err != nil {
		return nil, err
	}
	out := make([]*BlockInfo, len(slots))
	for i, raw := range raws {
		if raw == nil {
			out[i] = nil
			continue
		}
		var body struct {
			Blockhash  string `json:"blockhash"`
			ParentSlot uint64 `json:"parentSlot"`
		}
		if err := unmarshalInto(raw, &body); err != nil {
			return nil, err
		}
		out[i] = &BlockInfo{
			Slot:       slots[i],
			Blockhash:  common.BytesToHash(base58Decode(body.Blockhash)),
			ParentSlot: body.ParentSlot,
			Raw:        raw,
		}
	}
	return out, nil
}

// TxReceipt is the decoded settlement-tx receipt, consumed by sender's error
// parser and the Indexer's instruction walk.
type TxReceipt struct {
	Slot   uint64
	Err    interface{}
	Logs   []string
	Raw    []byte
}

// GetTxReceipts implements get_tx_receipts(sigs, commitment) → [receipt | None].
func (c *Client) GetTxReceipts(ctx context.Context, sigs []common.Signature, commit common.CommitLevel) ([]*TxReceipt, error) {
	methods := make([]string, len(sigs))
	params := make([]interface{}, len(sigs))
	for i, sig := range sigs {
		methods[i] = "getTransaction"
		params[i] = []interface{}{
			sig.String(),
			map[string]interface{}{
				"encoding":                       "json",
				"commitment":                     commit.RPCCommitment(),
				"maxSupportedTransactionVersion": 0,
			},
		}
	}
	raws, err := c.batchCall(ctx, methods, params)
	if err != nil {
		return nil, err
	}
	out := make([]*TxReceipt, len(sigs))
	for i, raw := range raws {
		if raw == nil {
			out[i] = nil
			continue
		}
		var body struct {
			Slot uint64 `json:"slot"`
			Meta struct {
				Err  interface{} `json:"err"`
				LogMessages []string `json:"logMessages"`
			} `json:"meta"`
		}
		if err := unmarshalInto(raw, &body); err != nil {
			return nil, err
		}
		out[i] = &TxReceipt{Slot: body.Slot, Err: body.Meta.Err, Logs: body.Meta.LogMessages, Raw: raw}
	}
	return out, nil
}

// SendResult is one element of send_tx_list's per-position response.
type SendResult struct {
	Sig             common.Signature
	AlreadyProcessed bool
	Err             error
}

// SendTxList implements send_tx_list(txs, skip_preflight) → [SendResult].
func (c *Client) SendTxList(ctx context.Context, txs [][]byte, skipPreflight bool) ([]SendResult, error) {
	methods := make([]string, len(txs))
	params := make([]interface{}, len(txs))
	for i, tx := range txs {
		methods[i] = "sendTransaction"
		params[i] = []interface{}{
			base64.StdEncoding.EncodeToString(tx),
			map[string]interface{}{"encoding": "base64", "skipPreflight": skipPreflight, "preflightCommitment": "processed"},
		}
	}
	raws, err := c.batchCallWithErrors(ctx, methods, params)
	if err != nil {
		return nil, err
	}
	out := make([]SendResult, len(txs))
	for i, r := range raws {
		if r.err != nil {
			if isAlreadyProcessed(r.err) {
				out[i] = SendResult{AlreadyProcessed: true}
				continue
			}
			out[i] = SendResult{Err: r.err}
			continue
		}
		var sigStr string
		if err := unmarshalInto(r.raw, &sigStr); err != nil {
			out[i] = SendResult{Err: err}
			continue
		}
		var sig common.Signature
		copy(sig[:], base58Decode(sigStr))
		out[i] = SendResult{Sig: sig}
	}
	return out, nil
}

func isAlreadyProcessed(err error) bool {
	re, ok := err.(*rpcError)
	if !ok {
		return false
	}
	return re.Code == -32002 || re.Code == -32003
}

// CheckConfirm implements check_confirm(sigs, commitment_set, base_slot?) → bool.
// It reports true iff every sig reaches a commitment in commitmentSet; when a
// sig's slot lies more than 400 blocks behind the Safe cutoff it escalates to
// per-block commitment checks via getBlockCommitment.
func (c *Client) CheckConfirm(ctx context.Context, sigs []common.Signature, commitmentSet map[common.CommitLevel]bool, baseSlot uint64) (bool, error) {
	const escalationWindow = 400

	statuses, err := c.getSignatureStatuses(ctx, sigs)
	if err != nil {
		return false, err
	}
	for i, st := range statuses {
		if st == nil {
			return false, nil
		}
		level := commitmentFromConfirmations(st.ConfirmationStatus)
		if commitmentSet[level] {
			continue
		}
		if baseSlot > 0 && st.Slot > 0 && baseSlot > st.Slot+escalationWindow {
			safe, err := c.isBlockSafe(ctx, st.Slot)
			if err != nil {
				return false, err
			}
			if safe && commitmentSet[common.Safe] {
				continue
			}
		}
		_ = i
		return false, nil
	}
	return true, nil
}

type signatureStatus struct {
	Slot               uint64
	ConfirmationStatus string
	Err                interface{}
}

func (c *Client) getSignatureStatuses(ctx context.Context, sigs []common.Signature) ([]*signatureStatus, error) {
	sigStrs := make([]string, len(sigs))
	for i, s := range sigs {
		sigStrs[i] = s.String()
	}
	params := []interface{}{sigStrs, map[string]interface{}{"searchTransactionHistory": true}}
	var raw struct {
		Value []*struct {
			Slot               uint64      `json:"slot"`
			ConfirmationStatus string      `json:"confirmationStatus"`
			Err                interface{} `json:"err"`
		} `json:"value"`
	}
	if err := c.callContext(ctx, &raw, "getSignatureStatuses", params); err != nil {
		return nil, err
	}
	out := make([]*signatureStatus, len(raw.Value))
	for i, v := range raw.Value {
		if v == nil {
			continue
		}
		out[i] = &signatureStatus{Slot: v.Slot, ConfirmationStatus: v.ConfirmationStatus, Err: v.Err}
	}
	return out, nil
}

func commitmentFromConfirmations(s string) common.CommitLevel {
	switch s {
	case "processed":
		return common.Processed
	case "confirmed":
		return common.Confirmed
	case "finalized":
		return common.Finalized
	default:
		return common.NotProcessed
	}
}

// isBlockSafe treats a block as Safe when voted-stake/total-stake > 2/3
//, read via getBlockCommitment.
func (c *Client) isBlockSafe(ctx context.Context, slot uint64) (bool, error) {
	var raw struct {
		Commitment []uint64 `json:"commitment"`
		TotalStake uint64   `json:"totalStake"`
	}
	if err := c.callContext(ctx, &raw, "getBlockCommitment", []interface{}{slot}); err != nil {
		return false, err
	}
	if raw.TotalStake == 0 {
		return false, nil
	}
	var voted uint64
	for _, v := range raw.Commitment {
		voted += v
	}
	return float64(voted)/float64(raw.TotalStake) > 2.0/3.0, nil
}

// SimulationResult is the decoded response of a dry-run transaction
// simulation, from which the Strategy Engine derives a step count before
// committing to a strategy. Accounts holds the owner of each address passed
// in accountsToReturn (the zero pubkey for an account that does not exist);
// it is not the set of accounts the simulated tx touched.
type SimulationResult struct {
	Err          interface{}
	UnitsConsumed uint64
	Logs         []string
	Accounts     []common.Pubkey
}

// SimulateTransaction implements simulateTransaction, used as the backing
// call for the Strategy Engine's default Emulator: a
// dry run against current chain state without committing or paying fees.
func (c *Client) SimulateTransaction(ctx context.Context, rawTx []byte, accountsToReturn []common.Pubkey) (*SimulationResult, error) {
	addrs := make([]string, len(accountsToReturn))
	for i, a := range accountsToReturn {
		addrs[i] = a.String()
	}
	var raw struct {
		Value struct {
			Err           interface{} `json:"err"`
			Logs          []string    `json:"logs"`
			UnitsConsumed uint64      `json:"unitsConsumed"`
			Accounts      []*struct {
				Owner string `json:"owner"`
			} `json:"accounts"`
		} `json:"value"`
	}
	params := []interface{}{
		base64.StdEncoding.EncodeToString(rawTx),
		map[string]interface{}{
			"encoding":       "base64",
			"commitment":     "processed",
			"replaceRecentBlockhash": true,
			"accounts": map[string]interface{}{
				"encoding":  "base64",
				"addresses": addrs,
			},
		},
	}
	if err := c.callContext(ctx, &raw, "simulateTransaction", params); err != nil {
		return nil, err
	}
	result := &SimulationResult{
		Err:           raw.Value.Err,
		UnitsConsumed: raw.Value.UnitsConsumed,
		Logs:          raw.Value.Logs,
	}
	for _, a := range raw.Value.Accounts {
		if a == nil {
			result.Accounts = append(result.Accounts, common.Pubkey{})
			continue
		}
		result.Accounts = append(result.Accounts, decodePubkey(a.Owner))
	}
	return result, nil
}
