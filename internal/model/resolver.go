package model

import (
	"context"

	"github.com/bitcoingraph/bitcoingraph/internal/bglog"
	"github.com/bitcoingraph/bitcoingraph/internal/node"
	"github.com/bitcoingraph/bitcoingraph/internal/walker"
)

// Resolver is the Transaction Model & Resolver (C3): it turns one walker
// Block into the normalized rows C4 appends to the dump, attaching each
// non-coinbase input to the output it spends.
//
// Outputs produced earlier in the SAME block are resolved purely from the
// in-memory/spilled index (spec §4.3's in-range case). An input whose
// prev_txid was not observed in this run is out-of-range: its previous
// transaction is fetched from the node directly, one batch per block
// covering every such input, deduplicated by prev_txid. A reference the
// node cannot resolve either is logged and silently dropped — the owning
// transaction is still emitted, just without a RelInput row for that one
// input (spec §4.3, scenario S6).
type Resolver struct {
	index OutputIndex
	pool  *node.Pool
	log   *bglog.Logger
}

// New creates a Resolver. index may be a MemIndex, PebbleIndex, or
// HybridIndex depending on configuration; pool is used only for
// out-of-range previous-transaction lookups, dispatched at its configured
// concurrency (node.NewPool(client, 1) degenerates to sequential dispatch).
// log may be bglog.Nop().
func New(index OutputIndex, pool *node.Pool, log *bglog.Logger) *Resolver {
	return &Resolver{index: index, pool: pool, log: log}
}

// Resolve normalizes one walker.Block, performing any necessary ancestor
// lookups along the way.
func (r *Resolver) Resolve(ctx context.Context, blk walker.Block) (Normalized, error) {
	out := Normalized{
		Block: Block{Hash: blk.Hash, Height: blk.Height, Timestamp: blk.Time},
	}

	addrSeen := make(map[string]struct{})

	// First pass: register every output this block produces, so a same-block
	// input can resolve it regardless of which transaction came first in the
	// node's listing (inputs may reference earlier-in-block outputs).
	for _, tx := range blk.Transactions {
		isCoinbase := tx.IsCoinbase()
		out.Txs = append(out.Txs, Tx{TxID: tx.TxID, BlockHash: blk.Hash, IsCoinbase: isCoinbase})
		out.RelBlockTx = append(out.RelBlockTx, RelBlockTx{BlockHash: blk.Hash, TxID: tx.TxID})

		var sum int64
		for _, vout := range tx.Vout {
			info := OutputInfo{
				ValueSatoshis: vout.ValueSatoshis(),
				ScriptType:    vout.ScriptPubKey.Type,
				Addresses:     vout.AddressList(),
			}
			key := OutputKey{TxID: tx.TxID, N: vout.N}
			if err := r.index.Put(key, info); err != nil {
				return Normalized{}, err
			}
			r.emitOutput(&out, key, info, addrSeen)
			sum += info.ValueSatoshis
		}
		out.OutputSums = append(out.OutputSums, TxOutputSum{TxID: tx.TxID, OutputSum: sum})
	}

	// Collect out-of-range references across the whole block before issuing
	// any RPC, so the ancestor fetch is one deduplicated batch (spec §4.3).
	type pendingRef struct {
		txID string
		n    uint32
	}
	var pendingTxIDs []string
	seenTxIDs := make(map[string]struct{})
	var pending []pendingRef

	for _, tx := range blk.Transactions {
		if tx.IsCoinbase() {
			continue
		}
		for _, vin := range tx.Vin {
			key := OutputKey{TxID: vin.TxID, N: vin.Vout}
			if _, ok, err := r.index.Get(key); err != nil {
				return Normalized{}, err
			} else if ok {
				continue
			}
			pending = append(pending, pendingRef{txID: vin.TxID, n: vin.Vout})
			if _, ok := seenTxIDs[vin.TxID]; !ok {
				seenTxIDs[vin.TxID] = struct{}{}
				pendingTxIDs = append(pendingTxIDs, vin.TxID)
			}
		}
	}

	if len(pendingTxIDs) > 0 {
		var ancestors []*node.TxRecord
		err := r.pool.Do(ctx, func(c *node.Client) error {
			var callErr error
			ancestors, callErr = c.GetTransactions(ctx, pendingTxIDs)
			return callErr
		})
		if err != nil {
			return Normalized{}, err
		}
		byTxID := make(map[string]*node.TxRecord, len(pendingTxIDs))
		for i, id := range pendingTxIDs {
			byTxID[id] = ancestors[i]
		}
		for _, ref := range pending {
			tx := byTxID[ref.txID]
			if tx == nil {
				r.log.Warnw("unresolvable previous output reference, dropping input",
					"prev_txid", ref.txID, "prev_n", ref.n)
				continue
			}
			var found *node.Vout
			for i := range tx.Vout {
				if tx.Vout[i].N == ref.n {
					found = &tx.Vout[i]
					break
				}
			}
			if found == nil {
				r.log.Warnw("previous transaction resolved but referenced output index missing",
					"prev_txid", ref.txID, "prev_n", ref.n)
				continue
			}
			info := OutputInfo{
				ValueSatoshis: found.ValueSatoshis(),
				ScriptType:    found.ScriptPubKey.Type,
				Addresses:     found.AddressList(),
			}
			key := OutputKey{TxID: ref.txID, N: ref.n}
			if err := r.index.Put(key, info); err != nil {
				return Normalized{}, err
			}
			r.emitOutput(&out, key, info, addrSeen)
		}
	}

	// Second pass: emit RelInput rows now that every resolvable output
	// (same-block or ancestor) is indexed.
	for _, tx := range blk.Transactions {
		if tx.IsCoinbase() {
			out.RelInputs = append(out.RelInputs, RelInput{TxID: tx.TxID, OutputKey: CoinbaseRef})
			continue
		}
		for _, vin := range tx.Vin {
			key := OutputKey{TxID: vin.TxID, N: vin.Vout}
			if _, ok, err := r.index.Get(key); err != nil {
				return Normalized{}, err
			} else if !ok {
				continue // unresolvable; already logged above
			}
			out.RelInputs = append(out.RelInputs, RelInput{TxID: tx.TxID, OutputKey: key.String()})
		}
	}

	return out, nil
}

func (r *Resolver) emitOutput(out *Normalized, key OutputKey, info OutputInfo, addrSeen map[string]struct{}) {
	out.Outputs = append(out.Outputs, Output{
		TxID: key.TxID, N: key.N, Value: info.ValueSatoshis, ScriptType: info.ScriptType,
	})
	out.RelTxOutput = append(out.RelTxOutput, RelTxOutput{TxID: key.TxID, OutputKey: key.String()})
	for _, addr := range info.Addresses {
		out.OutputAddresses = append(out.OutputAddresses, OutputAddress{
			TxID: key.TxID, N: key.N, Address: addr,
		})
		if _, ok := addrSeen[addr]; !ok {
			addrSeen[addr] = struct{}{}
			out.Addresses = append(out.Addresses, addr)
		}
	}
}
