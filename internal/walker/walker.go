// Package walker implements the Chain Walker (C2): a finite, ordered,
// non-restartable lazy sequence of fully-decoded blocks over a height
// range, walking nextblockhash rather than repeated height lookups, and
// batching each block's transaction fetch into a single RPC.
package walker

import (
	"context"

	"github.com/bitcoingraph/bitcoingraph/internal/bgerr"
	"github.com/bitcoingraph/bitcoingraph/internal/node"
)

// Block is one fully-decoded block emission: the header plus every
// transaction of the block, in the node's given order.
type Block struct {
	Hash         string
	Height       uint64
	Time         uint64
	Transactions []node.TxRecord
}

// ProgressFunc is an advisory progress observer. It receives a
// monotonically non-decreasing fraction in [0,1]. A panic inside it is
// recovered and ignored — observer failure must never interrupt the walk.
type ProgressFunc func(fraction float64)

// Walker produces blocks for heights [start, end] inclusive.
type Walker struct {
	client   *node.Client
	start    uint64
	end      uint64
	progress ProgressFunc

	lastPercent int // -1 until the first report; guards the throttle below
}

// New creates a Walker. progress may be nil.
func New(client *node.Client, start, end uint64, progress ProgressFunc) *Walker {
	return &Walker{client: client, start: start, end: end, progress: progress, lastPercent: -1}
}

// Walk streams blocks to visit in strictly ascending height order. It stops
// without error if the chain is shorter than end (spec §4.2.3). A height
// that does not equal the expected previous+1 is a fatal chain
// inconsistency (spec §4.2.4). visit returning an error stops the walk and
// that error is returned unwrapped.
func (w *Walker) Walk(ctx context.Context, visit func(Block) error) error {
	if w.end < w.start {
		return nil
	}

	startHash, err := w.client.GetBlockHash(ctx, w.start)
	if err != nil {
		return bgerr.Wrap(err, "resolving start block hash")
	}

	total := w.end - w.start + 1
	expectedHeight := w.start
	hash := startHash
	var emitted uint64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := w.client.GetBlock(ctx, hash)
		if err != nil {
			return bgerr.Wrap(err, "fetching block")
		}
		if uint64(rec.Height) != expectedHeight {
			return bgerr.New(bgerr.KindChainInconsistency,
				"block height does not follow expected previous+1", nil)
		}

		txRecords, err := w.client.GetTransactions(ctx, rec.Tx)
		if err != nil {
			return bgerr.Wrap(err, "batch-fetching block transactions")
		}
		transactions := make([]node.TxRecord, len(rec.Tx))
		for i, tx := range txRecords {
			if tx == nil {
				// A block's own listed transaction must always resolve;
				// an absence here is a node-side inconsistency, not the
				// documented lenient prev-output case (that applies only
				// to resolving an input's referenced output, not to the
				// block's own transaction list).
				return bgerr.New(bgerr.KindChainInconsistency,
					"node could not return a transaction listed in its own block", nil)
			}
			transactions[i] = *tx
		}

		block := Block{
			Hash:         rec.Hash,
			Height:       uint64(rec.Height),
			Time:         rec.Time,
			Transactions: transactions,
		}
		if err := visit(block); err != nil {
			return err
		}

		emitted++
		w.reportProgress(emitted, total)

		if expectedHeight == w.end {
			return nil
		}
		if !rec.HasNext() {
			return nil // chain shorter than end: stop without error
		}
		hash = rec.NextBlockHash
		expectedHeight++
	}
}

// reportProgress only invokes the observer on a whole-percentage-point
// change, grounded on original_source/bitcoingraph/export.py:78-82's
// `percentage = (counter+1)*100/number_of_blocks` gate — without it, a
// multi-million-block range calls the observer once per block.
func (w *Walker) reportProgress(emitted, total uint64) {
	if w.progress == nil {
		return
	}
	percent := int(emitted * 100 / total)
	if percent == w.lastPercent {
		return
	}
	w.lastPercent = percent

	fraction := float64(emitted) / float64(total)
	if fraction > 1 {
		fraction = 1
	}
	func() {
		defer func() { _ = recover() }()
		w.progress(fraction)
	}()
}
