// Package dump implements the Dump Writer (C4): eight append-only CSV
// streams with fixed column order (spec §4.4), a sort-then-unique
// post-processing pass, and a pebble-backed checkpoint so a killed run can
// resume past already-flushed blocks.
package dump

// file is one of the eight fixed dump streams (addresses among them) or the
// tx_output_sum audit stream.
type file struct {
	name       string
	plainCols  []string
	typedCols  []string
	dedupable  bool // participates in the "when requested" dedup set
	alwaysSort bool // addresses.csv: always deduplicated, unconditionally
}

var files = []file{
	{
		name:      "blocks",
		plainCols: []string{"block_hash", "height", "timestamp"},
		typedCols: []string{"block_hash:ID(Block)", "height:int", "timestamp:int"},
	},
	{
		name:      "transactions",
		plainCols: []string{"txid", "coinbase"},
		typedCols: []string{"txid:ID(Transaction)", "coinbase:boolean"},
		dedupable: true,
	},
	{
		name:      "outputs",
		plainCols: []string{"output_key", "n", "value", "type"},
		typedCols: []string{"output_key:ID(Output)", "n:int", "value:decimal", "type:string"},
		dedupable: true,
	},
	{
		name:       "addresses",
		plainCols:  []string{"address"},
		typedCols:  []string{"address:ID(Address)"},
		alwaysSort: true,
	},
	{
		name:      "rel_block_tx",
		plainCols: []string{"block_hash", "txid"},
		typedCols: []string{"block_hash:START_ID(Block)", "txid:END_ID(Transaction)"},
	},
	{
		name:      "rel_tx_output",
		plainCols: []string{"txid", "output_key"},
		typedCols: []string{"txid:START_ID(Transaction)", "output_key:END_ID(Output)"},
		dedupable: true,
	},
	{
		name:      "rel_input",
		plainCols: []string{"txid", "output_key"},
		typedCols: []string{"txid:START_ID(Transaction)", "output_key:END_ID(Output)"},
	},
	{
		name:      "rel_output_address",
		plainCols: []string{"output_key", "address"},
		typedCols: []string{"output_key:START_ID(Output)", "address:END_ID(Address)"},
		dedupable: true,
	},
}

// txOutputSumFile is SPEC_FULL.md Part D.1's supplemented audit file: the
// per-transaction sum of output values the Python original computed as
// Transaction.output_sum(). Not one of the spec's eight core files, so it
// is tracked separately and never participates in dedup or entity
// resolution.
var txOutputSumFile = file{
	name:      "tx_output_sum",
	plainCols: []string{"txid", "output_sum"},
	typedCols: []string{"txid:ID(Transaction)", "output_sum:decimal"},
}

func header(f file, plain bool) []string {
	if plain {
		return f.plainCols
	}
	return f.typedCols
}
