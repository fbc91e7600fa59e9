// Package node is the typed Node Client (C1): get_tip_height, get_block,
// get_transactions over the rpcclient transport, decoding the documented
// getblockcount/getblockhash/getblock/getrawtransaction shapes (spec §6.1).
package node

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shopspring/decimal"

	"github.com/bitcoingraph/bitcoingraph/internal/bgerr"
)

// BlockRecord is the raw decoded getblock response.
type BlockRecord struct {
	Hash          string   `json:"hash"`
	Height        int64    `json:"height"`
	Time          uint64   `json:"time"`
	Tx            []string `json:"tx"`
	NextBlockHash string   `json:"nextblockhash"`
}

// HasNext reports whether the node reported a nextblockhash.
func (b BlockRecord) HasNext() bool {
	return b.NextBlockHash != ""
}

// ValidateHash parses Hash as a chainhash.Hash purely to reject malformed
// hex early; the string form is what the rest of the pipeline keys on.
func (b BlockRecord) ValidateHash() error {
	if _, err := chainhash.NewHashFromStr(b.Hash); err != nil {
		return bgerr.New(bgerr.KindMalformedRecord, "block hash is not a valid 32-byte hex hash", err)
	}
	return nil
}

// Vin is one raw transaction input.
type Vin struct {
	Coinbase string `json:"coinbase,omitempty"`
	TxID     string `json:"txid,omitempty"`
	Vout     uint32 `json:"vout,omitempty"`
}

// IsCoinbase reports whether this input is the synthetic coinbase input.
func (v Vin) IsCoinbase() bool {
	return v.Coinbase != ""
}

// ScriptPubKey is the output script descriptor the node attaches to a vout.
type ScriptPubKey struct {
	Type      string   `json:"type"`
	Addresses []string `json:"addresses,omitempty"`
	// Address is the single-address form some node versions emit instead of
	// the Addresses array; normalized into Addresses by Vout.AddressList.
	Address string `json:"address,omitempty"`
}

// Vout is one raw transaction output.
type Vout struct {
	N            uint32          `json:"n"`
	Value        decimal.Decimal `json:"value"`
	ScriptPubKey ScriptPubKey    `json:"scriptPubKey"`
}

// AddressList returns the set of payee addresses for this output, coping
// with both the legacy single-"address" and the modern "addresses" array
// node response shapes.
func (v Vout) AddressList() []string {
	if len(v.ScriptPubKey.Addresses) > 0 {
		return v.ScriptPubKey.Addresses
	}
	if v.ScriptPubKey.Address != "" {
		return []string{v.ScriptPubKey.Address}
	}
	return nil
}

// ValueSatoshis converts Value (BTC, fixed-point decimal) to an integer
// satoshi amount. Decimal arithmetic only — the node's JSON value never
// passes through float64.
func (v Vout) ValueSatoshis() int64 {
	return v.Value.Shift(8).Round(0).IntPart()
}

// TxRecord is the raw decoded getrawtransaction (verbose) response.
type TxRecord struct {
	TxID      string `json:"txid"`
	BlockHash string `json:"blockhash"`
	Vin       []Vin  `json:"vin"`
	Vout      []Vout `json:"vout"`
}

// IsCoinbase reports whether this transaction's first input is the
// synthetic coinbase input. Per spec, only the first transaction of a
// block may be coinbase and it has exactly one synthetic input.
func (t TxRecord) IsCoinbase() bool {
	return len(t.Vin) == 1 && t.Vin[0].IsCoinbase()
}
