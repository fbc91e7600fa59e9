package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitcoingraph/bitcoingraph/internal/bglog"
	"github.com/bitcoingraph/bitcoingraph/internal/node"
	"github.com/bitcoingraph/bitcoingraph/internal/rpcclient"
	"github.com/bitcoingraph/bitcoingraph/internal/walker"
)

func coinbaseTx(txid string, value string) node.TxRecord {
	return node.TxRecord{
		TxID: txid,
		Vin:  []node.Vin{{Coinbase: "00"}},
		Vout: []node.Vout{{N: 0, Value: decimalFromString(value), ScriptPubKey: node.ScriptPubKey{Type: "pubkeyhash", Addresses: []string{"addrA"}}}},
	}
}

func TestResolver_SameBlockSpend(t *testing.T) {
	blk := walker.Block{
		Hash:   "blockhash1",
		Height: 100,
		Transactions: []node.TxRecord{
			coinbaseTx("tx1", "50"),
			{
				TxID: "tx2",
				Vin:  []node.Vin{{TxID: "tx1", Vout: 0}},
				Vout: []node.Vout{{N: 0, Value: decimalFromString("49.9"), ScriptPubKey: node.ScriptPubKey{Type: "pubkeyhash", Addresses: []string{"addrB"}}}},
			},
		},
	}

	r := New(NewMemIndex(), node.NewPool(nil, 1), bglog.Nop())
	got, err := r.Resolve(context.Background(), blk)
	require.NoError(t, err)

	require.Len(t, got.Txs, 2)
	assert.True(t, got.Txs[0].IsCoinbase)
	assert.False(t, got.Txs[1].IsCoinbase)

	require.Len(t, got.RelInputs, 2)
	assert.Equal(t, RelInput{TxID: "tx1", OutputKey: CoinbaseRef}, got.RelInputs[0])
	assert.Equal(t, RelInput{TxID: "tx2", OutputKey: "tx1_0"}, got.RelInputs[1])

	require.Len(t, got.Outputs, 2)
	assert.Equal(t, "addrA", got.OutputAddresses[0].Address)
	assert.ElementsMatch(t, []string{"addrA", "addrB"}, got.Addresses)
}

func TestResolver_AncestorLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var single map[string]interface{}
		body := decodeBody(t, req)
		_ = json.Unmarshal(body, &single)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      single["id"],
			"result": node.TxRecord{
				TxID: "ancestorTx",
				Vout: []node.Vout{{N: 2, Value: decimalFromString("1.5"), ScriptPubKey: node.ScriptPubKey{Type: "pubkeyhash", Addresses: []string{"addrOld"}}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	rpc := rpcclient.New(srv.URL, "", "", 5*time.Second)
	defer rpc.Close()
	client := node.New(rpc)

	blk := walker.Block{
		Hash:   "blockhash2",
		Height: 200,
		Transactions: []node.TxRecord{
			{
				TxID: "tx3",
				Vin:  []node.Vin{{TxID: "ancestorTx", Vout: 2}},
				Vout: []node.Vout{{N: 0, Value: decimalFromString("1.4"), ScriptPubKey: node.ScriptPubKey{Type: "pubkeyhash", Addresses: []string{"addrC"}}}},
			},
		},
	}

	r := New(NewMemIndex(), node.NewPool(client, 1), bglog.Nop())
	got, err := r.Resolve(context.Background(), blk)
	require.NoError(t, err)

	require.Len(t, got.RelInputs, 1)
	assert.Equal(t, RelInput{TxID: "tx3", OutputKey: "ancestorTx_2"}, got.RelInputs[0])

	var sawAncestorOutput bool
	for _, o := range got.Outputs {
		if o.TxID == "ancestorTx" && o.N == 2 {
			sawAncestorOutput = true
			assert.Equal(t, int64(150000000), o.Value)
		}
	}
	assert.True(t, sawAncestorOutput, "ancestor output must be re-emitted so rel_input's output_key resolves in outputs.csv")
}

func TestResolver_UnresolvableReferenceIsDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var single map[string]interface{}
		body := decodeBody(t, req)
		_ = json.Unmarshal(body, &single)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      single["id"],
			"error":   map[string]interface{}{"code": -5, "message": "No such mempool or blockchain transaction"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	rpc := rpcclient.New(srv.URL, "", "", 5*time.Second)
	defer rpc.Close()
	client := node.New(rpc)

	blk := walker.Block{
		Hash:   "blockhash3",
		Height: 300,
		Transactions: []node.TxRecord{
			{
				TxID: "tx4",
				Vin:  []node.Vin{{TxID: "ghostTx", Vout: 0}},
				Vout: []node.Vout{{N: 0, Value: decimalFromString("1"), ScriptPubKey: node.ScriptPubKey{Type: "pubkeyhash", Addresses: []string{"addrD"}}}},
			},
		},
	}

	r := New(NewMemIndex(), node.NewPool(client, 1), bglog.Nop())
	got, err := r.Resolve(context.Background(), blk)
	require.NoError(t, err)

	// The transaction is still emitted...
	require.Len(t, got.Txs, 1)
	assert.Equal(t, "tx4", got.Txs[0].TxID)
	// ...but the unresolvable input contributes no RelInput row.
	assert.Empty(t, got.RelInputs)
}
