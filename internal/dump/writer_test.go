package dump

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitcoingraph/bitcoingraph/internal/bgconfig"
	"github.com/bitcoingraph/bitcoingraph/internal/model"
)

func testConfig() bgconfig.DumpConfig {
	return bgconfig.DumpConfig{
		Delimiter:          ",",
		PlainHeader:        true,
		SeparateHeaderFile: true,
		DedupTransactions:  true,
	}
}

func sampleBlock() model.Normalized {
	return model.Normalized{
		Block: model.Block{Hash: "h1", Height: 1, Timestamp: 1000},
		Txs:   []model.Tx{{TxID: "tx1", BlockHash: "h1", IsCoinbase: true}},
		Outputs: []model.Output{
			{TxID: "tx1", N: 0, Value: 5000000000, ScriptType: "pubkeyhash"},
		},
		OutputAddresses: []model.OutputAddress{
			{TxID: "tx1", N: 0, Address: "addrA"},
		},
		RelBlockTx:  []model.RelBlockTx{{BlockHash: "h1", TxID: "tx1"}},
		RelTxOutput: []model.RelTxOutput{{TxID: "tx1", OutputKey: "tx1_0"}},
		RelInputs:   []model.RelInput{{TxID: "tx1", OutputKey: model.CoinbaseRef}},
		OutputSums:  []model.TxOutputSum{{TxID: "tx1", OutputSum: 5000000000}},
		Addresses:   []string{"addrA"},
	}
}

func TestWriter_WritesAllFilesWithSeparateHeader(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, testConfig())
	require.NoError(t, err)
	require.NoError(t, w.WriteBlock(sampleBlock()))
	require.NoError(t, w.Close())

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name+".csv"))
		require.NoError(t, err, f.name)
		assert.NotContains(t, string(data), "block_hash,height", f.name+" should not have an inline header when SeparateHeaderFile is set")

		headerData, err := os.ReadFile(filepath.Join(dir, f.name+"_header.csv"))
		require.NoError(t, err, f.name)
		assert.NotEmpty(t, headerData)
	}

	txData, err := os.ReadFile(filepath.Join(dir, "transactions.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(txData), "tx1,true")
}

func TestWriter_ResumesIntoExistingFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()

	w1, err := Open(dir, cfg)
	require.NoError(t, err)
	require.NoError(t, w1.WriteBlock(sampleBlock()))
	require.NoError(t, w1.Close())

	w2, err := Open(dir, cfg)
	require.NoError(t, err)
	blk2 := sampleBlock()
	blk2.Block = model.Block{Hash: "h2", Height: 2, Timestamp: 2000}
	blk2.Txs = []model.Tx{{TxID: "tx2", BlockHash: "h2"}}
	require.NoError(t, w2.WriteBlock(blk2))
	require.NoError(t, w2.Close())

	data, err := os.ReadFile(filepath.Join(dir, "blocks.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "h1,1,1000")
	assert.Contains(t, string(data), "h2,2,2000")

	// Reopening must not duplicate the header.
	headerData, err := os.ReadFile(filepath.Join(dir, "blocks_header.csv"))
	require.NoError(t, err)
	assert.Equal(t, "block_hash,height,timestamp\n", string(headerData))
}

func TestWriter_InlineHeaderMode(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.SeparateHeaderFile = false

	w, err := Open(dir, cfg)
	require.NoError(t, err)
	require.NoError(t, w.WriteBlock(sampleBlock()))
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(dir, "blocks_header.csv"))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(dir, "blocks.csv"))
	require.NoError(t, err)
	assert.Equal(t, "block_hash,height,timestamp\nh1,1,1000\n", string(data))
}
