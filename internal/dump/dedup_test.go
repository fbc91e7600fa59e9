package dump

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitcoingraph/bitcoingraph/internal/bgconfig"
)

func TestPostProcess_DedupesAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := bgconfig.DumpConfig{SeparateHeaderFile: true, DedupTransactions: true}

	writeRaw := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(content), 0o644))
	}

	writeRaw("addresses", "addrB\naddrA\naddrA\naddrC\n")
	writeRaw("transactions", "tx2,false\ntx1,true\ntx1,true\n")
	writeRaw("outputs", "tx1_0,0,100,pubkeyhash\n")
	writeRaw("rel_tx_output", "tx1,tx1_0\n")
	writeRaw("rel_output_address", "tx1_0,addrA\n")

	require.NoError(t, PostProcess(dir, cfg))

	addrData, err := os.ReadFile(filepath.Join(dir, "addresses.csv"))
	require.NoError(t, err)
	assert.Equal(t, "addrA\naddrB\naddrC\n", string(addrData))

	txData, err := os.ReadFile(filepath.Join(dir, "transactions.csv"))
	require.NoError(t, err)
	assert.Equal(t, "tx1,true\ntx2,false\n", string(txData))

	firstPass, err := os.ReadFile(filepath.Join(dir, "transactions.csv"))
	require.NoError(t, err)

	require.NoError(t, PostProcess(dir, cfg))
	secondPass, err := os.ReadFile(filepath.Join(dir, "transactions.csv"))
	require.NoError(t, err)
	assert.Equal(t, string(firstPass), string(secondPass), "dedup post-step must be idempotent")
}

func TestPostProcess_PreservesInlineHeader(t *testing.T) {
	dir := t.TempDir()
	cfg := bgconfig.DumpConfig{SeparateHeaderFile: false, DedupTransactions: false}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "addresses.csv"),
		[]byte("address\naddrB\naddrA\naddrA\n"), 0o644))

	require.NoError(t, PostProcess(dir, cfg))

	data, err := os.ReadFile(filepath.Join(dir, "addresses.csv"))
	require.NoError(t, err)
	assert.Equal(t, "address\naddrA\naddrB\n", string(data))
}
