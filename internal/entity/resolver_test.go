package entity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(content), 0o644))
}

func TestResolver_ResolvesEntitiesAcrossSharedInputs(t *testing.T) {
	dir := t.TempDir()

	// Deliberately out of sort order; Resolve must sort before joining.
	writeCSV(t, dir, "rel_input", "txid,output_key\ntxB,o3\ntxA,o2\ntxA,o1\ntxC,COINBASE\n")
	writeCSV(t, dir, "rel_output_address", "output_key,address\no2,addrB\no1,addrA\no3,addrC\n")
	writeCSV(t, dir, "addresses", "address\naddrA\naddrB\naddrC\naddrD\n")

	r := New(Config{Dir: dir, Delimiter: ",", InlineHeader: true})
	result, err := r.Resolve()
	require.NoError(t, err)

	// addrD is never observed as a spent input (only declared in
	// addresses.csv), so by default it gets no entity at all.
	assert.Equal(t, 3, result.Addresses)
	assert.Equal(t, 2, result.Entities) // {addrA,addrB}, {addrC}

	inputAddrs, err := os.ReadFile(filepath.Join(dir, "input_addresses.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(inputAddrs), "txA,addrA")
	assert.Contains(t, string(inputAddrs), "txA,addrB")
	assert.Contains(t, string(inputAddrs), "txB,addrC")
	assert.NotContains(t, string(inputAddrs), "txC", "coinbase input must be excluded before union-find")

	relEntity, err := os.ReadFile(filepath.Join(dir, "rel_address_entity.csv"))
	require.NoError(t, err)
	content := string(relEntity)
	assert.Contains(t, content, "addrA,1")
	assert.Contains(t, content, "addrB,1")
	assert.Contains(t, content, "addrC,2")
	assert.NotContains(t, content, "addrD", "an address never observed as a spent input gets no entity by default")

	entities, err := os.ReadFile(filepath.Join(dir, "entities.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n2\n", string(entities))
}

func TestResolver_IncludeUnspentSingletons(t *testing.T) {
	dir := t.TempDir()

	writeCSV(t, dir, "rel_input", "txid,output_key\ntxA,o1\ntxA,o2\n")
	writeCSV(t, dir, "rel_output_address", "output_key,address\no1,addrA\no2,addrB\n")
	writeCSV(t, dir, "addresses", "address\naddrA\naddrB\naddrC\n")

	r := New(Config{Dir: dir, Delimiter: ",", InlineHeader: true, IncludeUnspentSingletons: true})
	result, err := r.Resolve()
	require.NoError(t, err)

	// With the flag set, addrC (never spent) still gets its own singleton entity.
	assert.Equal(t, 3, result.Addresses)
	assert.Equal(t, 2, result.Entities) // {addrA,addrB}, {addrC}

	relEntity, err := os.ReadFile(filepath.Join(dir, "rel_address_entity.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(relEntity), "addrC,2")
}

func TestResolver_SelfInputIsNoOp(t *testing.T) {
	dir := t.TempDir()

	writeCSV(t, dir, "rel_input", "txid,output_key\ntxA,o1\ntxA,o2\n")
	writeCSV(t, dir, "rel_output_address", "output_key,address\no1,addrA\no2,addrA\n")
	writeCSV(t, dir, "addresses", "address\naddrA\naddrB\n")

	r := New(Config{Dir: dir, Delimiter: ",", InlineHeader: true})
	result, err := r.Resolve()
	require.NoError(t, err)

	// addrB is never observed as a spent input, so it gets no entity by
	// default; addrA is a repeated same-address group, which unions nothing
	// new but is still a spent address and so gets its own entity.
	assert.Equal(t, 1, result.Addresses)
	assert.Equal(t, 1, result.Entities)
}

func TestDSU_UnionByRankTieBreaksOnSmallestIndex(t *testing.T) {
	d := newDSU(4)
	d.union(2, 3)
	d.union(0, 1)
	d.union(1, 2)

	root := d.find(0)
	// Every union above is between equal-rank roots, so the smaller index wins.
	assert.Equal(t, int32(0), root)
	for i := int32(1); i < 4; i++ {
		assert.Equal(t, root, d.find(i))
	}
}
