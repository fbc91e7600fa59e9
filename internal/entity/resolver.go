// Package entity implements the Entity Resolver (C5): merge-join rel_input
// against rel_output_address to derive per-input addresses, union-find
// those addresses into entities keyed by shared transaction inputs (the
// common-input-ownership heuristic), and emit the dense entity assignment.
package entity

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bitcoingraph/bitcoingraph/internal/bgerr"
)

// Config controls how the resolver parses the dump directory it reads and
// whether it mirrors its output to a SQLite audit database.
type Config struct {
	Dir          string
	Delimiter    string
	InlineHeader bool // true if rel_input/rel_output_address/addresses carry their header inline rather than in a sibling *_header file
	SQLiteAudit  bool

	// IncludeUnspentSingletons controls spec.md §4.5's "outputs never
	// spent" open question (SPEC_FULL.md Part E): when false (the
	// default), an address only ever observed as an output payee — never
	// resolved as the address of a spent input — gets no entity at all,
	// rather than a singleton entity of its own.
	IncludeUnspentSingletons bool
}

// Result summarizes one resolution run for logging/CLI reporting.
type Result struct {
	Addresses int
	Entities  int
}

// Resolver runs the three-phase entity resolution over one dump directory.
type Resolver struct {
	cfg Config
}

// New creates a Resolver for cfg.Dir.
func New(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

func (r *Resolver) path(name string) string {
	return filepath.Join(r.cfg.Dir, name+".csv")
}

func (r *Resolver) delimiter() string {
	if r.cfg.Delimiter == "" {
		return ","
	}
	return r.cfg.Delimiter
}

// Resolve runs Phase A (merge-join), Phase B (union-find), and Phase C
// (dense entity emission) in sequence, writing input_addresses.csv,
// entities.csv, and rel_address_entity.csv into the dump directory.
//
// Precondition: addresses.csv is already sorted and deduplicated (C4's
// dedup pass always produces it that way, spec §4.4), and rel_input /
// rel_output_address exist with the columns spec §4.4 defines. This
// function itself re-sorts rel_input and rel_output_address by output_key
// — the "sorted dump directory" spec §4.5 requires as input — so callers
// need not have run a separate sort step first.
func (r *Resolver) Resolve() (Result, error) {
	if err := sortByColumns(r.path("rel_input"), r.delimiter(), r.cfg.InlineHeader, 2, 1); err != nil {
		return Result{}, err
	}
	if err := sortByColumns(r.path("rel_output_address"), r.delimiter(), r.cfg.InlineHeader, 1, 2); err != nil {
		return Result{}, err
	}

	if err := r.mergeJoin(); err != nil {
		return Result{}, err
	}
	if err := sortByColumns(r.path("input_addresses"), ",", true, 1); err != nil {
		return Result{}, err
	}

	addresses, addrIndex, err := r.loadAddresses()
	if err != nil {
		return Result{}, err
	}

	d := newDSU(len(addresses))
	spent, err := r.unionFromInputAddresses(d, addrIndex)
	if err != nil {
		return Result{}, err
	}

	var eligible []int32
	if r.cfg.IncludeUnspentSingletons {
		eligible = make([]int32, len(addresses))
		for i := range addresses {
			eligible[i] = int32(i)
		}
	} else {
		for i := range addresses {
			if _, ok := spent[int32(i)]; ok {
				eligible = append(eligible, int32(i))
			}
		}
	}

	numEntities, err := r.emit(d, addresses, eligible)
	if err != nil {
		return Result{}, err
	}

	res := Result{Addresses: len(eligible), Entities: numEntities}
	if r.cfg.SQLiteAudit {
		if err := r.mirrorToSQLite(addresses, eligible, d); err != nil {
			return res, err
		}
	}
	return res, nil
}

// mergeJoin streams rel_input (sorted by output_key, txid) against
// rel_output_address (sorted by output_key, address) and writes
// input_addresses.csv: one (txid, address) row per matching pair. An
// output_key present on only one side contributes nothing, per spec §4.5
// Phase A.
func (r *Resolver) mergeJoin() error {
	inputs, err := openRowReader(r.path("rel_input"), r.delimiter(), r.cfg.InlineHeader)
	if err != nil {
		return err
	}
	defer inputs.close()

	addrs, err := openRowReader(r.path("rel_output_address"), r.delimiter(), r.cfg.InlineHeader)
	if err != nil {
		return err
	}
	defer addrs.close()

	outPath := r.path("input_addresses")
	out, err := os.Create(outPath)
	if err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to create input_addresses.csv", err)
	}
	defer out.Close()
	w := csv.NewWriter(out)
	if err := w.Write([]string{"txid", "address"}); err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to write input_addresses header", err)
	}

	// rel_input columns: txid(0), output_key(1). rel_output_address columns:
	// output_key(0), address(1). Each side advances independently: only the
	// run with the smaller key moves forward, the classic sorted merge-join.
	inRun, inKey, err := nextRun(inputs, 1)
	if err != nil {
		return err
	}
	addrRun, addrKey, err := nextRun(addrs, 0)
	if err != nil {
		return err
	}

	for inRun != nil && addrRun != nil {
		switch {
		case inKey < addrKey:
			inRun, inKey, err = nextRun(inputs, 1)
		case addrKey < inKey:
			addrRun, addrKey, err = nextRun(addrs, 0)
		default:
			for _, ir := range inRun {
				if len(ir) < 1 {
					continue
				}
				for _, ar := range addrRun {
					if len(ar) < 2 {
						continue
					}
					if werr := w.Write([]string{ir[0], ar[1]}); werr != nil {
						return bgerr.New(bgerr.KindDumpIO, "failed to write input_addresses row", werr)
					}
				}
			}
			inRun, inKey, err = nextRun(inputs, 1)
			if err != nil {
				return err
			}
			addrRun, addrKey, err = nextRun(addrs, 0)
		}
		if err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// nextRun consumes and returns every consecutive row sharing the same
// value at keyCol from an already-sorted-by-that-column reader, plus the
// shared key. Returns (nil, "", nil) at EOF. This implementation peeks one
// row ahead at a time rather than assuming global monotone advance across
// calls, so it is safe to interleave with a second reader's nextRun calls
// as mergeJoin does — each call only ever consumes rows for ONE key from
// ONE reader, leaving the other reader's position untouched until its own
// nextRun is called.
func nextRun(rr *rowReader, keyCol int) ([][]string, string, error) {
	first, err := rr.peek()
	if err != nil {
		return nil, "", err
	}
	if first == nil {
		return nil, "", nil
	}
	key := first[keyCol]
	var run [][]string
	for {
		row, err := rr.peek()
		if err != nil {
			return nil, "", err
		}
		if row == nil || row[keyCol] != key {
			break
		}
		consumed, err := rr.next()
		if err != nil {
			return nil, "", err
		}
		run = append(run, consumed)
	}
	return run, key, nil
}

// loadAddresses reads addresses.csv — already sorted and deduplicated by
// C4 — into a dense index array and a lookup map. Index order is address
// lexicographic order, which is also the "order of first appearance" Phase
// C assigns entity ids by (spec §4.5).
func (r *Resolver) loadAddresses() ([]string, map[string]int32, error) {
	rr, err := openRowReader(r.path("addresses"), r.delimiter(), r.cfg.InlineHeader)
	if err != nil {
		return nil, nil, err
	}
	defer rr.close()

	var addresses []string
	index := make(map[string]int32)
	for {
		row, err := rr.next()
		if err != nil {
			return nil, nil, err
		}
		if row == nil {
			break
		}
		if len(row) < 1 || row[0] == "" {
			continue
		}
		if _, dup := index[row[0]]; dup {
			return nil, nil, bgerr.New(bgerr.KindResolverInconsistency,
				"duplicate address in addresses.csv: "+row[0], nil)
		}
		index[row[0]] = int32(len(addresses))
		addresses = append(addresses, row[0])
	}
	return addresses, index, nil
}

// unionFromInputAddresses streams input_addresses.csv (sorted by txid) and
// unions every group of ≥2 distinct addresses sharing a txid into one set.
// A singleton group, or a group collapsing to one distinct address after
// dedup (self-input, spec's no-op edge case), performs no union. It also
// returns the set of address indices that appeared at least once as the
// resolved address of a spent input — the "outputs never spent" open
// question (spec.md §4.5, SPEC_FULL.md Part E) gates entity emission on
// this set by default.
func (r *Resolver) unionFromInputAddresses(d *dsu, addrIndex map[string]int32) (map[int32]struct{}, error) {
	rr, err := openRowReader(r.path("input_addresses"), ",", true)
	if err != nil {
		return nil, err
	}
	defer rr.close()

	spent := make(map[int32]struct{})

	for {
		row, err := rr.peek()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return spent, nil
		}
		txid := row[0]

		seen := make(map[int32]struct{})
		var group []int32
		for {
			row, err := rr.peek()
			if err != nil {
				return nil, err
			}
			if row == nil || row[0] != txid {
				break
			}
			if _, err := rr.next(); err != nil {
				return nil, err
			}
			if len(row) < 2 || row[1] == "" {
				continue
			}
			idx, ok := addrIndex[row[1]]
			if !ok {
				continue // null/missing address rows are dropped (spec edge case)
			}
			spent[idx] = struct{}{}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			group = append(group, idx)
		}

		for i := 1; i < len(group); i++ {
			d.union(group[0], group[i])
		}
	}
}

// emit assigns a dense positive entity id to each disjoint set reachable
// from eligible (indices into addresses, in indexed/lexicographic order —
// the "outputs never spent" filter has already been applied by Resolve),
// and writes entities.csv and rel_address_entity.csv. It returns the
// number of distinct entities among the eligible addresses.
func (r *Resolver) emit(d *dsu, addresses []string, eligible []int32) (int, error) {
	entityOut, err := os.Create(r.path("rel_address_entity"))
	if err != nil {
		return 0, bgerr.New(bgerr.KindDumpIO, "failed to create rel_address_entity.csv", err)
	}
	defer entityOut.Close()
	ew := csv.NewWriter(entityOut)
	if err := ew.Write([]string{"address", "entity_id"}); err != nil {
		return 0, bgerr.New(bgerr.KindDumpIO, "failed to write rel_address_entity header", err)
	}

	rootToID := make(map[int32]int32)
	nextID := int32(1)
	for _, i := range eligible {
		addr := addresses[i]
		root := d.find(i)
		id, ok := rootToID[root]
		if !ok {
			id = nextID
			nextID++
			rootToID[root] = id
		}
		if err := ew.Write([]string{addr, strconv.FormatInt(int64(id), 10)}); err != nil {
			return 0, bgerr.New(bgerr.KindDumpIO, "failed to write rel_address_entity row", err)
		}
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return 0, bgerr.New(bgerr.KindDumpIO, "failed to flush rel_address_entity.csv", err)
	}

	entitiesOut, err := os.Create(r.path("entities"))
	if err != nil {
		return 0, bgerr.New(bgerr.KindDumpIO, "failed to create entities.csv", err)
	}
	defer entitiesOut.Close()
	iw := csv.NewWriter(entitiesOut)
	if err := iw.Write([]string{"id"}); err != nil {
		return 0, bgerr.New(bgerr.KindDumpIO, "failed to write entities header", err)
	}
	for id := int32(1); id < nextID; id++ {
		if err := iw.Write([]string{strconv.FormatInt(int64(id), 10)}); err != nil {
			return 0, bgerr.New(bgerr.KindDumpIO, "failed to write entities row", err)
		}
	}
	iw.Flush()
	if err := iw.Error(); err != nil {
		return 0, bgerr.New(bgerr.KindDumpIO, "failed to flush entities.csv", err)
	}

	return int(nextID - 1), nil
}
