package dump

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/bitcoingraph/bitcoingraph/internal/bgconfig"
	"github.com/bitcoingraph/bitcoingraph/internal/bgerr"
	"github.com/bitcoingraph/bitcoingraph/internal/model"
)

// formatSatoshis renders an integer satoshi amount as a fixed 8-decimal BTC
// string (e.g. 5000000000 -> "50.00000000"), per SPEC_FULL.md Part E's "CSV
// output always uses fixed 8-decimal-place string formatting" — decimal
// arithmetic throughout, never a bare satoshi integer and never float64.
func formatSatoshis(sat int64) string {
	return decimal.New(sat, -8).StringFixed(8)
}

// Writer appends normalized rows to the eight fixed dump files (plus the
// tx_output_sum audit file) under one directory. It is single-writer per
// file, matching spec §5; nothing here is safe for concurrent use from
// multiple goroutines.
type Writer struct {
	dir string
	cfg bgconfig.DumpConfig

	handles map[string]*os.File
	csvw    map[string]*csv.Writer
}

// Open creates dir if absent and opens (or creates) every dump file inside
// it in append mode, writing a header for any file that is newly created.
func Open(dir string, cfg bgconfig.DumpConfig) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, bgerr.New(bgerr.KindDumpIO, "failed to create dump directory", err)
	}

	w := &Writer{
		dir:     dir,
		cfg:     cfg,
		handles: make(map[string]*os.File),
		csvw:    make(map[string]*csv.Writer),
	}

	all := append(append([]file{}, files...), txOutputSumFile)
	for _, f := range all {
		if err := w.openFile(f); err != nil {
			w.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Writer) openFile(f file) error {
	path := filepath.Join(w.dir, f.name+".csv")
	isNew := false
	if info, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return bgerr.New(bgerr.KindDumpIO, "failed to stat dump file", err)
		}
		isNew = true
	} else if info.Size() == 0 {
		isNew = true
	}

	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to open dump file", err)
	}
	w.handles[f.name] = fh

	if isNew {
		if err := w.writeHeader(f); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(fh)
	if w.cfg.Delimiter != "" {
		cw.Comma = rune(w.cfg.Delimiter[0])
	}
	w.csvw[f.name] = cw
	return nil
}

func (w *Writer) writeHeader(f file) error {
	cols := header(f, w.cfg.PlainHeader)

	if w.cfg.SeparateHeaderFile {
		headerPath := filepath.Join(w.dir, f.name+"_header.csv")
		hw, err := os.Create(headerPath)
		if err != nil {
			return bgerr.New(bgerr.KindDumpIO, "failed to create header file", err)
		}
		defer hw.Close()
		hcw := csv.NewWriter(hw)
		if w.cfg.Delimiter != "" {
			hcw.Comma = rune(w.cfg.Delimiter[0])
		}
		if err := hcw.Write(cols); err != nil {
			return bgerr.New(bgerr.KindDumpIO, "failed to write header file", err)
		}
		hcw.Flush()
		return hcw.Error()
	}

	fh := w.handles[f.name]
	cw := csv.NewWriter(fh)
	if w.cfg.Delimiter != "" {
		cw.Comma = rune(w.cfg.Delimiter[0])
	}
	if err := cw.Write(cols); err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to write inline header", err)
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) write(name string, row []string) error {
	cw := w.csvw[name]
	if err := cw.Write(row); err != nil {
		return bgerr.New(bgerr.KindDumpIO, fmt.Sprintf("failed to write %s row", name), err)
	}
	return nil
}

// WriteBlock appends every row one normalized block (model.Normalized)
// contributes to the dump. It flushes each file's buffer before returning
// so a crash immediately after leaves complete rows on disk.
func (w *Writer) WriteBlock(n model.Normalized) error {
	if err := w.write("blocks", []string{
		n.Block.Hash,
		strconv.FormatUint(n.Block.Height, 10),
		strconv.FormatUint(n.Block.Timestamp, 10),
	}); err != nil {
		return err
	}

	for _, tx := range n.Txs {
		if err := w.write("transactions", []string{tx.TxID, strconv.FormatBool(tx.IsCoinbase)}); err != nil {
			return err
		}
	}
	for _, rel := range n.RelBlockTx {
		if err := w.write("rel_block_tx", []string{rel.BlockHash, rel.TxID}); err != nil {
			return err
		}
	}
	for _, o := range n.Outputs {
		key := model.OutputKey{TxID: o.TxID, N: o.N}.String()
		if err := w.write("outputs", []string{key, strconv.FormatUint(uint64(o.N), 10), formatSatoshis(o.Value), o.ScriptType}); err != nil {
			return err
		}
	}
	for _, rel := range n.RelTxOutput {
		if err := w.write("rel_tx_output", []string{rel.TxID, rel.OutputKey}); err != nil {
			return err
		}
	}
	for _, oa := range n.OutputAddresses {
		key := model.OutputKey{TxID: oa.TxID, N: oa.N}.String()
		if err := w.write("rel_output_address", []string{key, oa.Address}); err != nil {
			return err
		}
	}
	for _, addr := range n.Addresses {
		if err := w.write("addresses", []string{addr}); err != nil {
			return err
		}
	}
	for _, in := range n.RelInputs {
		if err := w.write("rel_input", []string{in.TxID, in.OutputKey}); err != nil {
			return err
		}
	}
	for _, s := range n.OutputSums {
		if err := w.write("tx_output_sum", []string{s.TxID, formatSatoshis(s.OutputSum)}); err != nil {
			return err
		}
	}

	for _, cw := range w.csvw {
		cw.Flush()
		if err := cw.Error(); err != nil {
			return bgerr.New(bgerr.KindDumpIO, "failed to flush dump file", err)
		}
	}
	return nil
}

// Close flushes and closes every open dump file.
func (w *Writer) Close() error {
	var firstErr error
	for name, cw := range w.csvw {
		cw.Flush()
		if err := cw.Error(); err != nil && firstErr == nil {
			firstErr = bgerr.New(bgerr.KindDumpIO, fmt.Sprintf("failed to flush %s on close", name), err)
		}
	}
	for name, fh := range w.handles {
		if err := fh.Close(); err != nil && firstErr == nil {
			firstErr = bgerr.New(bgerr.KindDumpIO, fmt.Sprintf("failed to close %s", name), err)
		}
	}
	return firstErr
}

// Dir returns the dump directory this Writer targets.
func (w *Writer) Dir() string { return w.dir }
