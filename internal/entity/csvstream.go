package entity

import (
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/bitcoingraph/bitcoingraph/internal/bgerr"
)

// rowReader is a small one-row-lookahead CSV reader, enough to implement a
// streaming merge-join and a group-by over an already-sorted file without
// loading it whole into memory.
type rowReader struct {
	r      *csv.Reader
	f      *os.File
	peeked []string
	atEOF  bool
}

func openRowReader(path string, delimiter string, hasInlineHeader bool) (*rowReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bgerr.New(bgerr.KindDumpIO, "failed to open "+path, err)
	}
	r := csv.NewReader(f)
	if delimiter != "" {
		r.Comma = rune(delimiter[0])
	}
	r.FieldsPerRecord = -1
	if hasInlineHeader {
		if _, err := r.Read(); err != nil && err != io.EOF {
			f.Close()
			return nil, bgerr.New(bgerr.KindDumpIO, "failed to skip header in "+path, err)
		}
	}
	return &rowReader{r: r, f: f}, nil
}

// peek returns the next row without consuming it.
func (rr *rowReader) peek() ([]string, error) {
	if rr.peeked != nil {
		return rr.peeked, nil
	}
	if rr.atEOF {
		return nil, nil
	}
	row, err := rr.r.Read()
	if errors.Is(err, io.EOF) {
		rr.atEOF = true
		return nil, nil
	}
	if err != nil {
		return nil, bgerr.New(bgerr.KindMalformedRecord, "failed to read CSV row", err)
	}
	rr.peeked = row
	return row, nil
}

// next consumes and returns the row peek would have returned.
func (rr *rowReader) next() ([]string, error) {
	row, err := rr.peek()
	if err != nil || row == nil {
		return row, err
	}
	rr.peeked = nil
	return row, nil
}

func (rr *rowReader) close() error {
	return rr.f.Close()
}
