package entity

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/bitcoingraph/bitcoingraph/internal/bgerr"
)

// sortByColumns rewrites path sorted by the given 1-based column numbers in
// priority order, via the platform `sort` utility (spec §4.5's input
// contract: rel_input sorted by referenced output, rel_output_address by
// output key) — the same "delegate to a platform sort facility" pattern
// internal/dump's post-processing pass uses, kept separate here since this
// package sorts by a specific column rather than the whole row.
func sortByColumns(path, delimiter string, hasInlineHeader bool, columns ...int) error {
	if delimiter == "" {
		delimiter = ","
	}

	in, err := os.Open(path)
	if err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to open file to sort", err)
	}
	defer in.Close()

	var headerLine string
	reader := bufio.NewReader(in)
	if hasInlineHeader {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return bgerr.New(bgerr.KindDumpIO, "failed to read header before sort", err)
		}
		headerLine = line
	}

	tmpPath := path + ".sort.tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to create sort temp file", err)
	}
	if headerLine != "" {
		if _, err := out.WriteString(headerLine); err != nil {
			out.Close()
			return bgerr.New(bgerr.KindDumpIO, "failed to write preserved header", err)
		}
	}

	args := []string{"-t", delimiter}
	for _, col := range columns {
		args = append(args, "-k", fmt.Sprintf("%d,%d", col, col))
	}
	cmd := exec.Command("sort", args...)
	cmd.Stdin = reader
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	closeErr := out.Close()
	if runErr != nil {
		os.Remove(tmpPath)
		return bgerr.New(bgerr.KindSortSubprocess, "sort failed: "+stderr.String(), runErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return bgerr.New(bgerr.KindDumpIO, "failed to close sort temp file", closeErr)
	}
	in.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to replace file with sorted version", err)
	}
	return nil
}
