package dump

import (
	"encoding/json"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/bitcoingraph/bitcoingraph/internal/bgerr"
)

// Checkpoint persists the last fully-written block (height + hash) for a
// dump directory so a killed run can resume past already-flushed blocks
// instead of rereading them. It is deliberately separate from the CSV
// files themselves: the CSVs are the durable output, the checkpoint is
// only an acceleration structure and is safe to delete.
type Checkpoint struct {
	db    *pebble.DB
	runID string
}

type checkpointValue struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

// OpenCheckpoint opens (creating if absent) the checkpoint store under
// dir/.checkpoint, tagged with a freshly generated run id. Use
// ResumeCheckpoint instead to continue a prior run's progress marker.
func OpenCheckpoint(dir string) (*Checkpoint, error) {
	return ResumeCheckpoint(dir, uuid.NewString())
}

// ResumeCheckpoint opens the checkpoint store under dir/.checkpoint tagged
// with an explicit runID, so a caller that remembers a previous run's id
// can call Last(runID) and pick up where that run left off instead of
// starting a fresh progress marker.
func ResumeCheckpoint(dir, runID string) (*Checkpoint, error) {
	db, err := pebble.Open(filepath.Join(dir, ".checkpoint"), &pebble.Options{})
	if err != nil {
		return nil, bgerr.New(bgerr.KindDumpIO, "failed to open checkpoint store", err)
	}
	return &Checkpoint{db: db, runID: runID}, nil
}

// RunID identifies this Checkpoint's pipeline run, suitable for embedding
// in log lines alongside block progress.
func (c *Checkpoint) RunID() string { return c.runID }

// Advance records height/hash as the last block fully flushed to disk.
func (c *Checkpoint) Advance(height uint64, hash string) error {
	val, err := json.Marshal(checkpointValue{Height: height, Hash: hash})
	if err != nil {
		return bgerr.New(bgerr.KindMalformedRecord, "failed to encode checkpoint value", err)
	}
	if err := c.db.Set([]byte(c.runID), val, pebble.Sync); err != nil {
		return bgerr.New(bgerr.KindDumpIO, "failed to persist checkpoint", err)
	}
	return nil
}

// Last returns the last checkpointed height and hash for runID, and false
// if none has been recorded yet.
func (c *Checkpoint) Last(runID string) (height uint64, hash string, ok bool, err error) {
	val, closer, getErr := c.db.Get([]byte(runID))
	if getErr == pebble.ErrNotFound {
		return 0, "", false, nil
	}
	if getErr != nil {
		return 0, "", false, bgerr.New(bgerr.KindDumpIO, "failed to read checkpoint", getErr)
	}
	defer closer.Close()
	var v checkpointValue
	if err := json.Unmarshal(val, &v); err != nil {
		return 0, "", false, bgerr.New(bgerr.KindMalformedRecord, "failed to decode checkpoint value", err)
	}
	return v.Height, v.Hash, true, nil
}

// Close releases the checkpoint store.
func (c *Checkpoint) Close() error {
	return c.db.Close()
}
