package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/BartekS5/taprun/pkg/errors"
	"github.com/BartekS5/taprun/pkg/logger"
	"github.com/BartekS5/taprun/pkg/utils"
)

var emptyCheckpoint = json.RawMessage(`{}`)

// RunResult is what one tap execution produced.
type RunResult struct {
	RunID          string
	ExitCode       int
	LastCheckpoint json.RawMessage
	CheckpointSeen bool
	Committed      bool
	Stats          DemuxStats
	Duration       time.Duration
	Err            error
}

// FileStore keeps the checkpoint in a JSON file. It is the default store,
// and its file is handed to the tap directly as --state.
type FileStore struct {
	Path string
}

func (f *FileStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, err
	}
	if !json.Valid(data) {
		return Checkpoint{}, false, fmt.Errorf("state file '%s' is not valid JSON", f.Path)
	}
	cp := Checkpoint{Value: bytes.TrimSpace(data)}
	if info, err := os.Stat(f.Path); err == nil {
		cp.UpdatedAt = info.ModTime()
	}
	return cp, true, nil
}

func (f *FileStore) Save(ctx context.Context, cp Checkpoint) error {
	return utils.WriteFileAtomic(f.Path, cp.Value, 0o644)
}

func (f *FileStore) Describe() string {
	return "file:" + f.Path
}

// Committer owns the checkpoint lifecycle around a run: it makes sure a
// valid state file exists before the tap starts, and afterwards commits the
// last observed STATE only when the tap exited cleanly.
type Committer struct {
	Store     CheckpointStore
	StatePath string
	Metrics   *Metrics
}

func (c *Committer) storeIsStateFile() bool {
	fs, ok := c.Store.(*FileStore)
	if !ok {
		return false
	}
	a, errA := filepath.Abs(fs.Path)
	b, errB := filepath.Abs(c.StatePath)
	return errA == nil && errB == nil && a == b
}

// Prepare initialises the store with {} on first use and materialises the
// committed checkpoint into StatePath for the tap to read.
func (c *Committer) Prepare(ctx context.Context) error {
	cp, ok, err := c.Store.Load(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.KindCheckpoint, err, "Committer", "Prepare")
	}
	if !ok {
		cp = Checkpoint{Value: emptyCheckpoint, UpdatedAt: time.Now().UTC()}
		if err := c.Store.Save(ctx, cp); err != nil {
			return apperrors.Wrap(apperrors.KindCheckpoint, err, "Committer", "Prepare")
		}
		logger.Infof("Initialised empty checkpoint in %s", c.Store.Describe())
	}
	if c.storeIsStateFile() {
		return nil
	}
	if err := utils.WriteFileAtomic(c.StatePath, cp.Value, 0o644); err != nil {
		return apperrors.Wrap(apperrors.KindCheckpoint, err, "Committer", "Materialize")
	}
	return nil
}

// Commit persists res.LastCheckpoint if the run exited 0 and emitted at
// least one STATE message. It reports whether anything was written.
func (c *Committer) Commit(ctx context.Context, res *RunResult) (bool, error) {
	if res == nil || res.ExitCode != 0 || res.Err != nil || !res.CheckpointSeen {
		return false, nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, res.LastCheckpoint); err != nil {
		return false, apperrors.Wrap(apperrors.KindCheckpoint, err, "Committer", "Commit")
	}
	cp := Checkpoint{Value: compact.Bytes(), RunID: res.RunID, UpdatedAt: time.Now().UTC()}
	if err := c.Store.Save(ctx, cp); err != nil {
		return false, apperrors.Wrap(apperrors.KindCheckpoint, err, "Committer", "Commit")
	}
	c.Metrics.committed()

	if !c.storeIsStateFile() {
		// The store is authoritative; Prepare rewrites this copy next run.
		if err := utils.WriteFileAtomic(c.StatePath, cp.Value, 0o644); err != nil {
			logger.Warnf("Checkpoint committed to %s but local state file was not refreshed: %v", c.Store.Describe(), err)
		}
	}
	logger.Infof("State updated")
	return true, nil
}

// Reset replaces the committed checkpoint with an empty object.
func (c *Committer) Reset(ctx context.Context) error {
	cp := Checkpoint{Value: emptyCheckpoint, UpdatedAt: time.Now().UTC()}
	if err := c.Store.Save(ctx, cp); err != nil {
		return apperrors.Wrap(apperrors.KindCheckpoint, err, "Committer", "Reset")
	}
	if !c.storeIsStateFile() {
		if err := utils.WriteFileAtomic(c.StatePath, cp.Value, 0o644); err != nil {
			return apperrors.Wrap(apperrors.KindCheckpoint, err, "Committer", "Reset")
		}
	}
	return nil
}
