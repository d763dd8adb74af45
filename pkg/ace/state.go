package ace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// FrameworkState is the serialized form of a complete framework:
// manual, metadata, execution history, and update history. The JSON
// layout is stable so exported states remain loadable across runs.
type FrameworkState struct {
	FrameworkID      string               `json:"framework_id"`
	CreatedAt        time.Time            `json:"created_at"`
	Manual           *ManualSnapshot      `json:"manual"`
	Metadata         map[string]*Metadata `json:"metadata"`
	ExecutionHistory []*CycleResult       `json:"execution_history"`
	UpdateHistory    []*DeltaUpdate       `json:"update_history"`
}

// ExportState captures the framework's full state as a detached value;
// later mutation of the framework does not touch the export.
func (f *Framework) ExportState() *FrameworkState {
	return &FrameworkState{
		FrameworkID:      f.frameworkID,
		CreatedAt:        f.createdAt,
		Manual:           f.manual.Snapshot(),
		Metadata:         f.metadata.Export(),
		ExecutionHistory: f.ExecutionHistory(),
		UpdateHistory:    f.updater.UpdateHistory(0),
	}
}

// SaveState writes the framework state to path as indented JSON. The
// write goes through a temp file in the same directory followed by a
// rename, so a crash mid-write never leaves a truncated state file.
func (f *Framework) SaveState(path string) error {
	state := f.ExportState()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.SerializationFailed, "failed to marshal framework state")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ace-state-*.json")
	if err != nil {
		return errors.Wrap(err, errors.SerializationFailed, "failed to create temp state file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.SerializationFailed, "failed to write state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.SerializationFailed, "failed to close state file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.SerializationFailed, "failed to move state file into place")
	}
	return nil
}

// RestoreFramework rebuilds a framework from an exported state. The
// metadata index is restored first so manual items can re-link to
// their records; derived indexes are rebuilt, never trusted from the
// state.
func RestoreFramework(state *FrameworkState, generate GenerateFunc) (*Framework, error) {
	if state == nil {
		return nil, errors.New(errors.InvalidInput, "nil framework state")
	}
	if state.Manual == nil {
		return nil, errors.New(errors.SerializationFailed, "framework state missing manual")
	}

	metadata := NewMetadataIndex()
	metadata.Import(state.Metadata)

	manual, err := RestoreManual(state.Manual, metadata)
	if err != nil {
		return nil, err
	}

	f := NewFramework(
		WithManual(manual),
		WithMetadataIndex(metadata),
		WithGenerateFunc(generate),
	)

	if state.FrameworkID != "" {
		f.frameworkID = state.FrameworkID
	}
	if !state.CreatedAt.IsZero() {
		f.createdAt = state.CreatedAt
	}
	f.executionHistory = append([]*CycleResult(nil), state.ExecutionHistory...)
	f.updater.restoreHistory(state.UpdateHistory)

	return f, nil
}

// LoadState reads a framework state file written by SaveState and
// rebuilds the framework from it.
func LoadState(path string, generate GenerateFunc) (*Framework, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ResourceNotFound, "failed to read state file")
	}

	var state FrameworkState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Wrap(err, errors.SerializationFailed, "failed to parse state file")
	}
	return RestoreFramework(&state, generate)
}
