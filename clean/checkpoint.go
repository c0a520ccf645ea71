package clean

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spfs-io/spfs/spfserrors"
)

// checkpointVersion stamps the on-disk format of a clean checkpoint.
const checkpointVersion = "1.0"

// CheckpointState is the saved state that lets a clean run resume: the
// mark phase's full list of deletion candidates, so a separate process
// (or a later invocation) can sweep them without recomputing reachability.
type CheckpointState struct {
	Version            string    `json:"version"`
	Timestamp          time.Time `json:"timestamp"`
	MarkPhaseComplete  bool      `json:"mark_phase_complete"`
	DeletionCandidates []string  `json:"deletion_candidates"`
}

// acquireLock creates a lock file in checkpointDir to prevent concurrent
// clean runs from racing on the same checkpoint, expiring automatically
// after timeout.
func acquireLock(checkpointDir string, timeout time.Duration) error {
	lockPath := filepath.Join(checkpointDir, ".lock")

	if data, err := os.ReadFile(lockPath); err == nil {
		var held lockFile
		if json.Unmarshal(data, &held) == nil && time.Since(held.Timestamp) < timeout {
			return spfserrors.Io("acquire lock", errAlreadyLocked{Hostname: held.Hostname, At: held.Timestamp})
		}
	}

	hostname, _ := os.Hostname()
	lock := lockFile{Hostname: hostname, PID: os.Getpid(), Timestamp: time.Now()}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return spfserrors.Io("marshal lock", err)
	}
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		return spfserrors.Io("mkdir "+checkpointDir, err)
	}
	if err := os.WriteFile(lockPath, data, 0o644); err != nil {
		return spfserrors.Io("write lock", err)
	}
	return nil
}

func releaseLock(checkpointDir string) error {
	err := os.Remove(filepath.Join(checkpointDir, ".lock"))
	if os.IsNotExist(err) {
		return nil
	}
	return spfserrors.Io("release lock", err)
}

type lockFile struct {
	Hostname  string    `json:"hostname"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
}

type errAlreadyLocked struct {
	Hostname string
	At       time.Time
}

func (e errAlreadyLocked) Error() string {
	return "another clean is already running, locked by " + e.Hostname + " at " + e.At.String()
}

func checkpointPath(checkpointDir string) string {
	return filepath.Join(checkpointDir, "candidates.json")
}

// saveCheckpoint atomically writes state to checkpointDir.
func saveCheckpoint(checkpointDir string, state CheckpointState) error {
	path := checkpointPath(checkpointDir)
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return spfserrors.Io("marshal checkpoint", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return spfserrors.Io("write checkpoint", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return spfserrors.Io("rename checkpoint", err)
	}
	return nil
}

// loadCheckpoint reads a previously saved checkpoint, or returns nil if
// none exists yet.
func loadCheckpoint(checkpointDir string) (*CheckpointState, error) {
	data, err := os.ReadFile(checkpointPath(checkpointDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, spfserrors.Io("read checkpoint", err)
	}
	var state CheckpointState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, spfserrors.Io("unmarshal checkpoint", err)
	}
	return &state, nil
}
