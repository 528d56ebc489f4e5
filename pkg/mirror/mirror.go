// Package mirror keeps a plain-text snapshot of the memory store on
// disk, optionally committed to a local git repository after each write.
// Mirroring is best-effort: failures are logged and never propagate back
// into the write path.
package mirror

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	snapshotFile = "memory.json"
	manifestFile = "manifest.json"
)

// Exporter produces the snapshot body. The store's Export method
// satisfies it.
type Exporter interface {
	Export() ([]byte, error)
}

type manifest struct {
	SnapshotID string `json:"snapshot_id"`
	Operation  string `json:"operation"`
	WrittenAt  string `json:"written_at"`
}

// Sync mirrors store snapshots into a directory. It implements the
// store's write hook.
type Sync struct {
	exporter Exporter
	dir      string
	git      bool
	logger   *slog.Logger
	mu       sync.Mutex
}

type Option func(*Sync)

// WithGit commits each snapshot to a git repository in the mirror
// directory, initializing one if needed.
func WithGit() Option {
	return func(s *Sync) { s.git = true }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sync) { s.logger = logger }
}

func New(exporter Exporter, dir string, opts ...Option) (*Sync, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mirror dir: %w", err)
	}
	s := &Sync{
		exporter: exporter,
		dir:      dir,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AfterPersist writes a fresh snapshot. The store calls this from its
// own goroutine after each successful write; op names the operation that
// triggered it.
func (s *Sync) AfterPersist(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.snapshot(op); err != nil {
		s.logger.Warn("mirror snapshot failed", "op", op, "error", err)
	}
}

func (s *Sync) snapshot(op string) error {
	data, err := s.exporter.Export()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, snapshotFile), data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	m := manifest{
		SnapshotID: uuid.NewString(),
		Operation:  op,
		WrittenAt:  time.Now().UTC().Format(time.RFC3339),
	}
	manifestData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, manifestFile), manifestData, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if s.git {
		if err := s.commit(op); err != nil {
			return fmt.Errorf("git commit: %w", err)
		}
	}
	return nil
}

func (s *Sync) commit(op string) error {
	if _, err := os.Stat(filepath.Join(s.dir, ".git")); os.IsNotExist(err) {
		if out, err := s.gitRun("init"); err != nil {
			return fmt.Errorf("init: %w (%s)", err, out)
		}
	}
	if out, err := s.gitRun("add", snapshotFile, manifestFile); err != nil {
		return fmt.Errorf("add: %w (%s)", err, out)
	}
	// Commit fails when the tree is unchanged; that is not an error.
	out, err := s.gitRun("commit", "-m", "memory snapshot after "+op)
	if err != nil {
		s.logger.Debug("mirror commit skipped", "op", op, "output", string(out))
	}
	return nil
}

func (s *Sync) gitRun(args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = s.dir
	return cmd.CombinedOutput()
}
