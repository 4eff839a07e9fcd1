package repository

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"pixelboard/internal/world"
)

// HistoryStore keeps the serialized history in a single file. Saves go to
// "<path>.tmp", are synced, the previous file is copied to "<path>.bak",
// and the temp file is renamed over the target. A crash at any point leaves
// either the old file or the complete new one in place.
type HistoryStore struct {
	path   string
	logger *zap.Logger

	// beforeRename runs after the temp file is durable; tests use it to
	// simulate a crash before the swap.
	beforeRename func() error
}

// NewHistoryStore returns a store for path.
func NewHistoryStore(path string, logger *zap.Logger) *HistoryStore {
	return &HistoryStore{path: path, logger: logger}
}

func (s *HistoryStore) Path() string       { return s.path }
func (s *HistoryStore) TempPath() string   { return s.path + ".tmp" }
func (s *HistoryStore) BackupPath() string { return s.path + ".bak" }

func (s *HistoryStore) ioErr(op string, err error) error {
	return &PersistenceError{Op: op, Path: s.path, Kind: ErrIO, Err: err}
}

// Save encodes h and writes it atomically.
func (s *HistoryStore) Save(h *world.History) error {
	data, err := EncodeHistory(h)
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Kind: ErrSerialization, Err: err}
	}
	return s.WriteAtomic(data)
}

// WriteAtomic replaces the target file with data using the temp/backup/rename
// sequence.
func (s *HistoryStore) WriteAtomic(data []byte) error {
	tmp := s.TempPath()

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return s.ioErr("save", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return s.ioErr("save", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return s.ioErr("save", err)
	}
	if err := f.Close(); err != nil {
		return s.ioErr("save", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.BackupPath()); err != nil {
			return s.ioErr("backup", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return s.ioErr("save", err)
	}

	if s.beforeRename != nil {
		if err := s.beforeRename(); err != nil {
			return s.ioErr("save", err)
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return s.ioErr("rename", err)
	}
	syncDir(filepath.Dir(s.path))
	return nil
}

// Load reads and decodes the target file.
func (s *HistoryStore) Load() (*world.History, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, s.ioErr("load", err)
	}
	h, err := DecodeHistory(data)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Kind: ErrSerialization, Err: err}
	}
	return h, nil
}

// LoadOrCreate returns the stored history, or a fresh one over
// defaultCanvas when there is no usable file. A missing or corrupt file is
// logged, not returned; the only error is an invalid snapshot interval for
// the fresh history.
func (s *HistoryStore) LoadOrCreate(snapshotInterval int, defaultCanvas *world.Canvas) (*world.History, error) {
	h, err := s.Load()
	if err == nil {
		s.logger.Info("loaded history",
			zap.String("path", s.path),
			zap.Int("changes", h.ChangeCount()),
			zap.Int("snapshots", len(h.Snapshots())),
		)
		return h, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no saved history, starting fresh", zap.String("path", s.path))
	} else {
		s.logger.Warn("saved history unusable, starting fresh", zap.String("path", s.path), zap.Error(err))
	}

	fresh, err := world.NewHistory(snapshotInterval, defaultCanvas)
	if err != nil {
		return nil, fmt.Errorf("create history: %w", err)
	}
	return fresh, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// syncDir makes the rename durable where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
