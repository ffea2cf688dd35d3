package duckdb

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ErrInMemoryStore is returned by SnapshotTo for a store without a file.
var ErrInMemoryStore = errors.New("duckdb: in-memory store cannot be snapshotted")

// DBPath returns the database file, or "" for an in-memory store.
func (s *Store) DBPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dbPath
}

// checkpoint flushes the write-ahead log into the database file and
// returns the file path.
func (s *Store) checkpoint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dbPath == "" {
		return "", ErrInMemoryStore
	}
	if _, err := s.db.Exec("CHECKPOINT"); err != nil {
		return "", fmt.Errorf("checkpoint %s: %w", s.dbPath, err)
	}
	return s.dbPath, nil
}

// SnapshotTo writes a consistent copy of the database file to dst. The
// copy appears under dst only once it is complete.
func (s *Store) SnapshotTo(dst string) error {
	src, err := s.checkpoint()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}

	n, sum, err := copyAtomic(src, dst)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", dst, err)
	}
	s.logger.Info("store snapshot written",
		zap.String("path", dst),
		zap.Int64("bytes", n),
		zap.String("sha256", sum))
	return nil
}

func copyAtomic(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.partial")
	if err != nil {
		return 0, "", err
	}
	partial := out.Name()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(partial, dst)
	}
	if err != nil {
		_ = os.Remove(partial)
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
