package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24
	defaultPrefix   = "sigex"
	stampLayout     = "20060102-150405"
)

var (
	ErrNoSnapshotter = errors.New("backup: nil snapshotter")
	ErrInMemory      = errors.New("backup: store has no db path (in-memory)")
	ErrNoLocalDir    = errors.New("backup: local-dir is required when backup is enabled")
)

// Manager snapshots the store on an interval, uploads each snapshot when a
// bucket is configured and keeps the newest KeepLast local copies.
type Manager struct {
	store    Snapshotter
	cfg      Config
	uploader Uploader
	logger   *zap.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewManager validates cfg, takes a first snapshot and starts the loop. It
// returns nil, nil when backups are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	m, err := newManager(store, cfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.BucketURL) != "" {
		u, err := NewS3Uploader(S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		m.uploader = u
	}

	if err := m.RunOnce(m.ctx); err != nil {
		m.logger.Warn("startup snapshot failed", zap.Error(err))
	}
	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func newManager(store Snapshotter, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, ErrNoSnapshotter
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, ErrInMemory
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, ErrNoLocalDir
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("backup"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.RunOnce(m.ctx); err != nil && m.ctx.Err() == nil {
				m.logger.Error("periodic snapshot failed", zap.Error(err))
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// RunOnce writes one snapshot, uploads it when configured and prunes old
// local copies.
func (m *Manager) RunOnce(ctx context.Context) error {
	name := fmt.Sprintf("%s-%s.duckdb", m.cfg.Prefix, m.now().UTC().Format(stampLayout))
	localPath := filepath.Join(m.cfg.LocalDir, name)

	if err := m.store.SnapshotTo(localPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	m.logger.Info("snapshot created", zap.String("path", localPath))

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, localPath); err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
		m.logger.Info("snapshot uploaded", zap.String("file", name))
	}

	removed, err := prune(m.cfg.LocalDir, m.cfg.Prefix, m.cfg.KeepLast)
	if err != nil {
		return fmt.Errorf("prune local backups: %w", err)
	}
	if removed > 0 {
		m.logger.Debug("pruned snapshots", zap.Int("removed", removed))
	}
	return nil
}

// Stop cancels an in-flight upload and ends the loop. It is idempotent.
func (m *Manager) Stop() {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

// prune keeps the newest keep snapshots with the given prefix. The UTC
// stamp in the name sorts chronologically.
func prune(dir, prefix string, keep int) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-*.duckdb"))
	if err != nil {
		return 0, err
	}
	if len(matches) <= keep {
		return 0, nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	removed := 0
	for _, old := range matches[keep:] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
