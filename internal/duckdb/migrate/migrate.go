// Package migrate versions the sample store schema. Migrations are SQL
// files embedded under migrations/ and named <version>_<name>.sql.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedded embed.FS

// ErrSchemaAhead is returned when the database was written by a newer
// build than this one knows about.
var ErrSchemaAhead = errors.New("migrate: database schema is newer than this build")

// Step is one versioned schema change.
type Step struct {
	Version int
	Name    string
	script  string
}

// State describes where a database stands relative to the embedded steps.
type State struct {
	Version int
	Latest  int
	Pending []Step
}

// Runner applies pending steps to a DuckDB database.
type Runner struct {
	db     *sql.DB
	steps  []Step
	logger *zap.Logger
}

// NewRunner loads the embedded steps for db. A nil logger discards output.
func NewRunner(db *sql.DB, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	steps, err := load(embedded, "migrations")
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, steps: steps, logger: logger}, nil
}

func load(fsys fs.FS, dir string) ([]Step, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var steps []Step
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: bad version %q", name, prefix)
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		steps = append(steps, Step{Version: version, Name: strings.TrimSuffix(name, ".sql"), script: string(body)})
	}
	slices.SortFunc(steps, func(a, b Step) int { return a.Version - b.Version })
	for i := 1; i < len(steps); i++ {
		if steps[i].Version == steps[i-1].Version {
			return nil, fmt.Errorf("migrations %s and %s share version %d", steps[i-1].Name, steps[i].Name, steps[i].Version)
		}
	}
	return steps, nil
}

func (r *Runner) latest() int {
	if len(r.steps) == 0 {
		return 0
	}
	return r.steps[len(r.steps)-1].Version
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// Status reports the applied version and the steps still to run.
func (r *Runner) Status(ctx context.Context) (State, error) {
	if err := r.ensureTable(ctx); err != nil {
		return State{}, err
	}
	var v sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return State{}, fmt.Errorf("read schema version: %w", err)
	}
	st := State{Version: int(v.Int64), Latest: r.latest()}
	for _, s := range r.steps {
		if s.Version > st.Version {
			st.Pending = append(st.Pending, s)
		}
	}
	return st, nil
}

// Run applies every pending step, each in its own transaction, and
// returns the steps it applied.
func (r *Runner) Run(ctx context.Context) ([]Step, error) {
	st, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	if st.Version > st.Latest {
		return nil, fmt.Errorf("%w: have %d, know %d", ErrSchemaAhead, st.Version, st.Latest)
	}
	for _, s := range st.Pending {
		if err := r.apply(ctx, s); err != nil {
			return nil, err
		}
		r.logger.Debug("schema migration applied", zap.Int("version", s.Version), zap.String("name", s.Name))
	}
	return st.Pending, nil
}

func (r *Runner) apply(ctx context.Context, s Step) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: %w", s.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range split(s.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s: %w", s.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", s.Version, s.Name); err != nil {
		return fmt.Errorf("migration %s: record version: %w", s.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", s.Name, err)
	}
	return nil
}

// split cuts a script into statements at lines ending in a semicolon.
// Comment-only lines are dropped.
func split(script string) []string {
	var (
		out []string
		buf []string
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		buf = append(buf, line)
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSpace(strings.Join(buf, "\n")))
			buf = buf[:0]
		}
	}
	if rest := strings.TrimSpace(strings.Join(buf, "\n")); rest != "" {
		out = append(out, rest)
	}
	return out
}
