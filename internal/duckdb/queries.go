package duckdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/model"
)

// MaxQueryRows caps the rows returned by ExecuteQuery.
const MaxQueryRows = 1000

// DefaultSampleLimit applies when QueryOpts.Limit is zero.
const DefaultSampleLimit = 10000

// ErrRecordRequired is returned by Samples without a record ID.
var ErrRecordRequired = errors.New("duckdb: record id required")

// tables lists the tables reported by TableRowCounts.
var tables = []string{"runs", "scopes", "signals", "samples", "raw_lines", "line_links"}

// dangerousKeywordPattern matches write and session keywords at word
// boundaries, so "RESET" does not match "SET".
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET|CHECKPOINT)\b`,
)

var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.profile, r.source, r.base, r.started_at, r.start_pos, r.end_pos,
			(SELECT COUNT(*) FROM signals g WHERE g.record_id = r.id),
			(SELECT COUNT(*) FROM samples m WHERE m.record_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var r model.RunSummary
		var start, end sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Name, &r.Profile, &r.Source, &r.Base, &r.StartedAt,
			&start, &end, &r.SignalCount, &r.SampleCount); err != nil {
			s.logger.Warn("scan failed", zap.String("query", "ListRuns"), zap.Error(err))
			continue
		}
		if start.Valid {
			r.Start = &start.Int64
		}
		if end.Valid {
			r.End = &end.Int64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSignals returns the signals of a record with their scope paths.
func (s *Store) ListSignals(recordID string) ([]model.SignalInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	scopes := map[int64]model.Scope{}
	srows, err := s.db.QueryContext(ctx, `SELECT id, parent_id, name FROM scopes WHERE record_id = ?`, recordID)
	if err != nil {
		return nil, err
	}
	for srows.Next() {
		sc := model.Scope{RecordID: recordID}
		if err := srows.Scan(&sc.ID, &sc.ParentID, &sc.Name); err != nil {
			s.logger.Warn("scan failed", zap.String("query", "ListSignals scopes"), zap.Error(err))
			continue
		}
		scopes[sc.ID] = sc
	}
	if err := srows.Close(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.scope_id, g.name, g.kind, g.tagged, CAST(g.members AS VARCHAR),
			(SELECT COUNT(*) FROM samples m WHERE m.record_id = g.record_id AND m.signal_id = g.id)
		FROM signals g
		WHERE g.record_id = ?
		ORDER BY g.id`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SignalInfo
	for rows.Next() {
		info := model.SignalInfo{Signal: model.Signal{RecordID: recordID}}
		var kind, members string
		if err := rows.Scan(&info.ID, &info.ScopeID, &info.Name, &kind, &info.Tagged, &members, &info.SampleCount); err != nil {
			s.logger.Warn("scan failed", zap.String("query", "ListSignals"), zap.Error(err))
			continue
		}
		info.Kind = parseKind(kind)
		if members != "" {
			if err := json.Unmarshal([]byte(members), &info.Members); err != nil {
				s.logger.Warn("bad members json", zap.Int64("signal", info.ID), zap.Error(err))
			}
		}
		info.Path = scopePath(scopes, info.ScopeID) + "/" + info.Name
		out = append(out, info)
	}
	return out, rows.Err()
}

func parseKind(name string) model.SignalKind {
	for k := model.KindLog; k <= model.KindLines; k++ {
		if k.String() == name {
			return k
		}
	}
	return model.KindLog
}

// scopePath joins the scope names from the root down to id.
func scopePath(scopes map[int64]model.Scope, id int64) string {
	var parts []string
	for seen := 0; id != 0 && seen <= len(scopes); seen++ {
		sc, ok := scopes[id]
		if !ok {
			break
		}
		parts = append(parts, sc.Name)
		id = sc.ParentID
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

// Samples returns the samples of one signal in position order.
func (s *Store) Samples(signalID int64, opts model.QueryOpts) ([]model.Sample, error) {
	if opts.RecordID == "" {
		return nil, ErrRecordRequired
	}
	conds := []string{"record_id = ?", "signal_id = ?"}
	args := []any{opts.RecordID, signalID}
	if opts.From != nil {
		conds = append(conds, "position >= ?")
		args = append(args, *opts.From)
	}
	if opts.To != nil {
		conds = append(conds, "position <= ?")
		args = append(args, *opts.To)
	}
	if opts.MaxTag > model.TagNone {
		conds = append(conds, "tag > 0 AND tag <= ?")
		args = append(args, int(opts.MaxTag))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	args = append(args, limit)

	query := `SELECT position, tag, CAST(vals AS VARCHAR) FROM samples WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY position LIMIT ?`

	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Sample
	for rows.Next() {
		smp := model.Sample{RecordID: opts.RecordID, SignalID: signalID}
		var tag int
		var vals sql.NullString
		if err := rows.Scan(&smp.Position, &tag, &vals); err != nil {
			s.logger.Warn("scan failed", zap.String("query", "Samples"), zap.Error(err))
			continue
		}
		smp.Tag = model.Tag(tag)
		if vals.Valid {
			if err := json.Unmarshal([]byte(vals.String), &smp.Values); err != nil {
				s.logger.Warn("bad values json", zap.Int64("signal", signalID), zap.Error(err))
			}
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

// ExecuteQuery runs a read-only SQL query and returns up to MaxQueryRows
// rows as maps. Only SELECT/WITH queries are allowed.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)
	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() && len(results) < MaxQueryRows {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.logger.Warn("scan failed", zap.String("query", "ExecuteQuery"), zap.Error(err))
			continue
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// SchemaDescription describes the queryable tables.
func (s *Store) SchemaDescription() string {
	return `Table 'runs': id, name, profile, source, base, started_at (TIMESTAMP), start_pos, end_pos (BIGINT, domain units of base). ` +
		`Table 'scopes': record_id, id, parent_id, name. ` +
		`Table 'signals': record_id, id, scope_id, name, kind (log/struct/float/integer/text/enum/lines), tagged, members (JSON). ` +
		`Table 'samples': record_id, signal_id, position (BIGINT), tag (0 none, 1 fatal .. 7 trace), vals (JSON array). ` +
		`Table 'raw_lines': record_id, signal_id, line, text. ` +
		`Table 'line_links': record_id, line, signal_id, position.`
}

// TableRowCounts returns the row count of each table.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var count int64
		// Table names are constants, not user input.
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}

// DeleteRunsBefore removes every run started before cutoff together with
// its scopes, signals, samples and lines. It returns the number of runs
// removed.
func (s *Store) DeleteRunsBefore(cutoff time.Time) (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	const expired = `record_id IN (SELECT id FROM runs WHERE started_at < ?)`
	for _, table := range []string{"samples", "raw_lines", "line_links", "signals", "scopes"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, expired), cutoff); err != nil {
			return 0, fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
