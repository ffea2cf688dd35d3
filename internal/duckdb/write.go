package duckdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/model"
)

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

func (s *Store) exec(query string, args ...any) error {
	ctx, cancel := s.queryCtx()
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// InsertRun registers a record.
func (s *Store) InsertRun(rec model.Record) error {
	err := s.exec(`INSERT INTO runs (id, name, profile, source, base, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Profile, rec.Source, rec.Base, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// SetRunStart stores the first domain position of a record.
func (s *Store) SetRunStart(recordID string, start int64) error {
	return s.exec(`UPDATE runs SET start_pos = ? WHERE id = ?`, start, recordID)
}

// SetRunEnd stores the closing domain position of a record.
func (s *Store) SetRunEnd(recordID string, end int64) error {
	return s.exec(`UPDATE runs SET end_pos = ? WHERE id = ?`, end, recordID)
}

// InsertScope stores one scope.
func (s *Store) InsertScope(sc model.Scope) error {
	return s.exec(`INSERT INTO scopes (record_id, id, parent_id, name) VALUES (?, ?, ?, ?)`,
		sc.RecordID, sc.ID, sc.ParentID, sc.Name)
}

// InsertSignal stores one signal with its members as JSON.
func (s *Store) InsertSignal(sig model.Signal) error {
	members := "[]"
	if len(sig.Members) > 0 {
		data, err := json.Marshal(sig.Members)
		if err != nil {
			return fmt.Errorf("marshal members: %w", err)
		}
		members = string(data)
	}
	return s.exec(`INSERT INTO signals (record_id, id, scope_id, name, kind, tagged, members) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sig.RecordID, sig.ID, sig.ScopeID, sig.Name, sig.Kind.String(), sig.Tagged, members)
}

// InsertLines stores raw lines in one transaction.
func (s *Store) InsertLines(lines []model.RawLine) error {
	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []any{l.RecordID, l.SignalID, l.Line, l.Text})
	}
	return s.insertRows(`INSERT INTO raw_lines (record_id, signal_id, line, text) VALUES (?, ?, ?, ?)`, rows)
}

// InsertLinks stores line cross references in one transaction.
func (s *Store) InsertLinks(links []model.LineLink) error {
	rows := make([][]any, 0, len(links))
	for _, l := range links {
		rows = append(rows, []any{l.RecordID, l.Line, l.SignalID, l.Position})
	}
	return s.insertRows(`INSERT INTO line_links (record_id, line, signal_id, position) VALUES (?, ?, ?, ?)`, rows)
}

func sampleRow(smp *model.Sample) ([]any, error) {
	vals, err := json.Marshal(smp.Values)
	if err != nil {
		return nil, fmt.Errorf("marshal values: %w", err)
	}
	return []any{smp.RecordID, smp.SignalID, smp.Position, int(smp.Tag), string(vals)}, nil
}

const insertSample = `INSERT INTO samples (record_id, signal_id, position, tag, vals) VALUES (?, ?, ?, ?, ?)`

// InsertSampleBatch appends samples in a single transaction. When the
// batch fails it is retried sample by sample and the failing samples are
// dropped.
func (s *Store) InsertSampleBatch(samples []*model.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(samples))
	for _, smp := range samples {
		row, err := sampleRow(smp)
		if err != nil {
			s.logger.Warn("dropping unencodable sample",
				zap.String("record", smp.RecordID), zap.Int64("signal", smp.SignalID), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	if err := s.insertRows(insertSample, rows); err == nil {
		return nil
	}

	var failed int
	for _, row := range rows {
		if err := s.insertRows(insertSample, [][]any{row}); err != nil {
			failed++
			s.logger.Warn("dropping sample", zap.Any("record", row[0]), zap.Any("signal", row[1]), zap.Error(err))
		}
	}
	if failed > 0 {
		s.logger.Warn("sample batch partially failed", zap.Int("dropped", failed), zap.Int("total", len(rows)))
	}
	return nil
}

// insertRows runs query once per row inside one transaction.
func (s *Store) insertRows(query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("row insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
