package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/sink"
)

func newImportCmd(a *app) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "import <stream.msgpack>...",
		Short: "Load msgpack event streams into the store",
		Long: `Replay event streams written by "sigex run --out" into DuckDB. Records
keep the IDs they were extracted with.

Example:
  sigex import --db runs.duckdb nightly.msgpack`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.importStreams(cmd, db, args)
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "DuckDB file (default: db-path from config)")
	return cmd
}

// countingSink tallies what passes through to the wrapped sink.
type countingSink struct {
	model.RecordSink
	records int
	samples int
}

func (c *countingSink) OpenRecord(r model.Record) error {
	c.records++
	return c.RecordSink.OpenRecord(r)
}

func (c *countingSink) WriteSample(s model.Sample) error {
	c.samples++
	return c.RecordSink.WriteSample(s)
}

func (a *app) importStreams(cmd *cobra.Command, db string, paths []string) (err error) {
	dbSink, dbPath, closers, err := a.openStoreSink(db)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	out := cmd.OutOrStdout()
	for _, path := range paths {
		counter := &countingSink{RecordSink: dbSink}
		if err := replayFile(path, counter); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		a.logger.Info("stream imported",
			zap.String("path", path),
			zap.Int("records", counter.records),
			zap.Int("samples", counter.samples))
		fmt.Fprintf(out, "  %s %s  %d records, %d samples %s %s\n",
			greenStyle.Render("●"), path, counter.records, counter.samples,
			boldStyle.Render("→"), dimStyle.Render(shortenPath(dbPath)))
	}
	return nil
}

func replayFile(path string, dst model.RecordSink) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return sink.Replay(f, dst)
}
