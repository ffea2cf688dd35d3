package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/duckdb"
	"github.com/tinytelemetry/sigex/internal/engine"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/sink"
)

type runOptions struct {
	profile  string
	db       string
	out      string
	dryRun   bool
	parallel int
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run --profile <name> <input>...",
		Short: "Extract signals from log files",
		Long: `Run every input through a profile, one record per input. Inputs are
read concurrently. Use "-" for stdin.

Examples:
  sigex run -p log4j app.log
  sigex run -p csv --out metrics.msgpack a.csv b.csv
  cat app.log | sigex run -p log4j --dry-run -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.profile, "profile", "p", "", "profile name")
	f.StringVar(&opts.db, "db", "", "DuckDB file (default: db-path from config)")
	f.StringVarP(&opts.out, "out", "o", "", "also write a msgpack event stream to this file")
	f.BoolVar(&opts.dryRun, "dry-run", false, "parse only; store nothing")
	f.IntVar(&opts.parallel, "parallel", 0, "concurrent inputs (default: parallelism from config)")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

// runSinks holds the sinks of one run command and how to close them.
type runSinks struct {
	sink  model.RecordSink
	close []func() error
	where []string
}

func (s *runSinks) Close() error {
	var err error
	for i := len(s.close) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.close[i]())
	}
	return err
}

// openStoreSink opens the DuckDB store at dbPath, or at db-path from the
// config when empty. The closers must run in reverse order.
func (a *app) openStoreSink(dbPath string) (*duckdb.Sink, string, []func() error, error) {
	if dbPath == "" {
		dbPath = a.cfg.DBPath
	}
	store, err := duckdb.NewStore(dbPath, duckdb.StoreConfig{QueryTimeout: a.cfg.QueryTimeout, Logger: a.logger})
	if err != nil {
		return nil, "", nil, fmt.Errorf("open store: %w", err)
	}
	buf := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      a.cfg.InsertBatchSize,
		FlushInterval:  a.cfg.InsertFlushInterval,
		FlushQueueSize: a.cfg.InsertFlushQueue,
		Logger:         a.logger,
	})
	dbSink := duckdb.NewSink(store, buf)
	closers := []func() error{store.Close, func() error { buf.Stop(); return nil }, dbSink.Flush}
	return dbSink, dbPath, closers, nil
}

func (a *app) openSinks(opts *runOptions) (*runSinks, error) {
	out := &runSinks{}
	if opts.dryRun {
		out.sink = sink.Discard{}
		out.where = append(out.where, "dry run")
		return out, nil
	}

	var sinks sink.Multi
	dbSink, dbPath, closers, err := a.openStoreSink(opts.db)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, dbSink)
	out.close = append(out.close, closers...)
	out.where = append(out.where, dbPath)

	if opts.out != "" {
		if err := os.MkdirAll(filepath.Dir(opts.out), 0755); err != nil {
			return nil, multierr.Append(err, out.Close())
		}
		f, err := os.Create(opts.out)
		if err != nil {
			return nil, multierr.Append(err, out.Close())
		}
		mp := sink.NewMsgpack(f)
		sinks = append(sinks, mp)
		out.close = append(out.close, f.Close, mp.Flush)
		out.where = append(out.where, opts.out)
	}

	if len(sinks) == 1 {
		out.sink = sinks[0]
	} else {
		out.sink = sinks
	}
	return out, nil
}

func (a *app) run(cmd *cobra.Command, opts *runOptions, inputs []string) (err error) {
	profiles, err := a.profiles()
	if err != nil {
		return err
	}
	if _, err := profiles.Lookup(opts.profile); err != nil {
		return err
	}

	sinks, err := a.openSinks(opts)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sinks.Close()) }()

	parallel := opts.parallel
	if parallel <= 0 {
		parallel = a.cfg.Parallelism
	}
	eng, err := engine.New(engine.Config{
		Profiles:    profiles,
		Sink:        sinks.sink,
		Logger:      a.logger,
		Parallelism: parallel,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, runErr := eng.RunAll(ctx, opts.profile, inputs)
	a.logger.Info("run finished", zap.Int("inputs", len(inputs)), zap.Error(runErr))

	fmt.Fprintln(cmd.OutOrStdout(), renderRunSummary(opts.profile, sinks.where, results))
	if runErr != nil {
		return fmt.Errorf("%d of %d inputs failed", countFailed(results), len(results))
	}
	return nil
}

func countFailed(results []engine.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
