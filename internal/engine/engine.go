// Package engine runs inputs through reader profiles into a record sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/sigex/internal/config"
	"github.com/tinytelemetry/sigex/internal/logsource"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/reader"
)

// DefaultParallelism bounds concurrent runs started by RunAll.
const DefaultParallelism = 4

// ErrNoSink is returned by New without a sink.
var ErrNoSink = errors.New("engine: no sink configured")

// Config configures an Engine.
type Config struct {
	Profiles    *config.File
	Sink        model.RecordSink
	Logger      *zap.Logger
	Parallelism int
	// Now stamps records. Defaults to time.Now.
	Now func() time.Time
}

// Engine dispatches inputs to the format driver of their profile. It is
// safe for concurrent use; every run builds its own driver.
type Engine struct {
	profiles    *config.File
	sink        model.RecordSink
	logger      *zap.Logger
	parallelism int
	now         func() time.Time
}

// Result is the outcome of one run.
type Result struct {
	Record model.Record `json:"record"`
	Stats  reader.Stats `json:"stats"`
	Err    error        `json:"-"`
}

// New creates an Engine.
func New(conf Config) (*Engine, error) {
	if conf.Sink == nil {
		return nil, ErrNoSink
	}
	if conf.Profiles == nil {
		conf.Profiles = config.Builtin()
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	if conf.Parallelism <= 0 {
		conf.Parallelism = DefaultParallelism
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	return &Engine{
		profiles:    conf.Profiles,
		sink:        conf.Sink,
		logger:      conf.Logger,
		parallelism: conf.Parallelism,
		now:         conf.Now,
	}, nil
}

// Profiles returns the profile catalogue.
func (e *Engine) Profiles() *config.File { return e.profiles }

// Reader compiles the driver of a profile.
func (e *Engine) Reader(name string) (*config.Profile, reader.Reader, error) {
	p, err := e.profiles.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	r, err := p.NewReader(e.logger)
	if err != nil {
		return nil, nil, err
	}
	return p, r, nil
}

// NewRecord stamps a record for one input.
func (e *Engine) NewRecord(profile, source string) model.Record {
	name := filepath.Base(source)
	if source == logsource.StdinName {
		name = "stdin"
	}
	return model.Record{
		ID:        uuid.NewString(),
		Name:      name,
		Profile:   profile,
		Source:    source,
		StartedAt: e.now().UTC(),
	}
}

// RunFile opens path (or stdin for "-") with the profile charset and runs
// it.
func (e *Engine) RunFile(ctx context.Context, profile, path string) (Result, error) {
	p, err := e.profiles.Lookup(profile)
	if err != nil {
		return Result{}, err
	}
	src, err := logsource.Open(path, p.Charset)
	if err != nil {
		return Result{}, err
	}
	res, err := e.Run(ctx, profile, src)
	return res, multierr.Append(err, src.Close())
}

// RunReader runs an already open stream, decoding it with the profile
// charset.
func (e *Engine) RunReader(ctx context.Context, profile, kind, name string, in io.Reader) (Result, error) {
	p, err := e.profiles.Lookup(profile)
	if err != nil {
		return Result{}, err
	}
	src, err := logsource.FromReader(kind, name, in, p.Charset)
	if err != nil {
		return Result{}, err
	}
	return e.Run(ctx, profile, src)
}

// Run reads src through profile into the engine sink. The record is
// closed whether or not the run fails.
func (e *Engine) Run(ctx context.Context, profile string, src *logsource.Source) (Result, error) {
	p, r, err := e.Reader(profile)
	if err != nil {
		return Result{}, err
	}
	rec := e.NewRecord(profile, src.Name)
	if base, err := p.Base(); err == nil {
		rec.Base = base.Name()
	}
	e.logger.Info("run started",
		zap.String("record", rec.ID),
		zap.String("profile", profile),
		zap.String("source", src.Name),
		zap.String("kind", src.Kind))

	stats, err := r.Read(ctx, rec, src, e.sink)
	res := Result{Record: rec, Stats: stats, Err: err}
	if err != nil {
		return res, fmt.Errorf("%s: %w", src.Name, err)
	}
	return res, nil
}

// RunAll runs every path concurrently, at most Parallelism at a time.
// Results keep the order of paths. A failing input does not stop the
// others; the returned error combines all failures.
func (e *Engine) RunAll(ctx context.Context, profile string, paths []string) ([]Result, error) {
	if _, _, err := e.Reader(profile); err != nil {
		return nil, err
	}
	results := make([]Result, len(paths))
	var g errgroup.Group
	g.SetLimit(e.parallelism)

	var (
		mu   sync.Mutex
		errs error
	)
	for i, path := range paths {
		g.Go(func() error {
			res, err := e.RunFile(ctx, profile, path)
			if res.Record.ID == "" {
				res.Record = model.Record{Profile: profile, Source: path, Name: filepath.Base(path)}
				res.Err = err
			}
			results[i] = res
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
