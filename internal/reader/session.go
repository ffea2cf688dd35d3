package reader

import (
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/assemble"
	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/metrics"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/writer"
)

// Settings are the profile-wide inputs shared by all drivers.
type Settings struct {
	// Format labels metrics and log lines.
	Format     string
	Base       domain.Base
	Relative   bool
	AddRecPos  bool
	WriteLines bool
	// Clock overrides the reception-time clock.
	Clock  func() time.Time
	Logger *zap.Logger
}

func (s Settings) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Compile builds the shared member layout and compiles opts for kind.
// Every configuration error surfaces here, before input is consumed.
func Compile(kind option.Kind, opts []option.Option, s Settings) (*option.Layout, []*option.Compiled, error) {
	layout := option.BuildLayout(opts, s.AddRecPos)
	compiled, err := option.CompileAll(kind, opts, option.Settings{
		Base:      s.Base,
		Layout:    layout,
		Clock:     s.Clock,
		AddRecPos: s.AddRecPos,
	})
	if err != nil {
		return nil, nil, err
	}
	return layout, compiled, nil
}

// Session is the state of one run: the record, its log router and the
// staging assembler.
type Session struct {
	Run       *writer.Run
	Router    *writer.Router
	Assembler *assemble.Assembler
	Options   []*option.Compiled

	settings Settings
	logger   *zap.Logger
	sink     model.RecordSink
	stats    Stats
	started  time.Time
}

// Open starts a run on sink.
func Open(s Settings, rec model.Record, sink model.RecordSink, layout *option.Layout, compiled []*option.Compiled) (*Session, error) {
	logger := s.logger().With(zap.String("record", rec.ID), zap.String("format", s.Format))
	metrics.RunsStarted.WithLabelValues(s.Format).Inc()
	if rec.Base == "" {
		rec.Base = s.Base.Name()
	}

	run, err := writer.NewRun(sink, rec, writer.RunConfig{Relative: s.Relative, Logger: logger})
	if err != nil {
		metrics.RunsFailed.WithLabelValues(s.Format).Inc()
		return nil, err
	}
	sess := &Session{
		Run:      run,
		Options:  compiled,
		settings: s,
		logger:   logger,
		sink:     sink,
		started:  time.Now(),
	}
	if layout != nil {
		sess.Router = writer.NewRouter(run, layout)
		sess.Assembler = assemble.New(sess.Router, layout)
	}
	if s.WriteLines {
		if err := run.EnableLines(); err != nil {
			return nil, multierr.Append(err, sess.closeRun())
		}
	}
	logger.Debug("run opened", zap.String("name", rec.Name))
	return sess, nil
}

// Logger returns the run-scoped logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// Unit counts one structural unit.
func (s *Session) Unit() {
	s.stats.Units++
	metrics.UnitsRead.WithLabelValues(s.settings.Format).Inc()
}

// Line records that line n is being processed. Every ProgressInterval
// lines a buffering sink is flushed.
func (s *Session) Line(n int) error {
	s.stats.Lines++
	if s.Assembler != nil {
		s.Assembler.SetLine(n)
	}
	if n%ProgressInterval == 0 {
		return s.flushSink()
	}
	return nil
}

// WriteLine records the verbatim unit when raw lines are enabled.
func (s *Session) WriteLine(n int, text string) error {
	return s.Run.WriteLine(n, text)
}

func (s *Session) flushSink() error {
	if f, ok := s.sink.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (s *Session) closeRun() error {
	return multierr.Append(s.Run.Close(), s.flushSink())
}

// Close ends the run. Without a prior error the trailing message is
// written first. The record is closed on every path.
func (s *Session) Close(err error) (Stats, error) {
	if err == nil && s.Assembler != nil {
		_, err = s.Assembler.Finish()
	}
	err = multierr.Append(err, s.closeRun())

	s.stats.Samples = s.Run.Samples()
	if s.Router != nil {
		s.stats.Signals = s.Router.Len()
	}
	s.stats.Duration = time.Since(s.started)

	format := s.settings.Format
	metrics.SamplesWritten.WithLabelValues(format).Add(float64(s.stats.Samples))
	metrics.RunDuration.WithLabelValues(format).Observe(s.stats.Duration.Seconds())
	if err != nil {
		metrics.RunsFailed.WithLabelValues(format).Inc()
		s.logger.Warn("run failed", zap.Error(err), zap.Int64("units", s.stats.Units))
	} else {
		s.logger.Info("run complete",
			zap.Int64("units", s.stats.Units),
			zap.Int64("samples", s.stats.Samples),
			zap.Int("signals", s.stats.Signals),
			zap.Duration("duration", s.stats.Duration))
	}
	return s.stats, err
}

// SetSignals overrides the signal count for drivers that bypass the router.
func (s *Session) SetSignals(n int) { s.stats.Signals = n }
