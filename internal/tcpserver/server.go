// Package tcpserver accepts log streams over TCP. Every connection is one
// ingestion run that ends when the peer closes its side.
package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tinytelemetry/sigex/internal/engine"
	"github.com/tinytelemetry/sigex/internal/logsource"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = "127.0.0.1:4000"
	// DefaultMaxConns bounds concurrent runs.
	DefaultMaxConns = 16
	// DefaultIdleTimeout ends a run whose peer sent nothing for this long.
	DefaultIdleTimeout = 5 * time.Minute
)

// Runner runs one opened source through a profile.
type Runner interface {
	Run(ctx context.Context, profile string, src *logsource.Source) (engine.Result, error)
}

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	Profile     string
	Charset     string
	MaxConns    int64
	IdleTimeout time.Duration
	Logger      *zap.Logger
	// OnResult observes every finished run.
	OnResult func(engine.Result, error)
}

// Server hands accepted connections to a Runner.
type Server struct {
	listener net.Listener
	addr     string
	runner   Runner
	conf     ServerConfig
	logger   *zap.Logger
	sem      *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates a TCP server. Default addr is DefaultAddr.
func NewServer(addr string, runner Runner, conf ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if conf.MaxConns <= 0 {
		conf.MaxConns = DefaultMaxConns
	}
	if conf.IdleTimeout <= 0 {
		conf.IdleTimeout = DefaultIdleTimeout
	}
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		runner: runner,
		conf:   conf,
		logger: logger,
		sem:    semaphore.NewWeighted(conf.MaxConns),
		ctx:    ctx,
		cancel: cancel,
		conns:  map[net.Conn]struct{}{},
	}
}

// Start begins accepting TCP connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			return
		}
		conn, err := s.listener.Accept()
		if err != nil {
			s.sem.Release(1)
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		s.track(conn, true)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.sem.Release(1)
	defer s.track(conn, false)

	src, err := logsource.FromConn(&idleConn{Conn: conn, timeout: s.conf.IdleTimeout}, s.conf.Charset)
	if err != nil {
		s.logger.Error("open connection source", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		_ = conn.Close()
		return
	}
	defer src.Close()

	res, err := s.runner.Run(s.ctx, s.conf.Profile, src)
	if err != nil {
		s.logger.Warn("tcp run failed", zap.String("remote", src.Name), zap.String("record", res.Record.ID), zap.Error(err))
	} else {
		s.logger.Info("tcp run finished",
			zap.String("remote", src.Name),
			zap.String("record", res.Record.ID),
			zap.Int64("samples", res.Stats.Samples))
	}
	if s.conf.OnResult != nil {
		s.conf.OnResult(res, err)
	}
}

// Stop closes the listener and every open connection, then waits for the
// runs to finish.
func (s *Server) Stop() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// idleConn pushes the read deadline forward on every read.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
