package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/sigex/internal/backup"
	"github.com/tinytelemetry/sigex/internal/duckdb"
	"github.com/tinytelemetry/sigex/internal/engine"
	"github.com/tinytelemetry/sigex/internal/httpserver"
	"github.com/tinytelemetry/sigex/internal/journal"
	"github.com/tinytelemetry/sigex/internal/tcpserver"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and optional TCP ingest",
		Long: `Serve stored runs over HTTP and accept uploads on POST /api/ingest/:profile.
With tcp-enabled every TCP connection becomes one run of tcp-profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.String("api-addr", "", "HTTP listen address")
	f.Bool("tcp-enabled", false, "accept TCP log streams")
	f.String("tcp-addr", "", "TCP listen address")
	f.String("tcp-profile", "", "profile applied to TCP streams")
	f.String("db-path", "", "DuckDB file")
	for _, name := range []string{"api-addr", "tcp-enabled", "tcp-addr", "tcp-profile", "db-path"} {
		_ = a.v.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

// serve runs until SIGINT/SIGTERM. A second signal or a 10s shutdown
// deadline forces exit.
func (a *app) serve(parent context.Context) error {
	cfg := a.cfg
	logger := a.logger

	profiles, err := a.profiles()
	if err != nil {
		return err
	}
	tcpCharset := ""
	if cfg.TCPEnabled {
		p, err := profiles.Lookup(cfg.TCPProfile)
		if err != nil {
			return fmt.Errorf("tcp-profile: %w", err)
		}
		tcpCharset = p.Charset
	}

	store, err := duckdb.NewStore(cfg.DBPath, duckdb.StoreConfig{QueryTimeout: cfg.QueryTimeout, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	var spool *journal.Journal
	if cfg.JournalEnabled {
		spool, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open sample journal: %w", err)
		}
	}
	buf := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
		Journal:        spool,
		Logger:         logger,
	})
	defer buf.Stop()
	if spool != nil {
		n, err := buf.Recover(spool)
		if err != nil {
			return fmt.Errorf("failed to replay sample journal: %w", err)
		}
		if n > 0 {
			logger.Info("replayed uncommitted samples", zap.Int("samples", n))
		}
	}
	dbSink := duckdb.NewSink(store, buf)
	defer func() {
		if err := dbSink.Flush(); err != nil {
			logger.Error("final flush failed", zap.Error(err))
		}
	}()

	if rc := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{MaxAge: cfg.Retention, Logger: logger}); rc != nil {
		defer rc.Stop()
	}

	backupCfg := cfg.Backup
	backupCfg.Logger = logger
	backups, err := backup.NewManager(store, backupCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backups != nil {
		defer backups.Stop()
	}

	eng, err := engine.New(engine.Config{
		Profiles:    profiles,
		Sink:        dbSink,
		Logger:      logger,
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		return err
	}

	var api *httpserver.Server
	if cfg.APIEnabled {
		api = httpserver.NewServer(store, eng, httpserver.Config{
			Addr:           cfg.APIAddr,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Logger:         logger.Named("http"),
		})
		if err := api.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	var tcp *tcpserver.Server
	if cfg.TCPEnabled {
		tcp = tcpserver.NewServer(cfg.TCPAddr, eng, tcpserver.ServerConfig{
			Profile:     cfg.TCPProfile,
			Charset:     tcpCharset,
			MaxConns:    cfg.TCPMaxConns,
			IdleTimeout: cfg.TCPIdleTimeout,
			Logger:      logger.Named("tcp"),
		})
		if err := tcp.Start(); err != nil {
			if api != nil {
				_ = api.Stop()
			}
			return fmt.Errorf("failed to start TCP server: %w", err)
		}
	}

	printStartupBanner(os.Stdout, cfg, profiles.Names())

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()
		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		var err error
		if tcp != nil {
			if stopErr := tcp.Stop(); stopErr != nil {
				err = fmt.Errorf("stop tcp: %w", stopErr)
			}
		}
		if api != nil {
			if stopErr := api.Stop(); stopErr != nil && err == nil {
				err = fmt.Errorf("stop api: %w", stopErr)
			}
		}
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	return nil
}
