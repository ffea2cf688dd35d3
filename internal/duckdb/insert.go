package duckdb

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/journal"
	"github.com/tinytelemetry/sigex/internal/metrics"
	"github.com/tinytelemetry/sigex/internal/model"
)

const (
	// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
	DefaultFlushQueueSize = 64
	// DefaultBatchSize is the number of samples collected before a flush.
	DefaultBatchSize = 2000
	// DefaultFlushInterval is the period of the background drain.
	DefaultFlushInterval = 100 * time.Millisecond
)

type journaledSample struct {
	seq    uint64
	sample *model.Sample
}

// flushRequest is a queued batch. A request with done set is a barrier
// that is closed once every earlier batch has been written.
type flushRequest struct {
	batch []journaledSample
	done  chan struct{}
}

type durableJournal interface {
	Append(s *model.Sample) (uint64, error)
	Commit(seq uint64) error
	Close() error
}

// InsertBuffer batches samples and flushes them to a SampleWriter
// asynchronously. Add never blocks on store writes.
type InsertBuffer struct {
	writer        model.SampleWriter
	logger        *zap.Logger
	mu            sync.Mutex
	pending       []journaledSample
	flushChan     chan flushRequest
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	journal       durableJournal

	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	Journal        *journal.Journal
	Logger         *zap.Logger
}

// NewInsertBuffer creates a buffer flushing to writer.
func NewInsertBuffer(writer model.SampleWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := DefaultBatchSize
	flushInterval := DefaultFlushInterval
	flushQueueSize := DefaultFlushQueueSize
	logger := zap.NewNop()
	var j durableJournal
	if len(conf) > 0 {
		c := conf[0]
		if c.BatchSize > 0 {
			batchSize = c.BatchSize
		}
		if c.FlushInterval > 0 {
			flushInterval = c.FlushInterval
		}
		if c.FlushQueueSize > 0 {
			flushQueueSize = c.FlushQueueSize
		}
		if c.Logger != nil {
			logger = c.Logger
		}
		if c.Journal != nil {
			j = c.Journal
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		logger:        logger,
		pending:       make([]journaledSample, 0, batchSize),
		flushChan:     make(chan flushRequest, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		journal:       j,
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

// logBackpressure warns at most once per 10 seconds about inline flushes.
func (b *InsertBuffer) logBackpressure() {
	metrics.StoreBackpressure.Inc()
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		b.logger.Warn("store backpressure: flushing inline", zap.Int64("inline_flushes", count))
	}
}

func (b *InsertBuffer) takePending() []journaledSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make([]journaledSample, 0, b.maxBatch)
	return batch
}

// enqueue hands batch to the flush worker, flushing inline when the
// queue is full.
func (b *InsertBuffer) enqueue(batch []journaledSample) {
	select {
	case b.flushChan <- flushRequest{batch: batch}:
	default:
		b.logBackpressure()
		b.flush(batch)
	}
}

func (b *InsertBuffer) drainPending() {
	if batch := b.takePending(); batch != nil {
		b.enqueue(batch)
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for req := range b.flushChan {
		b.flush(req.batch)
		if req.done != nil {
			close(req.done)
		}
	}
}

func (b *InsertBuffer) flush(batch []journaledSample) {
	if err := b.flushBatch(batch); err != nil {
		metrics.StoreFlushFailures.Inc()
		b.logger.Error("store flush failed", zap.Int("samples", len(batch)), zap.Error(err))
	}
}

// Add queues a sample. With a journal the sample is persisted first.
func (b *InsertBuffer) Add(s *model.Sample) {
	seq := uint64(0)
	if b.journal != nil {
		for {
			var err error
			seq, err = b.journal.Append(s)
			if err == nil {
				break
			}
			b.logger.Warn("journal append failed, retrying", zap.Error(err))
			select {
			case <-b.done:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}

	b.mu.Lock()
	b.pending = append(b.pending, journaledSample{seq: seq, sample: s})
	var batch []journaledSample
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]journaledSample, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch)
	}
}

// Sync writes every sample added so far and waits until the store has
// them. It must not be called after Stop.
func (b *InsertBuffer) Sync() {
	select {
	case <-b.done:
		return
	default:
	}
	if batch := b.takePending(); batch != nil {
		b.flush(batch)
	}
	done := make(chan struct{})
	select {
	case b.flushChan <- flushRequest{done: done}:
		<-done
	case <-b.done:
	}
}

// Stop flushes remaining samples and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// The tick loop's final drain must reach the queue before it closes.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
		if b.journal != nil {
			if err := b.journal.Close(); err != nil {
				b.logger.Warn("journal close failed", zap.Error(err))
			}
		}
	})
}

// Recover re-queues the uncommitted samples of j, typically after a crash.
func (b *InsertBuffer) Recover(j *journal.Journal) (int, error) {
	n := 0
	err := j.Replay(func(seq uint64, s *model.Sample) error {
		smp := *s
		b.mu.Lock()
		b.pending = append(b.pending, journaledSample{seq: seq, sample: &smp})
		b.mu.Unlock()
		n++
		return nil
	})
	return n, err
}

func (b *InsertBuffer) flushBatch(batch []journaledSample) error {
	if len(batch) == 0 {
		return nil
	}
	samples := make([]*model.Sample, 0, len(batch))
	var maxSeq uint64
	for _, item := range batch {
		samples = append(samples, item.sample)
		maxSeq = max(maxSeq, item.seq)
	}
	if err := b.writer.InsertSampleBatch(samples); err != nil {
		return err
	}
	if b.journal != nil && maxSeq > 0 {
		if err := b.journal.Commit(maxSeq); err != nil {
			return fmt.Errorf("journal commit seq=%d: %w", maxSeq, err)
		}
	}
	return nil
}
