// Package async decouples usage recording from the request path. Entries are
// queued in memory and flushed in batches, so a slow store never delays a
// completion response.
package async

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/max-7189/GraceAi/internal/ledger"
)

// Store wraps a ledger.Store with asynchronous batched writes. Entries still
// queued when the process dies are lost; usage records are advisory.
type Store struct {
	underlying    ledger.Store
	entryChan     chan ledger.Entry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	closeOnce     sync.Once
	logger        *log.Logger
}

// Config configures the async wrapper. Zero values pick sensible defaults for
// a single-user local daemon.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	ChannelBuffer int
	Logger        *log.Logger
}

// New wraps an existing ledger store with async batch writing.
func New(underlying ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 1024
	}

	s := &Store{
		underlying:    underlying,
		entryChan:     make(chan ledger.Entry, cfg.ChannelBuffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        cfg.Logger,
	}
	s.wg.Add(1)
	go s.batchWriter()
	return s
}

func (s *Store) batchWriter() {
	defer s.wg.Done()

	batch := make([]ledger.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		for _, entry := range batch {
			if err := s.underlying.Record(ctx, entry); err != nil && s.logger != nil {
				s.logger.Printf("ledger write failed completion=%s: %v", entry.CompletionID, err)
			}
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-s.entryChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Record enqueues the entry without blocking. When the buffer is full the
// entry is dropped and logged rather than stalling a completion.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	select {
	case s.entryChan <- entry:
	default:
		if s.logger != nil {
			s.logger.Printf("ledger queue full, dropping entry completion=%s", entry.CompletionID)
		}
	}
	return nil
}

// Summary delegates to the underlying store.
func (s *Store) Summary(ctx context.Context) (ledger.Summary, error) {
	return s.underlying.Summary(ctx)
}

// ListRecent delegates to the underlying store.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return s.underlying.ListRecent(ctx, limit)
}

// Close flushes queued entries and closes the underlying store.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.entryChan)
	})
	s.wg.Wait()
	return s.underlying.Close()
}
