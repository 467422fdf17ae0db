package storage

import (
	"sync"
	"time"

	"github.com/afroash/climate-agent/internal/models"
	"github.com/rs/zerolog"
)

// BatchInserter is the write side of a Store
type BatchInserter interface {
	InsertBatch(samples []*models.Sample) error
}

// DBWriter handles async batched writes to the database
type DBWriter struct {
	store       BatchInserter
	logger      zerolog.Logger
	writeChan   chan *models.Sample
	batchSize   int
	flushPeriod time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// Stats
	mu            sync.RWMutex
	totalWritten  int64
	totalBatches  int64
	totalErrors   int64
	totalDropped  int64
	lastWriteTime time.Time
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // samples per transaction (default: 100)
	FlushPeriod time.Duration // max time between flushes (default: 5s)
	ChannelSize int           // write queue capacity (default: 1000)
}

// DefaultDBWriterConfig returns sensible defaults
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   100,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 1000,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	TotalDropped  int64     `json:"total_dropped"`
	LastWriteTime time.Time `json:"last_write_time,omitempty"`
	QueueLength   int       `json:"queue_length"`
}

// NewDBWriter creates and starts an async database writer. Zero config
// fields take their defaults.
func NewDBWriter(store BatchInserter, config DBWriterConfig, logger zerolog.Logger) *DBWriter {
	defaults := DefaultDBWriterConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = defaults.ChannelSize
	}

	w := &DBWriter{
		store:       store,
		logger:      logger,
		writeChan:   make(chan *models.Sample, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		stopChan:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writerLoop()

	logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("DBWriter started")

	return w
}

// Write queues a sample. It never blocks: false means the queue was full
// and the sample was dropped.
func (w *DBWriter) Write(sample *models.Sample) bool {
	select {
	case w.writeChan <- sample:
		return true
	default:
		w.mu.Lock()
		w.totalDropped++
		w.mu.Unlock()
		w.logger.Warn().Str("agent_id", sample.AgentID).Msg("DBWriter channel full, dropping sample")
		return false
	}
}

func (w *DBWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]*models.Sample, 0, w.batchSize)
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case sample := <-w.writeChan:
			batch = append(batch, sample)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = make([]*models.Sample, 0, w.batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = make([]*models.Sample, 0, w.batchSize)
			}

		case <-w.stopChan:
			for {
				select {
				case sample := <-w.writeChan:
					batch = append(batch, sample)
					continue
				default:
				}
				break
			}
			w.flush(batch)
			w.logger.Info().Msg("DBWriter stopped")
			return
		}
	}
}

func (w *DBWriter) flush(batch []*models.Sample) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(batch)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.totalErrors++
		w.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write batch")
		return
	}
	w.totalWritten += int64(len(batch))
	w.totalBatches++
	w.lastWriteTime = time.Now()
	w.logger.Debug().Int("count", len(batch)).Msg("Flushed batch")
}

// Stop flushes whatever is queued and stops the writer
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return DBWriterStats{
		TotalWritten:  w.totalWritten,
		TotalBatches:  w.totalBatches,
		TotalErrors:   w.totalErrors,
		TotalDropped:  w.totalDropped,
		LastWriteTime: w.lastWriteTime,
		QueueLength:   len(w.writeChan),
	}
}
