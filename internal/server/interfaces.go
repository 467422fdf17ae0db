package server

import (
	"time"

	"github.com/afroash/climate-agent/internal/models"
	"github.com/afroash/climate-agent/internal/storage"
)

// SampleStore is the real-time view of recent samples.
// MemoryStore implements this interface.
type SampleStore interface {
	Add(sample *models.Sample)
	GetLatest(agentID string, n int) []*models.Sample
	GetCurrent(agentID string) *models.Sample
	GetAgentIDs() []string
	Stats() StoreStats
}

// HistoricalStore is the persistent history.
// storage.SQLiteStore implements this interface.
type HistoricalStore interface {
	GetSamplesInRange(agentID string, start, end time.Time, limit int) ([]*models.Sample, error)
	GetSamplesBefore(agentID string, before time.Time, limit int) ([]*models.Sample, error)
	GetLatestSample(agentID string) (*models.Sample, error)
	GetAgentIDs() ([]string, error)
	GetDailyStats(agentID string, start, end time.Time) ([]storage.DailyStat, error)
	GetStorageStats() (*storage.StorageStats, error)
}

// SampleWriter queues samples for persistence without blocking.
// storage.DBWriter implements this interface.
type SampleWriter interface {
	Write(sample *models.Sample) bool
}

var (
	_ SampleStore     = (*MemoryStore)(nil)
	_ HistoricalStore = (*storage.SQLiteStore)(nil)
	_ SampleWriter    = (*storage.DBWriter)(nil)
)
