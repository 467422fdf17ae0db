package server

import (
	"sort"
	"sync"
	"time"

	"github.com/afroash/climate-agent/internal/models"
)

// MemoryStore keeps the most recent samples per agent in a bounded ring
type MemoryStore struct {
	capacity     int
	data         map[string][]*models.Sample
	mutex        sync.RWMutex
	totalSamples int64
}

// NewMemoryStore creates a store holding up to capacity samples per agent
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryStore{
		capacity: capacity,
		data:     make(map[string][]*models.Sample),
	}
}

// Add stores a copy of sample, evicting that agent's oldest when full
func (ms *MemoryStore) Add(sample *models.Sample) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	samples := ms.data[sample.AgentID]
	if len(samples) >= ms.capacity {
		samples = samples[1:]
	}
	ms.data[sample.AgentID] = append(samples, sample.Copy())
	ms.totalSamples++
}

// GetLatest returns up to n of the agent's samples, newest first
func (ms *MemoryStore) GetLatest(agentID string, n int) []*models.Sample {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	samples := ms.data[agentID]
	if len(samples) == 0 || n <= 0 {
		return nil
	}

	start := len(samples) - n
	if start < 0 {
		start = 0
	}

	result := make([]*models.Sample, 0, len(samples)-start)
	for i := len(samples) - 1; i >= start; i-- {
		result = append(result, samples[i].Copy())
	}
	return result
}

// GetCurrent returns the agent's most recent sample, or nil
func (ms *MemoryStore) GetCurrent(agentID string) *models.Sample {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	samples := ms.data[agentID]
	if len(samples) == 0 {
		return nil
	}
	return samples[len(samples)-1].Copy()
}

// GetAgentIDs returns every agent that has reported, sorted
func (ms *MemoryStore) GetAgentIDs() []string {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	ids := make([]string, 0, len(ms.data))
	for id := range ms.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns statistics about the store
func (ms *MemoryStore) Stats() StoreStats {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	stats := StoreStats{
		TotalSamples: ms.totalSamples,
		UniqueAgents: len(ms.data),
	}
	var oldest, newest int64
	for _, samples := range ms.data {
		stats.CurrentSamples += len(samples)
		for _, s := range samples {
			if oldest == 0 || s.Time < oldest {
				oldest = s.Time
			}
			if s.Time > newest {
				newest = s.Time
			}
		}
	}
	if stats.CurrentSamples > 0 {
		stats.OldestSample = time.Unix(oldest, 0).UTC()
		stats.NewestSample = time.Unix(newest, 0).UTC()
	}
	return stats
}

// StoreStats contains statistics about the memory store
type StoreStats struct {
	TotalSamples   int64     `json:"total_samples"`
	UniqueAgents   int       `json:"unique_agents"`
	CurrentSamples int       `json:"current_samples"` // in memory now
	OldestSample   time.Time `json:"oldest_sample,omitempty"`
	NewestSample   time.Time `json:"newest_sample,omitempty"`
}

// Clear removes all data from the store
func (ms *MemoryStore) Clear() {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.data = make(map[string][]*models.Sample)
	ms.totalSamples = 0
}
