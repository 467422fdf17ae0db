package server

import (
	"sync"
	"testing"
	"time"

	"github.com/afroash/climate-agent/internal/models"
)

func newSample(agentID string, temp float64, at int64) *models.Sample {
	return &models.Sample{
		AgentID: agentID,
		Reading: models.Reading{Temperature: temp, Humidity: 50, Time: at},
	}
}

func TestMemoryStore_AddAndGetLatest(t *testing.T) {
	store := NewMemoryStore(3)
	for i := int64(1); i <= 5; i++ {
		store.Add(newSample("a", float64(i), 1700000000+i))
	}

	got := store.GetLatest("a", 10)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (capacity)", len(got))
	}
	for i, want := range []float64{5, 4, 3} {
		if got[i].Temperature != want {
			t.Errorf("got[%d].Temperature = %v, want %v", i, got[i].Temperature, want)
		}
	}

	if got := store.GetLatest("a", 2); len(got) != 2 || got[0].Temperature != 5 {
		t.Errorf("GetLatest(2) = %+v", got)
	}
	if got := store.GetLatest("missing", 2); got != nil {
		t.Errorf("GetLatest(missing) = %+v, want nil", got)
	}
}

func TestMemoryStore_GetCurrentReturnsCopy(t *testing.T) {
	store := NewMemoryStore(10)
	if store.GetCurrent("a") != nil {
		t.Fatal("GetCurrent on empty store should be nil")
	}

	in := newSample("a", 21.5, 1700000000)
	store.Add(in)
	in.Temperature = 99

	cur := store.GetCurrent("a")
	if cur.Temperature != 21.5 {
		t.Fatalf("Temperature = %v, want 21.5", cur.Temperature)
	}
	cur.Temperature = 0
	if store.GetCurrent("a").Temperature != 21.5 {
		t.Error("caller mutation leaked into store")
	}
}

func TestMemoryStore_AgentIDsAndStats(t *testing.T) {
	store := NewMemoryStore(2)
	store.Add(newSample("zeta", 20, 1700000100))
	store.Add(newSample("alpha", 20, 1700000000))
	store.Add(newSample("alpha", 20, 1700000200))
	store.Add(newSample("alpha", 20, 1700000300))

	ids := store.GetAgentIDs()
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "zeta" {
		t.Errorf("GetAgentIDs = %v", ids)
	}

	stats := store.Stats()
	if stats.TotalSamples != 4 {
		t.Errorf("TotalSamples = %d, want 4", stats.TotalSamples)
	}
	if stats.CurrentSamples != 3 {
		t.Errorf("CurrentSamples = %d, want 3", stats.CurrentSamples)
	}
	if stats.UniqueAgents != 2 {
		t.Errorf("UniqueAgents = %d, want 2", stats.UniqueAgents)
	}
	if !stats.OldestSample.Equal(time.Unix(1700000100, 0)) {
		t.Errorf("OldestSample = %v", stats.OldestSample)
	}
	if !stats.NewestSample.Equal(time.Unix(1700000300, 0)) {
		t.Errorf("NewestSample = %v", stats.NewestSample)
	}

	store.Clear()
	if got := store.Stats(); got.TotalSamples != 0 || got.UniqueAgents != 0 {
		t.Errorf("Stats after Clear = %+v", got)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore(100)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				store.Add(newSample("a", 20, 1700000000+int64(i)))
				store.GetLatest("a", 5)
				store.Stats()
			}
		}()
	}
	wg.Wait()

	if got := store.Stats().TotalSamples; got != 200 {
		t.Errorf("TotalSamples = %d, want 200", got)
	}
}
