// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tamzrod/cgm-collector/internal/download"
)

// MemoryStore keeps readings in process memory. Used when no DSN is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[download.DeviceType]map[uint32]download.Reading
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{readings: make(map[download.DeviceType]map[uint32]download.Reading)}
}

func (m *MemoryStore) NewestRecordTimestamp(_ context.Context, device download.DeviceType) (download.Since, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		newest uint32
		found  bool
	)
	for ts := range m.readings[device] {
		if !found || ts > newest {
			newest, found = ts, true
		}
	}
	if !found {
		return download.Since{}, nil
	}
	return download.SinceTime(newest), nil
}

func (m *MemoryStore) Persist(_ context.Context, d download.Download) error {
	if d.Status != download.StatusSuccess || d.Payload == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byTime := m.readings[d.Device]
	if byTime == nil {
		byTime = make(map[uint32]download.Reading)
		m.readings[d.Device] = byTime
	}
	for _, r := range d.Payload.Readings {
		if _, dup := byTime[r.SystemTime]; !dup {
			byTime[r.SystemTime] = r
		}
	}
	return nil
}

// Readings returns the stored readings for device, oldest first.
func (m *MemoryStore) Readings(device download.DeviceType) []download.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]download.Reading, 0, len(m.readings[device]))
	for _, r := range m.readings[device] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemTime < out[j].SystemTime })
	return out
}

func (m *MemoryStore) Close() error { return nil }
