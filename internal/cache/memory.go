package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"aireadiness/internal/model"
)

// memorySnapshotCache is an in-process SnapshotCache for tests and local
// development without Redis. Same validation rules as the Redis cache.
type memorySnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	now       func() time.Time
}

// NewMemorySnapshotCache creates an in-memory snapshot cache.
func NewMemorySnapshotCache() SnapshotCache {
	return &memorySnapshotCache{
		snapshots: make(map[string][]byte),
		now:       time.Now,
	}
}

func (c *memorySnapshotCache) Save(_ context.Context, snapshot *model.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.snapshots[snapshot.SessionID] = data
	c.mu.Unlock()
	return nil
}

func (c *memorySnapshotCache) Load(_ context.Context, sessionID string) (*model.SessionSnapshot, error) {
	c.mu.RLock()
	data, ok := c.snapshots[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeSnapshot(data, sessionID, c.now()), nil
}

func (c *memorySnapshotCache) Clear(_ context.Context, sessionID string) error {
	c.mu.Lock()
	delete(c.snapshots, sessionID)
	c.mu.Unlock()
	return nil
}
