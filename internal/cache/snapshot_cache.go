package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"aireadiness/internal/model"
)

// SnapshotMaxAge is how long a saved snapshot stays resumable.
const SnapshotMaxAge = 30 * time.Minute

// SnapshotCache persists in-progress session snapshots for resume.
// Persistence is a convenience, not a correctness requirement: Save and
// Clear are best-effort at the call site, and Load silently discards
// anything that fails validation.
type SnapshotCache interface {
	Save(ctx context.Context, snapshot *model.SessionSnapshot) error
	Load(ctx context.Context, sessionID string) (*model.SessionSnapshot, error)
	Clear(ctx context.Context, sessionID string) error
}

type snapshotCache struct {
	client *redis.Client
}

// NewSnapshotCache creates a Redis-backed snapshot cache. The key TTL
// matches SnapshotMaxAge so storage expiry and the savedAt check agree.
func NewSnapshotCache(client *redis.Client) SnapshotCache {
	return &snapshotCache{client: client}
}

func snapshotKey(sessionID string) string {
	return "assessment:snapshot:" + sessionID
}

func (c *snapshotCache) Save(ctx context.Context, snapshot *model.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(snapshot.SessionID), data, SnapshotMaxAge).Err()
}

func (c *snapshotCache) Load(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	data, err := c.client.Get(ctx, snapshotKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot([]byte(data), sessionID, time.Now()), nil
}

func (c *snapshotCache) Clear(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, snapshotKey(sessionID)).Err()
}

// decodeSnapshot deserializes and validates a stored snapshot. Any failed
// check invalidates it: bad JSON, session id mismatch, staleness, or a
// partial flag left by a skip-to-results bypass.
func decodeSnapshot(data []byte, sessionID string, now time.Time) *model.SessionSnapshot {
	var snapshot model.SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		log.Printf("[snapshot] discarding unreadable snapshot for %s: %v", sessionID, err)
		return nil
	}
	if snapshot.SessionID != sessionID {
		return nil
	}
	if now.Sub(snapshot.SavedAt) >= SnapshotMaxAge {
		return nil
	}
	if snapshot.Partial {
		return nil
	}
	return &snapshot
}
