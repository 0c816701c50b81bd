package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

// AvailabilityCache keeps availability calendars for the read path only.
// Every ledger write for a unit bumps the unit's version key, which orphans
// all calendars cached under the previous version; orphans age out by TTL.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{
		client: client,
		ttl:    ttl,
	}
}

func versionKey(unitID string) string {
	return "availability:" + unitID + ":version"
}

func calendarKey(unitID string, version int64, from, to entity.Date) string {
	return fmt.Sprintf("availability:%s:v%d:%s:%s", unitID, version, from, to)
}

func (c *AvailabilityCache) version(ctx context.Context, unitID string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(unitID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// Get returns the cached calendar, whether it was found, and the version a
// miss must be stored under. The version is read before the caller loads the
// calendar, so a write that lands in between orphans the stale entry.
func (c *AvailabilityCache) Get(ctx context.Context, unitID string, from, to entity.Date) ([]*entity.InventorySlot, int64, bool, error) {
	v, err := c.version(ctx, unitID)
	if err != nil {
		return nil, 0, false, err
	}

	data, err := c.client.Get(ctx, calendarKey(unitID, v, from, to)).Bytes()
	if err == redis.Nil {
		return nil, v, false, nil
	}
	if err != nil {
		return nil, v, false, err
	}

	var slots []*entity.InventorySlot
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, v, false, err
	}
	return slots, v, true, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, unitID string, version int64, from, to entity.Date, slots []*entity.InventorySlot) error {
	data, err := json.Marshal(slots)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, calendarKey(unitID, version, from, to), data, c.ttl).Err()
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, unitID string) error {
	return c.client.Incr(ctx, versionKey(unitID)).Err()
}
