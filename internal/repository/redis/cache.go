package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rrens/bi-genie/internal/domain"
)

const (
	schemaCachePrefix = "schema:dataset:"
	schemaCacheTTL    = 5 * time.Minute
)

// SchemaCache caches dataset column schemas. It never stores which
// datasets a user may read, only what a dataset looks like.
type SchemaCache struct {
	client *Client
	ttl    time.Duration
}

// NewSchemaCache creates a new schema cache
func NewSchemaCache(client *Client, ttl time.Duration) *SchemaCache {
	if ttl <= 0 {
		ttl = schemaCacheTTL
	}
	return &SchemaCache{client: client, ttl: ttl}
}

func schemaKey(datasetID int) string {
	return fmt.Sprintf("%s%d", schemaCachePrefix, datasetID)
}

// Get retrieves a cached dataset. A miss returns nil, nil.
func (c *SchemaCache) Get(ctx context.Context, datasetID int) (*domain.Dataset, error) {
	data, err := c.client.rdb.Get(ctx, schemaKey(datasetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema cache: %w", err)
	}

	var ds domain.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &ds, nil
}

// Set caches a dataset schema
func (c *SchemaCache) Set(ctx context.Context, ds domain.Dataset) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	return c.client.rdb.Set(ctx, schemaKey(ds.ID), data, c.ttl).Err()
}

// Invalidate removes a cached dataset
func (c *SchemaCache) Invalidate(ctx context.Context, datasetID int) error {
	return c.client.rdb.Del(ctx, schemaKey(datasetID)).Err()
}

// FlushAll removes all cached schemas
func (c *SchemaCache) FlushAll(ctx context.Context) (int64, error) {
	pattern := schemaCachePrefix + "*"
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := c.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			count, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += count
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}
