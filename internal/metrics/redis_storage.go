package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultRetention bounds how long data points stay in Redis when no
// retention is configured.
const defaultRetention = 24 * time.Hour

// RedisStorage provides Redis-backed persistence for metrics history.
// Each metric is a sorted set keyed by timestamp so range queries and
// retention trims stay cheap.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage creates a new Redis storage backend. retention bounds how
// long data points are kept; zero or negative means the default.
// Returns an error if the connection fails.
func NewRedisStorage(url string, retention time.Duration) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	if retention <= 0 {
		retention = defaultRetention
	}

	return &RedisStorage{
		client: client,
		prefix: "scrutineer:metrics:",
		ttl:    retention,
	}, nil
}

// encodeMember renders a data point as a sorted-set member. The timestamp
// prefix keeps members unique, so two buckets with the same value do not
// collapse into one entry.
func encodeMember(dp DataPoint) string {
	return strconv.FormatInt(dp.Timestamp.Unix(), 10) + ":" +
		strconv.FormatFloat(dp.Value, 'f', -1, 64)
}

// decodeMember parses a sorted-set member back into a value.
func decodeMember(member string) (float64, error) {
	_, raw, found := strings.Cut(member, ":")
	if !found {
		return 0, fmt.Errorf("malformed member %q", member)
	}
	return strconv.ParseFloat(raw, 64)
}

// SaveDataPoint saves a single data point and trims entries older than the
// retention window.
func (rs *RedisStorage) SaveDataPoint(ctx context.Context, metric string, dp DataPoint) error {
	key := rs.prefix + metric

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(dp.Timestamp.Unix()),
		Member: encodeMember(dp),
	})
	pipe.ZRemRangeByScore(ctx, key, "-inf",
		strconv.FormatInt(time.Now().Add(-rs.ttl).Unix(), 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving data point: %w", err)
	}
	return nil
}

// SaveBatch saves multiple data points in a single round trip.
func (rs *RedisStorage) SaveBatch(ctx context.Context, metric string, dataPoints []DataPoint) error {
	if len(dataPoints) == 0 {
		return nil
	}

	key := rs.prefix + metric

	members := make([]redis.Z, len(dataPoints))
	for i, dp := range dataPoints {
		members[i] = redis.Z{
			Score:  float64(dp.Timestamp.Unix()),
			Member: encodeMember(dp),
		}
	}

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByScore(ctx, key, "-inf",
		strconv.FormatInt(time.Now().Add(-rs.ttl).Unix(), 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving batch: %w", err)
	}
	return nil
}

// LoadHistory loads the data points recorded since the given time.
func (rs *RedisStorage) LoadHistory(ctx context.Context, metric string, since time.Time) ([]DataPoint, error) {
	key := rs.prefix + metric

	results, err := rs.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	dataPoints := make([]DataPoint, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		value, err := decodeMember(member)
		if err != nil {
			// Skip entries written by older encodings.
			continue
		}

		dataPoints = append(dataPoints, DataPoint{
			Timestamp: time.Unix(int64(z.Score), 0),
			Value:     value,
		})
	}

	return dataPoints, nil
}

// GetMetricNames returns all metric names stored in Redis.
func (rs *RedisStorage) GetMetricNames(ctx context.Context) ([]string, error) {
	keys, err := rs.client.Keys(ctx, rs.prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("getting metric names: %w", err)
	}

	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = strings.TrimPrefix(key, rs.prefix)
	}
	return names, nil
}

// DeleteMetric deletes all data for a specific metric.
func (rs *RedisStorage) DeleteMetric(ctx context.Context, metric string) error {
	if err := rs.client.Del(ctx, rs.prefix+metric).Err(); err != nil {
		return fmt.Errorf("deleting metric: %w", err)
	}
	return nil
}

// SetTTL sets the retention window for subsequent saves.
func (rs *RedisStorage) SetTTL(ttl time.Duration) {
	rs.ttl = ttl
}

// GetStats returns storage statistics.
func (rs *RedisStorage) GetStats(ctx context.Context) (map[string]any, error) {
	keys, err := rs.client.Keys(ctx, rs.prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("counting metrics: %w", err)
	}

	return map[string]any{
		"total_metrics":   len(keys),
		"prefix":          rs.prefix,
		"retention_hours": rs.ttl.Hours(),
	}, nil
}

// Close closes the Redis connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
