package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

// Redis is a Registry shared between processes. Keys are namespaced with a
// prefix so that several simulations can share one server:
//
//	<prefix>:instance:<ref>  list of locations
//	<prefix>:dims:<kernel>   "d1,d2,..."
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis registry. ttl of zero keeps entries until
// deregistered.
func NewRedis(opts *redis.Options, prefix string, ttl time.Duration) (*Redis, error) {
	if prefix == "" {
		return nil, fmt.Errorf("key prefix cannot be empty")
	}
	return &Redis{rdb: redis.NewClient(opts), prefix: prefix, ttl: ttl}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *Redis) instanceKey(i ref.Reference) string { return r.prefix + ":instance:" + i.String() }
func (r *Redis) dimsKey(k ref.Reference) string     { return r.prefix + ":dims:" + k.String() }

func (r *Redis) Register(ctx context.Context, instance ref.Reference, locations []string) error {
	key := r.instanceKey(instance)
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(locations) > 0 {
		vals := make([]any, len(locations))
		for i, l := range locations {
			vals[i] = l
		}
		pipe.RPush(ctx, key, vals...)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register %s: %w", instance, err)
	}
	zap.L().Info("instance registered", zap.Stringer("instance", instance), zap.Strings("locations", locations), zap.String("backend", "redis"))
	return nil
}

func (r *Redis) Deregister(ctx context.Context, instance ref.Reference) error {
	n, err := r.rdb.Del(ctx, r.instanceKey(instance)).Result()
	if err != nil {
		return fmt.Errorf("failed to deregister %s: %w", instance, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", instance, ErrNotRegistered)
	}
	return nil
}

func (r *Redis) Locations(ctx context.Context, instance ref.Reference) ([]string, error) {
	locs, err := r.rdb.LRange(ctx, r.instanceKey(instance), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read locations of %s: %w", instance, err)
	}
	if len(locs) == 0 {
		return nil, fmt.Errorf("%s: %w", instance, ErrNotRegistered)
	}
	return locs, nil
}

func (r *Redis) SetDims(ctx context.Context, kernel ref.Reference, dims []int) error {
	if err := validateDims(kernel, dims); err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.dimsKey(kernel), formatDims(dims), 0).Err(); err != nil {
		return fmt.Errorf("failed to write dims of %s: %w", kernel, err)
	}
	return nil
}

func (r *Redis) Dims(ctx context.Context, kernel ref.Reference) ([]int, error) {
	s, err := r.rdb.Get(ctx, r.dimsKey(kernel)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("dims of %s: %w", kernel, ErrNotRegistered)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dims of %s: %w", kernel, err)
	}
	return parseDims(s)
}
