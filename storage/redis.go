package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/signflow-io/signflow/types"
)

const (
	definitionPrefix = "signflow:definition:"
	statePrefix      = "signflow:state:"
)

// ErrNotFound is returned when a requested resource is not found.
var ErrNotFound = errors.New("resource not found")

// RedisStorage is a Redis-backed implementation of the Storage interface,
// for engines whose workflows must survive process restarts.
type RedisStorage struct {
	client *redis.Client
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
}

// NewRedisStorage creates a new RedisStorage instance and verifies the
// connection with a ping.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStorage{client: client}, nil
}

// withContextError handles context cancellation for operations that only return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// saveToRedis saves a value under the given key prefix and ID.
func (s *RedisStorage) saveToRedis(ctx context.Context, prefix, id string, value interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s%s: %v", prefix, id, err)
		}
		key := prefix + id
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

// getFromRedis retrieves and unmarshals a value under the given key prefix and ID.
func getFromRedis[T any](ctx context.Context, client *redis.Client, prefix, id string) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		key := prefix + id
		data, err := client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return zero, fmt.Errorf("%w: key=%s", ErrNotFound, key)
		} else if err != nil {
			return zero, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}

		var result T
		if err := json.Unmarshal(data, &result); err != nil {
			return zero, fmt.Errorf("failed to unmarshal %s: %v", key, err)
		}
		return result, nil
	})
}

// SaveDefinition saves a workflow definition to Redis.
func (s *RedisStorage) SaveDefinition(ctx context.Context, def types.Definition) error {
	return s.saveToRedis(ctx, definitionPrefix, def.ID, def)
}

// GetDefinition retrieves a workflow definition from Redis.
func (s *RedisStorage) GetDefinition(ctx context.Context, id string) (types.Definition, error) {
	return getFromRedis[types.Definition](ctx, s.client, definitionPrefix, id)
}

// SaveState saves a workflow instance's state to Redis.
func (s *RedisStorage) SaveState(ctx context.Context, st types.WorkflowState) error {
	return s.saveToRedis(ctx, statePrefix, st.WorkflowID, st)
}

// GetState retrieves a workflow instance's state from Redis.
func (s *RedisStorage) GetState(ctx context.Context, workflowID string) (types.WorkflowState, error) {
	return getFromRedis[types.WorkflowState](ctx, s.client, statePrefix, workflowID)
}

// SaveDefinitions saves multiple definitions to Redis using pipelining.
func (s *RedisStorage) SaveDefinitions(ctx context.Context, defs []types.Definition) error {
	return withContextError(ctx, func() error {
		pipe := s.client.Pipeline()
		for _, def := range defs {
			data, err := json.Marshal(def)
			if err != nil {
				return fmt.Errorf("failed to marshal definition %s: %v", def.ID, err)
			}
			pipe.Set(ctx, definitionPrefix+def.ID, data, 0)
		}
		_, err := pipe.Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to execute pipeline for definitions: %v", err)
		}
		return nil
	})
}

// ClearTerminal removes states whose workflows have finished, failed, or
// been cancelled.
func (s *RedisStorage) ClearTerminal(ctx context.Context) error {
	return withContextError(ctx, func() error {
		keys, err := s.client.Keys(ctx, statePrefix+"*").Result()
		if err != nil {
			return fmt.Errorf("failed to scan state keys: %v", err)
		}

		if len(keys) == 0 {
			return nil
		}

		pipe := s.client.Pipeline()
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				return fmt.Errorf("failed to get %s: %v", key, err)
			}

			var st types.WorkflowState
			if err := json.Unmarshal(data, &st); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}

			if st.Status.Terminal() {
				pipe.Del(ctx, key)
			}
		}

		_, err = pipe.Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to execute pipeline for deletion: %v", err)
		}
		return nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
