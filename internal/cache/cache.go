/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Cache stores values that never change once written, such as committed
// registrations.
type Cache interface {
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get decodes the value under key into data. found is false on a miss.
	Get(ctx context.Context, key string, data interface{}) (found bool, err error)

	Delete(ctx context.Context, key string) error
}

// RedisCache keeps entries in Redis, fronted by an optional in-process TinyLFU cache.
type RedisCache struct {
	cache *cache.Cache
}

// New builds a RedisCache on client. A localSize of zero disables the
// in-process layer, which tests use to observe Redis directly.
func New(client redis.UniversalClient, localSize int, localTTL time.Duration) *RedisCache {
	opts := &cache.Options{Redis: client}
	if localSize > 0 {
		opts.LocalCache = cache.NewTinyLFU(localSize, localTTL)
	}
	return &RedisCache{cache: cache.New(opts)}
}

// Set stores data under key for ttl. The value is msgpack encoded by
// go-redis/cache and written to both layers.
//
// Parameters:
// - ctx context.Context: The context for the Redis call.
// - key string: The cache key.
// - data interface{}: The value to store.
// - ttl time.Duration: How long Redis keeps the entry.
//
// Returns:
// - error: An error if the value could not be encoded or written.
func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

// Get decodes the value under key into data, which must be a pointer.
// A miss is not an error: it returns false with a nil error.
//
// Parameters:
// - ctx context.Context: The context for the Redis call.
// - key string: The cache key.
// - data interface{}: A pointer the cached value is decoded into.
//
// Returns:
// - bool: True when the key was found and decoded.
// - error: An error if Redis failed or the value could not be decoded.
func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) (bool, error) {
	err := r.cache.Get(ctx, key, data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, key)
}
