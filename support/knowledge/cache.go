// Copyright 2025 SupportFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// EmbeddingCache caches query embeddings in Redis so repeated questions do
// not pay a second provider round trip. Every cache failure fails open: the
// caller falls through to the embedding provider.
type EmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEmbeddingCache connects to Redis at redisURL (redis://host:port form).
func NewEmbeddingCache(redisURL string, ttl time.Duration) (*EmbeddingCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmbeddingCache{client: client, ttl: ttl}, nil
}

// Get returns the cached embedding for query, or ok=false on a miss or any
// Redis error.
func (c *EmbeddingCache) Get(ctx context.Context, query string) (Vector, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Warning: embedding cache read failed: %v (failing open)", err)
		}
		return nil, false
	}

	var vec Vector
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

// Put stores the embedding for query. Errors are logged and dropped.
func (c *EmbeddingCache) Put(ctx context.Context, query string, vec Vector) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(query), data, c.ttl).Err(); err != nil {
		log.Printf("Warning: embedding cache write failed: %v (failing open)", err)
	}
}

// Close closes the underlying Redis connection.
func (c *EmbeddingCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "kbembed:" + hex.EncodeToString(sum[:])
}
