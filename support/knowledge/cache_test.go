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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewEmbeddingCache("redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()

	_, ok := cache.Get(ctx, "where is my order?")
	assert.False(t, ok)

	want := Vector{0.1, 0.2, 0.3}
	cache.Put(ctx, "where is my order?", want)

	got, ok := cache.Get(ctx, "where is my order?")
	require.True(t, ok)
	assert.Equal(t, want, got)

	// A different query has its own key.
	_, ok = cache.Get(ctx, "where is my refund?")
	assert.False(t, ok)
}

func TestEmbeddingCacheExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewEmbeddingCache("redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	cache.Put(ctx, "query", Vector{1})

	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, "query")
	assert.False(t, ok)
}

func TestEmbeddingCacheFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewEmbeddingCache("redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	mr.Close()

	ctx := context.Background()
	_, ok := cache.Get(ctx, "query")
	assert.False(t, ok)
	cache.Put(ctx, "query", Vector{1})
}

func TestEmbeddingCacheNilSafe(t *testing.T) {
	var cache *EmbeddingCache

	_, ok := cache.Get(context.Background(), "query")
	assert.False(t, ok)
	cache.Put(context.Background(), "query", Vector{1})
	assert.NoError(t, cache.Close())
}

func TestNewEmbeddingCacheBadURL(t *testing.T) {
	_, err := NewEmbeddingCache("not-a-url", time.Minute)
	assert.Error(t, err)
}

func TestOpenAIEmbedderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.25,0.125]}]}`))
	}))
	defer srv.Close()

	embedder := NewOpenAIEmbedder(srv.URL, "test-key", "")
	vec, err := embedder.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, Vector{0.5, 0.25, 0.125}, vec)
	assert.Equal(t, 1536, embedder.Dims())
}

func TestOpenAIEmbedderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	embedder := NewOpenAIEmbedder(srv.URL, "test-key", "")
	_, err := embedder.Embed(context.Background(), "hello")
	assert.Error(t, err)
}
