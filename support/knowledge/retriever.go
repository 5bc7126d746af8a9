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
	"fmt"
	"log"
	"sort"
	"strings"
)

// maxResults caps how many entries a search returns.
const maxResults = 3

// Entry is one knowledge base article.
type Entry struct {
	ID        string `yaml:"id" json:"id"`
	Title     string `yaml:"title" json:"title"`
	Content   string `yaml:"content" json:"content"`
	Embedding Vector `yaml:"-" json:"-"`
}

// ScoredEntry is an entry with its relevance score for a query.
type ScoredEntry struct {
	Entry
	Score float64 `json:"score"`
}

// Retriever ranks knowledge base entries against customer queries. With an
// embedder it uses cosine similarity over entry embeddings, with an optional
// Redis cache in front of the embedding call. Without one, or when embedding
// fails, it silently falls back to keyword scoring.
type Retriever struct {
	entries  []Entry
	embedder Embedder
	cache    *EmbeddingCache
}

// NewRetriever creates a retriever over entries. embedder and cache may both
// be nil.
func NewRetriever(entries []Entry, embedder Embedder, cache *EmbeddingCache) *Retriever {
	return &Retriever{entries: entries, embedder: embedder, cache: cache}
}

// Entries returns the indexed knowledge base entries.
func (r *Retriever) Entries() []Entry {
	return r.entries
}

// BuildIndex embeds every entry as "Title: Content". An embedding failure
// leaves the failed entry without a vector and is returned so the caller can
// decide whether to proceed on keyword fallback.
func (r *Retriever) BuildIndex(ctx context.Context) error {
	if r.embedder == nil {
		return nil
	}
	for i := range r.entries {
		text := fmt.Sprintf("%s: %s", r.entries[i].Title, r.entries[i].Content)
		vec, err := r.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to embed entry %s: %w", r.entries[i].ID, err)
		}
		r.entries[i].Embedding = vec
	}
	log.Printf("Knowledge base index built: %d entries embedded", len(r.entries))
	return nil
}

// Search returns up to 3 entries relevant to query, best first. Ties keep
// knowledge base order. The keyword path drops zero-score entries; the
// vector path keeps them so partially-indexed knowledge bases still rank.
func (r *Retriever) Search(ctx context.Context, query string) []ScoredEntry {
	if r.embedder != nil {
		if results, ok := r.vectorSearch(ctx, query); ok {
			return results
		}
	}
	return r.keywordSearch(query)
}

func (r *Retriever) vectorSearch(ctx context.Context, query string) ([]ScoredEntry, bool) {
	queryVec, ok := r.cache.Get(ctx, query)
	if !ok {
		vec, err := r.embedder.Embed(ctx, query)
		if err != nil {
			log.Printf("Warning: query embedding failed, using keyword search: %v", err)
			return nil, false
		}
		queryVec = vec
		r.cache.Put(ctx, query, queryVec)
	}

	var scored []ScoredEntry
	for _, entry := range r.entries {
		// An entry that was never embedded scores zero but stays ranked.
		var score float64
		if len(entry.Embedding) > 0 {
			score = CosineSimilarity(queryVec, entry.Embedding)
		}
		scored = append(scored, ScoredEntry{Entry: entry, Score: score})
	}
	return top(scored), true
}

// keywordSearch scores each entry by case-insensitive containment of the
// whole query: a title match counts 2, a content match counts 1.
func (r *Retriever) keywordSearch(query string) []ScoredEntry {
	queryLower := strings.ToLower(query)

	var scored []ScoredEntry
	for _, entry := range r.entries {
		var score float64
		if strings.Contains(strings.ToLower(entry.Title), queryLower) {
			score += 2
		}
		if strings.Contains(strings.ToLower(entry.Content), queryLower) {
			score++
		}
		if score > 0 {
			scored = append(scored, ScoredEntry{Entry: entry, Score: score})
		}
	}
	return top(scored)
}

func top(scored []ScoredEntry) []ScoredEntry {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored
}
