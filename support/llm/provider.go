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

// Package llm provides the provider abstraction for chat-completion
// backends (OpenAI, Anthropic, AWS Bedrock) and a fallback-chain router.
package llm

import (
	"context"
	"time"
)

// Provider is the interface implemented by every chat-completion backend.
type Provider interface {
	Name() string
	Query(ctx context.Context, prompt string, options Options) (*Response, error)
	Healthy() bool
}

// Options contains options for LLM queries
type Options struct {
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
}

// Response represents a response from an LLM provider
type Response struct {
	Content      string                 `json:"content"`
	Model        string                 `json:"model"`
	TokensUsed   int                    `json:"tokens_used"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ResponseTime time.Duration          `json:"response_time"`
}
