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

package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
)

// ErrNoProvider is returned when no provider is configured or every
// configured provider failed for a query.
var ErrNoProvider = errors.New("no LLM provider available")

// Config contains provider configuration for the router
type Config struct {
	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	BedrockRegion  string
	BedrockModel   string
}

// LoadConfig loads provider configuration from environment variables.
func LoadConfig() Config {
	config := Config{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel: os.Getenv("ANTHROPIC_MODEL"),
		BedrockRegion:  os.Getenv("BEDROCK_REGION"),
		BedrockModel:   os.Getenv("BEDROCK_MODEL"),
	}

	log.Printf("[LLM Config] Loaded provider configuration:")
	if config.OpenAIKey != "" {
		log.Printf("  - OpenAI: enabled")
	}
	if config.AnthropicKey != "" {
		log.Printf("  - Anthropic: enabled")
	}
	if config.BedrockRegion != "" {
		log.Printf("  - Bedrock: enabled (region: %s, model: %s)", config.BedrockRegion, config.BedrockModel)
	}

	return config
}

// Router routes a query through an ordered fallback chain of providers.
// The first provider to answer wins; a provider error moves on to the next.
// There is no retry against the same provider.
type Router struct {
	providers []Provider
}

// NewRouter creates a router from the configured providers, in fallback
// order: OpenAI, Anthropic, Bedrock.
func NewRouter(config Config) *Router {
	var providers []Provider

	if config.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(config.OpenAIKey, config.OpenAIModel))
	}
	if config.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(config.AnthropicKey, config.AnthropicModel))
	}
	if config.BedrockRegion != "" {
		bedrockProvider, err := NewBedrockProvider(config.BedrockRegion, config.BedrockModel)
		if err != nil {
			log.Printf("[Router] ERROR: Failed to initialize Bedrock provider: %v", err)
		} else {
			providers = append(providers, bedrockProvider)
		}
	}

	router := NewRouterWithProviders(providers...)
	router.logProviderStatus()
	return router
}

// NewRouterWithProviders creates a router over an explicit provider chain.
func NewRouterWithProviders(providers ...Provider) *Router {
	return &Router{providers: providers}
}

// Providers returns the names of the configured providers in chain order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Healthy reports whether at least one provider in the chain is healthy.
func (r *Router) Healthy() bool {
	for _, p := range r.providers {
		if p.Healthy() {
			return true
		}
	}
	return false
}

// Query tries each provider in chain order and returns the first success
// along with the name of the provider that answered. Context cancellation
// aborts the chain immediately.
func (r *Router) Query(ctx context.Context, prompt string, options Options) (*Response, string, error) {
	if len(r.providers) == 0 {
		return nil, "", ErrNoProvider
	}

	var lastErr error
	for _, provider := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		resp, err := provider.Query(ctx, prompt, options)
		if err != nil {
			log.Printf("[Router] provider %s failed: %v", provider.Name(), err)
			lastErr = err
			continue
		}
		return resp, provider.Name(), nil
	}

	return nil, "", fmt.Errorf("%w: all providers failed: %v", ErrNoProvider, lastErr)
}

func (r *Router) logProviderStatus() {
	if len(r.providers) == 0 {
		log.Printf("[Router] WARNING: No LLM providers configured - chat will serve fallback responses")
		return
	}
	log.Printf("[Router] Provider chain: %v", r.Providers())
}
