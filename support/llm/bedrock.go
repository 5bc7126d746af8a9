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
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockProvider implements Provider for AWS Bedrock using AWS SDK v2.
// Authentication uses AWS Signature V4 via the ambient IAM credentials.
// Only Anthropic-family model IDs are supported.
type BedrockProvider struct {
	client  *bedrockruntime.Client
	region  string
	model   string
	healthy bool
}

// NewBedrockProvider creates a Bedrock provider. Returns an error if AWS
// config loading fails - callers should handle this rather than silently
// falling back.
func NewBedrockProvider(region, model string) (*BedrockProvider, error) {
	if region == "" {
		region = "us-east-1"
	}
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	}
	if !isAnthropicModelID(model) {
		return nil, fmt.Errorf("unsupported bedrock model %q: only anthropic model IDs are supported", model)
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg)

	log.Printf("[Bedrock] Initialized AWS SDK provider (region: %s, model: %s)", region, model)
	return &BedrockProvider{
		client:  client,
		region:  region,
		model:   model,
		healthy: true,
	}, nil
}

func (p *BedrockProvider) Name() string {
	return "bedrock"
}

func (p *BedrockProvider) Healthy() bool {
	return p.healthy
}

func (p *BedrockProvider) Query(ctx context.Context, prompt string, options Options) (*Response, error) {
	start := time.Now()

	model := options.Model
	if model == "" {
		model = p.model
	}

	maxTokens := options.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	requestBody := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"temperature":       options.Temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if options.SystemPrompt != "" {
		requestBody["system"] = options.SystemPrompt
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		p.healthy = false
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}

	p.healthy = true

	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	content := ""
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}

	return &Response{
		Content:    content,
		Model:      model,
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
		Metadata: map[string]interface{}{
			"provider":          "bedrock",
			"region":            p.region,
			"prompt_tokens":     resp.Usage.InputTokens,
			"completion_tokens": resp.Usage.OutputTokens,
		},
		ResponseTime: time.Since(start),
	}, nil
}

// isAnthropicModelID reports whether a Bedrock model ID belongs to the
// anthropic family, accounting for inference profile prefixes (us., eu., apac.).
func isAnthropicModelID(modelID string) bool {
	id := modelID
	for _, prefix := range []string{"us.", "eu.", "apac."} {
		if strings.HasPrefix(id, prefix) {
			id = strings.TrimPrefix(id, prefix)
			break
		}
	}
	return strings.HasPrefix(id, "anthropic.")
}
