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

// Package main is the entry point for the SupportFlow support service.
//
// The service mediates customer-support conversations:
// - Grounds customer queries against the policy knowledge base and order state
// - Routes prompts through an LLM provider chain (OpenAI, Anthropic, Bedrock)
// - Validates provider output against a strict structured-response contract
// - Runs a human-approval escalation workflow for actions with side effects
// - Keeps an append-only, PII-masked audit trail of every conversation turn
//
// Usage:
//
//	./supportd
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string
//	REDIS_URL - embedding cache (optional)
//	AGENT_TOKEN / ADMIN_TOKEN - shared secrets for agent and admin routes
//	OPENAI_API_KEY - OpenAI API key (optional)
//	ANTHROPIC_API_KEY - Anthropic API key (optional)
//	BEDROCK_REGION - AWS Bedrock region (optional)
package main

import (
	"supportflow/platform/support"
)

func main() {
	support.Run()
}
