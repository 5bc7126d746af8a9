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

package support

import "errors"

// Error taxonomy for the support platform. Handlers map these to HTTP
// status codes in writeError; everything else is a 500.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrProvider        = errors.New("llm provider unavailable")
	ErrProviderParse   = errors.New("llm response violates output contract")
	ErrAlreadyResolved = errors.New("escalation already resolved")
	ErrPersistence     = errors.New("persistence failure")
)
