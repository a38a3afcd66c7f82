// Copyright 2023 The pubmint Authors.
//
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

package identity

import "context"

// Issuer authenticates workload tokens from one OIDC identity provider.
// Implementations wrap the verifier for a single trusted issuer URL or a
// wildcard family of them.
type Issuer interface {
	// Match reports whether this issuer handles tokens whose unverified
	// iss claim is url.
	Match(ctx context.Context, url string) bool

	// Authenticate verifies the token's signature, audience, and expiry,
	// and extracts a typed Principal from its claims. A token that fails
	// verification or lacks a required claim returns an error.
	Authenticate(ctx context.Context, token string) (Principal, error)
}
