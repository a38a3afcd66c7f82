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

import (
	"context"

	"github.com/pubmint/pubmint/pkg/registry"
)

// Principal is a verified CI identity. Each provider package returns its own
// implementation carrying the provider's typed claims; the registry matching
// rules for that provider live on it.
type Principal interface {
	// Name is the subject of the OIDC ID token. It is recorded on audit
	// events and as the creator of projects born from pending publishers.
	Name(ctx context.Context) string

	// Issuer is the URL of the provider that verified this identity.
	Issuer() string

	// PublisherKind tags the registry schema this identity matches under.
	PublisherKind() registry.Kind

	// LookupKey is the stable registry prefilter key for this identity.
	LookupKey() string

	// MatchesPublisher reports whether the identity satisfies every claim
	// constraint of pub. Constraints left unset on pub match any value.
	MatchesPublisher(pub registry.Publisher) bool
}
