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

package registry

// Principal is a provider-verified CI identity that can be checked against
// registry records. The identity provider packages implement it; each
// provider owns the claim semantics for its own kind.
type Principal interface {
	// PublisherKind tags the provider schema the identity was verified
	// under.
	PublisherKind() Kind

	// LookupKey is the stable key used to prefilter registry reads. It must
	// be derived from a claim the full match also requires equality on, so
	// the prefilter can never exclude a record that would match.
	LookupKey() string

	// MatchesPublisher reports whether the identity satisfies every claim
	// constraint of pub. Optional constraints left unset on pub match any
	// token value.
	MatchesPublisher(pub Publisher) bool
}

// Match returns all publishers in pubs whose constraints are satisfied by
// p. Intentionally many-to-many: one identity may publish several projects,
// and one project may trust several identities. Zero matches is a normal
// outcome, not an error.
func Match(p Principal, pubs []Publisher) []Publisher {
	var matched []Publisher
	for _, pub := range pubs {
		if pub.Kind != p.PublisherKind() {
			continue
		}
		if p.MatchesPublisher(pub) {
			matched = append(matched, pub)
		}
	}
	return matched
}
