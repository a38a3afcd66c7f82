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
	"fmt"
)

// IssuerPool fans a token out to the configured issuer that recognizes its
// iss claim. When issuer URL patterns overlap, the first match wins.
type IssuerPool []Issuer

// Authenticate reads the unverified iss claim, hands the token to the first
// issuer whose Match accepts that URL, and returns the issuer's verdict.
// Tokens no issuer claims fail with ErrUnknownIssuer.
func (p IssuerPool) Authenticate(ctx context.Context, token string) (Principal, error) {
	url, err := extractIssuer(token)
	if err != nil {
		return nil, err
	}

	for _, issuer := range p {
		if issuer.Match(ctx, url) {
			return issuer.Authenticate(ctx, token)
		}
	}
	return nil, fmt.Errorf("%w: no configured provider for %q", ErrUnknownIssuer, url)
}
