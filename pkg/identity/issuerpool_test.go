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
	"encoding/base64"
	"errors"
	"testing"

	"github.com/pubmint/pubmint/pkg/registry"
)

// tokenWithClaims builds the compact JWS shape extractIssuer expects. Only
// the claims segment matters; routing never checks signatures.
func tokenWithClaims(claims string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(claims))
	return header + "." + payload + ".unsigned"
}

type stubPrincipal struct {
	name string
}

func (p stubPrincipal) Name(_ context.Context) string { return p.name }

func (p stubPrincipal) Issuer() string { return "https://ci.example.com" }

func (p stubPrincipal) PublisherKind() registry.Kind { return registry.KindGitHub }

func (p stubPrincipal) LookupKey() string { return p.name }

func (p stubPrincipal) MatchesPublisher(_ registry.Publisher) bool { return false }

type stubIssuer struct {
	url       string
	principal Principal
	err       error
}

func (i stubIssuer) Match(_ context.Context, url string) bool {
	return url == i.url
}

func (i stubIssuer) Authenticate(context.Context, string) (Principal, error) {
	if i.err != nil {
		return nil, i.err
	}
	return i.principal, nil
}

func TestIssuerPool(t *testing.T) {
	var (
		ciPrincipal    = stubPrincipal{name: "repo:octo/widget"}
		buildPrincipal = stubPrincipal{name: "project_path:group/widget"}

		ciIssuer    = stubIssuer{url: "https://ci.example.com", principal: ciPrincipal}
		buildIssuer = stubIssuer{url: "https://build.example.com", principal: buildPrincipal}
		// Matches the ci URL but rejects every token.
		brokenIssuer = stubIssuer{url: "https://ci.example.com", err: errors.New("key mismatch")}

		ciToken    = tokenWithClaims(`{"iss":"https://ci.example.com"}`)
		buildToken = tokenWithClaims(`{"iss":"https://build.example.com"}`)
		strayToken = tokenWithClaims(`{"iss":"https://stray.example.com"}`)
	)

	tests := map[string]struct {
		pool              IssuerPool
		token             string
		wantPrincipal     Principal
		wantErr           bool
		wantUnknownIssuer bool
	}{
		"token routes to the issuer matching its iss claim": {
			pool:          IssuerPool{ciIssuer, buildIssuer},
			token:         ciToken,
			wantPrincipal: ciPrincipal,
		},
		"routing follows the claim, not pool order": {
			pool:          IssuerPool{ciIssuer, buildIssuer},
			token:         buildToken,
			wantPrincipal: buildPrincipal,
		},
		"unconfigured issuer is reported as unknown": {
			pool:              IssuerPool{ciIssuer, buildIssuer},
			token:             strayToken,
			wantErr:           true,
			wantUnknownIssuer: true,
		},
		"empty pool knows no issuers": {
			pool:              IssuerPool{},
			token:             ciToken,
			wantErr:           true,
			wantUnknownIssuer: true,
		},
		"authentication failure is not an unknown issuer": {
			pool:    IssuerPool{brokenIssuer},
			token:   ciToken,
			wantErr: true,
		},
		"first matching issuer wins": {
			pool:          IssuerPool{ciIssuer, brokenIssuer},
			token:         ciToken,
			wantPrincipal: ciPrincipal,
		},
		"matched issuer's rejection is final": {
			pool:    IssuerPool{brokenIssuer, ciIssuer},
			token:   ciToken,
			wantErr: true,
		},
		"malformed token never reaches an issuer": {
			pool:    IssuerPool{ciIssuer},
			token:   "not-a-jwt",
			wantErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			principal, err := test.pool.Authenticate(context.Background(), test.token)
			if test.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				if got := errors.Is(err, ErrUnknownIssuer); got != test.wantUnknownIssuer {
					t.Errorf("errors.Is(err, ErrUnknownIssuer) = %v on %v, want %v", got, err, test.wantUnknownIssuer)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() = %v", err)
			}
			if principal != test.wantPrincipal {
				t.Errorf("got principal %v, want %v", principal, test.wantPrincipal)
			}
		})
	}
}

func TestExtractIssuer(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

	tests := map[string]struct {
		token   string
		wantURL string
		wantErr bool
	}{
		"issuer claim present": {
			token:   tokenWithClaims(`{"iss":"https://ci.example.com"}`),
			wantURL: "https://ci.example.com",
		},
		"missing iss claim decodes to empty": {
			// The pool then fails the lookup with ErrUnknownIssuer.
			token:   tokenWithClaims(`{"aud":"pubmint"}`),
			wantURL: "",
		},
		"missing signature segment": {
			token:   header + "." + base64.RawURLEncoding.EncodeToString([]byte(`{"iss":"x"}`)),
			wantErr: true,
		},
		"too many segments": {
			token:   tokenWithClaims(`{"iss":"x"}`) + ".extra",
			wantErr: true,
		},
		"claims segment is not base64url": {
			token:   header + ".???.unsigned",
			wantErr: true,
		},
		"claims segment is not JSON": {
			token:   tokenWithClaims(`}{`),
			wantErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			gotURL, err := extractIssuer(test.token)
			if test.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got issuer %q", gotURL)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if gotURL != test.wantURL {
				t.Errorf("extractIssuer() = %q, want %q", gotURL, test.wantURL)
			}
		})
	}
}
