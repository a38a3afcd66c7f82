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

package base

import (
	"context"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		description string
		issuerURL   string
		url         string
		expected    bool
	}{
		{
			description: "standard url",
			issuerURL:   "https://gitlab.com",
			url:         "https://gitlab.com",
			expected:    true,
		}, {
			description: "url doesn't match",
			issuerURL:   "https://gitlab.com",
			url:         "https://gitlab.example.com",
		}, {
			description: "valid wildcard",
			issuerURL:   "https://oidc.*.example.com",
			url:         "https://oidc.build-cluster.example.com",
			expected:    true,
		}, {
			description: "wildcard needs a segment to consume",
			issuerURL:   "https://oidc.*.example.com",
			url:         "https://oidc.example.com",
		}, {
			description: "wildcard match is anchored",
			issuerURL:   "https://oidc.*.example.com",
			url:         "https://oidc.a.example.com.attacker.net",
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			base := Issuer(test.issuerURL)
			matched := base.Match(context.Background(), test.url)
			if matched != test.expected {
				t.Fatalf("expected %v got %v", test.expected, matched)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	issuer := Issuer("https://gitlab.com")
	if _, err := issuer.Authenticate(context.Background(), "token"); err == nil {
		t.Fatal("expected error on authenticate, BaseIssuer shouldn't implement Authenticate")
	}
}
