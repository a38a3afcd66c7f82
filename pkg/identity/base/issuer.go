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

// Package base provides the issuer-URL matching shared by every provider
// package. Providers embed it and supply only their Authenticate.
package base

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/pubmint/pubmint/pkg/identity"
)

type baseIssuer struct {
	issuerURL string
	// pattern is non-nil when issuerURL carries a * wildcard, as
	// multi-tenant providers use (one issuer host per tenant).
	pattern *regexp.Regexp
}

func Issuer(issuerURL string) identity.Issuer {
	iss := &baseIssuer{issuerURL: issuerURL}
	if strings.Contains(issuerURL, "*") {
		iss.pattern = wildcardPattern(issuerURL)
	}
	return iss
}

// Authenticate on the base issuer always fails; every provider overrides it
// with its own claim handling.
func (i *baseIssuer) Authenticate(context.Context, string) (identity.Principal, error) {
	return nil, errors.New("issuer does not implement authentication")
}

// Match reports whether url is this issuer's URL. Dynamic routing decides
// nothing on its own: authentication still resolves the verifier from the
// trust configuration by the token's exact issuer.
func (i *baseIssuer) Match(_ context.Context, url string) bool {
	if url == i.issuerURL {
		return true
	}
	return i.pattern != nil && i.pattern.MatchString(url)
}

// wildcardPattern converts a URL template into an anchored regexp where each
// * stands for exactly one non-empty host or path segment.
func wildcardPattern(issuerURL string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(issuerURL)
	replaced := strings.ReplaceAll(quoted, regexp.QuoteMeta("*"), "[-_a-zA-Z0-9]+")
	return regexp.MustCompile("^" + replaced + "$")
}
