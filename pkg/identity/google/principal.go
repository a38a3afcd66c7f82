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

// Package google authenticates workloads that present Google-issued ID
// tokens, typically service accounts on Cloud Build or GCE.
package google

import (
	"context"
	"errors"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pubmint/pubmint/pkg/identity"
	"github.com/pubmint/pubmint/pkg/registry"
)

type workloadPrincipal struct {
	// Service account email. Google compares addresses case-insensitively.
	email string

	// Subject matches the 'sub' claim, the unique numeric account ID.
	// Stable even if the account is deleted and recreated with the same
	// address.
	subject string

	// OIDC Issuer URL. Matches 'iss' claim from ID token
	issuer string
}

func PrincipalFromIDToken(_ context.Context, token *oidc.IDToken) (identity.Principal, error) {
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}

	if err := token.Claims(&claims); err != nil {
		return nil, err
	}

	if claims.Email == "" {
		return nil, errors.New("missing email claim in ID token")
	}

	if !claims.EmailVerified {
		return nil, errors.New("email_verified claim was false")
	}

	if token.Subject == "" {
		return nil, errors.New("missing sub claim in ID token")
	}

	return &workloadPrincipal{
		email:   claims.Email,
		subject: token.Subject,
		issuer:  token.Issuer,
	}, nil
}

func (p workloadPrincipal) Name(_ context.Context) string {
	return p.email
}

func (p workloadPrincipal) Issuer() string {
	return p.issuer
}

func (p workloadPrincipal) PublisherKind() registry.Kind {
	return registry.KindGoogle
}

func (p workloadPrincipal) LookupKey() string {
	return strings.ToLower(p.email)
}

func (p workloadPrincipal) MatchesPublisher(pub registry.Publisher) bool {
	spec := pub.Google
	if spec == nil {
		return false
	}

	if !strings.EqualFold(spec.Email, p.email) {
		return false
	}

	// When the record pins the subject, a recreated account with the same
	// address must not match.
	if spec.Subject != "" && spec.Subject != p.subject {
		return false
	}

	return true
}
