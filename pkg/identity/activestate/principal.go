// Copyright 2024 The pubmint Authors.
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

package activestate

import (
	"context"
	"errors"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pubmint/pubmint/pkg/identity"
	"github.com/pubmint/pubmint/pkg/registry"
)

type buildPrincipal struct {
	// Subject matches the 'sub' claim from the OIDC ID token, in the form
	// org:ORGANIZATION:project:PROJECT
	subject string

	// OIDC Issuer URL. Matches 'iss' claim from ID token
	issuer string

	// URL name of the organization the build runs for
	organization string

	// URL name of the project being built
	project string

	// Username of the actor that triggered the build (mutable)
	actor string

	// Stable ID of the actor
	actorID string
}

func BuildPrincipalFromIDToken(_ context.Context, token *oidc.IDToken) (identity.Principal, error) {
	var claims struct {
		Organization string `json:"organization"`
		Project      string `json:"project"`
		Actor        string `json:"actor"`
		ActorID      string `json:"actor_id"`
	}

	if err := token.Claims(&claims); err != nil {
		return nil, err
	}

	if claims.Organization == "" {
		return nil, errors.New("missing organization claim in ID token")
	}

	if claims.Project == "" {
		return nil, errors.New("missing project claim in ID token")
	}

	if claims.Actor == "" {
		return nil, errors.New("missing actor claim in ID token")
	}

	if claims.ActorID == "" {
		return nil, errors.New("missing actor_id claim in ID token")
	}

	return &buildPrincipal{
		subject:      token.Subject,
		issuer:       token.Issuer,
		organization: claims.Organization,
		project:      claims.Project,
		actor:        claims.Actor,
		actorID:      claims.ActorID,
	}, nil
}

func (p buildPrincipal) Name(_ context.Context) string {
	return p.subject
}

func (p buildPrincipal) Issuer() string {
	return p.issuer
}

func (p buildPrincipal) PublisherKind() registry.Kind {
	return registry.KindActiveState
}

func (p buildPrincipal) LookupKey() string {
	return p.organization
}

func (p buildPrincipal) MatchesPublisher(pub registry.Publisher) bool {
	spec := pub.ActiveState
	if spec == nil {
		return false
	}

	if spec.Organization != p.organization {
		return false
	}

	if spec.Project != p.project {
		return false
	}

	// The actor is matched on the stable ID; the username is mutable and
	// kept for display only.
	if spec.ActorID != p.actorID {
		return false
	}

	return true
}
