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

package github

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pubmint/pubmint/pkg/identity"
)

func TestIssuer(t *testing.T) {
	ctx := context.Background()
	url := "https://token.actions.githubusercontent.com"
	issuer := Issuer(url)

	// test the Match function
	t.Run("match", func(t *testing.T) {
		if matches := issuer.Match(ctx, url); !matches {
			t.Fatal("expected url to match but it doesn't")
		}
		if matches := issuer.Match(ctx, "some-other-url"); matches {
			t.Fatal("expected match to fail but it didn't")
		}
	})

	t.Run("authenticate", func(t *testing.T) {
		token := &oidc.IDToken{
			Issuer:  "https://token.actions.githubusercontent.com",
			Subject: "repo:octo-org/widget:ref:refs/heads/main",
		}
		claims, err := json.Marshal(map[string]interface{}{
			"aud":                 "pubmint",
			"exp":                 0,
			"iss":                 "https://token.actions.githubusercontent.com",
			"sub":                 "repo:octo-org/widget:ref:refs/heads/main",
			"repository":          "octo-org/widget",
			"repository_owner":    "octo-org",
			"repository_owner_id": "42",
			"job_workflow_ref":    "octo-org/widget/.github/workflows/release.yml@refs/heads/main",
			"event_name":          "push",
			"ref":                 "refs/heads/main",
			"sha":                 "97cf7d4b7a3b0c9c23f2cb1a0c4b8e836dcd9f1c",
		})
		if err != nil {
			t.Fatal(err)
		}
		withClaims(token, claims)

		identity.Authorize = func(_ context.Context, _ string) (*oidc.IDToken, error) {
			return token, nil
		}
		principal, err := issuer.Authenticate(ctx, "token")
		if err != nil {
			t.Fatal(err)
		}

		if principal.Name(ctx) != "repo:octo-org/widget:ref:refs/heads/main" {
			t.Fatalf("got unexpected name %s", principal.Name(ctx))
		}
	})
}
