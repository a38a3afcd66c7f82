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

package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/pubmint/pubmint/pkg/identity"
	"github.com/pubmint/pubmint/pkg/registry"
	"github.com/pubmint/pubmint/pkg/token"
)

const testIssuerURL = "https://ci.example.com"

// tokenFor builds a decodable JWT shell carrying only the iss claim, enough
// for pool routing. Tests fake the provider, so no signature is needed.
func tokenFor(t *testing.T, issuer string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"iss": issuer})
	if err != nil {
		t.Fatal(err)
	}
	return "e30." + base64.RawURLEncoding.EncodeToString(payload) + ".e30"
}

type fakeIssuer struct {
	url       string
	principal identity.Principal
	err       error
}

func (f *fakeIssuer) Match(_ context.Context, url string) bool {
	return url == f.url
}

func (f *fakeIssuer) Authenticate(_ context.Context, _ string) (identity.Principal, error) {
	return f.principal, f.err
}

// ciPrincipal stands in for a provider-verified identity. Claim semantics
// are the provider packages' concern; here matching is whatever the test
// says it is.
type ciPrincipal struct {
	subject string
	lookup  string
	matches func(registry.Publisher) bool
}

func (p *ciPrincipal) Name(_ context.Context) string { return p.subject }

func (p *ciPrincipal) Issuer() string { return testIssuerURL }

func (p *ciPrincipal) PublisherKind() registry.Kind { return registry.KindGitHub }

func (p *ciPrincipal) LookupKey() string { return p.lookup }

func (p *ciPrincipal) MatchesPublisher(pub registry.Publisher) bool {
	if p.matches == nil {
		return true
	}
	return p.matches(pub)
}

func newTestMinter(t *testing.T) *token.Minter {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "signing.key")
	if err := os.WriteFile(keyPath, []byte("super-secret-signing-key-of-32-bytes!!"), 0600); err != nil {
		t.Fatal(err)
	}
	m, err := token.NewMinter(keyPath, "pubmint", token.DefaultPrefix, token.DefaultTTL)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newTestService(t *testing.T, store registry.Store, principal identity.Principal) *Service {
	t.Helper()
	pool := identity.IssuerPool{&fakeIssuer{url: testIssuerURL, principal: principal}}
	return NewService(pool, store, newTestMinter(t), true)
}

// githubPublisher returns an active publisher bound to a fresh project,
// which is registered in store. The returned project carries the binding.
func githubPublisher(t *testing.T, store registry.Store, projectName string) (registry.Publisher, registry.Project) {
	t.Helper()
	project := registry.NewProject(projectName, "admin")
	if err := store.AddProject(context.Background(), project); err != nil {
		t.Fatal(err)
	}
	pub := registry.Publisher{
		Kind:        registry.KindGitHub,
		State:       registry.StateActive,
		ProjectID:   project.ID,
		ProjectName: projectName,
		GitHub: &registry.GitHubSpec{
			Repository:        "widget",
			RepositoryOwner:   "octo-org",
			RepositoryOwnerID: "42",
			WorkflowFilename:  "release.yml",
		},
	}
	if err := store.CreatePublisher(context.Background(), &pub); err != nil {
		t.Fatal(err)
	}
	return pub, project
}

func pendingPublisher(t *testing.T, store registry.Store, projectName, workflow string) registry.Publisher {
	t.Helper()
	pub := registry.Publisher{
		Kind:        registry.KindGitHub,
		State:       registry.StatePending,
		ProjectName: projectName,
		GitHub: &registry.GitHubSpec{
			Repository:        "widget",
			RepositoryOwner:   "octo-org",
			RepositoryOwnerID: "42",
			WorkflowFilename:  workflow,
		},
	}
	if err := store.CreatePublisher(context.Background(), &pub); err != nil {
		t.Fatal(err)
	}
	return pub
}

func exchangeKinds(t *testing.T, err error) []string {
	t.Helper()
	var exErr *Error
	if !errors.As(err, &exErr) {
		t.Fatalf("expected an exchange error, got %v", err)
	}
	return exErr.Kinds()
}

func TestExchangeDisabled(t *testing.T) {
	store := registry.NewMemoryStore()
	githubPublisher(t, store, "widget")
	principal := &ciPrincipal{subject: "repo:octo-org/widget", lookup: "42"}
	pool := identity.IssuerPool{&fakeIssuer{url: testIssuerURL, principal: principal}}
	svc := NewService(pool, store, newTestMinter(t), false)

	// The kill switch fires before verification: even a token that would
	// never authenticate reports not-enabled.
	_, err := svc.Exchange(context.Background(), "garbage")
	if got, want := exchangeKinds(t, err), []string{string(KindNotEnabled)}; !cmp.Equal(got, want) {
		t.Errorf("got kinds %v, expected %v", got, want)
	}
}

func TestExchangeFailureKinds(t *testing.T) {
	tests := map[string]struct {
		Token     string
		IssuerErr error
		WantKinds []string
	}{
		`malformed token`: {
			Token:     "not-a-jwt",
			WantKinds: []string{string(KindInvalidToken)},
		},
		`unrecognized issuer`: {
			Token:     "", // replaced below with a token for another issuer
			WantKinds: []string{string(KindUnknownIssuer)},
		},
		`provider rejects token`: {
			IssuerErr: errors.New("oidc: token is expired"),
			WantKinds: []string{string(KindInvalidToken)},
		},
		`no matching publisher`: {
			WantKinds: []string{string(KindInvalidPublisher), string(KindInvalidPendingPublisher)},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			store := registry.NewMemoryStore()
			principal := &ciPrincipal{
				subject: "repo:octo-org/widget",
				lookup:  "42",
				matches: func(registry.Publisher) bool { return false },
			}
			pool := identity.IssuerPool{&fakeIssuer{url: testIssuerURL, principal: principal, err: test.IssuerErr}}
			svc := NewService(pool, store, newTestMinter(t), true)

			raw := test.Token
			switch name {
			case `unrecognized issuer`:
				raw = tokenFor(t, "https://rogue.example.com")
			case `provider rejects token`, `no matching publisher`:
				raw = tokenFor(t, testIssuerURL)
			}

			_, err := svc.Exchange(context.Background(), raw)
			if got := exchangeKinds(t, err); !cmp.Equal(got, test.WantKinds) {
				t.Errorf("got kinds %v, expected %v", got, test.WantKinds)
			}
		})
	}
}

func TestExchangeUnknownIssuerIsNotASignatureFailure(t *testing.T) {
	svc := newTestService(t, registry.NewMemoryStore(), &ciPrincipal{lookup: "42"})

	_, err := svc.Exchange(context.Background(), tokenFor(t, "https://rogue.example.com"))
	var exErr *Error
	if !errors.As(err, &exErr) {
		t.Fatalf("expected an exchange error, got %v", err)
	}
	if got := exErr.Kinds(); len(got) != 1 || got[0] != string(KindUnknownIssuer) {
		t.Errorf("got kinds %v, expected exactly unknown-issuer", got)
	}
	for _, cause := range exErr.Causes {
		if strings.Contains(cause.Description, "signature") {
			t.Errorf("unknown issuer must not surface as a signature failure: %q", cause.Description)
		}
	}
}

func TestExchangeMintsForActivePublisher(t *testing.T) {
	store := registry.NewMemoryStore()
	_, project := githubPublisher(t, store, "widget")
	svc := newTestService(t, store, &ciPrincipal{subject: "repo:octo-org/widget", lookup: "42"})

	result, err := svc.Exchange(context.Background(), tokenFor(t, testIssuerURL))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(result.Token, token.DefaultPrefix) {
		t.Errorf("credential %q does not carry the %q prefix", result.Token, token.DefaultPrefix)
	}
	if result.TokenID == "" {
		t.Error("expected a token ID")
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
	if len(result.Projects) != 1 || result.Projects[0].ID != project.ID {
		t.Errorf("expected scope [%s], got %v", project.ID, result.Projects)
	}
	if !result.Expires.After(time.Now()) {
		t.Errorf("expiry %s is not in the future", result.Expires)
	}

	claims, err := svc.minter.Verify(result.Token)
	if err != nil {
		t.Fatal(err)
	}
	wantScope := []token.ProjectScope{{ID: project.ID, Name: project.NormalizedName}}
	if d := cmp.Diff(wantScope, claims.Projects); d != "" {
		t.Errorf("unexpected credential scope (-want +got): %s", d)
	}
}

func TestExchangeScopesOneCredentialToAllMatches(t *testing.T) {
	store := registry.NewMemoryStore()
	_, first := githubPublisher(t, store, "widget")
	_, second := githubPublisher(t, store, "widget-cli")
	svc := newTestService(t, store, &ciPrincipal{subject: "repo:octo-org/widget", lookup: "42"})

	result, err := svc.Exchange(context.Background(), tokenFor(t, testIssuerURL))
	if err != nil {
		t.Fatal(err)
	}

	got := map[uuid.UUID]bool{}
	for _, project := range result.Projects {
		got[project.ID] = true
	}
	if len(got) != 2 || !got[first.ID] || !got[second.ID] {
		t.Errorf("expected one credential scoped to both projects, got %v", result.Projects)
	}
}

func TestExchangeDeduplicatesProjects(t *testing.T) {
	store := registry.NewMemoryStore()
	_, project := githubPublisher(t, store, "widget")

	// A second publisher bound to the same project, e.g. a second trusted
	// workflow.
	pub := registry.Publisher{
		Kind:        registry.KindGitHub,
		State:       registry.StateActive,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		GitHub: &registry.GitHubSpec{
			Repository:        "widget",
			RepositoryOwner:   "octo-org",
			RepositoryOwnerID: "42",
			WorkflowFilename:  "nightly.yml",
		},
	}
	if err := store.CreatePublisher(context.Background(), &pub); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t, store, &ciPrincipal{subject: "repo:octo-org/widget", lookup: "42"})
	result, err := svc.Exchange(context.Background(), tokenFor(t, testIssuerURL))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Projects) != 1 {
		t.Errorf("same project matched twice must be scoped once, got %v", result.Projects)
	}
}

func TestExchangePromotesPendingPublisher(t *testing.T) {
	store := registry.NewMemoryStore()
	pub := pendingPublisher(t, store, "Brand.New", "release.yml")
	svc := newTestService(t, store, &ciPrincipal{subject: "repo:octo-org/widget", lookup: "42"})

	result, err := svc.Exchange(context.Background(), tokenFor(t, testIssuerURL))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Projects) != 1 {
		t.Fatalf("expected one promoted project, got %v", result.Projects)
	}
	project := result.Projects[0]
	if project.Name != "Brand.New" || project.NormalizedName != "brand-new" {
		t.Errorf("got project %q (%q)", project.Name, project.NormalizedName)
	}
	if project.CreatedBy != "repo:octo-org/widget" {
		t.Errorf("promotion should attribute the project to the verified identity, got %q", project.CreatedBy)
	}

	promoted, err := store.GetPublisher(context.Background(), pub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if promoted.State != registry.StateActive {
		t.Errorf("publisher state is %s after promotion", promoted.State)
	}
	if promoted.ProjectID != project.ID {
		t.Errorf("publisher bound to %s, expected %s", promoted.ProjectID, project.ID)
	}
}

func TestExchangePromotionConflictDoesNotBlockOthers(t *testing.T) {
	store := registry.NewMemoryStore()
	_, project := githubPublisher(t, store, "widget")
	pendingPublisher(t, store, "Widget", "release.yml") // normalizes to the taken name

	svc := newTestService(t, store, &ciPrincipal{subject: "repo:octo-org/widget", lookup: "42"})
	result, err := svc.Exchange(context.Background(), tokenFor(t, testIssuerURL))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Projects) != 1 || result.Projects[0].ID != project.ID {
		t.Errorf("expected scope [%s], got %v", project.ID, result.Projects)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Code != KindNameConflict {
		t.Errorf("expected a name-conflict warning, got %v", result.Warnings)
	}
}

func TestExchangeAllPromotionsConflict(t *testing.T) {
	store := registry.NewMemoryStore()
	taken := registry.NewProject("widget", "admin")
	if err := store.AddProject(context.Background(), taken); err != nil {
		t.Fatal(err)
	}
	pendingPublisher(t, store, "Widget", "release.yml")

	svc := newTestService(t, store, &ciPrincipal{subject: "repo:octo-org/widget", lookup: "42"})
	_, err := svc.Exchange(context.Background(), tokenFor(t, testIssuerURL))
	if got, want := exchangeKinds(t, err), []string{string(KindNameConflict)}; !cmp.Equal(got, want) {
		t.Errorf("got kinds %v, expected %v", got, want)
	}
}

// racingStore promotes the publisher itself right before the service's own
// attempt, standing in for a concurrent exchange winning the race.
type racingStore struct {
	registry.Store
	raced bool
}

func (r *racingStore) Promote(ctx context.Context, publisherID uuid.UUID, project registry.Project) (registry.Project, error) {
	if !r.raced {
		r.raced = true
		racer := registry.NewProject(project.Name, "the-other-exchange")
		if _, err := r.Store.Promote(ctx, publisherID, racer); err != nil {
			return registry.Project{}, err
		}
	}
	return r.Store.Promote(ctx, publisherID, project)
}

func TestExchangeLostPromotionRaceStillMints(t *testing.T) {
	store := registry.NewMemoryStore()
	pendingPublisher(t, store, "Brand.New", "release.yml")

	svc := newTestService(t, &racingStore{Store: store}, &ciPrincipal{subject: "repo:octo-org/widget", lookup: "42"})
	result, err := svc.Exchange(context.Background(), tokenFor(t, testIssuerURL))
	if err != nil {
		t.Fatal(err)
	}

	// The credential is scoped to the project the winning exchange created;
	// no duplicate project may exist.
	if len(result.Projects) != 1 || result.Projects[0].CreatedBy != "the-other-exchange" {
		t.Errorf("expected the racer's project in scope, got %v", result.Projects)
	}
	projects, err := store.ListProjects(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 {
		t.Errorf("expected exactly one project after the race, got %d", len(projects))
	}
}
