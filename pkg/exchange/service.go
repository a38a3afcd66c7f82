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

// Package exchange turns verified CI identities into short-lived upload
// credentials: authenticate the presented OIDC token, match it against the
// publisher registry, promote pending publishers, mint one credential
// scoped to every matched project.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pubmint/pubmint/pkg/audit"
	"github.com/pubmint/pubmint/pkg/identity"
	"github.com/pubmint/pubmint/pkg/registry"
	"github.com/pubmint/pubmint/pkg/token"
)

// Service runs the exchange protocol end to end. It never retries: callers
// re-fetch a fresh OIDC token and resubmit on failure.
type Service struct {
	pool    identity.IssuerPool
	store   registry.Store
	minter  *token.Minter
	enabled bool
}

func NewService(pool identity.IssuerPool, store registry.Store, minter *token.Minter, enabled bool) *Service {
	return &Service{
		pool:    pool,
		store:   store,
		minter:  minter,
		enabled: enabled,
	}
}

// Result is a successful exchange: one minted credential scoped to every
// matched project.
type Result struct {
	// Token is the credential, prefix included. It is returned to the
	// caller once and never persisted or logged.
	Token string
	// TokenID is the credential's jti, safe for audit trails.
	TokenID  string
	Expires  time.Time
	Projects []registry.Project
	// Warnings carries per-record promotion failures that did not block
	// minting for the remaining matches.
	Warnings []Cause
}

// Exchange authenticates rawToken and mints a scoped credential. A *Error
// return is a request failure with taxonomy causes; any other error is a
// server fault.
func (s *Service) Exchange(ctx context.Context, rawToken string) (*Result, error) {
	if !s.enabled {
		return nil, s.deny(ctx, "", "", failf(KindNotEnabled,
			"token exchange is disabled on this deployment",
			"OIDC token exchange functionality has been disabled by the operator"))
	}

	principal, err := s.pool.Authenticate(ctx, rawToken)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownIssuer) {
			return nil, s.deny(ctx, "", "", failf(KindUnknownIssuer,
				"token issuer is not trusted by this deployment", err.Error()))
		}
		return nil, s.deny(ctx, "", "", failf(KindInvalidToken,
			"token verification failed", err.Error()))
	}

	issuer := principal.Issuer()
	subject := principal.Name(ctx)
	kind := principal.PublisherKind()
	lookup := principal.LookupKey()

	active, err := s.store.PublishersByLookup(ctx, kind, registry.StateActive, lookup)
	if err != nil {
		return nil, fmt.Errorf("listing active publishers: %w", err)
	}
	pending, err := s.store.PublishersByLookup(ctx, kind, registry.StatePending, lookup)
	if err != nil {
		return nil, fmt.Errorf("listing pending publishers: %w", err)
	}

	matchedActive := registry.Match(principal, active)
	matchedPending := registry.Match(principal, pending)
	if len(matchedActive) == 0 && len(matchedPending) == 0 {
		return nil, s.deny(ctx, issuer, subject, &Error{
			Message: "token claims did not match any registered publisher",
			Causes: []Cause{
				{Code: KindInvalidPublisher, Description: "valid token, but no corresponding active publisher"},
				{Code: KindInvalidPendingPublisher, Description: "valid token, but no corresponding pending publisher"},
			},
		})
	}

	var (
		projects   []registry.Project
		scoped     = make(map[uuid.UUID]bool)
		publishers []string
		warnings   []Cause
	)
	include := func(project registry.Project, publisherID uuid.UUID) {
		publishers = append(publishers, publisherID.String())
		if scoped[project.ID] {
			return
		}
		scoped[project.ID] = true
		projects = append(projects, project)
	}

	for _, pub := range matchedActive {
		project, err := s.store.GetProject(ctx, pub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("resolving project %s of publisher %s: %w", pub.ProjectID, pub.ID, err)
		}
		include(project, pub.ID)
	}

	for _, pub := range matchedPending {
		project, err := s.store.Promote(ctx, pub.ID, registry.NewProject(pub.ProjectName, subject))
		switch {
		case err == nil:
			include(project, pub.ID)
		case errors.Is(err, registry.ErrNameConflict):
			// Per record: the rest of the exchange proceeds.
			warnings = append(warnings, Cause{
				Code:        KindNameConflict,
				Description: fmt.Sprintf("project name %q is already in use", pub.ProjectName),
			})
		case errors.Is(err, registry.ErrNotPending):
			// A concurrent exchange won the promotion between our read and
			// this write. The identity still matched; scope the credential
			// to the project that exchange created.
			promoted, err := s.store.GetPublisher(ctx, pub.ID)
			if err != nil || promoted.State != registry.StateActive {
				continue
			}
			project, err := s.store.GetProject(ctx, promoted.ProjectID)
			if err != nil {
				return nil, fmt.Errorf("resolving project %s of publisher %s: %w", promoted.ProjectID, promoted.ID, err)
			}
			include(project, promoted.ID)
		default:
			return nil, fmt.Errorf("promoting publisher %s: %w", pub.ID, err)
		}
	}

	if len(projects) == 0 {
		if len(warnings) > 0 {
			return nil, s.deny(ctx, issuer, subject, &Error{
				Message: "pending publisher promotion failed",
				Causes:  warnings,
			})
		}
		return nil, s.deny(ctx, issuer, subject, &Error{
			Message: "token claims did not match any registered publisher",
			Causes: []Cause{
				{Code: KindInvalidPublisher, Description: "valid token, but no corresponding active publisher"},
				{Code: KindInvalidPendingPublisher, Description: "valid token, but no corresponding pending publisher"},
			},
		})
	}

	raw, claims, err := s.minter.Mint(ctx, projects)
	if err != nil {
		return nil, fmt.Errorf("minting credential: %w", err)
	}

	result := &Result{
		Token:    raw,
		TokenID:  claims.ID,
		Expires:  claims.Expiry.Time(),
		Projects: projects,
		Warnings: warnings,
	}

	event := audit.Event{
		Decision:   audit.DecisionMinted,
		Issuer:     issuer,
		Subject:    subject,
		Publishers: publishers,
		TokenID:    claims.ID,
	}
	for _, project := range projects {
		event.Projects = append(event.Projects, project.ID.String())
	}
	for _, w := range warnings {
		event.ErrorKinds = append(event.ErrorKinds, string(w.Code))
	}
	audit.Emit(ctx, event)

	return result, nil
}

// deny audits a terminal failure and passes it through.
func (s *Service) deny(ctx context.Context, issuer, subject string, err *Error) *Error {
	audit.Emit(ctx, audit.Event{
		Decision:   audit.DecisionDenied,
		Issuer:     issuer,
		Subject:    subject,
		ErrorKinds: err.Kinds(),
	})
	return err
}
