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
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pubmint/pubmint/pkg/identity"
	"github.com/pubmint/pubmint/pkg/registry"
)

type workflowPrincipal struct {
	// Subject matches the 'sub' claim from the OIDC ID token, in the form
	// repo:ORG/REPO:<trigger context>
	subject string

	// OIDC Issuer URL. Matches 'iss' claim from ID token
	issuer string

	// Repository the workflow runs in, as OWNER/NAME. GitHub treats both
	// parts as case-insensitive and both may be renamed.
	repository string

	// Numeric ID of the repository owner. Stable across renames.
	repositoryOwnerID string

	// Workflow filename (e.g. release.yml), extracted from job_workflow_ref.
	workflowFilename string

	// Deployment environment the job targets. Empty outside environments.
	environment string

	// Numeric ID of the repository. Stable across renames.
	repositoryID string

	// Event that triggered this workflow run. E.g "push", "tag"
	eventName string

	// Git ref being built
	ref string

	// Commit SHA being built
	sha string
}

func WorkflowPrincipalFromIDToken(_ context.Context, token *oidc.IDToken) (identity.Principal, error) {
	var claims struct {
		Repository        string `json:"repository"`
		RepositoryID      string `json:"repository_id"`
		RepositoryOwnerID string `json:"repository_owner_id"`
		JobWorkflowRef    string `json:"job_workflow_ref"`
		Environment       string `json:"environment"`
		EventName         string `json:"event_name"`
		Ref               string `json:"ref"`
		Sha               string `json:"sha"`
	}

	if err := token.Claims(&claims); err != nil {
		return nil, err
	}

	if claims.Repository == "" {
		return nil, errors.New("missing repository claim in ID token")
	}

	if claims.RepositoryOwnerID == "" {
		return nil, errors.New("missing repository_owner_id claim in ID token")
	}

	if claims.JobWorkflowRef == "" {
		return nil, errors.New("missing job_workflow_ref claim in ID token")
	}

	if claims.Ref == "" && claims.Sha == "" {
		return nil, errors.New("missing ref and sha claims in ID token")
	}

	filename, err := workflowFilename(claims.JobWorkflowRef, claims.Repository, claims.Ref, claims.Sha)
	if err != nil {
		return nil, err
	}

	return &workflowPrincipal{
		subject:           token.Subject,
		issuer:            token.Issuer,
		repository:        claims.Repository,
		repositoryOwnerID: claims.RepositoryOwnerID,
		workflowFilename:  filename,
		environment:       claims.Environment,
		repositoryID:      claims.RepositoryID,
		eventName:         claims.EventName,
		ref:               claims.Ref,
		sha:               claims.Sha,
	}, nil
}

// workflowFilename extracts the workflow filename from a job_workflow_ref of
// the form OWNER/REPO/.github/workflows/NAME.yml@REF. The trailing @REF must
// agree with the token's own ref or sha claim, and the leading repository
// must agree with the token's repository claim, so a reusable workflow run
// from another repository never passes for a local one.
func workflowFilename(jobWorkflowRef, repository, ref, sha string) (string, error) {
	stripped := ""
	for _, suffix := range []string{ref, sha} {
		if suffix != "" && strings.HasSuffix(jobWorkflowRef, "@"+suffix) {
			stripped = strings.TrimSuffix(jobWorkflowRef, "@"+suffix)
			break
		}
	}
	if stripped == "" {
		return "", fmt.Errorf("job_workflow_ref claim %q does not end with the token's ref or sha", jobWorkflowRef)
	}

	// Repository names are case-insensitive on GitHub.
	prefix := repository + "/.github/workflows/"
	if len(stripped) <= len(prefix) || !strings.EqualFold(stripped[:len(prefix)], prefix) {
		return "", fmt.Errorf("job_workflow_ref claim %q does not reference a workflow in repository %s", jobWorkflowRef, repository)
	}

	filename := stripped[len(prefix):]
	if strings.Contains(filename, "/") {
		return "", fmt.Errorf("job_workflow_ref claim %q does not reference a workflow filename", jobWorkflowRef)
	}
	return filename, nil
}

func (w workflowPrincipal) Name(_ context.Context) string {
	return w.subject
}

func (w workflowPrincipal) Issuer() string {
	return w.issuer
}

func (w workflowPrincipal) PublisherKind() registry.Kind {
	return registry.KindGitHub
}

func (w workflowPrincipal) LookupKey() string {
	return w.repositoryOwnerID
}

func (w workflowPrincipal) MatchesPublisher(pub registry.Publisher) bool {
	spec := pub.GitHub
	if spec == nil {
		return false
	}

	// Owner identity is matched on the stable numeric ID only. Matching the
	// owner name would let a squatter of a deleted account claim its
	// publishers.
	if spec.RepositoryOwnerID != w.repositoryOwnerID {
		return false
	}

	_, repoName, found := strings.Cut(w.repository, "/")
	if !found {
		return false
	}
	if !strings.EqualFold(spec.Repository, repoName) {
		return false
	}

	if spec.WorkflowFilename != w.workflowFilename {
		return false
	}

	// An environment constraint on the record requires the claim; records
	// without one accept any environment. Stored lowercased, GitHub treats
	// environment names as case-insensitive.
	if spec.Environment != "" && spec.Environment != strings.ToLower(w.environment) {
		return false
	}

	return true
}
