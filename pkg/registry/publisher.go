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

// Package registry holds the trusted publisher registry: records binding a
// CI identity to a project, the claim matching rules, and the stores that
// persist them.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind tags the identity provider schema a publisher is registered under.
type Kind string

const (
	KindGitHub      Kind = "github"
	KindGitLab      Kind = "gitlab"
	KindGoogle      Kind = "google"
	KindActiveState Kind = "activestate"
)

// State is the lifecycle state of a publisher record.
type State string

const (
	// StatePending marks a publisher registered before its project exists.
	// The record holds the intended project name; the project is created on
	// the publisher's first successful exchange.
	StatePending State = "pending"
	// StateActive marks a publisher bound to an existing project.
	StateActive State = "active"
)

// Publisher is one registry record. Exactly one of the provider spec fields
// is set, selected by Kind. Records are immutable after creation except for
// the single pending->active transition performed during promotion.
type Publisher struct {
	ID    uuid.UUID `json:"id"`
	Kind  Kind      `json:"kind"`
	State State     `json:"state"`

	// ProjectID is the bound project's stable ID once the record is active.
	ProjectID uuid.UUID `json:"project_id,omitempty"`
	// ProjectName is the intended project name while pending. It stays on
	// the record after promotion for display; authorization always goes
	// through ProjectID.
	ProjectName string `json:"project_name"`

	CreatedAt time.Time `json:"created_at"`

	GitHub      *GitHubSpec      `json:"github,omitempty"`
	GitLab      *GitLabSpec      `json:"gitlab,omitempty"`
	Google      *GoogleSpec      `json:"google,omitempty"`
	ActiveState *ActiveStateSpec `json:"activestate,omitempty"`
}

// GitHubSpec constrains GitHub Actions identities.
type GitHubSpec struct {
	// Repository is the bare repository name, without the owner prefix.
	// Compared case-insensitively.
	Repository string `json:"repository"`

	// RepositoryOwner is the owner account name at registration time. Kept
	// for display only; owner accounts are matched by RepositoryOwnerID so
	// that a deleted-and-recreated account of the same name cannot inherit
	// this publisher.
	RepositoryOwner string `json:"repository_owner"`

	// RepositoryOwnerID is the owner's stable numeric account ID.
	RepositoryOwnerID string `json:"repository_owner_id"`

	// WorkflowFilename is the basename of the workflow under
	// .github/workflows/ that is trusted to publish.
	WorkflowFilename string `json:"workflow_filename"`

	// Environment restricts matches to one GitHub Actions environment when
	// set. Stored lowercased; GitHub treats environment names
	// case-insensitively.
	Environment string `json:"environment,omitempty"`
}

// GitLabSpec constrains GitLab CI/CD identities. GitLab paths are
// case-sensitive.
type GitLabSpec struct {
	// Namespace is the full namespace path (user or group, may contain
	// slashes for subgroups).
	Namespace string `json:"namespace"`

	// Project is the project path component under the namespace.
	Project string `json:"project"`

	// WorkflowFilepath is the CI configuration path within the repository,
	// e.g. ".gitlab-ci.yml".
	WorkflowFilepath string `json:"workflow_filepath"`

	// Environment restricts matches to one GitLab environment when set.
	Environment string `json:"environment,omitempty"`

	// ProjectID optionally pins the numeric GitLab project ID. Namespace
	// paths are mutable on GitLab, so deployments that want resurrection
	// protection set this.
	ProjectID string `json:"project_id,omitempty"`
}

// GoogleSpec constrains Google Cloud service account identities.
type GoogleSpec struct {
	// Email of the service account, compared case-insensitively. Only
	// tokens with a verified email match.
	Email string `json:"email"`

	// Subject optionally pins the account's stable sub claim, protecting
	// against a deleted-and-recreated service account of the same name.
	Subject string `json:"subject,omitempty"`
}

// ActiveStateSpec constrains ActiveState platform build identities.
type ActiveStateSpec struct {
	// Organization is the organization URL name.
	Organization string `json:"organization"`

	// Project is the project URL name within the organization.
	Project string `json:"project"`

	// Actor is the platform user name at registration time, for display.
	Actor string `json:"actor"`

	// ActorID is the platform user's stable ID; this is what is matched.
	ActorID string `json:"actor_id"`
}

// LookupKey is the stable key stores index publishers under. It prefilters
// registry reads; full claim matching still runs on every candidate.
func (p *Publisher) LookupKey() string {
	switch {
	case p.Kind == KindGitHub && p.GitHub != nil:
		return p.GitHub.RepositoryOwnerID
	case p.Kind == KindGitLab && p.GitLab != nil:
		return p.GitLab.Namespace
	case p.Kind == KindGoogle && p.Google != nil:
		return strings.ToLower(p.Google.Email)
	case p.Kind == KindActiveState && p.ActiveState != nil:
		return p.ActiveState.Organization
	}
	return ""
}

// Validate checks record well-formedness and canonicalizes fields that are
// matched case-insensitively.
func (p *Publisher) Validate() error {
	switch p.State {
	case StatePending:
		if p.ProjectID != uuid.Nil {
			return fmt.Errorf("pending publisher must not reference a project")
		}
	case StateActive:
		if p.ProjectID == uuid.Nil {
			return fmt.Errorf("active publisher must reference a project")
		}
	default:
		return fmt.Errorf("unknown publisher state %q", p.State)
	}

	if p.ProjectName == "" {
		return fmt.Errorf("missing project name")
	}
	if !ValidProjectName(p.ProjectName) {
		return fmt.Errorf("invalid project name %q", p.ProjectName)
	}

	if n := p.specCount(); n != 1 {
		return fmt.Errorf("publisher must carry exactly one provider spec, got %d", n)
	}

	switch p.Kind {
	case KindGitHub:
		s := p.GitHub
		if s == nil {
			return fmt.Errorf("kind %s requires a github spec", p.Kind)
		}
		if s.Repository == "" || s.RepositoryOwner == "" || s.RepositoryOwnerID == "" || s.WorkflowFilename == "" {
			return fmt.Errorf("github spec missing required fields")
		}
		if strings.Contains(s.Repository, "/") {
			return fmt.Errorf("github repository must not include the owner prefix")
		}
		if strings.Contains(s.WorkflowFilename, "/") {
			return fmt.Errorf("github workflow filename must be a basename")
		}
		s.Environment = strings.ToLower(s.Environment)
	case KindGitLab:
		s := p.GitLab
		if s == nil {
			return fmt.Errorf("kind %s requires a gitlab spec", p.Kind)
		}
		if s.Namespace == "" || s.Project == "" || s.WorkflowFilepath == "" {
			return fmt.Errorf("gitlab spec missing required fields")
		}
	case KindGoogle:
		s := p.Google
		if s == nil {
			return fmt.Errorf("kind %s requires a google spec", p.Kind)
		}
		if s.Email == "" {
			return fmt.Errorf("google spec missing email")
		}
		s.Email = strings.ToLower(s.Email)
	case KindActiveState:
		s := p.ActiveState
		if s == nil {
			return fmt.Errorf("kind %s requires an activestate spec", p.Kind)
		}
		if s.Organization == "" || s.Project == "" || s.Actor == "" || s.ActorID == "" {
			return fmt.Errorf("activestate spec missing required fields")
		}
	default:
		return fmt.Errorf("unknown publisher kind %q", p.Kind)
	}

	if p.LookupKey() == "" {
		return fmt.Errorf("publisher has no lookup key")
	}
	return nil
}

func (p *Publisher) specCount() int {
	n := 0
	for _, set := range []bool{p.GitHub != nil, p.GitLab != nil, p.Google != nil, p.ActiveState != nil} {
		if set {
			n++
		}
	}
	return n
}

// String describes the publisher's identity constraint for logs and the
// management API.
func (p *Publisher) String() string {
	switch {
	case p.GitHub != nil:
		return fmt.Sprintf("github:%s/%s@%s", p.GitHub.RepositoryOwner, p.GitHub.Repository, p.GitHub.WorkflowFilename)
	case p.GitLab != nil:
		return fmt.Sprintf("gitlab:%s/%s@%s", p.GitLab.Namespace, p.GitLab.Project, p.GitLab.WorkflowFilepath)
	case p.Google != nil:
		return fmt.Sprintf("google:%s", p.Google.Email)
	case p.ActiveState != nil:
		return fmt.Sprintf("activestate:%s/%s", p.ActiveState.Organization, p.ActiveState.Project)
	}
	return string(p.Kind)
}

// publisherSpec is the serialized form of the provider spec union, stored as
// one JSON document.
type publisherSpec struct {
	GitHub      *GitHubSpec      `json:"github,omitempty"`
	GitLab      *GitLabSpec      `json:"gitlab,omitempty"`
	Google      *GoogleSpec      `json:"google,omitempty"`
	ActiveState *ActiveStateSpec `json:"activestate,omitempty"`
}

// MarshalSpec serializes the provider spec union for storage.
func (p *Publisher) MarshalSpec() ([]byte, error) {
	return json.Marshal(publisherSpec{p.GitHub, p.GitLab, p.Google, p.ActiveState})
}

// UnmarshalSpec restores the provider spec union from storage.
func (p *Publisher) UnmarshalSpec(b []byte) error {
	var s publisherSpec
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unmarshal publisher spec: %w", err)
	}
	p.GitHub, p.GitLab, p.Google, p.ActiveState = s.GitHub, s.GitLab, s.Google, s.ActiveState
	return nil
}
