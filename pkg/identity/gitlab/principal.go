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

package gitlab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pubmint/pubmint/pkg/identity"
	"github.com/pubmint/pubmint/pkg/registry"
)

type jobPrincipal struct {
	// Subject matches the 'sub' claim from the OIDC ID token, in the form
	// project_path:NAMESPACE/PROJECT:<trigger context>
	subject string

	// OIDC Issuer URL. Matches 'iss' claim from ID token
	issuer string

	// Full path of the project the pipeline runs in, as NAMESPACE/PROJECT.
	// GitLab paths are case-sensitive.
	projectPath string

	// Path of the group or user namespace owning the project
	namespacePath string

	// Numeric ID of the namespace. Stable across renames.
	namespaceID string

	// Numeric ID of the project. Stable across renames.
	projectID string

	// Path of the pipeline definition inside the repository (e.g.
	// .gitlab-ci.yml), extracted from ci_config_ref_uri.
	workflowFilepath string

	// Deployment environment the job targets. Empty outside environments.
	environment string

	// Event that triggered this pipeline. E.g "push", "web"
	eventName string

	// Pipeline ID
	pipelineID string

	// Job ID
	jobID string

	// Git ref being built
	ref string

	// Commit SHA being built
	sha string
}

func JobPrincipalFromIDToken(_ context.Context, token *oidc.IDToken) (identity.Principal, error) {
	var claims struct {
		ProjectPath    string `json:"project_path"`
		NamespacePath  string `json:"namespace_path"`
		NamespaceID    string `json:"namespace_id"`
		ProjectID      string `json:"project_id"`
		CiConfigRefURI string `json:"ci_config_ref_uri"`
		Environment    string `json:"environment"`
		PipelineSource string `json:"pipeline_source"`
		PipelineID     string `json:"pipeline_id"`
		JobID          string `json:"job_id"`
		Ref            string `json:"ref"`
		Sha            string `json:"sha"`
	}

	if err := token.Claims(&claims); err != nil {
		return nil, err
	}

	if claims.ProjectPath == "" {
		return nil, errors.New("missing project_path claim in ID token")
	}

	if claims.NamespacePath == "" {
		return nil, errors.New("missing namespace_path claim in ID token")
	}

	if claims.NamespaceID == "" {
		return nil, errors.New("missing namespace_id claim in ID token")
	}

	if claims.ProjectID == "" {
		return nil, errors.New("missing project_id claim in ID token")
	}

	if claims.CiConfigRefURI == "" {
		return nil, errors.New("missing ci_config_ref_uri claim in ID token")
	}

	if claims.PipelineID == "" {
		return nil, errors.New("missing pipeline_id claim in ID token")
	}

	if claims.JobID == "" {
		return nil, errors.New("missing job_id claim in ID token")
	}

	if claims.Ref == "" {
		return nil, errors.New("missing ref claim in ID token")
	}

	filepath, err := workflowFilepath(claims.CiConfigRefURI, claims.ProjectPath)
	if err != nil {
		return nil, err
	}

	return &jobPrincipal{
		subject:          token.Subject,
		issuer:           token.Issuer,
		projectPath:      claims.ProjectPath,
		namespacePath:    claims.NamespacePath,
		namespaceID:      claims.NamespaceID,
		projectID:        claims.ProjectID,
		workflowFilepath: filepath,
		environment:      claims.Environment,
		eventName:        claims.PipelineSource,
		pipelineID:       claims.PipelineID,
		jobID:            claims.JobID,
		ref:              claims.Ref,
		sha:              claims.Sha,
	}, nil
}

// workflowFilepath extracts the pipeline definition path from a
// ci_config_ref_uri of the form HOST/NAMESPACE/PROJECT//PATH@REF. The host is
// not pinned so self-managed instances work; the project path must agree with
// the token's own project_path claim, so a pipeline included from another
// project never passes for a local one.
func workflowFilepath(ciConfigRefURI, projectPath string) (string, error) {
	marker := "/" + projectPath + "//"
	i := strings.Index(ciConfigRefURI, marker)
	if i < 0 {
		return "", fmt.Errorf("ci_config_ref_uri claim %q does not reference project %s", ciConfigRefURI, projectPath)
	}

	rest := ciConfigRefURI[i+len(marker):]
	filepath, _, _ := strings.Cut(rest, "@")
	if filepath == "" {
		return "", fmt.Errorf("ci_config_ref_uri claim %q does not carry a pipeline definition path", ciConfigRefURI)
	}
	return filepath, nil
}

func (p jobPrincipal) Name(_ context.Context) string {
	return p.subject
}

func (p jobPrincipal) Issuer() string {
	return p.issuer
}

func (p jobPrincipal) PublisherKind() registry.Kind {
	return registry.KindGitLab
}

func (p jobPrincipal) LookupKey() string {
	return p.namespacePath
}

func (p jobPrincipal) MatchesPublisher(pub registry.Publisher) bool {
	spec := pub.GitLab
	if spec == nil {
		return false
	}

	if spec.Namespace+"/"+spec.Project != p.projectPath {
		return false
	}

	if spec.WorkflowFilepath != p.workflowFilepath {
		return false
	}

	// Environment constraints are case-sensitive on GitLab.
	if spec.Environment != "" && spec.Environment != p.environment {
		return false
	}

	// When the record pins the numeric project ID, a recreated project
	// under the same path must not match.
	if spec.ProjectID != "" && spec.ProjectID != p.projectID {
		return false
	}

	return true
}
