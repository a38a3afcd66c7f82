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

package server

import (
	"github.com/pubmint/pubmint/pkg/config"
	"github.com/pubmint/pubmint/pkg/identity"
	"github.com/pubmint/pubmint/pkg/identity/activestate"
	"github.com/pubmint/pubmint/pkg/identity/github"
	"github.com/pubmint/pubmint/pkg/identity/gitlab"
	"github.com/pubmint/pubmint/pkg/identity/google"
)

// NewIssuerPool builds the verifier pool from the trust configuration.
// Issuers with an unrecognized type are skipped, so a newer config file does
// not brick an older server.
func NewIssuerPool(cfg *config.Config) identity.IssuerPool {
	var pool identity.IssuerPool
	for _, i := range cfg.OIDCIssuers {
		if iss := getIssuer(i); iss != nil {
			pool = append(pool, iss)
		}
	}
	return pool
}

func getIssuer(i config.OIDCIssuer) identity.Issuer {
	switch i.Type {
	case config.IssuerTypeGitHubActions:
		return github.Issuer(i.IssuerURL)
	case config.IssuerTypeGitLabPipeline:
		return gitlab.Issuer(i.IssuerURL)
	case config.IssuerTypeGoogleCloud:
		return google.Issuer(i.IssuerURL)
	case config.IssuerTypeActiveState:
		return activestate.Issuer(i.IssuerURL)
	}
	return nil
}
