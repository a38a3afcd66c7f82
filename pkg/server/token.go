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
	"encoding/json"
	"net/http"

	"github.com/pubmint/pubmint/pkg/exchange"
	"github.com/pubmint/pubmint/pkg/token"
)

// maxExchangeBody bounds the request body. OIDC tokens run a few kilobytes;
// anything bigger is not a token.
const maxExchangeBody = 64 * 1024

type exchangeRequest struct {
	Token string `json:"token"`
}

// mintResponse is the success body. Errors carries per-record promotion
// failures that did not block minting.
type mintResponse struct {
	Success  bool                 `json:"success"`
	Token    string               `json:"token"`
	Expires  int64                `json:"expires"`
	Projects []token.ProjectScope `json:"projects"`
	Errors   []exchange.Cause     `json:"errors,omitempty"`
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req exchangeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExchangeBody)).Decode(&req); err != nil {
		invalidPayload(ctx, w, invalidRequestBody)
		return
	}
	if req.Token == "" {
		invalidPayload(ctx, w, missingToken)
		return
	}

	result, err := s.exchanger.Exchange(ctx, req.Token)
	if err != nil {
		handleExchangeError(ctx, w, err)
		return
	}

	metricMintedTokens.Inc()
	scope := make([]token.ProjectScope, 0, len(result.Projects))
	for _, project := range result.Projects {
		scope = append(scope, token.ProjectScope{ID: project.ID, Name: project.NormalizedName})
	}
	writeJSON(w, http.StatusCreated, mintResponse{
		Success:  true,
		Token:    result.Token,
		Expires:  result.Expires.Unix(),
		Projects: scope,
		Errors:   result.Warnings,
	})
}
