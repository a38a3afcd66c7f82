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
//

package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/pubmint/pubmint/pkg/exchange"
	"github.com/pubmint/pubmint/pkg/log"
)

const (
	invalidRequestBody = "The request body could not be parsed"
	missingToken       = "The request is missing the token field"
	exchangeFailed     = "The token could not be exchanged for an upload credential"
	internalError      = "There was an internal error processing this request"
	unauthorized       = "A valid management bearer token is required"
	managementDisabled = "The management API is disabled on this deployment"
	tooManyRequests    = "Too many requests, slow down"
	storeUnavailable   = "The publisher registry is not reachable"
)

// errorResponse is the failure body: a human-readable message plus one entry
// per machine-readable cause.
type errorResponse struct {
	Message string           `json:"message"`
	Errors  []exchange.Cause `json:"errors,omitempty"`
}

// handleExchangeError renders err for the caller and logs it. Request
// failures log at Warn with their taxonomy kinds; anything else is a server
// fault, logged at Error and rendered without detail.
func handleExchangeError(ctx context.Context, w http.ResponseWriter, err error) {
	var exErr *exchange.Error
	if !errors.As(err, &exErr) {
		log.ContextLogger(ctx).Errorw(err.Error(), "clientMessage", internalError, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: internalError})
		return
	}

	status := http.StatusUnprocessableEntity
	for _, kind := range exErr.Kinds() {
		metricExchangeFailures.WithLabelValues(kind).Inc()
		if kind == string(exchange.KindNotEnabled) {
			status = http.StatusForbidden
		}
	}

	log.ContextLogger(ctx).Warnw(exErr.Message, "status", status, "errorKinds", exErr.Kinds())
	writeJSON(w, status, errorResponse{Message: exErr.Message, Errors: exErr.Causes})
}

// invalidPayload renders the invalid-payload failure for unparseable request
// bodies. It never reaches the exchange service.
func invalidPayload(ctx context.Context, w http.ResponseWriter, message string) {
	metricExchangeFailures.WithLabelValues(string(exchange.KindInvalidPayload)).Inc()
	log.ContextLogger(ctx).Warnw(message, "errorKinds", []string{string(exchange.KindInvalidPayload)})
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Message: message,
		Errors: []exchange.Cause{
			{Code: exchange.KindInvalidPayload, Description: message},
		},
	})
}
