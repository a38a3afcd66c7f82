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

// Package audit emits one structured log event per token exchange attempt,
// successful or not. Events identify minted credentials by token ID only;
// the credential itself must never reach a log line.
package audit

import (
	"context"

	"github.com/pubmint/pubmint/pkg/log"
)

// Decision is the terminal outcome of an exchange attempt.
type Decision string

const (
	DecisionMinted Decision = "minted"
	DecisionDenied Decision = "denied"
)

// Event is the audit record of one exchange attempt. Issuer and Subject are
// empty when the attempt failed before a principal was established.
type Event struct {
	Decision Decision

	// Issuer and Subject identify the verified actor.
	Issuer  string
	Subject string

	// Publishers and Projects carry the IDs of matched registry records and
	// the projects the credential was scoped to.
	Publishers []string
	Projects   []string

	// TokenID is the jti of the minted credential.
	TokenID string

	// ErrorKinds carries the taxonomy kinds of a denial, or of per-record
	// promotion failures on an otherwise successful exchange.
	ErrorKinds []string
}

// Emit writes the event through the request-scoped logger. Denials go to
// Warn so that default filters surface them.
func Emit(ctx context.Context, e Event) {
	fields := []interface{}{
		"decision", string(e.Decision),
	}
	if e.Issuer != "" {
		fields = append(fields, "issuer", e.Issuer)
	}
	if e.Subject != "" {
		fields = append(fields, "subject", e.Subject)
	}
	if len(e.Publishers) > 0 {
		fields = append(fields, "publishers", e.Publishers)
	}
	if len(e.Projects) > 0 {
		fields = append(fields, "projects", e.Projects)
	}
	if e.TokenID != "" {
		fields = append(fields, "tokenID", e.TokenID)
	}
	if len(e.ErrorKinds) > 0 {
		fields = append(fields, "errorKinds", e.ErrorKinds)
	}

	logger := log.ContextLogger(ctx)
	if e.Decision == DecisionMinted {
		logger.Infow("token exchange", fields...)
	} else {
		logger.Warnw("token exchange", fields...)
	}
}
