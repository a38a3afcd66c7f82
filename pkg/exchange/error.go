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

// Kind is a machine-readable failure category. Every terminal exchange
// failure carries one or more kinds; they are never collapsed into a
// generic failure, because callers recover differently from each.
type Kind string

const (
	// KindInvalidPayload: the request body could not be parsed.
	KindInvalidPayload Kind = "invalid-payload"
	// KindInvalidToken: the token is malformed, expired, has a bad
	// signature or the wrong audience, or is missing a required claim.
	KindInvalidToken Kind = "invalid-token"
	// KindUnknownIssuer: the token's issuer is not in the trust
	// configuration. Deliberately distinct from a signature failure.
	KindUnknownIssuer Kind = "unknown-issuer"
	// KindInvalidPublisher: the verified claims matched no active publisher.
	KindInvalidPublisher Kind = "invalid-publisher"
	// KindInvalidPendingPublisher: the verified claims matched no pending
	// publisher.
	KindInvalidPendingPublisher Kind = "invalid-pending-publisher"
	// KindNameConflict: a pending promotion's target project name is taken.
	KindNameConflict Kind = "name-conflict"
	// KindNotEnabled: token exchange is switched off on this deployment.
	KindNotEnabled Kind = "not-enabled"
)

// Cause is one machine-readable failure entry, rendered verbatim in API
// responses.
type Cause struct {
	Code        Kind   `json:"code"`
	Description string `json:"description"`
}

// Error is a terminal exchange failure attributable to the request. Server
// faults (store or minter breakage) are returned as plain errors instead.
type Error struct {
	// Message is a human-readable summary safe to return to the caller.
	Message string
	// Causes carries at least one entry. A valid token that matches nothing
	// carries two: one for active publishers, one for pending.
	Causes []Cause
}

func (e *Error) Error() string {
	return e.Message
}

// Kinds lists the taxonomy kinds of all causes, for audit and metrics.
func (e *Error) Kinds() []string {
	kinds := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		kinds = append(kinds, string(c.Code))
	}
	return kinds
}

func failf(kind Kind, message, description string) *Error {
	return &Error{
		Message: message,
		Causes:  []Cause{{Code: kind, Description: description}},
	}
}
