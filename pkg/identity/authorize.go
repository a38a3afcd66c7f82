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

package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pubmint/pubmint/pkg/config"
)

// ErrUnknownIssuer marks tokens whose issuer is not in the configuration.
// Callers distinguish it from signature and claim failures when reporting.
var ErrUnknownIssuer = errors.New("unknown issuer")

// extractIssuer reads the iss claim from a compact JWS without verifying
// the signature. The result routes the token to a verifier and must not be
// trusted for anything else. A token without an iss claim yields "".
func extractIssuer(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("id token: expected 3 segments, got %d", len(parts))
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("id token: decoding claims segment: %w", err)
	}
	var claims struct {
		Issuer string `json:"iss"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", fmt.Errorf("id token: parsing claims: %w", err)
	}
	return claims.Issuer, nil
}

// Authorize verifies a raw OIDC token against the verifier configured for
// its issuer. It is a variable so provider tests can stub verification
// instead of minting issuer-signed tokens.
var Authorize = actualAuthorize

func actualAuthorize(ctx context.Context, token string) (*oidc.IDToken, error) {
	issuer, err := extractIssuer(token)
	if err != nil {
		return nil, err
	}

	verifier, ok := config.FromContext(ctx).GetVerifier(issuer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIssuer, issuer)
	}
	return verifier.Verify(ctx, token)
}
