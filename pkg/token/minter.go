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

// Package token mints the short-lived upload credentials handed out after a
// successful exchange. A credential is a fixed recognizable prefix followed
// by a compact JWS, so leaked credentials can be picked up by secret
// scanners.
package token

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pubmint/pubmint/pkg/registry"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const (
	// DefaultPrefix is prepended to every minted credential.
	DefaultPrefix = "pubmint-"

	// DefaultTTL is the credential lifetime when none is configured.
	DefaultTTL = 15 * time.Minute

	// HS256 wants a key at least as long as the digest.
	minKeySize = 32
)

// ProjectScope names one project a credential may upload to.
type ProjectScope struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Claims is the payload of a minted credential. The registered claims carry
// a unique token ID, the issue/not-before/expiry window and the deployment
// audience; Projects carries the upload scope.
type Claims struct {
	jwt.Claims
	Projects []ProjectScope `json:"projects"`
}

// Minter signs and verifies upload credentials with an HMAC key read from a
// file. The key may be swapped at runtime, see NewWatchedMinter.
type Minter struct {
	mu  sync.RWMutex
	key []byte

	audience string
	prefix   string
	ttl      time.Duration

	now func() time.Time
}

// NewMinter returns a Minter signing with the key at keyPath. The file is
// read once; whitespace around the key is ignored. An empty prefix selects
// DefaultPrefix, a zero ttl selects DefaultTTL.
func NewMinter(keyPath, audience, prefix string, ttl time.Duration) (*Minter, error) {
	key, err := loadKey(keyPath)
	if err != nil {
		return nil, err
	}
	if audience == "" {
		return nil, errors.New("upload token audience must be set")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &Minter{
		key:      key,
		audience: audience,
		prefix:   prefix,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Mint issues one credential scoped to the given projects. Every call mints
// a fresh credential with a new token ID; nothing is persisted.
func (m *Minter) Mint(_ context.Context, projects []registry.Project) (string, *Claims, error) {
	if len(projects) == 0 {
		return "", nil, errors.New("refusing to mint a credential with no project scope")
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: m.signingKey()},
		(&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", nil, fmt.Errorf("building token signer: %w", err)
	}

	issuedAt := m.now()
	claims := &Claims{
		Claims: jwt.Claims{
			ID:        uuid.New().String(),
			Audience:  jwt.Audience{m.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Expiry:    jwt.NewNumericDate(issuedAt.Add(m.ttl)),
		},
	}
	for _, p := range projects {
		claims.Projects = append(claims.Projects, ProjectScope{ID: p.ID, Name: p.NormalizedName})
	}

	raw, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", nil, fmt.Errorf("signing upload token: %w", err)
	}
	return m.prefix + raw, claims, nil
}

// Verify checks a credential's prefix, signature, audience and time window
// under the current key and returns its claims.
func (m *Minter) Verify(raw string) (*Claims, error) {
	if !strings.HasPrefix(raw, m.prefix) {
		return nil, fmt.Errorf("token does not carry the %q prefix", m.prefix)
	}

	tok, err := jwt.ParseSigned(strings.TrimPrefix(raw, m.prefix))
	if err != nil {
		return nil, fmt.Errorf("parsing upload token: %w", err)
	}
	// Pin the algorithm so a key can never be confused into verifying
	// another scheme.
	if len(tok.Headers) != 1 || tok.Headers[0].Algorithm != string(jose.HS256) {
		return nil, errors.New("unexpected upload token signature algorithm")
	}

	var claims Claims
	if err := tok.Claims(m.signingKey(), &claims); err != nil {
		return nil, fmt.Errorf("verifying upload token: %w", err)
	}
	if err := claims.Validate(jwt.Expected{
		Audience: jwt.Audience{m.audience},
		Time:     m.now(),
	}); err != nil {
		return nil, fmt.Errorf("validating upload token claims: %w", err)
	}
	return &claims, nil
}

func (m *Minter) signingKey() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.key
}

func (m *Minter) setKey(key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = key
}

func loadKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	key = bytes.TrimSpace(key)
	if len(key) < minKeySize {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", minKeySize, len(key))
	}
	return key, nil
}
