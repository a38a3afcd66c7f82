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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pubmint/pubmint/pkg/log"
	"gopkg.in/yaml.v3"
)

// Config is the trust configuration: the set of identity providers whose
// tokens may be exchanged for upload credentials.
type Config struct {
	// OIDCIssuers maps issuer URL to the provider trusted under that URL.
	OIDCIssuers map[string]OIDCIssuer `json:"OIDCIssuers,omitempty" yaml:"oidc-issuers,omitempty"`

	// verifiers caches an ID token verifier per configured issuer. Verifiers
	// are built on first use so that loading a config does not require the
	// issuers to be reachable.
	verifiers map[string]*oidc.IDTokenVerifier
	mu        sync.Mutex
}

// OIDCIssuer describes one trusted identity provider.
type OIDCIssuer struct {
	// IssuerURL of the provider, matched against the token's iss claim and
	// used for OIDC discovery.
	IssuerURL string `json:"IssuerURL,omitempty" yaml:"issuer-url,omitempty"`
	// Audience expected in the aud claim of tokens from this provider.
	// Distinct per deployment so a token minted for staging cannot be
	// replayed against production.
	Audience string `json:"Audience,omitempty" yaml:"audience,omitempty"`
	// Type of the provider, selecting its claim schema.
	Type IssuerType `json:"Type,omitempty" yaml:"type,omitempty"`
}

type IssuerType string

const (
	IssuerTypeGitHubActions  IssuerType = "github-actions"
	IssuerTypeGitLabPipeline IssuerType = "gitlab-pipeline"
	IssuerTypeGoogleCloud    IssuerType = "google-cloud"
	IssuerTypeActiveState    IssuerType = "activestate"
)

// defaultOIDCDiscoveryTimeout bounds the discovery round trip when a
// verifier is first built for an issuer.
const defaultOIDCDiscoveryTimeout = 10 * time.Second

// GetIssuer looks up the issuer configured under issuerURL.
func (c *Config) GetIssuer(issuerURL string) (OIDCIssuer, bool) {
	iss, ok := c.OIDCIssuers[issuerURL]
	return iss, ok
}

// GetVerifier returns an ID token verifier for the given issuer, building
// and caching one via OIDC discovery on first use. The second return is
// false when the issuer is not part of the trust configuration.
func (c *Config) GetVerifier(issuerURL string) (*oidc.IDTokenVerifier, bool) {
	iss, ok := c.GetIssuer(issuerURL)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.verifiers[issuerURL]; ok {
		return v, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOIDCDiscoveryTimeout)
	defer cancel()
	provider, err := oidc.NewProvider(ctx, iss.IssuerURL)
	if err != nil {
		log.Logger.Errorw("OIDC discovery failed", "issuer", iss.IssuerURL, "error", err)
		return nil, false
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: iss.Audience})
	if c.verifiers == nil {
		c.verifiers = make(map[string]*oidc.IDTokenVerifier, len(c.OIDCIssuers))
	}
	c.verifiers[issuerURL] = verifier
	return verifier, true
}

// ParseConfig parses a config serialized as JSON or YAML.
func ParseConfig(b []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(b, cfg); err != nil {
		if yerr := yaml.Unmarshal(b, cfg); yerr != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	for url, iss := range cfg.OIDCIssuers {
		if iss.IssuerURL == "" {
			return fmt.Errorf("issuer %q missing issuer URL", url)
		}
		if iss.Audience == "" {
			return fmt.Errorf("issuer %q missing audience", url)
		}
		switch iss.Type {
		case IssuerTypeGitHubActions, IssuerTypeGitLabPipeline, IssuerTypeGoogleCloud, IssuerTypeActiveState:
		default:
			return fmt.Errorf("issuer %q has unknown type %q", url, iss.Type)
		}
	}
	return nil
}

// DefaultConfig trusts the public cloud instances of the supported
// providers, expecting the default audience.
var DefaultConfig = &Config{
	OIDCIssuers: map[string]OIDCIssuer{
		"https://token.actions.githubusercontent.com": {
			IssuerURL: "https://token.actions.githubusercontent.com",
			Audience:  "pubmint",
			Type:      IssuerTypeGitHubActions,
		},
		"https://gitlab.com": {
			IssuerURL: "https://gitlab.com",
			Audience:  "pubmint",
			Type:      IssuerTypeGitLabPipeline,
		},
		"https://accounts.google.com": {
			IssuerURL: "https://accounts.google.com",
			Audience:  "pubmint",
			Type:      IssuerTypeGoogleCloud,
		},
		"https://platform.activestate.com/api/v1/oauth/oidc": {
			IssuerURL: "https://platform.activestate.com/api/v1/oauth/oidc",
			Audience:  "pubmint",
			Type:      IssuerTypeActiveState,
		},
	},
}

// Load a config from disk, or use defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Logger.Infof("No config at %s, using defaults", configPath)
		return DefaultConfig, nil
	}
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseConfig(b)
	if err != nil {
		return nil, err
	}
	log.Logger.Infof("Loaded config from %s with %d issuers", configPath, len(cfg.OIDCIssuers))
	return cfg, nil
}

type configKey struct{}

// With returns a new context carrying cfg.
func With(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext extracts the config from ctx, or nil when none is attached.
func FromContext(ctx context.Context) *Config {
	untyped := ctx.Value(configKey{})
	if untyped == nil {
		return nil
	}
	return untyped.(*Config)
}
