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

// Package client exchanges OIDC tokens for pubmint upload credentials. It
// speaks the plain JSON protocol of POST /v1/token and deliberately pulls in
// nothing beyond the standard library and uuid, so CI tooling can embed it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tokenPath = "/v1/token"

// Client mints upload credentials from a pubmint server.
type Client interface {
	// Exchange presents a raw OIDC token and returns the minted credential.
	// Request failures are returned as *APIError.
	Exchange(ctx context.Context, oidcToken string) (*MintResult, error)
}

// Project identifies one project the credential is scoped to.
type Project struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Cause is one machine-readable failure entry from the server.
type Cause struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// MintResult is a successfully minted credential.
type MintResult struct {
	// Token is the upload credential, prefix included.
	Token string
	// Expires is when the credential stops verifying.
	Expires time.Time
	// Projects the credential is scoped to.
	Projects []Project
	// Warnings carries per-record promotion failures the server reported on
	// an otherwise successful exchange.
	Warnings []Cause
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string  `json:"message"`
	Errors     []Cause `json:"errors"`
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("pubmint: %s", e.Message)
	}
	codes := make([]string, 0, len(e.Errors))
	for _, c := range e.Errors {
		codes = append(codes, c.Code)
	}
	return fmt.Sprintf("pubmint: %s (%s)", e.Message, strings.Join(codes, ", "))
}

// HasKind reports whether the failure carries the given taxonomy kind, e.g.
// "invalid-token".
func (e *APIError) HasKind(code string) bool {
	for _, c := range e.Errors {
		if c.Code == code {
			return true
		}
	}
	return false
}

// Option is a functional option for customizing the client.
type Option func(*options)

type options struct {
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

func makeOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithUserAgent sets the User-Agent on every request.
func WithUserAgent(userAgent string) Option {
	return func(o *options) {
		o.UserAgent = userAgent
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.Timeout = timeout
	}
}

// WithHTTPClient supplies the base HTTP client. The client is copied before
// its transport is wrapped, so the caller's instance is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.Client = hc
	}
}

type roundTripper struct {
	http.RoundTripper
	UserAgent string
}

// RoundTrip implements `http.RoundTripper`
func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", rt.UserAgent)
	return rt.RoundTripper.RoundTrip(req)
}

func createRoundTripper(inner http.RoundTripper, o *options) http.RoundTripper {
	if inner == nil {
		inner = http.DefaultTransport
	}
	if o.UserAgent == "" {
		// There's nothing to do...
		return inner
	}
	return &roundTripper{
		RoundTripper: inner,
		UserAgent:    o.UserAgent,
	}
}

type client struct {
	baseURL *url.URL
	client  *http.Client
}

// New returns a client for the pubmint server at base.
func New(base *url.URL, opts ...Option) Client {
	o := makeOptions(opts...)

	hc := &http.Client{}
	if o.Client != nil {
		cp := *o.Client
		hc = &cp
	}
	hc.Transport = createRoundTripper(hc.Transport, o)
	if o.Timeout != 0 {
		hc.Timeout = o.Timeout
	}

	return &client{baseURL: base, client: hc}
}

type exchangeRequest struct {
	Token string `json:"token"`
}

type mintResponse struct {
	Success  bool      `json:"success"`
	Token    string    `json:"token"`
	Expires  int64     `json:"expires"`
	Projects []Project `json:"projects"`
	Errors   []Cause   `json:"errors"`
}

func (c *client) Exchange(ctx context.Context, oidcToken string) (*MintResult, error) {
	body, err := json.Marshal(exchangeRequest{Token: oidcToken})
	if err != nil {
		return nil, err
	}

	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, tokenPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusCreated {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}

	var minted mintResponse
	if err := json.Unmarshal(raw, &minted); err != nil {
		return nil, fmt.Errorf("unmarshaling mint response: %w", err)
	}
	return &MintResult{
		Token:    minted.Token,
		Expires:  time.Unix(minted.Expires, 0),
		Projects: minted.Projects,
		Warnings: minted.Errors,
	}, nil
}
