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

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
)

func serverURL(t *testing.T, ts *httptest.Server) *url.URL {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestExchange(t *testing.T) {
	projectID := uuid.New()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if req.Token != "the-oidc-token" {
			t.Errorf("got token %q", req.Token)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"token":    "pubmint-abc123",
			"expires":  time.Now().Add(15 * time.Minute).Unix(),
			"projects": []Project{{ID: projectID, Name: "widget"}},
		})
	}))
	defer ts.Close()

	result, err := New(serverURL(t, ts)).Exchange(context.Background(), "the-oidc-token")
	if err != nil {
		t.Fatal(err)
	}
	if result.Token != "pubmint-abc123" {
		t.Errorf("got token %q", result.Token)
	}
	if !result.Expires.After(time.Now()) {
		t.Errorf("expiry %s is not in the future", result.Expires)
	}
	if len(result.Projects) != 1 || result.Projects[0].ID != projectID {
		t.Errorf("got projects %v", result.Projects)
	}
}

func TestExchangeFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{
			"message": "token claims did not match any registered publisher",
			"errors": [
				{"code": "invalid-publisher", "description": "valid token, but no corresponding active publisher"},
				{"code": "invalid-pending-publisher", "description": "valid token, but no corresponding pending publisher"}
			]
		}`))
	}))
	defer ts.Close()

	_, err := New(serverURL(t, ts)).Exchange(context.Background(), "the-oidc-token")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("got status %d", apiErr.StatusCode)
	}
	if !apiErr.HasKind("invalid-publisher") || !apiErr.HasKind("invalid-pending-publisher") {
		t.Errorf("missing expected kinds in %v", apiErr.Errors)
	}
	if apiErr.HasKind("invalid-token") {
		t.Error("HasKind reported a kind the server did not send")
	}
}

func TestExchangeNonJSONFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(serverURL(t, ts)).Exchange(context.Background(), "the-oidc-token")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Message != "bad gateway" {
		t.Errorf("got message %q", apiErr.Message)
	}
}

func TestUserAgentOption(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "foo" {
			t.Error(`expected user-agent to be set to "foo"`)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success": true, "token": "pubmint-abc123", "expires": 0, "projects": []}`))
	}))
	defer ts.Close()

	_, err := New(serverURL(t, ts), WithUserAgent("foo")).Exchange(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
}

func TestTimeoutOption(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer ts.Close()

	_, err := New(serverURL(t, ts), WithTimeout(50*time.Millisecond)).Exchange(context.Background(), "tok")
	if err == nil {
		t.Error("expected client to get timeout error on request")
	}
}
