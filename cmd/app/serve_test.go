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

package app

import (
	"context"
	"testing"

	"github.com/spf13/viper"

	"github.com/pubmint/pubmint/pkg/registry"
)

func TestBuildStoreDefaultsToMemory(t *testing.T) {
	viper.Set("database-url", "")

	store, err := buildStore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, ok := store.(*registry.MemoryStore); !ok {
		t.Errorf("expected a memory store, got %T", store)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

func TestServeFlagDefaults(t *testing.T) {
	tests := map[string]string{
		"port":             "8080",
		"metrics-address":  ":2112",
		"signing-key":      "/etc/pubmint-config/signing.key",
		"token-prefix":     "pubmint-",
		"token-ttl":        "15m0s",
		"exchange-enabled": "true",
		"admin-token":      "",
		"rate-limit":       "0",
	}
	for flag, want := range tests {
		f := serveCmd.Flags().Lookup(flag)
		if f == nil {
			t.Errorf("flag %s is not registered", flag)
			continue
		}
		if f.DefValue != want {
			t.Errorf("flag %s default = %q, want %q", flag, f.DefValue, want)
		}
	}
}
