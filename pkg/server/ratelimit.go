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
	"net"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// rateLimiterClients bounds the tracked client set; beyond it the least
// recently seen clients are evicted and effectively start a fresh window.
const rateLimiterClients = 8192

// rateLimiter is a fixed-window per-client limiter for the public exchange
// endpoint. OIDC tokens are re-fetchable at will, so a runaway CI loop can
// hammer the endpoint; per-IP limiting keeps it from starving everyone else.
type rateLimiter struct {
	mu      sync.Mutex
	clients *lru.Cache
	limit   int
	window  time.Duration
	now     func() time.Time
}

type rateWindow struct {
	start time.Time
	count int
}

func newRateLimiter(limit int, window time.Duration) (*rateLimiter, error) {
	clients, err := lru.New(rateLimiterClients)
	if err != nil {
		return nil, err
	}
	return &rateLimiter{
		clients: clients,
		limit:   limit,
		window:  window,
		now:     time.Now,
	}, nil
}

func (l *rateLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if v, ok := l.clients.Get(client); ok {
		w := v.(*rateWindow)
		if now.Sub(w.start) < l.window {
			if w.count >= l.limit {
				return false
			}
			w.count++
			return true
		}
		w.start, w.count = now, 1
		return true
	}
	l.clients.Add(client, &rateWindow{start: now, count: 1})
	return true
}

// handler rejects over-limit clients with 429. A limit of zero disables the
// limiter.
func (l *rateLimiter) handler(next http.Handler) http.Handler {
	if l == nil || l.limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			client = r.RemoteAddr
		}
		if !l.allow(client) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: tooManyRequests})
			return
		}
		next.ServeHTTP(w, r)
	})
}
