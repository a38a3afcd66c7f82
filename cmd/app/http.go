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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/pubmint/pubmint/pkg/log"
)

// drainTimeout bounds how long a terminating server waits for in-flight
// exchanges before their connections are closed.
const drainTimeout = 30 * time.Second

type httpServer struct {
	*http.Server
	httpServerEndpoint string
}

func createHTTPServer(serverEndpoint string, handler http.Handler) httpServer {
	srv := &http.Server{
		Addr:              serverEndpoint,
		Handler:           handler,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       viper.GetDuration("idle-connection-timeout"),
	}
	return httpServer{Server: srv, httpServerEndpoint: serverEndpoint}
}

// startListener serves on a fresh goroutine and registers a SIGINT/SIGTERM
// handler that drains the server before wg releases. Callers block on
// wg.Wait() until shutdown completes.
func (h httpServer) startListener(wg *sync.WaitGroup) {
	log.Logger.Infof("listening on http at %s", h.httpServerEndpoint)

	drained := make(chan struct{})
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := h.Shutdown(ctx); err != nil {
			log.Logger.Errorf("shutting down http server: %v", err)
		}
		close(drained)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := h.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger.Fatal(err)
		}
		<-drained
		log.Logger.Info("http server stopped")
	}()
}
