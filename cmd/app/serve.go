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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pubmint/pubmint/pkg/config"
	"github.com/pubmint/pubmint/pkg/exchange"
	"github.com/pubmint/pubmint/pkg/log"
	"github.com/pubmint/pubmint/pkg/registry"
	"github.com/pubmint/pubmint/pkg/server"
	"github.com/pubmint/pubmint/pkg/token"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start http server with configured api",
	Long:  `Starts a http server and serves the token exchange api`,
	Run: func(cmd *cobra.Command, args []string) {
		// Setup the logger to dev/prod
		log.ConfigureLogger(viper.GetString("log_type"))

		ctx := cmd.Context()

		cfg, err := config.Load(viper.GetString("config-path"))
		if err != nil {
			log.Logger.Fatalf("error loading config: %v", err)
		}

		store, err := buildStore(ctx)
		if err != nil {
			log.Logger.Fatalf("error connecting to publisher registry: %v", err)
		}
		defer store.Close()

		minter, err := token.NewWatchedMinter(
			viper.GetString("signing-key"),
			viper.GetString("token-audience"),
			viper.GetString("token-prefix"),
			viper.GetDuration("token-ttl"))
		if err != nil {
			log.Logger.Fatalf("error loading signing key: %v", err)
		}

		exchanger := exchange.NewService(
			server.NewIssuerPool(cfg),
			store,
			minter,
			viper.GetBool("exchange-enabled"))

		api, err := server.New(exchanger, store, cfg, server.Options{
			AdminToken: viper.GetString("admin-token"),
			RateLimit:  viper.GetInt("rate-limit"),
			RateWindow: viper.GetDuration("rate-window"),
		})
		if err != nil {
			log.Logger.Fatal(err)
		}

		if !viper.GetBool("exchange-enabled") {
			log.Logger.Warn("token exchange is disabled; all exchange requests will be rejected")
		}

		http.Handle("/metrics", promhttp.Handler())
		go func() {
			_ = http.ListenAndServe(viper.GetString("metrics-address"), nil)
		}()

		endpoint := fmt.Sprintf("%v:%v", viper.GetString("host"), viper.GetString("port"))
		httpServer := createHTTPServer(endpoint, api.Handler())

		var wg sync.WaitGroup
		httpServer.startListener(&wg)
		wg.Wait()
	},
}

// buildStore connects to postgres when a DSN is configured and falls back to
// the in-memory registry otherwise. The fallback loses all state on restart,
// so it logs loudly.
func buildStore(ctx context.Context) (registry.Store, error) {
	dsn := viper.GetString("database-url")
	if dsn == "" {
		log.Logger.Warn("no database-url configured; using in-memory publisher registry")
		return registry.NewMemoryStore(), nil
	}

	store, err := registry.NewPostgresStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func init() {
	serveCmd.Flags().String("host", "0.0.0.0", "The host on which to serve requests")
	serveCmd.Flags().String("port", "8080", "The port on which to serve requests")
	serveCmd.Flags().String("metrics-address", ":2112", "The address on which to serve prometheus metrics")
	serveCmd.Flags().String("database-url", "", "postgres connection string for the publisher registry; empty selects an in-memory registry")
	serveCmd.Flags().String("signing-key", "/etc/pubmint-config/signing.key", "path to the symmetric credential signing key")
	serveCmd.Flags().String("token-audience", "pubmint", "audience claim stamped into minted credentials")
	serveCmd.Flags().String("token-prefix", token.DefaultPrefix, "prefix prepended to minted credentials")
	serveCmd.Flags().Duration("token-ttl", token.DefaultTTL, "lifetime of minted credentials")
	serveCmd.Flags().Bool("exchange-enabled", true, "kill switch; false rejects every exchange before verification")
	serveCmd.Flags().String("admin-token", "", "bearer token for the management api; empty disables it")
	serveCmd.Flags().Int("rate-limit", 0, "max exchange requests per client per rate-window; zero disables limiting")
	serveCmd.Flags().Duration("rate-window", time.Minute, "window for rate-limit accounting")
	serveCmd.Flags().Duration("idle-connection-timeout", 30*time.Second, "timeout for idle connections")

	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		log.Logger.Fatal(err)
	}

	rootCmd.AddCommand(serveCmd)
}
