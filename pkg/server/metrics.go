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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"sigs.k8s.io/release-utils/version"
)

var (
	metricMintedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pubmint_minted_tokens",
		Help: "The total number of upload credentials minted",
	})

	metricExchangeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pubmint_exchange_failures",
		Help: "Failed token exchanges by error kind",
	}, []string{"kind"})

	MetricLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "pubmint_api_latency",
		Help: "API request latency by status code and method",
	}, []string{"code", "method"})

	RequestsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served by status code and method",
	}, []string{"code", "method"})

	_ = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "pubmint",
			Name:      "build_info",
			Help:      "A metric with a constant '1' value labeled by version, revision, branch, and goversion from which pubmint was built.",
			ConstLabels: prometheus.Labels{
				"version":    version.GetVersionInfo().GitVersion,
				"revision":   version.GetVersionInfo().GitCommit,
				"build_date": version.GetVersionInfo().BuildDate,
				"goversion":  version.GetVersionInfo().GoVersion,
			},
		},
		func() float64 { return 1 },
	)
)
