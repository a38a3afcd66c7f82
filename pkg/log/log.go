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

// Package log holds the process-wide zap logger. Credentials and raw OIDC
// tokens must never be logged; callers log token IDs and publisher IDs
// instead.
package log

import (
	"context"
	"log"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process logger, development-configured until
// ConfigureLogger runs.
var Logger *zap.SugaredLogger

func init() {
	ConfigureLogger("dev")
}

// ConfigureLogger rebuilds Logger. "prod" selects JSON output with
// Stackdriver-style keys; anything else keeps the colored console encoder.
func ConfigureLogger(logType string) {
	var cfg zap.Config
	if logType == "prod" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.LevelKey = "severity"
		cfg.EncoderConfig.MessageKey = "message"
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	Logger = logger.Sugar()
}

// CliLogger writes bare messages for the key-generation and other local
// commands, where timestamps and levels are noise.
var CliLogger = createCliLogger()

func createCliLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.LevelKey = ""
	cfg.DisableCaller = true
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("building cli logger: %v", err)
	}

	return logger.Sugar()
}

// ContextLogger annotates Logger with the chi request ID from ctx, so one
// exchange's verification, promotion and minting lines correlate.
func ContextLogger(ctx context.Context) *zap.SugaredLogger {
	logger := Logger
	if ctx != nil {
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			logger = logger.With(zap.String("requestID", reqID))
		}
	}

	return logger
}
