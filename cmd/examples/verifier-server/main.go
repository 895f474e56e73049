// Copyright (C) 2025 SAGE-X Project
//
// This file is part of webbotauth.
//
// webbotauth is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// webbotauth is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with webbotauth.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/sage-x-project/webbotauth/pkg/config"
	"github.com/sage-x-project/webbotauth/pkg/server"
	"github.com/sage-x-project/webbotauth/pkg/verifier"
)

// This example runs an origin that requires verified agent signatures. It
// exposes two surfaces:
//
//   - "/" is protected by the verification middleware; only requests carrying
//     a valid web-bot-auth signature reach the handler.
//   - "/verify" accepts a JSON request snapshot and returns the verification
//     result, for deployments that verify out of process (see pkg/client).
func main() {
	var (
		addr       = flag.String("addr", ":8080", "listen address")
		configPath = flag.String("config", "", "path to YAML config (optional)")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	delegationValidator, err := cfg.DelegationValidator()
	if err != nil {
		log.Fatalf("Failed to build delegation validator: %v", err)
	}

	v := verifier.New(verifier.Options{
		Config:     cfg.VerifierConfig(),
		Delegation: delegationValidator,
		Logger:     logger,
	})

	middleware := server.NewAuthMiddleware(v)
	middleware.SetLogger(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req verifier.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result := v.Verify(r.Context(), req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})
	mux.Handle("/", middleware.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, _ := server.AgentFromContext(r.Context())
		name := "unknown agent"
		if agent != nil && agent.ClientName != "" {
			name = agent.ClientName
		}
		fmt.Fprintf(w, "Hello, %s!\n", name)
	})))

	logger.Info("verifier server listening",
		zap.String("addr", *addr),
		zap.Strings("trusted_directories", cfg.TrustedDirectories))
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
