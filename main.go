// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/wicketkeeper/backend"
)

// main starts the web server and registers the API handlers.
func main() {
	cfg, err := backend.LoadConfig(".env")
	if err != nil {
		log.Fatal(err)
	}

	var (
		addr             = flag.String("addr", cfg.Addr, "The TCP address to listen to")
		useMockAuth      = flag.Bool("use-mock-auth", cfg.UseMockAuth, "Use Mock Authentication. For testing purposes only.")
		debugMode        = flag.Bool("debug", cfg.Debug, "Enable debug mode")
		raftEnabled      = flag.Bool("raft", cfg.RaftEnabled, "Enable Raft consensus")
		raftBind         = flag.String("raft-bind", cfg.RaftBind, "Address for Raft TCP transport")
		raftAdvertise    = flag.String("raft-advertise", cfg.RaftAdvertise, "Public address for Raft traffic (REQUIRED)")
		clusterAdvertise = flag.String("cluster-advertise", cfg.ClusterAdvertise, "Public address for internal cluster traffic (REQUIRED)")
		clusterAddr      = flag.String("cluster-addr", cfg.ClusterAddr, "Address for internal cluster API")
		raftSecret       = flag.String("raft-secret", cfg.RaftSecret, "Shared secret for cluster authentication")
		raftBootstrap    = flag.Bool("raft-bootstrap", cfg.RaftBootstrap, "Bootstrap the Raft cluster (only for first node)")
		dataDir          = flag.String("data-dir", cfg.DataDir, "Directory for tournament data")
		authCookieName   = flag.String("auth-cookie-name", cfg.AuthCookieName, "Name of the cookie containing the JWT")
		authJWKSURL      = flag.String("auth-jwks-url", cfg.AuthJWKSURL, "URL of the JWKS endpoint")
		authIssuer       = flag.String("auth-issuer", cfg.AuthIssuer, "Expected JWT issuer")
		bootstrapAdmin   = flag.String("admin", cfg.BootstrapAdmin, "Email of temporary admin user for bootstrapping access policy")
		publicURL        = flag.String("public-url", cfg.PublicURL, "Base URL of share links")
	)
	flag.Parse()

	if *raftEnabled {
		if *raftAdvertise == "" {
			log.Fatal("--raft-advertise is required when Raft is enabled")
		}
		if *clusterAdvertise == "" {
			log.Fatal("--cluster-advertise is required when Raft is enabled")
		}
		if *raftSecret == "" {
			log.Fatal("--raft-secret is required when Raft is enabled")
		}
	}

	masterKey, err := backend.LoadMasterKey(*dataDir, cfg.MasterKey)
	if err != nil {
		log.Fatalf("Critical Security Error: %v", err)
	}
	store := storage.New(*dataDir, masterKey)
	store.EnableCompression(true)

	server, err := backend.StartServer(backend.Options{
		Addr:                  *addr,
		ClusterAdvertise:      *clusterAdvertise,
		ClusterAddr:           *clusterAddr,
		DataDir:               *dataDir,
		UseMockAuth:           *useMockAuth,
		Debug:                 *debugMode,
		Storage:               store,
		MasterKey:             masterKey,
		RaftEnabled:           *raftEnabled,
		RaftBind:              *raftBind,
		RaftAdvertise:         *raftAdvertise,
		RaftSecret:            *raftSecret,
		RaftBootstrap:         *raftBootstrap,
		UseProductionTimeouts: true,
		AuthCookieName:        *authCookieName,
		AuthJWKSURL:           *authJWKSURL,
		AuthIssuer:            *authIssuer,
		BootstrapAdmin:        *bootstrapAdmin,
		PublicURL:             *publicURL,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	} else {
		log.Println("Gracefully stopped.")
	}
}
