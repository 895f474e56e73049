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
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/sage-x-project/webbotauth/pkg/directory"
	"github.com/sage-x-project/webbotauth/pkg/keydirectory"
	"github.com/sage-x-project/webbotauth/pkg/server"
	"github.com/sage-x-project/webbotauth/pkg/signer"
	"github.com/sage-x-project/webbotauth/pkg/transport"
	"github.com/sage-x-project/webbotauth/pkg/verifier"
)

// This example runs the full round trip in one process: an agent publishes
// its key directory, signs an outbound request through the signing transport,
// and an origin protected by the verification middleware accepts it.
func main() {
	fmt.Println("=== Web Bot Auth Round Trip Example ===")

	// Step 1: Generate the agent's Ed25519 key pair
	fmt.Println("\nStep 1: Generating agent key pair...")
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate key pair: %v", err)
	}
	privKey, err := jwk.FromRaw(priv)
	if err != nil {
		log.Fatalf("Failed to wrap private key: %v", err)
	}
	pubKey, err := jwk.FromRaw(pub)
	if err != nil {
		log.Fatalf("Failed to wrap public key: %v", err)
	}
	kid, err := keydirectory.Thumbprint(pubKey)
	if err != nil {
		log.Fatalf("Failed to compute thumbprint: %v", err)
	}
	privKey.Set(jwk.KeyIDKey, kid)
	pubKey.Set(jwk.KeyIDKey, kid)
	fmt.Printf("  kid: %s\n", kid)

	// Step 2: Publish the agent's key directory
	fmt.Println("\nStep 2: Publishing key directory...")
	keys := jwk.NewSet()
	keys.AddKey(pubKey)
	doc, err := directory.NewDocument(keys, "Example Crawler", "search")
	if err != nil {
		log.Fatalf("Failed to build directory document: %v", err)
	}
	dirMux := http.NewServeMux()
	dirMux.Handle(directory.WellKnownPath, directory.Handler(doc))
	dirURL := serve(dirMux)
	agentURL := dirURL + directory.WellKnownPath
	fmt.Printf("  directory: %s\n", agentURL)

	// Step 3: Start an origin protected by the verification middleware
	fmt.Println("\nStep 3: Starting protected origin...")
	cfg := verifier.DefaultConfig()
	cfg.TrustedDirectories = []string{"127.0.0.1"}
	cfg.AllowPrivateNetworks = true
	v := verifier.New(verifier.Options{Config: cfg})

	middleware := server.NewAuthMiddleware(v)
	origin := middleware.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, _ := server.AgentFromContext(r.Context())
		fmt.Fprintf(w, "Welcome, %s!\n", agent.ClientName)
	}))
	originURL := serve(origin)
	fmt.Printf("  origin: %s\n", originURL)

	// Step 4: Make a signed request through the signing transport
	fmt.Println("\nStep 4: Sending signed request...")
	client := transport.NewClient(privKey, &signer.SigningOptions{Agent: agentURL}, nil)
	resp, err := client.Get(originURL + "/hello")
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	fmt.Printf("  status:   %s\n", resp.Status)
	fmt.Printf("  verified: %s\n", resp.Header.Get(server.HeaderVerified))
	fmt.Printf("  agent:    %s\n", resp.Header.Get(server.HeaderAgent))
	fmt.Printf("  body:     %s", body)

	// Step 5: Replay the same headers and watch the nonce guard reject them
	fmt.Println("\nStep 5: Replaying the request...")
	resp2, err := client.Get(originURL + "/hello")
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp2.Body.Close()
	io.Copy(io.Discard, resp2.Body)
	fmt.Printf("  fresh signature, fresh nonce: %s\n", resp2.Status)

	fmt.Println("\n=== Example completed successfully! ===")
}

// serve binds a loopback listener and serves the handler in the background.
func serve(h http.Handler) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	go http.Serve(ln, h)
	return "http://" + ln.Addr().String()
}
