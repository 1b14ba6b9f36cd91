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

package backend

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const defaultAuthCookie = "wicketkeeper_auth"

// jwksVerifier validates tokens against a JWKS that is refreshed when an
// unknown key id shows up, at most once a minute.
type jwksVerifier struct {
	url    string
	issuer string

	mu          sync.RWMutex
	keys        jwk.Set
	lastRefresh time.Time
}

func (v *jwksVerifier) refresh() error {
	if v.url == "" {
		return fmt.Errorf("no JWKS URL provided")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	set, err := jwk.Fetch(ctx, v.url)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	v.mu.Lock()
	v.keys = set
	v.lastRefresh = time.Now()
	v.mu.Unlock()
	return nil
}

func (v *jwksVerifier) lookup(kid string) (any, error) {
	v.mu.RLock()
	set := v.keys
	v.mu.RUnlock()
	if set == nil {
		return nil, fmt.Errorf("JWKS not initialized")
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to materialize key: %w", err)
	}
	return raw, nil
}

func (v *jwksVerifier) keyFunc(token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token missing 'kid' header")
	}
	key, err := v.lookup(kid)
	if err == nil {
		return key, nil
	}

	v.mu.RLock()
	stale := time.Since(v.lastRefresh) > time.Minute
	v.mu.RUnlock()
	if !stale {
		return nil, err
	}
	if err := v.refresh(); err != nil {
		log.Printf("Error refreshing JWKS: %v", err)
		return nil, err
	}
	return v.lookup(kid)
}

// verify returns the normalized email claim of a valid token.
func (v *jwksVerifier) verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse(tokenString, v.keyFunc, opts...)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return "", fmt.Errorf("token has no email claim")
	}
	return normalizeEmail(email), nil
}

// bearerToken returns the token from the auth cookie or, failing that,
// the Authorization header.
func bearerToken(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

// jwtAuthMiddleware identifies the user from a JWT. Requests without a
// valid token proceed anonymously.
func jwtAuthMiddleware(opts Options, next http.Handler) http.Handler {
	v := &jwksVerifier{url: opts.AuthJWKSURL, issuer: opts.AuthIssuer}
	if v.url != "" {
		if err := v.refresh(); err != nil {
			log.Printf("Warning: Failed to fetch JWKS on startup: %v", err)
		}
	} else {
		log.Println("Warning: No AuthJWKSURL provided. JWT validation will fail unless MockAuth is used.")
	}
	cookieName := opts.AuthCookieName
	if cookieName == "" {
		cookieName = defaultAuthCookie
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r, cookieName)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}
		email, err := v.verify(tokenString)
		if err != nil {
			if opts.Debug {
				log.Printf("JWT Validation failed: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
