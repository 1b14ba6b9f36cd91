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
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const testIssuer = "https://login.example.com"

// jwksServer serves the public halves of its keys as a JWKS.
type jwksServer struct {
	*httptest.Server
	mu   sync.Mutex
	keys map[string]*rsa.PrivateKey
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	js := &jwksServer{keys: make(map[string]*rsa.PrivateKey)}
	js.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		js.mu.Lock()
		defer js.mu.Unlock()
		set := jwk.NewSet()
		for kid, priv := range js.keys {
			key, err := jwk.Import(&priv.PublicKey)
			if err != nil {
				t.Errorf("jwk.Import: %v", err)
				return
			}
			key.Set(jwk.KeyIDKey, kid)
			set.AddKey(key)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(js.Close)
	return js
}

func (js *jwksServer) addKey(t *testing.T, kid string) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	js.mu.Lock()
	js.keys[kid] = priv
	js.mu.Unlock()
	return priv
}

func signToken(t *testing.T, priv *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(priv)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"email": "Scorer@Example.com",
		"iss":   testIssuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if got := bearerToken(r, "auth"); got != "" {
		t.Errorf("no token: %q", got)
	}
	r.Header.Set("Authorization", "Bearer  header-token ")
	if got := bearerToken(r, "auth"); got != "header-token" {
		t.Errorf("header token: %q", got)
	}
	r.AddCookie(&http.Cookie{Name: "auth", Value: "cookie-token"})
	if got := bearerToken(r, "auth"); got != "cookie-token" {
		t.Errorf("cookie should win: %q", got)
	}
	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := bearerToken(r, "auth"); got != "" {
		t.Errorf("basic auth: %q", got)
	}
}

func TestJWTAuthMiddleware(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "k1")
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	handler := jwtAuthMiddleware(Options{AuthJWKSURL: js.URL, AuthIssuer: testIssuer, AuthCookieName: "auth"},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(getUserID(r)))
		}))
	userFor := func(token string) string {
		r := httptest.NewRequest("GET", "/api/me", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Body.String()
	}

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.example.com"
	noEmail := validClaims()
	delete(noEmail, "email")
	noExp := validClaims()
	delete(noExp, "exp")
	hmac, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"Valid", signToken(t, priv, "k1", validClaims()), "scorer@example.com"},
		{"NoToken", "", ""},
		{"Garbage", "not.a.jwt", ""},
		{"Expired", signToken(t, priv, "k1", expired), ""},
		{"NoExpiry", signToken(t, priv, "k1", noExp), ""},
		{"WrongIssuer", signToken(t, priv, "k1", wrongIssuer), ""},
		{"NoEmail", signToken(t, priv, "k1", noEmail), ""},
		{"NoKeyID", signToken(t, priv, "", validClaims()), ""},
		{"UnknownKeyID", signToken(t, priv, "k9", validClaims()), ""},
		{"WrongKey", signToken(t, other, "k1", validClaims()), ""},
		{"HMAC", hmac, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := userFor(tc.token); got != tc.want {
				t.Errorf("user = %q, want %q", got, tc.want)
			}
		})
	}

	t.Run("Cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/me", nil)
		r.AddCookie(&http.Cookie{Name: "auth", Value: signToken(t, priv, "k1", validClaims())})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if got := w.Body.String(); got != "scorer@example.com" {
			t.Errorf("user = %q", got)
		}
	})
}

func TestJWKSKeyRotation(t *testing.T) {
	js := newJWKSServer(t)
	js.addKey(t, "k1")
	v := &jwksVerifier{url: js.URL, issuer: testIssuer}
	if err := v.refresh(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	priv2 := js.addKey(t, "k2")
	token := signToken(t, priv2, "k2", validClaims())
	if _, err := v.verify(token); err == nil {
		t.Fatal("a fresh key set should not be refetched")
	}

	v.mu.Lock()
	v.lastRefresh = time.Now().Add(-2 * time.Minute)
	v.mu.Unlock()
	email, err := v.verify(token)
	if err != nil || email != "scorer@example.com" {
		t.Errorf("verify after rotation = %q, %v", email, err)
	}

	if _, err := (&jwksVerifier{}).verify(token); err == nil {
		t.Error("a verifier without keys should reject tokens")
	}
}
