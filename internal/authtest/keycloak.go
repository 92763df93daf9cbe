// Package authtest provides a fake Keycloak token endpoint for tests of
// packages that talk through an authenticated client.
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const (
	ClientID     = "AzureDiamond"
	ClientSecret = "hunter2"
	Realm        = "mordor"
	Token        = "my_token"
)

// Keycloak serves the client credentials grant for ClientID/ClientSecret
// under /auth/realms/<Realm>, always issuing Token.
type Keycloak struct {
	*httptest.Server
	fetches atomic.Int32
	status  atomic.Int32
}

func NewKeycloak(t testing.TB) *Keycloak {
	t.Helper()
	kc := &Keycloak{}
	kc.status.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/realms/"+Realm+"/protocol/openid-connect/token", kc.serveToken)
	kc.Server = httptest.NewServer(mux)
	t.Cleanup(kc.Close)
	return kc
}

func (kc *Keycloak) serveToken(w http.ResponseWriter, r *http.Request) {
	kc.fetches.Add(1)
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" ||
		r.PostForm.Get("client_id") != ClientID ||
		r.PostForm.Get("client_secret") != ClientSecret {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(int(kc.status.Load()))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"token_type":   "Bearer",
		"access_token": Token,
	})
}

// AuthServer is the value to configure as AUTH_SERVER.
func (kc *Keycloak) AuthServer() string {
	return kc.URL + "/auth"
}

// Fetches reports how many token requests were received.
func (kc *Keycloak) Fetches() int {
	return int(kc.fetches.Load())
}

// FailWith makes subsequent token requests answer with status.
func (kc *Keycloak) FailWith(status int) {
	kc.status.Store(int32(status))
}

// BearerHeader is the Authorization header value requests should carry.
func BearerHeader() string {
	return "Bearer " + Token
}
