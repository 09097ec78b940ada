package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/raterudder/powerwall-tou/pkg/ess"
	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/storage/storagemock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

type tokenResponse struct {
	status int
	body   map[string]any
}

func newTestServer(t *testing.T, tr tokenResponse, store *storagemock.MockCredentialStore) (*Server, *int) {
	calls := new(int)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.Equal(t, "client-id", r.Form.Get("client_id"))
		assert.Equal(t, ess.DefaultAPIURL, r.Form.Get("audience"))
		assert.Equal(t, "https://example.com/oauth_redirect", r.Form.Get("redirect_uri"))
		w.Header().Set("Content-Type", "application/json")
		if tr.status != 0 {
			w.WriteHeader(tr.status)
		}
		_ = json.NewEncoder(w).Encode(tr.body)
	}))
	t.Cleanup(ts.Close)

	srv := &Server{
		store:  store,
		states: newStateCache(stateTTL, maxStates),
		client: ts.Client(),
		pages:  pages,
		oauth: &oauth2.Config{
			ClientID:    "client-id",
			RedirectURL: "https://example.com/oauth_redirect",
			Scopes:      ess.DefaultScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://auth.example.com/oauth2/v3/authorize",
				TokenURL:  ts.URL + "/oauth2/v3/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		audience:      ess.DefaultAPIURL,
		publicKeyFile: filepath.Join(t.TempDir(), "public-key.pem"),
		serverName:    "test",
	}
	return srv, calls
}

func redirectReq(code, state string) *http.Request {
	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}
	if state != "" {
		q.Set("state", state)
	}
	return httptest.NewRequest(http.MethodGet, "/oauth_redirect?"+q.Encode(), nil)
}

var okToken = tokenResponse{body: map[string]any{
	"access_token":  "access",
	"refresh_token": "refresh",
	"token_type":    "Bearer",
	"expires_in":    28800,
}}

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t, okToken, new(storagemock.MockCredentialStore))
	h := srv.setupHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "test", w.Header().Get("Server"))
	assert.Contains(t, w.Body.String(), "https://auth.example.com/oauth2/v3/authorize?")
	assert.Contains(t, w.Body.String(), "client_id=client-id")
	assert.Contains(t, w.Body.String(), "energy_cmds")
	assert.Equal(t, 1, srv.states.len())
}

func TestOAuthRedirect(t *testing.T) {
	t.Run("Missing Params", func(t *testing.T) {
		srv, calls := newTestServer(t, okToken, new(storagemock.MockCredentialStore))
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, redirectReq("the-code", ""))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, *calls)
	})

	t.Run("Unknown State", func(t *testing.T) {
		srv, calls := newTestServer(t, okToken, new(storagemock.MockCredentialStore))
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, redirectReq("the-code", "nope"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, *calls)
	})

	t.Run("Authorization Denied", func(t *testing.T) {
		srv, calls := newTestServer(t, okToken, new(storagemock.MockCredentialStore))
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth_redirect?error=access_denied", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, *calls)
	})

	t.Run("Stores Token", func(t *testing.T) {
		store := new(storagemock.MockCredentialStore)
		store.On("WriteRefreshToken", mock.Anything, "refresh").Return(nil).Once()
		srv, calls := newTestServer(t, okToken, store)
		h := srv.setupHandler()
		state := srv.states.issue()

		w := httptest.NewRecorder()
		h.ServeHTTP(w, redirectReq("the-code", state))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Authorized")
		assert.Equal(t, 1, *calls)
		store.AssertExpectations(t)

		// states are single use
		w = httptest.NewRecorder()
		h.ServeHTTP(w, redirectReq("the-code", state))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 1, *calls)
	})

	t.Run("Exchange Fails", func(t *testing.T) {
		store := new(storagemock.MockCredentialStore)
		srv, _ := newTestServer(t, tokenResponse{status: http.StatusUnauthorized, body: map[string]any{"error": "invalid_grant"}}, store)
		state := srv.states.issue()

		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, redirectReq("the-code", state))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		store.AssertNotCalled(t, "WriteRefreshToken", mock.Anything, mock.Anything)
	})

	t.Run("Missing Refresh Token", func(t *testing.T) {
		store := new(storagemock.MockCredentialStore)
		srv, _ := newTestServer(t, tokenResponse{body: map[string]any{"access_token": "access", "token_type": "Bearer"}}, store)
		state := srv.states.issue()

		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, redirectReq("the-code", state))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		store.AssertNotCalled(t, "WriteRefreshToken", mock.Anything, mock.Anything)
	})

	t.Run("Store Fails", func(t *testing.T) {
		store := new(storagemock.MockCredentialStore)
		store.On("WriteRefreshToken", mock.Anything, "refresh").Return(assert.AnError)
		srv, _ := newTestServer(t, okToken, store)
		state := srv.states.issue()

		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, redirectReq("the-code", state))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	withIDToken := tokenResponse{body: map[string]any{
		"access_token":  "access",
		"refresh_token": "refresh",
		"id_token":      "raw-id-token",
		"token_type":    "Bearer",
	}}

	t.Run("ID Token Verified", func(t *testing.T) {
		store := new(storagemock.MockCredentialStore)
		store.On("WriteRefreshToken", mock.Anything, "refresh").Return(nil).Once()
		srv, _ := newTestServer(t, withIDToken, store)
		var verified string
		srv.verifyIDToken = func(ctx context.Context, raw string) (*oidc.IDToken, error) {
			verified = raw
			return &oidc.IDToken{Subject: "user-1"}, nil
		}
		state := srv.states.issue()

		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, redirectReq("the-code", state))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "raw-id-token", verified)
		store.AssertExpectations(t)
	})

	t.Run("ID Token Rejected", func(t *testing.T) {
		store := new(storagemock.MockCredentialStore)
		srv, _ := newTestServer(t, withIDToken, store)
		srv.verifyIDToken = func(ctx context.Context, raw string) (*oidc.IDToken, error) {
			return nil, assert.AnError
		}
		state := srv.states.issue()

		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, redirectReq("the-code", state))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		store.AssertNotCalled(t, "WriteRefreshToken", mock.Anything, mock.Anything)
	})
}

func TestPublicKey(t *testing.T) {
	srv, _ := newTestServer(t, okToken, new(storagemock.MockCredentialStore))
	h := srv.setupHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, publicKeyPath, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	pem := "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----\n"
	require.NoError(t, os.WriteFile(srv.publicKeyFile, []byte(pem), 0o600))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, publicKeyPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-pem-file", w.Header().Get("Content-Type"))
	assert.Equal(t, pem, w.Body.String())
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, okToken, new(storagemock.MockCredentialStore))

	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestUnknownPath(t *testing.T) {
	srv, _ := newTestServer(t, okToken, new(storagemock.MockCredentialStore))

	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
