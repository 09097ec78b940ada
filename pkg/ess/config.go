package ess

import (
	"fmt"
	"net/url"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/powerwall-tou/pkg/common"
	"github.com/raterudder/powerwall-tou/pkg/storage"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIURL       = "https://fleet-api.prd.na.vn.cloud.tesla.com"
	DefaultTokenURL     = "https://fleet-auth.prd.vn.cloud.tesla.com/oauth2/v3/token"
	DefaultAuthorizeURL = "https://auth.tesla.com/oauth2/v3/authorize"

	// ScopeEnergyCommands is required to change the tariff of an energy site.
	ScopeEnergyCommands = "energy_cmds"
)

// DefaultScopes are requested when a user authorizes the application.
var DefaultScopes = []string{"openid", "offline_access", "energy_device_data", ScopeEnergyCommands}

// ConfiguredOAuth registers the Tesla OAuth client flags and returns the
// config they populate.
func ConfiguredOAuth() *oauth2.Config {
	clientID := lflag.RequiredString("tesla-client-id", "Tesla Fleet API OAuth client ID")
	clientSecret := lflag.String("tesla-client-secret", "", "Tesla Fleet API OAuth client secret (optional for refresh)")
	tokenURL := lflag.String("tesla-token-url", DefaultTokenURL, "Tesla OAuth token URL")
	authURL := lflag.String("tesla-authorize-url", DefaultAuthorizeURL, "Tesla OAuth authorize URL")

	c := &oauth2.Config{
		Scopes: DefaultScopes,
	}
	lflag.Do(func() {
		if _, err := url.Parse(*tokenURL); err != nil {
			panic(fmt.Sprintf("failed to parse tesla-token-url (%s): %v", *tokenURL, err))
		}
		c.ClientID = *clientID
		c.ClientSecret = *clientSecret
		c.Endpoint = oauth2.Endpoint{
			AuthURL:   *authURL,
			TokenURL:  *tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
	})
	return c
}

// Configured sets up the Tesla publisher based on flags. The refresh token is
// read from and rotated into store.
func Configured(store storage.CredentialStore) *Tesla {
	oc := ConfiguredOAuth()
	apiURL := lflag.String("tesla-api-url", DefaultAPIURL, "Tesla Fleet API URL")

	client := common.HTTPClient(30 * time.Second)
	t := &Tesla{client: client}

	lflag.Do(func() {
		t.baseURL = *apiURL
		t.tokens = NewTokenRefresher(oc, store, client)
		if err := t.Validate(); err != nil {
			panic(fmt.Sprintf("tesla validation failed: %v", err))
		}
	})
	return t
}
