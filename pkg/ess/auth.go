package ess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/storage"
	"golang.org/x/oauth2"
)

// ErrMissingScope is returned when the access token wasn't granted a scope
// needed to publish tariffs.
var ErrMissingScope = errors.New("access token missing required scope")

// TokenRefresher exchanges the stored refresh token for an access token.
type TokenRefresher struct {
	config        *oauth2.Config
	store         storage.CredentialStore
	client        *http.Client
	requiredScope string
}

// NewTokenRefresher returns a TokenRefresher that requires the energy commands
// scope.
func NewTokenRefresher(config *oauth2.Config, store storage.CredentialStore, client *http.Client) *TokenRefresher {
	return &TokenRefresher{
		config:        config,
		store:         store,
		client:        client,
		requiredScope: ScopeEnergyCommands,
	}
}

// AccessToken exchanges the stored refresh token and persists the rotated
// refresh token before returning the new access token. Tesla invalidates the
// old refresh token once it has been used.
func (r *TokenRefresher) AccessToken(ctx context.Context) (string, error) {
	refresh, err := r.store.ReadRefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}

	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token response missing access token")
	}

	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		if err := r.store.WriteRefreshToken(ctx, tok.RefreshToken); err != nil {
			return "", fmt.Errorf("failed to persist rotated refresh token: %w", err)
		}
		log.Ctx(ctx).DebugContext(ctx, "persisted rotated refresh token", slog.Int("length", len(tok.RefreshToken)))
	} else {
		log.Ctx(ctx).WarnContext(ctx, "token response did not rotate the refresh token")
	}

	if err := r.checkClaims(ctx, tok.AccessToken); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// checkClaims inspects the access token without verifying its signature. Only
// the Fleet API can verify it; this is just to fail before making any calls
// with a token that can't publish.
func (r *TokenRefresher) checkClaims(ctx context.Context, accessToken string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "access token is not a jwt, skipping scope check", slog.Any("error", err))
		return nil
	}

	scopes := tokenScopes(claims)
	attrs := []any{slog.Any("scopes", scopes)}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		attrs = append(attrs, slog.Time("expiresAt", exp.Time))
	}
	log.Ctx(ctx).DebugContext(ctx, "got tesla access token", attrs...)

	if r.requiredScope != "" && !slices.Contains(scopes, r.requiredScope) {
		return fmt.Errorf("%w: %s", ErrMissingScope, r.requiredScope)
	}
	return nil
}

// tokenScopes returns the scopes from the scp claim which Tesla sends as an
// array, falling back to a space separated scope claim.
func tokenScopes(claims jwt.MapClaims) []string {
	var scopes []string
	switch v := claims["scp"].(type) {
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
	case string:
		scopes = strings.Fields(v)
	}
	if len(scopes) == 0 {
		if v, ok := claims["scope"].(string); ok {
			scopes = strings.Fields(v)
		}
	}
	return scopes
}
