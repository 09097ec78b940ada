package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/raterudder/powerwall-tou/pkg/log"
	"golang.org/x/oauth2"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to render page", slog.String("page", name), slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// clientContext makes the oauth2 package use the server's http client.
func (s *Server) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	state := s.states.issue()
	authURL := s.oauth.AuthCodeURL(state)
	log.Ctx(r.Context()).DebugContext(r.Context(), "issued oauth state", slog.Int("outstanding", s.states.len()))

	s.renderPage(w, r, "index.html", struct {
		AuthURL string
	}{
		AuthURL: authURL,
	})
}

func (s *Server) handleOAuthRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		log.Ctx(ctx).WarnContext(ctx, "tesla authorization failed", slog.String("error", errCode), slog.String("description", q.Get("error_description")))
		writeJSONError(w, "authorization failed: "+errCode, http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		writeJSONError(w, "code and state are required", http.StatusBadRequest)
		return
	}
	if !s.states.consume(state) {
		log.Ctx(ctx).WarnContext(ctx, "unknown or expired oauth state")
		writeJSONError(w, "invalid or expired state", http.StatusBadRequest)
		return
	}

	tok, err := s.oauth.Exchange(
		s.clientContext(ctx),
		code,
		oauth2.SetAuthURLParam("audience", s.audience),
	)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to exchange authorization code", slog.Any("error", err))
		writeJSONError(w, "failed to exchange authorization code", http.StatusInternalServerError)
		return
	}
	if tok.RefreshToken == "" {
		log.Ctx(ctx).ErrorContext(ctx, "token response missing refresh token")
		writeJSONError(w, "token response missing refresh token", http.StatusInternalServerError)
		return
	}

	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" && s.verifyIDToken != nil {
		idToken, err := s.verifyIDToken(ctx, rawIDToken)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to verify id token", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).InfoContext(ctx, "verified tesla id token", slog.String("subject", idToken.Subject))
	}

	if err := s.store.WriteRefreshToken(ctx, tok.RefreshToken); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to store refresh token", slog.Any("error", err))
		writeJSONError(w, "failed to store refresh token", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "stored tesla refresh token", slog.Int("length", len(tok.RefreshToken)))

	s.renderPage(w, r, "authorized.html", nil)
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	b, err := os.ReadFile(s.publicKeyFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// we don't write JSON here because we don't know what file type is expected
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to read public key", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	if _, err := w.Write(b); err != nil {
		panic(http.ErrAbortHandler)
	}
}
