package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/powerwall-tou/pkg/common"
	"github.com/raterudder/powerwall-tou/pkg/ess"
	"github.com/raterudder/powerwall-tou/pkg/log"
	"github.com/raterudder/powerwall-tou/pkg/storage"
	"golang.org/x/oauth2"
)

const publicKeyPath = "/.well-known/appspecific/com.tesla.3p.public-key.pem"

// tokenVerifier is a function that validates an ID Token returned with the
// OAuth tokens.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server handles the one-time Tesla authorization. It sends the user to Tesla
// to sign in and stores the refresh token Tesla redirects back with.
type Server struct {
	store  storage.CredentialStore
	oauth  *oauth2.Config
	states *stateCache
	client *http.Client
	pages  *template.Template

	audience      string
	publicKeyFile string
	verifyIDToken tokenVerifier

	listenAddr string
	httpServer *http.Server
	serverName string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(store storage.CredentialStore, oc *oauth2.Config) *Server {
	srv := &Server{
		store:      store,
		states:     newStateCache(stateTTL, maxStates),
		client:     common.HTTPClient(30 * time.Second),
		pages:      pages,
		serverName: "powerwall-tou",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	callbackURL := lflag.String("callback-url", "http://localhost:"+port+"/oauth_redirect", "URL Tesla redirects back to after authorization")
	audience := lflag.String("tesla-audience", ess.DefaultAPIURL, "Audience requested for the Tesla tokens")
	oidcIssuer := lflag.String("oidc-issuer", "", "Issuer used to verify the Tesla id_token (optional)")
	publicKeyFile := lflag.String("public-key-file", "public-key.pem", "PEM public key served for Tesla partner registration")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.audience = *audience
		srv.publicKeyFile = *publicKeyFile

		cfg := *oc
		cfg.RedirectURL = *callbackURL
		srv.oauth = &cfg

		if *oidcIssuer != "" {
			ctx := oidc.ClientContext(context.Background(), srv.client)
			provider, err := oidc.NewProvider(ctx, *oidcIssuer)
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Tesla OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.verifyIDToken = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}).Verify
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /oauth_redirect", s.handleOAuthRedirect)
	mux.HandleFunc("GET "+publicKeyPath, s.handlePublicKey)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
