package gmailrest

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/mailsift/mailsift/internal/provider"
)

const (
	redirectPort = "8089"
	callbackPath = "/callback"

	// authorizeTimeout bounds how long we wait for the user to complete
	// the browser flow.
	authorizeTimeout = 3 * time.Minute
)

// OpenURLFunc is invoked with the authorization URL so the caller can hand
// it to a browser. The flow still completes if opening fails, as long as
// the user visits the URL some other way.
type OpenURLFunc func(url string) error

// Authorize runs the interactive authorization-code flow: a local callback
// listener receives the code, which is exchanged for a token pair. Fails
// with an auth error on timeout, state mismatch, or missing code.
func Authorize(ctx context.Context, cfg *oauth2.Config, openURL OpenURLFunc) (*oauth2.Token, error) {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(stateBytes)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle(callbackPath, callbackHandler(state, codeChan, errChan))
	server := &http.Server{Addr: "localhost:" + redirectPort, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	cfg.RedirectURL = "http://localhost:" + redirectPort + callbackPath
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	if openURL != nil {
		if err := openURL(authURL); err != nil {
			// Non-fatal; the URL is still printed by the caller.
			_ = err
		}
	}

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, &provider.AuthError{Op: "authorize", Err: err}
	case <-time.After(authorizeTimeout):
		return nil, &provider.AuthError{Op: "authorize", Err: fmt.Errorf("timed out waiting for callback")}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &provider.AuthError{Op: "exchange code", Err: err}
	}
	return token, nil
}

// callbackHandler processes the OAuth redirect: it verifies the CSRF state
// and extracts the authorization code.
func callbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != expectedState {
			errChan <- fmt.Errorf("state mismatch: possible CSRF attack")
			fmt.Fprintf(w, "Error: state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			fmt.Fprintf(w, "Error: no authorization code received")
			return
		}
		codeChan <- code
		fmt.Fprintf(w, "Authorization successful! You can close this window.")
	}
}
