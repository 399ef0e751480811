package gmailrest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/mailsift/mailsift/internal/provider"
)

// refreshSkew is how early a token is considered expired. A token with
// expiry exactly now+refreshSkew is refresh-eligible.
const refreshSkew = 60 * time.Second

// Endpoint is the Google OAuth2 endpoint pair.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// Scopes required for listing, reading and trashing messages.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.modify",
}

// OAuthConfig builds the oauth2 config for the given client credentials.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     Endpoint,
		Scopes:       Scopes,
	}
}

// tokenSource hands out access tokens, proactively refreshing them
// refreshSkew before expiry and persisting refreshed tokens via onRefresh.
type tokenSource struct {
	cfg       *oauth2.Config
	onRefresh func(*oauth2.Token)
	now       func() time.Time

	mu  sync.Mutex
	tok *oauth2.Token
}

func newTokenSource(cfg *oauth2.Config, tok *oauth2.Token, onRefresh func(*oauth2.Token)) *tokenSource {
	return &tokenSource{
		cfg:       cfg,
		tok:       tok,
		onRefresh: onRefresh,
		now:       time.Now,
	}
}

// Token returns the current access token, refreshing it first when it is
// within refreshSkew of expiry.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.tok.AccessToken != "" && !ts.expiredLocked() {
		return ts.tok.AccessToken, nil
	}
	if err := ts.refreshLocked(ctx); err != nil {
		return "", err
	}
	return ts.tok.AccessToken, nil
}

// ForceRefresh discards the cached access token and refreshes immediately.
// Used after an unauthorized response despite a seemingly valid token.
func (ts *tokenSource) ForceRefresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if err := ts.refreshLocked(ctx); err != nil {
		return "", err
	}
	return ts.tok.AccessToken, nil
}

func (ts *tokenSource) expiredLocked() bool {
	if ts.tok.Expiry.IsZero() {
		return false
	}
	return !ts.now().Before(ts.tok.Expiry.Add(-refreshSkew))
}

func (ts *tokenSource) refreshLocked(ctx context.Context) error {
	if ts.tok.RefreshToken == "" {
		return &provider.AuthError{Op: "refresh", Err: fmt.Errorf("no refresh token")}
	}

	src := ts.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: ts.tok.RefreshToken})
	newTok, err := src.Token()
	if err != nil {
		return &provider.AuthError{Op: "refresh", Err: err}
	}
	if newTok.RefreshToken == "" {
		newTok.RefreshToken = ts.tok.RefreshToken
	}
	ts.tok = newTok
	if ts.onRefresh != nil {
		ts.onRefresh(newTok)
	}
	return nil
}
