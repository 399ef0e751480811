package gmailrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/mailsift/mailsift/internal/provider"
)

// fakeTokenEndpoint serves refresh-token grants, counting calls.
type fakeTokenEndpoint struct {
	calls int
	fail  bool
}

func (f *fakeTokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.calls++
		if f.fail {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"fresh-%d","token_type":"Bearer","expires_in":3600}`, f.calls)
	}
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "cid",
		ClientSecret: "csec",
		Endpoint:     oauth2.Endpoint{AuthURL: tokenURL, TokenURL: tokenURL},
	}
}

func TestTokenSourceProactiveRefresh(t *testing.T) {
	tests := []struct {
		name        string
		expiresIn   time.Duration
		wantRefresh bool
	}{
		{"expires_in_30s", 30 * time.Second, true},
		{"exactly_at_skew_boundary", refreshSkew, true},
		{"expires_in_2m", 2 * time.Minute, false},
		{"no_expiry", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTokenEndpoint{}
			srv := httptest.NewServer(fake.handler())
			defer srv.Close()

			now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
			tok := &oauth2.Token{AccessToken: "stale", RefreshToken: "rt"}
			if tt.expiresIn > 0 {
				tok.Expiry = now.Add(tt.expiresIn)
			}

			ts := newTokenSource(testConfig(srv.URL), tok, nil)
			ts.now = func() time.Time { return now }

			got, err := ts.Token(context.Background())
			if err != nil {
				t.Fatalf("Token: %v", err)
			}
			if tt.wantRefresh {
				if fake.calls != 1 {
					t.Errorf("refresh calls = %d, want 1", fake.calls)
				}
				if got == "stale" {
					t.Error("Token returned stale access token after refresh")
				}
			} else {
				if fake.calls != 0 {
					t.Errorf("refresh calls = %d, want 0", fake.calls)
				}
				if got != "stale" {
					t.Errorf("Token = %q, want stale", got)
				}
			}
		})
	}
}

func TestTokenSourcePersistsRefreshedToken(t *testing.T) {
	fake := &fakeTokenEndpoint{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	var saved *oauth2.Token
	tok := &oauth2.Token{AccessToken: "stale", RefreshToken: "rt", Expiry: time.Now().Add(-time.Hour)}
	ts := newTokenSource(testConfig(srv.URL), tok, func(t *oauth2.Token) { saved = t })

	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if saved == nil {
		t.Fatal("onRefresh not called")
	}
	if saved.RefreshToken != "rt" {
		t.Errorf("refresh token not carried over: %q", saved.RefreshToken)
	}
}

func TestTokenSourceRefreshFailure(t *testing.T) {
	fake := &fakeTokenEndpoint{fail: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tok := &oauth2.Token{AccessToken: "stale", RefreshToken: "rt", Expiry: time.Now().Add(-time.Hour)}
	ts := newTokenSource(testConfig(srv.URL), tok, nil)

	_, err := ts.Token(context.Background())
	var ae *provider.AuthError
	if !errors.As(err, &ae) {
		t.Errorf("err = %v, want AuthError", err)
	}
}

// newTestClient wires a Client to a fake API server and fake token endpoint.
func newTestClient(t *testing.T, api http.Handler) (*Client, *fakeTokenEndpoint) {
	t.Helper()
	fake := &fakeTokenEndpoint{}
	tokenSrv := httptest.NewServer(fake.handler())
	t.Cleanup(tokenSrv.Close)
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	tok := &oauth2.Token{AccessToken: "valid", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)}
	c := NewClient(testConfig(tokenSrv.URL), tok, nil,
		WithBaseURL(apiSrv.URL),
		WithRateLimit(1000),
	)
	return c, fake
}

func TestCheckConnectionFetchesProfile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"emailAddress":"a@b.c","messagesTotal":42}`)
	}))

	if err := c.CheckConnection(context.Background()); err != nil {
		t.Fatalf("CheckConnection: %v", err)
	}
	email, total, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if email != "a@b.c" || total != 42 {
		t.Errorf("Profile = (%q, %d), want (a@b.c, 42)", email, total)
	}
}

func TestUnauthorizedRefreshAndRetryOnce(t *testing.T) {
	attempts := 0
	c, fake := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.Header.Get("Authorization") == "Bearer fresh-1" {
			fmt.Fprint(w, `{"emailAddress":"a@b.c","messagesTotal":1}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if err := c.CheckConnection(context.Background()); err != nil {
		t.Fatalf("CheckConnection: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", fake.calls)
	}
	if attempts != 2 {
		t.Errorf("api attempts = %d, want 2", attempts)
	}
}

func TestUnauthorizedTwiceIsAuthFailed(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := c.CheckConnection(context.Background())
	var ae *provider.AuthError
	if !errors.As(err, &ae) {
		t.Errorf("err = %v, want AuthError", err)
	}
}

func TestSearchIDsPaginatesToCap(t *testing.T) {
	pages := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		page := r.URL.Query().Get("pageToken")
		var msgs []gmailMessageRef
		base := 0
		if page == "p2" {
			base = 3
		}
		for i := 0; i < 3; i++ {
			msgs = append(msgs, gmailMessageRef{ID: "m" + strconv.Itoa(base+i)})
		}
		resp := listMessagesResponse{Messages: msgs}
		if page == "" {
			resp.NextPageToken = "p2"
		}
		json.NewEncoder(w).Encode(resp)
	}))

	ids, err := c.SearchIDs(context.Background(), provider.Query{}, 5)
	if err != nil {
		t.Fatalf("SearchIDs: %v", err)
	}
	if len(ids) != 5 {
		t.Errorf("len(ids) = %d, want 5 (cap)", len(ids))
	}
	if pages != 2 {
		t.Errorf("pages fetched = %d, want 2", pages)
	}
}

func TestBuildQuery(t *testing.T) {
	unread := true
	q := provider.Query{
		Start:            time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Unread:           &unread,
		Folders:          []string{"INBOX", "Label_7"},
		ExcludeImportant: true,
	}
	got := buildQuery(q)
	want := "after:2026/07/01 before:2026/08/01 is:unread (label:INBOX OR label:Label_7) -is:important"
	if got != want {
		t.Errorf("buildQuery =\n  %q\nwant\n  %q", got, want)
	}
}

func TestBuildQueryFromSet(t *testing.T) {
	got := buildQuery(provider.Query{From: []string{"a@x.com", "b@y.com"}})
	want := "(from:a@x.com OR from:b@y.com)"
	if got != want {
		t.Errorf("buildQuery = %q, want %q", got, want)
	}
}

func TestTrashMessagesBestEffort(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users/me/messages/bad/trash":
			w.WriteHeader(http.StatusBadRequest)
		case r.URL.Path == "/users/me/messages/gone/trash":
			w.WriteHeader(http.StatusNotFound)
		default:
			fmt.Fprint(w, `{}`)
		}
	}))

	trashed, failed, err := c.TrashMessages(context.Background(), []string{"ok1", "bad", "gone", "ok2"})
	if err != nil {
		t.Fatalf("TrashMessages: %v", err)
	}
	// "gone" counts as trashed: 404 means already deleted.
	if trashed != 3 || failed != 1 {
		t.Errorf("trashed = %d, failed = %d; want 3, 1", trashed, failed)
	}
}

func TestFetchHeadersFailureAbortsBatch(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/me/messages/m2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(gmailMessage{
			ID: "m", InternalDate: "1700000000000",
			Payload: &gmailPart{Headers: []gmailHeader{{Name: "From", Value: "X <x@y.z>"}}},
		})
	}))

	_, err := c.FetchHeaders(context.Background(), []string{"m1", "m2", "m3"})
	if err == nil {
		t.Fatal("FetchHeaders succeeded despite per-item failure")
	}
	var pe *provider.ProviderError
	if !errors.As(err, &pe) {
		t.Errorf("err = %v, want ProviderError", err)
	}
}
