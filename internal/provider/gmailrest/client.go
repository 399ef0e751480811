// Package gmailrest implements the provider contract against the Gmail
// REST API with a hand-rolled HTTP client: bearer-token calls, proactive
// token refresh, pagination, and batched metadata retrieval.
package gmailrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
	"github.com/mailsift/mailsift/internal/textutil"
)

const (
	defaultBaseURL = "https://gmail.googleapis.com/gmail/v1"
	defaultTimeout = 30 * time.Second

	// pageSize is the Gmail list cap per page.
	pageSize = 500

	// trashBatchSize bounds in-flight trash calls per batch.
	trashBatchSize = 50

	// maxRetries covers transient 429/5xx responses. Auth failures are
	// never retried beyond the single refresh-and-retry pass.
	maxRetries = 3
)

// Client is the Gmail REST adapter.
type Client struct {
	httpClient  *http.Client
	tokens      *tokenSource
	limiter     *rate.Limiter
	logger      *slog.Logger
	baseURL     string
	userID      string
	concurrency int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithConcurrency sets the max parallel requests for batch operations.
func WithConcurrency(n int) Option {
	return func(c *Client) { c.concurrency = n }
}

// WithBaseURL overrides the API base URL. Tests point this at a fake server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithRateLimit sets the request rate in queries per second.
func WithRateLimit(qps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(qps), int(qps)+1) }
}

// NewClient creates a Gmail adapter for a stored token. onRefresh is called
// with every refreshed token so the credential store stays current.
func NewClient(cfg *oauth2.Config, tok *oauth2.Token, onRefresh func(*oauth2.Token), opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		tokens:      newTokenSource(cfg, tok, onRefresh),
		limiter:     rate.NewLimiter(5, 10),
		logger:      slog.Default(),
		baseURL:     defaultBaseURL,
		userID:      "me",
		concurrency: 10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kind identifies the adapter variant.
func (c *Client) Kind() mail.ProviderKind { return mail.KindGmail }

// Close releases resources held by the client.
func (c *Client) Close() error { return nil }

// request makes one authorized API call. On 401 it refreshes the token
// once and retries once; a second unauthorized response surfaces as an
// auth failure and aborts the enclosing operation.
func (c *Client) request(ctx context.Context, method, path string, bodyBytes []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	refreshed := false
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt)
			c.logger.Debug("retrying request", "attempt", attempt, "backoff", backoff, "path", path)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			if refreshed {
				return nil, &provider.AuthError{Op: path, Err: fmt.Errorf("unauthorized after refresh")}
			}
			refreshed = true
			token, err = c.tokens.ForceRefresh(ctx)
			if err != nil {
				return nil, err
			}
			attempt-- // the refreshed retry does not consume a backoff attempt
			continue

		case http.StatusTooManyRequests:
			c.logger.Debug("rate limited, backing off", "path", path, "attempt", attempt)
			lastErr = fmt.Errorf("rate limited (429)")
			continue

		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue

		case http.StatusNotFound:
			return nil, &NotFoundError{Path: path}

		default:
			return nil, &provider.ProviderError{
				Op:     method + " " + path,
				Status: resp.StatusCode,
				Err:    fmt.Errorf("%s", textutil.TruncateChars(string(respBody), 200)),
			}
		}
	}

	return nil, &provider.ProviderError{Op: method + " " + path, Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// calculateBackoff returns an exponential backoff with full jitter.
func calculateBackoff(attempt int) time.Duration {
	base := float64(uint(1) << uint(attempt))
	if base > 8 {
		base = 8
	}
	return time.Duration(rand.Float64() * base * float64(time.Second))
}

// NotFoundError indicates a 404 response. Trash treats it as success so
// deleting an already-deleted message stays idempotent.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

type profileResponse struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int64  `json:"messagesTotal"`
}

// CheckConnection verifies the token by fetching the user profile.
func (c *Client) CheckConnection(ctx context.Context) error {
	_, _, err := c.Profile(ctx)
	return err
}

// Profile returns the authenticated user's address and message count.
func (c *Client) Profile(ctx context.Context) (email string, total int64, err error) {
	path := fmt.Sprintf("/users/%s/profile", c.userID)
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", 0, err
	}
	var resp profileResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", 0, fmt.Errorf("parse profile: %w", err)
	}
	return resp.EmailAddress, resp.MessagesTotal, nil
}

type gmailLabel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	MessagesTotal int64  `json:"messagesTotal"`
}

type listLabelsResponse struct {
	Labels []gmailLabel `json:"labels"`
}

// ListFolders returns the account's labels.
func (c *Client) ListFolders(ctx context.Context) ([]mail.Folder, error) {
	path := fmt.Sprintf("/users/%s/labels", c.userID)
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp listLabelsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}

	folders := make([]mail.Folder, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		role := ""
		switch l.ID {
		case "INBOX":
			role = "inbox"
		case "TRASH":
			role = "trash"
		}
		folders = append(folders, mail.Folder{
			ID:       l.ID,
			Name:     l.Name,
			Role:     role,
			Messages: l.MessagesTotal,
		})
	}
	return folders, nil
}

// buildQuery renders a provider query as a single Gmail search expression:
// date bounds, optional read-state filter, an OR of label ids, an OR of
// senders, and negative flag terms for active exclusions.
func buildQuery(q provider.Query) string {
	var terms []string
	if !q.Start.IsZero() {
		terms = append(terms, "after:"+q.Start.Format("2006/01/02"))
	}
	if !q.End.IsZero() {
		terms = append(terms, "before:"+q.End.Format("2006/01/02"))
	}
	if q.Unread != nil {
		if *q.Unread {
			terms = append(terms, "is:unread")
		} else {
			terms = append(terms, "is:read")
		}
	}
	if len(q.Folders) > 0 {
		parts := make([]string, len(q.Folders))
		for i, id := range q.Folders {
			parts[i] = "label:" + id
		}
		terms = append(terms, "("+strings.Join(parts, " OR ")+")")
	}
	if len(q.From) > 0 {
		parts := make([]string, len(q.From))
		for i, addr := range q.From {
			parts[i] = "from:" + addr
		}
		terms = append(terms, "("+strings.Join(parts, " OR ")+")")
	}
	if q.ExcludeImportant {
		terms = append(terms, "-is:important")
	}
	if q.ExcludeStarred {
		terms = append(terms, "-is:starred")
	}
	return strings.Join(terms, " ")
}

type gmailMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type listMessagesResponse struct {
	Messages      []gmailMessageRef `json:"messages"`
	NextPageToken string            `json:"nextPageToken"`
}

// SearchIDs pages through the message list until max results or no
// further page token.
func (c *Client) SearchIDs(ctx context.Context, q provider.Query, max int) ([]string, error) {
	query := buildQuery(q)
	var ids []string
	pageToken := ""

	for {
		remaining := max - len(ids)
		if max > 0 && remaining <= 0 {
			break
		}
		size := pageSize
		if max > 0 && remaining < size {
			size = remaining
		}

		params := url.Values{}
		params.Set("maxResults", strconv.Itoa(size))
		if query != "" {
			params.Set("q", query)
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		path := fmt.Sprintf("/users/%s/messages?%s", c.userID, params.Encode())
		data, err := c.request(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var resp listMessagesResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse message list: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.ID)
			if max > 0 && len(ids) >= max {
				return ids, nil
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return ids, nil
}
