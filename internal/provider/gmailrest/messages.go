package gmailrest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
	"github.com/mailsift/mailsift/internal/textutil"
)

const (
	labelImportant = "IMPORTANT"
	labelStarred   = "STARRED"

	// maxPartDepth bounds the MIME part tree traversal.
	maxPartDepth = 20
)

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailPartBody struct {
	Size         int    `json:"size"`
	Data         string `json:"data"`
	AttachmentID string `json:"attachmentId"`
}

type gmailPart struct {
	PartID   string        `json:"partId"`
	MimeType string        `json:"mimeType"`
	Filename string        `json:"filename"`
	Headers  []gmailHeader `json:"headers"`
	Body     gmailPartBody `json:"body"`
	Parts    []gmailPart   `json:"parts"`
}

type gmailMessage struct {
	ID           string     `json:"id"`
	ThreadID     string     `json:"threadId"`
	LabelIDs     []string   `json:"labelIds"`
	Snippet      string     `json:"snippet"`
	InternalDate string     `json:"internalDate"`
	Payload      *gmailPart `json:"payload"`
	Raw          string     `json:"raw"`
}

// decodeBase64URL decodes a base64url string, tolerating optional padding.
func decodeBase64URL(s string) ([]byte, error) {
	if strings.ContainsRune(s, '=') {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

func headerValue(headers []gmailHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func toMessage(m *gmailMessage) *mail.Message {
	var headers []gmailHeader
	if m.Payload != nil {
		headers = m.Payload.Headers
	}
	from := textutil.EnsureUTF8(headerValue(headers, "From"))

	msg := &mail.Message{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		From:        from,
		FromAddress: mail.NormalizeAddress(from),
		To:          textutil.EnsureUTF8(headerValue(headers, "To")),
		Subject:     textutil.EnsureUTF8(headerValue(headers, "Subject")),
		Snippet:     textutil.EnsureUTF8(m.Snippet),
		LabelIDs:    m.LabelIDs,
		IsImportant: hasLabel(m.LabelIDs, labelImportant),
		IsStarred:   hasLabel(m.LabelIDs, labelStarred),
	}
	if ms, err := strconv.ParseInt(m.InternalDate, 10, 64); err == nil && ms > 0 {
		msg.Date = time.UnixMilli(ms).UTC()
	}
	return msg
}

// FetchHeaders retrieves message metadata for the given IDs with bounded
// fan-out. Unlike a best-effort sync, any failure fails the whole batch:
// the fetch pipeline discards partial results rather than caching them.
func (c *Client) FetchHeaders(ctx context.Context, ids []string) ([]*mail.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	results := make([]*mail.Message, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			msg, err := c.getMetadata(gctx, id)
			if err != nil {
				return err
			}
			results[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) getMetadata(ctx context.Context, id string) (*mail.Message, error) {
	params := url.Values{}
	params.Set("format", "metadata")
	for _, h := range []string{"From", "To", "Subject", "Date"} {
		params.Add("metadataHeaders", h)
	}
	path := fmt.Sprintf("/users/%s/messages/%s?%s", c.userID, id, params.Encode())
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var m gmailMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse message %s: %w", id, err)
	}
	return toMessage(&m), nil
}

// FetchBody retrieves the textual bodies of one message by walking the
// MIME part tree of a full-format get.
func (c *Client) FetchBody(ctx context.Context, id string) (mail.BodyParts, error) {
	path := fmt.Sprintf("/users/%s/messages/%s?format=full", c.userID, id)
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return mail.BodyParts{}, err
	}
	var m gmailMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return mail.BodyParts{}, fmt.Errorf("parse message %s: %w", id, err)
	}
	if m.Payload == nil {
		return mail.BodyParts{}, nil
	}
	return collectBodies(m.Payload), nil
}

// collectBodies walks the part tree iteratively, keeping the first
// text/plain and first text/html leaf found in document order.
func collectBodies(root *gmailPart) mail.BodyParts {
	type frame struct {
		part  *gmailPart
		depth int
	}
	var bodies mail.BodyParts
	stack := []frame{{root, 0}}

	for len(stack) > 0 {
		f := stack[0]
		stack = stack[1:]
		if f.depth > maxPartDepth {
			continue
		}
		p := f.part

		if p.Body.Data != "" && p.Filename == "" {
			decoded, err := decodeBase64URL(p.Body.Data)
			if err == nil {
				text := textutil.EnsureUTF8(string(decoded))
				mt := strings.ToLower(p.MimeType)
				switch {
				case strings.HasPrefix(mt, "text/plain") && bodies.Text == "":
					bodies.Text = text
				case strings.HasPrefix(mt, "text/html") && bodies.HTML == "":
					bodies.HTML = text
				}
			}
		}
		for i := range p.Parts {
			stack = append(stack, frame{&p.Parts[i], f.depth + 1})
		}
	}
	return bodies
}

// FetchRaw retrieves the full RFC 822 source of one message.
func (c *Client) FetchRaw(ctx context.Context, id string) ([]byte, error) {
	path := fmt.Sprintf("/users/%s/messages/%s?format=raw", c.userID, id)
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var m gmailMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse message %s: %w", id, err)
	}
	raw, err := decodeBase64URL(m.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode raw MIME: %w", err)
	}
	return raw, nil
}

// TrashMessages moves messages to trash in fixed-size batches, tracking
// each item independently. One item failing never aborts the batch; only
// auth failures stop the run.
func (c *Client) TrashMessages(ctx context.Context, ids []string) (trashed, failed int, err error) {
	for start := 0; start < len(ids); start += trashBatchSize {
		end := start + trashBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		for _, id := range ids[start:end] {
			if ctx.Err() != nil {
				return trashed, failed, ctx.Err()
			}
			path := fmt.Sprintf("/users/%s/messages/%s/trash", c.userID, id)
			_, reqErr := c.request(ctx, http.MethodPost, path, nil)
			switch {
			case reqErr == nil:
				trashed++
			case isNotFound(reqErr):
				// Already gone; idempotent success.
				trashed++
			case isAuthError(reqErr):
				return trashed, failed, reqErr
			default:
				c.logger.Warn("trash failed", "id", id, "error", reqErr)
				failed++
			}
		}
	}
	return trashed, failed, nil
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func isAuthError(err error) bool {
	var ae *provider.AuthError
	return errors.As(err, &ae)
}
