package imapfolder

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
	"github.com/mailsift/mailsift/internal/textutil"
)

// textPart locates one textual leaf in a body structure.
type textPart struct {
	path     []int
	encoding string
	charset  string
}

// findTextParts walks the body structure and returns the first text/plain
// and text/html leaves in document order.
func findTextParts(bs imap.BodyStructure) (plain, html *textPart) {
	bs.Walk(func(path []int, part imap.BodyStructure) bool {
		sp, ok := part.(*imap.BodyStructureSinglePart)
		if !ok {
			return true
		}
		tp := &textPart{
			path:     append([]int(nil), path...),
			encoding: sp.Encoding,
		}
		if sp.Params != nil {
			tp.charset = sp.Params["charset"]
		}
		switch strings.ToLower(sp.MediaType()) {
		case "text/plain":
			if plain == nil {
				plain = tp
			}
		case "text/html":
			if html == nil {
				html = tp
			}
		}
		return true
	})
	return plain, html
}

// decodePart reverses the content-transfer-encoding and converts the
// charset to UTF-8.
func decodePart(data []byte, encoding, charset string) string {
	switch strings.ToLower(encoding) {
	case "base64":
		cleaned := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, string(data))
		if decoded, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
			data = decoded
		}
	case "quoted-printable":
		if decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(string(data)))); err == nil {
			data = decoded
		}
	}

	if charset != "" {
		if enc := textutil.GetEncodingByName(charset); enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(data); err == nil {
				return textutil.EnsureUTF8(string(decoded))
			}
		}
	}
	return textutil.EnsureUTF8(string(data))
}

// sectionFor builds the fetch item for a located part. An empty path means
// a non-multipart message, addressed via the TEXT specifier.
func sectionFor(tp *textPart) *imap.FetchItemBodySection {
	if len(tp.path) == 0 {
		return &imap.FetchItemBodySection{Specifier: imap.PartSpecifierText}
	}
	return &imap.FetchItemBodySection{Part: tp.path}
}

// sectionBytes finds the response section matching a located part.
// Servers may return sections in any order, so they are matched by part
// path rather than position.
func sectionBytes(buf *imapclient.FetchMessageBuffer, tp *textPart) ([]byte, bool) {
	want := sectionFor(tp)
	for _, sec := range buf.BodySection {
		if sec.Section == nil {
			continue
		}
		if sec.Section.Specifier == want.Specifier && pathsEqual(sec.Section.Part, want.Part) {
			return sec.Bytes, true
		}
	}
	// Single section responses from servers that omit the echo.
	if len(buf.BodySection) == 1 {
		return buf.BodySection[0].Bytes, true
	}
	return nil, false
}

func pathsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FetchBody downloads the textual bodies of one message: a BODYSTRUCTURE
// fetch locates the text parts, then the matching sections are downloaded
// and decoded.
func (c *Client) FetchBody(ctx context.Context, id string) (mail.BodyParts, error) {
	folder, uid, err := parseCompositeID(id)
	if err != nil {
		return mail.BodyParts{}, err
	}

	var bodies mail.BodyParts
	err = c.withConn(ctx, func(conn *imapclient.Client) error {
		if err := c.selectMailbox(folder); err != nil {
			return err
		}
		var uidSet imap.UIDSet
		uidSet.AddNum(uid)

		msgs, err := conn.Fetch(uidSet, &imap.FetchOptions{
			UID:           true,
			BodyStructure: &imap.FetchItemBodyStructure{},
		}).Collect()
		if err != nil {
			return &provider.ProviderError{Op: fmt.Sprintf("UID FETCH BODYSTRUCTURE %q", folder), Err: err}
		}
		if len(msgs) == 0 || msgs[0].BodyStructure == nil {
			return &provider.ProviderError{Op: "FETCH BODYSTRUCTURE", Err: fmt.Errorf("message %s not found", id)}
		}

		plain, html := findTextParts(msgs[0].BodyStructure)
		if plain == nil && html == nil {
			return nil
		}

		var sections []*imap.FetchItemBodySection
		if plain != nil {
			sections = append(sections, sectionFor(plain))
		}
		if html != nil {
			sections = append(sections, sectionFor(html))
		}

		bufs, err := conn.Fetch(uidSet, &imap.FetchOptions{UID: true, BodySection: sections}).Collect()
		if err != nil {
			return &provider.ProviderError{Op: fmt.Sprintf("UID FETCH BODY %q", folder), Err: err}
		}
		if len(bufs) == 0 {
			return &provider.ProviderError{Op: "FETCH BODY", Err: fmt.Errorf("message %s not found", id)}
		}

		if plain != nil {
			if data, ok := sectionBytes(bufs[0], plain); ok {
				bodies.Text = decodePart(data, plain.encoding, plain.charset)
			}
		}
		if html != nil {
			if data, ok := sectionBytes(bufs[0], html); ok {
				bodies.HTML = decodePart(data, html.encoding, html.charset)
			}
		}
		return nil
	})
	if err != nil {
		return mail.BodyParts{}, err
	}
	return bodies, nil
}
