package judge

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/textutil"
)

// maxBodyChars bounds the body content used for hashing and prompting.
// The truncation point is part of the cache key, so it must not change
// without invalidating existing cache entries.
const maxBodyChars = 4000

// SelectBody picks the judgment input text: HTML body content when
// present, else plain text, else empty. The result is whitespace-collapsed
// and truncated to maxBodyChars runes.
func SelectBody(parts mail.BodyParts) string {
	var text string
	switch {
	case parts.HTML != "":
		text = htmlText(parts.HTML)
	default:
		text = textutil.CollapseWhitespace(parts.Text)
	}
	return textutil.TruncateChars(text, maxBodyChars)
}

// htmlText extracts the visible text of an HTML document: the inner
// content of the body element when one exists, the whole document when
// untagged. Comments, scripts, and styles contribute nothing.
func htmlText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return textutil.CollapseWhitespace(src)
	}
	root := doc
	if body := findElement(doc, "body"); body != nil {
		root = body
	}
	var sb strings.Builder
	collectText(root, &sb)
	return textutil.CollapseWhitespace(sb.String())
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
