package judge

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/jhillyerd/enmime"
)

// AttachmentFingerprints extracts "filename:size:mimeType" descriptors
// from a raw RFC 822 message. A message that cannot be parsed simply has
// no fingerprints.
func AttachmentFingerprints(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	var fps []string
	for _, att := range env.Attachments {
		fps = append(fps, fmt.Sprintf("%s:%d:%s", att.FileName, len(att.Content), att.ContentType))
	}
	return fps
}

// CacheKey derives the content hash a judgment is cached under. Identical
// subject, truncated body, language set, and attachments always map to the
// same key regardless of message identity.
func CacheKey(subject, truncatedBody string, languages, fingerprints []string) string {
	langs := append([]string(nil), languages...)
	sort.Strings(langs)

	h := sha256.New()
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(truncatedBody))
	for _, l := range langs {
		h.Write([]byte{0})
		h.Write([]byte(l))
	}
	for _, fp := range fingerprints {
		h.Write([]byte{1})
		h.Write([]byte(fp))
	}
	return hex.EncodeToString(h.Sum(nil))
}
