package cache

import (
	"errors"
	"os"
	"time"

	"github.com/mailsift/mailsift/internal/fileutil"
	"github.com/mailsift/mailsift/internal/mail"
)

// JudgmentTTL is how long a cached judgment stays valid after its judged
// time. Expired entries are purged lazily on the next load.
const JudgmentTTL = 30 * 24 * time.Hour

// JudgmentCache maps content hashes to judgments, independent of any
// account or message identity. Persisted as one whole-file JSON document;
// callers flush once per run via Save.
type JudgmentCache struct {
	path    string
	entries map[string]mail.Judgment
}

// LoadJudgments reads the global judgment cache, dropping expired entries.
// A missing or corrupt file yields an empty cache rather than an error.
func LoadJudgments(path string, now time.Time) *JudgmentCache {
	c := &JudgmentCache{path: path, entries: make(map[string]mail.Judgment)}

	var raw map[string]mail.Judgment
	if err := fileutil.ReadJSON(path, &raw); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			// Corrupt cache: start fresh, the next Save overwrites it.
			return c
		}
		return c
	}
	cutoff := now.Add(-JudgmentTTL)
	for hash, j := range raw {
		if j.JudgedAt.After(cutoff) {
			c.entries[hash] = j
		}
	}
	return c
}

// Get returns the cached judgment for a content hash.
func (c *JudgmentCache) Get(hash string) (mail.Judgment, bool) {
	j, ok := c.entries[hash]
	return j, ok
}

// Put records a judgment in memory. It reaches disk on the next Save.
func (c *JudgmentCache) Put(hash string, j mail.Judgment) {
	c.entries[hash] = j
}

// Len returns the number of live entries.
func (c *JudgmentCache) Len() int {
	return len(c.entries)
}

// Save overwrites the cache file with the in-memory entries.
func (c *JudgmentCache) Save() error {
	if err := fileutil.MkdirPrivate(dirOf(c.path)); err != nil {
		return err
	}
	return fileutil.WriteJSONAtomic(c.path, c.entries, 0600)
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if os.IsPathSeparator(path[i]) {
			return path[:i]
		}
	}
	return "."
}
