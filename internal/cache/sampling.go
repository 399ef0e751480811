// Package cache persists fetch snapshots and AI judgments as whole-file
// JSON documents. Writers serialize per (account, mode) themselves; no
// locking happens here.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mailsift/mailsift/internal/fileutil"
	"github.com/mailsift/mailsift/internal/groups"
	"github.com/mailsift/mailsift/internal/mail"
)

// ErrNoCache indicates no complete cached sampling exists. A result
// missing its meta sidecar (or vice versa) also reports ErrNoCache:
// readers never see half a pair.
var ErrNoCache = errors.New("no cached sampling")

// SamplingStore holds one result+meta document pair per (account, mode).
// The two modes never overwrite each other.
type SamplingStore struct {
	dir string
}

// NewSamplingStore creates a store rooted at dir.
func NewSamplingStore(dir string) *SamplingStore {
	return &SamplingStore{dir: dir}
}

func (s *SamplingStore) resultPath(accountID, mode string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_result.json", accountID, mode))
}

func (s *SamplingStore) metaPath(accountID, mode string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_meta.json", accountID, mode))
}

// Save writes the result document and its meta sidecar together. The meta
// goes last so an interrupted write leaves no meta, which readers treat as
// no cache at all.
func (s *SamplingStore) Save(accountID, mode string, result *mail.SamplingResult, meta *mail.SamplingMeta) error {
	if err := fileutil.MkdirPrivate(s.dir); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := fileutil.WriteJSONAtomic(s.resultPath(accountID, mode), result, 0600); err != nil {
		return fmt.Errorf("write sampling result: %w", err)
	}
	if err := fileutil.WriteJSONAtomic(s.metaPath(accountID, mode), meta, 0600); err != nil {
		return fmt.Errorf("write sampling meta: %w", err)
	}
	return nil
}

// Load reads the cached pair for (account, mode). A missing or unreadable
// counterpart yields ErrNoCache rather than partial data. Sender groups are
// rebuilt from the message list so group entries alias the loaded messages;
// the JSON round trip would otherwise leave them as detached copies that
// never see later judgment updates.
func (s *SamplingStore) Load(accountID, mode string) (*mail.SamplingResult, *mail.SamplingMeta, error) {
	var result mail.SamplingResult
	if err := fileutil.ReadJSON(s.resultPath(accountID, mode), &result); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNoCache
		}
		return nil, nil, err
	}
	var meta mail.SamplingMeta
	if err := fileutil.ReadJSON(s.metaPath(accountID, mode), &meta); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNoCache
		}
		return nil, nil, err
	}
	result.FromGroups = groups.BySender(result.Messages, result.PeriodDays())
	return &result, &meta, nil
}

// Remove deletes all cached samplings for an account, both modes.
func (s *SamplingStore) Remove(accountID string) error {
	for _, mode := range []string{mail.ModeDays, mail.ModeRange} {
		for _, path := range []string{s.resultPath(accountID, mode), s.metaPath(accountID, mode)} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}
