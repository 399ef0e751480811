package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mailsift/mailsift/internal/fileutil"
)

// LoadText reads an account's rule text. A missing file is an empty rule
// set, not an error.
func LoadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading rules: %w", err)
	}
	return string(data), nil
}

// SaveText writes an account's rule text atomically, creating the parent
// directory as needed.
func SaveText(path, text string) error {
	if err := fileutil.MkdirPrivate(filepath.Dir(path)); err != nil {
		return fmt.Errorf("creating rules dir: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, []byte(text), 0600); err != nil {
		return fmt.Errorf("writing rules: %w", err)
	}
	return nil
}
