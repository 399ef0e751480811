// Package credstore persists accounts and their provider credentials.
// Profile fields live in a plaintext registry; credentials are encrypted
// with the secrets cipher before touching disk.
package credstore

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"

	"github.com/mailsift/mailsift/internal/fileutil"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/secrets"
)

// ErrNotFound indicates an unknown account ID.
var ErrNotFound = errors.New("account not found")

// OAuthToken is the Gmail credential pair.
type OAuthToken struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiresAt"`
}

// Token converts the stored pair to its oauth2 form.
func (t *OAuthToken) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

// FromToken converts an oauth2 token into the stored shape.
func FromToken(tok *oauth2.Token) *OAuthToken {
	return &OAuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

// Transport security values for IMAP settings.
const (
	SecurityTLS      = "tls"
	SecuritySTARTTLS = "starttls"
	SecurityNone     = "none"
)

// IMAPSettings is the folder-protocol credential set.
type IMAPSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"secret"`
	Security string `json:"transportSecurity"`
}

// Addr returns the "host:port" dial string, defaulting the port from the
// transport security mode.
func (s IMAPSettings) Addr() string {
	port := s.Port
	if port == 0 {
		if s.Security == SecurityTLS {
			port = 993
		} else {
			port = 143
		}
	}
	return fmt.Sprintf("%s:%d", s.Host, port)
}

// Credentials holds exactly one of the two credential shapes.
type Credentials struct {
	OAuth *OAuthToken   `json:"oauth,omitempty"`
	IMAP  *IMAPSettings `json:"imap,omitempty"`
}

// Store reads and writes the account registry and credential blobs under
// one directory. Writes are whole-file; callers serialize access.
type Store struct {
	dir    string
	cipher secrets.Cipher
}

// New creates a Store rooted at dir.
func New(dir string, cipher secrets.Cipher) *Store {
	return &Store{dir: dir, cipher: cipher}
}

// NewAccountID derives a stable account ID from provider kind and address.
func NewAccountID(kind mail.ProviderKind, email string) string {
	sum := sha256.Sum256([]byte(string(kind) + ":" + email))
	return fmt.Sprintf("%s-%x", kind, sum[:6])
}

func (s *Store) registryPath() string {
	return filepath.Join(s.dir, "accounts.json")
}

func (s *Store) credPath(accountID string) string {
	return filepath.Join(s.dir, "cred_"+accountID+".bin")
}

// ListAccounts returns all registered accounts. A missing registry file
// means no accounts.
func (s *Store) ListAccounts() ([]mail.Account, error) {
	var accounts []mail.Account
	if err := fileutil.ReadJSON(s.registryPath(), &accounts); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return accounts, nil
}

// GetAccount returns one account by ID.
func (s *Store) GetAccount(accountID string) (mail.Account, error) {
	accounts, err := s.ListAccounts()
	if err != nil {
		return mail.Account{}, err
	}
	for _, acc := range accounts {
		if acc.ID == accountID {
			return acc, nil
		}
	}
	return mail.Account{}, fmt.Errorf("%w: %s", ErrNotFound, accountID)
}

// AddAccount registers an account and stores its credentials. An existing
// account with the same ID is replaced.
func (s *Store) AddAccount(acc mail.Account, creds Credentials) error {
	if err := fileutil.MkdirPrivate(s.dir); err != nil {
		return fmt.Errorf("create accounts dir: %w", err)
	}
	if err := s.SaveCredentials(acc.ID, creds); err != nil {
		return err
	}

	accounts, err := s.ListAccounts()
	if err != nil {
		return err
	}
	out := accounts[:0]
	for _, a := range accounts {
		if a.ID != acc.ID {
			out = append(out, a)
		}
	}
	out = append(out, acc)
	return fileutil.WriteJSONAtomic(s.registryPath(), out, 0600)
}

// RemoveAccount deletes an account and its credential blob.
func (s *Store) RemoveAccount(accountID string) error {
	accounts, err := s.ListAccounts()
	if err != nil {
		return err
	}
	out := accounts[:0]
	found := false
	for _, a := range accounts {
		if a.ID == accountID {
			found = true
			continue
		}
		out = append(out, a)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}
	if err := fileutil.WriteJSONAtomic(s.registryPath(), out, 0600); err != nil {
		return err
	}
	if err := os.Remove(s.credPath(accountID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// SaveCredentials encrypts and writes the credential blob for an account.
// Used both at account creation and on token refresh.
func (s *Store) SaveCredentials(accountID string, creds Credentials) error {
	plaintext, err := marshalCredentials(creds)
	if err != nil {
		return err
	}
	opaque, err := s.cipher.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}
	return fileutil.WriteFileAtomic(s.credPath(accountID), opaque, 0600)
}

// GetCredentials decrypts and returns the credential blob for an account.
func (s *Store) GetCredentials(accountID string) (Credentials, error) {
	opaque, err := os.ReadFile(s.credPath(accountID))
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, fmt.Errorf("%w: %s", ErrNotFound, accountID)
		}
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	plaintext, err := s.cipher.Open(opaque)
	if err != nil {
		return Credentials{}, fmt.Errorf("decrypt credentials for %s: %w", accountID, err)
	}
	return unmarshalCredentials(plaintext)
}
