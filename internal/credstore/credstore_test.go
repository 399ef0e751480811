package credstore

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/secrets"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	key := bytes.Repeat([]byte{7}, secrets.KeySize)
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return New(t.TempDir(), cipher)
}

func gmailAccount() (mail.Account, Credentials) {
	acc := mail.Account{
		ID:          NewAccountID(mail.KindGmail, "a@example.com"),
		Email:       "a@example.com",
		DisplayName: "A",
		Kind:        mail.KindGmail,
	}
	creds := Credentials{OAuth: &OAuthToken{
		AccessToken:  "at",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}}
	return acc, creds
}

func TestAddGetRemoveAccount(t *testing.T) {
	s := testStore(t)
	acc, creds := gmailAccount()

	if err := s.AddAccount(acc, creds); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}

	got, err := s.GetAccount(acc.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if diff := cmp.Diff(acc, got); diff != "" {
		t.Errorf("account mismatch (-want +got):\n%s", diff)
	}

	gotCreds, err := s.GetCredentials(acc.ID)
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if diff := cmp.Diff(creds, gotCreds); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}

	if err := s.RemoveAccount(acc.ID); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	if _, err := s.GetAccount(acc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAccount after remove = %v, want ErrNotFound", err)
	}
	if _, err := s.GetCredentials(acc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCredentials after remove = %v, want ErrNotFound", err)
	}
}

func TestCredentialsEncryptedOnDisk(t *testing.T) {
	s := testStore(t)
	acc, creds := gmailAccount()
	if err := s.AddAccount(acc, creds); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}

	raw, err := os.ReadFile(s.credPath(acc.ID))
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	for _, secret := range []string{"at", "rt", "accessToken"} {
		if bytes.Contains(raw, []byte(secret)) {
			t.Errorf("credential blob contains plaintext %q", secret)
		}
	}
}

func TestSaveCredentialsOnRefresh(t *testing.T) {
	s := testStore(t)
	acc, creds := gmailAccount()
	if err := s.AddAccount(acc, creds); err != nil {
		t.Fatal(err)
	}

	creds.OAuth.AccessToken = "at2"
	creds.OAuth.Expiry = creds.OAuth.Expiry.Add(time.Hour)
	if err := s.SaveCredentials(acc.ID, creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	got, err := s.GetCredentials(acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OAuth.AccessToken != "at2" {
		t.Errorf("AccessToken = %q, want at2", got.OAuth.AccessToken)
	}
}

func TestIMAPSettingsRoundTrip(t *testing.T) {
	s := testStore(t)
	acc := mail.Account{
		ID:    NewAccountID(mail.KindIMAP, "b@example.org"),
		Email: "b@example.org",
		Kind:  mail.KindIMAP,
	}
	creds := Credentials{IMAP: &IMAPSettings{
		Host:     "imap.example.org",
		Username: "b@example.org",
		Password: "hunter2",
		Security: SecurityTLS,
	}}
	if err := s.AddAccount(acc, creds); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCredentials(acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IMAP == nil || got.IMAP.Password != "hunter2" {
		t.Fatalf("IMAP creds = %+v", got.IMAP)
	}
	if got.IMAP.Addr() != "imap.example.org:993" {
		t.Errorf("Addr = %q, want default TLS port", got.IMAP.Addr())
	}
}

func TestRejectsAmbiguousCredentials(t *testing.T) {
	s := testStore(t)
	acc, _ := gmailAccount()
	err := s.AddAccount(acc, Credentials{})
	if err == nil {
		t.Error("AddAccount accepted empty credentials")
	}
	err = s.AddAccount(acc, Credentials{
		OAuth: &OAuthToken{AccessToken: "x"},
		IMAP:  &IMAPSettings{Host: "h"},
	})
	if err == nil {
		t.Error("AddAccount accepted dual credentials")
	}
}

func TestNewAccountIDStable(t *testing.T) {
	a := NewAccountID(mail.KindGmail, "x@y.z")
	b := NewAccountID(mail.KindGmail, "x@y.z")
	c := NewAccountID(mail.KindIMAP, "x@y.z")
	if a != b {
		t.Errorf("same inputs gave %q and %q", a, b)
	}
	if a == c {
		t.Error("different kinds gave the same ID")
	}
}
