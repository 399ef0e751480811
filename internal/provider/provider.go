// Package provider defines the contract both mailbox adapters implement.
// The two variants (Gmail REST, IMAP) form a closed set selected by the
// account's provider kind; downstream code never inspects the variant.
package provider

import (
	"context"
	"time"

	"github.com/mailsift/mailsift/internal/mail"
)

// Query describes a server-side message search. The date window is
// half-open: [Start, End). Zero times leave that bound off.
type Query struct {
	Start time.Time
	End   time.Time

	// Unread filters by read state when non-nil.
	Unread *bool

	// Folders restricts the search to the given label IDs (Gmail) or
	// folder names (IMAP), OR-combined. Empty means the provider default.
	Folders []string

	// From restricts to the given sender addresses, OR-combined.
	From []string

	// ExcludeImportant / ExcludeStarred drop flagged messages from the
	// results where the provider can express it server-side.
	ExcludeImportant bool
	ExcludeStarred   bool
}

// Mailbox is the capability set shared by both provider adapters.
// All methods honor ctx cancellation; in-flight network calls abort
// best-effort when ctx is done.
type Mailbox interface {
	// Kind identifies the adapter variant.
	Kind() mail.ProviderKind

	// CheckConnection verifies credentials with a cheap round trip.
	CheckConnection(ctx context.Context) error

	// ListFolders returns the account's labels or mailboxes.
	ListFolders(ctx context.Context) ([]mail.Folder, error)

	// SearchIDs returns up to max message IDs matching q.
	SearchIDs(ctx context.Context, q Query, max int) ([]string, error)

	// FetchHeaders retrieves message metadata for the given IDs. Any
	// provider failure fails the whole call; callers treat a batch as
	// all-or-nothing.
	FetchHeaders(ctx context.Context, ids []string) ([]*mail.Message, error)

	// FetchBody retrieves the textual body parts of one message.
	FetchBody(ctx context.Context, id string) (mail.BodyParts, error)

	// FetchRaw retrieves the full RFC 822 source of one message.
	FetchRaw(ctx context.Context, id string) ([]byte, error)

	// TrashMessages moves messages to the provider trash, best-effort
	// per item. A non-nil error is returned only for failures that make
	// continuing pointless (auth, connection).
	TrashMessages(ctx context.Context, ids []string) (trashed, failed int, err error)

	// Close releases the adapter's connection, if any.
	Close() error
}
