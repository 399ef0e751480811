// Package imapfolder implements the provider contract against a generic
// IMAP server. One connection is shared by all operations and guarded by a
// mailbox lock so folder state never interleaves.
package imapfolder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
)

// Transport security modes.
const (
	SecurityTLS      = "tls"
	SecuritySTARTTLS = "starttls"
	SecurityNone     = "none"
)

// Config holds connection settings for an IMAP server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Security string // SecurityTLS, SecuritySTARTTLS or SecurityNone
}

// Addr returns the "host:port" dial string, defaulting the port from the
// security mode.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		if c.Security == SecurityTLS {
			port = 993
		} else {
			port = 143
		}
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client is the IMAP folder adapter.
type Client struct {
	config Config
	logger *slog.Logger

	// mu is the mailbox lock: one logical operation (search, fetch, move)
	// proceeds per connection at a time.
	mu              sync.Mutex
	conn            *imapclient.Client
	selectedMailbox string
	numMessages     uint32 // message count of the selected mailbox
	folderCache     []mail.Folder
	trashMailbox    string
}

// NewClient creates an IMAP adapter. The connection is established lazily
// on first use.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kind identifies the adapter variant.
func (c *Client) Kind() mail.ProviderKind { return mail.KindIMAP }

// connect establishes and authenticates the connection. Caller must hold mu.
func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	addr := c.config.Addr()
	c.logger.Debug("connecting to IMAP server", "addr", addr, "security", c.config.Security)

	imapOpts := &imapclient.Options{}
	var (
		conn *imapclient.Client
		err  error
	)
	switch c.config.Security {
	case SecuritySTARTTLS:
		conn, err = imapclient.DialStartTLS(addr, imapOpts)
	case SecurityNone:
		conn, err = imapclient.DialInsecure(addr, imapOpts)
	default:
		conn, err = imapclient.DialTLS(addr, imapOpts)
	}
	if err != nil {
		return &provider.ProviderError{Op: "dial " + addr, Err: err}
	}

	if err := conn.Login(c.config.Username, c.config.Password).Wait(); err != nil {
		_ = conn.Close()
		return &provider.AuthError{Op: "login " + c.config.Username, Err: err}
	}

	c.conn = conn
	c.selectedMailbox = ""
	c.logger.Debug("connected and authenticated", "user", c.config.Username)
	return nil
}

// withConn runs fn with the active connection, connecting if necessary.
// It holds the mailbox lock for the duration of fn.
func (c *Client) withConn(ctx context.Context, fn func(*imapclient.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(ctx); err != nil {
		return err
	}
	return fn(c.conn)
}

// selectMailbox selects a mailbox if not already selected. Caller must hold mu.
func (c *Client) selectMailbox(mailbox string) error {
	if c.selectedMailbox == mailbox {
		return nil
	}
	data, err := c.conn.Select(mailbox, nil).Wait()
	if err != nil {
		return &provider.ProviderError{Op: fmt.Sprintf("SELECT %q", mailbox), Err: err}
	}
	c.selectedMailbox = mailbox
	c.numMessages = data.NumMessages
	return nil
}

// CheckConnection tests the stored settings with a connect/logout round trip
// on a dedicated connection, leaving any active connection untouched.
func (c *Client) CheckConnection(ctx context.Context) error {
	probe := NewClient(c.config, WithLogger(c.logger))
	if err := probe.withConn(ctx, func(*imapclient.Client) error { return nil }); err != nil {
		return err
	}
	return probe.Close()
}

// trashCandidates are common localized trash folder names, tried in order.
var trashCandidates = []string{"Trash", "Deleted Items", "Deleted Messages", "Deleted"}

// listFoldersLocked returns all selectable mailboxes, caching the result
// and resolving the trash mailbox along the way. Caller must hold mu.
func (c *Client) listFoldersLocked() ([]mail.Folder, error) {
	if c.folderCache != nil {
		return c.folderCache, nil
	}

	items, err := c.conn.List("", "*", nil).Collect()
	if err != nil {
		return nil, &provider.ProviderError{Op: "LIST", Err: err}
	}

	var folders []mail.Folder
	for _, item := range items {
		if hasAttr(item.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		role := ""
		switch {
		case strings.EqualFold(item.Mailbox, "INBOX"):
			role = "inbox"
		case hasAttr(item.Attrs, imap.MailboxAttrTrash):
			role = "trash"
		}
		if role == "trash" && c.trashMailbox == "" {
			c.trashMailbox = item.Mailbox
		}
		folders = append(folders, mail.Folder{ID: item.Mailbox, Name: item.Mailbox, Role: role})
	}

	// No special-use trash advertised: match common localized names,
	// else default to literal "Trash" and let the move fail downstream.
	if c.trashMailbox == "" {
		for _, candidate := range trashCandidates {
			for i, f := range folders {
				if strings.EqualFold(f.Name, candidate) {
					c.trashMailbox = f.Name
					folders[i].Role = "trash"
					break
				}
			}
			if c.trashMailbox != "" {
				break
			}
		}
	}
	if c.trashMailbox == "" {
		c.trashMailbox = "Trash"
	}

	c.folderCache = folders
	return folders, nil
}

// ListFolders returns the account's selectable mailboxes.
func (c *Client) ListFolders(ctx context.Context) ([]mail.Folder, error) {
	var folders []mail.Folder
	err := c.withConn(ctx, func(*imapclient.Client) error {
		var err error
		folders, err = c.listFoldersLocked()
		return err
	})
	return folders, err
}

// hasAttr checks whether attr is in the attrs list.
func hasAttr(attrs []imap.MailboxAttr, attr imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == attr {
			return true
		}
	}
	return false
}

// compositeID builds a message identifier as "folder:uid". The identifier
// is not stable if the message moves between folders.
func compositeID(folder string, uid imap.UID) string {
	return folder + ":" + strconv.FormatUint(uint64(uid), 10)
}

// parseCompositeID splits a composite message ID into folder and UID.
// Folder names may themselves contain ':', so the UID is the numeric tail.
func parseCompositeID(id string) (folder string, uid imap.UID, err error) {
	idx := strings.LastIndexByte(id, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("invalid IMAP message ID %q (expected folder:uid)", id)
	}
	n, parseErr := strconv.ParseUint(id[idx+1:], 10, 32)
	if parseErr != nil {
		return "", 0, fmt.Errorf("invalid UID in message ID %q: %w", id, parseErr)
	}
	return id[:idx], imap.UID(n), nil
}

// groupByFolder buckets composite IDs by folder, preserving input order
// within each bucket and remembering each ID's original index.
type folderItem struct {
	idx int
	uid imap.UID
}

func groupByFolder(ids []string) (map[string][]folderItem, []string, error) {
	byFolder := make(map[string][]folderItem)
	var order []string
	for i, id := range ids {
		folder, uid, err := parseCompositeID(id)
		if err != nil {
			return nil, nil, err
		}
		if _, seen := byFolder[folder]; !seen {
			order = append(order, folder)
		}
		byFolder[folder] = append(byFolder[folder], folderItem{idx: i, uid: uid})
	}
	return byFolder, order, nil
}

// TrashMessages moves messages to the resolved trash folder, one MOVE per
// source folder. If a bulk move fails, each UID is retried individually so
// a single bad message never sinks its folder's batch.
func (c *Client) TrashMessages(ctx context.Context, ids []string) (trashed, failed int, err error) {
	byFolder, order, err := groupByFolder(ids)
	if err != nil {
		return 0, 0, err
	}

	err = c.withConn(ctx, func(conn *imapclient.Client) error {
		if _, err := c.listFoldersLocked(); err != nil {
			return err
		}
		for _, folder := range order {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			items := byFolder[folder]
			if err := c.selectMailbox(folder); err != nil {
				c.logger.Warn("cannot select folder, skipping", "folder", folder, "error", err)
				failed += len(items)
				continue
			}

			var uidSet imap.UIDSet
			for _, item := range items {
				uidSet.AddNum(item.uid)
			}
			if _, err := conn.Move(uidSet, c.trashMailbox).Wait(); err == nil {
				trashed += len(items)
				continue
			}

			// Bulk move failed; fall back to per-item moves.
			for _, item := range items {
				var one imap.UIDSet
				one.AddNum(item.uid)
				if _, err := conn.Move(one, c.trashMailbox).Wait(); err != nil {
					c.logger.Warn("move to trash failed", "folder", folder, "uid", item.uid, "error", err)
					failed++
				} else {
					trashed++
				}
			}
		}
		return nil
	})
	return trashed, failed, err
}

// Close logs out and disconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.selectedMailbox = ""
	return conn.Logout().Wait()
}
