package imapfolder

import (
	"context"
	"fmt"
	"sort"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
	"github.com/mailsift/mailsift/internal/textutil"
)

// buildCriteria renders a provider query as IMAP search criteria.
// ExcludeImportant has no IMAP representation and is ignored; the adapter
// never reports messages as important, so the exclusion matches nothing.
func buildCriteria(q provider.Query) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if !q.Start.IsZero() {
		criteria.Since = q.Start
	}
	if !q.End.IsZero() {
		criteria.Before = q.End
	}
	if q.Unread != nil {
		if *q.Unread {
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
		} else {
			criteria.Flag = append(criteria.Flag, imap.FlagSeen)
		}
	}
	if q.ExcludeStarred {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagFlagged)
	}
	if len(q.From) > 0 {
		criteria.And(fromCriteria(q.From))
	}
	return criteria
}

// fromCriteria builds an OR chain over sender addresses.
func fromCriteria(addrs []string) *imap.SearchCriteria {
	head := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "From", Value: addrs[0]}},
	}
	for _, addr := range addrs[1:] {
		next := imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{{Key: "From", Value: addr}},
		}
		head = &imap.SearchCriteria{Or: [][2]imap.SearchCriteria{{*head, next}}}
	}
	return head
}

// SearchIDs iterates the selected folders sequentially, stopping early once
// max results are collected. Folder defaults to INBOX when unspecified.
func (c *Client) SearchIDs(ctx context.Context, q provider.Query, max int) ([]string, error) {
	folders := q.Folders
	if len(folders) == 0 {
		folders = []string{"INBOX"}
	}

	var ids []string
	err := c.withConn(ctx, func(conn *imapclient.Client) error {
		for _, folder := range folders {
			if ctx.Err() != nil {
				return provider.ErrCancelled
			}
			if max > 0 && len(ids) >= max {
				break
			}
			if err := c.selectMailbox(folder); err != nil {
				return err
			}

			uids, err := c.searchFolderLocked(conn, folder, q)
			if err != nil {
				return err
			}
			for _, uid := range uids {
				ids = append(ids, compositeID(folder, uid))
				if max > 0 && len(ids) >= max {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// searchFolderLocked runs a UID SEARCH in the selected folder. Some servers
// reject date-range search extensions and return zero hits for a populated
// folder; when date bounds are the only criteria, the fallback lists all
// messages and applies the window client-side, newest first so cap
// truncation keeps recent mail.
func (c *Client) searchFolderLocked(conn *imapclient.Client, folder string, q provider.Query) ([]imap.UID, error) {
	criteria := buildCriteria(q)
	data, err := conn.UIDSearch(criteria, &imap.SearchOptions{ReturnAll: true}).Wait()
	if err != nil {
		return nil, &provider.ProviderError{Op: fmt.Sprintf("UID SEARCH %q", folder), Err: err}
	}

	uids := searchUIDs(data)
	if len(uids) > 0 || c.numMessages == 0 || !dateOnlyCriteria(q) {
		return uids, nil
	}

	c.logger.Debug("date search returned no hits for populated folder, falling back to client-side filter",
		"folder", folder, "messages", c.numMessages)
	return c.dateFilterFallbackLocked(conn, folder, q)
}

// dateOnlyCriteria reports whether date bounds are the only criteria the
// server was asked to match. The zero-hit fallback replays just the date
// window client-side, so taking it with sender or flag criteria present
// would return messages those criteria were meant to exclude. A zero-hit
// sender search stays a zero-hit result.
func dateOnlyCriteria(q provider.Query) bool {
	hasDates := !q.Start.IsZero() || !q.End.IsZero()
	return hasDates && q.Unread == nil && !q.ExcludeStarred && len(q.From) == 0
}

func searchUIDs(data *imap.SearchData) []imap.UID {
	if data == nil || data.All == nil {
		return nil
	}
	uidSet, ok := data.All.(imap.UIDSet)
	if !ok {
		return nil
	}
	uids, _ := uidSet.Nums()
	return uids
}

// dateFilterFallbackLocked lists every message's internal date and filters
// the half-open window client-side, sorted descending by date.
func (c *Client) dateFilterFallbackLocked(conn *imapclient.Client, folder string, q provider.Query) ([]imap.UID, error) {
	seqSet := imap.SeqSet{}
	seqSet.AddRange(1, 0) // 1:*

	msgs, err := conn.Fetch(seqSet, &imap.FetchOptions{UID: true, InternalDate: true}).Collect()
	if err != nil {
		return nil, &provider.ProviderError{Op: fmt.Sprintf("FETCH dates %q", folder), Err: err}
	}

	entries := make([]datedUID, len(msgs))
	for i, m := range msgs {
		entries[i] = datedUID{uid: m.UID, date: m.InternalDate}
	}
	return filterWindowDesc(entries, q.Start, q.End), nil
}

type datedUID struct {
	uid  imap.UID
	date time.Time
}

// filterWindowDesc keeps entries inside the half-open [start, end) window
// and orders them newest first.
func filterWindowDesc(entries []datedUID, start, end time.Time) []imap.UID {
	var hits []datedUID
	for _, e := range entries {
		if !start.IsZero() && e.date.Before(start) {
			continue
		}
		if !end.IsZero() && !e.date.Before(end) {
			continue
		}
		hits = append(hits, e)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].date.After(hits[j].date) })

	uids := make([]imap.UID, len(hits))
	for i, h := range hits {
		uids[i] = h.uid
	}
	return uids
}

// formatAddress renders an envelope address as a literal From header value.
func formatAddress(addr imap.Address) string {
	email := addr.Mailbox + "@" + addr.Host
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}

func hasFlag(flags []imap.Flag, want imap.Flag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// FetchHeaders retrieves envelope, flags and internal date for the given
// composite IDs, grouped by folder. A message missing from the server's
// response fails the batch: the fetch pipeline never caches partial data.
func (c *Client) FetchHeaders(ctx context.Context, ids []string) ([]*mail.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byFolder, order, err := groupByFolder(ids)
	if err != nil {
		return nil, err
	}

	results := make([]*mail.Message, len(ids))
	fetchOpts := &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		Flags:        true,
		InternalDate: true,
	}

	err = c.withConn(ctx, func(conn *imapclient.Client) error {
		for _, folder := range order {
			if ctx.Err() != nil {
				return provider.ErrCancelled
			}
			if err := c.selectMailbox(folder); err != nil {
				return err
			}

			items := byFolder[folder]
			var uidSet imap.UIDSet
			for _, item := range items {
				uidSet.AddNum(item.uid)
			}

			msgs, err := conn.Fetch(uidSet, fetchOpts).Collect()
			if err != nil {
				return &provider.ProviderError{Op: fmt.Sprintf("UID FETCH %q", folder), Err: err}
			}

			byUID := make(map[imap.UID]*imapclient.FetchMessageBuffer, len(msgs))
			for _, m := range msgs {
				byUID[m.UID] = m
			}
			for _, item := range items {
				buf, ok := byUID[item.uid]
				if !ok {
					return &provider.ProviderError{
						Op:  fmt.Sprintf("UID FETCH %q", folder),
						Err: fmt.Errorf("uid %d missing from response", item.uid),
					}
				}
				results[item.idx] = bufferToMessage(folder, buf)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func bufferToMessage(folder string, buf *imapclient.FetchMessageBuffer) *mail.Message {
	msg := &mail.Message{
		ID:        compositeID(folder, buf.UID),
		Date:      buf.InternalDate.UTC(),
		LabelIDs:  []string{folder},
		IsStarred: hasFlag(buf.Flags, imap.FlagFlagged),
		// IMAP has no importance flag; IsImportant stays false.
	}
	if env := buf.Envelope; env != nil {
		msg.Subject = textutil.EnsureUTF8(env.Subject)
		if len(env.From) > 0 {
			from := formatAddress(env.From[0])
			msg.From = textutil.EnsureUTF8(from)
			msg.FromAddress = mail.NormalizeAddress(from)
		}
		if len(env.To) > 0 {
			msg.To = textutil.EnsureUTF8(formatAddress(env.To[0]))
		}
		if !env.Date.IsZero() {
			msg.Date = env.Date.UTC()
		}
	}
	return msg
}

// FetchRaw downloads the full RFC 822 source of one message.
func (c *Client) FetchRaw(ctx context.Context, id string) ([]byte, error) {
	folder, uid, err := parseCompositeID(id)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = c.withConn(ctx, func(conn *imapclient.Client) error {
		if err := c.selectMailbox(folder); err != nil {
			return err
		}
		var uidSet imap.UIDSet
		uidSet.AddNum(uid)
		fetchOpts := &imap.FetchOptions{
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{{}}, // empty section = entire message
		}
		msgs, err := conn.Fetch(uidSet, fetchOpts).Collect()
		if err != nil {
			return &provider.ProviderError{Op: fmt.Sprintf("UID FETCH BODY[] %q", folder), Err: err}
		}
		if len(msgs) == 0 || len(msgs[0].BodySection) == 0 {
			return &provider.ProviderError{Op: "FETCH BODY[]", Err: fmt.Errorf("message %s not found", id)}
		}
		raw = msgs[0].BodySection[0].Bytes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}
