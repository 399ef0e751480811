package imapfolder

import (
	"testing"
	"time"

	imap "github.com/emersion/go-imap/v2"

	"github.com/mailsift/mailsift/internal/provider"
)

func TestCompositeIDRoundTrip(t *testing.T) {
	tests := []struct {
		folder string
		uid    imap.UID
	}{
		{"INBOX", 42},
		{"Archive/2026", 1},
		{"odd:name", 7}, // folder names may contain the separator
	}
	for _, tt := range tests {
		id := compositeID(tt.folder, tt.uid)
		folder, uid, err := parseCompositeID(id)
		if err != nil {
			t.Fatalf("parseCompositeID(%q): %v", id, err)
		}
		if folder != tt.folder || uid != tt.uid {
			t.Errorf("parseCompositeID(%q) = %q, %d; want %q, %d", id, folder, uid, tt.folder, tt.uid)
		}
	}
}

func TestParseCompositeIDInvalid(t *testing.T) {
	for _, id := range []string{"no-separator", "INBOX:notanumber", ""} {
		if _, _, err := parseCompositeID(id); err == nil {
			t.Errorf("parseCompositeID(%q) succeeded, want error", id)
		}
	}
}

func TestGroupByFolderPreservesOrder(t *testing.T) {
	ids := []string{"A:1", "B:2", "A:3", "C:4"}
	byFolder, order, err := groupByFolder(ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != "A" || order[1] != "B" || order[2] != "C" {
		t.Errorf("order = %v", order)
	}
	if len(byFolder["A"]) != 2 || byFolder["A"][0].idx != 0 || byFolder["A"][1].idx != 2 {
		t.Errorf("byFolder[A] = %+v", byFolder["A"])
	}
}

func TestBuildCriteriaDateWindow(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	unread := true
	criteria := buildCriteria(provider.Query{
		Start: start, End: end, Unread: &unread, ExcludeStarred: true,
	})

	if !criteria.Since.Equal(start) || !criteria.Before.Equal(end) {
		t.Errorf("window = [%v, %v)", criteria.Since, criteria.Before)
	}
	wantNot := map[imap.Flag]bool{imap.FlagSeen: true, imap.FlagFlagged: true}
	for _, f := range criteria.NotFlag {
		delete(wantNot, f)
	}
	if len(wantNot) != 0 {
		t.Errorf("missing NotFlag entries: %v", wantNot)
	}
}

func TestDateOnlyCriteria(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	unread := true
	tests := []struct {
		name string
		q    provider.Query
		want bool
	}{
		{"dates only", provider.Query{Start: start}, true},
		{"no criteria at all", provider.Query{}, false},
		{"sender set", provider.Query{Start: start, From: []string{"a@x.com"}}, false},
		{"unread filter", provider.Query{Start: start, Unread: &unread}, false},
		{"starred exclusion", provider.Query{Start: start, ExcludeStarred: true}, false},
	}
	for _, tt := range tests {
		if got := dateOnlyCriteria(tt.q); got != tt.want {
			t.Errorf("%s: dateOnlyCriteria = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFilterWindowDesc(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 8, d, 12, 0, 0, 0, time.UTC) }
	entries := []datedUID{
		{uid: 1, date: day(5)},
		{uid: 2, date: day(20)}, // past the window end
		{uid: 3, date: day(10)},
		{uid: 4, date: day(1)}, // before the window start
	}
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	got := filterWindowDesc(entries, start, end)
	if len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Errorf("filterWindowDesc = %v, want [3 1] (newest first)", got)
	}

	// End is exclusive.
	boundary := filterWindowDesc([]datedUID{{uid: 9, date: end}}, start, end)
	if len(boundary) != 0 {
		t.Errorf("entry at the window end survived: %v", boundary)
	}
}

func TestFromCriteriaSingle(t *testing.T) {
	c := fromCriteria([]string{"a@x.com"})
	if len(c.Header) != 1 || c.Header[0].Value != "a@x.com" {
		t.Errorf("criteria = %+v", c)
	}
	if len(c.Or) != 0 {
		t.Error("single sender produced an OR")
	}
}

func TestFromCriteriaNestsOrs(t *testing.T) {
	c := fromCriteria([]string{"a@x.com", "b@y.com", "c@z.com"})
	// Three senders nest as Or(Or(a, b), c).
	if len(c.Or) != 1 {
		t.Fatalf("top Or arms = %d, want 1", len(c.Or))
	}
	inner := c.Or[0][0]
	if len(inner.Or) != 1 {
		t.Fatalf("inner is not an OR: %+v", inner)
	}
	if c.Or[0][1].Header[0].Value != "c@z.com" {
		t.Errorf("outer second arm = %+v", c.Or[0][1])
	}
}

func TestDecodePart(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		encoding string
		charset  string
		want     string
	}{
		{"plain_7bit", "hello", "7bit", "", "hello"},
		{"base64", "aGVsbG8gd29ybGQ=", "base64", "", "hello world"},
		{"base64_wrapped", "aGVsbG8g\r\nd29ybGQ=", "BASE64", "", "hello world"},
		{"quoted_printable", "caf=C3=A9", "quoted-printable", "utf-8", "café"},
		{"latin1", "caf\xe9", "7bit", "iso-8859-1", "café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodePart([]byte(tt.data), tt.encoding, tt.charset)
			if got != tt.want {
				t.Errorf("decodePart = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatAddress(t *testing.T) {
	withName := imap.Address{Name: "Alice", Mailbox: "alice", Host: "example.com"}
	if got := formatAddress(withName); got != "Alice <alice@example.com>" {
		t.Errorf("formatAddress = %q", got)
	}
	bare := imap.Address{Mailbox: "bob", Host: "example.org"}
	if got := formatAddress(bare); got != "bob@example.org" {
		t.Errorf("formatAddress = %q", got)
	}
}

func TestConfigAddrDefaults(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Host: "mail.x", Security: SecurityTLS}, "mail.x:993"},
		{Config{Host: "mail.x", Security: SecuritySTARTTLS}, "mail.x:143"},
		{Config{Host: "mail.x", Port: 1430, Security: SecurityNone}, "mail.x:1430"},
	}
	for _, tt := range tests {
		if got := tt.cfg.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}
