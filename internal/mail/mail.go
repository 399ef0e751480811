// Package mail defines the domain types shared across providers,
// the fetch pipeline, grouping, and deletion.
package mail

import (
	"strings"
	"time"
)

// ProviderKind identifies which adapter owns an account.
type ProviderKind string

const (
	KindGmail ProviderKind = "gmail"
	KindIMAP  ProviderKind = "imap"
)

// Sampling cache modes. A "days" sampling and an explicit "range" sampling
// are cached independently and never merged.
const (
	ModeDays  = "days"
	ModeRange = "range"
)

// Account is a configured mailbox. Profile fields are mutable; ID, Email
// and Kind are fixed at creation.
type Account struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"displayName"`
	Kind        ProviderKind `json:"providerKind"`
}

// Judgment holds AI triage scores for one message. Scores are integers
// in [0, 10].
type Judgment struct {
	Marketing int       `json:"marketing"`
	Spam      int       `json:"spam"`
	JudgedAt  time.Time `json:"judgedAt"`
}

// Message is the provider-agnostic view of one email. The ID is
// provider-defined: Gmail message id, or "folder:uid" for IMAP (not stable
// across folder moves). Immutable once fetched except for Judgment.
type Message struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"threadId,omitempty"`
	From        string    `json:"from"`
	FromAddress string    `json:"fromAddress"`
	To          string    `json:"to,omitempty"`
	Subject     string    `json:"subject"`
	Date        time.Time `json:"date"`
	Snippet     string    `json:"snippet,omitempty"`
	LabelIDs    []string  `json:"labelIds,omitempty"`
	IsImportant bool      `json:"isImportant"`
	IsStarred   bool      `json:"isStarred"`
	Judgment    *Judgment `json:"aiJudgment,omitempty"`
}

// BodyParts holds the textual bodies of a message.
type BodyParts struct {
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

// Folder is a Gmail label or an IMAP mailbox.
type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"` // "inbox", "trash", "" for plain folders
	Messages int64  `json:"messages,omitempty"`
}

// ScoreRange is the [min, max] of one judgment metric over a group.
// Both ends are -1 when no message in the group has been judged.
type ScoreRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// UnjudgedRange is the score range of a group with no judged messages.
var UnjudgedRange = ScoreRange{Min: -1, Max: -1}

// FromGroup aggregates the messages of one normalized sender address.
// Derived data; recomputed whenever messages or judgments change.
type FromGroup struct {
	FromAddress    string     `json:"fromAddress"`
	FromNames      []string   `json:"fromNames"`
	Count          int        `json:"count"`
	Frequency      float64    `json:"frequency"` // messages per day over the sampling period, 1 decimal
	LatestSubject  string     `json:"latestSubject"`
	LatestDate     time.Time  `json:"latestDate"`
	Messages       []*Message `json:"messages"`
	MarketingRange ScoreRange `json:"marketingRange"`
	SpamRange      ScoreRange `json:"spamRange"`
}

// RuleGroup aggregates the messages matched by one rule line.
type RuleGroup struct {
	LineIndex      int        `json:"lineIndex"`
	RefFrom        string     `json:"refFrom"`    // most frequent sender address in the group
	RefSubject     string     `json:"refSubject"` // subject of the most recent message
	Count          int        `json:"count"`
	Frequency      float64    `json:"frequency"`
	LatestDate     time.Time  `json:"latestDate"`
	Messages       []*Message `json:"messages"`
	MarketingRange ScoreRange `json:"marketingRange"`
	SpamRange      ScoreRange `json:"spamRange"`
}

// SamplingResult is the snapshot produced by one fetch. BodyParts and
// RawBodies are filled in by the AI pipeline when it downloads bodies and
// persisted so a later run can reuse them.
type SamplingResult struct {
	Messages    []*Message           `json:"messages"`
	FromGroups  []*FromGroup         `json:"fromGroups"`
	PeriodStart time.Time            `json:"periodStart"`
	PeriodEnd   time.Time            `json:"periodEnd"`
	TotalCount  int                  `json:"totalCount"`
	BodyParts   map[string]BodyParts `json:"bodyParts,omitempty"` // keyed by message ID
	RawBodies   map[string][]byte    `json:"rawBodies,omitempty"` // keyed by message ID
}

// PeriodDays returns the sampling window length in whole days, at least 1.
func (r *SamplingResult) PeriodDays() int {
	days := int(r.PeriodEnd.Sub(r.PeriodStart).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

// SamplingMeta describes how a SamplingResult was produced. It is always
// written together with its result; a missing counterpart means no cache.
type SamplingMeta struct {
	Mode       string    `json:"mode"` // ModeDays or ModeRange
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	FetchedAt  time.Time `json:"fetchedAt"`
	FolderIDs  []string  `json:"labelIds"`
	TotalCount int       `json:"totalCount"`
}

// DeleteResult summarizes one bulk deletion. Never persisted.
type DeleteResult struct {
	Trashed  int `json:"trashed"`
	Excluded int `json:"excluded"`
	Errors   int `json:"errors"`
}

// NormalizeAddress extracts the canonical sender address from a literal
// From header: the bracketed part if present, else the raw string, both
// case-folded and trimmed.
func NormalizeAddress(from string) string {
	s := strings.TrimSpace(from)
	if open := strings.LastIndexByte(s, '<'); open >= 0 {
		if close := strings.IndexByte(s[open:], '>'); close > 0 {
			s = s[open+1 : open+close]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}
