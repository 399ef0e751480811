// Package groups builds the derived message aggregations: sender groups
// (always computed) and rule groups (from the account's rule text).
package groups

import (
	"math"
	"sort"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/rules"
)

// BySender partitions messages by normalized sender address. Group
// messages are chronologically sorted (stable on ties) and the latest
// fields come from the maximum-date message. Groups are ordered by count
// descending, address ascending on ties.
func BySender(messages []*mail.Message, periodDays int) []*mail.FromGroup {
	byAddr := make(map[string]*mail.FromGroup)
	var order []string
	seenNames := make(map[string]map[string]bool)

	for _, msg := range messages {
		addr := msg.FromAddress
		if addr == "" {
			addr = mail.NormalizeAddress(msg.From)
		}
		g, ok := byAddr[addr]
		if !ok {
			g = &mail.FromGroup{FromAddress: addr}
			byAddr[addr] = g
			order = append(order, addr)
			seenNames[addr] = make(map[string]bool)
		}
		g.Messages = append(g.Messages, msg)
		if !seenNames[addr][msg.From] {
			seenNames[addr][msg.From] = true
			g.FromNames = append(g.FromNames, msg.From)
		}
	}

	result := make([]*mail.FromGroup, 0, len(byAddr))
	for _, addr := range order {
		g := byAddr[addr]
		sortChronological(g.Messages)
		latest := g.Messages[len(g.Messages)-1]
		g.Count = len(g.Messages)
		g.Frequency = frequency(g.Count, periodDays)
		g.LatestSubject = latest.Subject
		g.LatestDate = latest.Date
		g.MarketingRange, g.SpamRange = scoreRanges(g.Messages)
		result = append(result, g)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].FromAddress < result[j].FromAddress
	})
	return result
}

// ByRules assigns each message to the first rule line whose patterns all
// match and aggregates per line. Messages matched by no line are left out.
// bodies supplies per-message body content when available; matching runs
// against empty bodies otherwise. Groups are ordered by line index.
func ByRules(r *rules.Rules, messages []*mail.Message, bodies map[string]mail.BodyParts, periodDays int) []*mail.RuleGroup {
	byLine := make(map[int]*mail.RuleGroup)

	for _, msg := range messages {
		idx, ok := r.Match(msg, bodies[msg.ID])
		if !ok {
			continue
		}
		g, ok := byLine[idx]
		if !ok {
			g = &mail.RuleGroup{LineIndex: idx}
			byLine[idx] = g
		}
		g.Messages = append(g.Messages, msg)
	}

	result := make([]*mail.RuleGroup, 0, len(byLine))
	for _, g := range byLine {
		sortChronological(g.Messages)
		latest := g.Messages[len(g.Messages)-1]
		g.Count = len(g.Messages)
		g.Frequency = frequency(g.Count, periodDays)
		g.LatestDate = latest.Date
		g.RefSubject = latest.Subject
		g.RefFrom = modeAddress(g.Messages)
		g.MarketingRange, g.SpamRange = scoreRanges(g.Messages)
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LineIndex < result[j].LineIndex
	})
	return result
}

// RefreshFromGroups recomputes score ranges from the current per-message
// judgments. Ranges are never trusted across a judgment change.
func RefreshFromGroups(groups []*mail.FromGroup) {
	for _, g := range groups {
		g.MarketingRange, g.SpamRange = scoreRanges(g.Messages)
	}
}

// RefreshRuleGroups is the rule-group counterpart of RefreshFromGroups.
func RefreshRuleGroups(groups []*mail.RuleGroup) {
	for _, g := range groups {
		g.MarketingRange, g.SpamRange = scoreRanges(g.Messages)
	}
}

func sortChronological(msgs []*mail.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Date.Before(msgs[j].Date)
	})
}

func frequency(count, periodDays int) float64 {
	if periodDays < 1 {
		periodDays = 1
	}
	return math.Round(float64(count)/float64(periodDays)*10) / 10
}

// modeAddress returns the most frequent sender address among msgs,
// breaking ties toward the address seen first.
func modeAddress(msgs []*mail.Message) string {
	counts := make(map[string]int)
	var order []string
	for _, msg := range msgs {
		addr := msg.FromAddress
		if addr == "" {
			addr = mail.NormalizeAddress(msg.From)
		}
		if counts[addr] == 0 {
			order = append(order, addr)
		}
		counts[addr]++
	}
	best := ""
	bestCount := 0
	for _, addr := range order {
		if counts[addr] > bestCount {
			best = addr
			bestCount = counts[addr]
		}
	}
	return best
}

// scoreRanges folds per-message judgments into min/max ranges per metric.
// Groups with no judged message get the unjudged sentinel range.
func scoreRanges(msgs []*mail.Message) (marketing, spam mail.ScoreRange) {
	marketing = mail.UnjudgedRange
	spam = mail.UnjudgedRange
	judged := false
	for _, msg := range msgs {
		if msg.Judgment == nil {
			continue
		}
		j := msg.Judgment
		if !judged {
			judged = true
			marketing = mail.ScoreRange{Min: j.Marketing, Max: j.Marketing}
			spam = mail.ScoreRange{Min: j.Spam, Max: j.Spam}
			continue
		}
		marketing.Min = min(marketing.Min, j.Marketing)
		marketing.Max = max(marketing.Max, j.Marketing)
		spam.Min = min(spam.Min, j.Spam)
		spam.Max = max(spam.Max, j.Spam)
	}
	return marketing, spam
}
