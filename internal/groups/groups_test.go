package groups

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/rules"
)

func msg(id, from, subject string, date time.Time) *mail.Message {
	return &mail.Message{
		ID:          id,
		From:        from,
		FromAddress: mail.NormalizeAddress(from),
		Subject:     subject,
		Date:        date,
	}
}

func TestBySenderPartition(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msgs := []*mail.Message{
		msg("1", "Shop <shop@example.com>", "first", base),
		msg("2", "alice@example.com", "hello", base.Add(time.Hour)),
		msg("3", "SHOP <Shop@Example.com>", "second", base.Add(2*time.Hour)),
		msg("4", "Shop <shop@example.com>", "third", base.Add(3*time.Hour)),
	}

	got := BySender(msgs, 10)
	if len(got) != 2 {
		t.Fatalf("groups = %d, want 2", len(got))
	}

	shop := got[0]
	if shop.FromAddress != "shop@example.com" {
		t.Fatalf("largest group = %q, want shop@example.com", shop.FromAddress)
	}
	if shop.Count != 3 {
		t.Errorf("count = %d, want 3", shop.Count)
	}
	wantNames := []string{"Shop <shop@example.com>", "SHOP <Shop@Example.com>"}
	if diff := cmp.Diff(wantNames, shop.FromNames); diff != "" {
		t.Errorf("fromNames mismatch (-want +got):\n%s", diff)
	}
	if shop.LatestSubject != "third" {
		t.Errorf("latestSubject = %q, want %q", shop.LatestSubject, "third")
	}
	if !shop.LatestDate.Equal(base.Add(3 * time.Hour)) {
		t.Errorf("latestDate = %v", shop.LatestDate)
	}
	if shop.Frequency != 0.3 {
		t.Errorf("frequency = %v, want 0.3", shop.Frequency)
	}

	total := 0
	for _, g := range got {
		total += g.Count
	}
	if total != len(msgs) {
		t.Errorf("group counts sum to %d, want %d", total, len(msgs))
	}
}

func TestBySenderUnjudgedRange(t *testing.T) {
	base := time.Now().UTC()
	groups := BySender([]*mail.Message{msg("1", "a@b.c", "s", base)}, 1)
	if groups[0].MarketingRange != mail.UnjudgedRange {
		t.Errorf("marketingRange = %+v, want unjudged sentinel", groups[0].MarketingRange)
	}
	if groups[0].SpamRange != mail.UnjudgedRange {
		t.Errorf("spamRange = %+v, want unjudged sentinel", groups[0].SpamRange)
	}
}

func TestScoreRangesOverJudged(t *testing.T) {
	base := time.Now().UTC()
	msgs := []*mail.Message{
		msg("1", "a@b.c", "s1", base),
		msg("2", "a@b.c", "s2", base),
		msg("3", "a@b.c", "s3", base),
	}
	msgs[0].Judgment = &mail.Judgment{Marketing: 7, Spam: 2}
	msgs[2].Judgment = &mail.Judgment{Marketing: 3, Spam: 9}

	groups := BySender(msgs, 1)
	if got, want := groups[0].MarketingRange, (mail.ScoreRange{Min: 3, Max: 7}); got != want {
		t.Errorf("marketingRange = %+v, want %+v", got, want)
	}
	if got, want := groups[0].SpamRange, (mail.ScoreRange{Min: 2, Max: 9}); got != want {
		t.Errorf("spamRange = %+v, want %+v", got, want)
	}
}

func TestRefreshFromGroups(t *testing.T) {
	base := time.Now().UTC()
	msgs := []*mail.Message{msg("1", "a@b.c", "s", base)}
	groups := BySender(msgs, 1)
	if groups[0].MarketingRange != mail.UnjudgedRange {
		t.Fatalf("precondition: expected unjudged range")
	}

	msgs[0].Judgment = &mail.Judgment{Marketing: 5, Spam: 1}
	RefreshFromGroups(groups)
	if got, want := groups[0].MarketingRange, (mail.ScoreRange{Min: 5, Max: 5}); got != want {
		t.Errorf("marketingRange after refresh = %+v, want %+v", got, want)
	}
}

func TestByRulesFirstMatchAndExclusion(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := rules.Parse("subject:\"sale\"\nbody:\"unsubscribe\"")

	msgs := []*mail.Message{
		msg("1", "a@b.c", "Summer SALE", base),                // line 0
		msg("2", "a@b.c", "Sale plus unsubscribe", base),      // line 0 wins over 1
		msg("3", "c@d.e", "plain", base.Add(time.Hour)),       // line 1 via body
		msg("4", "x@y.z", "nothing relevant", base),           // unmatched
	}
	bodies := map[string]mail.BodyParts{
		"2": {Text: "unsubscribe here"},
		"3": {HTML: "<a>Unsubscribe</a>"},
	}

	got := ByRules(r, msgs, bodies, 1)
	if len(got) != 2 {
		t.Fatalf("groups = %d, want 2", len(got))
	}
	if got[0].LineIndex != 0 || got[0].Count != 2 {
		t.Errorf("group 0 = line %d count %d, want line 0 count 2", got[0].LineIndex, got[0].Count)
	}
	if got[1].LineIndex != 1 || got[1].Count != 1 {
		t.Errorf("group 1 = line %d count %d, want line 1 count 1", got[1].LineIndex, got[1].Count)
	}
	for _, g := range got {
		for _, m := range g.Messages {
			if m.ID == "4" {
				t.Error("unmatched message assigned to a group")
			}
		}
	}
}

func TestByRulesRefFields(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := rules.Parse("subject:\"sale\"")
	msgs := []*mail.Message{
		msg("1", "often@example.com", "sale one", base),
		msg("2", "rare@example.com", "sale two", base.Add(time.Hour)),
		msg("3", "often@example.com", "sale three", base.Add(2*time.Hour)),
	}

	got := ByRules(r, msgs, nil, 1)
	if len(got) != 1 {
		t.Fatalf("groups = %d, want 1", len(got))
	}
	if got[0].RefFrom != "often@example.com" {
		t.Errorf("refFrom = %q, want the most frequent sender", got[0].RefFrom)
	}
	if got[0].RefSubject != "sale three" {
		t.Errorf("refSubject = %q, want subject of the latest message", got[0].RefSubject)
	}
}

func TestGroupingTwelveMessagesThreeSenders(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	senders := []string{"a@example.com", "b@example.com", "c@example.com"}
	var msgs []*mail.Message
	for i := 0; i < 12; i++ {
		subject := fmt.Sprintf("note %d", i)
		if i < 4 {
			subject = fmt.Sprintf("Sale %d", i)
		}
		msgs = append(msgs, msg(fmt.Sprintf("m%d", i), senders[i%3], subject, base.Add(time.Duration(i)*time.Hour)))
	}

	fromGroups := BySender(msgs, 30)
	if len(fromGroups) != 3 {
		t.Fatalf("fromGroups = %d, want 3", len(fromGroups))
	}
	total := 0
	for _, g := range fromGroups {
		total += g.Count
	}
	if total != 12 {
		t.Errorf("fromGroup counts sum to %d, want 12", total)
	}

	ruleGroups := ByRules(rules.Parse(`subject:"(?i)sale"`), msgs, nil, 30)
	if len(ruleGroups) != 1 {
		t.Fatalf("ruleGroups = %d, want 1", len(ruleGroups))
	}
	if ruleGroups[0].Count != 4 {
		t.Errorf("rule group count = %d, want 4", ruleGroups[0].Count)
	}
	// Sale messages 0..3 hit senders a, b, c, a.
	if ruleGroups[0].RefFrom != "a@example.com" {
		t.Errorf("refFrom = %q, want a@example.com", ruleGroups[0].RefFrom)
	}
}

func TestFrequencyRounding(t *testing.T) {
	tests := []struct {
		count, days int
		want        float64
	}{
		{3, 10, 0.3},
		{1, 3, 0.3},
		{2, 3, 0.7},
		{10, 1, 10},
		{5, 0, 5}, // period clamped to one day
	}
	for _, tt := range tests {
		if got := frequency(tt.count, tt.days); got != tt.want {
			t.Errorf("frequency(%d, %d) = %v, want %v", tt.count, tt.days, got, tt.want)
		}
	}
}
