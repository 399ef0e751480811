package deletion

import (
	"context"
	"testing"
	"time"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
)

// trashBox records searches and trash calls against canned results.
type trashBox struct {
	searches   []provider.Query
	perSearch  [][]string // ids returned per successive SearchIDs call
	trashedIDs []string
	failIDs    map[string]bool
	trashErr   error
}

func (b *trashBox) Kind() mail.ProviderKind                   { return mail.KindGmail }
func (b *trashBox) CheckConnection(ctx context.Context) error { return nil }
func (b *trashBox) ListFolders(ctx context.Context) ([]mail.Folder, error) {
	return nil, nil
}

func (b *trashBox) SearchIDs(ctx context.Context, q provider.Query, max int) ([]string, error) {
	b.searches = append(b.searches, q)
	idx := len(b.searches) - 1
	if idx < len(b.perSearch) {
		return b.perSearch[idx], nil
	}
	return nil, nil
}

func (b *trashBox) FetchHeaders(ctx context.Context, ids []string) ([]*mail.Message, error) {
	return nil, nil
}
func (b *trashBox) FetchBody(ctx context.Context, id string) (mail.BodyParts, error) {
	return mail.BodyParts{}, nil
}
func (b *trashBox) FetchRaw(ctx context.Context, id string) ([]byte, error) { return nil, nil }

func (b *trashBox) TrashMessages(ctx context.Context, ids []string) (int, int, error) {
	if b.trashErr != nil {
		return 0, 0, b.trashErr
	}
	trashed, failed := 0, 0
	for _, id := range ids {
		if b.failIDs[id] {
			failed++
			continue
		}
		b.trashedIDs = append(b.trashedIDs, id)
		trashed++
	}
	return trashed, failed, nil
}

func (b *trashBox) Close() error { return nil }

func TestByCriterionSinglePassWithoutExclusions(t *testing.T) {
	box := &trashBox{perSearch: [][]string{{"a", "b", "c"}}}
	coord := New(Policy{})

	result, err := coord.ByCriterion(context.Background(), box, provider.Query{From: []string{"x@y.z"}})
	if err != nil {
		t.Fatalf("ByCriterion: %v", err)
	}
	if len(box.searches) != 1 {
		t.Errorf("searches = %d, want 1", len(box.searches))
	}
	want := mail.DeleteResult{Trashed: 3}
	if result != want {
		t.Errorf("result = %+v, want %+v", result, want)
	}
}

func TestByCriterionTwoPassExcludedCount(t *testing.T) {
	box := &trashBox{perSearch: [][]string{
		{"a", "b", "c", "d", "e"}, // unfiltered
		{"a", "c", "e"},           // filtered
	}}
	coord := New(Policy{ExcludeImportant: true, ExcludeStarred: true})

	result, err := coord.ByCriterion(context.Background(), box, provider.Query{From: []string{"x@y.z"}})
	if err != nil {
		t.Fatalf("ByCriterion: %v", err)
	}
	if len(box.searches) != 2 {
		t.Fatalf("searches = %d, want 2", len(box.searches))
	}
	if box.searches[0].ExcludeImportant || box.searches[0].ExcludeStarred {
		t.Error("first pass must be unfiltered")
	}
	if !box.searches[1].ExcludeImportant || !box.searches[1].ExcludeStarred {
		t.Error("second pass must carry the exclusions")
	}
	want := mail.DeleteResult{Trashed: 3, Excluded: 2}
	if result != want {
		t.Errorf("result = %+v, want %+v", result, want)
	}
}

func TestByCriterionAggregatesItemFailures(t *testing.T) {
	box := &trashBox{
		perSearch: [][]string{{"a", "b", "c"}},
		failIDs:   map[string]bool{"b": true},
	}
	coord := New(Policy{})

	result, err := coord.ByCriterion(context.Background(), box, provider.Query{})
	if err != nil {
		t.Fatalf("ByCriterion: %v", err)
	}
	want := mail.DeleteResult{Trashed: 2, Errors: 1}
	if result != want {
		t.Errorf("result = %+v, want %+v", result, want)
	}
}

func TestByMessagesClientSideExclusion(t *testing.T) {
	now := time.Now()
	msgs := []*mail.Message{
		{ID: "keep1", Date: now},
		{ID: "imp", IsImportant: true, Date: now},
		{ID: "star", IsStarred: true, Date: now},
		{ID: "keep2", Date: now},
	}
	box := &trashBox{}
	coord := New(Policy{ExcludeImportant: true, ExcludeStarred: true})

	result, err := coord.ByMessages(context.Background(), box, msgs)
	if err != nil {
		t.Fatalf("ByMessages: %v", err)
	}
	want := mail.DeleteResult{Trashed: 2, Excluded: 2}
	if result != want {
		t.Errorf("result = %+v, want %+v", result, want)
	}
	if len(box.searches) != 0 {
		t.Error("by-ids mode must not search the provider")
	}
	if len(box.trashedIDs) != 2 || box.trashedIDs[0] != "keep1" || box.trashedIDs[1] != "keep2" {
		t.Errorf("trashed ids = %v", box.trashedIDs)
	}
}

func TestByMessagesPolicyOffKeepsFlagged(t *testing.T) {
	msgs := []*mail.Message{
		{ID: "a", IsImportant: true},
		{ID: "b", IsStarred: true},
	}
	box := &trashBox{}
	coord := New(Policy{})

	result, err := coord.ByMessages(context.Background(), box, msgs)
	if err != nil {
		t.Fatalf("ByMessages: %v", err)
	}
	if result.Trashed != 2 || result.Excluded != 0 {
		t.Errorf("result = %+v, want both trashed", result)
	}
}

func TestByMessagesEmptySetSkipsProvider(t *testing.T) {
	box := &trashBox{}
	coord := New(Policy{ExcludeStarred: true})
	result, err := coord.ByMessages(context.Background(), box, []*mail.Message{{ID: "s", IsStarred: true}})
	if err != nil {
		t.Fatalf("ByMessages: %v", err)
	}
	if result.Excluded != 1 || result.Trashed != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestTrashFailureSurfaces(t *testing.T) {
	box := &trashBox{
		perSearch: [][]string{{"a"}},
		trashErr:  &provider.AuthError{Op: "trash"},
	}
	coord := New(Policy{})
	if _, err := coord.ByCriterion(context.Background(), box, provider.Query{}); err == nil {
		t.Fatal("expected auth failure to surface")
	}
}
