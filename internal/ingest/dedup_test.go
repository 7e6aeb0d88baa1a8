package ingest

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/delimited"
	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/store/memstore"
	"github.com/spigell/jobrater/internal/utils"
)

func posting(url, term string) *model.Posting {
	return &model.Posting{JobURL: utils.Ptr(url), Title: utils.Ptr("Engineer"), MatchedWords: utils.Ptr(term)}
}

func TestReconcileInsertsNewPosting(t *testing.T) {
	s := memstore.New()
	d := NewDeduplicator(s, zap.NewNop())

	p := posting("https://x/1", "go")
	action, err := d.Reconcile(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if action != ActionInserted {
		t.Fatalf("expected inserted, got %s", action)
	}

	if p.ID == 0 {
		t.Fatal("expected store identity to be attached")
	}
}

func TestReconcileMergesMatchedWords(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	existing := s.AddPosting(model.Posting{JobURL: utils.Ptr("https://x/1"), Title: utils.Ptr("First"), MatchedWords: utils.Ptr("python,go")})
	d := NewDeduplicator(s, zap.NewNop())

	p := posting("https://x/1", "rust")
	p.Title = utils.Ptr("Second")

	action, err := d.Reconcile(ctx, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if action != ActionMerged {
		t.Fatalf("expected merged, got %s", action)
	}

	if p.ID != existing.ID {
		t.Fatalf("expected existing identity %d, got %d", existing.ID, p.ID)
	}

	if calls := s.Calls(memstore.OpUpdateMatchedWords); calls != 1 {
		t.Fatalf("expected exactly one update, got %d", calls)
	}

	stored := s.Postings()
	if len(stored) != 1 {
		t.Fatalf("expected a single posting, got %d", len(stored))
	}

	got := delimited.Parse(*stored[0].MatchedWords)
	slices.Sort(got)
	if !slices.Equal(got, []string{"go", "python", "rust"}) {
		t.Fatalf("unexpected matched words: %q", got)
	}

	if *stored[0].Title != "First" {
		t.Fatalf("expected first-seen title to win, got %q", *stored[0].Title)
	}
}

func TestReconcileMergesIntoIrregularMatchedWords(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		term   string
		want   []string
	}{
		{name: "repeated entry", stored: "python,python", term: "rust", want: []string{"python", "rust"}},
		{name: "padding and empty entries", stored: " python , ,go,", term: "rust", want: []string{"go", "python", "rust"}},
		{name: "repeated entry and known term", stored: "go,go,python", term: "python,rust", want: []string{"go", "python", "rust"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memstore.New()
			s.AddPosting(model.Posting{JobURL: utils.Ptr("https://x/1"), MatchedWords: utils.Ptr(tt.stored)})
			d := NewDeduplicator(s, zap.NewNop())

			action, err := d.Reconcile(context.Background(), posting("https://x/1", tt.term))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if action != ActionMerged {
				t.Fatalf("expected merged, got %s", action)
			}

			if calls := s.Calls(memstore.OpUpdateMatchedWords); calls != 1 {
				t.Fatalf("expected exactly one update, got %d", calls)
			}

			got := delimited.Parse(*s.Postings()[0].MatchedWords)
			slices.Sort(got)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("unexpected matched words: %q", got)
			}
		})
	}
}

func TestReconcileRepeatedStoredTermWritesNothing(t *testing.T) {
	s := memstore.New()
	s.AddPosting(model.Posting{JobURL: utils.Ptr("https://x/1"), MatchedWords: utils.Ptr("python,python")})
	d := NewDeduplicator(s, zap.NewNop())

	action, err := d.Reconcile(context.Background(), posting("https://x/1", "python"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if action != ActionUnchanged {
		t.Fatalf("expected unchanged, got %s", action)
	}

	if calls := s.Calls(memstore.OpUpdateMatchedWords); calls != 0 {
		t.Fatalf("expected no update, got %d", calls)
	}
}

func TestReconcileKnownTermWritesNothing(t *testing.T) {
	s := memstore.New()
	s.AddPosting(model.Posting{JobURL: utils.Ptr("https://x/1"), MatchedWords: utils.Ptr("python,go")})
	d := NewDeduplicator(s, zap.NewNop())

	action, err := d.Reconcile(context.Background(), posting("https://x/1", "go"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if action != ActionUnchanged {
		t.Fatalf("expected unchanged, got %s", action)
	}

	if calls := s.Calls(memstore.OpUpdateMatchedWords); calls != 0 {
		t.Fatalf("expected no update, got %d", calls)
	}
}

func TestReconcileInsertFailure(t *testing.T) {
	s := memstore.New()
	s.FailOn(memstore.OpInsertPosting, errors.New("connection reset"))
	d := NewDeduplicator(s, zap.NewNop())

	p := posting("https://x/1", "go")
	if _, err := d.Reconcile(context.Background(), p); err == nil {
		t.Fatal("expected insert failure")
	}

	if p.ID != 0 {
		t.Fatalf("expected no identity on failure, got %d", p.ID)
	}
}

func TestReconcileMergeFailureKeepsIdentity(t *testing.T) {
	s := memstore.New()
	existing := s.AddPosting(model.Posting{JobURL: utils.Ptr("https://x/1"), MatchedWords: utils.Ptr("go")})
	s.FailOn(memstore.OpUpdateMatchedWords, errors.New("timeout"))
	d := NewDeduplicator(s, zap.NewNop())

	p := posting("https://x/1", "rust")
	_, err := d.Reconcile(context.Background(), p)
	if !errors.Is(err, ErrMerge) {
		t.Fatalf("expected merge error, got %v", err)
	}

	if p.ID != existing.ID {
		t.Fatalf("expected identity to be adopted, got %d", p.ID)
	}
}

func TestReconcileMissingURL(t *testing.T) {
	d := NewDeduplicator(memstore.New(), nil)

	if _, err := d.Reconcile(context.Background(), &model.Posting{}); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("expected missing url error, got %v", err)
	}
}
