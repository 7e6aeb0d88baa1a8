package matching

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/jobrater/internal/ai"
	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/store"
	"github.com/spigell/jobrater/internal/store/memstore"
	"github.com/spigell/jobrater/internal/utils"
)

// fixture: user u1 has two active resumes and one inactive, two searches
// sharing posting p2. User u2 has one resume and no searches.
type fixture struct {
	store    *memstore.Store
	p1, p2   model.Posting
	r1, r2   model.Resume
	inactive model.Resume
}

func newFixture() *fixture {
	s := memstore.New()
	f := &fixture{store: s}

	s1 := s.AddSearch(model.Search{UserID: "u1", JobSource: "indeed", SearchTerm: "go"})
	s2 := s.AddSearch(model.Search{UserID: "u1", JobSource: "linkedin", SearchTerm: "rust"})

	f.p1 = s.AddPosting(model.Posting{JobURL: utils.Ptr("https://x/1"), Title: utils.Ptr("Go Engineer")})
	f.p2 = s.AddPosting(model.Posting{JobURL: utils.Ptr("https://x/2"), Title: utils.Ptr("Rust Engineer")})

	s.AddLink(model.SearchLink{SearchID: s1.ID, JobID: f.p1.ID})
	s.AddLink(model.SearchLink{SearchID: s1.ID, JobID: f.p2.ID})
	s.AddLink(model.SearchLink{SearchID: s2.ID, JobID: f.p2.ID})

	f.r1 = s.AddResume(model.Resume{UserID: "u1", Content: "resume one", IsActive: true})
	f.r2 = s.AddResume(model.Resume{UserID: "u1", Content: "resume two", IsActive: true})
	f.inactive = s.AddResume(model.Resume{UserID: "u1", Content: "old", IsActive: false})
	s.AddResume(model.Resume{UserID: "u2", Content: "other user", IsActive: true})

	return f
}

type classifyFunc func(ctx context.Context, c ai.Candidate) (*ai.Classification, error)

func (f classifyFunc) Classify(ctx context.Context, c ai.Candidate) (*ai.Classification, error) {
	return f(ctx, c)
}

func rateAll(score float64, enrichment model.Enrichment) ai.Classifier {
	return classifyFunc(func(_ context.Context, c ai.Candidate) (*ai.Classification, error) {
		return &ai.Classification{
			Enrichment: enrichment,
			Rating:     model.Rating{Score: score, Justification: "fits " + c.Resume.Content, Model: "test"},
		}, nil
	})
}

func TestFinderAntiJoin(t *testing.T) {
	f := newFixture()
	f.store.AddRating(model.Rating{JobID: f.p1.ID, ResumeID: f.r1.ID, Score: 5})

	finder, err := NewFinder(f.store, nil)
	if err != nil {
		t.Fatalf("new finder: %v", err)
	}

	pairs, err := finder.Find(context.Background())
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	// 2 postings x 2 active resumes, minus 1 rated.
	if len(pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d: %+v", len(pairs), pairs)
	}
	for _, pair := range pairs {
		if pair.ResumeID == f.inactive.ID {
			t.Fatalf("inactive resume returned: %+v", pair)
		}
		if pair == (model.MissingPair{JobID: f.p1.ID, ResumeID: f.r1.ID}) {
			t.Fatalf("rated pair returned")
		}
	}

	committer, _ := NewCommitter(f.store, nil)
	result := &ai.Classification{Rating: model.Rating{Score: 7, Justification: "ok"}}
	if _, err := committer.Commit(context.Background(), pairs[0], result); err != nil {
		t.Fatalf("commit: %v", err)
	}

	after, err := finder.Find(context.Background())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(after) != len(pairs)-1 {
		t.Fatalf("expected one fewer pair after commit, got %d", len(after))
	}
}

func TestFinderEmptyAndError(t *testing.T) {
	finder, _ := NewFinder(memstore.New(), nil)
	pairs, err := finder.Find(context.Background())
	if err != nil || pairs == nil || len(pairs) != 0 {
		t.Fatalf("expected empty non-nil result, got %v %v", pairs, err)
	}

	s := memstore.New()
	boom := errors.New("connection reset")
	s.FailOn(memstore.OpMissingRatings, boom)
	finder, _ = NewFinder(s, nil)
	if _, err := finder.Find(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestCommitterEnrichmentFailureDoesNotBlockRating(t *testing.T) {
	f := newFixture()
	boom := errors.New("update failed")
	f.store.FailOn(memstore.OpUpdateEnrichment, boom)

	core, logs := observer.New(zap.InfoLevel)
	committer, _ := NewCommitter(f.store, zap.New(core))

	pair := model.MissingPair{JobID: f.p1.ID, ResumeID: f.r1.ID}
	commit, err := committer.Commit(context.Background(), pair, &ai.Classification{
		Enrichment: model.Enrichment{Currency: utils.Ptr("USD")},
		Rating:     model.Rating{Score: 9, Justification: "great"},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if commit.Enriched || !errors.Is(commit.EnrichmentErr, boom) || commit.RatingID == 0 {
		t.Fatalf("unexpected commit: %+v", commit)
	}

	ratings := f.store.Ratings()
	if len(ratings) != 1 || ratings[0].JobID != pair.JobID || ratings[0].ResumeID != pair.ResumeID {
		t.Fatalf("unexpected ratings: %+v", ratings)
	}

	if logs.FilterMessage("updating posting enrichment failed").Len() != 1 {
		t.Fatalf("expected enrichment failure to be logged")
	}
}

func TestCommitterFillsEnrichmentAndSkipsEmpty(t *testing.T) {
	f := newFixture()
	committer, _ := NewCommitter(f.store, nil)

	commit, err := committer.Commit(context.Background(), model.MissingPair{JobID: f.p1.ID, ResumeID: f.r1.ID}, &ai.Classification{
		Enrichment: model.Enrichment{Interval: utils.Ptr("yearly"), MinAmount: utils.Ptr(100.0)},
		Rating:     model.Rating{Score: 6},
	})
	if err != nil || !commit.Enriched {
		t.Fatalf("unexpected commit: %+v %v", commit, err)
	}

	if _, err := committer.Commit(context.Background(), model.MissingPair{JobID: f.p2.ID, ResumeID: f.r1.ID}, &ai.Classification{
		Rating: model.Rating{Score: 4},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := f.store.Calls(memstore.OpUpdateEnrichment); got != 1 {
		t.Fatalf("expected one enrichment write, got %d", got)
	}

	for _, p := range f.store.Postings() {
		if p.ID == f.p1.ID && (utils.Deref(p.Interval) != "yearly" || utils.Deref(p.MinAmount) != 100) {
			t.Fatalf("posting not enriched: %+v", p)
		}
	}
	if len(f.store.Postings()) != 2 {
		t.Fatalf("commit must never insert postings")
	}
}

func TestCommitterDuplicateRating(t *testing.T) {
	f := newFixture()
	f.store.AddRating(model.Rating{JobID: f.p1.ID, ResumeID: f.r1.ID})
	committer, _ := NewCommitter(f.store, nil)

	_, err := committer.Commit(context.Background(), model.MissingPair{JobID: f.p1.ID, ResumeID: f.r1.ID}, &ai.Classification{})
	if !errors.Is(err, store.ErrDuplicateRating) {
		t.Fatalf("expected ErrDuplicateRating, got %v", err)
	}
}

// txStore runs InTx against a snapshot-free memstore and records its use.
type txStore struct {
	*memstore.Store
	txCalls    int
	rolledBack bool
}

func (s *txStore) InTx(ctx context.Context, fn func(w RatingWriter) error) error {
	s.txCalls++
	if err := fn(s.Store); err != nil {
		s.rolledBack = true
		return err
	}
	return nil
}

func TestCommitterUsesTransaction(t *testing.T) {
	f := newFixture()
	tx := &txStore{Store: f.store}
	committer, _ := NewCommitter(tx, nil)

	commit, err := committer.Commit(context.Background(), model.MissingPair{JobID: f.p1.ID, ResumeID: f.r1.ID}, &ai.Classification{
		Enrichment: model.Enrichment{IsRemote: utils.Ptr(true)},
		Rating:     model.Rating{Score: 8},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if tx.txCalls != 1 || tx.rolledBack || !commit.Enriched || commit.RatingID == 0 {
		t.Fatalf("unexpected transactional commit: %+v calls=%d", commit, tx.txCalls)
	}

	f.store.FailOn(memstore.OpInsertRating, errors.New("insert failed"))
	if _, err := committer.Commit(context.Background(), model.MissingPair{JobID: f.p2.ID, ResumeID: f.r1.ID}, &ai.Classification{}); err == nil {
		t.Fatal("expected insert failure")
	}
	if !tx.rolledBack {
		t.Fatal("expected the transaction to be rolled back")
	}
}

func TestCommitterLogsOnlyCommittedWrites(t *testing.T) {
	f := newFixture()
	tx := &txStore{Store: f.store}
	core, logs := observer.New(zap.DebugLevel)
	committer, _ := NewCommitter(tx, zap.New(core))

	f.store.FailOn(memstore.OpInsertRating, errors.New("insert failed"))
	commit, err := committer.Commit(context.Background(), model.MissingPair{JobID: f.p1.ID, ResumeID: f.r1.ID}, &ai.Classification{
		Enrichment: model.Enrichment{Currency: utils.Ptr("EUR")},
		Rating:     model.Rating{Score: 3},
	})
	if err == nil || !tx.rolledBack {
		t.Fatalf("expected a rolled back commit, got %v", err)
	}
	if commit.Enriched || commit.RatingID != 0 {
		t.Fatalf("rolled back commit must report nothing kept: %+v", commit)
	}
	if n := logs.FilterMessage("posting enriched").Len() + logs.FilterMessage("rating stored").Len(); n != 0 {
		t.Fatalf("expected no success logs after rollback, got %d", n)
	}

	f.store.FailOn(memstore.OpInsertRating, nil)
	if _, err := committer.Commit(context.Background(), model.MissingPair{JobID: f.p1.ID, ResumeID: f.r1.ID}, &ai.Classification{
		Enrichment: model.Enrichment{Currency: utils.Ptr("EUR")},
		Rating:     model.Rating{Score: 3},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if logs.FilterMessage("posting enriched").Len() != 1 || logs.FilterMessage("rating stored").Len() != 1 {
		t.Fatalf("expected success logs once the transaction committed, got %v", logs.All())
	}
}

func TestProcessMissingRatingsRatesEveryPair(t *testing.T) {
	f := newFixture()
	p, err := NewPipeline(f.store, rateAll(7, model.Enrichment{Currency: utils.Ptr("EUR")}), nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	report := p.ProcessMissingRatings(context.Background())
	if report.Found != 4 || report.Rated != 4 || len(report.Skips) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Enriched != 4 {
		t.Fatalf("expected 4 enrichment writes, got %d", report.Enriched)
	}

	again := p.ProcessMissingRatings(context.Background())
	if again.Found != 0 || again.Rated != 0 {
		t.Fatalf("expected nothing left, got %+v", again)
	}
}

func TestProcessMissingRatingsParseFailureIsolation(t *testing.T) {
	f := newFixture()
	broken := model.MissingPair{JobID: f.p1.ID, ResumeID: f.r1.ID}

	classifier := classifyFunc(func(ctx context.Context, c ai.Candidate) (*ai.Classification, error) {
		if c.JobID == broken.JobID && c.ResumeID == broken.ResumeID {
			return nil, ai.ErrInvalidResponse
		}
		return rateAll(5, model.Enrichment{Currency: utils.Ptr("USD")}).Classify(ctx, c)
	})

	core, logs := observer.New(zap.InfoLevel)
	p, _ := NewPipeline(f.store, classifier, zap.New(core))
	report := p.ProcessMissingRatings(context.Background())

	if report.Rated != 3 || len(report.Skips) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	got := report.Skips[0]
	if got.JobID != broken.JobID || got.ResumeID != broken.ResumeID || got.Stage != StageClassify {
		t.Fatalf("unexpected skip: %+v", got)
	}

	for _, r := range f.store.Ratings() {
		if r.JobID == broken.JobID && r.ResumeID == broken.ResumeID {
			t.Fatal("rating written for a failed pair")
		}
	}
	if f.store.Calls(memstore.OpUpdateEnrichment) != 3 {
		t.Fatalf("expected 3 enrichment writes, got %d", f.store.Calls(memstore.OpUpdateEnrichment))
	}

	if logs.FilterMessage("skipping pair").Len() != 1 {
		t.Fatalf("expected one skip log entry")
	}
}

func TestProcessMissingRatingsLoadFailures(t *testing.T) {
	f := newFixture()
	f.store.FailOn(memstore.OpResume, errors.New("timeout"))

	p, _ := NewPipeline(f.store, rateAll(5, model.Enrichment{}), nil)
	report := p.ProcessMissingRatings(context.Background())

	if report.Rated != 0 || len(report.Skips) != report.Found {
		t.Fatalf("unexpected report: %+v", report)
	}
	for _, s := range report.Skips {
		if s.Stage != StageLoad {
			t.Fatalf("unexpected stage: %+v", s)
		}
	}
}

func TestProcessMissingRatingsFindFailure(t *testing.T) {
	s := memstore.New()
	s.FailOn(memstore.OpMissingRatings, errors.New("down"))

	p, _ := NewPipeline(s, rateAll(1, model.Enrichment{}), nil)
	report := p.ProcessMissingRatings(context.Background())
	if report.FindErr == nil || report.Found != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestProcessMissingRatingsStopsOnCancel(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	classifier := classifyFunc(func(ctx context.Context, c ai.Candidate) (*ai.Classification, error) {
		calls++
		cancel()
		return rateAll(3, model.Enrichment{}).Classify(ctx, c)
	})

	p, _ := NewPipeline(f.store, classifier, nil)
	report := p.ProcessMissingRatings(ctx)
	if calls != 1 || report.Rated != 1 {
		t.Fatalf("expected processing to stop after cancel, calls=%d report=%+v", calls, report)
	}
}

func TestNewPipelineRequiresCollaborators(t *testing.T) {
	if _, err := NewPipeline(nil, rateAll(1, model.Enrichment{}), nil); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewPipeline(memstore.New(), nil, nil); err == nil {
		t.Fatal("expected error without classifier")
	}
}
