package dedupe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/llm"
	"github.com/fixflow/backend/internal/models"
)

type scorerFunc func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error)

func (f scorerFunc) ExtractSlots(ctx context.Context, req llm.ExtractionRequest) (llm.Extraction, error) {
	return llm.Extraction{}, nil
}

func (f scorerFunc) ScoreSimilarity(ctx context.Context, req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
	return f(req)
}

func (f scorerFunc) ComposeReply(ctx context.Context, req llm.ReplyRequest) (string, error) {
	return "", nil
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func openCase(id string, age time.Duration) models.Case {
	return models.Case{
		ID:          id,
		OrgID:       "org-1",
		Status:      models.StatusNew,
		Building:    "Baker House",
		Category:    "Plumbing",
		Description: "water leaking under the sink",
		CreatedAt:   testNow.Add(-age),
	}
}

func newDetector(scorer llm.Adapter, failOpen bool) *Detector {
	return &Detector{
		LLM:      scorer,
		Logger:   zerolog.Nop(),
		FailOpen: failOpen,
		Now:      func() time.Time { return testNow },
	}
}

func TestAnalyze_EmptyPoolIsUnique(t *testing.T) {
	called := false
	d := newDetector(scorerFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		called = true
		return nil, nil
	}), true)

	analysis, err := d.Analyze(context.Background(), models.CaseDraft{}, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !analysis.IsUnique || analysis.Confidence != 1.0 {
		t.Fatalf("expected unique with full confidence, got %+v", analysis)
	}
	if called {
		t.Fatal("scorer called with no candidates")
	}
}

func TestAnalyze_ScorerOutageFailsOpen(t *testing.T) {
	d := newDetector(scorerFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return nil, context.DeadlineExceeded
	}), true)

	pool := []models.Case{openCase("c1", time.Hour)}
	analysis, err := d.Analyze(context.Background(), models.CaseDraft{Building: "Baker House"}, pool)
	if err != nil {
		t.Fatalf("fail-open analysis returned an error: %v", err)
	}
	if !analysis.IsUnique {
		t.Fatal("fail-open must treat the draft as unique")
	}
	if analysis.Confidence != 0.0 {
		t.Fatalf("fail-open confidence = %v, want 0", analysis.Confidence)
	}
}

func TestAnalyze_ScorerOutageFailsClosedWhenConfigured(t *testing.T) {
	d := newDetector(scorerFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return nil, context.DeadlineExceeded
	}), false)

	pool := []models.Case{openCase("c1", time.Hour)}
	_, err := d.Analyze(context.Background(), models.CaseDraft{Building: "Baker House"}, pool)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestAnalyze_DuplicateAboveThreshold(t *testing.T) {
	d := newDetector(scorerFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return []llm.SimilarityScore{
			{CaseID: "c1", Score: 0.93, Reason: "same leak, same room"},
			{CaseID: "c2", Score: 0.70, Reason: "same building"},
		}, nil
	}), true)

	pool := []models.Case{openCase("c1", time.Hour), openCase("c2", 2*time.Hour)}
	analysis, err := d.Analyze(context.Background(), models.CaseDraft{Building: "Baker House"}, pool)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.IsUnique {
		t.Fatal("0.93 should be a duplicate")
	}
	if analysis.DuplicateOfID == nil || *analysis.DuplicateOfID != "c1" {
		t.Fatalf("duplicate_of_id = %v", analysis.DuplicateOfID)
	}
	if analysis.Confidence != 0.93 {
		t.Fatalf("confidence = %v, want the top score", analysis.Confidence)
	}
}

func TestAnalyze_BorderlineIsNotDuplicate(t *testing.T) {
	// Exactly at the threshold stays unique; the contract is strictly greater.
	d := newDetector(scorerFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return []llm.SimilarityScore{{CaseID: "c1", Score: 0.85, IsDuplicate: true}}, nil
	}), true)

	pool := []models.Case{openCase("c1", time.Hour)}
	analysis, err := d.Analyze(context.Background(), models.CaseDraft{Building: "Baker House"}, pool)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !analysis.IsUnique {
		t.Fatal("model's is_duplicate claim must not override the threshold")
	}
}

func TestNormalizeScores_EnforcesContract(t *testing.T) {
	scores := []llm.SimilarityScore{
		{CaseID: "over", Score: 1.7},
		{CaseID: "weak", Score: 0.6},
		{CaseID: "negative", Score: -0.4},
		{CaseID: "mid", Score: 0.8, IsDuplicate: true},
	}
	matches := normalizeScores(scores)

	if len(matches) != 2 {
		t.Fatalf("expected weak and negative scores dropped, got %d matches", len(matches))
	}
	if matches[0].CaseID != "over" || matches[0].Score != 1.0 {
		t.Fatalf("clamp failed: %+v", matches[0])
	}
	if !matches[0].IsDuplicate {
		t.Fatal("clamped 1.0 should be a duplicate")
	}
	if matches[1].CaseID != "mid" || matches[1].IsDuplicate {
		t.Fatalf("0.8 must not be flagged duplicate: %+v", matches[1])
	}
}

func TestNormalizeScores_CapsMatchList(t *testing.T) {
	var scores []llm.SimilarityScore
	for i := 0; i < 15; i++ {
		scores = append(scores, llm.SimilarityScore{
			CaseID: fmt.Sprintf("c%d", i),
			Score:  0.61 + float64(i)/100,
		})
	}
	matches := normalizeScores(scores)
	if len(matches) != maxMatches {
		t.Fatalf("expected cap at %d, got %d", maxMatches, len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatal("matches not sorted descending")
		}
	}
}

func TestFilterCandidates_WindowAndStatus(t *testing.T) {
	stale := openCase("stale", 31*24*time.Hour)
	closed := openCase("closed", time.Hour)
	closed.Status = models.StatusClosed
	fresh := openCase("fresh", time.Hour)

	got := FilterCandidates(models.CaseDraft{}, []models.Case{stale, closed, fresh}, testNow)
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("expected only the fresh open case, got %+v", got)
	}
}

func TestFilterCandidates_PrefersSameBuilding(t *testing.T) {
	same := openCase("same", time.Hour)
	other := openCase("other", time.Hour)
	other.Building = "Main Hall"

	got := FilterCandidates(models.CaseDraft{Building: "baker house"}, []models.Case{other, same}, testNow)
	if len(got) != 1 || got[0].ID != "same" {
		t.Fatalf("expected same-building preference, got %+v", got)
	}
}

func TestFilterCandidates_LargePoolNarrowsToCategory(t *testing.T) {
	var pool []models.Case
	for i := 0; i < 30; i++ {
		c := openCase(fmt.Sprintf("c%d", i), time.Duration(i)*time.Hour)
		if i%2 == 0 {
			c.Category = "Electrical"
		}
		pool = append(pool, c)
	}

	got := FilterCandidates(models.CaseDraft{Category: "Plumbing"}, pool, testNow)
	if len(got) > maxCandidates {
		t.Fatalf("candidate cap exceeded: %d", len(got))
	}
	for _, c := range got {
		if c.Category != "Plumbing" {
			t.Fatalf("category narrowing failed: %+v", c)
		}
	}
}

func TestRecommendMerge(t *testing.T) {
	d := &Detector{AutoMergeThreshold: 0.90}
	if d.RecommendMerge(0.95) != MergeAuto {
		t.Fatal("0.95 should auto-merge")
	}
	if d.RecommendMerge(0.88) != MergeManual {
		t.Fatal("0.88 should go to manual review")
	}
	if d.RecommendMerge(0.90) != MergeManual {
		t.Fatal("the threshold itself should not auto-merge")
	}

	zero := &Detector{}
	if zero.RecommendMerge(0.91) != MergeAuto {
		t.Fatal("unset threshold should default to 0.90")
	}
}
