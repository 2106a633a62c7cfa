package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/dedupe"
	"github.com/fixflow/backend/internal/llm"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/notify"
)

type scoreFunc func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error)

func (f scoreFunc) ExtractSlots(ctx context.Context, req llm.ExtractionRequest) (llm.Extraction, error) {
	return llm.Extraction{}, nil
}

func (f scoreFunc) ScoreSimilarity(ctx context.Context, req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
	return f(req)
}

func (f scoreFunc) ComposeReply(ctx context.Context, req llm.ReplyRequest) (string, error) {
	return "", nil
}

var pipelineNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newPipeline(store db.Store, scorer llm.Adapter) *Pipeline {
	return &Pipeline{
		Store: store,
		Detector: &dedupe.Detector{
			LLM:      scorer,
			Logger:   zerolog.Nop(),
			FailOpen: true,
			Now:      func() time.Time { return pipelineNow },
		},
		Dispatcher: &notify.Dispatcher{Sender: notify.LogSender{Logger: zerolog.Nop()}, Logger: zerolog.Nop()},
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return pipelineNow },
	}
}

func plumbingDraft() models.CaseDraft {
	return models.CaseDraft{
		OrgID:       "org-1",
		Title:       "Plumbing issue - Baker House 305",
		Description: "water leaking under the sink",
		Category:    "Plumbing",
		Building:    "Baker House",
		Room:        "305",
		Urgency:     models.UrgencyNormal,
	}
}

func TestSubmitDraft_UniqueCaseGetsRanked(t *testing.T) {
	store := db.NewMemory()
	ctx := context.Background()
	if _, err := store.InsertVendors(ctx, []models.Vendor{{
		ID: "v1", OrgID: "org-1", Name: "Pipes Inc",
		Categories: []string{"Plumbing"}, Rating: 4.5, MaxJobsPerDay: 5, ResponseTimeHours: 4,
	}}); err != nil {
		t.Fatal(err)
	}

	p := newPipeline(store, scoreFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return nil, nil
	}))

	result, err := p.SubmitDraft(ctx, plumbingDraft())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Analysis.IsUnique {
		t.Fatal("expected unique analysis")
	}
	if result.Case.Status != models.StatusNew {
		t.Fatalf("status = %s", result.Case.Status)
	}
	if len(result.Ranked) != 1 || result.Ranked[0].Vendor.ID != "v1" {
		t.Fatalf("ranking missing: %+v", result.Ranked)
	}

	var notes map[string]any
	if err := json.Unmarshal(result.Case.RoutingNotes, &notes); err != nil {
		t.Fatalf("routing notes: %v", err)
	}
	if notes["reason_code"] != "RANKED" {
		t.Fatalf("reason_code = %v", notes["reason_code"])
	}

	if _, err := store.GetCase(ctx, "org-1", result.Case.ID); err != nil {
		t.Fatalf("case not persisted: %v", err)
	}
}

func TestSubmitDraft_NoEligibleContractorIsNotAnError(t *testing.T) {
	p := newPipeline(db.NewMemory(), scoreFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return nil, nil
	}))

	result, err := p.SubmitDraft(context.Background(), plumbingDraft())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(result.Ranked) != 0 {
		t.Fatalf("expected empty ranking, got %+v", result.Ranked)
	}

	var notes map[string]any
	if err := json.Unmarshal(result.Case.RoutingNotes, &notes); err != nil {
		t.Fatal(err)
	}
	if notes["reason_code"] != "NO_ELIGIBLE_CONTRACTOR" {
		t.Fatalf("reason_code = %v", notes["reason_code"])
	}
}

func TestSubmitDraft_DuplicateRoutesToManualReview(t *testing.T) {
	store := db.NewMemory()
	ctx := context.Background()
	if err := store.CreateCase(ctx, models.Case{
		ID: "existing", OrgID: "org-1", Status: models.StatusNew,
		Building: "Baker House", Category: "Plumbing",
		Description: "sink leak", CreatedAt: pipelineNow.Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	p := newPipeline(store, scoreFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return []llm.SimilarityScore{{CaseID: "existing", Score: 0.88, Reason: "same sink"}}, nil
	}))
	p.Detector.AutoMergeThreshold = 0.90

	result, err := p.SubmitDraft(ctx, plumbingDraft())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Analysis.IsUnique {
		t.Fatal("expected duplicate")
	}
	if result.Merge != dedupe.MergeManual {
		t.Fatalf("merge = %s", result.Merge)
	}
	if result.Case.Status != models.StatusNew {
		t.Fatalf("manual-review duplicate should stay NEW, got %s", result.Case.Status)
	}
	if result.Case.DuplicateOfID == nil || *result.Case.DuplicateOfID != "existing" {
		t.Fatalf("duplicate_of_id = %v", result.Case.DuplicateOfID)
	}
}

func TestSubmitDraft_HighSimilarityAutoMerges(t *testing.T) {
	store := db.NewMemory()
	ctx := context.Background()
	if err := store.CreateCase(ctx, models.Case{
		ID: "existing", OrgID: "org-1", Status: models.StatusNew,
		Building: "Baker House", Category: "Plumbing",
		CreatedAt: pipelineNow.Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	p := newPipeline(store, scoreFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return []llm.SimilarityScore{{CaseID: "existing", Score: 0.97, Reason: "identical report"}}, nil
	}))
	p.Detector.AutoMergeThreshold = 0.90

	result, err := p.SubmitDraft(ctx, plumbingDraft())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Merge != dedupe.MergeAuto {
		t.Fatalf("merge = %s", result.Merge)
	}
	if result.Case.Status != models.StatusMerged {
		t.Fatalf("status = %s", result.Case.Status)
	}
}

func TestSubmitDraft_SafetyFlagsMarkRisk(t *testing.T) {
	p := newPipeline(db.NewMemory(), scoreFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return nil, nil
	}))

	draft := plumbingDraft()
	draft.SafetyFlags = []string{llm.FlagGasLeak}
	draft.Urgency = models.UrgencyEmergency

	result, err := p.SubmitDraft(context.Background(), draft)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Case.SafetyRisk {
		t.Fatal("safety risk not recorded")
	}
	if result.Case.Priority != models.UrgencyEmergency {
		t.Fatalf("priority = %s", result.Case.Priority)
	}
}

func TestManualAssign_RecordsAuditTrail(t *testing.T) {
	store := db.NewMemory()
	ctx := context.Background()

	previous := "v-old"
	if err := store.CreateCase(ctx, models.Case{
		ID: "case-1", OrgID: "org-1", Status: models.StatusInReview, ContractorID: &previous,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.InsertVendors(ctx, []models.Vendor{{ID: "v-new", OrgID: "org-1", Name: "Override Inc"}}); err != nil {
		t.Fatal(err)
	}

	p := newPipeline(store, scoreFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return nil, nil
	}))

	c, err := p.ManualAssign(ctx, "org-1", "case-1", "v-new", "specialist needed for old piping")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if c.ContractorID == nil || *c.ContractorID != "v-new" {
		t.Fatalf("contractor = %v", c.ContractorID)
	}

	var notes map[string]any
	if err := json.Unmarshal(c.RoutingNotes, &notes); err != nil {
		t.Fatal(err)
	}
	if notes["reason_code"] != "MANUAL_OVERRIDE" || notes["previous_contractor"] != "v-old" {
		t.Fatalf("audit notes incomplete: %v", notes)
	}
}

func TestManualAssign_UnknownVendorRejected(t *testing.T) {
	store := db.NewMemory()
	ctx := context.Background()
	if err := store.CreateCase(ctx, models.Case{ID: "case-1", OrgID: "org-1", Status: models.StatusNew}); err != nil {
		t.Fatal(err)
	}

	p := newPipeline(store, scoreFunc(func(req llm.SimilarityRequest) ([]llm.SimilarityScore, error) {
		return nil, nil
	}))
	if _, err := p.ManualAssign(ctx, "org-1", "case-1", "ghost", "whatever"); err == nil {
		t.Fatal("expected unknown vendor to be rejected")
	}
}
