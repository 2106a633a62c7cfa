package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/dedupe"
	"github.com/fixflow/backend/internal/geocode"
	"github.com/fixflow/backend/internal/match"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/notify"
)

// Pipeline turns a completed draft into a routed case: duplicate analysis,
// contractor ranking, persistence, notifications.
type Pipeline struct {
	Store          db.Store
	Detector       *dedupe.Detector
	Dispatcher     *notify.Dispatcher
	Geocoder       geocode.Geocoder
	CountryDefault string
	Logger         zerolog.Logger
	Now            func() time.Time
}

type Result struct {
	Case     models.Case                `json:"case"`
	Analysis models.DuplicateAnalysis   `json:"analysis"`
	Ranked   []models.RankedCandidate   `json:"ranked"`
	Merge    dedupe.MergeRecommendation `json:"merge_recommendation,omitempty"`
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// SubmitDraft runs the full intake pipeline for one draft.
func (p *Pipeline) SubmitDraft(ctx context.Context, draft models.CaseDraft) (Result, error) {
	now := p.now()

	pool, err := p.Store.ListRecentOpenCases(ctx, draft.OrgID, now.Add(-dedupe.CandidateWindow))
	if err != nil {
		// Candidate listing trouble must not block intake; an empty pool
		// fails open to unique.
		p.Logger.Warn().Err(err).Msg("candidate pool lookup failed")
		pool = nil
	}

	analysis, err := p.Detector.Analyze(ctx, draft, pool)
	if err != nil {
		return Result{}, err
	}

	c := models.Case{
		ID:          uuid.NewString(),
		OrgID:       draft.OrgID,
		Title:       draft.Title,
		Description: draft.Description,
		Category:    draft.Category,
		Priority:    draft.Urgency,
		Status:      models.StatusNew,
		Building:    draft.Building,
		Room:        draft.Room,
		Address:     draft.Address,
		SafetyRisk:  len(draft.SafetyFlags) > 0,
		Version:     0,
		CreatedAt:   now,
	}
	if draft.ConversationID != "" {
		id := draft.ConversationID
		c.ConversationID = &id
	}
	if analysisJSON, err := json.Marshal(analysis); err == nil {
		c.Analysis = analysisJSON
	}

	p.geocodeCase(ctx, &c)

	result := Result{Analysis: analysis}
	notes := map[string]any{}

	if !analysis.IsUnique {
		c.DuplicateOfID = analysis.DuplicateOfID
		result.Merge = p.Detector.RecommendMerge(analysis.Confidence)
		if result.Merge == dedupe.MergeAuto {
			c.Status = models.StatusMerged
			notes["reason_code"] = "AUTO_MERGED"
		} else {
			notes["reason_code"] = "DUPLICATE_MANUAL_REVIEW"
		}
		notes["duplicate_of"] = *analysis.DuplicateOfID
		notes["similarity"] = analysis.Confidence
	} else {
		vendors, err := p.Store.ListVendors(ctx, draft.OrgID, "")
		if err != nil {
			p.Logger.Warn().Err(err).Msg("vendor lookup failed")
		}
		result.Ranked = match.Rank(c, vendors)

		if len(result.Ranked) == 0 {
			// Valid terminal outcome of ranking, not an error.
			notes["reason_code"] = "NO_ELIGIBLE_CONTRACTOR"
			notes["reason_text"] = "No registered contractor covers this category; route to manual assignment"
		} else {
			notes["reason_code"] = "RANKED"
			top := make([]map[string]any, 0, len(result.Ranked))
			for i, r := range result.Ranked {
				if i >= 5 {
					break
				}
				top = append(top, map[string]any{
					"vendor_id": r.Vendor.ID,
					"score":     r.Score,
					"risks":     r.RiskFactors,
				})
			}
			notes["candidates"] = top
		}
	}

	if notesJSON, err := json.Marshal(notes); err == nil {
		c.RoutingNotes = notesJSON
	}

	if err := p.Store.CreateCase(ctx, c); err != nil {
		return Result{}, err
	}
	result.Case = c

	if c.Status != models.StatusMerged && p.Dispatcher != nil {
		p.Dispatcher.CaseCreated(ctx, c, result.Ranked)
	}
	return result, nil
}

func (p *Pipeline) geocodeCase(ctx context.Context, c *models.Case) {
	if p.Geocoder == nil || c.Address == "" {
		return
	}
	query := geocode.BuildQuery(p.CountryDefault, c.Building, c.Address)
	lat, lon, _, _, err := p.Geocoder.Geocode(ctx, query)
	if err != nil {
		p.Logger.Debug().Err(err).Str("query", query).Msg("case geocode failed")
		return
	}
	c.Lat = &lat
	c.Lon = &lon
}

// ManualAssign is the explicit human override path: it replaces any current
// assignment and records the operator's reasoning for audit.
func (p *Pipeline) ManualAssign(ctx context.Context, orgID, caseID, contractorID, reasoning string) (models.Case, error) {
	if _, err := p.Store.GetVendor(ctx, orgID, contractorID); err != nil {
		return models.Case{}, err
	}
	c, err := p.Store.GetCase(ctx, orgID, caseID)
	if err != nil {
		return models.Case{}, err
	}

	now := p.now()
	var previous string
	if c.ContractorID != nil {
		previous = *c.ContractorID
	}
	c.ContractorID = &contractorID
	if c.Status == models.StatusNew {
		c.Status = models.StatusInReview
	}
	c.DecidedAt = &now

	notes := map[string]any{
		"reason_code":         "MANUAL_OVERRIDE",
		"reasoning":           reasoning,
		"previous_contractor": previous,
		"at":                  now,
	}
	if notesJSON, err := json.Marshal(notes); err == nil {
		c.RoutingNotes = notesJSON
	}

	return p.Store.UpdateCaseCAS(ctx, c)
}
