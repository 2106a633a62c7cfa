package dedupe

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/llm"
	"github.com/fixflow/backend/internal/models"
)

const (
	// CandidateWindow bounds how far back duplicate detection looks.
	CandidateWindow = 30 * 24 * time.Hour

	maxCandidates      = 20
	maxMatches         = 10
	minScore           = 0.6
	duplicateThreshold = 0.85
)

// ErrServiceUnavailable is only surfaced when the fail-open policy is
// explicitly disabled.
var ErrServiceUnavailable = errors.New("duplicate scoring service unavailable")

type MergeRecommendation string

const (
	MergeAuto   MergeRecommendation = "AUTO_MERGE"
	MergeManual MergeRecommendation = "MANUAL_REVIEW"
)

type Detector struct {
	LLM    llm.Adapter
	Logger zerolog.Logger
	// FailOpen: a scoring outage yields unique=true instead of an error.
	// Availability over precision - incident creation is never blocked.
	FailOpen           bool
	AutoMergeThreshold float64
	Now                func() time.Time
}

func (d *Detector) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Analyze decides whether a draft duplicates an existing open case.
func (d *Detector) Analyze(ctx context.Context, draft models.CaseDraft, pool []models.Case) (models.DuplicateAnalysis, error) {
	now := d.now()
	candidates := FilterCandidates(draft, pool, now)

	if len(candidates) == 0 {
		return models.DuplicateAnalysis{
			IsUnique:   true,
			Confidence: 1.0,
			Reason:     "no open cases in the candidate window",
			AnalyzedAt: now,
		}, nil
	}

	scores, err := d.LLM.ScoreSimilarity(ctx, llm.SimilarityRequest{Draft: draft, Candidates: candidates})
	if err != nil {
		d.Logger.Warn().Err(err).Msg("similarity scoring failed")
		if !d.FailOpen {
			return models.DuplicateAnalysis{}, ErrServiceUnavailable
		}
		return models.DuplicateAnalysis{
			IsUnique:   true,
			Confidence: 0.0,
			Reason:     "similarity service unavailable, failing open",
			AnalyzedAt: now,
		}, nil
	}

	matches := normalizeScores(scores)

	analysis := models.DuplicateAnalysis{
		IsUnique:   true,
		Similar:    matches,
		Confidence: 1.0,
		Reason:     "no candidate above duplicate threshold",
		AnalyzedAt: now,
	}
	if len(matches) > 0 {
		top := matches[0]
		if top.IsDuplicate {
			id := top.CaseID
			analysis.IsUnique = false
			analysis.DuplicateOfID = &id
			analysis.Confidence = top.Score
			analysis.Reason = top.Reason
		} else {
			analysis.Confidence = 1.0 - top.Score
		}
	}
	return analysis, nil
}

// normalizeScores enforces the server-side contract regardless of what the
// model claims: clamp to [0,1], drop weak matches, cap the list, sort
// descending, and re-derive the duplicate flag from the threshold.
func normalizeScores(scores []llm.SimilarityScore) []models.SimilarityMatch {
	matches := make([]models.SimilarityMatch, 0, len(scores))
	for _, s := range scores {
		score := s.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		if score <= minScore {
			continue
		}
		matches = append(matches, models.SimilarityMatch{
			CaseID:      s.CaseID,
			Score:       score,
			Reason:      s.Reason,
			IsDuplicate: score > duplicateThreshold,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	return matches
}

// FilterCandidates bounds the pool before any model call: 30-day window,
// open cases only, prefer same-location, and if the set is still large
// restrict to the draft's category, falling back to the most recent 20.
func FilterCandidates(draft models.CaseDraft, pool []models.Case, now time.Time) []models.Case {
	cutoff := now.Add(-CandidateWindow)

	var recent []models.Case
	for _, c := range pool {
		if !c.Status.Open() || c.CreatedAt.Before(cutoff) {
			continue
		}
		recent = append(recent, c)
	}

	if draft.Building != "" {
		var sameLocation []models.Case
		for _, c := range recent {
			if strings.EqualFold(c.Building, draft.Building) {
				sameLocation = append(sameLocation, c)
			}
		}
		if len(sameLocation) > 0 {
			recent = sameLocation
		}
	}

	if len(recent) > maxCandidates {
		var sameCategory []models.Case
		for _, c := range recent {
			if strings.EqualFold(c.Category, draft.Category) {
				sameCategory = append(sameCategory, c)
			}
		}
		if len(sameCategory) > 0 {
			recent = sameCategory
		}
	}

	sort.Slice(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	if len(recent) > maxCandidates {
		recent = recent[:maxCandidates]
	}
	return recent
}

// RecommendMerge never auto-merges ambiguous cases: only similarity above
// the auto-merge threshold qualifies, everything else goes to manual review.
func (d *Detector) RecommendMerge(score float64) MergeRecommendation {
	threshold := d.AutoMergeThreshold
	if threshold <= 0 {
		threshold = 0.90
	}
	if score > threshold {
		return MergeAuto
	}
	return MergeManual
}
