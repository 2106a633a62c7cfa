package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fixflow/backend/internal/utils"
)

// MockAdapter gives deterministic answers for local development and tests:
// extraction rides the keyword engine with a hash-wiggled confidence, and
// similarity is plain token overlap with a location boost.
type MockAdapter struct {
	ModelVersion string
	Buildings    []string
}

func (m MockAdapter) ExtractSlots(ctx context.Context, req ExtractionRequest) (Extraction, error) {
	ext := KeywordExtract(req.Text, m.Buildings)
	h := utils.HashStringToUint64(req.Text)
	ext.Confidence = 0.70 + float64(h%20)/100
	ext.ModelVersion = m.ModelVersion
	return ext, nil
}

func (m MockAdapter) ScoreSimilarity(ctx context.Context, req SimilarityRequest) ([]SimilarityScore, error) {
	out := make([]SimilarityScore, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		score := tokenOverlap(req.Draft.Description, c.Description)
		reason := "description overlap"
		if req.Draft.Building != "" && strings.EqualFold(req.Draft.Building, c.Building) {
			score += 0.15
			reason = "same building, description overlap"
			if req.Draft.Room != "" && strings.EqualFold(req.Draft.Room, c.Room) {
				score += 0.15
				reason = "same building and room, description overlap"
			}
		}
		if score > 1 {
			score = 1
		}
		out = append(out, SimilarityScore{
			CaseID:      c.ID,
			Score:       score,
			Reason:      reason,
			IsDuplicate: score > 0.85,
		})
	}
	return out, nil
}

func (m MockAdapter) ComposeReply(ctx context.Context, req ReplyRequest) (string, error) {
	if req.Detail != "" {
		return fmt.Sprintf("%s %s", req.Action, req.Detail), nil
	}
	return req.Action, nil
}

func tokenOverlap(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range strings.Fields(strings.ToLower(s)) {
		t = strings.Trim(t, ".,!?;:")
		if len(t) > 2 {
			out[t] = struct{}{}
		}
	}
	return out
}
