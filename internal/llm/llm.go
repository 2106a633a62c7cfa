package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fixflow/backend/internal/models"
)

// Safety flags in the immediate-hazard set. Any one of these forces the
// conversation into the emergency phase.
const (
	FlagGasLeak            = "gas_leak"
	FlagElectricalArcing   = "electrical_arcing"
	FlagStructuralCollapse = "structural_collapse"
	FlagFloodingElectrical = "flooding_into_electrical"
)

func IsImmediateHazard(flag string) bool {
	switch flag {
	case FlagGasLeak, FlagElectricalArcing, FlagStructuralCollapse, FlagFloodingElectrical:
		return true
	}
	return false
}

// Extraction is the declared JSON shape of one slot-extraction call.
type Extraction struct {
	Building     string   `json:"building"`
	Room         string   `json:"room"`
	Category     string   `json:"category"`
	Timeline     string   `json:"timeline"`
	Description  string   `json:"description"`
	ContactName  string   `json:"contact_name"`
	ContactEmail string   `json:"contact_email"`
	ContactPhone string   `json:"contact_phone"`
	Urgency      string   `json:"urgency"`
	SafetyFlags  []string `json:"safety_flags"`
	Confidence   float64  `json:"confidence"`
	ModelVersion string   `json:"model_version,omitempty"`
}

type ExtractionRequest struct {
	Text    string
	Known   models.SlotSet
	History []models.ConversationMessage
}

type SimilarityRequest struct {
	Draft      models.CaseDraft
	Candidates []models.Case
}

type SimilarityScore struct {
	CaseID      string  `json:"case_id"`
	Score       float64 `json:"similarity_score"`
	Reason      string  `json:"match_reason"`
	IsDuplicate bool    `json:"is_duplicate"`
}

type ReplyRequest struct {
	Action  string
	Detail  string
	History []models.ConversationMessage
}

// Adapter is the contract with the language-model service: given a prompt,
// return parsed JSON matching the declared shape, or fail. Callers bound
// every call with a timeout and treat timeout as a typed failure.
type Adapter interface {
	ExtractSlots(ctx context.Context, req ExtractionRequest) (Extraction, error)
	ScoreSimilarity(ctx context.Context, req SimilarityRequest) ([]SimilarityScore, error)
	ComposeReply(ctx context.Context, req ReplyRequest) (string, error)
}

var ErrUnparsable = errors.New("model returned unparsable output")

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}
