package models

import (
	"encoding/json"
	"time"
)

type CaseStatus string

const (
	StatusNew        CaseStatus = "NEW"
	StatusInReview   CaseStatus = "IN_REVIEW"
	StatusScheduled  CaseStatus = "SCHEDULED"
	StatusInProgress CaseStatus = "IN_PROGRESS"
	StatusResolved   CaseStatus = "RESOLVED"
	StatusClosed     CaseStatus = "CLOSED"
	StatusMerged     CaseStatus = "MERGED"
)

// Open reports whether the case is still actionable, i.e. a valid
// duplicate-detection candidate.
func (s CaseStatus) Open() bool {
	switch s {
	case StatusResolved, StatusClosed, StatusMerged:
		return false
	}
	return true
}

type ConversationPhase string

const (
	PhaseStarted       ConversationPhase = "STARTED"
	PhaseGatheringInfo ConversationPhase = "GATHERING_INFO"
	PhaseAwaitingMedia ConversationPhase = "AWAITING_MEDIA"
	PhaseRecommendDIY  ConversationPhase = "RECOMMENDING_DIY"
	PhaseComplete      ConversationPhase = "COMPLETE"
	PhaseEmergency     ConversationPhase = "EMERGENCY"
)

func (p ConversationPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseEmergency
}

type Case struct {
	ID             string          `json:"id"`
	OrgID          string          `json:"org_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Priority       UrgencyLevel    `json:"priority"`
	Status         CaseStatus      `json:"status"`
	Building       string          `json:"building"`
	Room           string          `json:"room"`
	Address        string          `json:"address,omitempty"`
	Lat            *float64        `json:"lat,omitempty"`
	Lon            *float64        `json:"lon,omitempty"`
	ContractorID   *string         `json:"contractor_id"`
	SafetyRisk     bool            `json:"safety_risk"`
	ConversationID *string         `json:"conversation_id,omitempty"`
	DuplicateOfID  *string         `json:"duplicate_of_id,omitempty"`
	Analysis       json.RawMessage `json:"analysis,omitempty"`
	RoutingNotes   json.RawMessage `json:"routing_notes,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	DecidedAt      *time.Time      `json:"decided_at,omitempty"`
}

type Vendor struct {
	ID                 string    `json:"id"`
	OrgID              string    `json:"org_id"`
	Name               string    `json:"name"`
	Categories         []string  `json:"categories"`
	Rating             float64   `json:"rating"`
	CurrentLoad        int       `json:"current_load"`
	MaxJobsPerDay      int       `json:"max_jobs_per_day"`
	ResponseTimeHours  float64   `json:"response_time_hours"`
	EmergencyAvailable bool      `json:"emergency_available"`
	Availability       string    `json:"availability,omitempty"`
	Address            string    `json:"address,omitempty"`
	Lat                *float64  `json:"lat,omitempty"`
	Lon                *float64  `json:"lon,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Appointment struct {
	ID           string    `json:"id"`
	CaseID       string    `json:"case_id"`
	ContractorID string    `json:"contractor_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Overlaps reports whether [a.Start, a.End) intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.Start.Before(end) && start.Before(a.End)
}

type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	MediaRefs []string  `json:"media_refs,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type TriageConversation struct {
	ID          string                `json:"id"`
	RequesterID string                `json:"requester_id"`
	OrgID       string                `json:"org_id"`
	Phase       ConversationPhase     `json:"phase"`
	Slots       SlotSet               `json:"slots"`
	Messages    []ConversationMessage `json:"messages"`
	Completed   bool                  `json:"completed"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func (c *TriageConversation) HasMedia() bool {
	for _, m := range c.Messages {
		if len(m.MediaRefs) > 0 {
			return true
		}
	}
	return false
}

// CaseDraft is the structured outcome of a completed triage dialogue or a
// traditional form submission, before duplicate analysis.
type CaseDraft struct {
	OrgID          string       `json:"org_id"`
	RequesterID    string       `json:"requester_id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Category       string       `json:"category"`
	Building       string       `json:"building"`
	Room           string       `json:"room"`
	Address        string       `json:"address,omitempty"`
	Urgency        UrgencyLevel `json:"urgency"`
	SafetyFlags    []string     `json:"safety_flags,omitempty"`
	ContactName    string       `json:"contact_name"`
	ContactEmail   string       `json:"contact_email"`
	ContactPhone   string       `json:"contact_phone"`
	ConversationID string       `json:"conversation_id,omitempty"`
	MediaRefs      []string     `json:"media_refs,omitempty"`
}

type SimilarityMatch struct {
	CaseID      string  `json:"case_id"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"`
	IsDuplicate bool    `json:"is_duplicate"`
}

type DuplicateAnalysis struct {
	IsUnique      bool              `json:"is_unique"`
	DuplicateOfID *string           `json:"duplicate_of_id,omitempty"`
	Similar       []SimilarityMatch `json:"similar,omitempty"`
	Confidence    float64           `json:"confidence"`
	Reason        string            `json:"reason"`
	AnalyzedAt    time.Time         `json:"analyzed_at"`
}

type RankedCandidate struct {
	Vendor      Vendor   `json:"vendor"`
	Score       int      `json:"score"`
	Reasons     []string `json:"reasons"`
	RiskFactors []string `json:"risk_factors,omitempty"`
}
