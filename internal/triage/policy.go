package triage

import (
	"strings"

	"github.com/fixflow/backend/internal/models"
)

type Action string

const (
	ActionEscalate     Action = "escalate_immediate"
	ActionAskFollowup  Action = "ask_followup"
	ActionRequestMedia Action = "request_media"
	ActionRecommendDIY Action = "recommend_diy"
	ActionComplete     Action = "complete_triage"
)

// Questions for the follow-up slots, in most-valuable-first order.
var followupQuestions = []struct {
	slot     string
	filled   func(models.SlotSet) bool
	question string
}{
	{"building", func(s models.SlotSet) bool { return s.Building.Filled() },
		"Which building is this in?"},
	{"category", func(s models.SlotSet) bool { return s.Category.Filled() },
		"What kind of problem is it - plumbing, electrical, heating, an appliance, or something else?"},
	{"contact_name", func(s models.SlotSet) bool { return s.ContactName.Filled() },
		"Could you share your name so we can follow up?"},
	{"contact_email", func(s models.SlotSet) bool { return s.ContactEmail.Filled() },
		"What email address can we reach you at?"},
	{"contact_phone", func(s models.SlotSet) bool { return s.ContactPhone.Filled() },
		"And a phone number in case the contractor needs to call?"},
}

var mediaKeywords = []string{
	"dripping", "leaking", "stain", "smell", "smells", "crack", "mold",
	"discolor", "noise", "rattling",
}

// Decision is the outcome of the next-action policy for one turn.
type Decision struct {
	Action   Action
	Slot     string
	Question string
	DIY      *DIYAdvice
}

// NextAction applies the priority policy, first match wins:
// immediate hazard, missing required slot, media-worthy issue without media,
// known low-risk fix, otherwise complete.
func NextAction(slots models.SlotSet, phase models.ConversationPhase, hasMedia bool) Decision {
	if HasImmediateHazard(slots) {
		return Decision{Action: ActionEscalate}
	}

	for _, q := range followupQuestions {
		if !q.filled(slots) {
			return Decision{Action: ActionAskFollowup, Slot: q.slot, Question: q.question}
		}
	}

	// Don't re-request media if the requester already ignored the ask.
	if !hasMedia && phase != models.PhaseAwaitingMedia && mediaWorthy(slots.Description.Value) {
		return Decision{Action: ActionRequestMedia,
			Question: "Could you attach a photo or short video of the issue? It helps us send the right contractor."}
	}

	if phase != models.PhaseRecommendDIY {
		if advice := MatchDIY(slots.Category.Value, slots.Description.Value); advice != nil {
			return Decision{Action: ActionRecommendDIY, DIY: advice}
		}
	}

	return Decision{Action: ActionComplete}
}

// mediaWorthy reports whether a photo would materially change routing.
func mediaWorthy(description string) bool {
	lower := strings.ToLower(description)
	for _, w := range mediaKeywords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// PhaseFor maps the chosen action onto the conversation phase machine.
func PhaseFor(action Action) models.ConversationPhase {
	switch action {
	case ActionEscalate:
		return models.PhaseEmergency
	case ActionRequestMedia:
		return models.PhaseAwaitingMedia
	case ActionRecommendDIY:
		return models.PhaseRecommendDIY
	case ActionComplete:
		return models.PhaseComplete
	default:
		return models.PhaseGatheringInfo
	}
}
