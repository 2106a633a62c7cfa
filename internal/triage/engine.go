package triage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/llm"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/notify"
)

// EmergencyInstruction is delivered verbatim whenever an immediate hazard is
// detected, independent of any other processing outcome.
const EmergencyInstruction = "This sounds like an immediate safety hazard. " +
	"Leave the area now and call emergency services (911) or campus security. " +
	"Do not operate switches or appliances near the hazard. " +
	"Our emergency maintenance team has been alerted."

type ConversationStore interface {
	CreateConversation(ctx context.Context, c models.TriageConversation) error
	GetConversation(ctx context.Context, id string) (models.TriageConversation, error)
	UpdateConversation(ctx context.Context, c models.TriageConversation) error
}

// Engine drives the multi-turn triage dialogue. Turns within one
// conversation are strictly ordered: a per-conversation lock holds turn N+1
// until turn N's slot merge has committed.
type Engine struct {
	Store              ConversationStore
	LLM                llm.Adapter
	Notify             *notify.Dispatcher
	Logger             zerolog.Logger
	Buildings          []string
	RequireContactInfo bool
	Now                func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type TurnResult struct {
	ConversationID string              `json:"conversation_id"`
	Message        string              `json:"message"`
	Urgency        models.UrgencyLevel `json:"urgency"`
	SafetyFlags    []string            `json:"safety_flags,omitempty"`
	NextAction     Action              `json:"next_action"`
	NextQuestion   string              `json:"next_question,omitempty"`
	DIY            *DIYAdvice          `json:"diy,omitempty"`
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) convLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks == nil {
		e.locks = map[string]*sync.Mutex{}
	}
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Start creates a conversation from the first message and runs one turn.
func (e *Engine) Start(ctx context.Context, requesterID, orgID, text string) (TurnResult, error) {
	now := e.now()
	conv := models.TriageConversation{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		OrgID:       orgID,
		Phase:       models.PhaseStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result := e.runTurn(ctx, &conv, text, nil)

	if err := e.Store.CreateConversation(ctx, conv); err != nil {
		return TurnResult{}, err
	}
	return result, nil
}

// Continue appends a turn to an existing conversation.
func (e *Engine) Continue(ctx context.Context, conversationID, text string, mediaRefs []string) (TurnResult, error) {
	lock := e.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := e.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return TurnResult{}, err
	}
	if conv.Completed {
		return TurnResult{}, ErrConversationClosed
	}

	if conv.Phase == models.PhaseEmergency {
		// Emergency is terminal for the automated flow: keep the record but
		// only ever repeat the escalation instruction.
		conv.Messages = append(conv.Messages,
			models.ConversationMessage{Role: "user", Content: text, MediaRefs: mediaRefs, CreatedAt: e.now()},
			models.ConversationMessage{Role: "assistant", Content: EmergencyInstruction, CreatedAt: e.now()})
		conv.UpdatedAt = e.now()
		if err := e.Store.UpdateConversation(ctx, conv); err != nil {
			return TurnResult{}, err
		}
		return TurnResult{
			ConversationID: conv.ID,
			Message:        EmergencyInstruction,
			Urgency:        conv.Slots.Urgency,
			SafetyFlags:    conv.Slots.SafetyFlags,
			NextAction:     ActionEscalate,
		}, nil
	}

	result := e.runTurn(ctx, &conv, text, mediaRefs)

	if err := e.Store.UpdateConversation(ctx, conv); err != nil {
		return TurnResult{}, err
	}
	return result, nil
}

func (e *Engine) runTurn(ctx context.Context, conv *models.TriageConversation, text string, mediaRefs []string) TurnResult {
	now := e.now()
	conv.Messages = append(conv.Messages, models.ConversationMessage{
		Role: "user", Content: text, MediaRefs: mediaRefs, CreatedAt: now,
	})

	ext, err := e.LLM.ExtractSlots(ctx, llm.ExtractionRequest{
		Text:    text,
		Known:   conv.Slots,
		History: conv.Messages,
	})
	if err != nil {
		// Extraction outage degrades to the keyword extractor; the turn must
		// still make forward progress.
		e.Logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("extraction failed, keyword fallback")
		ext = llm.KeywordExtract(text, e.Buildings)
	}

	// The hazard scan runs regardless of the model so a detection failure
	// can never suppress a safety signal.
	ext.SafetyFlags = append(ext.SafetyFlags, llm.DetectHazards(text)...)

	slots, notes := MergeExtraction(conv.Slots, ext)
	for _, n := range notes {
		e.Logger.Info().Str("conversation_id", conv.ID).Msg(n)
	}
	if HasImmediateHazard(slots) && slots.Urgency < models.UrgencyEmergency {
		slots.Urgency = models.UrgencyEmergency
	}
	conv.Slots = slots

	decision := NextAction(conv.Slots, conv.Phase, conv.HasMedia())
	wasEmergency := conv.Phase == models.PhaseEmergency
	conv.Phase = PhaseFor(decision.Action)
	if conv.Phase == models.PhaseEmergency && !wasEmergency && e.Notify != nil {
		e.Notify.EmergencyDetected(ctx, conv.OrgID, conv.ID, conv.Slots.SafetyFlags)
	}

	message := e.composeMessage(ctx, conv, decision)
	conv.Messages = append(conv.Messages, models.ConversationMessage{
		Role: "assistant", Content: message, CreatedAt: e.now(),
	})
	conv.UpdatedAt = e.now()

	return TurnResult{
		ConversationID: conv.ID,
		Message:        message,
		Urgency:        conv.Slots.Urgency,
		SafetyFlags:    conv.Slots.SafetyFlags,
		NextAction:     decision.Action,
		NextQuestion:   decision.Question,
		DIY:            decision.DIY,
	}
}

func (e *Engine) composeMessage(ctx context.Context, conv *models.TriageConversation, decision Decision) string {
	// The emergency instruction is never delegated to the model.
	if decision.Action == ActionEscalate {
		return EmergencyInstruction
	}

	fallback := e.templateMessage(decision)
	reply, err := e.LLM.ComposeReply(ctx, llm.ReplyRequest{
		Action:  string(decision.Action),
		Detail:  fallback,
		History: conv.Messages,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		return fallback
	}
	return reply
}

func (e *Engine) templateMessage(decision Decision) string {
	switch decision.Action {
	case ActionAskFollowup, ActionRequestMedia:
		return decision.Question
	case ActionRecommendDIY:
		var b strings.Builder
		fmt.Fprintf(&b, "Before we send someone out, this might be a quick fix: %s.", decision.DIY.Title)
		for i, s := range decision.DIY.Steps {
			fmt.Fprintf(&b, " %d) %s", i+1, s)
		}
		b.WriteString(" Important:")
		for _, w := range decision.DIY.Warnings {
			b.WriteString(" " + w)
		}
		b.WriteString(" If that doesn't solve it, just tell me and we'll send a contractor.")
		return b.String()
	case ActionComplete:
		return "Thanks, I have everything I need. We're creating your maintenance request now and will match a contractor shortly."
	default:
		return "Could you tell me a bit more about the issue?"
	}
}

// Complete finalizes a conversation into a CaseDraft. It requires the
// complete phase unless force is set, and always requires the contact slots
// when the fail-closed contact policy is on.
func (e *Engine) Complete(ctx context.Context, conversationID string, force bool) (models.CaseDraft, error) {
	lock := e.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := e.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return models.CaseDraft{}, err
	}
	if conv.Completed {
		return models.CaseDraft{}, ErrConversationClosed
	}
	if conv.Phase != models.PhaseComplete && !force {
		return models.CaseDraft{}, ErrIncompleteConversation
	}
	if e.RequireContactInfo {
		if missing := conv.Slots.MissingContact(); len(missing) > 0 {
			return models.CaseDraft{}, MissingContactInfoError{Fields: missing}
		}
	}

	draft := DraftFromSlots(conv)

	conv.Completed = true
	conv.UpdatedAt = e.now()
	if err := e.Store.UpdateConversation(ctx, conv); err != nil {
		return models.CaseDraft{}, err
	}
	return draft, nil
}

// DraftFromSlots builds the case draft for a conversation's slot set.
func DraftFromSlots(conv models.TriageConversation) models.CaseDraft {
	slots := conv.Slots

	title := slots.Category.Value
	if title == "" {
		title = "Maintenance"
	}
	title += " issue"
	if slots.Building.Filled() {
		title += " - " + slots.Building.Value
		if slots.Room.Filled() {
			title += " " + slots.Room.Value
		}
	}

	var media []string
	for _, m := range conv.Messages {
		media = append(media, m.MediaRefs...)
	}

	return models.CaseDraft{
		OrgID:          conv.OrgID,
		RequesterID:    conv.RequesterID,
		Title:          title,
		Description:    slots.Description.Value,
		Category:       slots.Category.Value,
		Building:       slots.Building.Value,
		Room:           slots.Room.Value,
		Urgency:        slots.Urgency,
		SafetyFlags:    slots.SafetyFlags,
		ContactName:    slots.ContactName.Value,
		ContactEmail:   slots.ContactEmail.Value,
		ContactPhone:   slots.ContactPhone.Value,
		ConversationID: conv.ID,
		MediaRefs:      media,
	}
}
