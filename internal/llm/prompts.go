package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

func extractionPrompt(req ExtractionRequest) string {
	known, _ := json.Marshal(req.Known)

	var history strings.Builder
	for _, m := range req.History {
		fmt.Fprintf(&history, "%s: %s\n", m.Role, m.Content)
	}

	return fmt.Sprintf(`You are the intake assistant for a property maintenance service.
Extract structured facts from the resident's latest message, using the
conversation so far and the already-known slots for context. Do not invent
values; leave unknown fields empty. Urgency must be one of: low, normal,
urgent, emergency. safety_flags may only contain: gas_leak,
electrical_arcing, structural_collapse, flooding_into_electrical.

Known slots: %s

Conversation so far:
%s
Latest message: %s

Return ONLY a JSON object with this exact structure:
{
  "building": "", "room": "", "category": "", "timeline": "",
  "description": "", "contact_name": "", "contact_email": "",
  "contact_phone": "", "urgency": "normal", "safety_flags": [],
  "confidence": 0.0
}`, known, history.String(), req.Text)
}

func similarityPrompt(req SimilarityRequest) string {
	type candidate struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Building    string `json:"building"`
		Room        string `json:"room"`
		CreatedAt   string `json:"created_at"`
	}
	cands := make([]candidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		cands = append(cands, candidate{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Category:    c.Category,
			Building:    c.Building,
			Room:        c.Room,
			CreatedAt:   c.CreatedAt.Format("2006-01-02"),
		})
	}
	candsJSON, _ := json.Marshal(cands)
	draftJSON, _ := json.Marshal(map[string]string{
		"description": req.Draft.Description,
		"category":    req.Draft.Category,
		"building":    req.Draft.Building,
		"room":        req.Draft.Room,
	})

	return fmt.Sprintf(`You detect duplicate maintenance requests. Compare the
new request against each existing open case and score how likely they
describe the same underlying issue (same root cause, same location).

New request: %s

Existing cases: %s

Return ONLY a JSON array, one entry per existing case:
[{"case_id": "", "similarity_score": 0.0, "match_reason": "", "is_duplicate": false}]
similarity_score is in [0,1].`, draftJSON, candsJSON)
}

func replyPrompt(req ReplyRequest) string {
	var history strings.Builder
	for _, m := range req.History {
		fmt.Fprintf(&history, "%s: %s\n", m.Role, m.Content)
	}

	return fmt.Sprintf(`You are a friendly maintenance intake assistant. Write the
next message to the resident. Keep it to one or two sentences, plain text.

Conversation so far:
%s
What the message must accomplish: %s
Details to include: %s`, history.String(), req.Action, req.Detail)
}
