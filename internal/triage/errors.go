package triage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncompleteConversation means Complete was called before the dialogue
	// reached the complete phase and force was not set.
	ErrIncompleteConversation = errors.New("conversation is not complete")
	// ErrConversationClosed means the dialogue was already finalized.
	ErrConversationClosed = errors.New("conversation already completed")
)

// MissingContactInfoError blocks triage completion until the requester's
// identity-verification slots are present. This is a hard business rule.
type MissingContactInfoError struct {
	Fields []string
}

func (e MissingContactInfoError) Error() string {
	return fmt.Sprintf("missing contact info: %s", strings.Join(e.Fields, ", "))
}
