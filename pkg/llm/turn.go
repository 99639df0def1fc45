package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role that may appear in a persisted conversation.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn represents a single message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`    // "user" or "assistant"
	Content string `json:"content"` // The message content
}

// UserTurn returns a user turn with the given content.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn returns an assistant turn with the given content.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Validate checks that the turn can be persisted.
func (t Turn) Validate() error {
	if !t.Role.Valid() {
		return fmt.Errorf("invalid role %q", t.Role)
	}
	if strings.TrimSpace(t.Content) == "" {
		return errors.New("empty content")
	}
	return nil
}

// Conversation is the ordered turn history of a session, oldest first.
type Conversation []Turn

// Validate checks every turn, reporting the index of the first bad one.
func (c Conversation) Validate() error {
	for i, t := range c {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a copy that shares no backing array with c.
// A nil conversation clones to an empty, non-nil one so it encodes as [].
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Append returns a copy of c with turns appended.
func (c Conversation) Append(turns ...Turn) Conversation {
	out := make(Conversation, 0, len(c)+len(turns))
	out = append(out, c...)
	return append(out, turns...)
}
