package supervisor

import "strings"

// Conversation is either new or a continuation of a stored conversation. It
// is decided once when a request enters the orchestrator.
type Conversation struct {
	id string
}

// NewConversation starts a conversation; its id is minted on the first save.
func NewConversation() Conversation { return Conversation{} }

// ContinueConversation continues the stored conversation id.
func ContinueConversation(id string) Conversation { return Conversation{id: id} }

// ResolveConversation maps an optional caller-supplied id to a Conversation.
func ResolveConversation(id string) Conversation {
	if id = strings.TrimSpace(id); id == "" {
		return NewConversation()
	}
	return ContinueConversation(id)
}

// IsNew reports whether no stored conversation is referenced.
func (c Conversation) IsNew() bool { return c.id == "" }

// ID returns the continued conversation id, or "" for a new conversation.
func (c Conversation) ID() string { return c.id }

func (c Conversation) String() string {
	if c.IsNew() {
		return "new"
	}
	return "continue:" + c.id
}
