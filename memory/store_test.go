package memory

import (
	"testing"

	"github.com/google/uuid"
)

func TestCloneMessagesIsDeep(t *testing.T) {
	orig := []Message{
		{Role: "system", Content: "sys"},
		{Role: "assistant", Content: "42", ToolCall: &ToolCall{ID: "c1", Name: "calculator", Result: "42"}, Meta: map[string]string{"agent": "tax"}},
	}
	cp := CloneMessages(orig)

	cp[1].ToolCall.Result = "changed"
	cp[1].Meta["agent"] = "data"
	cp[0].Content = "other"

	if orig[1].ToolCall.Result != "42" || orig[1].Meta["agent"] != "tax" || orig[0].Content != "sys" {
		t.Fatalf("clone shares state with original: %+v", orig)
	}
	if CloneMessages(nil) != nil {
		t.Fatal("nil in, nil out")
	}
}

func TestNewConversationID(t *testing.T) {
	a, b := NewConversationID(), NewConversationID()
	if a == b {
		t.Fatal("ids must be unique")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("id is not a uuid: %v", err)
	}
}
