package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStateSubsets(t *testing.T) {
	terminal := []TaskState{
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled,
		TaskStateRejected, TaskStateInputRequired, TaskStateAuthRequired,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}
	for _, s := range []TaskState{TaskStateSubmitted, TaskStateWorking, TaskStateUnknown} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}

	assert.True(t, TaskStateFailed.IsFailure())
	assert.True(t, TaskStateCanceled.IsFailure())
	assert.True(t, TaskStateRejected.IsFailure())
	assert.False(t, TaskStateInputRequired.IsFailure())
	assert.False(t, TaskStateCompleted.IsFailure())

	assert.True(t, TaskStateAuthRequired.IsKnown())
	assert.False(t, TaskState("paused").IsKnown())
}

func TestContextReplaceKeepsLength(t *testing.T) {
	ctx := Context{
		{Role: "user", Text: "hello", MessageID: "m1"},
		{Role: "agent", Text: "a: Task 12345678... submitted", MessageID: "m2",
			Metadata: MessageMetadata{AgentName: "a", Status: "submitted", TaskID: "t1"}},
		{Role: "agent", Text: "b: hi", MessageID: "m3", Metadata: MessageMetadata{AgentName: "b", Status: "completed"}},
	}

	idx := ctx.PlaceholderIndex("t1")
	assert.Equal(t, 1, idx)
	assert.Equal(t, -1, ctx.PlaceholderIndex("t2"))
	assert.Equal(t, -1, ctx.PlaceholderIndex(""))

	final := Message{Role: "agent", Text: "a: done", MessageID: "m4",
		Metadata: MessageMetadata{AgentName: "a", Status: "completed", TaskID: "t1"}}
	replaced := ctx.Replace(idx, final)

	assert.Len(t, replaced, len(ctx))
	assert.Equal(t, "m4", replaced[1].MessageID)
	assert.Equal(t, "m2", ctx[1].MessageID, "original context must not change")
	assert.Equal(t, -1, replaced.PlaceholderIndex("t1"))
}

func TestContextAppendCopies(t *testing.T) {
	base := make(Context, 1, 4)
	base[0] = Message{MessageID: "m1"}

	a := base.Append(Message{MessageID: "a"})
	b := base.Append(Message{MessageID: "b"})

	assert.Equal(t, "a", a[1].MessageID)
	assert.Equal(t, "b", b[1].MessageID)
	assert.Len(t, base, 1)
}

func TestConversationStatusIsFinal(t *testing.T) {
	assert.True(t, ConversationStatusCompleted.IsFinal())
	assert.True(t, ConversationStatusCanceled.IsFinal())
	assert.True(t, ConversationStatusFailed.IsFinal())
	assert.False(t, ConversationStatusCancelRequested.IsFinal())
	assert.False(t, ConversationStatusPending.IsFinal())
}
