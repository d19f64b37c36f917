package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRelayPolicy(t *testing.T) {
	engine, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input RelayInput
		want  bool
	}{
		{
			name:  "other agent",
			input: RelayInput{Recipient: "b", Sender: "a"},
			want:  true,
		},
		{
			name:  "self",
			input: RelayInput{Recipient: "a", Sender: "a"},
			want:  false,
		},
		{
			name:  "original sender",
			input: RelayInput{Recipient: "a", Sender: "b", OriginalSender: "a", Chain: []string{"a"}},
			want:  false,
		},
		{
			name:  "on chain without strict mode",
			input: RelayInput{Recipient: "c", Sender: "b", OriginalSender: "a", Chain: []string{"a", "c"}},
			want:  true,
		},
		{
			name:  "on chain with strict mode",
			input: RelayInput{Recipient: "c", Sender: "b", OriginalSender: "a", Chain: []string{"a", "c"}, StrictAcyclic: true},
			want:  false,
		},
		{
			name:  "strict mode off chain",
			input: RelayInput{Recipient: "d", Sender: "b", OriginalSender: "a", Chain: []string{"a", "c"}, StrictAcyclic: true},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.AllowRelay(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, tt.input.Allowed(), "built-in rule agrees with policy")
		})
	}
}

func TestNewEngineRejectsInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package relay_policy\nallow {")
	assert.Error(t, err)
}

func TestAllowRelayNonBoolDecision(t *testing.T) {
	engine, err := NewEngine(context.Background(), "package relay_policy\n\nallow = \"yes\"\n")
	require.NoError(t, err)

	_, err = engine.AllowRelay(context.Background(), RelayInput{Recipient: "a", Sender: "b"})
	assert.Error(t, err)
}
