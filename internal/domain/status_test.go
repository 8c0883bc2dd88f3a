package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunState_HappyPath(t *testing.T) {
	// Given a fresh run
	state := NewRunState()
	require.Equal(t, StatusPending, state.Status())

	// When it moves through processing to completed
	require.NoError(t, state.Transition(StatusProcessing))
	require.NoError(t, state.Transition(StatusCompleted))

	// Then the terminal status is sticky
	assert.True(t, state.Status().IsTerminal())
	err := state.Transition(StatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCompleted, state.Status())
}

func TestRunStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from RunStatus
		to   RunStatus
		want bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusPartial, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusDelegated, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusPartial, StatusCompleted, false},
		{StatusFailed, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name      string
		succeeded int
		failed    int
		want      RunStatus
	}{
		{name: "all succeeded", succeeded: 5, failed: 0, want: StatusCompleted},
		{name: "one of five failed", succeeded: 4, failed: 1, want: StatusPartial},
		{name: "all failed", succeeded: 0, failed: 3, want: StatusFailed},
		{name: "nothing ran", succeeded: 0, failed: 0, want: StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.succeeded, tt.failed))
		})
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
	assert.Equal(t, 50.0, Percentage(1, 2))
	assert.Equal(t, 100.0, Percentage(3, 3))
	assert.Equal(t, 100.0, Percentage(4, 3), "count is clamped to total")
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, DocumentTypeUnit.Valid())
	assert.True(t, DocumentTypeLearnerGuide.Valid())
	assert.False(t, DocumentType("brochure").Valid())

	assert.True(t, ResultNeedsReview.Valid())
	assert.False(t, ResultStatus("maybe").Valid())
}
