package linking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "flock-backend/internal/errors"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUnlinked, StateCandidateSelected, true},
		{StateCandidateSelected, StateTopicResolved, true},
		{StateTopicResolved, StateMerged, true},
		{StateTopicResolved, StateFailed, true},
		{StateUnlinked, StateMerged, false},
		{StateCandidateSelected, StateMerged, false},
		{StateMerged, StateFailed, false},
		{StateFailed, StateUnlinked, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestMachine_RejectsSkippedState(t *testing.T) {
	m := newMachine()

	err := m.advance(StateMerged)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
	assert.Equal(t, StateUnlinked, m.state)
}

func TestMachine_FailIsTerminal(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.advance(StateCandidateSelected))

	_ = m.fail(assert.AnError)
	_ = m.fail(assert.AnError)

	assert.Equal(t, []State{StateUnlinked, StateCandidateSelected, StateFailed}, m.path)
	assert.True(t, m.state.Terminal())
}
