package linking

import (
	"fmt"

	apperrors "flock-backend/internal/errors"
)

// State is a step of a single link attempt.
type State string

const (
	StateUnlinked          State = "unlinked"
	StateCandidateSelected State = "candidate_selected"
	StateTopicResolved     State = "topic_resolved"
	StateMerged            State = "merged"
	StateFailed            State = "failed"
)

// Resolution says whether the link created a topic or joined one.
type Resolution string

const (
	ResolutionNew      Resolution = "new"
	ResolutionExisting Resolution = "existing"
)

// Any non-terminal state may fail.
var transitions = map[State][]State{
	StateUnlinked:          {StateCandidateSelected, StateFailed},
	StateCandidateSelected: {StateTopicResolved, StateFailed},
	StateTopicResolved:     {StateMerged, StateFailed},
	StateMerged:            nil,
	StateFailed:            nil,
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks one attempt and the path it took.
type machine struct {
	state State
	path  []State
}

func newMachine() *machine {
	return &machine{state: StateUnlinked, path: []State{StateUnlinked}}
}

func (m *machine) advance(to State) error {
	if !CanTransition(m.state, to) {
		return apperrors.NewInternal(fmt.Sprintf("invalid link transition %s -> %s", m.state, to))
	}
	m.state = to
	m.path = append(m.path, to)
	return nil
}

// fail moves to StateFailed and returns err unchanged.
func (m *machine) fail(err error) error {
	if !m.state.Terminal() {
		m.state = StateFailed
		m.path = append(m.path, StateFailed)
	}
	return err
}
