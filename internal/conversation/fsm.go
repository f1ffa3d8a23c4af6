package conversation

import "unicode/utf8"

// State is the turn-taking state of a live session.
type State int

const (
	StateIdle State = iota
	// StateAwaitingFollowUp follows a bare wake word: the next non-trivial
	// utterance is treated as addressed to the assistant.
	StateAwaitingFollowUp
	// StatePendingResponse waits for the speaker to go quiet before replying.
	StatePendingResponse
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFollowUp:
		return "awaiting_follow_up"
	case StatePendingResponse:
		return "pending_response"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Action is what the session must do after the machine observed an utterance.
type Action int

const (
	ActionNone Action = iota
	ActionLeave
	// ActionAcknowledge answers a bare wake word with a short prompt.
	ActionAcknowledge
	// ActionSchedule (re)arms the debounce timer.
	ActionSchedule
	// ActionDefer records a trigger that arrived while a reply was being
	// generated. It is scheduled once that reply completes.
	ActionDefer
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionLeave:
		return "leave"
	case ActionAcknowledge:
		return "acknowledge"
	case ActionSchedule:
		return "schedule"
	case ActionDefer:
		return "defer"
	default:
		return "unknown"
	}
}

// Machine is the session state machine. It is not safe for concurrent use;
// Session serializes access.
//
// Transitions on a finalized utterance:
//
//	any state, leave keyword with wake word or while awaiting -> Idle, leave
//	Idle, bare wake word                   -> AwaitingFollowUp, acknowledge
//	Idle, wake word with question          -> PendingResponse, schedule
//	AwaitingFollowUp, more than 3 chars    -> PendingResponse, schedule
//	AwaitingFollowUp, shorter              -> handled as Idle
//	PendingResponse, anything              -> PendingResponse, schedule
//	Processing, wake word with question    -> Processing, defer
//
// Everything else leaves the state unchanged with no action.
type Machine struct {
	state    State
	deferred bool
}

func (m *Machine) State() State {
	return m.state
}

// Observe feeds one finalized utterance to the machine.
func (m *Machine) Observe(text string) Action {
	norm := normalize(text)
	wake := containsAny(norm, WakeWords)

	if containsAny(norm, LeaveKeywords) && (wake || m.state == StateAwaitingFollowUp) {
		if m.state != StateProcessing {
			m.state = StateIdle
		}
		m.deferred = false
		return ActionLeave
	}

	switch m.state {
	case StatePendingResponse:
		return ActionSchedule

	case StateProcessing:
		if wake && !isBareWakeWord(norm) {
			m.deferred = true
			return ActionDefer
		}
		return ActionNone

	case StateAwaitingFollowUp:
		m.state = StateIdle
		if utf8.RuneCountInString(norm) >= minFollowUpLength {
			m.state = StatePendingResponse
			return ActionSchedule
		}
	}

	if !wake {
		return ActionNone
	}
	if isBareWakeWord(norm) {
		m.state = StateAwaitingFollowUp
		return ActionAcknowledge
	}
	m.state = StatePendingResponse
	return ActionSchedule
}

// Fire is called when the debounce delay elapsed. It reports whether a reply
// should be generated now.
func (m *Machine) Fire() bool {
	if m.state != StatePendingResponse {
		return false
	}
	m.state = StateProcessing
	return true
}

// Done ends a reply. It reports whether a trigger deferred during the reply
// must now be scheduled.
func (m *Machine) Done() bool {
	if m.state != StateProcessing {
		return false
	}
	if m.deferred {
		m.deferred = false
		m.state = StatePendingResponse
		return true
	}
	m.state = StateIdle
	return false
}
