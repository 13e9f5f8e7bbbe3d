// Package workflow holds the dictation state machine: a pure reducer over
// transcript and verification events, and a Controller that drives the
// recognizer, the verifier and the clipboard.
package workflow

import (
	"fmt"
	"unicode/utf8"

	"phishcheck/verify"
)

// EscalationThreshold is the score below which a result offers escalation.
// A score equal to it is considered safe.
const EscalationThreshold = 0.75

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseSubmitting
	PhaseResulted
	PhaseFailed
	// PhaseUnsupported is terminal.
	PhaseUnsupported
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseSubmitting:
		return "submitting"
	case PhaseResulted:
		return "resulted"
	case PhaseFailed:
		return "failed"
	case PhaseUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeScored
	OutcomeFailed
)

// Outcome is the last completed verification.
type Outcome struct {
	Kind      OutcomeKind
	RequestID string
	Result    verify.Result // valid for OutcomeScored
	Err       error         // valid for OutcomeFailed
}

// State is an immutable snapshot; Apply returns a new value.
type State struct {
	Live      string
	Editable  string
	Listening bool

	InFlight string // request id, empty when no request is pending
	Outcome  Outcome

	Unsupported bool
	MaxRunes    int // 0 disables the cap
}

// Phase folds the state into the single label the UI shows. A pending
// request wins over listening.
func (s State) Phase() Phase {
	switch {
	case s.Unsupported:
		return PhaseUnsupported
	case s.InFlight != "":
		return PhaseSubmitting
	case s.Listening:
		return PhaseListening
	case s.Outcome.Kind == OutcomeScored:
		return PhaseResulted
	case s.Outcome.Kind == OutcomeFailed:
		return PhaseFailed
	default:
		return PhaseIdle
	}
}

func (s State) SubmitDisabled() bool {
	return s.InFlight != "" || len(s.Editable) == 0
}

// EscalationVisible is judged on the stored result, not on the current text.
func (s State) EscalationVisible() bool {
	return s.Outcome.Kind == OutcomeScored && s.Outcome.Result.Score < EscalationThreshold
}

type Event interface {
	isEvent()
}

type (
	ListeningStarted struct{ Transcript string }
	ListeningStopped struct{ Transcript string }
	// SpeechUpdated is ignored unless listening.
	SpeechUpdated   struct{ Transcript string }
	TextEdited      struct{ Text string }
	// TextAppended and RuneDeleted edit the buffer as it is when applied.
	TextAppended    struct{ Text string }
	RuneDeleted     struct{}
	VerifyRequested struct{ ID string }
	VerifySucceeded struct {
		ID     string
		Result verify.Result
	}
	VerifyFailed struct {
		ID  string
		Err error
	}
	Cleared struct{}
)

func (ListeningStarted) isEvent() {}
func (ListeningStopped) isEvent() {}
func (SpeechUpdated) isEvent()    {}
func (TextEdited) isEvent()       {}
func (TextAppended) isEvent()     {}
func (RuneDeleted) isEvent()      {}
func (VerifyRequested) isEvent()  {}
func (VerifySucceeded) isEvent()  {}
func (VerifyFailed) isEvent()     {}
func (Cleared) isEvent()          {}

// Apply returns the state after e. It never blocks or performs I/O.
func (s State) Apply(e Event) State {
	if s.Unsupported {
		return s
	}
	switch e := e.(type) {
	case ListeningStarted:
		s.Listening = true
		s.resync(e.Transcript)
	case ListeningStopped:
		s.Listening = false
		s.resync(e.Transcript)
	case SpeechUpdated:
		if !s.Listening {
			return s
		}
		s.resync(e.Transcript)
	case TextEdited:
		s.Editable = truncateRunes(e.Text, s.MaxRunes)
	case TextAppended:
		s.Editable = truncateRunes(s.Editable+e.Text, s.MaxRunes)
	case RuneDeleted:
		if _, size := utf8.DecodeLastRuneInString(s.Editable); size > 0 {
			s.Editable = s.Editable[:len(s.Editable)-size]
		}
	case VerifyRequested:
		if s.InFlight != "" || e.ID == "" {
			return s
		}
		s.InFlight = e.ID
	case VerifySucceeded:
		if e.ID == "" || e.ID != s.InFlight {
			return s
		}
		s.InFlight = ""
		s.Outcome = Outcome{Kind: OutcomeScored, RequestID: e.ID, Result: e.Result}
	case VerifyFailed:
		if e.ID == "" || e.ID != s.InFlight {
			return s
		}
		s.InFlight = ""
		s.Outcome = Outcome{Kind: OutcomeFailed, RequestID: e.ID, Err: e.Err}
	case Cleared:
		s.Live, s.Editable = "", ""
		s.Listening = false
		s.InFlight = ""
		s.Outcome = Outcome{}
	}
	return s
}

// resync makes the editable buffer follow speech, discarding manual edits.
func (s *State) resync(transcript string) {
	s.Live = truncateRunes(transcript, s.MaxRunes)
	s.Editable = s.Live
}

func truncateRunes(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}
