package model

import (
	"errors"
	"fmt"
)

// Phase is the lifecycle phase of an assessment session
type Phase string

const (
	PhaseLoading      Phase = "loading"
	PhaseIntro        Phase = "intro"
	PhaseResuming     Phase = "resuming"
	PhaseConversation Phase = "conversation"
	PhaseComplete     Phase = "complete"
)

// Event drives phase transitions
type Event string

const (
	EventSnapshotMissing Event = "snapshot_missing" // mount found no usable snapshot
	EventSnapshotFound   Event = "snapshot_found"   // mount found a resumable snapshot
	EventResumeContinue  Event = "resume_continue"  // user chose to continue the saved session
	EventResumeRestart   Event = "resume_restart"   // user chose to start over
	EventStartOK         Event = "start_ok"         // first question fetched
	EventStartFailed     Event = "start_failed"     // start call failed, stay on intro
	EventAnswerNext      Event = "answer_next"      // answer accepted, more questions remain
	EventAnswerComplete  Event = "answer_complete"  // answer accepted, assessment done
	EventAnswerFailed    Event = "answer_failed"    // answer call failed, stay in place
)

var ErrInvalidTransition = errors.New("invalid phase transition")

// Transition is the single pure transition function over phases.
// Illegal combinations return ErrInvalidTransition and leave the caller's
// phase untouched.
func Transition(phase Phase, event Event) (Phase, error) {
	switch phase {
	case PhaseLoading:
		switch event {
		case EventSnapshotMissing:
			return PhaseIntro, nil
		case EventSnapshotFound:
			return PhaseResuming, nil
		}
	case PhaseResuming:
		switch event {
		case EventResumeContinue:
			return PhaseConversation, nil
		case EventResumeRestart:
			return PhaseIntro, nil
		}
	case PhaseIntro:
		switch event {
		case EventStartOK:
			return PhaseConversation, nil
		case EventStartFailed:
			return PhaseIntro, nil
		}
	case PhaseConversation:
		switch event {
		case EventAnswerNext, EventAnswerFailed:
			return PhaseConversation, nil
		case EventAnswerComplete:
			return PhaseComplete, nil
		}
	}
	return phase, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, phase)
}
