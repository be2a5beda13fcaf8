package model

import (
	"errors"
	"testing"
)

func TestTransitionTable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		phase Phase
		event Event
		want  Phase
	}{
		{PhaseLoading, EventSnapshotMissing, PhaseIntro},
		{PhaseLoading, EventSnapshotFound, PhaseResuming},
		{PhaseResuming, EventResumeContinue, PhaseConversation},
		{PhaseResuming, EventResumeRestart, PhaseIntro},
		{PhaseIntro, EventStartOK, PhaseConversation},
		{PhaseIntro, EventStartFailed, PhaseIntro},
		{PhaseConversation, EventAnswerNext, PhaseConversation},
		{PhaseConversation, EventAnswerFailed, PhaseConversation},
		{PhaseConversation, EventAnswerComplete, PhaseComplete},
	}

	for _, tc := range cases {
		got, err := Transition(tc.phase, tc.event)
		if err != nil {
			t.Fatalf("Transition(%s, %s): unexpected error %v", tc.phase, tc.event, err)
		}
		if got != tc.want {
			t.Fatalf("Transition(%s, %s) = %s, want %s", tc.phase, tc.event, got, tc.want)
		}
	}
}

func TestTransitionRejectsIllegalEvents(t *testing.T) {
	t.Parallel()
	cases := []struct {
		phase Phase
		event Event
	}{
		{PhaseLoading, EventStartOK},
		{PhaseLoading, EventAnswerNext},
		{PhaseIntro, EventSnapshotFound},
		{PhaseIntro, EventAnswerComplete},
		{PhaseResuming, EventStartOK},
		{PhaseConversation, EventResumeContinue},
		{PhaseComplete, EventAnswerNext},
		{PhaseComplete, EventStartOK},
	}

	for _, tc := range cases {
		got, err := Transition(tc.phase, tc.event)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("Transition(%s, %s): expected ErrInvalidTransition, got %v", tc.phase, tc.event, err)
		}
		if got != tc.phase {
			t.Fatalf("Transition(%s, %s): phase changed to %s on illegal event", tc.phase, tc.event, got)
		}
	}
}

func TestSpokenTextIncludesAcknowledgment(t *testing.T) {
	t.Parallel()
	q := &Question{Text: "How big is your team?", Acknowledgment: "Got it."}
	if got := q.SpokenText(); got != "Got it. How big is your team?" {
		t.Fatalf("unexpected spoken text: %q", got)
	}

	bare := &Question{Text: "How big is your team?"}
	if got := bare.SpokenText(); got != "How big is your team?" {
		t.Fatalf("unexpected spoken text without acknowledgment: %q", got)
	}
}
