package service

import (
	"context"
	"encoding/base64"
	"log"
	"sync"
	"time"
)

// Synthesizer turns text into audio bytes
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

const synthesizeTimeout = 30 * time.Second

// SpeechService is the fire-and-forget TTS side channel. Speak is spawned,
// never awaited, and never fails the caller; a session that loses audio
// simply continues in silent mode. One playback is active per session at a
// time, identified by a monotonic token so that a playback-ended signal
// from a superseded playback cannot clear the speaking flag of a newer one.
type SpeechService struct {
	synth       Synthesizer
	broadcaster Broadcaster

	mu       sync.Mutex
	seq      uint64
	speaking map[string]uint64 // sessionID -> active playback token
}

// NewSpeechService creates a speech service over the given synthesizer.
func NewSpeechService(synth Synthesizer) *SpeechService {
	return &SpeechService{
		synth:    synth,
		speaking: make(map[string]uint64),
	}
}

// SetBroadcaster sets the event push channel for synthesized audio.
func (s *SpeechService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Speak synthesizes text for a session and pushes the audio to its viewer.
// Detached: returns immediately, swallows every failure.
func (s *SpeechService) Speak(sessionID, text string) {
	if s.synth == nil || text == "" {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[speech] recovered from panic for %s: %v", sessionID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), synthesizeTimeout)
		defer cancel()

		audio, err := s.synth.Synthesize(ctx, text)
		if err != nil {
			log.Printf("[speech] synthesis failed for %s: %v", sessionID, err)
			return
		}

		s.mu.Lock()
		s.seq++
		token := s.seq
		s.speaking[sessionID] = token
		s.mu.Unlock()

		if s.broadcaster != nil {
			s.broadcaster.BroadcastToSession(sessionID, "speak", map[string]interface{}{
				"audio": base64.StdEncoding.EncodeToString(audio),
				"token": token,
			})
		}
	}()
}

// PlaybackEnded clears the speaking flag when the active playback finishes.
// Stale tokens from superseded playbacks are ignored.
func (s *SpeechService) PlaybackEnded(sessionID string, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.speaking[sessionID] == token {
		delete(s.speaking, sessionID)
	}
}

// IsSpeaking reports whether a playback is active for the session.
func (s *SpeechService) IsSpeaking(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.speaking[sessionID]
	return ok
}

// Forget drops speaking state for a closed session.
func (s *SpeechService) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.speaking, sessionID)
}
