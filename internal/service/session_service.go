package service

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"aireadiness/internal/cache"
	"aireadiness/internal/config"
	"aireadiness/internal/model"
	"aireadiness/internal/quiz"
	"aireadiness/internal/repository"
)

// navigateDelay is how long after completion the navigate push is held
// back, so the completion message and its spoken audio can be perceived.
const navigateDelay = 2500 * time.Millisecond

var (
	ErrSessionNotFound    = errors.New("session not active")
	ErrSubmissionInFlight = errors.New("an answer is already being processed")
	ErrNothingToSpeak     = errors.New("no current question to speak")
)

// UpstreamClient is the slice of the engine API the controller drives.
type UpstreamClient interface {
	Start(ctx context.Context, sessionID string) (*quiz.StartResponse, error)
	Answer(ctx context.Context, req *quiz.AnswerRequest) (*quiz.AnswerResponse, error)
}

// sessionState is the live controller state for one session. All fields
// are guarded by mu; upstream calls are made with mu released and the
// processing flag set, so at most one submission is in flight per session.
type sessionState struct {
	mu          sync.Mutex
	phase       model.Phase
	current     *model.Question
	confidence  *model.Confidence
	answered    int
	companyName string
	offered     *model.SessionSnapshot // snapshot offered at the resume prompt
	processing  bool
}

// AnswerSubmission is one answer turn from the viewer.
type AnswerSubmission struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	AnswerType string `json:"answer_type"`
}

// SessionView is the controller state returned to the viewer after every
// operation.
type SessionView struct {
	SessionID         string            `json:"sessionId"`
	Phase             model.Phase       `json:"phase"`
	Message           string            `json:"message,omitempty"`
	Question          *model.Question   `json:"question,omitempty"`
	Confidence        *model.Confidence `json:"confidence,omitempty"`
	AnsweredQuestions int               `json:"answeredQuestions"`
	CompanyName       string            `json:"companyName,omitempty"`
	Speaking          bool              `json:"speaking"`
	AnalysisHint      string            `json:"analysisHint,omitempty"`
	Redirect          string            `json:"redirect,omitempty"`
	RedirectDelayMS   int               `json:"redirectDelayMs,omitempty"`
	ResultToken       string            `json:"resultToken,omitempty"`
}

// SessionService is the resumable session controller: it runs the phase
// state machine per session, persists snapshots for resume, and drives
// the upstream engine through the retry-wrapped client.
type SessionService struct {
	upstream  UpstreamClient
	snapshots cache.SnapshotCache
	sessions  repository.SessionRepo
	speech    *SpeechService
	tokens    *TokenService
	sched     *Scheduler
	deck      *config.CopyDeck

	broadcaster   Broadcaster
	resultsURL    string
	navigateDelay time.Duration

	mu     sync.RWMutex
	active map[string]*sessionState
}

// NewSessionService creates the session controller.
func NewSessionService(
	upstream UpstreamClient,
	snapshots cache.SnapshotCache,
	sessions repository.SessionRepo,
	speech *SpeechService,
	tokens *TokenService,
	sched *Scheduler,
	deck *config.CopyDeck,
	resultsURL string,
) *SessionService {
	return &SessionService{
		upstream:      upstream,
		snapshots:     snapshots,
		sessions:      sessions,
		speech:        speech,
		tokens:        tokens,
		sched:         sched,
		deck:          deck,
		resultsURL:    resultsURL,
		navigateDelay: navigateDelay,
		active:        make(map[string]*sessionState),
	}
}

// SetBroadcaster sets the event push channel for session updates.
func (s *SessionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *SessionService) getState(sessionID string) (*sessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.active[sessionID]
	return st, ok
}

func (s *SessionService) ensureState(sessionID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.active[sessionID]; ok {
		return st
	}
	st := &sessionState{phase: model.PhaseLoading}
	s.active[sessionID] = st
	return st
}

// Mount resolves the initial phase for a session: resuming when a valid
// snapshot exists, intro otherwise. Idempotent once past loading.
func (s *SessionService) Mount(ctx context.Context, sessionID string) (*SessionView, error) {
	st := s.ensureState(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.phase == model.PhaseLoading {
		if err := s.mountLocked(ctx, sessionID, st); err != nil {
			return nil, err
		}
	}
	return s.viewLocked(sessionID, st), nil
}

// mountLocked runs the snapshot check that moves a session out of loading.
// Storage errors count as "no snapshot"; resume is a convenience.
func (s *SessionService) mountLocked(ctx context.Context, sessionID string, st *sessionState) error {
	snapshot, err := s.snapshots.Load(ctx, sessionID)
	if err != nil {
		log.Printf("[session] snapshot load failed for %s: %v", sessionID, err)
		snapshot = nil
	}

	event := model.EventSnapshotMissing
	if snapshot != nil {
		event = model.EventSnapshotFound
	}
	next, err := model.Transition(st.phase, event)
	if err != nil {
		return err
	}
	st.phase = next
	st.offered = snapshot
	return nil
}

// Resume applies the user's choice at the resume prompt: continue restores
// the offered snapshot into live state, start over discards it.
func (s *SessionService) Resume(ctx context.Context, sessionID string, cont bool) (*SessionView, error) {
	st, ok := s.getState(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	event := model.EventResumeRestart
	if cont {
		event = model.EventResumeContinue
	}
	next, err := model.Transition(st.phase, event)
	if err != nil {
		return nil, err
	}

	if cont {
		snapshot := st.offered
		if snapshot == nil {
			return nil, ErrSessionNotFound
		}
		st.phase = next
		st.current = snapshot.CurrentQuestion
		st.confidence = snapshot.Confidence
		st.answered = snapshot.AnsweredQuestions
		st.companyName = snapshot.CompanyName
		st.offered = nil

		s.persistSnapshot(ctx, sessionID, st)
		if st.current != nil {
			s.speech.Speak(sessionID, st.current.SpokenText())
			s.push(sessionID, "next_question", st.current)
		}
	} else {
		st.phase = next
		st.offered = nil
		s.clearSnapshot(ctx, sessionID)
	}

	return s.viewLocked(sessionID, st), nil
}

// Start fetches the first question and enters the conversation phase. On
// failure the session stays on intro; the viewer retries manually.
func (s *SessionService) Start(ctx context.Context, sessionID string) (*SessionView, error) {
	st := s.ensureState(sessionID)
	st.mu.Lock()

	if st.phase == model.PhaseLoading {
		if err := s.mountLocked(ctx, sessionID, st); err != nil {
			st.mu.Unlock()
			return nil, err
		}
	}
	if _, err := model.Transition(st.phase, model.EventStartOK); err != nil {
		st.mu.Unlock()
		return nil, err
	}
	if st.processing {
		st.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	st.processing = true
	st.mu.Unlock()

	resp, err := s.upstream.Start(ctx, sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.processing = false
	if err != nil {
		st.phase, _ = model.Transition(st.phase, model.EventStartFailed)
		return nil, err
	}

	st.phase, _ = model.Transition(st.phase, model.EventStartOK)
	st.current = resp.Question
	st.confidence = resp.Confidence
	st.companyName = resp.CompanyName
	st.answered = 0

	s.persistSnapshot(ctx, sessionID, st)
	s.recordStart(ctx, sessionID, resp)

	if st.current != nil {
		s.speech.Speak(sessionID, st.current.SpokenText())
		s.push(sessionID, "next_question", st.current)
	}

	return s.viewLocked(sessionID, st), nil
}

// SubmitAnswer forwards one answer turn to the engine. At most one
// submission is in flight per session; concurrent calls are rejected
// without touching the network.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID string, sub *AnswerSubmission) (*SessionView, error) {
	st, ok := s.getState(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	st.mu.Lock()
	if _, err := model.Transition(st.phase, model.EventAnswerNext); err != nil {
		st.mu.Unlock()
		return nil, err
	}
	if st.processing {
		st.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	st.processing = true
	question := st.current
	st.mu.Unlock()

	attemptID := uuid.New().String()
	resp, err := s.upstream.Answer(ctx, &quiz.AnswerRequest{
		SessionID:  sessionID,
		QuestionID: sub.QuestionID,
		Answer:     sub.Answer,
		AnswerType: sub.AnswerType,
	})

	st.mu.Lock()
	defer st.mu.Unlock()
	st.processing = false
	if err != nil {
		st.phase, _ = model.Transition(st.phase, model.EventAnswerFailed)
		return nil, err
	}

	answered := &model.AnsweredQuestion{
		AttemptID:  attemptID,
		QuestionID: sub.QuestionID,
		Answer:     sub.Answer,
		AnswerType: sub.AnswerType,
		AnsweredAt: time.Now(),
	}
	if question != nil {
		answered.QuestionText = question.Text
	}
	s.appendAnswer(ctx, sessionID, answered)

	if resp.Complete {
		return s.completeLocked(ctx, sessionID, st, resp)
	}

	st.phase, _ = model.Transition(st.phase, model.EventAnswerNext)
	st.current = resp.Question
	if resp.Confidence != nil {
		st.confidence = resp.Confidence
	}
	st.answered++

	s.persistSnapshot(ctx, sessionID, st)
	if st.current != nil {
		s.speech.Speak(sessionID, st.current.SpokenText())
		s.push(sessionID, "next_question", st.current)
	}

	view := s.viewLocked(sessionID, st)
	view.AnalysisHint = resp.AnalysisHint
	return view, nil
}

// completeLocked finishes the session: clears the snapshot, records the
// completion, and schedules the navigate push after the fixed delay.
func (s *SessionService) completeLocked(ctx context.Context, sessionID string, st *sessionState, resp *quiz.AnswerResponse) (*SessionView, error) {
	next, err := model.Transition(st.phase, model.EventAnswerComplete)
	if err != nil {
		return nil, err
	}
	st.phase = next
	st.current = nil
	if resp.Confidence != nil {
		st.confidence = resp.Confidence
	}
	st.answered++

	s.clearSnapshot(ctx, sessionID)
	s.markStatus(ctx, sessionID, model.SessionCompleted)

	token, err := s.tokens.MintResultToken(sessionID, false)
	if err != nil {
		log.Printf("[session] result token mint failed for %s: %v", sessionID, err)
		token = ""
	}

	redirect := resp.Redirect
	if redirect == "" {
		redirect = s.resultsURL + "?session_id=" + url.QueryEscape(sessionID)
	}

	s.speech.Speak(sessionID, s.deck.Completion)
	s.sched.Schedule(sessionID, s.navigateDelay, func() {
		s.push(sessionID, "navigate", map[string]interface{}{"redirect": redirect})
	})

	view := s.viewLocked(sessionID, st)
	view.Message = s.deck.Completion
	view.AnalysisHint = resp.AnalysisHint
	view.Redirect = redirect
	view.RedirectDelayMS = int(s.navigateDelay / time.Millisecond)
	view.ResultToken = token
	return view, nil
}

// Skip is the hard bypass to results: the snapshot is written once more
// with the partial flag, the partial marker is recorded, and the
// controller exits entirely. Not a phase transition.
func (s *SessionService) Skip(ctx context.Context, sessionID string) (*SessionView, error) {
	st, ok := s.getState(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	st.mu.Lock()
	snapshot := s.snapshotFromState(sessionID, st)
	snapshot.Partial = true
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		log.Printf("[session] partial snapshot save failed for %s: %v", sessionID, err)
	}
	phase := st.phase
	answered := st.answered
	companyName := st.companyName
	st.mu.Unlock()

	s.markStatus(ctx, sessionID, model.SessionPartial)

	token, err := s.tokens.MintResultToken(sessionID, true)
	if err != nil {
		log.Printf("[session] result token mint failed for %s: %v", sessionID, err)
		token = ""
	}
	redirect := s.resultsURL + "?session_id=" + url.QueryEscape(sessionID) + "&partial=1"

	s.Close(sessionID)

	return &SessionView{
		SessionID:         sessionID,
		Phase:             phase,
		AnsweredQuestions: answered,
		CompanyName:       companyName,
		Redirect:          redirect,
		ResultToken:       token,
	}, nil
}

// ReSpeak replays the current question through the TTS side channel. This
// is the manual retry path for failed speech; it never resubmits answers.
func (s *SessionService) ReSpeak(sessionID string) error {
	st, ok := s.getState(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	st.mu.Lock()
	current := st.current
	st.mu.Unlock()

	if current == nil {
		return ErrNothingToSpeak
	}
	s.speech.Speak(sessionID, current.SpokenText())
	return nil
}

// PlaybackEnded reports that the viewer finished playing an audio payload.
func (s *SessionService) PlaybackEnded(sessionID string, token uint64) {
	s.speech.PlaybackEnded(sessionID, token)
}

// Close tears a session's live state down, cancelling any pending
// navigate push.
func (s *SessionService) Close(sessionID string) {
	s.sched.Cancel(sessionID)
	s.speech.Forget(sessionID)

	s.mu.Lock()
	delete(s.active, sessionID)
	s.mu.Unlock()
}

// Shutdown cancels all pending scheduled work.
func (s *SessionService) Shutdown() {
	s.sched.CancelAll()
}

func (s *SessionService) snapshotFromState(sessionID string, st *sessionState) *model.SessionSnapshot {
	return &model.SessionSnapshot{
		SessionID:         sessionID,
		Phase:             st.phase,
		CurrentQuestion:   st.current,
		Confidence:        st.confidence,
		AnsweredQuestions: st.answered,
		CompanyName:       st.companyName,
		SavedAt:           time.Now(),
	}
}

// persistSnapshot writes the full snapshot, best-effort. Failures are
// logged and never surfaced; losing resume is acceptable, blocking the
// interview is not.
func (s *SessionService) persistSnapshot(ctx context.Context, sessionID string, st *sessionState) {
	if err := s.snapshots.Save(ctx, s.snapshotFromState(sessionID, st)); err != nil {
		log.Printf("[session] snapshot save failed for %s: %v", sessionID, err)
	}
}

func (s *SessionService) clearSnapshot(ctx context.Context, sessionID string) {
	if err := s.snapshots.Clear(ctx, sessionID); err != nil {
		log.Printf("[session] snapshot clear failed for %s: %v", sessionID, err)
	}
}

func (s *SessionService) recordStart(ctx context.Context, sessionID string, resp *quiz.StartResponse) {
	if s.sessions == nil {
		return
	}
	record := &model.SessionRecord{
		SessionID:   sessionID,
		CompanyName: resp.CompanyName,
		Industry:    resp.Industry,
		Status:      model.SessionStarted,
		StartedAt:   time.Now(),
	}
	if err := s.sessions.Upsert(ctx, record); err != nil {
		log.Printf("[session] record upsert failed for %s: %v", sessionID, err)
	}
}

func (s *SessionService) appendAnswer(ctx context.Context, sessionID string, answered *model.AnsweredQuestion) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.AppendAnswer(ctx, sessionID, answered); err != nil {
		log.Printf("[session] answer record failed for %s: %v", sessionID, err)
	}
}

func (s *SessionService) markStatus(ctx context.Context, sessionID string, status model.SessionStatus) {
	if s.sessions == nil {
		return
	}
	var err error
	if status == model.SessionCompleted {
		err = s.sessions.MarkCompleted(ctx, sessionID)
	} else {
		err = s.sessions.MarkPartial(ctx, sessionID)
	}
	if err != nil {
		log.Printf("[session] status update failed for %s: %v", sessionID, err)
	}
}

func (s *SessionService) push(sessionID, msgType string, payload interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToSession(sessionID, msgType, payload)
	}
}

func (s *SessionService) viewLocked(sessionID string, st *sessionState) *SessionView {
	view := &SessionView{
		SessionID:         sessionID,
		Phase:             st.phase,
		Question:          st.current,
		Confidence:        st.confidence,
		AnsweredQuestions: st.answered,
		CompanyName:       st.companyName,
		Speaking:          s.speech.IsSpeaking(sessionID),
	}

	switch st.phase {
	case model.PhaseIntro:
		view.Message = s.deck.Intro
	case model.PhaseResuming:
		view.Message = s.deck.ResumePrompt
		if st.offered != nil {
			view.Question = st.offered.CurrentQuestion
			view.Confidence = st.offered.Confidence
			view.AnsweredQuestions = st.offered.AnsweredQuestions
			view.CompanyName = st.offered.CompanyName
		}
	}

	return view
}
