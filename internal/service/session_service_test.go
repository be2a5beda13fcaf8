package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"aireadiness/internal/config"
	"aireadiness/internal/model"
	"aireadiness/internal/quiz"
)

// fakeUpstream scripts the engine's behavior per test.
type fakeUpstream struct {
	mu          sync.Mutex
	startResp   *quiz.StartResponse
	startErr    error
	answerResp  *quiz.AnswerResponse
	answerErr   error
	answerCalls int
	block       chan struct{} // when set, Answer waits until closed
}

func (f *fakeUpstream) Start(_ context.Context, _ string) (*quiz.StartResponse, error) {
	return f.startResp, f.startErr
}

func (f *fakeUpstream) Answer(_ context.Context, _ *quiz.AnswerRequest) (*quiz.AnswerResponse, error) {
	f.mu.Lock()
	f.answerCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.answerResp, f.answerErr
}

func (f *fakeUpstream) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answerCalls
}

// fakeSnapshots records saves and serves a scripted snapshot on load.
type fakeSnapshots struct {
	mu      sync.Mutex
	stored  *model.SessionSnapshot
	saves   []*model.SessionSnapshot
	cleared int
	loadErr error
}

func (f *fakeSnapshots) Save(_ context.Context, snapshot *model.SessionSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *snapshot
	f.saves = append(f.saves, &copied)
	f.stored = &copied
	return nil
}

func (f *fakeSnapshots) Load(_ context.Context, _ string) (*model.SessionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, f.loadErr
}

func (f *fakeSnapshots) Clear(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = nil
	f.cleared++
	return nil
}

func (f *fakeSnapshots) lastSave() *model.SessionSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return nil
	}
	return f.saves[len(f.saves)-1]
}

func question(id string) *model.Question {
	return &model.Question{
		ID:           id,
		Text:         "Question " + id,
		QuestionType: model.QuestionTypeStructured,
		InputType:    model.InputText,
	}
}

func newTestSessionService(upstream UpstreamClient, snapshots *fakeSnapshots) (*SessionService, *chanBroadcaster) {
	b := newChanBroadcaster()
	svc := NewSessionService(
		upstream,
		snapshots,
		nil, // no durable record store in unit tests
		NewSpeechService(nil),
		NewTokenService(),
		NewScheduler(),
		config.DefaultCopyDeck(),
		"/results",
	)
	svc.SetBroadcaster(b)
	return svc, b
}

func TestMountFreshSessionLandsOnIntro(t *testing.T) {
	t.Parallel()
	svc, _ := newTestSessionService(&fakeUpstream{}, &fakeSnapshots{})

	view, err := svc.Mount(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if view.Phase != model.PhaseIntro {
		t.Fatalf("expected intro, got %s", view.Phase)
	}
	if view.Message != config.DefaultCopyDeck().Intro {
		t.Fatalf("expected intro copy, got %q", view.Message)
	}
}

func TestMountWithSnapshotOffersResume(t *testing.T) {
	t.Parallel()
	snapshots := &fakeSnapshots{stored: &model.SessionSnapshot{
		SessionID:         "s-1",
		Phase:             model.PhaseConversation,
		CurrentQuestion:   question("q3"),
		AnsweredQuestions: 2,
		CompanyName:       "Acme",
		SavedAt:           time.Now().Add(-5 * time.Minute),
	}}
	svc, _ := newTestSessionService(&fakeUpstream{}, snapshots)

	view, err := svc.Mount(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if view.Phase != model.PhaseResuming {
		t.Fatalf("expected resuming, got %s", view.Phase)
	}
	if view.Question == nil || view.Question.ID != "q3" {
		t.Fatalf("resume prompt should show the saved question, got %+v", view.Question)
	}
	if view.AnsweredQuestions != 2 || view.CompanyName != "Acme" {
		t.Fatalf("resume prompt should show saved progress, got %+v", view)
	}
}

func TestMountTreatsLoadErrorAsMissing(t *testing.T) {
	t.Parallel()
	snapshots := &fakeSnapshots{loadErr: errors.New("redis down")}
	svc, _ := newTestSessionService(&fakeUpstream{}, snapshots)

	view, err := svc.Mount(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("mount must not fail on storage errors: %v", err)
	}
	if view.Phase != model.PhaseIntro {
		t.Fatalf("expected intro on storage error, got %s", view.Phase)
	}
}

func TestResumeContinueRestoresSnapshotExactly(t *testing.T) {
	t.Parallel()
	saved := &model.SessionSnapshot{
		SessionID:         "s-1",
		Phase:             model.PhaseConversation,
		CurrentQuestion:   question("q3"),
		Confidence:        &model.Confidence{QuestionsAsked: 2},
		AnsweredQuestions: 2,
		CompanyName:       "Acme",
		SavedAt:           time.Now().Add(-5 * time.Minute),
	}
	snapshots := &fakeSnapshots{stored: saved}
	svc, b := newTestSessionService(&fakeUpstream{}, snapshots)
	ctx := context.Background()

	if _, err := svc.Mount(ctx, "s-1"); err != nil {
		t.Fatalf("mount: %v", err)
	}
	view, err := svc.Resume(ctx, "s-1", true)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if view.Phase != model.PhaseConversation {
		t.Fatalf("expected conversation after continue, got %s", view.Phase)
	}
	if view.Question.ID != "q3" || view.AnsweredQuestions != 2 || view.CompanyName != "Acme" {
		t.Fatalf("restored state differs from snapshot: %+v", view)
	}
	if view.Confidence == nil || view.Confidence.QuestionsAsked != 2 {
		t.Fatalf("confidence not restored: %+v", view.Confidence)
	}

	// The saved question is pushed again to the live channel
	ev := b.wait(t, "next_question")
	data, _ := json.Marshal(ev.payload)
	var q model.Question
	json.Unmarshal(data, &q)
	if q.ID != "q3" {
		t.Fatalf("pushed wrong question after resume: %q", q.ID)
	}
}

func TestResumeRestartDiscardsSnapshot(t *testing.T) {
	t.Parallel()
	snapshots := &fakeSnapshots{stored: &model.SessionSnapshot{
		SessionID: "s-1",
		Phase:     model.PhaseConversation,
		SavedAt:   time.Now(),
	}}
	svc, _ := newTestSessionService(&fakeUpstream{}, snapshots)
	ctx := context.Background()

	if _, err := svc.Mount(ctx, "s-1"); err != nil {
		t.Fatalf("mount: %v", err)
	}
	view, err := svc.Resume(ctx, "s-1", false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if view.Phase != model.PhaseIntro {
		t.Fatalf("expected intro after restart, got %s", view.Phase)
	}
	if snapshots.stored != nil {
		t.Fatal("restart must clear the stored snapshot")
	}
}

func TestResumeRejectedOutsideResumingPhase(t *testing.T) {
	t.Parallel()
	svc, _ := newTestSessionService(&fakeUpstream{}, &fakeSnapshots{})
	ctx := context.Background()

	if _, err := svc.Mount(ctx, "s-1"); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if _, err := svc.Resume(ctx, "s-1", true); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on intro, got %v", err)
	}
}

func TestStartEntersConversationAndPersists(t *testing.T) {
	t.Parallel()
	upstream := &fakeUpstream{startResp: &quiz.StartResponse{
		Question:    question("q1"),
		Confidence:  &model.Confidence{QuestionsAsked: 0},
		CompanyName: "Acme",
	}}
	snapshots := &fakeSnapshots{}
	svc, b := newTestSessionService(upstream, snapshots)

	view, err := svc.Start(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Phase != model.PhaseConversation {
		t.Fatalf("expected conversation, got %s", view.Phase)
	}
	if view.Question.ID != "q1" || view.CompanyName != "Acme" {
		t.Fatalf("unexpected view after start: %+v", view)
	}

	saved := snapshots.lastSave()
	if saved == nil {
		t.Fatal("start must persist a snapshot")
	}
	if saved.Phase != model.PhaseConversation || saved.CurrentQuestion.ID != "q1" {
		t.Fatalf("persisted snapshot wrong: %+v", saved)
	}
	if saved.SavedAt.IsZero() {
		t.Fatal("snapshot missing savedAt")
	}

	b.wait(t, "next_question")
}

func TestStartFailureStaysOnIntro(t *testing.T) {
	t.Parallel()
	upstream := &fakeUpstream{startErr: errors.New("engine down")}
	snapshots := &fakeSnapshots{}
	svc, _ := newTestSessionService(upstream, snapshots)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "s-1"); err == nil {
		t.Fatal("expected start error")
	}
	view, err := svc.Mount(ctx, "s-1")
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if view.Phase != model.PhaseIntro {
		t.Fatalf("failed start must stay on intro, got %s", view.Phase)
	}
	if len(snapshots.saves) != 0 {
		t.Fatal("failed start must not persist a snapshot")
	}

	// The session is still startable
	upstream.startErr = nil
	upstream.startResp = &quiz.StartResponse{Question: question("q1")}
	if _, err := svc.Start(ctx, "s-1"); err != nil {
		t.Fatalf("retry start: %v", err)
	}
}

func TestSubmitAnswerAdvancesConversation(t *testing.T) {
	t.Parallel()
	upstream := &fakeUpstream{
		startResp: &quiz.StartResponse{Question: question("q1")},
		answerResp: &quiz.AnswerResponse{
			Question:     question("q2"),
			Confidence:   &model.Confidence{QuestionsAsked: 1},
			AnalysisHint: "interesting",
		},
	}
	snapshots := &fakeSnapshots{}
	svc, _ := newTestSessionService(upstream, snapshots)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "s-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	view, err := svc.SubmitAnswer(ctx, "s-1", &AnswerSubmission{QuestionID: "q1", Answer: "42", AnswerType: "number"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Phase != model.PhaseConversation {
		t.Fatalf("expected conversation, got %s", view.Phase)
	}
	if view.Question.ID != "q2" {
		t.Fatalf("expected next question q2, got %+v", view.Question)
	}
	if view.AnsweredQuestions != 1 {
		t.Fatalf("expected answered count 1, got %d", view.AnsweredQuestions)
	}
	if view.AnalysisHint != "interesting" {
		t.Fatalf("analysis hint lost: %q", view.AnalysisHint)
	}

	saved := snapshots.lastSave()
	if saved.Phase != model.PhaseConversation || saved.AnsweredQuestions != 1 {
		t.Fatalf("persisted snapshot wrong: %+v", saved)
	}
}

func TestSubmitAnswerFailureKeepsStateRetryable(t *testing.T) {
	t.Parallel()
	upstream := &fakeUpstream{
		startResp: &quiz.StartResponse{Question: question("q1")},
		answerErr: errors.New("engine down"),
	}
	svc, _ := newTestSessionService(upstream, &fakeSnapshots{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, "s-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, "s-1", &AnswerSubmission{QuestionID: "q1", Answer: "x"}); err == nil {
		t.Fatal("expected submit error")
	}

	// Still in conversation; the same answer can be resubmitted
	upstream.answerErr = nil
	upstream.answerResp = &quiz.AnswerResponse{Question: question("q2")}
	view, err := svc.SubmitAnswer(ctx, "s-1", &AnswerSubmission{QuestionID: "q1", Answer: "x"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if view.Question.ID != "q2" {
		t.Fatalf("resubmit did not advance: %+v", view.Question)
	}
}

func TestSubmitAnswerRejectsConcurrentSubmission(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	upstream := &fakeUpstream{
		startResp:  &quiz.StartResponse{Question: question("q1")},
		answerResp: &quiz.AnswerResponse{Question: question("q2")},
		block:      block,
	}
	svc, _ := newTestSessionService(upstream, &fakeSnapshots{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, "s-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.SubmitAnswer(ctx, "s-1", &AnswerSubmission{QuestionID: "q1", Answer: "a"})
		firstDone <- err
	}()

	// Wait for the first submission to reach the engine
	deadline := time.After(time.Second)
	for upstream.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("first submission never reached the engine")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := svc.SubmitAnswer(ctx, "s-1", &AnswerSubmission{QuestionID: "q1", Answer: "b"}); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
	if upstream.calls() != 1 {
		t.Fatalf("rejected submission must not reach the engine, got %d calls", upstream.calls())
	}

	close(block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first submission: %v", err)
	}
}

func TestCompletionClearsSnapshotAndSchedulesNavigate(t *testing.T) {
	t.Parallel()
	upstream := &fakeUpstream{
		startResp: &quiz.StartResponse{Question: question("q1")},
		answerResp: &quiz.AnswerResponse{
			Complete: true,
			Redirect: "https://results.example/report/s-1",
		},
	}
	snapshots := &fakeSnapshots{}
	svc, b := newTestSessionService(upstream, snapshots)
	svc.navigateDelay = 10 * time.Millisecond
	ctx := context.Background()

	if _, err := svc.Start(ctx, "s-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	view, err := svc.SubmitAnswer(ctx, "s-1", &AnswerSubmission{QuestionID: "q1", Answer: "done"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Phase != model.PhaseComplete {
		t.Fatalf("expected complete, got %s", view.Phase)
	}
	if view.Redirect != "https://results.example/report/s-1" {
		t.Fatalf("navigation must target the exact engine URL, got %q", view.Redirect)
	}
	if view.RedirectDelayMS != 10 {
		t.Fatalf("unexpected redirect delay %d", view.RedirectDelayMS)
	}
	if view.ResultToken == "" {
		t.Fatal("completion must mint a result token")
	}
	if snapshots.cleared == 0 {
		t.Fatal("completion must clear the snapshot")
	}

	ev := b.wait(t, "navigate")
	data, _ := json.Marshal(ev.payload)
	var nav struct {
		Redirect string `json:"redirect"`
	}
	json.Unmarshal(data, &nav)
	if nav.Redirect != "https://results.example/report/s-1" {
		t.Fatalf("navigate push targets wrong URL %q", nav.Redirect)
	}
}

func TestCloseCancelsPendingNavigate(t *testing.T) {
	t.Parallel()
	upstream := &fakeUpstream{
		startResp:  &quiz.StartResponse{Question: question("q1")},
		answerResp: &quiz.AnswerResponse{Complete: true},
	}
	svc, b := newTestSessionService(upstream, &fakeSnapshots{})
	svc.navigateDelay = 30 * time.Millisecond
	ctx := context.Background()

	if _, err := svc.Start(ctx, "s-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, "s-1", &AnswerSubmission{QuestionID: "q1", Answer: "done"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	svc.Close("s-1")

	select {
	case ev := <-b.events:
		if ev.msgType == "navigate" {
			t.Fatal("navigate fired after session close")
		}
	case <-time.After(60 * time.Millisecond):
	}
}

func TestSkipWritesPartialSnapshotAndTearsDown(t *testing.T) {
	t.Parallel()
	upstream := &fakeUpstream{startResp: &quiz.StartResponse{Question: question("q1"), CompanyName: "Acme"}}
	snapshots := &fakeSnapshots{}
	svc, _ := newTestSessionService(upstream, snapshots)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "s-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	view, err := svc.Skip(ctx, "s-1")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if view.Redirect != "/results?session_id=s-1&partial=1" {
		t.Fatalf("unexpected skip redirect %q", view.Redirect)
	}
	if view.ResultToken == "" {
		t.Fatal("skip must mint a result token")
	}

	saved := snapshots.lastSave()
	if saved == nil || !saved.Partial {
		t.Fatalf("skip must persist a partial-flagged snapshot, got %+v", saved)
	}

	// Session state is gone; further operations see no active session
	if _, err := svc.SubmitAnswer(ctx, "s-1", &AnswerSubmission{QuestionID: "q1", Answer: "x"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after skip, got %v", err)
	}
}

func TestReSpeakRequiresCurrentQuestion(t *testing.T) {
	t.Parallel()
	svc, _ := newTestSessionService(&fakeUpstream{}, &fakeSnapshots{})
	ctx := context.Background()

	if _, err := svc.Mount(ctx, "s-1"); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := svc.ReSpeak("s-1"); !errors.Is(err, ErrNothingToSpeak) {
		t.Fatalf("expected ErrNothingToSpeak, got %v", err)
	}
	if err := svc.ReSpeak("s-unknown"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestPersistedSnapshotsAlwaysConversationPhase(t *testing.T) {
	t.Parallel()
	upstream := &fakeUpstream{
		startResp:  &quiz.StartResponse{Question: question("q1")},
		answerResp: &quiz.AnswerResponse{Question: question("q2")},
	}
	snapshots := &fakeSnapshots{}
	svc, _ := newTestSessionService(upstream, snapshots)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "s-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.SubmitAnswer(ctx, "s-1", &AnswerSubmission{QuestionID: "q1", Answer: "x"}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	for i, saved := range snapshots.saves {
		if saved.Phase != model.PhaseConversation {
			t.Fatalf("save %d has phase %s, resumable snapshots are only written mid-conversation", i, saved.Phase)
		}
	}
}
