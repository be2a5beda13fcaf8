package model

import "time"

// SessionSnapshot is the resumable state written to the snapshot store on
// every state change while a session is in the conversation phase. Each
// write carries the full snapshot; last write wins.
type SessionSnapshot struct {
	SessionID         string      `json:"sessionId"`
	Phase             Phase       `json:"phase"`
	CurrentQuestion   *Question   `json:"currentQuestion,omitempty"`
	Confidence        *Confidence `json:"confidence,omitempty"`
	AnsweredQuestions int         `json:"answeredQuestions"`
	CompanyName       string      `json:"companyName,omitempty"`
	Partial           bool        `json:"partial,omitempty"` // written once on skip-to-results; never resumed
	SavedAt           time.Time   `json:"savedAt"`
}

type SessionStatus string

const (
	SessionStarted   SessionStatus = "started"
	SessionPartial   SessionStatus = "partial" // user skipped to results mid-interview
	SessionCompleted SessionStatus = "completed"
)

// SessionRecord is the durable per-session record behind the results page.
// It never participates in resume decisions; that is the snapshot's job.
type SessionRecord struct {
	ID            string             `json:"id" bson:"_id,omitempty"`
	SessionID     string             `json:"sessionId" bson:"sessionId"`
	CompanyName   string             `json:"companyName,omitempty" bson:"companyName,omitempty"`
	Industry      string             `json:"industry,omitempty" bson:"industry,omitempty"`
	Status        SessionStatus      `json:"status" bson:"status"`
	AnsweredCount int                `json:"answeredCount" bson:"answeredCount"`
	Answers       []AnsweredQuestion `json:"answers,omitempty" bson:"answers,omitempty"`
	StartedAt     time.Time          `json:"startedAt" bson:"startedAt"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

// AnsweredQuestion is one accepted answer in the session transcript.
type AnsweredQuestion struct {
	AttemptID    string    `json:"attemptId" bson:"attemptId"`
	QuestionID   string    `json:"questionId" bson:"questionId"`
	QuestionText string    `json:"questionText" bson:"questionText"`
	Answer       string    `json:"answer" bson:"answer"`
	AnswerType   string    `json:"answerType" bson:"answerType"`
	AnsweredAt   time.Time `json:"answeredAt" bson:"answeredAt"`
}
