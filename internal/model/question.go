package model

// QuestionType defines how a question is delivered
type QuestionType string

const (
	QuestionTypeStructured QuestionType = "structured" // typed/selected answer
	QuestionTypeVoice      QuestionType = "voice"      // spoken answer expected
)

// InputType defines the answer control the question expects
type InputType string

const (
	InputText        InputType = "text"
	InputNumber      InputType = "number"
	InputSelect      InputType = "select"
	InputMultiSelect InputType = "multi_select"
	InputScale       InputType = "scale"
	InputVoice       InputType = "voice"
)

// Question is one turn of the adaptive interview. It is owned by the
// upstream engine; the gateway treats it as an immutable value that is
// replaced wholesale on every transition.
type Question struct {
	ID               string       `json:"id"`
	Text             string       `json:"question_text"`
	Acknowledgment   string       `json:"acknowledgment,omitempty"` // spoken before the question itself
	QuestionType     QuestionType `json:"question_type"`
	InputType        InputType    `json:"input_type"`
	Options          []string     `json:"options,omitempty"`
	TargetCategories []string     `json:"target_categories,omitempty"`
	IsDeepDive       bool         `json:"is_deep_dive"`
	Rationale        string       `json:"rationale,omitempty"`
}

// SpokenText is what the TTS side channel reads out for this question.
func (q *Question) SpokenText() string {
	if q.Acknowledgment != "" {
		return q.Acknowledgment + " " + q.Text
	}
	return q.Text
}
