package model

// Confidence is the upstream engine's progress metric toward "enough
// information gathered". The gateway never computes or mutates these
// values; it displays them and carries them through snapshots unchanged.
type Confidence struct {
	Scores         map[string]float64 `json:"scores"`
	Thresholds     map[string]float64 `json:"thresholds"`
	Gaps           []string           `json:"gaps"`
	ReadyForTeaser bool               `json:"ready_for_teaser"`
	QuestionsAsked int                `json:"questions_asked"`
	FactsCollected int                `json:"facts_collected"`
}
