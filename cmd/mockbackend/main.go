package main

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"

	"aireadiness/internal/model"
)

// Stand-in for the adaptive assessment engine so the gateway can be run
// locally without the real service. Serves a fixed question script and
// completes after the last one.

var script = []model.Question{
	{
		ID:             "q-company-size",
		Text:           "How many people work at your company?",
		Acknowledgment: "Let's get started.",
		QuestionType:   model.QuestionTypeStructured,
		InputType:      model.InputNumber,
	},
	{
		ID:             "q-data-storage",
		Text:           "Where does your company keep its operational data today?",
		Acknowledgment: "Thanks.",
		QuestionType:   model.QuestionTypeStructured,
		InputType:      model.InputSelect,
		Options:        []string{"Spreadsheets", "A CRM or ERP", "Custom databases", "Mostly on paper"},
	},
	{
		ID:             "q-manual-work",
		Text:           "Which repetitive task eats the most time for your team?",
		Acknowledgment: "Good to know.",
		QuestionType:   model.QuestionTypeVoice,
		InputType:      model.InputVoice,
		IsDeepDive:     true,
	},
}

type engineState struct {
	mu       sync.Mutex
	progress map[string]int
}

func main() {
	state := &engineState{progress: make(map[string]int)}

	mux := http.NewServeMux()

	mux.HandleFunc("/adaptive-quiz/start", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
			return
		}

		state.mu.Lock()
		state.progress[req.SessionID] = 0
		state.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"question":     script[0],
			"confidence":   confidenceAt(0),
			"company_name": "Acme Logistics",
			"industry":     "logistics",
		})
	})

	mux.HandleFunc("/adaptive-quiz/answer", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID  string `json:"session_id"`
			QuestionID string `json:"question_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
			return
		}

		state.mu.Lock()
		next := state.progress[req.SessionID] + 1
		state.progress[req.SessionID] = next
		state.mu.Unlock()

		if next >= len(script) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"confidence":    confidenceAt(next),
				"complete":      true,
				"analysis_hint": "strong automation potential in daily operations",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"question":   script[next],
			"confidence": confidenceAt(next),
			"complete":   false,
		})
	})

	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
			return
		}
		// Not real audio; enough for the gateway to push something playable-shaped
		writeJSON(w, http.StatusOK, map[string]string{
			"audio": base64.StdEncoding.EncodeToString([]byte("AUDIO:" + req.Text)),
		})
	})

	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9000"
	}

	log.Printf("Mock engine listening on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, mux))
}

func confidenceAt(asked int) *model.Confidence {
	return &model.Confidence{
		Scores:         map[string]float64{"operations": 0.2 * float64(asked+1)},
		Thresholds:     map[string]float64{"operations": 0.8},
		Gaps:           []string{"operations"},
		QuestionsAsked: asked,
		FactsCollected: asked * 2,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
