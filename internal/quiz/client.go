package quiz

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"aireadiness/internal/model"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 1 * time.Second
)

// ClientError is a non-retryable 4xx from the upstream engine, carrying
// the server-provided message when one was available.
type ClientError struct {
	Status  int
	Message string
}

func (e *ClientError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream rejected request (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream rejected request (%d)", e.Status)
}

// Client wraps calls to the adaptive assessment engine. Transport errors
// and 5xx responses are retried with linear backoff; anything below 500
// is returned to the caller on the first attempt, 4xx included.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	sleep      func(time.Duration)
}

// NewClient creates a client for the engine at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		sleep:      time.Sleep,
	}
}

// doRequest performs an HTTP request with retry on 5xx and transport errors.
// Returns the body and status for any response below 500; callers inspect
// the status themselves.
func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	url := c.baseURL + path

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[quiz client] retry attempt %d/%d for %s %s", attempt, c.maxRetries, method, path)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.backoff(attempt)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			c.backoff(attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("upstream error: %d", resp.StatusCode)
			c.backoff(attempt)
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	log.Printf("[quiz client] max retries (%d) exceeded for %s %s: %v", c.maxRetries, method, path, lastErr)
	return nil, 0, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoff waits before the next attempt: delay * 1, delay * 2, ...
// No wait after the final attempt.
func (c *Client) backoff(attempt int) {
	if attempt+1 < c.maxRetries {
		c.sleep(c.retryDelay * time.Duration(attempt+1))
	}
}

// errorMessage extracts the server-provided error message from a 4xx body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

// StartRequest begins an interview for a session.
type StartRequest struct {
	SessionID string `json:"session_id"`
}

// StartResponse carries the first question and the initial confidence state.
type StartResponse struct {
	Question    *model.Question   `json:"question"`
	Confidence  *model.Confidence `json:"confidence"`
	CompanyName string            `json:"company_name,omitempty"`
	Industry    string            `json:"industry,omitempty"`
}

// AnswerRequest submits one answer turn.
type AnswerRequest struct {
	SessionID  string `json:"session_id"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	AnswerType string `json:"answer_type"`
}

// AnswerResponse is the engine's verdict for one turn: either the next
// question or completion with a redirect target.
type AnswerResponse struct {
	Confidence   *model.Confidence `json:"confidence"`
	Complete     bool              `json:"complete"`
	Question     *model.Question   `json:"question,omitempty"`
	AnalysisHint string            `json:"analysis_hint,omitempty"`
	Redirect     string            `json:"redirect,omitempty"`
}

// Start fetches the first question for a session.
func (c *Client) Start(ctx context.Context, sessionID string) (*StartResponse, error) {
	body, status, err := c.doRequest(ctx, http.MethodPost, "/adaptive-quiz/start", &StartRequest{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, &ClientError{Status: status, Message: errorMessage(body)}
	}

	var resp StartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse start response: %w", err)
	}
	return &resp, nil
}

// Answer submits an answer and returns the next turn.
func (c *Client) Answer(ctx context.Context, req *AnswerRequest) (*AnswerResponse, error) {
	body, status, err := c.doRequest(ctx, http.MethodPost, "/adaptive-quiz/answer", req)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, &ClientError{Status: status, Message: errorMessage(body)}
	}

	var resp AnswerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse answer response: %w", err)
	}
	return &resp, nil
}

type ttsRequest struct {
	Text string `json:"text"`
}

type ttsResponse struct {
	Audio string `json:"audio"` // base64
}

// Synthesize requests spoken audio for text from the engine's TTS endpoint.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, status, err := c.doRequest(ctx, http.MethodPost, "/tts", &ttsRequest{Text: text})
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, &ClientError{Status: status, Message: errorMessage(body)}
	}

	var resp ttsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse tts response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tts audio: %w", err)
	}
	return audio, nil
}
