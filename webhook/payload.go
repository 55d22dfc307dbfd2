package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Outcome discriminates the branches the reconciliation pipeline takes, so the
// switch over a delivery is exhaustive instead of string comparisons scattered
// around handler code.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeOther
)

var validate = validator.New()

// PredictionEvent is the parsed, validated body of a provider callback.
type PredictionEvent struct {
	ID      string `json:"id" validate:"required"`
	Status  string `json:"status" validate:"required"`
	Model   string `json:"model"`
	Version string `json:"version"`
	Input   struct {
		Prompt string `json:"prompt"`
		Image  string `json:"image"`
	} `json:"input"`
	// Output is a single URL or an array of URLs depending on the model.
	Output json.RawMessage `json:"output"`
	Error  string         `json:"error"`
}

// ParseEvent decodes and validates a raw webhook body.
func ParseEvent(body []byte) (*PredictionEvent, error) {
	var event PredictionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if err := validate.Struct(&event); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	return &event, nil
}

// Outcome maps the provider's status string onto the pipeline branches.
// Anything that is neither succeeded nor failed (intermediate "processing"
// pings, unknown values) is OutcomeOther and acknowledged without effect.
func (e *PredictionEvent) Outcome() Outcome {
	switch e.Status {
	case "succeeded":
		return OutcomeSucceeded
	case "failed":
		return OutcomeFailed
	default:
		return OutcomeOther
	}
}

// OutputURLs normalizes the output field, which arrives as either a string or
// an array of strings.
func (e *PredictionEvent) OutputURLs() []string {
	if len(e.Output) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(e.Output, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}

	var many []string
	if err := json.Unmarshal(e.Output, &many); err == nil {
		return many
	}

	return nil
}

// FirstOutputURL returns the primary output image URL, or "" when absent.
func (e *PredictionEvent) FirstOutputURL() string {
	urls := e.OutputURLs()
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}
