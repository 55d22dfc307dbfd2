package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/makeit-app/render-orchestrator/config"
)

// ReplicateService submits predictions to the inference provider. The provider
// processes them out-of-band and reports results through the webhook endpoint.
type ReplicateService struct {
	APIURL              string
	APIToken            string
	WebhookURL          string
	InitialModelVersion string
	UpscaleModelVersion string
	HTTPClient          *http.Client
}

func InitReplicateService(cfg *config.EnvConfig) *ReplicateService {
	if cfg.Replicate.APIToken == "" {
		panic("Replicate API token is not configured")
	}

	if cfg.Replicate.InitialModelVersion == "" || cfg.Replicate.UpscaleModelVersion == "" {
		panic("Replicate model versions are not configured")
	}

	if cfg.Replicate.WebhookURL == "" {
		panic("Replicate webhook URL is not configured")
	}

	return &ReplicateService{
		APIURL:              cfg.Replicate.APIURL,
		APIToken:            cfg.Replicate.APIToken,
		WebhookURL:          cfg.Replicate.WebhookURL,
		InitialModelVersion: cfg.Replicate.InitialModelVersion,
		UpscaleModelVersion: cfg.Replicate.UpscaleModelVersion,
		HTTPClient:          &http.Client{Timeout: 30 * time.Second},
	}
}

type PredictionInput struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
}

type createPredictionRequest struct {
	Version             string          `json:"version"`
	Input               PredictionInput `json:"input"`
	Webhook             string          `json:"webhook,omitempty"`
	WebhookEventsFilter []string        `json:"webhook_events_filter,omitempty"`
}

// Prediction is the provider's view of a submitted job.
type Prediction struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Model   string          `json:"model"`
	Version string          `json:"version"`
	Input   PredictionInput `json:"input"`
	Output  json.RawMessage `json:"output"`
	Error   string          `json:"error"`
}

// CreateDesignPrediction submits the initial interior-design job for a room photo.
func (s *ReplicateService) CreateDesignPrediction(ctx context.Context, prompt, imageURL string) (*Prediction, error) {
	return s.createPrediction(ctx, s.InitialModelVersion, prompt, imageURL)
}

// CreateUpscalePrediction chains an upscale pass off a finished design output.
func (s *ReplicateService) CreateUpscalePrediction(ctx context.Context, prompt, imageURL string) (*Prediction, error) {
	return s.createPrediction(ctx, s.UpscaleModelVersion, prompt, imageURL)
}

func (s *ReplicateService) createPrediction(ctx context.Context, version, prompt, imageURL string) (*Prediction, error) {
	url := fmt.Sprintf("%s/predictions", s.APIURL)

	body, err := json.Marshal(createPredictionRequest{
		Version: version,
		Input: PredictionInput{
			Prompt: prompt,
			Image:  imageURL,
		},
		Webhook:             s.WebhookURL,
		WebhookEventsFilter: []string{"completed"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIToken)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("replicate returned %d: %s", resp.StatusCode, string(raw))
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if prediction.ID == "" {
		return nil, fmt.Errorf("replicate returned no prediction id")
	}

	return &prediction, nil
}
