package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/pipeline/config"
	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"
	"github.com/dhumphrey11/moda-trading/pkg/logger"

	"google.golang.org/genai"
)

// ScoringRepository is the boundary to the external scoring function. Model
// internals are opaque to the pipeline; it only sees the feature snapshot in
// and the score out.
type ScoringRepository interface {
	Score(ctx context.Context, features dto.FeatureSnapshot) (*dto.ScoreResult, error)
}

// NewHTTPScoringRepository creates a scorer that calls the model service
// over HTTP.
func NewHTTPScoringRepository(cfg *config.Config, log *logger.Logger) ScoringRepository {
	return &httpScoringRepository{
		cfg:        cfg,
		log:        log,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type httpScoringRepository struct {
	cfg        *config.Config
	log        *logger.Logger
	httpClient *http.Client
}

func (r *httpScoringRepository) Score(ctx context.Context, features dto.FeatureSnapshot) (*dto.ScoreResult, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feature snapshot: %w", err)
	}

	url := r.cfg.Scoring.BaseURL + "/recommend"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.Scoring.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Scoring.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scoring service returned status %d", resp.StatusCode)
	}

	var result dto.ScoreResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("malformed score payload: %w", err)
	}
	if result.Symbol == "" {
		result.Symbol = features.Symbol
	}
	if result.ModelVersion == "" {
		result.ModelVersion = r.cfg.Scoring.ModelVersion
	}
	return &result, nil
}

// NewGeminiScoringRepository creates a scorer backed by the Gemini API.
func NewGeminiScoringRepository(cfg *config.Config, log *logger.Logger, client *genai.Client) ScoringRepository {
	return &geminiScoringRepository{cfg: cfg, log: log, client: client}
}

type geminiScoringRepository struct {
	cfg    *config.Config
	log    *logger.Logger
	client *genai.Client
}

const scoringPromptTemplate = `You are a trading analyst. Given the feature snapshot below,
respond with a single JSON object and nothing else:
{"verdict":"buy|hold|sell","confidence":0-100,"price_target":number,"stop_loss":number}

Features:
%s`

func (r *geminiScoringRepository) Score(ctx context.Context, features dto.FeatureSnapshot) (*dto.ScoreResult, error) {
	featureJSON, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feature snapshot: %w", err)
	}
	prompt := fmt.Sprintf(scoringPromptTemplate, featureJSON)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, "user"),
	}
	resp, err := r.client.Models.GenerateContent(ctx, r.cfg.Scoring.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini scoring request failed: %w", err)
	}

	text := resp.Text()
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "```json"), "```"))

	var result dto.ScoreResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		r.log.Error("Malformed gemini score payload", logger.ErrorField(err), logger.StringField("payload", text))
		return nil, fmt.Errorf("malformed gemini score payload: %w", err)
	}
	result.Symbol = features.Symbol
	result.ModelVersion = r.cfg.Scoring.ModelVersion
	return &result, nil
}
