// Package insight asks a hosted generative model (Gemini REST API) for
// market commentary and rebalancing suggestions.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexusx/nexus/internal/domain"
)

const (
	DefaultBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	DefaultAnalysisModel = "gemini-3-flash-preview"
	DefaultStrategyModel = "gemini-3-pro-preview"
)

// Config configures the Gemini client.
type Config struct {
	APIKey        string
	BaseURL       string
	AnalysisModel string
	StrategyModel string
	Timeout       time.Duration
}

// Client calls the generateContent endpoint. Every failure, including a
// missing API key, wraps domain.ErrServiceUnavailable.
type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a Client, filling unset fields with defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = DefaultAnalysisModel
	}
	if cfg.StrategyModel == "" {
		cfg.StrategyModel = DefaultStrategyModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// AnalyzeMarket returns a short market analysis of one asset.
func (c *Client) AnalyzeMarket(ctx context.Context, asset string, price, changePct decimal.Decimal) (string, error) {
	prompt := fmt.Sprintf("Provide a brief professional market analysis for %s. "+
		"Current price is $%s and 24h change is %s%%. "+
		"Focus on potential support/resistance levels and sentiment. Keep it under 150 words.",
		asset, price, changePct)

	text, err := c.generate(ctx, c.cfg.AnalysisModel, generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{Temperature: 0.7},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// TradingStrategy returns a three-step rebalancing plan for holdings.
func (c *Client) TradingStrategy(ctx context.Context, holdings []domain.AssetBalance) ([]domain.StrategyStep, error) {
	parts := make([]string, 0, len(holdings))
	for _, h := range holdings {
		parts = append(parts, fmt.Sprintf("%s: %s", h.Symbol, h.Balance))
	}
	prompt := fmt.Sprintf("You are a pro crypto portfolio manager. My current portfolio is: %s. "+
		"Given current market volatility, suggest a 3-step rebalancing strategy. "+
		"Format as a JSON list of steps.", strings.Join(parts, ", "))

	text, err := c.generate(ctx, c.cfg.StrategyModel, generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   strategySchema,
		},
	})
	if err != nil {
		return nil, err
	}

	var steps []domain.StrategyStep
	if err := json.Unmarshal([]byte(text), &steps); err != nil {
		return nil, fmt.Errorf("insight: decode strategy: %w: %w", domain.ErrServiceUnavailable, err)
	}
	return steps, nil
}

var strategySchema = map[string]any{
	"type": "ARRAY",
	"items": map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"step":      map[string]any{"type": "STRING"},
			"reasoning": map[string]any{"type": "STRING"},
		},
		"required": []string{"step", "reasoning"},
	},
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64        `json:"temperature,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) generate(ctx context.Context, model string, req generateRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("insight: no api key: %w", domain.ErrServiceUnavailable)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("insight: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("insight: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("insight: %s: %w: %w", model, domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("insight: read response: %w: %w", domain.ErrServiceUnavailable, err)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("insight: decode response: %w: %w", domain.ErrServiceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("insight: %s: status %d: %s: %w", model, resp.StatusCode, msg, domain.ErrServiceUnavailable)
	}

	var sb strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("insight: %s: empty response: %w", model, domain.ErrServiceUnavailable)
	}
	return sb.String(), nil
}

// IsUnavailable reports whether err came from an unreachable or failing
// model endpoint.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrServiceUnavailable)
}
