// Package vision asks a local Ollama vision model whether a downloaded
// image plausibly belongs on an article card, catching the logos, banners,
// and placeholder graphics that survive the URL and dimension filters. The
// check is advisory: any model failure passes the image through.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the default Ollama API endpoint.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is the default vision model.
	DefaultModel = "llava:7b"
)

const plausibilityPrompt = `Look at this image. Is it a photograph or illustration suitable as the featured image for a news article? Answer "no" for logos, icons, banner graphics, advertisements, placeholder images, QR codes, and screenshots of text. Respond with JSON only: {"plausible": true or false, "reason": "one short sentence"}`

// Verdict is the model's judgement of one image.
type Verdict struct {
	Plausible bool   `json:"plausible"`
	Reason    string `json:"reason"`
	// Advisory is true when the verdict was defaulted because the model
	// was unreachable or returned garbage.
	Advisory bool `json:"-"`
}

// Config contains vision checker configuration.
type Config struct {
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxConcurrent int // concurrent model requests; protects Ollama during batch runs
}

// DefaultConfig returns default vision checker configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Model:         DefaultModel,
		Timeout:       30 * time.Second,
		MaxConcurrent: 3,
	}
}

// Checker judges image plausibility via the Ollama generate API.
type Checker struct {
	config     Config
	httpClient *http.Client
	sem        chan struct{}
}

// New creates a vision checker.
func New(config Config) *Checker {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 3
	}
	return &Checker{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		sem:        make(chan struct{}, config.MaxConcurrent),
	}
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
	Format string   `json:"format,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Check asks the model whether the image is a plausible article image. A
// model failure never blocks acceptance: the returned verdict is plausible
// with Advisory set, and the error describes what went wrong.
func (c *Checker) Check(ctx context.Context, imageData []byte) (Verdict, error) {
	pass := Verdict{Plausible: true, Advisory: true}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return pass, fmt.Errorf("waiting for vision slot: %w", ctx.Err())
	}

	reqBody, err := json.Marshal(generateRequest{
		Model:  c.config.Model,
		Prompt: plausibilityPrompt,
		Images: []string{base64.StdEncoding.EncodeToString(imageData)},
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return pass, fmt.Errorf("failed to marshal vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return pass, fmt.Errorf("failed to create vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pass, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pass, fmt.Errorf("vision API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return pass, fmt.Errorf("failed to decode vision response: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(gen.Response), &verdict); err != nil {
		return pass, fmt.Errorf("vision model returned non-JSON verdict: %w", err)
	}
	return verdict, nil
}
