package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sagarmv/wildtrail/internal/photo"
)

// Ensure OllamaProvider implements Provider at compile time
var _ Provider = (*OllamaProvider)(nil)

// OllamaProvider talks to a local Ollama server for vision, text and
// embedding generation.
type OllamaProvider struct {
	baseURL     string
	visionModel string
	embedModel  string
	client      *http.Client
}

// NewOllamaProvider creates a new Ollama analysis backend.
func NewOllamaProvider(baseURL, visionModel, embedModel string) *OllamaProvider {
	return &OllamaProvider{
		baseURL:     baseURL,
		visionModel: visionModel,
		embedModel:  embedModel,
		client: &http.Client{
			// Vision models are slow on first load
			Timeout: 5 * time.Minute,
		},
	}
}

// generateRequest is the request format for Ollama's /api/generate endpoint
type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

// generateResponse is the response format from Ollama's /api/generate endpoint
type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// embedRequest is the request format for Ollama's /api/embed endpoint
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the response format from Ollama's /api/embed endpoint
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *OllamaProvider) generate(ctx context.Context, model, prompt string, images []string) (string, error) {
	req := generateRequest{
		Model:  model,
		Prompt: prompt,
		Images: images,
		Stream: false,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return genResp.Response, nil
}

// AnalyzeImage runs the vision model against an image file.
func (p *OllamaProvider) AnalyzeImage(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return p.generate(ctx, p.visionModel, analyzePrompt, []string{encoded})
}

// GenerateEmbedding generates an embedding for a single text string.
func (p *OllamaProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	req := embedRequest{
		Model: p.embedModel,
		Input: []string{text},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(embedResp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return embedResp.Embeddings[0], nil
}

// GenerateCaption writes a social caption for a photo.
func (p *OllamaProvider) GenerateCaption(ctx context.Context, rec *photo.Record) (string, error) {
	return p.generate(ctx, p.visionModel, captionPrompt(rec), nil)
}

// GenerateHashtags produces sanitized hashtag tokens for a photo.
func (p *OllamaProvider) GenerateHashtags(ctx context.Context, rec *photo.Record) ([]string, error) {
	raw, err := p.generate(ctx, p.visionModel, hashtagPrompt(rec), nil)
	if err != nil {
		return nil, err
	}
	return sanitizeHashtags(raw), nil
}

// Name identifies the backend for record provenance.
func (p *OllamaProvider) Name() photo.ModelInfo {
	return photo.ModelInfo{Name: p.visionModel, Kind: "ollama"}
}

// Health checks if the Ollama service is available.
func (p *OllamaProvider) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama not available: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}
