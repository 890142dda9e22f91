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
	"path/filepath"
	"strings"
	"time"

	"github.com/sagarmv/wildtrail/internal/photo"
)

// Ensure OpenAIProvider implements Provider at compile time
var _ Provider = (*OpenAIProvider)(nil)

// OpenAIProvider talks to any OpenAI-compatible API (DeepSeek, LM Studio,
// OpenAI itself) for vision, text and embedding generation.
type OpenAIProvider struct {
	baseURL     string
	visionModel string
	embedModel  string
	apiKey      string
	client      *http.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible analysis backend.
func NewOpenAIProvider(baseURL, visionModel, embedModel, apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL:     baseURL,
		visionModel: visionModel,
		embedModel:  embedModel,
		apiKey:      apiKey,
		client: &http.Client{
			Timeout: 3 * time.Minute,
		},
	}
}

// chatContent is one part of a multi-modal chat message
type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// chatRequest is the request format for /v1/chat/completions
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatResponse is the response format from /v1/chat/completions
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// openAIEmbedRequest is the request format for /v1/embeddings
type openAIEmbedRequest struct {
	Input any    `json:"input"`
	Model string `json:"model"`
}

// openAIEmbedResponse is the response format from /v1/embeddings
type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (p *OpenAIProvider) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}

func (p *OpenAIProvider) chat(ctx context.Context, messages []chatMessage) (string, error) {
	resp, err := p.post(ctx, "/v1/chat/completions", chatRequest{
		Model:    p.visionModel,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// AnalyzeImage sends the image as a data URI to the vision model.
func (p *OpenAIProvider) AnalyzeImage(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	mime := "image/jpeg"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		mime = "image/png"
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))

	return p.chat(ctx, []chatMessage{{
		Role: "user",
		Content: []chatContent{
			{Type: "text", Text: analyzePrompt},
			{Type: "image_url", ImageURL: &chatImageURL{URL: dataURI}},
		},
	}})
}

// GenerateEmbedding generates an embedding for a single text string.
func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	resp, err := p.post(ctx, "/v1/embeddings", openAIEmbedRequest{
		Input: text,
		Model: p.embedModel,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var embedResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(embedResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embedResp.Data[0].Embedding, nil
}

// GenerateCaption writes a social caption for a photo.
func (p *OpenAIProvider) GenerateCaption(ctx context.Context, rec *photo.Record) (string, error) {
	return p.chat(ctx, []chatMessage{{Role: "user", Content: captionPrompt(rec)}})
}

// GenerateHashtags produces sanitized hashtag tokens for a photo.
func (p *OpenAIProvider) GenerateHashtags(ctx context.Context, rec *photo.Record) ([]string, error) {
	raw, err := p.chat(ctx, []chatMessage{{Role: "user", Content: hashtagPrompt(rec)}})
	if err != nil {
		return nil, err
	}
	return sanitizeHashtags(raw), nil
}

// Name identifies the backend for record provenance.
func (p *OpenAIProvider) Name() photo.ModelInfo {
	return photo.ModelInfo{Name: p.visionModel, Kind: "openai"}
}

// Health checks if the API is reachable.
func (p *OpenAIProvider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("api not available: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return nil
}
