package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/sagarmv/wildtrail/internal/photo"
)

// Provider is the interface for AI analysis backends (Ollama, OpenAI-compatible).
type Provider interface {
	// AnalyzeImage runs the vision model against an image file and returns
	// the raw structured-text response (see ParseAnalysis).
	AnalyzeImage(ctx context.Context, path string) (string, error)

	// GenerateEmbedding generates an embedding vector for a text string.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateCaption writes a short social caption for a photo.
	GenerateCaption(ctx context.Context, rec *photo.Record) (string, error)

	// GenerateHashtags produces up to 15 alphanumeric/underscore hashtag
	// tokens for a photo, each at most 30 characters.
	GenerateHashtags(ctx context.Context, rec *photo.Record) ([]string, error)

	// Name identifies the backend and model for record provenance.
	Name() photo.ModelInfo

	// Health checks if the backend is reachable.
	Health(ctx context.Context) error
}

// NewProvider creates an analysis backend.
// Supported providers: "ollama", "openai" (any OpenAI-compatible endpoint).
func NewProvider(provider, baseURL, visionModel, embedModel, apiKey string) (Provider, error) {
	switch provider {
	case "ollama":
		return NewOllamaProvider(baseURL, visionModel, embedModel), nil
	case "openai":
		return NewOpenAIProvider(baseURL, visionModel, embedModel, apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported analysis provider: %s (supported: ollama, openai)", provider)
	}
}

// GetDefaultURL returns the default base URL for a given provider.
func GetDefaultURL(provider string) string {
	switch provider {
	case "ollama":
		return "http://localhost:11434"
	case "openai":
		return "https://api.deepseek.com"
	default:
		return ""
	}
}

// analyzePrompt asks for the section format ParseAnalysis understands.
const analyzePrompt = `Analyze this wildlife photo and provide the following information in a structured format:
1. SUBJECTS: List all animals/wildlife subjects visible in the image
2. COLORS: List dominant colors in the image
3. PATTERNS: Describe any notable patterns or textures
4. SEASON: If apparent from the environment or context
5. ENVIRONMENT: Detailed description of the habitat/setting
6. TAGS: Relevant keywords for searching (max 10)
7. DESCRIPTION: A detailed, professional description of the photo
Format each section clearly with headings.`

func captionPrompt(rec *photo.Record) string {
	return fmt.Sprintf(`Write a short, engaging Instagram caption for a wildlife photo.
Subjects: %s
Environment: %s
Description: %s
Return only the caption text, no hashtags.`,
		strings.Join(rec.Subjects, ", "), rec.Environment, rec.Description)
}

func hashtagPrompt(rec *photo.Record) string {
	return fmt.Sprintf(`Suggest Instagram hashtags for a wildlife photo of %s in %s.
Tags: %s
Return up to 15 hashtags separated by spaces.`,
		strings.Join(rec.Subjects, ", "), rec.Environment, strings.Join(rec.Tags, ", "))
}

// sanitizeHashtags enforces the hashtag contract: alphanumeric/underscore
// tokens, max 30 characters each, max 15 tokens.
func sanitizeHashtags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == ','
	})

	var tags []string
	for _, f := range fields {
		var b strings.Builder
		for _, r := range f {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
				b.WriteRune(r)
			}
		}
		tag := b.String()
		if tag == "" {
			continue
		}
		if len(tag) > 30 {
			tag = tag[:30]
		}
		tags = append(tags, tag)
		if len(tags) == 15 {
			break
		}
	}
	return tags
}
