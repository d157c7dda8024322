// Package ai abstracts the generative-AI backends used for document
// analysis, embeddings and chat generation. The active backend is a
// configuration choice resolved once at startup; callers depend only on the
// Client interface.
package ai

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ttony15/cpmai/internal/config"
	"github.com/ttony15/cpmai/internal/jsonrepair"
	"github.com/ttony15/cpmai/internal/model"
)

// ErrDecode marks file content that is neither a recognized binary format
// nor valid UTF-8 text. Per-file, never batch-fatal.
var ErrDecode = errors.New("ai: undecodable file content")

// ErrModelOutput marks a backend reply that could not be parsed or repaired
// into structured data. The raw text is never propagated as a result.
var ErrModelOutput = errors.New("ai: unusable model output")

// Client is the uniform contract over interchangeable AI backends. All
// implementations are stateless per call and safe for concurrent use.
type Client interface {
	Name() string
	// AnalyzeDocument submits a document to the backend and returns the
	// structured analysis. PDF content goes down the binary path; anything
	// else must decode as UTF-8 text.
	AnalyzeDocument(ctx context.Context, content []byte, fileName string, category model.DocumentCategory) (*model.AnalysisResult, error)
	// Embed produces a fixed-length vector for a text payload. The
	// dimensionality is backend-defined.
	Embed(ctx context.Context, text string) ([]float32, error)
	// StreamAnswer generates an answer token by token, calling emit for each
	// chunk as it arrives. An error from emit, or context cancellation,
	// stops the backend stream promptly.
	StreamAnswer(ctx context.Context, prompt string, emit func(token string) error) error
}

// New resolves the configured backend name to a client instance.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.AIProvider {
	case "gemini":
		return NewGemini(ctx, cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.AIProvider)
	}
}

// decodeText enforces the non-PDF path's UTF-8 requirement.
func decodeText(content []byte, fileName string) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrDecode, fileName)
	}
	return string(content), nil
}

// parseAnalysis coerces a raw backend reply into a validated AnalysisResult.
func parseAnalysis(raw string) (*model.AnalysisResult, error) {
	var result model.AnalysisResult
	if err := jsonrepair.Parse(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelOutput, err)
	}
	result.Normalize()
	return &result, nil
}
