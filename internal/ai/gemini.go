package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	genai "google.golang.org/genai"

	"github.com/ttony15/cpmai/internal/config"
	"github.com/ttony15/cpmai/internal/model"
	pdfutil "github.com/ttony15/cpmai/internal/pdf"
)

// Gemini is a thin wrapper around the official genai client. PDFs are sent
// inline as a binary part, so no separate text extraction is needed.
type Gemini struct {
	cli        *genai.Client
	model      string
	embedModel string
}

// NewGemini constructs the Gemini-backed client.
func NewGemini(ctx context.Context, cfg *config.Config) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &Gemini{cli: cli, model: cfg.GeminiModel, embedModel: cfg.GeminiEmbedModel}, nil
}

// Name identifies the active backend variant.
func (g *Gemini) Name() string { return "gemini:" + g.model }

// AnalyzeDocument sends the reviewer prompt plus the document payload and
// coerces the reply into an AnalysisResult.
func (g *Gemini) AnalyzeDocument(ctx context.Context, content []byte, fileName string, category model.DocumentCategory) (*model.AnalysisResult, error) {
	var parts []*genai.Part
	if pdfutil.IsPDF(fileName) {
		parts = []*genai.Part{
			{Text: documentAnalysisPrompt},
			{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: content}},
		}
	} else {
		text, err := decodeText(content, fileName)
		if err != nil {
			return nil, err
		}
		parts = []*genai.Part{{Text: textAnalysisPrompt(fileName, category, text)}}
	}

	raw, err := g.generate(ctx, parts)
	if err != nil {
		return nil, err
	}
	return parseAnalysis(raw)
}

const maxGenerateAttempts = 3

func (g *Gemini) generate(ctx context.Context, parts []*genai.Part) (string, error) {
	contents := []*genai.Content{{Parts: parts}}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	var lastErr error
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, cfg)
		switch {
		case err != nil:
			lastErr = err
		case len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0:
			lastErr = fmt.Errorf("%w: empty candidate", ErrModelOutput)
		default:
			return resp.Candidates[0].Content.Parts[0].Text, nil
		}
		if attempt == maxGenerateAttempts-1 {
			break
		}
		log.Printf("gemini generate attempt %d failed: %v", attempt+1, lastErr)
		if err := sleepContext(ctx, backoffDelay(attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func backoffDelay(attempt int) time.Duration {
	return time.Duration(300*(1<<attempt)) * time.Millisecond
}

// sleepContext waits out the backoff but returns early when the context is
// cancelled, so a shut-down worker never sits in a retry sleep.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Embed produces the document/query embedding vector.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	resp, err := g.cli.Models.EmbedContent(ctx, g.embedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("embed content: empty response")
	}
	return resp.Embeddings[0].Values, nil
}

// StreamAnswer streams generation tokens to emit until the reply finishes,
// emit declines another token, or the context is cancelled.
func (g *Gemini) StreamAnswer(ctx context.Context, prompt string, emit func(token string) error) error {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}}
	for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.model, contents, nil) {
		if err != nil {
			return fmt.Errorf("stream generate: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				if err := emit(part.Text); err != nil {
					return err
				}
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
