package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ttony15/cpmai/internal/config"
	"github.com/ttony15/cpmai/internal/model"
	pdfutil "github.com/ttony15/cpmai/internal/pdf"
)

// OpenAI talks to an OpenAI-compatible HTTP API. The chat completions
// endpoint has no PDF attachment support here, so PDF content is reduced to
// plain text before analysis.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	client     *http.Client
}

// NewOpenAI constructs the OpenAI-backed client.
func NewOpenAI(cfg *config.Config) (*OpenAI, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
		embedModel: cfg.OpenAIEmbedModel,
		client:     &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Name identifies the active backend variant.
func (o *OpenAI) Name() string { return "openai:" + o.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// AnalyzeDocument reduces the document to text, submits it with the
// reviewer prompt, and coerces the reply into an AnalysisResult.
func (o *OpenAI) AnalyzeDocument(ctx context.Context, content []byte, fileName string, category model.DocumentCategory) (*model.AnalysisResult, error) {
	var text string
	var err error
	if pdfutil.IsPDF(fileName) {
		text, err = pdfutil.ExtractText(content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	} else {
		text, err = decodeText(content, fileName)
		if err != nil {
			return nil, err
		}
	}

	reqBody := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an AI assistant that processes and analyzes construction documents."},
			{Role: "user", Content: textAnalysisPrompt(fileName, category, text)},
		},
		Temperature: 0.7,
	}
	var resp chatResponse
	if err := o.post(ctx, "/chat/completions", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrModelOutput)
	}
	return parseAnalysis(resp.Choices[0].Message.Content)
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed produces the document/query embedding vector.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := o.post(ctx, "/embeddings", embedRequest{Input: text, Model: o.embedModel}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("openai: empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamAnswer reads server-sent events from the chat completions stream,
// forwarding each content delta to emit. Cancelling the context aborts the
// underlying request, which releases the backend stream.
func (o *OpenAI) StreamAnswer(ctx context.Context, prompt string, emit func(token string) error) error {
	reqBody := chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		Stream:      true,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal stream request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stream request: status %d: %s", resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				return nil
			}
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := emit(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		// A cancelled caller is expected shutdown, not a stream failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func (o *OpenAI) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request %s: status %d: %s", path, resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
