// Package llm wraps the text-generation backend used by the chatbot.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Additional-Code/gobady/internal/config"
)

var llmTracer = otel.Tracer("github.com/Additional-Code/gobady/llm")

// ErrDisabled is returned when no generation backend is configured.
var ErrDisabled = errors.New("text generation is not configured")

// ErrEmptyReply is returned when the backend answers with no text.
var ErrEmptyReply = errors.New("empty generation reply")

// Sampling holds the decoding parameters sent with every prompt.
type Sampling struct {
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

// SamplingFromConfig reads sampling values from the chatbot configuration.
func SamplingFromConfig(cfg config.Chatbot) Sampling {
	return Sampling{
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		TopK:            cfg.TopK,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
}

// Generator produces a reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, sampling Sampling) (string, error)
}

// Module provides the configured Generator to Fx.
var Module = fx.Provide(New)

// New returns a Gemini-backed generator, or a disabled one when no API key is set.
func New(cfg config.Config, logger *zap.Logger) (Generator, error) {
	if cfg.Chatbot.APIKey == "" {
		logger.Warn("GEMINI_API_KEY not set; chatbot replies will fall back to the apology message")
		return disabled{}, nil
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.Chatbot.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &gemini{models: client.Models, model: cfg.Chatbot.Model, timeout: cfg.Chatbot.Timeout}, nil
}

type disabled struct{}

func (disabled) Generate(context.Context, string, Sampling) (string, error) {
	return "", ErrDisabled
}

type gemini struct {
	models  *genai.Models
	model   string
	timeout time.Duration
}

func (g *gemini) Generate(ctx context.Context, prompt string, sampling Sampling) (string, error) {
	ctx, span := llmTracer.Start(ctx, "Gemini.Generate", trace.WithAttributes(
		attribute.String("llm.model", g.model),
		attribute.Int("llm.prompt.bytes", len(prompt)),
	))
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(sampling.Temperature),
		TopP:            genai.Ptr(sampling.TopP),
		TopK:            genai.Ptr(sampling.TopK),
		MaxOutputTokens: sampling.MaxOutputTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", err
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		span.SetStatus(codes.Error, "empty reply")
		return "", ErrEmptyReply
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
