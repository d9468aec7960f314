package core

import (
	"context"
	"strings"
)

type (
	// Document is a binary input handed to the model along with the prompt.
	Document struct {
		Filename string
		MIMEType string
		Data     []byte
	}

	CompletionRequest struct {
		Model       string // empty: provider default
		System      string
		Prompt      string
		Documents   []Document
		MaxTokens   int
		Temperature float64
	}

	// AIService is any LLM provider able to complete a prompt.
	AIService interface {
		Complete(ctx context.Context, req CompletionRequest) (string, error)
	}

	// Embedder turns text into a vector for semantic search.
	Embedder interface {
		Embed(ctx context.Context, text string) ([]float32, error)
	}
)

// ExtractJSON returns the outermost JSON array or object found in a model reply,
// ignoring surrounding prose and markdown code fences.
func ExtractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	closer := byte(']')
	if s[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}
