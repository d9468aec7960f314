package aisvc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kalamu/core"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model string
		want  Provider
	}{
		{"claude-sonnet-4-5", ProviderClaude},
		{"anthropic/claude-haiku-4-5", ProviderClaude},
		{"Claude/claude-opus-4-1", ProviderClaude},
		{"gemini-2.5-flash", ProviderGemini},
		{"google/gemini-2.5-pro", ProviderGemini},
		{"", ProviderFake},
		{"gpt-5-mini", ProviderFake},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectProvider(tt.model, ProviderFake), tt.model)
	}
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "claude-haiku-4-5", NormalizeModel("anthropic/claude-haiku-4-5"))
	assert.Equal(t, "gemini-2.5-pro", NormalizeModel("Google/gemini-2.5-pro"))
	assert.Equal(t, "claude-sonnet-4-5", NormalizeModel(" claude-sonnet-4-5 "))
}

func TestRouter(t *testing.T) {
	var got []string
	r := &Router{
		fallback: ProviderGemini,
		providers: map[Provider]core.AIService{
			ProviderClaude: Func(func(_ context.Context, req core.CompletionRequest) (string, error) {
				got = append(got, "claude:"+req.Model)
				return "c", nil
			}),
			ProviderGemini: Func(func(_ context.Context, req core.CompletionRequest) (string, error) {
				got = append(got, "gemini:"+req.Model)
				return "g", nil
			}),
		},
	}

	out, err := r.Complete(context.Background(), core.CompletionRequest{Model: "claude-haiku-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "c", out)

	out, err = r.Complete(context.Background(), core.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "g", out)

	assert.Equal(t, []string{"claude:claude-haiku-4-5", "gemini:"}, got)
	assert.Nil(t, r.Embedder())

	delete(r.providers, ProviderClaude)
	_, err = r.Complete(context.Background(), core.CompletionRequest{Model: "claude-haiku-4-5"})
	assert.EqualError(t, err, `model "claude-haiku-4-5" is not available`)
}

func TestFake(t *testing.T) {
	ai := Fake()

	out, err := ai.Complete(context.Background(), core.CompletionRequest{
		Prompt: "Return a JSON array with \"question\" keys.\nStudy material:\n### Cells\nMitochondria make ATP",
	})
	require.NoError(t, err)
	assert.Contains(t, core.ExtractJSON(out), `"answer":"Mitochondria make ATP"`)

	out, err = ai.Complete(context.Background(), core.CompletionRequest{Prompt: "Slide contents:\n\nNewton's laws"})
	require.NoError(t, err)
	assert.Contains(t, out, "- Newton's laws")
}
