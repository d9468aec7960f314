package aisvc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/trezcool/kalamu/core"
)

type geminiService struct {
	client      *genai.Client
	model       string
	embedModel  string
	dimensions  int32
	temperature float64
	maxTokens   int
}

var (
	_ core.AIService = (*geminiService)(nil)
	_ core.Embedder  = (*geminiService)(nil)
)

func NewGeminiService(ctx context.Context, conf *core.Config) (*geminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.AI.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating gemini client")
	}

	model := conf.AI.Model
	if DetectProvider(model, "") != ProviderGemini {
		model = defaultGeminiModel
	}
	embedModel := conf.AI.EmbeddingModel
	if embedModel == "" {
		embedModel = defaultEmbeddingModel
	}
	return &geminiService{
		client:      client,
		model:       model,
		embedModel:  embedModel,
		dimensions:  int32(conf.AI.EmbeddingDimensions),
		temperature: conf.AI.Temperature,
		maxTokens:   conf.AI.MaxTokens,
	}, nil
}

func (svc *geminiService) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	model := NormalizeModel(req.Model)
	if model == "" {
		model = svc.model
	}

	parts := make([]*genai.Part, 0, len(req.Documents)+1)
	for _, doc := range req.Documents {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: doc.MIMEType, Data: doc.Data}})
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	temp := req.Temperature
	if temp <= 0 {
		temp = svc.temperature
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temp)),
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = svc.maxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := svc.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", errors.Wrap(err, "calling gemini")
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response from gemini")
	}
	return text, nil
}

func (svc *geminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	config := &genai.EmbedContentConfig{}
	if svc.dimensions > 0 {
		config.OutputDimensionality = &svc.dimensions
	}
	result, err := svc.client.Models.EmbedContent(
		ctx, svc.embedModel, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, config)
	if err != nil {
		return nil, errors.Wrap(err, "embedding with gemini")
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, errors.New("empty embedding from gemini")
	}
	return result.Embeddings[0].Values, nil
}
