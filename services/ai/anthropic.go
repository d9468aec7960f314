package aisvc

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
)

type claudeService struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

var _ core.AIService = (*claudeService)(nil)

func NewClaudeService(conf *core.Config) core.AIService {
	model := conf.AI.Model
	if DetectProvider(model, "") != ProviderClaude {
		model = defaultClaudeModel
	}
	return &claudeService{
		client:      anthropic.NewClient(option.WithAPIKey(conf.AI.AnthropicAPIKey)),
		model:       model,
		maxTokens:   conf.AI.MaxTokens,
		temperature: conf.AI.Temperature,
	}
}

func (svc *claudeService) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	model := NormalizeModel(req.Model)
	if model == "" {
		model = svc.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = svc.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Documents)+1)
	for _, doc := range req.Documents {
		if doc.MIMEType != "application/pdf" {
			return "", errors.Errorf("unsupported document type %q", doc.MIMEType)
		}
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(doc.Data),
		}))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = svc.temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(temp)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := svc.client.Messages.New(ctx, params)
	if err != nil {
		return "", errors.Wrap(err, "calling claude")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("empty response from claude")
	}
	return text.String(), nil
}
