package priorartsearch

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAICaller talks to any OpenAI-compatible chat endpoint (OpenAI, Azure
// deployments behind a compatible gateway, vLLM, Ollama).
type OpenAICaller struct {
	model llms.Model
	name  string
}

func NewOpenAICaller(apiKey, baseURL, model string) (*OpenAICaller, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("openai model not configured")
	}
	token := strings.TrimSpace(apiKey)
	if token == "" {
		// local compatible services accept any token
		token = "none"
	}
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(model)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &OpenAICaller{model: client, name: model}, nil
}

func (o *OpenAICaller) ModelName() string { return o.name }

func (o *OpenAICaller) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	system := req.System
	if system == "" {
		system = systemPrompt
	}
	if req.JSON {
		system += " " + jsonInstruction
	}
	content := []llms.MessageContent{{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(system)},
	}}
	for _, m := range req.Messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.MessageContent{Role: role, Parts: []llms.ContentPart{llms.TextPart(m.Content)}})
	}

	callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSON {
		callOpts = append(callOpts, llms.WithJSONMode())
	}
	resp, err := o.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned from model")
	}
	return resp.Choices[0].Content, nil
}
