package priorartsearch

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	systemPrompt     = "You are a patent search strategist and prior-art analyst. You produce conservative, structured outputs and do not invent facts."
	jsonInstruction  = "Return strict JSON only, with no prose and no markdown fences."
	defaultMaxTokens = 4096
)

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+)(\d{3})`)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is one model call. When JSON is set the caller asks the
// provider for a JSON payload; decoding is still done by the component.
type CompletionRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSON        bool
}

func userPrompt(system, prompt string, maxTokens int, temperature float64, asJSON bool) CompletionRequest {
	return CompletionRequest{
		System:      system,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		JSON:        asJSON,
	}
}

type LLMCaller interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
	model    string
}

type AnthropicClientCreator func(apiKey, baseURL string) AnthropicMessager

func defaultAnthropicCreator(apiKey, baseURL string) AnthropicMessager {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := anthropic.NewClient(opts...)
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicCaller(apiKey, baseURL, model string) (*AnthropicCaller, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key not configured")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultLLMModel
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey, strings.TrimSpace(baseURL)), model: model}, nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

func (a *AnthropicCaller) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	system := req.System
	if system == "" {
		system = systemPrompt
	}
	if req.JSON {
		system += " " + jsonInstruction
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(maxTokens),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    msgs,
		Temperature: anthropic.Float(req.Temperature),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

type llmFailureClass string

const (
	failureTimeout   llmFailureClass = "timeout"
	failureRateLimit llmFailureClass = "rate_limit"
	failureServer    llmFailureClass = "server"
	failureClient    llmFailureClass = "client"
	failureCanceled  llmFailureClass = "canceled"
	failureDecode    llmFailureClass = "decode"
)

func classifyFailure(err error) llmFailureClass {
	if errors.Is(err, context.Canceled) {
		return failureCanceled
	}
	if isTimeoutError(err) {
		return failureTimeout
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return failureDecode
	}
	var se *statusError
	if errors.As(err, &se) {
		return classifyStatus(se.Code)
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		switch {
		case m[1] == "429":
			return failureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return failureServer
		case strings.HasPrefix(m[1], "4"):
			return failureClient
		}
	}
	if strings.Contains(msg, "rate limit") {
		return failureRateLimit
	}
	return failureServer
}

func classifyStatus(code int) llmFailureClass {
	switch {
	case code == 429:
		return failureRateLimit
	case code >= 500:
		return failureServer
	default:
		return failureClient
	}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
