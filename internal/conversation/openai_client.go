package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
)

type openAIChatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient implements LLMClient with OpenAI chat completions and
// function tools.
type OpenAIClient struct {
	api   openAIChatAPI
	model string
}

// NewOpenAIClient wraps an OpenAI chat API. An empty model defaults to
// gpt-4o-mini.
func NewOpenAIClient(api openAIChatAPI, model string) *OpenAIClient {
	if api == nil {
		panic("conversation: openai client cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{api: api, model: model}
}

// NewOpenAIAPI builds the SDK client, honouring a custom base URL for
// compatible gateways.
func NewOpenAIAPI(apiKey, baseURL string) (*openai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: openai api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg), nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.openai")
	defer span.End()

	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: block})
	}
	for _, msg := range req.Messages {
		converted, err := toOpenAIMessage(msg)
		if err != nil {
			return LLMResponse{}, err
		}
		messages = append(messages, converted)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature >= 0 {
		chatReq.Temperature = req.Temperature
	}
	if req.TopP > 0 {
		chatReq.TopP = req.TopP
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = make([]openai.Tool, 0, len(req.Tools))
		for _, def := range req.Tools {
			chatReq.Tools = append(chatReq.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.JSONSchema(),
				},
			})
		}
		chatReq.ToolChoice = "auto"
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, fmt.Errorf("conversation: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("conversation: openai returned no choices")
		span.RecordError(err)
		return LLMResponse{}, err
	}

	choice := resp.Choices[0]
	out := LLMResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Int("concierge.openai.tool_calls", len(out.ToolCalls)),
			attribute.Int("concierge.openai.total_tokens", resp.Usage.TotalTokens),
		)
	}
	return out, nil
}

func toOpenAIMessage(msg ChatMessage) (openai.ChatCompletionMessage, error) {
	switch msg.Role {
	case ChatRoleSystem:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content}, nil
	case ChatRoleUser:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content}, nil
	case ChatRoleAssistant:
		out := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		return out, nil
	case ChatRoleTool:
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}, nil
	default:
		return openai.ChatCompletionMessage{}, fmt.Errorf("conversation: unsupported role %q", msg.Role)
	}
}
