package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type fakeOpenAI struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeOpenAI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestOpenAIClientMapsToolsAndCalls(t *testing.T) {
	api := &fakeOpenAI{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: openai.FinishReasonToolCalls,
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:       "call-1",
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: ToolCheckAvailability, Arguments: `{"date":"2026-01-05"}`},
				}},
			},
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	client := NewOpenAIClient(api, "")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"seja gentil", " "},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "tem horário?"}},
		Tools:       ToolDefinitions(),
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", api.req.Model)
	require.Len(t, api.req.Messages, 2, "blank system blocks are skipped")
	assert.Equal(t, openai.ChatMessageRoleSystem, api.req.Messages[0].Role)
	require.Len(t, api.req.Tools, 2)
	assert.Equal(t, ToolCheckAvailability, api.req.Tools[0].Function.Name)
	assert.Equal(t, "auto", api.req.ToolChoice)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
	assert.Equal(t, `{"date":"2026-01-05"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, int32(15), resp.Usage.TotalTokens)
	assert.Equal(t, "tool_calls", resp.StopReason)
}

func TestOpenAIClientCarriesToolResults(t *testing.T) {
	api := &fakeOpenAI{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: " Tenho 08:00. "}}},
	}}
	client := NewOpenAIClient(api, "gpt-test")

	resp, err := client.Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "amanhã"},
			{Role: ChatRoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: ToolCheckAvailability, Arguments: "{}"}}},
			{Role: ChatRoleTool, ToolCallID: "c1", Name: ToolCheckAvailability, Content: "Horários..."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tenho 08:00.", resp.Text)
	assert.Empty(t, api.req.Tools)
	require.Len(t, api.req.Messages, 3)
	assert.Equal(t, "c1", api.req.Messages[2].ToolCallID)
	assert.Equal(t, "c1", api.req.Messages[1].ToolCalls[0].ID)
}

func TestOpenAIClientErrors(t *testing.T) {
	client := NewOpenAIClient(&fakeOpenAI{err: errors.New("429")}, "")
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}})
	require.Error(t, err)

	empty := NewOpenAIClient(&fakeOpenAI{}, "")
	_, err = empty.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}})
	require.Error(t, err)

	_, err = empty.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: "robot", Content: "oi"}}})
	require.Error(t, err)
}

type fakeConverse struct {
	inputs []*bedrockruntime.ConverseInput
	out    *bedrockruntime.ConverseOutput
	err    error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.inputs = append(f.inputs, in)
	return f.out, f.err
}

func TestBedrockClientParsesToolUse(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		StopReason: brtypes.StopReasonToolUse,
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role: brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String("tu-1"),
					Name:      aws.String(ToolListProfessionals),
					Input:     document.NewLazyDocument(map[string]any{}),
				}},
			},
		}},
		Usage: &brtypes.TokenUsage{InputTokens: aws.Int32(7), OutputTokens: aws.Int32(3), TotalTokens: aws.Int32(10)},
	}}
	client := NewBedrockLLMClient(api, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"persona"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "quem atende?"}},
		Tools:       ToolDefinitions(),
		Temperature: 0.7,
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu-1", resp.ToolCalls[0].ID)
	assert.Equal(t, ToolListProfessionals, resp.ToolCalls[0].Name)
	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, int32(10), resp.Usage.TotalTokens)

	require.Len(t, api.inputs, 1)
	require.NotNil(t, api.inputs[0].ToolConfig)
	assert.Len(t, api.inputs[0].ToolConfig.Tools, 2)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.inputs[0].ModelId))
}

func TestBedrockMessagesFlattenToolsWithoutConfig(t *testing.T) {
	history := []ChatMessage{
		{Role: ChatRoleUser, Content: "tem horário amanhã?"},
		{Role: ChatRoleAssistant, ToolCalls: []ToolCall{{ID: "tu-1", Name: ToolCheckAvailability, Arguments: `{"date":"2026-01-05"}`}}},
		{Role: ChatRoleTool, ToolCallID: "tu-1", Name: ToolCheckAvailability, Content: "Horários Disponíveis..."},
	}

	withTools, err := bedrockMessages(history, true)
	require.NoError(t, err)
	require.Len(t, withTools, 3)
	_, isToolUse := withTools[1].Content[0].(*brtypes.ContentBlockMemberToolUse)
	assert.True(t, isToolUse)
	_, isResult := withTools[2].Content[0].(*brtypes.ContentBlockMemberToolResult)
	assert.True(t, isResult)

	flat, err := bedrockMessages(history, false)
	require.NoError(t, err)
	require.Len(t, flat, 3)
	for _, msg := range flat {
		for _, block := range msg.Content {
			_, isText := block.(*brtypes.ContentBlockMemberText)
			assert.True(t, isText)
		}
	}
	last := flat[2].Content[0].(*brtypes.ContentBlockMemberText)
	assert.Contains(t, last.Value, "Horários Disponíveis")
}

func TestBedrockMessagesMergeConsecutiveRoles(t *testing.T) {
	msgs, err := bedrockMessages([]ChatMessage{
		{Role: ChatRoleUser, Content: "oi"},
		{Role: ChatRoleUser, Content: "tudo bem?"},
		{Role: ChatRoleAssistant, Content: "Olá!"},
	}, false)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Content, 2)
}

func TestBedrockClientRejectsEmptyOutput(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{Role: brtypes.ConversationRoleAssistant}},
	}}
	_, err := NewBedrockLLMClient(api, "m").Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}},
	})
	require.Error(t, err)

	_, err = NewBedrockLLMClient(api, "").Complete(context.Background(), LLMRequest{})
	require.Error(t, err)
}

func TestFallbackClient(t *testing.T) {
	primary := &scriptedLLM{errs: []error{errors.New("throttled")}}
	fallback := &scriptedLLM{responses: []LLMResponse{{Text: "ok"}}}
	client := NewFallbackLLMClient(primary, fallback, logging.Discard())

	resp, err := client.Complete(context.Background(), LLMRequest{Model: "primary-model"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	require.Equal(t, 1, fallback.calls())
	assert.Empty(t, fallback.requests[0].Model)
}

func TestFallbackClientSkipsFallbackWhenCancelled(t *testing.T) {
	primary := &scriptedLLM{errs: []error{context.Canceled}}
	fallback := &scriptedLLM{responses: []LLMResponse{{Text: "ok"}}}
	client := NewFallbackLLMClient(primary, fallback, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, LLMRequest{})
	require.Error(t, err)
	assert.Equal(t, 0, fallback.calls())

	noFallback := NewFallbackLLMClient(&scriptedLLM{errs: []error{errors.New("x")}}, nil, nil)
	_, err = noFallback.Complete(context.Background(), LLMRequest{})
	require.Error(t, err)
}

func TestDecodeArguments(t *testing.T) {
	args, err := decodeArguments(`{"date":"2026-01-05","professional_name":null,"n":2}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"date": "2026-01-05", "n": "2"}, args)

	_, err = decodeArguments("{")
	require.Error(t, err)
}
