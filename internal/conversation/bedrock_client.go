package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type BedrockLLMClient struct {
	api     bedrockConverseAPI
	modelID string
}

func NewBedrockLLMClient(api bedrockConverseAPI, modelID string) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api, modelID: modelID}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	modelID := req.Model
	if strings.TrimSpace(modelID) == "" {
		modelID = c.modelID
	}
	if strings.TrimSpace(modelID) == "" {
		return LLMResponse{}, errors.New("conversation: bedrock model id is required")
	}
	ctx, span := conversationTracer.Start(ctx, "conversation.bedrock")
	defer span.End()

	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	// Converse rejects toolUse/toolResult blocks when no toolConfig is sent,
	// so a tool-less follow-up round carries the exchange as plain text.
	withTools := len(req.Tools) > 0
	messages, err := bedrockMessages(req.Messages, withTools)
	if err != nil {
		return LLMResponse{}, err
	}

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	// Allow callers to omit temperature by passing a negative value.
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP != 0 {
		inference.TopP = aws.Float32(req.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		inference = nil
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: inference,
	}
	if withTools {
		input.ToolConfig = bedrockToolConfig(req.Tools)
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, fmt.Errorf("conversation: bedrock converse failed: %w", err)
	}

	resp, err := bedrockExtractOutput(out)
	if err != nil {
		return LLMResponse{}, err
	}
	if out.StopReason != "" {
		resp.StopReason = string(out.StopReason)
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

func bedrockToolConfig(defs []ToolDefinition) *brtypes.ToolConfiguration {
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(def.Name),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(def.JSONSchema())},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

func bedrockMessages(in []ChatMessage, withTools bool) ([]brtypes.Message, error) {
	var messages []brtypes.Message
	push := func(role brtypes.ConversationRole, block brtypes.ContentBlock) {
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, block)
			return
		}
		messages = append(messages, brtypes.Message{Role: role, Content: []brtypes.ContentBlock{block}})
	}

	for _, msg := range in {
		content := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case ChatRoleSystem:
			continue
		case ChatRoleUser:
			if content == "" {
				continue
			}
			push(brtypes.ConversationRoleUser, &brtypes.ContentBlockMemberText{Value: content})
		case ChatRoleAssistant:
			if content != "" {
				push(brtypes.ConversationRoleAssistant, &brtypes.ContentBlockMemberText{Value: content})
			}
			for _, call := range msg.ToolCalls {
				if !withTools {
					push(brtypes.ConversationRoleAssistant, &brtypes.ContentBlockMemberText{
						Value: fmt.Sprintf("[consultei %s %s]", call.Name, call.Arguments),
					})
					continue
				}
				args := map[string]any{}
				if call.Arguments != "" {
					if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
						return nil, fmt.Errorf("conversation: bedrock tool call args: %w", err)
					}
				}
				push(brtypes.ConversationRoleAssistant, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(call.ID),
					Name:      aws.String(call.Name),
					Input:     document.NewLazyDocument(args),
				}})
			}
		case ChatRoleTool:
			if !withTools {
				push(brtypes.ConversationRoleUser, &brtypes.ContentBlockMemberText{
					Value: fmt.Sprintf("Resultado de %s: %s", msg.Name, msg.Content),
				})
				continue
			}
			push(brtypes.ConversationRoleUser, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(msg.ToolCallID),
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: msg.Content}},
			}})
		default:
			return nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}
	return messages, nil
}

func bedrockExtractOutput(out *bedrockruntime.ConverseOutput) (LLMResponse, error) {
	if out == nil {
		return LLMResponse{}, errors.New("conversation: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return LLMResponse{}, errors.New("conversation: bedrock response did not include a message output")
	}
	if len(msgOut.Value.Content) == 0 {
		return LLMResponse{}, errors.New("conversation: bedrock response message was empty")
	}

	var resp LLMResponse
	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			builder.WriteString(b.Value)
		case *brtypes.ContentBlockMemberToolUse:
			args := "{}"
			if b.Value.Input != nil {
				raw, err := b.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return LLMResponse{}, fmt.Errorf("conversation: bedrock tool input: %w", err)
				}
				args = string(raw)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: args,
			})
		}
	}
	resp.Text = strings.TrimSpace(builder.String())
	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		return LLMResponse{}, errors.New("conversation: bedrock response contained no text content blocks")
	}
	return resp, nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
