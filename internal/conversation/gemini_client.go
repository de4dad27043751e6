package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLMClient implements LLMClient using Google's Gemini API with
// function declarations.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}

	return &GeminiLLMClient{
		client:  client,
		modelID: modelID,
	}, nil
}

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.gemini")
	defer span.End()

	model := c.client.GenerativeModel(c.modelID)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if systemText := strings.TrimSpace(strings.Join(req.System, "\n\n")); systemText != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: geminiDeclarations(req.Tools)}}
	}

	contents, err := geminiContents(req.Messages)
	if err != nil {
		return LLMResponse{}, err
	}
	if len(contents) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini requires at least one message")
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned empty content")
	}

	var text strings.Builder
	result := LLMResponse{StopReason: candidate.FinishReason.String()}
	for i, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return LLMResponse{}, fmt.Errorf("conversation: gemini function args: %w", err)
			}
			// Gemini has no call ids; responses are matched by name and order.
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("gemini-%d-%s", i, p.Name),
				Name:      p.Name,
				Arguments: string(args),
			})
		}
	}
	result.Text = strings.TrimSpace(text.String())

	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}

	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func geminiDeclarations(defs []ToolDefinition) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		}
		for _, p := range def.Parameters {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decl := &genai.FunctionDeclaration{Name: def.Name, Description: def.Description}
		if len(def.Parameters) > 0 {
			decl.Parameters = schema
		}
		out = append(out, decl)
	}
	return out
}

// geminiContents converts the chat into Gemini contents, merging consecutive
// turns of the same role since Gemini expects strict alternation.
func geminiContents(messages []ChatMessage) ([]*genai.Content, error) {
	var contents []*genai.Content
	appendPart := func(role string, part genai.Part) {
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{part}})
	}

	for _, msg := range messages {
		switch msg.Role {
		case ChatRoleSystem:
			continue
		case ChatRoleUser:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			appendPart("user", genai.Text(msg.Content))
		case ChatRoleAssistant:
			if strings.TrimSpace(msg.Content) != "" {
				appendPart("model", genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := map[string]any{}
				if call.Arguments != "" {
					if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
						return nil, fmt.Errorf("conversation: gemini tool call args: %w", err)
					}
				}
				appendPart("model", genai.FunctionCall{Name: call.Name, Args: args})
			}
		case ChatRoleTool:
			appendPart("user", genai.FunctionResponse{
				Name:     msg.Name,
				Response: map[string]any{"result": msg.Content},
			})
		default:
			return nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}
	return contents, nil
}
