package conversation

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiContentsMapsToolExchange(t *testing.T) {
	contents, err := geminiContents([]ChatMessage{
		{Role: ChatRoleUser, Content: "oi"},
		{Role: ChatRoleUser, Content: "tem horário dia 5?"},
		{Role: ChatRoleAssistant, ToolCalls: []ToolCall{{ID: "g1", Name: ToolCheckAvailability, Arguments: `{"date":"2026-01-05"}`}}},
		{Role: ChatRoleTool, ToolCallID: "g1", Name: ToolCheckAvailability, Content: "Horários Disponíveis..."},
	})
	require.NoError(t, err)
	require.Len(t, contents, 3)

	assert.Equal(t, "user", contents[0].Role)
	assert.Len(t, contents[0].Parts, 2)

	call, ok := contents[1].Parts[0].(genai.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "2026-01-05", call.Args["date"])

	resp, ok := contents[2].Parts[0].(genai.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, "Horários Disponíveis...", resp.Response["result"])
}

func TestGeminiContentsRejectsBadArguments(t *testing.T) {
	_, err := geminiContents([]ChatMessage{
		{Role: ChatRoleAssistant, ToolCalls: []ToolCall{{Name: ToolCheckAvailability, Arguments: "{"}}},
	})
	require.Error(t, err)
}

func TestGeminiDeclarations(t *testing.T) {
	decls := geminiDeclarations(ToolDefinitions())
	require.Len(t, decls, 2)
	assert.Equal(t, ToolCheckAvailability, decls[0].Name)
	require.NotNil(t, decls[0].Parameters)
	assert.Equal(t, []string{"date"}, decls[0].Parameters.Required)
	assert.Contains(t, decls[0].Parameters.Properties, "professional_name")
}
