package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(&Config{Provider: "made-up"})
	assert.Error(t, err)
}

func TestNewClientAnthropicRequiresAPIKey(t *testing.T) {
	_, err := NewClient(&Config{Provider: "anthropic"})
	assert.Error(t, err)
}

func TestNewClientAppliesProviderDefaults(t *testing.T) {
	c, err := NewClient(&Config{Provider: "deepseek", APIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", c.model)
	assert.Equal(t, wireOpenAIChat, c.wire)
}

func TestGenerateAnthropicSendsMessagesAndParsesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "be terse", body["system"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "hello there"}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(&Config{Provider: "anthropic", APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := c.GenerateWithMessages(context.Background(), []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "summarize this"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestGenerateAnthropicErrorsOnEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": []map[string]string{}})
	}))
	defer srv.Close()

	c, err := NewClient(&Config{Provider: "anthropic", APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi")
	assert.Error(t, err)
}
