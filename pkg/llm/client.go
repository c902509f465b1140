package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mnemohq/mnemo/pkg/core"
)

// wire identifies which HTTP contract a provider name speaks. Every vendor
// Mnemo has seen in the field reduces to one of these two shapes, so one
// Client handles all of them rather than one hand-rolled package per
// vendor.
type wire string

const (
	wireOpenAIChat    wire = "openai-chat"
	wireAnthropicMsgs wire = "anthropic-messages"
)

type providerDefaults struct {
	wire    wire
	baseURL string
	model   string
}

// knownProviders maps a core.SummarizerConfig.Provider name to the wire
// format and defaults needed to reach it. deepseek, qwen (compatible-mode),
// and ollama (its /v1 shim) all speak OpenAI's chat-completions contract,
// so they differ from "openai" only in base URL and default model.
var knownProviders = map[string]providerDefaults{
	"openai":    {wireOpenAIChat, "", "gpt-4"},
	"deepseek":  {wireOpenAIChat, "https://api.deepseek.com/v1", "deepseek-chat"},
	"qwen":      {wireOpenAIChat, "https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-plus"},
	"ollama":    {wireOpenAIChat, "http://localhost:11434/v1", "llama3.1:70b"},
	"anthropic": {wireAnthropicMsgs, "https://api.anthropic.com", "claude-3-5-sonnet-20240620"},
}

// Config configures Client for one named provider (see knownProviders for
// the supported names).
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Client implements Provider against either of Mnemo's two supported wire
// contracts. Which one is fixed at construction by Config.Provider.
type Client struct {
	wire  wire
	model string

	oa *openai.Client // wireOpenAIChat

	http    *http.Client // wireAnthropicMsgs
	apiKey  string
	baseURL string
}

// NewClient builds the Client for cfg.Provider, applying that provider's
// defaults for anything cfg leaves blank.
func NewClient(cfg *Config) (*Client, error) {
	defaults, ok := knownProviders[cfg.Provider]
	if !ok {
		return nil, core.NewEngineError("llm.NewClient", core.KindValidation,
			fmt.Errorf("unknown summarizer provider %q", cfg.Provider))
	}

	model := cfg.Model
	if model == "" {
		model = defaults.model
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaults.baseURL
	}

	if defaults.wire == wireAnthropicMsgs {
		if cfg.APIKey == "" {
			return nil, core.NewEngineError("llm.NewClient", core.KindValidation,
				errors.New("api key is required for anthropic"))
		}
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 120 * time.Second}
		}
		return &Client{wire: wireAnthropicMsgs, model: model, http: httpClient, apiKey: cfg.APIKey, baseURL: baseURL}, nil
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		oaCfg.BaseURL = baseURL
	}
	if cfg.HTTPClient != nil {
		oaCfg.HTTPClient = cfg.HTTPClient
	}
	return &Client{wire: wireOpenAIChat, model: model, oa: openai.NewClientWithConfig(oaCfg)}, nil
}

// Generate implements Provider.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []Message{{Role: "user", Content: prompt}}, opts...)
}

// GenerateWithMessages implements Provider.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error) {
	options := ApplyGenerateOptions(opts)
	if c.wire == wireAnthropicMsgs {
		return c.generateAnthropic(ctx, messages, options)
	}
	return c.generateOpenAI(ctx, messages, options)
}

func (c *Client) generateOpenAI(ctx context.Context, messages []Message, options *GenerateOptions) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	resp, err := c.oa.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	})
	if err != nil {
		return "", core.NewEngineError("llm.Generate", core.KindLLM, err)
	}
	if len(resp.Choices) == 0 {
		return "", core.NewEngineError("llm.Generate", core.KindLLM, errors.New("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

// generateAnthropic speaks the Messages API directly: no SDK in the
// corpus covers it, and system messages must travel as a top-level field
// rather than inside the messages array.
func (c *Client) generateAnthropic(ctx context.Context, messages []Message, options *GenerateOptions) (string, error) {
	var system string
	turns := make([]map[string]string, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
			continue
		}
		turns = append(turns, map[string]string{"role": msg.Role, "content": msg.Content})
	}

	body := map[string]interface{}{
		"model":       c.model,
		"max_tokens":  options.MaxTokens,
		"temperature": options.Temperature,
		"top_p":       options.TopP,
		"messages":    turns,
	}
	if system != "" {
		body["system"] = system
	}
	if len(options.Stop) > 0 {
		body["stop_sequences"] = options.Stop
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", core.NewEngineError("llm.Generate", core.KindValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", core.NewEngineError("llm.Generate", core.KindValidation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", core.NewEngineError("llm.Generate", core.KindLLM, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", core.NewEngineError("llm.Generate", core.KindLLM,
			fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, msg))
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", core.NewEngineError("llm.Generate", core.KindLLM, err)
	}
	if len(parsed.Content) == 0 {
		return "", core.NewEngineError("llm.Generate", core.KindLLM, errors.New("no content returned"))
	}
	return parsed.Content[0].Text, nil
}

// Close implements Provider. Neither wire format keeps a connection open.
func (c *Client) Close() error {
	return nil
}
