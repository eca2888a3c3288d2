package react

import (
	"context"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// NewAnthropicSDKClient returns an SDK client with its own retries disabled;
// retries and timeouts are applied by RetryingLLM and RetryingCompleter.
func NewAnthropicSDKClient(apiKey string) anthropic.Client {
	return anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
}

// AnthropicAgent implements LLMClient for Anthropic.
type AnthropicAgent struct {
	client          anthropic.Client
	model           anthropic.Model
	maxOutputTokens int64
	temperature     float64
	system          string
}

// NewAnthropicAgent creates a new Anthropic LLM client.
func NewAnthropicAgent(client anthropic.Client, model anthropic.Model, maxOutputTokens int64, temperature float64, system string) *AnthropicAgent {
	return &AnthropicAgent{
		client:          client,
		model:           model,
		maxOutputTokens: maxOutputTokens,
		temperature:     temperature,
		system:          system,
	}
}

// Call sends messages to Anthropic and returns a response.
func (a *AnthropicAgent) Call(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	anthropicMsgs := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		param, err := toAnthropicMessage(msg)
		if err != nil {
			return nil, err
		}
		anthropicMsgs = append(anthropicMsgs, param)
	}

	params := anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   a.maxOutputTokens,
		Temperature: anthropic.Float(a.temperature),
		Messages:    anthropicMsgs,
		Tools:       toAnthropicTools(tools),
	}
	if a.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	return anthropicResponse{resp: resp}, nil
}

// ConvertToolResults converts tool results to Anthropic messages.
func (a *AnthropicAgent) ConvertToolResults(toolUses []ToolUse, results []ToolResult) ([]Message, error) {
	toolResults := make([]anthropic.ContentBlockParamUnion, 0, len(results))
	for _, result := range results {
		toolResults = append(toolResults, anthropic.NewToolResultBlock(result.ID, result.Content, result.IsError))
	}
	msg := anthropic.NewUserMessage(toolResults...)
	return []Message{AnthropicMessage{Msg: msg}}, nil
}

// CreateUserMessage creates a user message in Anthropic format.
func (a *AnthropicAgent) CreateUserMessage(content string) Message {
	return AnthropicMessage{Msg: anthropic.NewUserMessage(anthropic.NewTextBlock(content))}
}

// AnthropicMessage wraps Anthropic's MessageParam to implement react.Message.
type AnthropicMessage struct {
	Msg anthropic.MessageParam
}

func (m AnthropicMessage) ToParam() any {
	return m.Msg
}

func toAnthropicMessage(msg Message) (anthropic.MessageParam, error) {
	switch p := msg.ToParam().(type) {
	case anthropic.MessageParam:
		return p, nil
	case GenericMessage:
		block := anthropic.NewTextBlock(p.Content)
		if p.Role == "assistant" {
			return anthropic.NewAssistantMessage(block), nil
		}
		return anthropic.NewUserMessage(block), nil
	default:
		return anthropic.MessageParam{}, fmt.Errorf("expected anthropic.MessageParam, got %T", p)
	}
}

// anthropicResponse wraps Anthropic's response to implement react.Response.
type anthropicResponse struct {
	resp *anthropic.Message
}

func (r anthropicResponse) Content() []ContentBlock {
	blocks := make([]ContentBlock, len(r.resp.Content))
	for i, blk := range r.resp.Content {
		blocks[i] = anthropicContentBlock{blk}
	}
	return blocks
}

func (r anthropicResponse) ToMessage() Message {
	return AnthropicMessage{Msg: r.resp.ToParam()}
}

// anthropicContentBlock wraps Anthropic's ContentBlockUnion to implement react.ContentBlock.
type anthropicContentBlock struct {
	blk anthropic.ContentBlockUnion
}

func (b anthropicContentBlock) AsText() (string, bool) {
	text := b.blk.AsText()
	if text.Text == "" {
		return "", false
	}
	return text.Text, true
}

func (b anthropicContentBlock) AsToolUse() (string, string, []byte, bool) {
	tu := b.blk.AsToolUse()
	if tu.ID == "" || tu.Name == "" {
		return "", "", nil, false
	}
	return tu.ID, tu.Name, tu.Input, true
}

// toAnthropicTools converts tools to Anthropic tool parameters.
func toAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		props, _ := t.InputSchema["properties"].(map[string]any)
		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.Opt(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   requiredFields(t.InputSchema["required"]),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out
}

// requiredFields accepts both []string and the []any produced by a JSON
// round trip.
func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, f := range r {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// AnthropicCompleter implements Completer using the Anthropic API.
type AnthropicCompleter struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
}

func NewAnthropicCompleter(client anthropic.Client, model anthropic.Model, maxTokens int64, temperature float64) *AnthropicCompleter {
	return &AnthropicCompleter{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete sends a prompt and returns the text of the response.
func (c *AnthropicCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
