// Package reacttest provides scripted model clients for tests.
package reacttest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/malbeclabs/sensorlake/pkg/agent/react"
)

// Turn is one scripted model reply. Tool, when set, adds a tool call with
// Args encoded as JSON, or Raw verbatim when Raw is set. Err fails the call.
type Turn struct {
	Text string
	Tool string
	Args map[string]any
	Raw  string
	Err  error
}

// LLM replays Turns in order, one per Call. Calls past the script get an
// empty reply.
type LLM struct {
	Turns []Turn

	mu    sync.Mutex
	next  int
	calls int
	seen  [][]react.Message
}

func (l *LLM) Call(ctx context.Context, messages []react.Message, tools []react.Tool) (react.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.seen = append(l.seen, append([]react.Message(nil), messages...))
	if l.next >= len(l.Turns) {
		return response{}, nil
	}
	t := l.Turns[l.next]
	l.next++
	if t.Err != nil {
		return nil, t.Err
	}
	return response(t), nil
}

func (l *LLM) ConvertToolResults(toolUses []react.ToolUse, results []react.ToolResult) ([]react.Message, error) {
	msgs := make([]react.Message, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, react.GenericMessage{Role: "tool", Content: r.Content})
	}
	return msgs, nil
}

func (l *LLM) CreateUserMessage(content string) react.Message {
	return react.GenericMessage{Role: "user", Content: content}
}

// Calls returns how many times Call was invoked.
func (l *LLM) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Seen returns the messages passed to each Call.
func (l *LLM) Seen() [][]react.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]react.Message(nil), l.seen...)
}

type response Turn

func (r response) Content() []react.ContentBlock {
	var blocks []react.ContentBlock
	if r.Text != "" {
		blocks = append(blocks, textBlock(r.Text))
	}
	if r.Tool != "" {
		input := []byte(r.Raw)
		if r.Raw == "" {
			input, _ = json.Marshal(r.Args)
		}
		blocks = append(blocks, toolBlock{name: r.Tool, input: input})
	}
	return blocks
}

func (r response) ToMessage() react.Message {
	return react.GenericMessage{Role: "assistant", Content: r.Text}
}

type textBlock string

func (b textBlock) AsText() (string, bool) { return string(b), true }

func (b textBlock) AsToolUse() (string, string, []byte, bool) { return "", "", nil, false }

type toolBlock struct {
	name  string
	input []byte
}

func (b toolBlock) AsText() (string, bool) { return "", false }

func (b toolBlock) AsToolUse() (string, string, []byte, bool) {
	return "toolu_" + b.name, b.name, b.input, true
}

// Completer returns Out, or Err, for every call and records the last
// prompts. OnComplete, when set, runs first.
type Completer struct {
	Out        string
	Err        error
	OnComplete func()

	mu     sync.Mutex
	system string
	user   string
}

func (c *Completer) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.system, c.user = systemPrompt, userPrompt
	c.mu.Unlock()
	if c.OnComplete != nil {
		c.OnComplete()
	}
	return c.Out, c.Err
}

// LastPrompts returns the system and user prompt of the last call.
func (c *Completer) LastPrompts() (system, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.system, c.user
}
