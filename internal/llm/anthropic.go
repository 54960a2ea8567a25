package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicClient is the Anthropic LLM client.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client. The caller supplies the
// credential; no package-level client is constructed.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Models returns available models.
func (c *AnthropicClient) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
}

// StreamTurn opens a streaming completion for one turn.
func (c *AnthropicClient) StreamTurn(ctx context.Context, req *TurnRequest) (TurnStream, error) {
	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]anthropic.MessageParam, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}

	if req.System != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(req.System),
		}})
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolParam, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = anthropic.ToolParam{
				Name:        anthropic.F(t.Name),
				Description: anthropic.F(t.Description),
				InputSchema: anthropic.F[interface{}](t.InputSchema),
			}
		}
		params.Tools = anthropic.F(tools)
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &anthropicTurnStream{stream: stream}, nil
}

// anthropicTurnStream translates Anthropic SSE events into adapter events.
type anthropicTurnStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEvent]

	// pending tool_use block being accumulated across input_json_delta events
	toolID    string
	toolName  string
	inputBuf  bytes.Buffer
	inTool    bool
	tokensIn  int
	tokensOut int
	stop      string
	ended     bool
}

func (s *anthropicTurnStream) Recv() (Event, error) {
	if s.ended {
		return Event{}, io.EOF
	}

	for s.stream.Next() {
		event := s.stream.Current()

		switch event.Type {
		case anthropic.MessageStreamEventTypeMessageStart:
			s.tokensIn = int(event.Message.Usage.InputTokens)

		case anthropic.MessageStreamEventTypeContentBlockStart:
			if event.ContentBlock.Type == anthropic.ContentBlockTypeToolUse {
				s.inTool = true
				s.toolID = event.ContentBlock.ID
				s.toolName = event.ContentBlock.Name
				s.inputBuf.Reset()
				return Event{
					Kind:     EventToolCallStart,
					ToolCall: &ToolCall{ID: s.toolID, Name: s.toolName},
				}, nil
			}

		case anthropic.MessageStreamEventTypeContentBlockDelta:
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					return Event{Kind: EventTextDelta, Text: event.Delta.Text}, nil
				}
			case "input_json_delta":
				s.inputBuf.WriteString(event.Delta.PartialJSON)
			}

		case anthropic.MessageStreamEventTypeContentBlockStop:
			if s.inTool {
				s.inTool = false
				input := s.inputBuf.Bytes()
				if len(input) == 0 {
					input = []byte("{}")
				}
				call := &ToolCall{
					ID:    s.toolID,
					Name:  s.toolName,
					Input: json.RawMessage(append([]byte(nil), input...)),
				}
				return Event{Kind: EventToolCallReady, ToolCall: call}, nil
			}

		case anthropic.MessageStreamEventTypeMessageDelta:
			s.stop = string(event.Delta.StopReason)
			s.tokensOut = int(event.Usage.OutputTokens)
		}
	}

	if err := s.stream.Err(); err != nil {
		return Event{}, err
	}

	s.ended = true
	return Event{
		Kind: EventTurnEnd,
		End: &TurnEnd{
			StopReason: s.stop,
			TokensIn:   s.tokensIn,
			TokensOut:  s.tokensOut,
		},
	}, nil
}

func (s *anthropicTurnStream) Close() error {
	return s.stream.Close()
}
