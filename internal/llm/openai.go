package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIClient is the OpenAI LLM client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Models returns available models.
func (c *OpenAIClient) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	}
}

// StreamTurn opens a streaming completion for one turn.
func (c *OpenAIClient) StreamTurn(ctx context.Context, req *TurnRequest) (TurnStream, error) {
	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
		Stream:      true,
	}

	for _, t := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	return &openaiTurnStream{stream: stream}, nil
}

// pendingCall accumulates a tool call's arguments across streamed deltas.
type pendingCall struct {
	id   string
	name string
	args bytes.Buffer
}

// openaiTurnStream translates OpenAI chat completion chunks into adapter
// events. OpenAI interleaves tool-call argument fragments keyed by index;
// calls optionally flush in index order once the turn finishes.
type openaiTurnStream struct {
	stream *openai.ChatCompletionStream

	calls   []*pendingCall
	queue   []Event
	stop    string
	charOut int
	ended   bool
}

func (s *openaiTurnStream) Recv() (Event, error) {
	for {
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if s.ended {
			return Event{}, io.EOF
		}

		response, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.finish()
			continue
		}
		if err != nil {
			return Event{}, err
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.FinishReason != "" {
			s.stop = string(choice.FinishReason)
		}

		if choice.Delta.Content != "" {
			s.charOut += len(choice.Delta.Content)
			return Event{Kind: EventTextDelta, Text: choice.Delta.Content}, nil
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			for len(s.calls) <= idx {
				s.calls = append(s.calls, nil)
			}
			if s.calls[idx] == nil {
				s.calls[idx] = &pendingCall{id: tc.ID, name: tc.Function.Name}
				s.queue = append(s.queue, Event{
					Kind:     EventToolCallStart,
					ToolCall: &ToolCall{ID: tc.ID, Name: tc.Function.Name},
				})
			}
			s.calls[idx].args.WriteString(tc.Function.Arguments)
		}
	}
}

// finish flushes completed tool calls and queues the turn-end event.
func (s *openaiTurnStream) finish() {
	for _, call := range s.calls {
		if call == nil {
			continue
		}
		input := call.args.Bytes()
		if len(input) == 0 {
			input = []byte("{}")
		}
		s.queue = append(s.queue, Event{
			Kind: EventToolCallReady,
			ToolCall: &ToolCall{
				ID:    call.id,
				Name:  call.name,
				Input: json.RawMessage(append([]byte(nil), input...)),
			},
		})
	}
	s.calls = nil

	// OpenAI does not report token usage on streamed turns.
	s.queue = append(s.queue, Event{
		Kind: EventTurnEnd,
		End: &TurnEnd{
			StopReason: s.stop,
			TokensOut:  s.charOut / 4,
		},
	})
	s.ended = true
}

func (s *openaiTurnStream) Close() error {
	return s.stream.Close()
}
