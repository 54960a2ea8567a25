package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftpad-ai/artifact-platform/internal/gateway"
	"github.com/craftpad-ai/artifact-platform/internal/llm"
	"github.com/craftpad-ai/artifact-platform/internal/mode"
	"github.com/craftpad-ai/artifact-platform/internal/model"
	"github.com/craftpad-ai/artifact-platform/internal/store"
	"github.com/craftpad-ai/artifact-platform/internal/tool"
	"github.com/craftpad-ai/artifact-platform/pkg/logger"
)

// scriptedStream replays a fixed event sequence, then optionally hangs until
// closed.
type scriptedStream struct {
	mu     sync.Mutex
	events []llm.Event
	hang   bool
	done   chan struct{}
	once   sync.Once
}

func newScriptedStream(hang bool, events ...llm.Event) *scriptedStream {
	return &scriptedStream{events: events, hang: hang, done: make(chan struct{})}
}

func (s *scriptedStream) Recv() (llm.Event, error) {
	s.mu.Lock()
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()

	if s.hang {
		<-s.done
	}
	return llm.Event{}, io.EOF
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// fakeClient hands out scripted streams and records how it was called.
type fakeClient struct {
	mu      sync.Mutex
	streams []llm.TurnStream
	err     error
	calls   int
	lastReq *llm.TurnRequest
}

func (c *fakeClient) StreamTurn(ctx context.Context, req *llm.TurnRequest) (llm.TurnStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	if len(c.streams) == 0 {
		return nil, errors.New("no scripted stream")
	}
	s := c.streams[0]
	c.streams = c.streams[1:]
	return s, nil
}

func (c *fakeClient) Name() string     { return "fake" }
func (c *fakeClient) Models() []string { return nil }

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordSink captures emitted events and close calls.
type recordSink struct {
	mu      sync.Mutex
	events  []model.StreamEvent
	closed  int
	onEvent func(model.StreamEvent)
}

func (s *recordSink) Send(ev model.StreamEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	hook := s.onEvent
	s.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return nil
}

func (s *recordSink) Close() {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
}

func (s *recordSink) byType(t model.StreamEventType) []model.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.StreamEvent
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordSink) deltaText() string {
	var text string
	for _, ev := range s.byType(model.StreamEventTextDelta) {
		text += ev.Delta.Text
	}
	return text
}

// failGateway fails every call, forcing the transient-conversation path.
type failGateway struct{}

var errGatewayDown = errors.New("gateway down")

func (failGateway) CreateConversation(context.Context, string, string, *model.CreateConversationRequest) (*model.Conversation, error) {
	return nil, errGatewayDown
}
func (failGateway) GetConversation(context.Context, string, string) (*model.Conversation, error) {
	return nil, errGatewayDown
}
func (failGateway) ListConversations(context.Context, string, int, int) (*model.ListConversationsResponse, error) {
	return nil, errGatewayDown
}
func (failGateway) UpdateConversation(context.Context, string, string, *model.UpdateConversationRequest) (*model.Conversation, error) {
	return nil, errGatewayDown
}
func (failGateway) DeleteConversation(context.Context, string, string) error { return errGatewayDown }
func (failGateway) AddMessage(context.Context, *model.Message) (uint64, error) {
	return 0, errGatewayDown
}
func (failGateway) History(context.Context, string, string, int) ([]model.Message, error) {
	return nil, errGatewayDown
}

type fixture struct {
	orch     *Orchestrator
	client   *fakeClient
	gateway  gateway.Gateway
	store    store.ArtifactStore
	registry *tool.Registry
}

func newFixture(t *testing.T, client *fakeClient, gw gateway.Gateway) *fixture {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	registry := tool.NewRegistry()
	tool.RegisterArtifactTools(registry, s)
	executor := tool.NewExecutor(registry)
	policy := mode.NewPolicy(registry.ReadOnlyNames())

	orch := New(gw, client, registry, executor, policy, logger.NewNop(), Options{
		IdleTimeout: 2 * time.Second,
		ToolTimeout: 5 * time.Second,
	})
	return &fixture{orch: orch, client: client, gateway: gw, store: s, registry: registry}
}

func turnEnd() llm.Event {
	return llm.Event{Kind: llm.EventTurnEnd, End: &llm.TurnEnd{StopReason: "end_turn"}}
}

func textDelta(text string) llm.Event {
	return llm.Event{Kind: llm.EventTextDelta, Text: text}
}

func toolStart(id, name string) llm.Event {
	return llm.Event{Kind: llm.EventToolCallStart, ToolCall: &llm.ToolCall{ID: id, Name: name}}
}

func toolReady(id, name, input string) llm.Event {
	return llm.Event{Kind: llm.EventToolCallReady, ToolCall: &llm.ToolCall{
		ID: id, Name: name, Input: json.RawMessage(input),
	}}
}

func TestPrepareRejectsEmptyMessageBeforeAnyAdapterCall(t *testing.T) {
	client := &fakeClient{}
	f := newFixture(t, client, gateway.NewMemory())

	for _, message := range []string{"", "   ", "\n\t "} {
		_, err := f.orch.Prepare(context.Background(), "tenant-1", "user-1", &model.ChatRequest{Message: message})
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Zero(t, client.callCount(), "no model stream may be opened for an invalid request")
}

func TestPrepareRejectsUnknownConversation(t *testing.T) {
	f := newFixture(t, &fakeClient{}, gateway.NewMemory())

	_, err := f.orch.Prepare(context.Background(), "tenant-1", "user-1", &model.ChatRequest{
		Message:        "hello",
		ConversationID: "no-such-conversation",
	})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestPrepareDegradesToTransientConversationOnGatewayFailure(t *testing.T) {
	f := newFixture(t, &fakeClient{}, failGateway{})

	turn, err := f.orch.Prepare(context.Background(), "tenant-1", "user-1", &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.True(t, turn.Conversation.Transient)
	assert.NotEmpty(t, turn.Conversation.ID)
}

func TestChatTurnStreamsTextAndPersistsTranscript(t *testing.T) {
	client := &fakeClient{streams: []llm.TurnStream{
		newScriptedStream(false, textDelta("Hello"), textDelta(", "), textDelta("world"), turnEnd()),
	}}
	gw := gateway.NewMemory()
	f := newFixture(t, client, gw)
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hello", Mode: "chat"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	// Deltas reassemble by append order into the persisted content.
	assert.Equal(t, "Hello, world", sink.deltaText())

	history, err := gw.History(ctx, "tenant-1", turn.Conversation.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2, "exactly one user and one assistant message")
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello, world", history[1].Content)

	// Zero tool events in a text-only chat turn.
	assert.Empty(t, sink.byType(model.StreamEventToolExecution))

	completes := sink.byType(model.StreamEventComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, 0, *completes[0].ToolsExecuted)
	assert.Equal(t, len("Hello, world"), *completes[0].MessageLength)
	assert.Equal(t, 1, sink.closed)
}

func TestModeStatusReportsFilteredManifest(t *testing.T) {
	client := &fakeClient{streams: []llm.TurnStream{newScriptedStream(false, turnEnd())}}
	f := newFixture(t, client, gateway.NewMemory())
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hi", Mode: "chat"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	statuses := sink.byType(model.StreamEventModeStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, model.ModeChat, statuses[0].Mode)
	assert.Equal(t, 2, *statuses[0].ToolsAvailable, "chat mode exposes only the read-only tools")

	// The adapter manifest is filtered the same way.
	require.NotNil(t, client.lastReq)
	var names []string
	for _, def := range client.lastReq.Tools {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []string{"get_artifact", "list_artifacts"}, names)
}

func TestAgentTurnExecutesToolInOrder(t *testing.T) {
	input := `{"kind":"code","title":"button","content":"<Button/>","language":"tsx"}`
	client := &fakeClient{streams: []llm.TurnStream{
		newScriptedStream(false,
			textDelta("Creating the artifact now."),
			toolStart("call-1", "create_artifact"),
			toolReady("call-1", "create_artifact", input),
			turnEnd(),
		),
	}}
	gw := gateway.NewMemory()
	f := newFixture(t, client, gw)
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "build a button", Mode: "agent"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	toolEvents := sink.byType(model.StreamEventToolExecution)
	require.Len(t, toolEvents, 3, "exactly one starting/executing/completed sequence")
	assert.Equal(t, model.ToolStatusStarting, toolEvents[0].Status)
	assert.Equal(t, model.ToolStatusExecuting, toolEvents[1].Status)
	assert.Equal(t, model.ToolStatusCompleted, toolEvents[2].Status)
	assert.NotNil(t, toolEvents[2].Result)

	completes := sink.byType(model.StreamEventComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, 1, *completes[0].ToolsExecuted)

	// The side effect landed in the artifact store.
	artifacts, err := f.store.List(ctx, "tenant-1", turn.Conversation.ID, 10)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "button", artifacts[0].Title)
}

func TestChatModeBlocksMidStreamToolCall(t *testing.T) {
	input := `{"kind":"code","title":"button","content":"<Button/>"}`
	client := &fakeClient{streams: []llm.TurnStream{
		newScriptedStream(false,
			toolStart("call-1", "create_artifact"),
			toolReady("call-1", "create_artifact", input),
			textDelta("I can't modify artifacts in chat mode."),
			turnEnd(),
		),
	}}
	f := newFixture(t, client, gateway.NewMemory())
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "build a button", Mode: "chat"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	// The denial is an error-class event naming the blocked tool; no
	// invocation is created.
	errs := sink.byType(model.StreamEventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "create_artifact")
	assert.NotEmpty(t, errs[0].Suggestion)
	assert.Empty(t, sink.byType(model.StreamEventToolExecution))

	completes := sink.byType(model.StreamEventComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, 0, *completes[0].ToolsExecuted)

	// Nothing was written to the store.
	artifacts, err := f.store.List(ctx, "tenant-1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestDuplicateToolEventsExecuteOnce(t *testing.T) {
	input := `{"kind":"code","title":"button","content":"<Button/>"}`
	client := &fakeClient{streams: []llm.TurnStream{
		newScriptedStream(false,
			toolStart("call-1", "create_artifact"),
			toolStart("call-1", "create_artifact"),
			toolReady("call-1", "create_artifact", input),
			toolReady("call-1", "create_artifact", input),
			turnEnd(),
		),
	}}
	f := newFixture(t, client, gateway.NewMemory())
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "build", Mode: "agent"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	toolEvents := sink.byType(model.StreamEventToolExecution)
	require.Len(t, toolEvents, 3)

	artifacts, err := f.store.List(ctx, "tenant-1", turn.Conversation.ID, 10)
	require.NoError(t, err)
	assert.Len(t, artifacts, 1, "duplicate adapter events must not execute the tool twice")
}

func TestToolFailureIsIsolated(t *testing.T) {
	// update_artifact against a missing id fails, but the stream continues.
	client := &fakeClient{streams: []llm.TurnStream{
		newScriptedStream(false,
			toolStart("call-1", "update_artifact"),
			toolReady("call-1", "update_artifact", `{"id":"missing","title":"x"}`),
			textDelta("That artifact no longer exists."),
			turnEnd(),
		),
	}}
	f := newFixture(t, client, gateway.NewMemory())
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "rename it", Mode: "agent"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	toolEvents := sink.byType(model.StreamEventToolExecution)
	require.Len(t, toolEvents, 3)
	assert.Equal(t, model.ToolStatusError, toolEvents[2].Status)
	assert.NotEmpty(t, toolEvents[2].Error)

	assert.Equal(t, "That artifact no longer exists.", sink.deltaText())
	completes := sink.byType(model.StreamEventComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, 0, *completes[0].ToolsExecuted)
}

// hangingClient never finishes connecting; StreamTurn blocks until the
// context is canceled.
type hangingClient struct{}

func (hangingClient) StreamTurn(ctx context.Context, req *llm.TurnRequest) (llm.TurnStream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingClient) Name() string     { return "hanging" }
func (hangingClient) Models() []string { return nil }

func TestConnectAttemptHasBoundedWait(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	registry := tool.NewRegistry()
	tool.RegisterArtifactTools(registry, s)
	gw := gateway.NewMemory()

	orch := New(gw, hangingClient{}, registry, tool.NewExecutor(registry),
		mode.NewPolicy(registry.ReadOnlyNames()), logger.NewNop(), Options{
			ConnectTimeout: 50 * time.Millisecond,
		})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	turn, err := orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	sink := &recordSink{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Run(ctx, turn, sink)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a stalled provider connect must not park the turn")
	}

	errs := sink.byType(model.StreamEventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "model provider")
	assert.Empty(t, sink.byType(model.StreamEventTextDelta))
	assert.Empty(t, sink.byType(model.StreamEventComplete))
	assert.Equal(t, 1, sink.closed)
}

func TestAdapterConnectFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("dial tcp: connection refused")}
	gw := gateway.NewMemory()
	f := newFixture(t, client, gw)
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	errs := sink.byType(model.StreamEventError)
	require.Len(t, errs, 1, "exactly one terminal error event")
	assert.NotContains(t, errs[0].Error, "dial tcp", "raw internals must not reach the client")
	assert.Empty(t, sink.byType(model.StreamEventTextDelta))
	assert.Empty(t, sink.byType(model.StreamEventComplete))
	assert.Equal(t, 1, sink.closed)

	// The user message was persisted, but no assistant message.
	history, err := gw.History(ctx, "tenant-1", turn.Conversation.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.RoleUser, history[0].Role)
}

func TestMidStreamAdapterErrorIsTerminal(t *testing.T) {
	stream := newScriptedStream(false, textDelta("partial"))
	// After the scripted events, Recv returns EOF; inject a real error
	// instead by wrapping.
	client := &fakeClient{streams: []llm.TurnStream{&erroringStream{inner: stream}}}
	gw := gateway.NewMemory()
	f := newFixture(t, client, gw)
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	require.Len(t, sink.byType(model.StreamEventError), 1)
	assert.Empty(t, sink.byType(model.StreamEventComplete))

	history, err := gw.History(ctx, "tenant-1", turn.Conversation.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1, "no assistant message is persisted for a failed stream")
}

// erroringStream yields its inner stream's events, then a terminal error.
type erroringStream struct {
	inner *scriptedStream
}

func (s *erroringStream) Recv() (llm.Event, error) {
	ev, err := s.inner.Recv()
	if err != nil {
		return llm.Event{}, errors.New("upstream reset")
	}
	return ev, nil
}

func (s *erroringStream) Close() error { return s.inner.Close() }

func TestIdleStreamSurfacesError(t *testing.T) {
	client := &fakeClient{streams: []llm.TurnStream{newScriptedStream(true, textDelta("hi"))}}
	f := newFixture(t, client, gateway.NewMemory())
	f.orch.opts.IdleTimeout = 50 * time.Millisecond
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	require.Len(t, sink.byType(model.StreamEventError), 1)
	assert.Empty(t, sink.byType(model.StreamEventComplete))
}

func TestClientDisconnectMidStream(t *testing.T) {
	client := &fakeClient{streams: []llm.TurnStream{
		newScriptedStream(true, textDelta("before disconnect")),
	}}
	f := newFixture(t, client, gateway.NewMemory())

	ctx, cancel := context.WithCancel(context.Background())
	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	sink := &recordSink{}
	sink.onEvent = func(ev model.StreamEvent) {
		if ev.Type == model.StreamEventTextDelta {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.orch.Run(ctx, turn, sink)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not return after client disconnect")
	}

	assert.Empty(t, sink.byType(model.StreamEventComplete))
	assert.Equal(t, 1, sink.closed)
}

func TestInFlightToolFinishesAfterDisconnect(t *testing.T) {
	input := `{"kind":"code","title":"button","content":"<Button/>"}`
	client := &fakeClient{streams: []llm.TurnStream{
		newScriptedStream(false,
			toolStart("call-1", "create_artifact"),
			toolReady("call-1", "create_artifact", input),
			turnEnd(),
		),
	}}
	f := newFixture(t, client, gateway.NewMemory())

	ctx, cancel := context.WithCancel(context.Background())
	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "build", Mode: "agent"})
	require.NoError(t, err)

	sink := &recordSink{}
	sink.onEvent = func(ev model.StreamEvent) {
		// Disconnect the instant execution begins; the tool still runs to a
		// terminal status because execution is detached from the request
		// context.
		if ev.Type == model.StreamEventToolExecution && ev.Status == model.ToolStatusExecuting {
			cancel()
		}
	}

	f.orch.Run(ctx, turn, sink)

	toolEvents := sink.byType(model.StreamEventToolExecution)
	require.NotEmpty(t, toolEvents)
	last := toolEvents[len(toolEvents)-1]
	assert.Contains(t, []model.ToolExecutionStatus{model.ToolStatusCompleted, model.ToolStatusError}, last.Status)

	artifacts, err := f.store.List(context.Background(), "tenant-1", turn.Conversation.ID, 10)
	require.NoError(t, err)
	assert.Len(t, artifacts, 1, "the in-flight side effect must survive the disconnect")
}

func TestTitleTruncationKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("héllo wörld ", 20)
	title := titleFromMessage(long)
	assert.LessOrEqual(t, len(title), 60)
	assert.True(t, utf8.ValidString(title))
	assert.True(t, strings.HasPrefix(long, title))

	// A cut landing inside a multi-byte rune backs up to the boundary.
	multi := strings.Repeat("語", 30)
	title = titleFromMessage(multi)
	assert.True(t, utf8.ValidString(title))
	assert.Zero(t, len(title)%3, "the 3-byte rune must not be split")

	assert.Equal(t, "short", titleFromMessage("short"))
}

func TestDefaultModelAppliesWhenRequestNamesNone(t *testing.T) {
	client := &fakeClient{streams: []llm.TurnStream{
		newScriptedStream(false, turnEnd()),
		newScriptedStream(false, turnEnd()),
	}}
	f := newFixture(t, client, gateway.NewMemory())
	f.orch.opts.DefaultModel = "claude-sonnet-4"
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	f.orch.Run(ctx, turn, &recordSink{})
	require.NotNil(t, client.lastReq)
	assert.Equal(t, "claude-sonnet-4", client.lastReq.Model)

	// An explicit request model wins over the default.
	turn, err = f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hi", Model: "gpt-4o"})
	require.NoError(t, err)
	f.orch.Run(ctx, turn, &recordSink{})
	assert.Equal(t, "gpt-4o", client.lastReq.Model)
}

func TestAllowedToolsOverrideNarrowsManifest(t *testing.T) {
	client := &fakeClient{streams: []llm.TurnStream{newScriptedStream(false, turnEnd())}}
	f := newFixture(t, client, gateway.NewMemory())
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{
		Message:      "hi",
		Mode:         "agent",
		AllowedTools: []string{"create_artifact"},
	})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	require.NotNil(t, client.lastReq)
	require.Len(t, client.lastReq.Tools, 1)
	assert.Equal(t, "create_artifact", client.lastReq.Tools[0].Name)
}

func TestFinalizePersistenceFailureStillCompletes(t *testing.T) {
	client := &fakeClient{streams: []llm.TurnStream{
		newScriptedStream(false, textDelta("answer"), turnEnd()),
	}}
	f := newFixture(t, client, failGateway{})
	ctx := context.Background()

	turn, err := f.orch.Prepare(ctx, "tenant-1", "user-1", &model.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	sink := &recordSink{}
	f.orch.Run(ctx, turn, sink)

	// The answer streamed fully, so the turn still completes even though
	// nothing could be persisted.
	assert.Equal(t, "answer", sink.deltaText())
	completes := sink.byType(model.StreamEventComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, len("answer"), *completes[0].MessageLength)
}
