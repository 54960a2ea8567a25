// Package orchestrator runs one chat turn: it drives the model stream,
// enforces mode policy on tool calls, relays normalized events to the client
// and persists the final transcript.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/craftpad-ai/artifact-platform/internal/gateway"
	"github.com/craftpad-ai/artifact-platform/internal/llm"
	"github.com/craftpad-ai/artifact-platform/internal/mode"
	"github.com/craftpad-ai/artifact-platform/internal/model"
	"github.com/craftpad-ai/artifact-platform/internal/tool"
	"github.com/craftpad-ai/artifact-platform/pkg/logger"
	"github.com/craftpad-ai/artifact-platform/pkg/metrics"
)

// ErrEmptyMessage rejects requests whose message is empty after trimming.
var ErrEmptyMessage = errors.New("message must not be empty")

// ErrConversationNotFound rejects requests naming a conversation that does
// not exist. Both errors surface before any stream opens.
var ErrConversationNotFound = gateway.ErrNotFound

const defaultSystemPrompt = "You are an assistant that helps users build artifacts " +
	"(code, mindmaps and learning paths) through conversation. Use the provided tools " +
	"when the user asks you to create or modify artifacts."

// Options tune one orchestrator instance.
type Options struct {
	// SystemPrompt is the default system prompt; a request override wins.
	SystemPrompt string

	// DefaultModel is used when the request names no model.
	DefaultModel string

	// HistoryWindow bounds how many prior messages are replayed into the
	// prompt.
	HistoryWindow int

	// ConnectTimeout bounds the wait for the provider stream to open.
	ConnectTimeout time.Duration

	// IdleTimeout bounds the wait for the next adapter event before the
	// stream is treated as stale.
	IdleTimeout time.Duration

	// ToolTimeout bounds a single tool execution.
	ToolTimeout time.Duration

	MaxTokens int
}

func (o *Options) setDefaults() {
	if o.SystemPrompt == "" {
		o.SystemPrompt = defaultSystemPrompt
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 20
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = 30 * time.Second
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
}

// Orchestrator coordinates the gateway, the model stream adapter, the mode
// policy and the tool executor for single turns. It holds no per-request
// state; one instance serves concurrent streams.
type Orchestrator struct {
	gateway  gateway.Gateway
	client   llm.Client
	registry *tool.Registry
	executor *tool.Executor
	policy   *mode.Policy
	logger   *logger.Logger
	tracer   trace.Tracer
	opts     Options
}

// New constructs an orchestrator. All collaborators are injected; there are
// no ambient singletons.
func New(
	gw gateway.Gateway,
	client llm.Client,
	registry *tool.Registry,
	executor *tool.Executor,
	policy *mode.Policy,
	log *logger.Logger,
	opts Options,
) *Orchestrator {
	opts.setDefaults()
	return &Orchestrator{
		gateway:  gw,
		client:   client,
		registry: registry,
		executor: executor,
		policy:   policy,
		logger:   log,
		tracer:   otel.Tracer("orchestrator"),
		opts:     opts,
	}
}

// Turn is a validated request bound to its resolved conversation.
type Turn struct {
	TenantID     string
	UserID       string
	Conversation *model.Conversation
	Mode         model.Mode
	Request      *model.ChatRequest
}

// Prepare validates the request and resolves its conversation. Failures here
// map to plain HTTP errors; nothing has been streamed yet.
//
// An explicitly named conversation that cannot be found is the caller's
// mistake and is rejected. A gateway failure while creating a fresh
// conversation degrades to a transient local one instead of failing the
// turn: the user still gets an answer, only durability is lost.
func (o *Orchestrator) Prepare(ctx context.Context, tenantID, userID string, req *model.ChatRequest) (*Turn, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	m := model.ParseMode(req.Mode)

	var conv *model.Conversation
	if req.ConversationID != "" {
		found, err := o.gateway.GetConversation(ctx, tenantID, req.ConversationID)
		if err != nil {
			if errors.Is(err, gateway.ErrNotFound) {
				return nil, ErrConversationNotFound
			}
			o.logger.Warn("conversation lookup failed, using transient conversation",
				zap.String("conversation_id", req.ConversationID), zap.Error(err))
			conv = transientConversation(tenantID, userID, req)
		} else {
			conv = found
		}
	} else {
		created, err := o.gateway.CreateConversation(ctx, tenantID, userID, &model.CreateConversationRequest{
			Title:    titleFromMessage(req.Message),
			Metadata: map[string]string{"mode": string(m)},
		})
		if err != nil {
			o.logger.Warn("conversation create failed, using transient conversation", zap.Error(err))
			conv = transientConversation(tenantID, userID, req)
		} else {
			conv = created
			metrics.ConversationsTotal.WithLabelValues(tenantID).Inc()
		}
	}

	return &Turn{
		TenantID:     tenantID,
		UserID:       userID,
		Conversation: conv,
		Mode:         m,
		Request:      req,
	}, nil
}

func transientConversation(tenantID, userID string, req *model.ChatRequest) *model.Conversation {
	now := time.Now()
	return &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		UserID:    userID,
		Title:     titleFromMessage(req.Message),
		CreatedAt: now,
		UpdatedAt: now,
		Transient: true,
	}
}

func titleFromMessage(message string) string {
	const max = 60
	if len(message) <= max {
		return message
	}
	// Back up to a rune boundary so the cut never leaves invalid UTF-8.
	cut := max
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

// Run executes one prepared turn against the sink. It always closes the sink
// before returning. Errors after the stream has opened are reported in-band;
// Run itself returns nil in those cases since the HTTP status has already
// committed to success.
func (o *Orchestrator) Run(ctx context.Context, turn *Turn, sink Sink) {
	defer sink.Close()

	ctx, span := o.tracer.Start(ctx, "chat.turn",
		trace.WithAttributes(
			attribute.String("conversation.id", turn.Conversation.ID),
			attribute.String("chat.mode", string(turn.Mode)),
		))
	defer span.End()

	start := time.Now()
	streamStatus := "success"
	var tokensIn, tokensOut int
	defer func() {
		metrics.RecordStream(turn.Request.Model, string(turn.Mode), streamStatus,
			time.Since(start).Seconds(), tokensIn, tokensOut)
	}()

	o.persistUserMessage(ctx, turn)

	manifest := o.manifestFor(turn)
	_ = sink.Send(model.ModeStatusEvent(turn.Mode, len(manifest)))
	_ = sink.Send(model.ProgressEvent(model.StageConnecting, turn.Mode))

	stream, err := o.openStream(ctx, turn, manifest)
	if err != nil {
		streamStatus = "connect_error"
		o.logger.Error("model stream connect failed", zap.Error(err))
		_ = sink.Send(model.ErrorEvent(
			"Could not reach the model provider",
			"Please try again in a moment",
			turn.Mode,
		))
		return
	}
	defer stream.Close()

	_ = sink.Send(model.ProgressEvent(model.StageStreaming, turn.Mode))

	result := o.relay(ctx, turn, stream, sink)
	if result.end != nil {
		tokensIn, tokensOut = result.end.TokensIn, result.end.TokensOut
	}
	if result.failed {
		streamStatus = "stream_error"
		return
	}
	if ctx.Err() != nil {
		// Client went away; nothing left to deliver or persist beyond what
		// already-finished tools wrote.
		streamStatus = "disconnected"
		return
	}

	o.finalize(ctx, turn, sink, result)
}

func (o *Orchestrator) manifestFor(turn *Turn) []llm.ToolDef {
	names := o.registry.Names()
	if len(turn.Request.AllowedTools) > 0 {
		names = intersect(names, turn.Request.AllowedTools)
	}
	names = o.policy.Allowed(names, turn.Mode)
	return o.registry.Manifest(names)
}

func intersect(names, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := set[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (o *Orchestrator) persistUserMessage(ctx context.Context, turn *Turn) {
	if turn.Conversation.Transient {
		return
	}
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: turn.Conversation.ID,
		TenantID:       turn.TenantID,
		Role:           model.RoleUser,
		Content:        turn.Request.Message,
		Metadata:       map[string]string{"mode": string(turn.Mode)},
		CreatedAt:      time.Now(),
	}
	if _, err := o.gateway.AddMessage(ctx, msg); err != nil {
		o.logger.Error("failed to persist user message", zap.Error(err))
		return
	}
	metrics.MessagesTotal.WithLabelValues(turn.TenantID, string(model.RoleUser)).Inc()
}

// openStream opens the provider stream with a bounded wait. The timeout only
// covers the connection attempt; the stream itself keeps the request context,
// so it cannot be wrapped in context.WithTimeout without killing the relay
// when the deadline passes mid-stream.
func (o *Orchestrator) openStream(ctx context.Context, turn *Turn, manifest []llm.ToolDef) (llm.TurnStream, error) {
	system := o.opts.SystemPrompt
	if turn.Request.SystemPrompt != "" {
		system = turn.Request.SystemPrompt
	}

	m := turn.Request.Model
	if m == "" {
		m = o.opts.DefaultModel
	}

	messages := o.promptHistory(ctx, turn)

	type connected struct {
		stream llm.TurnStream
		err    error
	}
	ch := make(chan connected, 1)
	go func() {
		stream, err := o.client.StreamTurn(ctx, &llm.TurnRequest{
			Model:     m,
			System:    system,
			Messages:  messages,
			Tools:     manifest,
			MaxTokens: o.opts.MaxTokens,
		})
		ch <- connected{stream: stream, err: err}
	}()

	timer := time.NewTimer(o.opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case c := <-ch:
		return c.stream, c.err
	case <-timer.C:
		// A stream that connects after the deadline is abandoned.
		go func() {
			if c := <-ch; c.stream != nil {
				c.stream.Close()
			}
		}()
		return nil, fmt.Errorf("provider connect timed out after %s", o.opts.ConnectTimeout)
	}
}

// promptHistory assembles the trailing window of prior messages. The user
// message for this turn has already been appended, so for a persisted
// conversation it arrives as the last history entry.
func (o *Orchestrator) promptHistory(ctx context.Context, turn *Turn) []llm.ChatMessage {
	if turn.Conversation.Transient {
		return []llm.ChatMessage{{Role: string(model.RoleUser), Content: turn.Request.Message}}
	}

	history, err := o.gateway.History(ctx, turn.TenantID, turn.Conversation.ID, o.opts.HistoryWindow)
	if err != nil {
		o.logger.Warn("history fetch failed, prompting with current message only", zap.Error(err))
		return []llm.ChatMessage{{Role: string(model.RoleUser), Content: turn.Request.Message}}
	}

	messages := make([]llm.ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role == model.RoleSystem {
			continue
		}
		messages = append(messages, llm.ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if len(messages) == 0 || messages[len(messages)-1].Content != turn.Request.Message {
		messages = append(messages, llm.ChatMessage{Role: string(model.RoleUser), Content: turn.Request.Message})
	}
	return messages
}

// relayResult accumulates what the stream produced.
type relayResult struct {
	text          strings.Builder
	toolsExecuted int
	toolsRun      []string
	end           *llm.TurnEnd
	failed        bool
}

// relay consumes adapter events in arrival order and emits normalized events.
// It returns once the turn ends, the adapter fails, the stream goes stale or
// the caller's context is canceled.
func (o *Orchestrator) relay(ctx context.Context, turn *Turn, stream llm.TurnStream, sink Sink) *relayResult {
	res := &relayResult{}

	// invocations tracks every tool id seen this stream so a noisy adapter
	// cannot trigger a second execution; denied ids are remembered so their
	// later input-complete events are dropped too.
	invocations := make(map[string]*model.ToolInvocation)
	denied := make(map[string]bool)

	events := make(chan llm.Event, 1)
	errs := make(chan error, 1)
	go func() {
		for {
			ev, err := stream.Recv()
			if err != nil {
				errs <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	idle := time.NewTimer(o.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return res

		case <-idle.C:
			o.logger.Warn("model stream stale", zap.String("conversation_id", turn.Conversation.ID))
			_ = sink.Send(model.ErrorEvent(
				"The model stopped responding",
				"Please try again",
				turn.Mode,
			))
			res.failed = true
			return res

		case err := <-errs:
			if errors.Is(err, io.EOF) {
				// Clean end of stream; the turn-end event normally arrives
				// first, so this only fires for adapters that skip it.
				return res
			}
			o.logger.Error("model stream failed", zap.Error(err))
			_ = sink.Send(model.ErrorEvent(
				"The model stream was interrupted",
				"Please try again",
				turn.Mode,
			))
			res.failed = true
			return res

		case ev := <-events:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(o.opts.IdleTimeout)

			switch ev.Kind {
			case llm.EventTextDelta:
				res.text.WriteString(ev.Text)
				_ = sink.Send(model.TextDeltaEvent(ev.Text, turn.Mode))

			case llm.EventToolCallStart:
				o.handleToolStart(turn, ev.ToolCall, invocations, denied, sink)

			case llm.EventToolCallReady:
				o.handleToolReady(ctx, turn, ev.ToolCall, invocations, denied, sink, res)

			case llm.EventTurnEnd:
				res.end = ev.End
				return res
			}
		}
	}
}

func (o *Orchestrator) handleToolStart(
	turn *Turn,
	call *llm.ToolCall,
	invocations map[string]*model.ToolInvocation,
	denied map[string]bool,
	sink Sink,
) {
	if call == nil || denied[call.ID] {
		return
	}
	if _, dup := invocations[call.ID]; dup {
		return
	}

	if !o.policy.IsAllowed(call.Name, turn.Mode) {
		d := o.policy.ExplainDenial(call.Name, turn.Mode)
		denied[call.ID] = true
		metrics.ToolDenialsTotal.WithLabelValues(call.Name, string(turn.Mode)).Inc()
		_ = sink.Send(model.ErrorEvent(d.Reason, d.Suggestion, turn.Mode))
		return
	}

	invocations[call.ID] = &model.ToolInvocation{
		ID:        call.ID,
		Tool:      call.Name,
		Status:    model.InvocationPending,
		StartedAt: time.Now(),
	}
	_ = sink.Send(model.ToolExecutionEvent(call.Name, model.ToolStatusStarting, turn.Mode))
}

func (o *Orchestrator) handleToolReady(
	ctx context.Context,
	turn *Turn,
	call *llm.ToolCall,
	invocations map[string]*model.ToolInvocation,
	denied map[string]bool,
	sink Sink,
	res *relayResult,
) {
	if call == nil || denied[call.ID] {
		return
	}

	inv, ok := invocations[call.ID]
	if !ok {
		// Input arrived without a start event; apply the same policy gate
		// before synthesizing the invocation.
		o.handleToolStart(turn, call, invocations, denied, sink)
		if denied[call.ID] {
			return
		}
		inv = invocations[call.ID]
		if inv == nil {
			return
		}
	}
	if inv.Status != model.InvocationPending {
		// Duplicate input-complete event; this invocation already ran.
		return
	}

	inv.Input = call.Input
	if err := inv.Transition(model.InvocationExecuting); err != nil {
		o.logger.Warn("invocation transition rejected", zap.Error(err))
		return
	}
	_ = sink.Send(model.ToolExecutionEvent(inv.Tool, model.ToolStatusExecuting, turn.Mode))

	execCtx, span := o.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", inv.Tool)))

	// Side effects are worth finishing even if the client has gone away, so
	// execution is detached from the request context but still bounded.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(execCtx), o.opts.ToolTimeout)
	defer cancel()

	scope := tool.Scope{TenantID: turn.TenantID, ConversationID: turn.Conversation.ID}
	result := o.executor.Execute(execCtx, scope, inv.Tool, inv.Input)
	span.End()

	if result.OK() {
		inv.Result = result.Payload
		if err := inv.Transition(model.InvocationCompleted); err != nil {
			o.logger.Warn("invocation transition rejected", zap.Error(err))
		}
		res.toolsExecuted++
		res.toolsRun = append(res.toolsRun, inv.Tool)
		metrics.RecordToolExecution(inv.Tool, "completed")

		ev := model.ToolExecutionEvent(inv.Tool, model.ToolStatusCompleted, turn.Mode)
		ev.Result = result.Payload
		_ = sink.Send(ev)
		return
	}

	// Tool failures are isolated per invocation; the stream continues.
	inv.Error = result.Err
	if err := inv.Transition(model.InvocationError); err != nil {
		o.logger.Warn("invocation transition rejected", zap.Error(err))
	}
	metrics.RecordToolExecution(inv.Tool, "error")
	o.logger.Warn("tool execution failed",
		zap.String("tool", inv.Tool), zap.String("kind", string(result.Kind)), zap.String("error", result.Err))

	ev := model.ToolExecutionEvent(inv.Tool, model.ToolStatusError, turn.Mode)
	ev.Error = result.Err
	_ = sink.Send(ev)
}

// finalize persists the assistant message and emits the terminal complete
// event. A persistence failure here is logged but does not fail the turn:
// the client already has the full answer.
func (o *Orchestrator) finalize(ctx context.Context, turn *Turn, sink Sink, res *relayResult) {
	_ = sink.Send(model.ProgressEvent(model.StageFinalizing, turn.Mode))

	content := res.text.String()

	if !turn.Conversation.Transient {
		meta := map[string]string{
			"mode":           string(turn.Mode),
			"tools_executed": strconv.Itoa(res.toolsExecuted),
		}
		if len(res.toolsRun) > 0 {
			meta["tools"] = strings.Join(res.toolsRun, ",")
		}

		msg := &model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: turn.Conversation.ID,
			TenantID:       turn.TenantID,
			Role:           model.RoleAssistant,
			Content:        content,
			Metadata:       meta,
			CreatedAt:      time.Now(),
		}
		if res.end != nil {
			msg.StopReason = &res.end.StopReason
			msg.TokensIn = &res.end.TokensIn
			msg.TokensOut = &res.end.TokensOut
		}

		if _, err := o.gateway.AddMessage(ctx, msg); err != nil {
			o.logger.Error("failed to persist assistant message",
				zap.String("conversation_id", turn.Conversation.ID), zap.Error(err))
		} else {
			metrics.MessagesTotal.WithLabelValues(turn.TenantID, string(model.RoleAssistant)).Inc()
		}
	}

	_ = sink.Send(model.CompleteEvent(turn.Mode, res.toolsExecuted, len(content)))
}
