package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/craftpad-ai/artifact-platform/internal/model"
	"github.com/craftpad-ai/artifact-platform/pkg/logger"
)

const (
	// StreamName is the name of the conversations stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	// historyFetchMax caps a single replay fetch; the trailing window is
	// sliced out of this batch.
	historyFetchMax = 1000
)

// JetStream is the durable Gateway: conversation records are kept in the
// in-process index while the message log lives in a NATS JetStream stream,
// giving append-only semantics with read-after-write per process.
type JetStream struct {
	*Memory
	client *NATSClient
	logger *logger.Logger
}

// NewJetStream creates the JetStream-backed gateway and ensures the stream
// exists.
func NewJetStream(ctx context.Context, client *NATSClient, log *logger.Logger) (*JetStream, error) {
	g := &JetStream{
		Memory: NewMemory(),
		client: client,
		logger: log,
	}
	if err := g.ensureStream(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *JetStream) ensureStream(ctx context.Context) error {
	js := g.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "All conversation messages",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// MessageSubject returns the subject for a message.
func MessageSubject(tenantID, conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, tenantID, conversationID, role)
}

// AddMessage appends one message to the durable log and the local index.
func (g *JetStream) AddMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	subject := MessageSubject(msg.TenantID, msg.ConversationID, msg.Role)
	ack, err := g.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}
	// Keep the index's last-message/count bookkeeping in step with the log.
	if _, err := g.Memory.AddMessage(ctx, msg); err != nil {
		g.logger.Warn("failed to index message", zap.Error(err))
	}
	// The durable stream sequence wins over the index counter.
	msg.Sequence = ack.Sequence

	return ack.Sequence, nil
}

// History replays the conversation's messages from the durable log and
// returns the trailing window in append order.
func (g *JetStream) History(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error) {
	js := g.client.JetStream()

	filterSubject := fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, tenantID, conversationID)
	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(historyFetchMax, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var messages []model.Message
	for raw := range batch.Messages() {
		var msg model.Message
		if err := json.Unmarshal(raw.Data(), &msg); err != nil {
			g.logger.Warn("skipping undecodable log entry", zap.Error(err))
			continue
		}
		if meta, err := raw.Metadata(); err == nil {
			msg.Sequence = meta.Sequence.Stream
		}
		messages = append(messages, msg)
	}
	if err := batch.Error(); err != nil && err != context.DeadlineExceeded {
		return nil, fmt.Errorf("batch error: %w", err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}
