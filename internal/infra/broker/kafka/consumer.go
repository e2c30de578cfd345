package kafka

import (
	"context"
	"log/slog"

	"github.com/IBM/sarama"

	appoutbox "carrental/internal/app/outbox"
	infraoutbox "carrental/internal/infra/outbox"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	logger  *slog.Logger
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: g, handler: handler, logger: logger}, nil
}

func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{handler: c.handler, logger: c.logger}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim leaves a failed message unmarked and stops the claim so the
// group rebalances and redelivers from the last committed offset.
func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handler.Handle(sess.Context(), message); err != nil {
			h.logger.Warn("kafka message failed",
				"topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "error", err)
			return err
		}
		sess.MarkMessage(message, "")
	}
	return nil
}

// RecordHandler decodes CloudEvent messages into outbox records.
type RecordHandler struct {
	Next   func(ctx context.Context, rec appoutbox.EventRecord) error
	Logger *slog.Logger
}

func (h RecordHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	headers := make(map[string]string, len(msg.Headers))
	for _, hdr := range msg.Headers {
		if hdr == nil {
			continue
		}
		headers[string(hdr.Key)] = string(hdr.Value)
	}
	rec, err := infraoutbox.DecodeCloudEvent(msg.Value, headers)
	if err != nil {
		// poison message: skip it rather than block the partition
		h.logger().Warn("kafka message dropped", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	return h.Next(ctx, rec)
}

func (h RecordHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = RecordHandler{}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

func (f MessageHandlerFunc) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}
