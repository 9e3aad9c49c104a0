package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// HandlerFunc processes a decoded status event.
type HandlerFunc func(ctx context.Context, ev usecase.StatusChangedMsg) error

// Consumer consumes a topic with a single handler.
type Consumer struct {
	group  sarama.ConsumerGroup
	topics []string
	handle HandlerFunc
	log    *slog.Logger
}

func NewConsumer(group sarama.ConsumerGroup, topics []string, h HandlerFunc, log *slog.Logger) *Consumer {
	return &Consumer{group: group, topics: topics, handle: h, log: log}
}

func (c *Consumer) Start(ctx context.Context) error {
	handler := &cgHandler{handle: c.handle, log: c.log}
	for {
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			return err
		}
		// Consume returns on ctx cancellation or a rebalance.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type cgHandler struct {
	handle HandlerFunc
	log    *slog.Logger
}

func (h *cgHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *cgHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *cgHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var ev usecase.StatusChangedMsg
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			h.log.Error("kafka decode", "topic", msg.Topic, "offset", msg.Offset, "err", err)
			// mark to avoid reprocessing poison
			sess.MarkMessage(msg, "decode-error")
			continue
		}
		if err := h.handle(sess.Context(), ev); err != nil {
			h.log.Error("kafka handler", "order_id", ev.OrderID, "offset", msg.Offset, "err", err)
			// Not marked; the message retries on the next poll.
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
