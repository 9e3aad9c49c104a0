package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

const exchangeName = "order.events"

// RabbitNotifier fans order events out on a topic exchange. Routing keys are
// "{tenantId}.{event type}", so a dashboard binds "t-123.*" and a kitchen
// display binds "t-123.order.received". Subscribers declare and bind their
// own queues.
type RabbitNotifier struct {
	ch *amqp.Channel
}

func NewRabbitNotifier(ch *amqp.Channel) (*RabbitNotifier, error) {
	if err := ch.ExchangeDeclare(
		exchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	return &RabbitNotifier{ch: ch}, nil
}

func (n *RabbitNotifier) Publish(ctx context.Context, ev usecase.OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // survive broker restarts
		Body:         body,
	}

	routingKey := fmt.Sprintf("%s.%s", ev.TenantID, ev.Type)
	if err := n.ch.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	return nil
}

var _ usecase.Notifier = (*RabbitNotifier)(nil)
