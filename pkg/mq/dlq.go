package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DLQExchangeName 死信交换机，按原 routing key 路由到 <routing_key>.dlq
const DLQExchangeName = "events.dlq"

// dlqQueueName 死信队列名
func dlqQueueName(routingKey string) string {
	return routingKey + ".dlq"
}

// DeclareDLQExchange 声明死信交换机（幂等）
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(DLQExchangeName, "topic", true, false, false, false, nil)
}

// DeclareDLQQueue 声明某个 routing key 的死信队列并绑定到死信交换机
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(dlqQueueName(routingKey), true, false, false, false, nil)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("declare dlq queue %s: %w", dlqQueueName(routingKey), err)
	}

	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("bind dlq queue %s: %w", q.Name, err)
	}

	return q, nil
}

// PublishToDLQ 把无法处理的消息原样投递到死信交换机，失败原因写在 header 里
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, DLQExchangeName, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers: amqp091.Table{
			"x-original-error":       originalError,
			"x-original-routing-key": routingKey,
			"x-failed-at":            "audit-worker",
		},
	})
}
