package mq

import (
	"fmt"
	"os"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ExchangeName 审计等领域事件共用的 topic exchange
const ExchangeName = "events"

const (
	dialAttempts = 5
	dialBackoff  = 500 * time.Millisecond
)

// NewConnection 连接 RabbitMQ。容器编排下 broker 可能晚于服务启动，失败时按线性退避重试。
func NewConnection(url string) (*amqp091.Connection, error) {
	cfg := amqp091.Config{
		Heartbeat:  10 * time.Second,
		Properties: amqp091.NewConnectionProperties(),
	}
	cfg.Properties.SetClientConnectionName(connectionName())

	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := amqp091.DialConfig(url, cfg)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < dialAttempts {
			time.Sleep(time.Duration(attempt) * dialBackoff)
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, lastErr)
}

// connectionName 便于在 management UI 中区分 api 和 worker 进程
func connectionName() string {
	name := "docportal"
	if host, err := os.Hostname(); err == nil && host != "" {
		name += "@" + host
	}
	return name
}

// DeclareExchange 声明持久化的 topic exchange
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}
