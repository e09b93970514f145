package amqp

import (
	"fmt"
	"sync"

	"github.com/koios/matrx-watchface/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// QueueName is the per-device queue weather updates are consumed from
func QueueName(deviceID string) string {
	return fmt.Sprintf("watchface.%s", deviceID)
}

// RoutingKey is the topic the companion publishes the device's weather on
func RoutingKey(deviceID string) string {
	return fmt.Sprintf("weather.%s", deviceID)
}

// Connection wraps the AMQP connection and channel. It dials lazily and
// redials after the broker drops it.
type Connection struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.AMQPConfig
	logger  *zap.Logger
}

// NewConnection creates an unconnected AMQP connection
func NewConnection(cfg config.AMQPConfig, logger *zap.Logger) *Connection {
	return &Connection{
		config: cfg,
		logger: logger,
	}
}

// EnsureConnection dials the broker and declares the exchange unless a live
// connection exists
func (c *Connection) EnsureConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.closeLocked()

	conn, err := amqp.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// deliver weather updates one at a time, in order
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	err = ch.ExchangeDeclare(
		c.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	c.conn = conn
	c.channel = ch
	c.logger.Info("Connected to AMQP broker", zap.String("exchange", c.config.Exchange))
	return nil
}

// DeclareDeviceQueue declares the device's weather queue and binds it to the exchange
func (c *Connection) DeclareDeviceQueue(deviceID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return "", fmt.Errorf("AMQP channel is not open")
	}

	queue := QueueName(deviceID)
	_, err := c.channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	err = c.channel.QueueBind(
		queue,                // queue name
		RoutingKey(deviceID), // routing key
		c.config.Exchange,    // exchange
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return "", fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}
	return queue, nil
}

// Consume registers a consumer with manual acknowledgement
func (c *Connection) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return nil, fmt.Errorf("AMQP channel is not open")
	}
	return c.channel.Consume(
		queue,       // queue
		consumerTag, // consumer tag
		false,       // auto-ack (disabled for manual acknowledgment)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
}

// Cancel stops deliveries to a consumer
func (c *Connection) Cancel(consumerTag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil || c.channel.IsClosed() {
		return nil
	}
	return c.channel.Cancel(consumerTag, false)
}

// forceClose drops the current connection so the next EnsureConnection redials
func (c *Connection) forceClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Connection) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close closes the AMQP connection and channel
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
