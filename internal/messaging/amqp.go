package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	senderHeader  = "sender"
	invokerHeader = "invoker"
)

// AmqpTransport routes messages through a topic exchange named after the channel.
// Each process owns an exclusive queue bound with its server name as the routing key
type AmqpTransport struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	server   string
	queue    string
}

func NewAmqpTransport(url string, exchange string, server string) (*AmqpTransport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to the broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	err = ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to declare the exchange: %w", err)
	}

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to declare the queue: %w", err)
	}

	err = ch.QueueBind(queue.Name, server, exchange, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to bind the queue: %w", err)
	}

	return &AmqpTransport{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		server:   server,
		queue:    queue.Name,
	}, nil
}

func (t *AmqpTransport) Publish(ctx context.Context, target string, envelope *Envelope) error {
	sender := envelope.Sender
	if sender == "" {
		sender = t.server
	}

	return t.channel.PublishWithContext(ctx, t.exchange, target, false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Headers: amqp.Table{
			senderHeader:  sender,
			invokerHeader: envelope.Invoker,
		},
		Body:      envelope.Payload,
		Timestamp: time.Now(),
	})
}

func (t *AmqpTransport) Consume(ctx context.Context, handler DeliveryHandler) error {
	deliveries, err := t.channel.Consume(t.queue, "", true, true, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("the deliveries channel has been closed by the broker")
			}

			handler(ctx, &Envelope{
				Sender:  headerString(d.Headers, senderHeader),
				Invoker: headerString(d.Headers, invokerHeader),
				Payload: d.Body,
			})
		}
	}
}

func (t *AmqpTransport) Ping(ctx context.Context) error {
	if t.conn.IsClosed() {
		return errors.New("the connection to the broker is closed")
	}

	return nil
}

func (t *AmqpTransport) Close() error {
	return t.conn.Close()
}

func headerString(headers amqp.Table, key string) string {
	value, _ := headers[key].(string)
	return value
}
