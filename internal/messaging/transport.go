package messaging

import (
	"context"
)

// Envelope is a single message on the channel
type Envelope struct {
	// Sender is the server name of the process that published the message. Responses are addressed to it
	Sender string
	// Invoker identifies the player on whose behalf the message was sent
	Invoker string
	Payload []byte
}

type DeliveryHandler func(ctx context.Context, envelope *Envelope)

type Transport interface {
	// Publish delivers the payload to the process registered under the target server name
	Publish(ctx context.Context, target string, envelope *Envelope) error
	// Consume blocks, passing the messages addressed to this process to the handler, until the ctx is done
	Consume(ctx context.Context, handler DeliveryHandler) error
}
