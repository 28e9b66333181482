package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskdeck/apiserver/config"
)

// Channel names for lifecycle events.
const (
	ChannelUserRegistered = "user.registered"
	ChannelTodoCompleted  = "todo.completed"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Bus publishes and consumes lifecycle events over a Backend.
// A nil *Bus is valid and drops every publish, so callers need no
// broker-configured check of their own.
type Bus struct {
	backend Backend
}

// New constructs a Bus for the provided backend.
func New(backend Backend) *Bus {
	return &Bus{backend: backend}
}

// NewFromConfig builds a Bus for the configured broker backend.
// It returns (nil, nil) when no broker is configured.
func NewFromConfig(ctx context.Context, cfg config.BrokerConfig) (*Bus, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return New(backend), nil
	case "pubsub":
		backend, err := NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return New(backend), nil
	default:
		return nil, fmt.Errorf("unknown broker backend %q", cfg.Backend)
	}
}

// Publish marshals payload as JSON and sends it to the named channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload any) error {
	if b == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = b.backend.Publish(ctx, channel, data, map[string]string{"content-type": "application/json"})
	return err
}

// Subscribe consumes messages from the named channel until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if b == nil {
		return nil
	}
	return b.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.backend.Close()
}
