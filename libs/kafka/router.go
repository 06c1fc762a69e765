package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// Router dispatches consumed messages to per-topic handlers so one
// consumer group can cover a service's whole subscription.
type Router struct {
	handlers map[string]MessageHandler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]MessageHandler)}
}

func (r *Router) Route(topic string, handler MessageHandler) *Router {
	r.handlers[topic] = handler
	return r
}

// Topics returns the subscribed topic names.
func (r *Router) Topics() []string {
	out := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		out = append(out, topic)
	}
	return out
}

func (r *Router) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		return fmt.Errorf("no handler for topic %s", msg.Topic)
	}
	return handler.HandleMessage(ctx, msg)
}
