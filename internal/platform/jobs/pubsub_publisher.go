package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/futurebuildai/lumber-boss/internal/domain"
)

const eventTypeCartItemAdded = "cart.item_added"

// PubSubCartEventPublisher publishes cart add events to a Pub/Sub topic so downstream
// systems (merchandising, abandoned cart follow-ups) can react to them.
type PubSubCartEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCartEventPublisher constructs a Pub/Sub backed cart event publisher.
func NewPubSubCartEventPublisher(topic *pubsub.Topic) (*PubSubCartEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub cart event publisher: topic is required")
	}
	return &PubSubCartEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCartItemAdded sends the event and waits for the server acknowledgement.
func (p *PubSubCartEventPublisher) PublishCartItemAdded(ctx context.Context, event domain.CartItemAdded) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub cart event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal cart event: %w", err)
	}

	attrs := map[string]string{"eventType": eventTypeCartItemAdded}
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "cartId", event.CartID)
	setAttr(attrs, "sku", event.Product.SKU)
	setAttr(attrs, "category", event.Product.Category)
	attrs["quantity"] = strconv.Itoa(event.Quantity)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish cart event: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubCartEventPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
