package components

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
)

// PubSubNotifier publishes component notifications to a Pub/Sub topic
// consumed by the settlement ledger.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotifier constructs a Pub/Sub backed component notifier.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub component notifier: topic is required")
	}
	return &PubSubNotifier{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Notify enqueues the notification on the configured topic and waits for the
// broker acknowledgement.
func (p *PubSubNotifier) Notify(ctx context.Context, notification Notification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub component notifier: not initialised")
	}

	data, err := p.marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal component notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "guaranteeId", notification.GuaranteeID)
	setAttr(attrs, "orderId", notification.OrderID)
	setAttr(attrs, "offerId", notification.OfferID)
	setAttr(attrs, "orgId", notification.OrgID)
	setAttr(attrs, "providerId", notification.ProviderID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish component notification: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
