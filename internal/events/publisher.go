package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cart-service/internal/cart"
)

// StreamCart is the JetStream stream cart events are published on
const StreamCart = "CART_EVENTS"

// CartEvent is published after every committed cart change
type CartEvent struct {
	events.BaseEvent
	CartKey       string `json:"cartKey"`
	OwnerID       string `json:"ownerId"`
	Operation     string `json:"operation"`
	ProductID     string `json:"productId,omitempty"`
	Size          string `json:"size,omitempty"`
	Color         string `json:"color,omitempty"`
	PreviousSize  string `json:"previousSize,omitempty"`
	PreviousColor string `json:"previousColor,omitempty"`
	LineCount     int    `json:"lineCount"`
	ItemCount     int    `json:"itemCount"`
	SelectedCount int    `json:"selectedCount"`
	Subtotal      string `json:"subtotal"`
}

func (e *CartEvent) GetSubject() string {
	return e.EventType
}

func (e *CartEvent) GetStream() string {
	return StreamCart
}

// Publisher wraps the go-shared events publisher for cart events. It is a
// cart.Observer: attach it to ledgers and every change is published.
type Publisher struct {
	publisher *events.Publisher
	keyPrefix string
	logger    *logrus.Entry
}

// NewPublisher connects to NATS and ensures the cart stream exists
func NewPublisher(natsURL, keyPrefix string, logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	if natsURL == "" {
		natsURL = "nats://nats.nats.svc.cluster.local:4222"
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "cart-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create events publisher: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := publisher.EnsureStream(ctx, StreamCart, []string{"cart.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure cart stream (may already exist)")
	}

	return &Publisher{
		publisher: publisher,
		keyPrefix: keyPrefix,
		logger:    logger.WithField("component", "cart-events"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.publisher != nil {
		p.publisher.Close()
	}
}

// IsConnected reports whether the NATS connection is up
func (p *Publisher) IsConnected() bool {
	return p.publisher != nil && p.publisher.IsConnected()
}

// CartChanged publishes the change without blocking the ledger
func (p *Publisher) CartChanged(ctx context.Context, change cart.Change) {
	event := BuildCartEvent(p.keyPrefix, change)

	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fields := logrus.Fields{
			"eventType": event.EventType,
			"cartKey":   event.CartKey,
			"tenantID":  event.TenantID,
		}
		if err := p.publisher.Publish(pubCtx, event); err != nil {
			p.logger.WithFields(fields).WithError(err).Error("Failed to publish cart event")
			return
		}
		p.logger.WithFields(fields).Debug("Cart event published")
	}()
}

// BuildCartEvent converts a ledger change into its event
func BuildCartEvent(keyPrefix string, change cart.Change) *CartEvent {
	tenantID, ownerID := SplitCartKey(keyPrefix, change.Key)

	event := &CartEvent{
		BaseEvent: events.BaseEvent{
			EventType: "cart." + string(change.Op),
			TenantID:  tenantID,
			SourceID:  uuid.New().String(),
			Timestamp: change.At.UTC(),
		},
		CartKey:       change.Key,
		OwnerID:       ownerID,
		Operation:     string(change.Op),
		ProductID:     change.ProductID,
		LineCount:     len(change.Items),
		ItemCount:     cart.ItemCount(change.Items),
		SelectedCount: cart.SelectedCount(change.Items),
		Subtotal:      cart.DisplaySubtotal(cart.Subtotal(change.Items)),
	}
	if change.Identity != nil {
		event.ProductID = change.Identity.ProductID
		event.Size = change.Identity.Size
		event.Color = change.Identity.Color
	}
	if change.Previous != nil {
		event.PreviousSize = change.Previous.Size
		event.PreviousColor = change.Previous.Color
	}
	return event
}

// SplitCartKey returns the tenant and owner encoded in a cart key
func SplitCartKey(keyPrefix, key string) (tenantID, ownerID string) {
	rest := strings.TrimPrefix(key, keyPrefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return "", rest
	}
	return parts[0], parts[1]
}
