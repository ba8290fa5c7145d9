// Package events publishes cart changes to NATS and listens for product and
// inventory changes that invalidate cached product snapshots.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

// ProductCache is the product snapshot cache invalidated by catalog events
type ProductCache interface {
	InvalidateCache(ctx context.Context, tenantID, productID string)
	InvalidateTenantCache(ctx context.Context, tenantID string)
}

// ProductEventSubscriber drops cached product snapshots when products or their
// stock change, so the next add-to-cart resolves against fresh data.
type ProductEventSubscriber struct {
	nc           *nats.Conn
	js           jetstream.JetStream
	cache        ProductCache
	consumerName string
	logger       *logrus.Entry
}

// ProductEvent represents a product change event.
type ProductEvent struct {
	EventType string    `json:"eventType"`
	TenantID  string    `json:"tenantId"`
	Timestamp time.Time `json:"timestamp"`
	ProductID string    `json:"productId"`
	Name      string    `json:"name,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// InventoryEvent represents an inventory change event.
type InventoryEvent struct {
	EventType string          `json:"eventType"`
	TenantID  string          `json:"tenantId"`
	Timestamp time.Time       `json:"timestamp"`
	Items     []InventoryItem `json:"items"`
}

// InventoryItem represents a product with stock info.
type InventoryItem struct {
	ProductID    string `json:"productId"`
	SKU          string `json:"sku"`
	CurrentStock int    `json:"currentStock"`
}

// NewProductEventSubscriber connects to NATS for product and inventory events.
func NewProductEventSubscriber(natsURL string, cache ProductCache, logger *logrus.Logger) (*ProductEventSubscriber, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "product-events")

	if natsURL == "" {
		natsURL = "nats://nats.devtest.svc.cluster.local:4222"
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("cart-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectBufSize(8*1024*1024),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("Reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("Disconnected from NATS")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	hostname, _ := os.Hostname()

	return &ProductEventSubscriber{
		nc:           nc,
		js:           js,
		cache:        cache,
		consumerName: fmt.Sprintf("cart-products-%s", hostname),
		logger:       log,
	}, nil
}

// Start begins listening for product and inventory events.
func (s *ProductEventSubscriber) Start(ctx context.Context) error {
	s.ensureStreams(ctx)

	go s.consume(ctx, "PRODUCT_EVENTS", "product.>", s.consumerName+"-products", s.handleProductEvent)
	go s.consume(ctx, "INVENTORY_EVENTS", "inventory.>", s.consumerName+"-inventory", s.handleInventoryEvent)

	s.logger.Info("Product event subscriber started")
	return nil
}

// Close drains the NATS connection
func (s *ProductEventSubscriber) Close() {
	if s.nc != nil {
		_ = s.nc.Drain()
	}
}

// ensureStreams ensures the required streams exist.
func (s *ProductEventSubscriber) ensureStreams(ctx context.Context) {
	for name, subject := range map[string]string{
		"PRODUCT_EVENTS":   "product.>",
		"INVENTORY_EVENTS": "inventory.>",
	} {
		_, err := s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:      name,
			Subjects:  []string{subject},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    24 * time.Hour * 7,
			Storage:   jetstream.FileStorage,
			Replicas:  1,
		})
		if err != nil {
			s.logger.WithError(err).WithField("stream", name).Warn("Could not create stream")
		}
	}
}

func (s *ProductEventSubscriber) consume(ctx context.Context, stream, subject, durable string, handle func(context.Context, []byte) error) {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		s.logger.WithError(err).WithField("stream", stream).Warn("Failed to create consumer")
		return
	}

	msgs, err := consumer.Messages()
	if err != nil {
		s.logger.WithError(err).WithField("stream", stream).Warn("Failed to get messages iterator")
		return
	}

	go func() {
		<-ctx.Done()
		msgs.Stop()
	}()

	for {
		msg, err := msgs.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) || ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).WithField("stream", stream).Error("Error getting next message")
			time.Sleep(time.Second)
			continue
		}

		if err := handle(ctx, msg.Data()); err != nil {
			s.logger.WithError(err).WithField("subject", msg.Subject()).Error("Error handling event")
			_ = msg.Nak()
		} else {
			_ = msg.Ack()
		}
	}
}

// handleProductEvent processes a product event.
func (s *ProductEventSubscriber) handleProductEvent(ctx context.Context, data []byte) error {
	var event ProductEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal product event: %w", err)
	}
	if event.TenantID == "" {
		return fmt.Errorf("product event %s has no tenant", event.EventType)
	}

	s.logger.WithFields(logrus.Fields{
		"eventType": event.EventType,
		"productID": event.ProductID,
		"tenantID":  event.TenantID,
	}).Debug("Processing product event")

	if event.ProductID == "" {
		s.cache.InvalidateTenantCache(ctx, event.TenantID)
		return nil
	}
	s.cache.InvalidateCache(ctx, event.TenantID, event.ProductID)
	return nil
}

// handleInventoryEvent processes an inventory event.
func (s *ProductEventSubscriber) handleInventoryEvent(ctx context.Context, data []byte) error {
	var event InventoryEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal inventory event: %w", err)
	}
	if event.TenantID == "" {
		return fmt.Errorf("inventory event %s has no tenant", event.EventType)
	}

	s.logger.WithFields(logrus.Fields{
		"eventType": event.EventType,
		"tenantID":  event.TenantID,
		"items":     len(event.Items),
	}).Debug("Processing inventory event")

	for _, item := range event.Items {
		if item.ProductID != "" {
			s.cache.InvalidateCache(ctx, event.TenantID, item.ProductID)
		}
	}
	return nil
}
