package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cart-service/internal/cart"
	"cart-service/internal/catalog"
	"cart-service/internal/models"
	"cart-service/internal/repository"
)

// DefaultKeyPrefix is prepended to tenant and owner to form a cart key
const DefaultKeyPrefix = "cart:"

// ErrProductLookup wraps failures to fetch a product snapshot
var ErrProductLookup = errors.New("product lookup failed")

// ProductFetcher looks up a product snapshot by id
type ProductFetcher interface {
	GetProduct(ctx context.Context, tenantID, productID string) (catalog.Snapshot, error)
}

// ItemSelection is the size and color a shopper picked for a product
type ItemSelection struct {
	Quantity  int
	Size      string
	ColorKey  string
	ColorName string
}

// withDefaults fills the fields an edit left out from the line being edited,
// so an edit that only changes the size keeps the color and quantity
func (sel ItemSelection) withDefaults(line models.LineItem) ItemSelection {
	if strings.TrimSpace(sel.Size) == "" {
		sel.Size = line.Size
	}
	if sel.ColorKey == "" && sel.ColorName == "" {
		sel.ColorKey = line.ColorHex
		sel.ColorName = line.Color
	}
	if sel.Quantity <= 0 {
		sel.Quantity = line.Quantity
	}
	return sel
}

// Summary is the read model returned to cart views
type Summary struct {
	Key             string                  `json:"key"`
	Items           []models.LineItem       `json:"cartItems"`
	ShippingAddress *models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                  `json:"paymentMethod"`
	Subtotal        string                  `json:"subtotal"`
	ItemCount       int                     `json:"itemCount"`
	SelectedCount   int                     `json:"selectedCount"`
}

type ledgerEntry struct {
	mu         sync.Mutex
	ledger     *cart.Ledger
	lastAccess time.Time
	evicted    bool
}

// CartService owns the ledgers of the carts this process has touched. Each
// ledger is loaded from the store on first access and every operation on it
// runs under that cart's lock, so mutations of one cart never interleave.
type CartService struct {
	store     repository.Store
	products  ProductFetcher
	keyPrefix string
	observers []cart.Observer
	logger    *logrus.Entry
	baseLog   *logrus.Logger
	now       func() time.Time

	mu      sync.Mutex
	ledgers map[string]*ledgerEntry
}

// NewCartService creates a cart service. products may be nil when only
// snapshot-based operations are used.
func NewCartService(store repository.Store, products ProductFetcher, logger *logrus.Logger, observers ...cart.Observer) *CartService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CartService{
		store:     store,
		products:  products,
		keyPrefix: DefaultKeyPrefix,
		observers: observers,
		logger:    logger.WithField("component", "cart-service"),
		baseLog:   logger,
		now:       time.Now,
		ledgers:   make(map[string]*ledgerEntry),
	}
}

// SetKeyPrefix changes the prefix used by CartKey
func (s *CartService) SetKeyPrefix(prefix string) {
	if prefix != "" {
		s.keyPrefix = prefix
	}
}

// CartKey builds the storage key for a tenant's shopper
func (s *CartService) CartKey(tenantID, ownerID string) string {
	return fmt.Sprintf("%s%s:%s", s.keyPrefix, strings.TrimSpace(tenantID), strings.TrimSpace(ownerID))
}

// WithLedger runs fn with the ledger for key while holding the cart's lock.
// The ledger is rehydrated from the store the first time a key is used.
func (s *CartService) WithLedger(ctx context.Context, key string, fn func(l *cart.Ledger) error) error {
	entry := s.lockedEntry(key)
	defer entry.mu.Unlock()

	if entry.ledger == nil {
		l := s.newLedger(key)
		if err := l.Load(ctx); err != nil {
			return err
		}
		entry.ledger = l
		s.logger.WithField("cartKey", key).Debug("Rehydrated cart")
	}
	entry.lastAccess = s.now()

	return fn(entry.ledger)
}

// Summary returns the cart's items and totals
func (s *CartService) Summary(ctx context.Context, key string) (*Summary, error) {
	var summary *Summary
	err := s.WithLedger(ctx, key, func(l *cart.Ledger) error {
		summary = Summarize(l)
		return nil
	})
	return summary, err
}

// Summarize builds the read model for a ledger
func Summarize(l *cart.Ledger) *Summary {
	state := l.State()
	return &Summary{
		Key:             l.Key(),
		Items:           state.CartItems,
		ShippingAddress: state.ShippingAddress,
		PaymentMethod:   state.PaymentMethod,
		Subtotal:        cart.DisplaySubtotal(cart.Subtotal(state.CartItems)),
		ItemCount:       cart.ItemCount(state.CartItems),
		SelectedCount:   cart.SelectedCount(state.CartItems),
	}
}

// AddProduct fetches the current product snapshot and adds it to the cart
func (s *CartService) AddProduct(ctx context.Context, key, tenantID, productID string, sel ItemSelection) (*Summary, error) {
	snapshot, err := s.fetch(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	var summary *Summary
	err = s.WithLedger(ctx, key, func(l *cart.Ledger) error {
		_, addErr := l.AddToCart(ctx, snapshot, sel.Quantity, sel.Size, sel.ColorKey, sel.ColorName)
		summary = Summarize(l)
		return addErr
	})
	return summary, err
}

// UpdateProduct replaces an existing line with a new selection of the
// refreshed product. A selection that matches another line merges into it.
func (s *CartService) UpdateProduct(ctx context.Context, key, tenantID string, old models.Identity, sel ItemSelection) (*Summary, error) {
	snapshot, err := s.fetch(ctx, tenantID, old.ProductID)
	if err != nil {
		return nil, err
	}

	var summary *Summary
	err = s.WithLedger(ctx, key, func(l *cart.Ledger) error {
		if line, ok := l.Find(old); ok {
			sel = sel.withDefaults(line)
		}
		_, updErr := l.UpdateCartItem(ctx, old, snapshot, sel.Quantity, sel.Size, sel.ColorKey, sel.ColorName)
		summary = Summarize(l)
		return updErr
	})
	return summary, err
}

// Evict drops the cached ledger for key. The next access reloads it.
func (s *CartService) Evict(key string) {
	s.mu.Lock()
	entry, ok := s.ledgers[key]
	delete(s.ledgers, key)
	s.mu.Unlock()

	if ok {
		entry.mu.Lock()
		entry.evicted = true
		entry.mu.Unlock()
	}
}

// EvictIdle drops ledgers not used since the cutoff and returns how many were
// dropped
func (s *CartService) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, entry := range s.ledgers {
		if !entry.mu.TryLock() {
			continue
		}
		if entry.lastAccess.Before(cutoff) {
			entry.evicted = true
			delete(s.ledgers, key)
			evicted++
		}
		entry.mu.Unlock()
	}
	return evicted
}

// Cached returns the number of ledgers held in memory
func (s *CartService) Cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledgers)
}

// lockedEntry returns the live entry for key with its lock held. An entry
// evicted while the caller waited for its lock is skipped.
func (s *CartService) lockedEntry(key string) *ledgerEntry {
	for {
		s.mu.Lock()
		entry, ok := s.ledgers[key]
		if !ok {
			entry = &ledgerEntry{}
			s.ledgers[key] = entry
		}
		s.mu.Unlock()

		entry.mu.Lock()
		if !entry.evicted {
			return entry
		}
		entry.mu.Unlock()
	}
}

func (s *CartService) newLedger(key string) *cart.Ledger {
	opts := []cart.Option{cart.WithLogger(s.baseLog)}
	for _, o := range s.observers {
		opts = append(opts, cart.WithObserver(o))
	}
	return cart.New(key, s.store, opts...)
}

func (s *CartService) fetch(ctx context.Context, tenantID, productID string) (catalog.Snapshot, error) {
	if s.products == nil {
		return nil, fmt.Errorf("%w: products client not configured", ErrProductLookup)
	}
	snapshot, err := s.products.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrProductLookup, productID, err)
	}
	return snapshot, nil
}
