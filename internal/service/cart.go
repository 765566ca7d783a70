package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/GueYatma/koktek-front/internal/catalog"
	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/localstore"
	"github.com/GueYatma/koktek-front/internal/metrics"
	"github.com/GueYatma/koktek-front/internal/repository"
)

// ErrInvalidItem is returned when a cart line would lack a product or variant.
var ErrInvalidItem = errors.New("cart: product and variant ids are required")

const defaultSyncTimeout = 15 * time.Second

// CatalogProvider returns the (possibly cached) catalog used to resolve
// remote cart lines.
type CatalogProvider interface {
	Catalog(ctx context.Context) (*catalog.Catalog, error)
}

// CartSnapshot is a consistent read of the cart.
type CartSnapshot struct {
	CartID    string            `json:"cart_id,omitempty"`
	Items     []entity.CartItem `json:"items"`
	Total     decimal.Decimal   `json:"total"`
	ItemCount int               `json:"item_count"`
}

// CartManager owns one shopper's cart. Local state is authoritative for the
// shopper and changes synchronously; the remote mirror follows in the
// background and its failures are logged, never rolled back.
type CartManager struct {
	carts   repository.CartRepository
	catalog CatalogProvider
	storage *localstore.CartStorage
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu        sync.Mutex
	items     []entity.CartItem
	cartID    string
	remoteIDs map[string]string
	// idsKnown is false while the lines of a restored cart id have not been
	// listed; records must not be created for it until they are.
	idsKnown bool
	// unsynced holds keys whose last remote sync failed.
	unsynced map[string]bool
	// pending counts queued remote syncs.
	pending int
	// generation changes on Clear; background work from an older generation
	// is discarded.
	generation uint64

	// syncMu serialises remote writes and reconciliation.
	syncMu sync.Mutex
	group  singleflight.Group
	wg     sync.WaitGroup
}

// CartOption configures a CartManager.
type CartOption func(*CartManager)

func WithCartLogger(l *slog.Logger) CartOption {
	return func(m *CartManager) { m.logger = l }
}

func WithCartMetrics(mt *metrics.Metrics) CartOption {
	return func(m *CartManager) { m.metrics = mt }
}

// WithSyncTimeout bounds each background remote operation.
func WithSyncTimeout(d time.Duration) CartOption {
	return func(m *CartManager) { m.timeout = d }
}

// NewCartManager restores the cart from storage. When a remote cart id was
// stored, reconciliation with the remote cart starts in the background.
func NewCartManager(ctx context.Context, carts repository.CartRepository, provider CatalogProvider, storage *localstore.CartStorage, opts ...CartOption) *CartManager {
	m := &CartManager{
		carts:     carts,
		catalog:   provider,
		storage:   storage,
		logger:    slog.Default(),
		timeout:   defaultSyncTimeout,
		remoteIDs: make(map[string]string),
		unsynced:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.items = storage.ReadItems(ctx)
	m.cartID = storage.ReadCartID(ctx)
	m.idsKnown = m.cartID == ""
	if m.cartID != "" {
		m.goReconcile()
	}
	return m
}

// AddItem adds quantity (at least 1) of variant, merging with an existing line.
func (m *CartManager) AddItem(ctx context.Context, product entity.Product, variant entity.Variant, quantity int) error {
	if product.ID == "" || variant.ID == "" {
		return ErrInvalidItem
	}
	if quantity < 1 {
		quantity = 1
	}
	if variant.ProductID == "" {
		variant.ProductID = product.ID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := entity.ItemKey(variant.ID, product.ID)
	if i := m.indexLocked(key); i >= 0 {
		m.items[i].Quantity += quantity
	} else {
		m.items = append(m.items, entity.CartItem{Product: product, Variant: variant, Quantity: quantity})
	}
	m.changedLocked(ctx, key)
	return nil
}

// RemoveItem drops the line of variantID. Removing an absent line is a no-op.
func (m *CartManager) RemoveItem(ctx context.Context, variantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(variantID); i >= 0 {
		m.items = append(m.items[:i:i], m.items[i+1:]...)
	}
	m.changedLocked(ctx, variantID)
}

// UpdateQuantity sets the quantity of variantID; quantity <= 0 removes the line.
func (m *CartManager) UpdateQuantity(ctx context.Context, variantID string, quantity int) {
	if quantity <= 0 {
		m.RemoveItem(ctx, variantID)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(variantID)
	if i < 0 {
		return
	}
	m.items[i].Quantity = quantity
	m.changedLocked(ctx, variantID)
}

// Clear forgets items, mirror ids and the cart id. The remote cart is left
// as is; see Close.
func (m *CartManager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	m.cartID = ""
	m.remoteIDs = make(map[string]string)
	m.idsKnown = true
	m.unsynced = make(map[string]bool)
	m.generation++
	if err := m.storage.Clear(ctx); err != nil {
		m.logger.Warn("cart: failed to clear local storage", "error", err)
	}
}

// Close flags the remote cart as converted. It does nothing without a cart id.
func (m *CartManager) Close(ctx context.Context) error {
	cartID := m.CartID()
	if cartID == "" {
		return nil
	}
	if err := m.carts.CloseCart(ctx, cartID, entity.CartStatusConverted); err != nil {
		m.metrics.CartSyncFailed("close")
		return err
	}
	return nil
}

// Items returns a copy of the cart lines in insertion order.
func (m *CartManager) Items() []entity.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.CartItem(nil), m.items...)
}

// Total is recomputed from the items on every call.
func (m *CartManager) Total() decimal.Decimal {
	return entity.CartTotal(m.Items())
}

func (m *CartManager) ItemCount() int {
	return entity.CartItemCount(m.Items())
}

func (m *CartManager) CartID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cartID
}

func (m *CartManager) Snapshot() CartSnapshot {
	m.mu.Lock()
	items := append([]entity.CartItem(nil), m.items...)
	cartID := m.cartID
	m.mu.Unlock()
	return CartSnapshot{
		CartID:    cartID,
		Items:     items,
		Total:     entity.CartTotal(items),
		ItemCount: entity.CartItemCount(items),
	}
}

// Wait blocks until queued background work has finished.
func (m *CartManager) Wait() {
	m.wg.Wait()
}

// EnsureCartID returns the remote cart id, creating the remote cart on first
// use. Concurrent callers share a single creation.
func (m *CartManager) EnsureCartID(ctx context.Context) (string, error) {
	id, created, err := m.ensureCartID(ctx)
	if err != nil {
		return "", err
	}
	if created {
		m.goReconcile()
	}
	return id, nil
}

func (m *CartManager) ensureCartID(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	id, gen := m.cartID, m.generation
	m.mu.Unlock()
	if id != "" {
		return id, false, nil
	}

	created := false
	v, err, _ := m.group.Do("cart:"+strconv.FormatUint(gen, 10), func() (any, error) {
		m.mu.Lock()
		if m.generation == gen && m.cartID != "" {
			id := m.cartID
			m.mu.Unlock()
			return id, nil
		}
		m.mu.Unlock()

		cart, err := m.carts.CreateCart(ctx, entity.CartStatusOpen, entity.DefaultCurrency)
		if err != nil {
			m.metrics.CartSyncFailed("create_cart")
			return nil, fmt.Errorf("failed to create remote cart: %w", err)
		}
		id := cart.ID.String()
		m.mu.Lock()
		if m.generation == gen {
			m.cartID = id
			m.idsKnown = true
			created = true
			if err := m.storage.WriteCartID(ctx, id); err != nil {
				m.logger.Warn("cart: failed to store cart id", "cart_id", id, "error", err)
			}
		}
		m.mu.Unlock()
		m.logger.Info("cart: remote cart created", "cart_id", id)
		return id, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), created, nil
}

// Reconcile replaces local state with the remote cart's lines. When local
// changes are still queued or failed to sync, only the mirror ids of matching
// lines are adopted so optimistic state is kept.
func (m *CartManager) Reconcile(ctx context.Context) error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	m.mu.Lock()
	cartID, gen := m.cartID, m.generation
	m.mu.Unlock()
	if cartID == "" {
		return nil
	}

	var (
		records []entity.CartItemRecord
		cat     *catalog.Catalog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		records, err = m.carts.ListItems(gctx, cartID)
		return err
	})
	g.Go(func() (err error) {
		cat, err = m.catalog.Catalog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to reconcile cart %s: %w", cartID, err)
	}

	items, ids := mapRemoteItems(records, cat)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.cartID != cartID {
		return nil
	}
	m.idsKnown = true
	if m.pending > 0 || len(m.unsynced) > 0 {
		m.adoptLocked(ids)
		m.logger.Debug("cart: local changes pending, kept local items", "cart_id", cartID)
		return nil
	}
	m.items = items
	m.remoteIDs = ids
	m.persistLocked(ctx)
	return nil
}

// adoptLocked records the remote ids of keys that have none yet.
func (m *CartManager) adoptLocked(ids map[string]string) {
	for key, id := range ids {
		if _, known := m.remoteIDs[key]; !known {
			m.remoteIDs[key] = id
		}
	}
}

// adoptRemoteIDs lists the remote lines of cartID and adopts their ids. It
// runs before the first record is created for a restored cart. Caller holds
// syncMu.
func (m *CartManager) adoptRemoteIDs(ctx context.Context, cartID string, gen uint64) error {
	records, err := m.carts.ListItems(ctx, cartID)
	if err != nil {
		return fmt.Errorf("failed to list lines of cart %s: %w", cartID, err)
	}
	ids := make(map[string]string, len(records))
	for _, rec := range records {
		if rec.Quantity <= 0 {
			continue
		}
		// Lines without a variant are keyed by their product id, as in
		// mapRemoteItems. Later records win.
		id := rec.VariantID.String()
		if id == "" {
			id = rec.ProductID.String()
		}
		if key := entity.ItemKey(id, rec.ProductID.String()); key != "" {
			ids[key] = rec.ID.String()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen && m.cartID == cartID {
		m.adoptLocked(ids)
		m.idsKnown = true
	}
	return nil
}

// mapRemoteItems resolves remote lines against the catalog. Lines whose
// product is unknown or whose quantity is not positive are skipped. When
// several records share a key, the last one listed wins.
func mapRemoteItems(records []entity.CartItemRecord, cat *catalog.Catalog) ([]entity.CartItem, map[string]string) {
	items := make([]entity.CartItem, 0, len(records))
	ids := make(map[string]string, len(records))
	index := make(map[string]int, len(records))
	for _, rec := range records {
		productID, variantID := rec.ProductID.String(), rec.VariantID.String()

		var (
			product entity.Product
			variant entity.Variant
			found   bool
		)
		if variantID != "" {
			var owner entity.Product
			if owner, variant, found = cat.VariantByID(variantID); found {
				if p, ok := cat.ProductByID(productID); ok {
					product = p
				} else {
					product = owner
				}
			}
		}
		if !found {
			p, ok := cat.ProductByID(productID)
			if !ok {
				continue
			}
			product = p
			price := p.BasePrice
			if rec.UnitPrice != nil {
				price = decimal.NewFromFloat(*rec.UnitPrice)
			}
			id := variantID
			if id == "" {
				id = p.ID
			}
			variant = entity.Variant{ID: id, ProductID: p.ID, Price: price}
		}

		quantity := int(rec.Quantity)
		if quantity <= 0 {
			continue
		}
		key := entity.ItemKey(variant.ID, product.ID)
		item := entity.CartItem{Product: product, Variant: variant, Quantity: quantity}
		if i, dup := index[key]; dup {
			items[i] = item
		} else {
			index[key] = len(items)
			items = append(items, item)
		}
		ids[key] = rec.ID.String()
	}
	return items, ids
}

func (m *CartManager) indexLocked(key string) int {
	for i, item := range m.items {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

// changedLocked persists the items and queues the remote sync of key.
func (m *CartManager) changedLocked(ctx context.Context, key string) {
	m.persistLocked(ctx)
	m.pending++
	gen := m.generation
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.syncMu.Lock()
		op, created, err := m.syncKey(ctx, key, gen)
		m.syncMu.Unlock()

		m.mu.Lock()
		m.pending--
		if m.generation == gen {
			if err != nil {
				m.unsynced[key] = true
			} else {
				delete(m.unsynced, key)
			}
		}
		m.mu.Unlock()

		if err != nil {
			m.metrics.CartSyncFailed(op)
			m.logger.Warn("cart: remote sync failed", "operation", op, "key", key, "error", err)
		}
		if created {
			m.goReconcile()
		}
	}()
}

func (m *CartManager) persistLocked(ctx context.Context) {
	if err := m.storage.WriteItems(ctx, m.items); err != nil {
		m.logger.Warn("cart: failed to write local storage", "error", err)
	}
}

// syncKey makes the remote line of key match the current local line: create,
// update with the current (merged) quantity, or delete.
func (m *CartManager) syncKey(ctx context.Context, key string, gen uint64) (op string, created bool, err error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return "skip", false, nil
	}
	if !m.idsKnown {
		cartID := m.cartID
		m.mu.Unlock()
		if err := m.adoptRemoteIDs(ctx, cartID, gen); err != nil {
			return "list", false, err
		}
		m.mu.Lock()
		if m.generation != gen {
			m.mu.Unlock()
			return "skip", false, nil
		}
	}
	var item entity.CartItem
	i := m.indexLocked(key)
	if i >= 0 {
		item = m.items[i]
	}
	remoteID := m.remoteIDs[key]
	m.mu.Unlock()

	switch {
	case i < 0 && remoteID == "":
		return "skip", false, nil
	case i < 0:
		if err := m.carts.RemoveItem(ctx, remoteID); err != nil {
			return "remove", false, err
		}
		m.mu.Lock()
		if m.generation == gen && m.remoteIDs[key] == remoteID {
			delete(m.remoteIDs, key)
		}
		m.mu.Unlock()
		return "remove", false, nil
	case remoteID != "":
		return "update", false, m.carts.UpdateItemQuantity(ctx, remoteID, item.Quantity)
	}

	cartID, created, err := m.ensureCartID(ctx)
	if err != nil {
		return "create_cart", false, err
	}
	if !m.current(gen) {
		return "skip", false, nil
	}

	price, _ := item.Variant.Price.Float64()
	record := entity.CartItemRecord{
		CartID:    entity.RecordID(cartID),
		ProductID: entity.RecordID(item.Product.ID),
		Quantity:  float64(item.Quantity),
		UnitPrice: &price,
		VariantID: entity.RecordID(remoteVariantID(item)),
		Currency:  entity.DefaultCurrency,
	}
	rec, err := m.carts.AddItem(ctx, record)
	if err != nil {
		return "add", created, err
	}
	m.mu.Lock()
	if m.generation == gen {
		m.remoteIDs[key] = rec.ID.String()
	}
	m.mu.Unlock()
	return "add", created, nil
}

// remoteVariantID is empty for lines resolved without a catalog variant,
// which carry the product id as their variant id.
func remoteVariantID(item entity.CartItem) string {
	if item.Variant.ID == item.Product.ID {
		return ""
	}
	return item.Variant.ID
}

func (m *CartManager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen
}

func (m *CartManager) goReconcile() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.Reconcile(ctx); err != nil {
			m.metrics.CartSyncFailed("reconcile")
			m.logger.Warn("cart: reconcile failed", "error", err)
		}
	}()
}
