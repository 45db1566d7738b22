// Package memstore keeps catalog, order and custom order state in process
// memory for the unit tests. A single mutex serializes every update, and
// writes made inside an update become visible only when the update function
// succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orderflow/internal/catalog"
	"github.com/joao-fontenele/storefront-orderflow/internal/customorders"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/orders"
)

type Store struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	orders   map[string]*domain.Order
	requests map[string]*domain.CustomOrderRequest
}

func New() *Store {
	return &Store{
		products: make(map[string]*domain.Product),
		orders:   make(map[string]*domain.Order),
		requests: make(map[string]*domain.CustomOrderRequest),
	}
}

func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

func (s *Store) CustomOrders() *RequestRepository { return &RequestRepository{s: s} }

var (
	_ catalog.Repository      = (*ProductRepository)(nil)
	_ orders.Repository       = (*OrderRepository)(nil)
	_ customorders.Repository = (*RequestRepository)(nil)
)

// tx stages product and order writes until the surrounding update commits.
type tx struct {
	s        *Store
	products map[string]*domain.Product
	orders   []*domain.Order
}

func (s *Store) begin() *tx {
	return &tx{s: s, products: make(map[string]*domain.Product)}
}

func (t *tx) DecrementStock(_ context.Context, productID string, quantity int) (domain.StockChange, error) {
	p, ok := t.products[productID]
	if !ok {
		stored, found := t.s.products[productID]
		if !found {
			return domain.StockChange{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		p = cloneProduct(stored)
		t.products[productID] = p
	}

	change := domain.Decrement(productID, p.InventoryCount, quantity)
	p.InventoryCount = change.After
	if change.After == 0 {
		p.IsSoldOut = true
	}
	p.UpdatedAt = time.Now().UTC()
	return change, nil
}

func (t *tx) InsertOrder(_ context.Context, order *domain.Order) error {
	if _, exists := t.s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	t.orders = append(t.orders, cloneOrder(order))
	return nil
}

func (t *tx) commit() {
	for id, p := range t.products {
		t.s.products[id] = p
	}
	for _, o := range t.orders {
		t.s.orders[o.ID] = o
	}
}

type ProductRepository struct {
	s *Store
}

func (r *ProductRepository) Create(_ context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.products[p.ID]; exists {
		return domain.Invalid("id", fmt.Sprintf("product %s already exists", p.ID))
	}
	r.s.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *ProductRepository) Get(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	return cloneProduct(p), nil
}

func (r *ProductRepository) List(_ context.Context, activeOnly bool) ([]domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	products := []domain.Product{}
	for _, p := range r.s.products {
		if activeOnly && !p.IsActive {
			continue
		}
		products = append(products, *cloneProduct(p))
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (r *ProductRepository) Update(_ context.Context, id string, fn func(p *domain.Product) error) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}

	p := cloneProduct(stored)
	if err := fn(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now().UTC()
	r.s.products[id] = p
	return cloneProduct(p), nil
}

func (r *ProductRepository) SetProcessorRefs(_ context.Context, id string, price decimal.Decimal, refs catalog.ProcessorRefs) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.products[id]
	if !ok || !stored.UnitPrice.Equal(price) {
		return false, nil
	}

	p := cloneProduct(stored)
	p.ProcessorProductID = &refs.ProductID
	p.ProcessorPriceID = &refs.PriceID
	p.UpdatedAt = time.Now().UTC()
	r.s.products[id] = p
	return true, nil
}

func (r *ProductRepository) Delete(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	delete(r.s.products, id)
	for _, req := range r.s.requests {
		if req.ProductID != nil && *req.ProductID == id {
			req.ProductID = nil
		}
	}
	return p, nil
}

type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) GetBySessionID(_ context.Context, sessionID string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, o := range r.s.orders {
		if o.ProcessorSessionID != nil && *o.ProcessorSessionID == sessionID {
			return cloneOrder(o), nil
		}
	}
	return nil, nil
}

func (r *OrderRepository) List(_ context.Context, filter orders.ListFilter) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []domain.Order{}
	for _, o := range r.s.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *OrderRepository) Update(_ context.Context, id string, fn orders.UpdateFunc) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}

	o := cloneOrder(stored)
	t := r.s.begin()
	dirty, err := fn(o, t)
	if err != nil {
		return nil, err
	}

	t.commit()
	if dirty {
		r.s.orders[id] = cloneOrder(o)
		return o, nil
	}
	return cloneOrder(stored), nil
}

type RequestRepository struct {
	s *Store
}

func (r *RequestRepository) Create(_ context.Context, req *domain.CustomOrderRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.requests[req.ID]; exists {
		return fmt.Errorf("custom order %s already exists", req.ID)
	}
	if req.ProductID != nil {
		if _, ok := r.s.products[*req.ProductID]; !ok {
			return domain.Invalid("product_id", "unknown product")
		}
	}
	r.s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *RequestRepository) Get(_ context.Context, id string) (*domain.CustomOrderRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[id]
	if !ok {
		return nil, nil
	}
	return cloneRequest(req), nil
}

func (r *RequestRepository) GetByPaymentLinkID(_ context.Context, linkID string) (*domain.CustomOrderRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, req := range r.s.requests {
		if req.PaymentLinkID != nil && *req.PaymentLinkID == linkID {
			return cloneRequest(req), nil
		}
	}
	return nil, nil
}

func (r *RequestRepository) List(_ context.Context, filter customorders.ListFilter) ([]domain.CustomOrderRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []domain.CustomOrderRequest{}
	for _, req := range r.s.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, *cloneRequest(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *RequestRepository) Update(_ context.Context, id string, fn customorders.UpdateFunc) (*domain.CustomOrderRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.requests[id]
	if !ok {
		return nil, fmt.Errorf("custom order %s: %w", id, domain.ErrNotFound)
	}

	req := cloneRequest(stored)
	t := r.s.begin()
	if err := fn(req, t); err != nil {
		return nil, err
	}

	t.commit()
	r.s.requests[id] = cloneRequest(req)
	return req, nil
}

func cloneProduct(p *domain.Product) *domain.Product {
	c := *p
	return &c
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem{}, o.Items...)
	if o.ShippingAddress != nil {
		c.ShippingAddress = append([]byte(nil), o.ShippingAddress...)
	}
	return &c
}

func cloneRequest(r *domain.CustomOrderRequest) *domain.CustomOrderRequest {
	c := *r
	c.Colors = append([]string{}, r.Colors...)
	return &c
}
