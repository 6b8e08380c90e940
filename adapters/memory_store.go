package adapters

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

// MemoryStore is an in-memory implementation of the store repositories
type MemoryStore struct {
	mu           sync.RWMutex
	products     map[string]*entities.Product
	sales        []entities.Sale
	customers    map[string]*entities.Customer
	transactions map[string][]entities.LedgerTransaction // customer_id -> entries
	expenses     []entities.Expense
}

var _ repositories.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding the given products
func NewMemoryStore(products []entities.Product) *MemoryStore {
	m := &MemoryStore{
		products:     make(map[string]*entities.Product),
		customers:    make(map[string]*entities.Customer),
		transactions: make(map[string][]entities.LedgerTransaction),
	}
	for i := range products {
		p := products[i]
		m.products[p.ID] = &p
	}
	return m
}

// NewSeededMemoryStore creates a store stocked with the opening inventory
func NewSeededMemoryStore() *MemoryStore {
	return NewMemoryStore(entities.InitialInventory())
}

// ListProducts implements StoreReader
func (m *MemoryStore) ListProducts(ctx context.Context) ([]entities.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterProducts(func(*entities.Product) bool { return true }), nil
}

// ListLowStockProducts implements StoreReader
func (m *MemoryStore) ListLowStockProducts(ctx context.Context, threshold float64) ([]entities.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterProducts(func(p *entities.Product) bool { return p.Stock < threshold }), nil
}

// SearchProducts implements StoreReader
func (m *MemoryStore) SearchProducts(ctx context.Context, query string) ([]entities.Product, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterProducts(func(p *entities.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), q)
	}), nil
}

// filterProducts must be called with mu held; results are ordered by ID
func (m *MemoryStore) filterProducts(keep func(*entities.Product) bool) []entities.Product {
	out := make([]entities.Product, 0, len(m.products))
	for _, p := range m.products {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListSales implements StoreReader
func (m *MemoryStore) ListSales(ctx context.Context, since time.Time) ([]entities.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]entities.Sale, 0, len(m.sales))
	for _, s := range m.sales {
		if !s.Date.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

// SearchCustomers implements StoreReader
func (m *MemoryStore) SearchCustomers(ctx context.Context, name string) ([]entities.Customer, error) {
	q := strings.ToLower(strings.TrimSpace(name))

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]entities.Customer, 0)
	for _, c := range m.customers {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListTransactions implements StoreReader
func (m *MemoryStore) ListTransactions(ctx context.Context, customerID string) ([]entities.LedgerTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]entities.LedgerTransaction(nil), m.transactions[customerID]...), nil
}

// UpsertProduct implements StoreWriter
func (m *MemoryStore) UpsertProduct(ctx context.Context, product *entities.Product) error {
	if product == nil {
		return errors.New("product cannot be nil")
	}
	if err := product.Validate(); err != nil {
		return err
	}

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	product.UpdatedAt = time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	p := *product
	m.products[p.ID] = &p
	return nil
}

// RecordSale implements StoreWriter. Stock of sold products is decremented.
func (m *MemoryStore) RecordSale(ctx context.Context, sale *entities.Sale) error {
	if sale == nil {
		return errors.New("sale cannot be nil")
	}
	if err := sale.Validate(); err != nil {
		return err
	}

	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range sale.Items {
		if p, ok := m.products[item.ProductID]; ok {
			p.Stock -= item.Quantity
			p.UpdatedAt = sale.Date
		}
	}
	m.sales = append(m.sales, *sale)
	return nil
}

// InsertCustomer implements StoreWriter
func (m *MemoryStore) InsertCustomer(ctx context.Context, customer *entities.Customer) error {
	if customer == nil || strings.TrimSpace(customer.Name) == "" {
		return errors.New("customer name is required")
	}
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := *customer
	m.customers[c.ID] = &c
	return nil
}

// InsertTransaction implements StoreWriter
func (m *MemoryStore) InsertTransaction(ctx context.Context, tx *entities.LedgerTransaction) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[tx.CustomerID]; !ok {
		return errors.New("customer not found")
	}
	m.transactions[tx.CustomerID] = append(m.transactions[tx.CustomerID], *tx)
	return nil
}

// InsertExpense implements StoreWriter
func (m *MemoryStore) InsertExpense(ctx context.Context, expense *entities.Expense) error {
	if expense == nil {
		return errors.New("expense cannot be nil")
	}
	if err := expense.Validate(); err != nil {
		return err
	}
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.expenses = append(m.expenses, *expense)
	return nil
}
