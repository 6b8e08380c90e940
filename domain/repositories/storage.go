package repositories

import (
	"context"
	"time"

	"github.com/eburondeveloperph-gif/engr/domain/entities"
)

// StoreReader defines the read queries the assistant may issue against the store
type StoreReader interface {
	ListProducts(ctx context.Context) ([]entities.Product, error)
	// ListLowStockProducts returns products whose stock is strictly below threshold
	ListLowStockProducts(ctx context.Context, threshold float64) ([]entities.Product, error)
	// SearchProducts matches query as a case-insensitive substring of the product name
	SearchProducts(ctx context.Context, query string) ([]entities.Product, error)
	// ListSales returns sales dated at or after since; a zero since returns all sales
	ListSales(ctx context.Context, since time.Time) ([]entities.Sale, error)
	SearchCustomers(ctx context.Context, name string) ([]entities.Customer, error)
	ListTransactions(ctx context.Context, customerID string) ([]entities.LedgerTransaction, error)
}

// StoreWriter defines the mutations performed by the POS screens
type StoreWriter interface {
	UpsertProduct(ctx context.Context, product *entities.Product) error
	RecordSale(ctx context.Context, sale *entities.Sale) error
	InsertCustomer(ctx context.Context, customer *entities.Customer) error
	InsertTransaction(ctx context.Context, tx *entities.LedgerTransaction) error
	InsertExpense(ctx context.Context, expense *entities.Expense) error
}

// Store combines reads and writes
type Store interface {
	StoreReader
	StoreWriter
}

// SessionLogRepository persists the audit record of assistant sessions
type SessionLogRepository interface {
	Save(ctx context.Context, session *entities.Session) error
	ListRecent(ctx context.Context, limit int) ([]*entities.Session, error)
	// DeleteEndedBefore removes sessions that ended before cutoff and returns how many were removed
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
