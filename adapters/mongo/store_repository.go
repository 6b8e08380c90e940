package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

// StoreRepository implements repositories.Store on MongoDB
type StoreRepository struct {
	products     *mongo.Collection
	sales        *mongo.Collection
	customers    *mongo.Collection
	transactions *mongo.Collection
	expenses     *mongo.Collection
}

var _ repositories.Store = (*StoreRepository)(nil)

// NewStoreRepository creates a new MongoDB store repository
func NewStoreRepository(db *mongo.Database) *StoreRepository {
	return &StoreRepository{
		products:     db.Collection(productsCollection),
		sales:        db.Collection(salesCollection),
		customers:    db.Collection(customersCollection),
		transactions: db.Collection(transactionsCollection),
		expenses:     db.Collection(expensesCollection),
	}
}

// SeedProducts inserts the given products when the collection is empty
func (r *StoreRepository) SeedProducts(ctx context.Context, products []entities.Product) (int, error) {
	count, err := r.products.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	docs := make([]interface{}, 0, len(products))
	now := time.Now()
	for _, p := range products {
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		docs = append(docs, p)
	}
	if _, err := r.products.InsertMany(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to seed products: %w", err)
	}
	return len(docs), nil
}

// ListProducts implements repositories.StoreReader
func (r *StoreRepository) ListProducts(ctx context.Context) ([]entities.Product, error) {
	return r.findProducts(ctx, bson.M{})
}

// ListLowStockProducts implements repositories.StoreReader
func (r *StoreRepository) ListLowStockProducts(ctx context.Context, threshold float64) ([]entities.Product, error) {
	return r.findProducts(ctx, lowStockFilter(threshold))
}

// SearchProducts implements repositories.StoreReader
func (r *StoreRepository) SearchProducts(ctx context.Context, query string) ([]entities.Product, error) {
	return r.findProducts(ctx, nameFilter(query))
}

func (r *StoreRepository) findProducts(ctx context.Context, filter bson.M) ([]entities.Product, error) {
	cursor, err := r.products.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}

	products := []entities.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

// ListSales implements repositories.StoreReader
func (r *StoreRepository) ListSales(ctx context.Context, since time.Time) ([]entities.Sale, error) {
	cursor, err := r.sales.Find(ctx, sinceFilter(since), options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find sales: %w", err)
	}

	sales := []entities.Sale{}
	if err := cursor.All(ctx, &sales); err != nil {
		return nil, fmt.Errorf("failed to decode sales: %w", err)
	}
	return sales, nil
}

// SearchCustomers implements repositories.StoreReader
func (r *StoreRepository) SearchCustomers(ctx context.Context, name string) ([]entities.Customer, error) {
	cursor, err := r.customers.Find(ctx, nameFilter(name), options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find customers: %w", err)
	}

	customers := []entities.Customer{}
	if err := cursor.All(ctx, &customers); err != nil {
		return nil, fmt.Errorf("failed to decode customers: %w", err)
	}
	return customers, nil
}

// ListTransactions implements repositories.StoreReader
func (r *StoreRepository) ListTransactions(ctx context.Context, customerID string) ([]entities.LedgerTransaction, error) {
	if customerID == "" {
		return nil, errors.New("customer ID cannot be empty")
	}

	cursor, err := r.transactions.Find(ctx, bson.M{"customer_id": customerID}, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions for customer %s: %w", customerID, err)
	}

	txs := []entities.LedgerTransaction{}
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return txs, nil
}

// UpsertProduct implements repositories.StoreWriter
func (r *StoreRepository) UpsertProduct(ctx context.Context, product *entities.Product) error {
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

	_, err := r.products.ReplaceOne(ctx, bson.M{"_id": product.ID}, product, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// RecordSale implements repositories.StoreWriter. Stock of sold products is decremented.
func (r *StoreRepository) RecordSale(ctx context.Context, sale *entities.Sale) error {
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

	if _, err := r.sales.InsertOne(ctx, sale); err != nil {
		return fmt.Errorf("failed to record sale: %w", err)
	}

	models := make([]mongo.WriteModel, 0, len(sale.Items))
	for _, item := range sale.Items {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": item.ProductID}).
			SetUpdate(stockDecrement(item.Quantity, sale.Date)))
	}
	if len(models) == 0 {
		return nil
	}
	if _, err := r.products.BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("failed to adjust stock for sale %s: %w", sale.ID, err)
	}
	return nil
}

// InsertCustomer implements repositories.StoreWriter
func (r *StoreRepository) InsertCustomer(ctx context.Context, customer *entities.Customer) error {
	if customer == nil || strings.TrimSpace(customer.Name) == "" {
		return errors.New("customer name is required")
	}
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now()
	}

	if _, err := r.customers.InsertOne(ctx, customer); err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

// InsertTransaction implements repositories.StoreWriter
func (r *StoreRepository) InsertTransaction(ctx context.Context, tx *entities.LedgerTransaction) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	err := r.customers.FindOne(ctx, bson.M{"_id": tx.CustomerID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errors.New("customer not found")
	}
	if err != nil {
		return fmt.Errorf("failed to look up customer %s: %w", tx.CustomerID, err)
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now()
	}
	if _, err := r.transactions.InsertOne(ctx, tx); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// InsertExpense implements repositories.StoreWriter
func (r *StoreRepository) InsertExpense(ctx context.Context, expense *entities.Expense) error {
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

	if _, err := r.expenses.InsertOne(ctx, expense); err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func lowStockFilter(threshold float64) bson.M {
	return bson.M{"stock": bson.M{"$lt": threshold}}
}

// nameFilter matches name as a case-insensitive substring
func nameFilter(query string) bson.M {
	q := strings.TrimSpace(query)
	if q == "" {
		return bson.M{}
	}
	return bson.M{"name": bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}}
}

func sinceFilter(since time.Time) bson.M {
	if since.IsZero() {
		return bson.M{}
	}
	return bson.M{"date": bson.M{"$gte": since}}
}

func stockDecrement(quantity float64, at time.Time) bson.M {
	return bson.M{
		"$inc": bson.M{"stock": -quantity},
		"$set": bson.M{"updated_at": at},
	}
}
