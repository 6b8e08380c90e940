package entities

import (
	"errors"
	"strings"
	"time"
)

// Product represents an item on the store shelf
type Product struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Category  string    `json:"category" bson:"category"`
	Price     float64   `json:"price" bson:"price"`
	Stock     float64   `json:"stock" bson:"stock"`
	Unit      string    `json:"unit" bson:"unit"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// SaleItem is one line of a sale
type SaleItem struct {
	ProductID string  `json:"product_id" bson:"product_id"`
	Name      string  `json:"name" bson:"name"`
	Quantity  float64 `json:"quantity" bson:"quantity"`
	Price     float64 `json:"price" bson:"price"`
	Subtotal  float64 `json:"subtotal" bson:"subtotal"`
}

// Sale represents a completed checkout
type Sale struct {
	ID    string     `json:"id" bson:"_id"`
	Date  time.Time  `json:"date" bson:"date"`
	Items []SaleItem `json:"items" bson:"items"`
	Total float64    `json:"total" bson:"total"`
}

// Customer is a ledger account holder (suki)
type Customer struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Phone     string    `json:"phone,omitempty" bson:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// TransactionType tags a ledger entry
type TransactionType string

const (
	TransactionCharge  TransactionType = "CHARGE"
	TransactionDeposit TransactionType = "DEPOSIT"
)

// LedgerTransaction is a single charge or deposit on a customer account
type LedgerTransaction struct {
	ID         string          `json:"id" bson:"_id"`
	CustomerID string          `json:"customer_id" bson:"customer_id"`
	Type       TransactionType `json:"type" bson:"type"`
	Amount     float64         `json:"amount" bson:"amount"`
	Note       string          `json:"note,omitempty" bson:"note,omitempty"`
	Date       time.Time       `json:"date" bson:"date"`
}

// Expense is an operating cost recorded by the store
type Expense struct {
	ID           string    `json:"id" bson:"_id"`
	Date         time.Time `json:"date" bson:"date"`
	Description  string    `json:"description" bson:"description"`
	Amount       float64   `json:"amount" bson:"amount"`
	Category     string    `json:"category" bson:"category"`
	ReceiptImage string    `json:"receipt_image,omitempty" bson:"receipt_image,omitempty"`
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if p.Price < 0 {
		return errors.New("price cannot be negative")
	}
	if p.Unit == "" {
		return errors.New("unit is required")
	}
	return nil
}

func (s *Sale) Validate() error {
	if len(s.Items) == 0 {
		return errors.New("sale must have at least one item")
	}
	for _, item := range s.Items {
		if item.Quantity <= 0 {
			return errors.New("item quantity must be positive")
		}
	}
	return nil
}

func (t *LedgerTransaction) Validate() error {
	if t.CustomerID == "" {
		return errors.New("customer_id is required")
	}
	if t.Type != TransactionCharge && t.Type != TransactionDeposit {
		return errors.New("invalid transaction type")
	}
	if t.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

func (e *Expense) Validate() error {
	if e.Description == "" {
		return errors.New("description is required")
	}
	if e.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

// InitialInventory is the shelf the store opens with
func InitialInventory() []Product {
	return []Product{
		{ID: "1", Name: "Portland Cement", Category: "Masonry", Price: 230, Stock: 500, Unit: "bag"},
		{ID: "2", Name: "Deformed Bar 10mm", Category: "Steel", Price: 185, Stock: 1000, Unit: "pc"},
		{ID: "3", Name: "Deformed Bar 12mm", Category: "Steel", Price: 265, Stock: 800, Unit: "pc"},
		{ID: "4", Name: "Coco Lumber 2x2x10", Category: "Wood", Price: 85, Stock: 200, Unit: "pc"},
		{ID: "5", Name: "Plywood 1/4 Marine", Category: "Wood", Price: 450, Stock: 150, Unit: "sht"},
		{ID: "6", Name: "Red Oxide Primer", Category: "Paint", Price: 120, Stock: 50, Unit: "gal"},
		{ID: "7", Name: "G.I. Sheet GA 26", Category: "Roofing", Price: 380, Stock: 300, Unit: "pc"},
		{ID: "8", Name: "Common Wire Nails 4\"", Category: "Hardware", Price: 65, Stock: 100, Unit: "kg"},
	}
}
