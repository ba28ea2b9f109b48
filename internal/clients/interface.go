package clients

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StorefrontClient defines read-only access to the commerce platform that
// originates customers, orders and payouts.
type StorefrontClient interface {
	// TestConnection verifies the credentials are working
	TestConnection(ctx context.Context) error

	// Customers
	GetCustomer(ctx context.Context, customerID int64) (*Customer, error)
	GetAllCustomers(ctx context.Context) ([]Customer, error)

	// Orders
	GetOrder(ctx context.Context, orderID int64) (*Order, error)
	GetAllOrders(ctx context.Context) ([]Order, error)

	// Catalog
	GetVariant(ctx context.Context, variantID int64) (*Variant, error)
	GetAllVariants(ctx context.Context) ([]Variant, error)
	GetAllProducts(ctx context.Context) ([]Product, error)

	// Payouts
	GetPayout(ctx context.Context, payoutID int64) (*Payout, error)
	GetPayoutsByDate(ctx context.Context, date string) ([]Payout, error)
	GetAllPayouts(ctx context.Context) ([]Payout, error)
	GetPayoutTransactions(ctx context.Context, payoutID int64) ([]Transaction, error)
}

// AccountingClient defines access to the bookkeeping platform receiving
// contacts and invoices.
type AccountingClient interface {
	// Contacts
	FindContactsByName(ctx context.Context, name string) ([]Contact, error)
	GetAllContacts(ctx context.Context) ([]Contact, error)
	CreateContact(ctx context.Context, contact *Contact) (*Contact, error)
	UpdateContact(ctx context.Context, contactID string, contact *Contact) (*Contact, error)

	// Invoices
	FindInvoiceByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)
	CreateInvoice(ctx context.Context, invoice *Invoice) (*Invoice, error)

	// Items
	GetAllItems(ctx context.Context) ([]Item, error)
}

// Customer is a storefront customer snapshot. It is fetched per operation
// and never cached across calls.
type Customer struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
}

// Product is a storefront product with its variants.
type Product struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	Status   string    `json:"status,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// Variant is a storefront product variant. An empty SKU is an error
// condition for order copying, not a valid value.
type Variant struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"productId,omitempty"`
	SKU       string `json:"sku"`
}

// Order is a storefront order.
type Order struct {
	ID            int64          `json:"id"`
	OrderNumber   int            `json:"orderNumber"`
	ProcessedAt   time.Time      `json:"processedAt"`
	Customer      *Customer      `json:"customer,omitempty"`
	LineItems     []LineItem     `json:"lineItems"`
	ShippingLines []ShippingLine `json:"shippingLines,omitempty"`
}

// LineItem is one line of a storefront order. A nil VariantID means the
// underlying product has been deleted from the catalog.
type LineItem struct {
	VariantID           *int64               `json:"variantId,omitempty"`
	Name                string               `json:"name"`
	Quantity            int                  `json:"quantity"`
	Price               decimal.Decimal      `json:"price"`
	DiscountAllocations []DiscountAllocation `json:"discountAllocations,omitempty"`
}

// ShippingLine is a shipping charge on a storefront order.
type ShippingLine struct {
	Title               string               `json:"title,omitempty"`
	Price               decimal.Decimal      `json:"price"`
	DiscountAllocations []DiscountAllocation `json:"discountAllocations,omitempty"`
}

// DiscountAllocation is a single discount amount applied to a line.
type DiscountAllocation struct {
	Amount decimal.Decimal `json:"amount"`
}

// Payout is a batched disbursement from the storefront's payment
// processor covering multiple orders' transactions.
type Payout struct {
	ID     int64           `json:"id"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status,omitempty"`
}

// Transaction is a balance transaction belonging to a payout. A nil
// SourceOrderID means the transaction is not tied to an order (for
// example an adjustment).
type Transaction struct {
	ID            int64           `json:"id"`
	Type          string          `json:"type,omitempty"`
	Fee           decimal.Decimal `json:"fee"`
	Amount        decimal.Decimal `json:"amount"`
	SourceOrderID *int64          `json:"sourceOrderId,omitempty"`
}

// Contact is an accounting-side contact. ContactNumber carries the
// storefront customer id as the natural key for upsert matching.
type Contact struct {
	ContactID     string `json:"contactId,omitempty"`
	Name          string `json:"name"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	EmailAddress  string `json:"emailAddress,omitempty"`
	IsCustomer    bool   `json:"isCustomer"`
	ContactNumber string `json:"contactNumber,omitempty"`
}

// Invoice is an accounting-side invoice. InvoiceNumber is derived
// deterministically from the order number and acts as the idempotency
// key for sync.
type Invoice struct {
	InvoiceID     string            `json:"invoiceId,omitempty"`
	Type          string            `json:"type"`
	Contact       *Contact          `json:"contact"`
	LineItems     []InvoiceLineItem `json:"lineItems"`
	Date          time.Time         `json:"date"`
	DueDate       time.Time         `json:"dueDate"`
	InvoiceNumber string            `json:"invoiceNumber"`
	Status        string            `json:"status"`
}

// InvoiceLineItem is one line of an accounting invoice. Shipping lines
// carry a free-text description and an account code instead of an item
// code.
type InvoiceLineItem struct {
	ItemCode       string          `json:"itemCode,omitempty"`
	Description    string          `json:"description,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitAmount     decimal.Decimal `json:"unitAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	AccountCode    string          `json:"accountCode,omitempty"`
}

// Item is an accounting-side inventory item.
type Item struct {
	ItemID string `json:"itemId,omitempty"`
	Code   string `json:"code"`
	Name   string `json:"name,omitempty"`
}

// Invoice type and status values used by the sync engine.
const (
	InvoiceTypeReceivable   = "ACCREC"
	InvoiceStatusAuthorised = "AUTHORISED"
)
