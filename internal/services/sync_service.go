package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"shopify2xero/internal/clients"
)

// invoiceNumberPrefix makes invoice numbers a pure function of the
// storefront order number. The invoice number is the idempotency key:
// an invoice with a given number is never created twice.
const invoiceNumberPrefix = "INV-SHOPIFY-"

// shippingDescription is the free-text description used for shipping
// invoice lines, which carry no item code.
const shippingDescription = "Postage"

// InvoiceNumber derives the accounting invoice number for an order
// number.
func InvoiceNumber(orderNumber int) string {
	return invoiceNumberPrefix + strconv.Itoa(orderNumber)
}

// ContactPicker selects which accounting contact to use when a name
// search returns more than one match.
type ContactPicker func(contacts []clients.Contact) *clients.Contact

// FirstContact picks the first match, or nil when there is none.
// Duplicate contacts with the same name are neither detected nor merged.
func FirstContact(contacts []clients.Contact) *clients.Contact {
	if len(contacts) == 0 {
		return nil
	}
	return &contacts[0]
}

// Option configures a SyncService.
type Option func(*SyncService)

// WithContactPicker overrides the contact selection policy.
func WithContactPicker(picker ContactPicker) Option {
	return func(s *SyncService) { s.pickContact = picker }
}

// SyncService copies storefront customers, orders and payouts into the
// accounting platform as contacts and invoices. All operations are
// synchronous and stateless: the only duplicate-prevention state is the
// invoice number convention on the accounting side.
type SyncService struct {
	storefront          clients.StorefrontClient
	accounting          clients.AccountingClient
	shippingAccountCode string
	pickContact         ContactPicker
	log                 *logrus.Logger
}

// NewSyncService creates a new sync service. shippingAccountCode is the
// accounting account code applied to shipping invoice lines.
func NewSyncService(
	storefront clients.StorefrontClient,
	accounting clients.AccountingClient,
	shippingAccountCode string,
	log *logrus.Logger,
	opts ...Option,
) *SyncService {
	s := &SyncService{
		storefront:          storefront,
		accounting:          accounting,
		shippingAccountCode: shippingAccountCode,
		pickContact:         FirstContact,
		log:                 log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncContact copies one storefront customer to the accounting platform
// as a contact. With update set, an existing contact with the same
// composed name is updated in place; otherwise a new contact is created.
//
// The returned contact reflects the intended field values. On the create
// path it does not carry the server-assigned contact ID.
func (s *SyncService) SyncContact(ctx context.Context, customerID int64, update bool) (*clients.Contact, error) {
	customer, err := s.storefront.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch customer %d: %w", customerID, err)
	}

	name := composedName(customer)

	var existing *clients.Contact
	if update {
		matches, err := s.accounting.FindContactsByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to search contacts for %q: %w", name, err)
		}
		existing = s.pickContact(matches)
	}

	contact := &clients.Contact{
		Name:          name,
		FirstName:     customer.FirstName,
		LastName:      customer.LastName,
		EmailAddress:  customer.Email,
		IsCustomer:    true,
		ContactNumber: strconv.FormatInt(customerID, 10),
	}

	if existing != nil {
		if _, err := s.accounting.UpdateContact(ctx, existing.ContactID, contact); err != nil {
			return nil, fmt.Errorf("failed to update contact %q: %w", name, err)
		}
		s.log.WithFields(logrus.Fields{"customer_id": customerID, "contact": name}).Info("Updated contact")
	} else {
		if _, err := s.accounting.CreateContact(ctx, contact); err != nil {
			return nil, fmt.Errorf("failed to create contact %q: %w", name, err)
		}
		s.log.WithFields(logrus.Fields{"customer_id": customerID, "contact": name}).Info("Created contact")
	}

	return contact, nil
}

// SyncOrder copies one storefront order to the accounting platform as an
// invoice. overrides maps the product name of a line item whose product
// has been deleted from the catalog to the accounting item code to use
// in its place.
//
// If an invoice with the derived invoice number already exists, the call
// logs and returns without side effects.
func (s *SyncService) SyncOrder(ctx context.Context, orderID int64, overrides map[string]string) error {
	s.log.WithField("order_id", orderID).Debug("Copying order")

	order, err := s.storefront.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}

	invoiceNumber := InvoiceNumber(order.OrderNumber)
	existing, err := s.accounting.FindInvoiceByNumber(ctx, invoiceNumber)
	if err != nil {
		return fmt.Errorf("failed to look up invoice %s: %w", invoiceNumber, err)
	}
	if existing != nil {
		s.log.WithField("invoice_number", invoiceNumber).Warn("Invoice already exists")
		return nil
	}

	// One full catalog scan per order copy. Simpler than resolving the
	// order's variants individually, and order volume here is low.
	variants, err := s.storefront.GetAllVariants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list variants: %w", err)
	}
	skuByVariantID := make(map[int64]string, len(variants))
	for _, variant := range variants {
		skuByVariantID[variant.ID] = variant.SKU
	}

	// Validate every line item before writing anything.
	for _, item := range order.LineItems {
		if item.VariantID == nil {
			if _, ok := overrides[item.Name]; !ok {
				return preconditionf("product %q appears to have been deleted but has no item code override", item.Name)
			}
		} else if skuByVariantID[*item.VariantID] == "" {
			return preconditionf("SKU must be set in the storefront for %q", item.Name)
		}
	}

	if order.Customer == nil {
		return preconditionf("order %d has no customer", orderID)
	}

	contact, err := s.resolveContact(ctx, order.Customer)
	if err != nil {
		return err
	}

	if orderHasDiscounts(order) {
		s.log.WithFields(logrus.Fields{"order_id": orderID, "order_number": order.OrderNumber}).Debug("Order has discounts")
	}

	// TODO: map storefront tax lines once tax handling is decided.
	lineItems := make([]clients.InvoiceLineItem, 0, len(order.LineItems)+len(order.ShippingLines))
	for _, item := range order.LineItems {
		itemCode := overrides[item.Name]
		if item.VariantID != nil {
			itemCode = skuByVariantID[*item.VariantID]
		}
		lineItems = append(lineItems, clients.InvoiceLineItem{
			ItemCode:       itemCode,
			Quantity:       decimal.NewFromInt(int64(item.Quantity)),
			UnitAmount:     item.Price,
			DiscountAmount: sumAllocations(item.DiscountAllocations),
		})
	}
	for _, line := range order.ShippingLines {
		lineItems = append(lineItems, clients.InvoiceLineItem{
			Description:    shippingDescription,
			Quantity:       decimal.NewFromInt(1),
			UnitAmount:     line.Price,
			AccountCode:    s.shippingAccountCode,
			DiscountAmount: sumAllocations(line.DiscountAllocations),
		})
	}

	invoice := &clients.Invoice{
		Type:          clients.InvoiceTypeReceivable,
		Contact:       contact,
		LineItems:     lineItems,
		Date:          order.ProcessedAt,
		DueDate:       order.ProcessedAt,
		InvoiceNumber: invoiceNumber,
		Status:        clients.InvoiceStatusAuthorised,
	}

	if _, err := s.accounting.CreateInvoice(ctx, invoice); err != nil {
		return fmt.Errorf("failed to create invoice %s: %w", invoiceNumber, err)
	}
	s.log.WithField("invoice_number", invoiceNumber).Info("Created invoice")
	return nil
}

// SyncOrders copies a batch of orders strictly sequentially, aborting on
// the first failure.
func (s *SyncService) SyncOrders(ctx context.Context, orderIDs []int64, overrides map[string]string) error {
	for _, orderID := range orderIDs {
		if err := s.SyncOrder(ctx, orderID, overrides); err != nil {
			return fmt.Errorf("order %d: %w", orderID, err)
		}
	}
	return nil
}

// PayoutRequest identifies a payout either by id or by date, never both.
type PayoutRequest struct {
	PayoutID                *int64            `json:"payoutId,omitempty"`
	PayoutDate              string            `json:"payoutDate,omitempty"`
	DeletedProductOverrides map[string]string `json:"deletedProductOverrides,omitempty"`
}

// PayoutSummary reports the outcome of a payout batch sync.
type PayoutSummary struct {
	Date         string          `json:"date"`
	PayoutAmount decimal.Decimal `json:"payoutAmount"`
	OrderNumbers []int           `json:"orderNumbers"`
	TotalFees    decimal.Decimal `json:"totalFees"`
}

// SyncPayout copies every order referenced by a payout's transactions.
// Any order failure aborts the whole batch; orders already synced in the
// batch stay synced.
func (s *SyncService) SyncPayout(ctx context.Context, req PayoutRequest) (*PayoutSummary, error) {
	if (req.PayoutID == nil) == (req.PayoutDate == "") {
		return nil, preconditionf("exactly one of payout id and payout date must be provided")
	}

	var payout *clients.Payout
	if req.PayoutID != nil {
		var err error
		payout, err = s.storefront.GetPayout(ctx, *req.PayoutID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch payout %d: %w", *req.PayoutID, err)
		}
	} else {
		payouts, err := s.storefront.GetPayoutsByDate(ctx, req.PayoutDate)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch payouts for %s: %w", req.PayoutDate, err)
		}
		if len(payouts) != 1 {
			return nil, preconditionf("unexpected number of payouts found on %s: %d", req.PayoutDate, len(payouts))
		}
		payout = &payouts[0]
	}

	transactions, err := s.storefront.GetPayoutTransactions(ctx, payout.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions for payout %d: %w", payout.ID, err)
	}

	// Several transactions can reference the same order; each order is
	// copied once.
	orderIDSet := make(map[int64]struct{})
	for _, transaction := range transactions {
		if transaction.SourceOrderID != nil {
			orderIDSet[*transaction.SourceOrderID] = struct{}{}
		}
	}
	orderIDs := make([]int64, 0, len(orderIDSet))
	for orderID := range orderIDSet {
		orderIDs = append(orderIDs, orderID)
	}
	sort.Slice(orderIDs, func(i, j int) bool { return orderIDs[i] < orderIDs[j] })

	if err := s.SyncOrders(ctx, orderIDs, req.DeletedProductOverrides); err != nil {
		return nil, err
	}

	orderNumbers := make([]int, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		order, err := s.storefront.GetOrder(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
		}
		orderNumbers = append(orderNumbers, order.OrderNumber)
	}
	sort.Ints(orderNumbers)

	totalFees := decimal.Zero
	for _, transaction := range transactions {
		totalFees = totalFees.Add(transaction.Fee)
	}

	return &PayoutSummary{
		Date:         payout.Date,
		PayoutAmount: payout.Amount,
		OrderNumbers: orderNumbers,
		TotalFees:    totalFees,
	}, nil
}

// resolveContact finds the accounting contact for a customer by exact
// composed name, creating one when no match exists.
func (s *SyncService) resolveContact(ctx context.Context, customer *clients.Customer) (*clients.Contact, error) {
	name := composedName(customer)
	matches, err := s.accounting.FindContactsByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to search contacts for %q: %w", name, err)
	}
	if contact := s.pickContact(matches); contact != nil {
		return contact, nil
	}
	return s.SyncContact(ctx, customer.ID, false)
}

func composedName(customer *clients.Customer) string {
	return strings.TrimSpace(customer.FirstName) + " " + strings.TrimSpace(customer.LastName)
}

func sumAllocations(allocations []clients.DiscountAllocation) decimal.Decimal {
	total := decimal.Zero
	for _, allocation := range allocations {
		total = total.Add(allocation.Amount)
	}
	return total
}

func orderHasDiscounts(order *clients.Order) bool {
	for _, item := range order.LineItems {
		if len(item.DiscountAllocations) > 0 {
			return true
		}
	}
	for _, line := range order.ShippingLines {
		if len(line.DiscountAllocations) > 0 {
			return true
		}
	}
	return false
}
