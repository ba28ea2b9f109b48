package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"shopify2xero/internal/clients"
)

const (
	// apiVersion is pinned; bumping it is a deliberate change, not config.
	apiVersion = "2021-10"

	// Payout resources live under a non-standard prefix of the Admin API.
	payoutsPath      = "/shopify_payments/payouts"
	transactionsPath = "/shopify_payments/balance/transactions"

	pageLimit = 250
)

// Client is a Shopify Admin REST API client scoped to a single shop.
// All operations are read-only.
type Client struct {
	httpClient  *http.Client
	shopURL     string
	accessToken string
	rateLimiter *rate.Limiter
}

var _ clients.StorefrontClient = (*Client)(nil)

// NewClient creates a Shopify Admin API client for the given shop domain
// (for example "example.myshopify.com") and access token. A full URL is
// accepted in place of a domain.
func NewClient(shopDomain, accessToken string) *Client {
	shopURL := strings.TrimSuffix(shopDomain, "/")
	if !strings.HasPrefix(shopURL, "http://") && !strings.HasPrefix(shopURL, "https://") {
		shopURL = "https://" + shopURL
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		shopURL:     shopURL,
		accessToken: accessToken,
		rateLimiter: rate.NewLimiter(rate.Limit(2), 1), // 2 requests per second
	}
}

// TestConnection verifies the connection is working
func (c *Client) TestConnection(ctx context.Context) error {
	_, _, err := c.doRequest(ctx, "/shop.json", nil)
	return err
}

// GetCustomer fetches a single customer by ID
func (c *Client) GetCustomer(ctx context.Context, customerID int64) (*clients.Customer, error) {
	body, _, err := c.doRequest(ctx, fmt.Sprintf("/customers/%d.json", customerID), nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Customer shopifyCustomer `json:"customer"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse customer response: %w", err)
	}

	customer := convertCustomer(response.Customer)
	return &customer, nil
}

// GetAllCustomers fetches every customer in the shop
func (c *Client) GetAllCustomers(ctx context.Context) ([]clients.Customer, error) {
	var customers []clients.Customer
	err := c.paginate(ctx, "/customers.json", nil, func(body []byte) (int, error) {
		var response struct {
			Customers []shopifyCustomer `json:"customers"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return 0, fmt.Errorf("failed to parse customers response: %w", err)
		}
		for _, sc := range response.Customers {
			customers = append(customers, convertCustomer(sc))
		}
		return len(response.Customers), nil
	})
	return customers, err
}

// GetOrder fetches a single order by ID regardless of status
func (c *Client) GetOrder(ctx context.Context, orderID int64) (*clients.Order, error) {
	body, _, err := c.doRequest(ctx, fmt.Sprintf("/orders/%d.json", orderID), url.Values{"status": {"any"}})
	if err != nil {
		return nil, err
	}

	var response struct {
		Order shopifyOrder `json:"order"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}

	order, err := convertOrder(response.Order)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetAllOrders fetches every order in the shop, all statuses included
func (c *Client) GetAllOrders(ctx context.Context) ([]clients.Order, error) {
	var orders []clients.Order
	err := c.paginate(ctx, "/orders.json", url.Values{"status": {"any"}}, func(body []byte) (int, error) {
		var response struct {
			Orders []shopifyOrder `json:"orders"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return 0, fmt.Errorf("failed to parse orders response: %w", err)
		}
		for _, so := range response.Orders {
			order, err := convertOrder(so)
			if err != nil {
				return 0, err
			}
			orders = append(orders, *order)
		}
		return len(response.Orders), nil
	})
	return orders, err
}

// GetVariant fetches a single product variant by ID
func (c *Client) GetVariant(ctx context.Context, variantID int64) (*clients.Variant, error) {
	body, _, err := c.doRequest(ctx, fmt.Sprintf("/variants/%d.json", variantID), nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Variant shopifyVariant `json:"variant"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse variant response: %w", err)
	}

	variant := convertVariant(response.Variant)
	return &variant, nil
}

// GetAllVariants fetches every product variant in the catalog. Order sync
// uses this to build the variant-id to SKU map for a whole order in one
// scan rather than fetching variants one by one.
func (c *Client) GetAllVariants(ctx context.Context) ([]clients.Variant, error) {
	var variants []clients.Variant
	err := c.paginate(ctx, "/variants.json", nil, func(body []byte) (int, error) {
		var response struct {
			Variants []shopifyVariant `json:"variants"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return 0, fmt.Errorf("failed to parse variants response: %w", err)
		}
		for _, sv := range response.Variants {
			variants = append(variants, convertVariant(sv))
		}
		return len(response.Variants), nil
	})
	return variants, err
}

// GetAllProducts fetches every product in the catalog
func (c *Client) GetAllProducts(ctx context.Context) ([]clients.Product, error) {
	var products []clients.Product
	err := c.paginate(ctx, "/products.json", nil, func(body []byte) (int, error) {
		var response struct {
			Products []shopifyProduct `json:"products"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return 0, fmt.Errorf("failed to parse products response: %w", err)
		}
		for _, sp := range response.Products {
			product := clients.Product{
				ID:     sp.ID,
				Title:  sp.Title,
				Status: sp.Status,
			}
			for _, sv := range sp.Variants {
				product.Variants = append(product.Variants, convertVariant(sv))
			}
			products = append(products, product)
		}
		return len(response.Products), nil
	})
	return products, err
}

// GetPayout fetches a single payout by ID
func (c *Client) GetPayout(ctx context.Context, payoutID int64) (*clients.Payout, error) {
	body, _, err := c.doRequest(ctx, fmt.Sprintf("%s/%d.json", payoutsPath, payoutID), nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Payout shopifyPayout `json:"payout"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse payout response: %w", err)
	}

	payout, err := convertPayout(response.Payout)
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// GetPayoutsByDate fetches all payouts issued on the given date
// (YYYY-MM-DD)
func (c *Client) GetPayoutsByDate(ctx context.Context, date string) ([]clients.Payout, error) {
	return c.listPayouts(ctx, url.Values{"date": {date}})
}

// GetAllPayouts fetches every payout for the shop
func (c *Client) GetAllPayouts(ctx context.Context) ([]clients.Payout, error) {
	return c.listPayouts(ctx, nil)
}

func (c *Client) listPayouts(ctx context.Context, params url.Values) ([]clients.Payout, error) {
	var payouts []clients.Payout
	err := c.paginate(ctx, payoutsPath+".json", params, func(body []byte) (int, error) {
		var response struct {
			Payouts []shopifyPayout `json:"payouts"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return 0, fmt.Errorf("failed to parse payouts response: %w", err)
		}
		for _, sp := range response.Payouts {
			payout, err := convertPayout(sp)
			if err != nil {
				return 0, err
			}
			payouts = append(payouts, *payout)
		}
		return len(response.Payouts), nil
	})
	return payouts, err
}

// GetPayoutTransactions fetches all balance transactions belonging to a
// payout
func (c *Client) GetPayoutTransactions(ctx context.Context, payoutID int64) ([]clients.Transaction, error) {
	params := url.Values{"payout_id": {strconv.FormatInt(payoutID, 10)}}

	var transactions []clients.Transaction
	err := c.paginate(ctx, transactionsPath+".json", params, func(body []byte) (int, error) {
		var response struct {
			Transactions []shopifyTransaction `json:"transactions"`
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return 0, fmt.Errorf("failed to parse transactions response: %w", err)
		}
		for _, st := range response.Transactions {
			transaction, err := convertTransaction(st)
			if err != nil {
				return 0, err
			}
			transactions = append(transactions, *transaction)
		}
		return len(response.Transactions), nil
	})
	return transactions, err
}

// paginate walks a cursor-paginated collection endpoint, invoking handle
// for every page body until the Link header reports no next page.
func (c *Client) paginate(ctx context.Context, path string, params url.Values, handle func(body []byte) (int, error)) error {
	pageParams := url.Values{}
	for key, values := range params {
		pageParams[key] = values
	}
	pageParams.Set("limit", strconv.Itoa(pageLimit))

	for {
		body, headers, err := c.doRequest(ctx, path, pageParams)
		if err != nil {
			return err
		}

		count, err := handle(body)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}

		nextCursor, hasMore := parsePagination(headers.Get("Link"))
		if !hasMore {
			return nil
		}

		// Shopify rejects filter params alongside page_info.
		pageParams = url.Values{}
		pageParams.Set("limit", strconv.Itoa(pageLimit))
		pageParams.Set("page_info", nextCursor)
	}
}

// doRequest performs an authenticated GET against the Admin API
func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, http.Header, error) {
	// Rate limiting
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	fullURL := fmt.Sprintf("%s/admin/api/%s%s", c.shopURL, apiVersion, path)
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, nil, err
	}

	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("Shopify API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, resp.Header, nil
}

// Shopify data structures
type shopifyCustomer struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type shopifyProduct struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	Status   string           `json:"status"`
	Variants []shopifyVariant `json:"variants"`
}

type shopifyVariant struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
}

type shopifyOrder struct {
	ID            int64                 `json:"id"`
	OrderNumber   int                   `json:"order_number"`
	ProcessedAt   time.Time             `json:"processed_at"`
	Customer      *shopifyCustomer      `json:"customer"`
	LineItems     []shopifyLineItem     `json:"line_items"`
	ShippingLines []shopifyShippingLine `json:"shipping_lines"`
}

type shopifyLineItem struct {
	VariantID           *int64                      `json:"variant_id"`
	Name                string                      `json:"name"`
	Quantity            int                         `json:"quantity"`
	Price               string                      `json:"price"`
	DiscountAllocations []shopifyDiscountAllocation `json:"discount_allocations"`
}

type shopifyShippingLine struct {
	Title               string                      `json:"title"`
	Price               string                      `json:"price"`
	DiscountAllocations []shopifyDiscountAllocation `json:"discount_allocations"`
}

type shopifyDiscountAllocation struct {
	Amount string `json:"amount"`
}

type shopifyPayout struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

type shopifyTransaction struct {
	ID            int64  `json:"id"`
	Type          string `json:"type"`
	Fee           string `json:"fee"`
	Amount        string `json:"amount"`
	SourceOrderID *int64 `json:"source_order_id"`
}

// Helper functions
func convertCustomer(sc shopifyCustomer) clients.Customer {
	return clients.Customer{
		ID:        sc.ID,
		FirstName: sc.FirstName,
		LastName:  sc.LastName,
		Email:     sc.Email,
	}
}

func convertVariant(sv shopifyVariant) clients.Variant {
	return clients.Variant{
		ID:        sv.ID,
		ProductID: sv.ProductID,
		SKU:       sv.SKU,
	}
}

func convertOrder(so shopifyOrder) (*clients.Order, error) {
	order := &clients.Order{
		ID:          so.ID,
		OrderNumber: so.OrderNumber,
		ProcessedAt: so.ProcessedAt,
	}

	if so.Customer != nil {
		customer := convertCustomer(*so.Customer)
		order.Customer = &customer
	}

	for _, item := range so.LineItems {
		price, err := parseAmount(item.Price)
		if err != nil {
			return nil, fmt.Errorf("order %d line item %q: %w", so.ID, item.Name, err)
		}
		allocations, err := convertAllocations(item.DiscountAllocations)
		if err != nil {
			return nil, fmt.Errorf("order %d line item %q: %w", so.ID, item.Name, err)
		}
		order.LineItems = append(order.LineItems, clients.LineItem{
			VariantID:           item.VariantID,
			Name:                item.Name,
			Quantity:            item.Quantity,
			Price:               price,
			DiscountAllocations: allocations,
		})
	}

	for _, line := range so.ShippingLines {
		price, err := parseAmount(line.Price)
		if err != nil {
			return nil, fmt.Errorf("order %d shipping line %q: %w", so.ID, line.Title, err)
		}
		allocations, err := convertAllocations(line.DiscountAllocations)
		if err != nil {
			return nil, fmt.Errorf("order %d shipping line %q: %w", so.ID, line.Title, err)
		}
		order.ShippingLines = append(order.ShippingLines, clients.ShippingLine{
			Title:               line.Title,
			Price:               price,
			DiscountAllocations: allocations,
		})
	}

	return order, nil
}

func convertAllocations(in []shopifyDiscountAllocation) ([]clients.DiscountAllocation, error) {
	var out []clients.DiscountAllocation
	for _, alloc := range in {
		amount, err := parseAmount(alloc.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, clients.DiscountAllocation{Amount: amount})
	}
	return out, nil
}

func convertPayout(sp shopifyPayout) (*clients.Payout, error) {
	amount, err := parseAmount(sp.Amount)
	if err != nil {
		return nil, fmt.Errorf("payout %d: %w", sp.ID, err)
	}
	return &clients.Payout{
		ID:     sp.ID,
		Date:   sp.Date,
		Amount: amount,
		Status: sp.Status,
	}, nil
}

func convertTransaction(st shopifyTransaction) (*clients.Transaction, error) {
	fee, err := parseAmount(st.Fee)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", st.ID, err)
	}
	amount, err := parseAmount(st.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", st.ID, err)
	}
	return &clients.Transaction{
		ID:            st.ID,
		Type:          st.Type,
		Fee:           fee,
		Amount:        amount,
		SourceOrderID: st.SourceOrderID,
	}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}

func parsePagination(linkHeader string) (string, bool) {
	// Parse Link header for cursor pagination
	// Format: <url>; rel="next", <url>; rel="previous"
	if linkHeader == "" {
		return "", false
	}
	parts := strings.Split(linkHeader, ",")
	for _, part := range parts {
		if strings.Contains(part, `rel="next"`) {
			urlPart := strings.TrimSpace(strings.Split(part, ";")[0])
			urlPart = strings.Trim(urlPart, "<>")
			if parsedURL, err := url.Parse(urlPart); err == nil {
				return parsedURL.Query().Get("page_info"), true
			}
		}
	}
	return "", false
}
