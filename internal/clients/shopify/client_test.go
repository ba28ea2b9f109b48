package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrderParsesLineItems(t *testing.T) {
	var gotToken, gotPath, gotStatus string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		gotPath = r.URL.Path
		gotStatus = r.URL.Query().Get("status")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"order": {
				"id": 9001,
				"order_number": 1001,
				"processed_at": "2021-10-05T12:30:00Z",
				"customer": {"id": 501, "email": "jane@example.com", "first_name": "Jane", "last_name": "Doe"},
				"line_items": [
					{
						"variant_id": 11,
						"name": "Blue Mug",
						"quantity": 2,
						"price": "9.50",
						"discount_allocations": [{"amount": "2.50"}, {"amount": "1.00"}]
					},
					{
						"variant_id": null,
						"name": "Retired Teapot",
						"quantity": 1,
						"price": "25.00",
						"discount_allocations": []
					}
				],
				"shipping_lines": [
					{"title": "Standard", "price": "4.00", "discount_allocations": [{"amount": "0.50"}]}
				]
			}
		}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	order, err := client.GetOrder(context.Background(), 9001)
	require.NoError(t, err)

	assert.Equal(t, "test-token", gotToken)
	assert.Equal(t, "/admin/api/2021-10/orders/9001.json", gotPath)
	assert.Equal(t, "any", gotStatus)

	assert.Equal(t, int64(9001), order.ID)
	assert.Equal(t, 1001, order.OrderNumber)
	require.NotNil(t, order.Customer)
	assert.Equal(t, "Jane", order.Customer.FirstName)

	require.Len(t, order.LineItems, 2)
	mug := order.LineItems[0]
	require.NotNil(t, mug.VariantID)
	assert.Equal(t, int64(11), *mug.VariantID)
	assert.True(t, mug.Price.Equal(decimal.RequireFromString("9.50")))
	require.Len(t, mug.DiscountAllocations, 2)
	assert.True(t, mug.DiscountAllocations[0].Amount.Equal(decimal.RequireFromString("2.50")))

	teapot := order.LineItems[1]
	assert.Nil(t, teapot.VariantID, "deleted products have a null variant id")

	require.Len(t, order.ShippingLines, 1)
	assert.True(t, order.ShippingLines[0].Price.Equal(decimal.RequireFromString("4.00")))
}

func TestGetAllVariantsFollowsPagination(t *testing.T) {
	var requests []string
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page_info") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2021-10/variants.json?page_info=cursor-2&limit=250>; rel="next"`, server.URL))
			fmt.Fprint(w, `{"variants": [{"id": 11, "product_id": 1, "sku": "MUG-BLUE"}]}`)
			return
		}
		fmt.Fprint(w, `{"variants": [{"id": 12, "product_id": 1, "sku": "MUG-RED"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	variants, err := client.GetAllVariants(context.Background())
	require.NoError(t, err)

	require.Len(t, variants, 2)
	assert.Equal(t, "MUG-BLUE", variants[0].SKU)
	assert.Equal(t, "MUG-RED", variants[1].SKU)

	require.Len(t, requests, 2)
	assert.Contains(t, requests[1], "page_info=cursor-2")
}

func TestGetPayoutTransactionsFiltersByPayout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2021-10/shopify_payments/balance/transactions.json", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("payout_id"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"transactions": [
				{"id": 1, "type": "charge", "fee": "1.20", "amount": "20.00", "source_order_id": 101},
				{"id": 2, "type": "adjustment", "fee": "0.10", "amount": "-0.10", "source_order_id": null}
			]
		}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	transactions, err := client.GetPayoutTransactions(context.Background(), 7)
	require.NoError(t, err)

	require.Len(t, transactions, 2)
	require.NotNil(t, transactions[0].SourceOrderID)
	assert.Equal(t, int64(101), *transactions[0].SourceOrderID)
	assert.True(t, transactions[0].Fee.Equal(decimal.RequireFromString("1.20")))
	assert.Nil(t, transactions[1].SourceOrderID)
}

func TestGetPayoutsByDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2021-10/shopify_payments/payouts.json", r.URL.Path)
		assert.Equal(t, "2021-10-01", r.URL.Query().Get("date"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"payouts": [{"id": 7, "status": "paid", "date": "2021-10-01", "amount": "100.00"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	payouts, err := client.GetPayoutsByDate(context.Background(), "2021-10-01")
	require.NoError(t, err)

	require.Len(t, payouts, 1)
	assert.Equal(t, int64(7), payouts[0].ID)
	assert.True(t, payouts[0].Amount.Equal(decimal.RequireFromString("100.00")))
}

func TestDoRequestSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors": "Invalid API key or access token"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-token")
	_, err := client.GetCustomer(context.Background(), 501)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestParsePagination(t *testing.T) {
	next, hasMore := parsePagination(`<https://example.myshopify.com/admin/api/2021-10/variants.json?page_info=abc&limit=250>; rel="next"`)
	assert.True(t, hasMore)
	assert.Equal(t, "abc", next)

	_, hasMore = parsePagination(`<https://example.myshopify.com/admin/api/2021-10/variants.json?page_info=abc>; rel="previous"`)
	assert.False(t, hasMore)

	_, hasMore = parsePagination("")
	assert.False(t, hasMore)
}
