package xero

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopify2xero/internal/clients"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/connections", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": "conn-1", "tenantId": "tenant-1", "tenantType": "ORGANISATION", "tenantName": "Demo Company"}]`)
	})
	mux.HandleFunc("/", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), nil,
		WithHTTPClient(server.Client()),
		WithEndpoints(server.URL, server.URL+"/connections"),
	)
	require.NoError(t, err)
	return client
}

func TestNewClientResolvesFirstTenant(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})
	assert.Equal(t, "tenant-1", client.TenantID())
}

func TestNewClientFailsWithoutConnections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	_, err := NewClient(context.Background(), nil,
		WithHTTPClient(server.Client()),
		WithEndpoints(server.URL, server.URL+"/connections"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Xero tenants")
}

func TestNewClientCustomTenantPicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id": "conn-1", "tenantId": "tenant-1", "tenantName": "First Org"},
			{"id": "conn-2", "tenantId": "tenant-2", "tenantName": "Second Org"}
		]`)
	}))
	defer server.Close()

	byName := func(connections []Connection) (*Connection, error) {
		for i := range connections {
			if connections[i].TenantName == "Second Org" {
				return &connections[i], nil
			}
		}
		return nil, fmt.Errorf("tenant %q is not connected", "Second Org")
	}

	client, err := NewClient(context.Background(), nil,
		WithHTTPClient(server.Client()),
		WithEndpoints(server.URL, server.URL+"/connections"),
		WithTenantPicker(byName),
	)
	require.NoError(t, err)
	assert.Equal(t, "tenant-2", client.TenantID())
}

func TestFindContactsByNameBuildsWhereClause(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Contacts", r.URL.Path)
		assert.Equal(t, `Name="Jane Doe"`, r.URL.Query().Get("where"))
		assert.Equal(t, "tenant-1", r.Header.Get("Xero-tenant-id"))
		fmt.Fprint(w, `{"Contacts": [{"ContactID": "c-1", "Name": "Jane Doe", "EmailAddress": "jane@example.com"}]}`)
	})

	contacts, err := client.FindContactsByName(context.Background(), "Jane Doe")
	require.NoError(t, err)

	require.Len(t, contacts, 1)
	assert.Equal(t, "c-1", contacts[0].ContactID)
	assert.Equal(t, "jane@example.com", contacts[0].EmailAddress)
}

func TestFindInvoiceByNumberReturnsNilWhenAbsent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Invoices", r.URL.Path)
		assert.Equal(t, "INV-SHOPIFY-1001", r.URL.Query().Get("InvoiceNumbers"))
		fmt.Fprint(w, `{"Invoices": []}`)
	})

	invoice, err := client.FindInvoiceByNumber(context.Background(), "INV-SHOPIFY-1001")
	require.NoError(t, err)
	assert.Nil(t, invoice)
}

func TestFindInvoiceByNumberReturnsMatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Invoices": [{"InvoiceID": "inv-1", "Type": "ACCREC", "InvoiceNumber": "INV-SHOPIFY-1001", "Status": "AUTHORISED"}]}`)
	})

	invoice, err := client.FindInvoiceByNumber(context.Background(), "INV-SHOPIFY-1001")
	require.NoError(t, err)

	require.NotNil(t, invoice)
	assert.Equal(t, "inv-1", invoice.InvoiceID)
	assert.Equal(t, "AUTHORISED", invoice.Status)
}

func TestCreateInvoiceWireFormat(t *testing.T) {
	var payload map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/Invoices", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		fmt.Fprint(w, `{"Invoices": [{"InvoiceID": "inv-new", "InvoiceNumber": "INV-SHOPIFY-1001"}]}`)
	})

	processedAt := time.Date(2021, 10, 5, 12, 30, 0, 0, time.UTC)
	invoice := &clients.Invoice{
		Type:          clients.InvoiceTypeReceivable,
		Contact:       &clients.Contact{ContactID: "c-1", Name: "Jane Doe"},
		Date:          processedAt,
		DueDate:       processedAt,
		InvoiceNumber: "INV-SHOPIFY-1001",
		Status:        clients.InvoiceStatusAuthorised,
		LineItems: []clients.InvoiceLineItem{
			{
				ItemCode:       "MUG-BLUE",
				Quantity:       decimal.NewFromInt(2),
				UnitAmount:     decimal.RequireFromString("9.50"),
				DiscountAmount: decimal.RequireFromString("3.50"),
			},
			{
				Description: "Postage",
				Quantity:    decimal.NewFromInt(1),
				UnitAmount:  decimal.RequireFromString("4.00"),
				AccountCode: "425",
			},
		},
	}

	created, err := client.CreateInvoice(context.Background(), invoice)
	require.NoError(t, err)
	assert.Equal(t, "inv-new", created.InvoiceID)

	invoices := payload["Invoices"].([]interface{})
	require.Len(t, invoices, 1)
	wire := invoices[0].(map[string]interface{})

	assert.Equal(t, "ACCREC", wire["Type"])
	assert.Equal(t, "2021-10-05", wire["Date"])
	assert.Equal(t, "2021-10-05", wire["DueDate"])
	assert.Equal(t, "AUTHORISED", wire["Status"])

	contact := wire["Contact"].(map[string]interface{})
	assert.Equal(t, "c-1", contact["ContactID"])

	lines := wire["LineItems"].([]interface{})
	require.Len(t, lines, 2)

	item := lines[0].(map[string]interface{})
	assert.Equal(t, "MUG-BLUE", item["ItemCode"])
	assert.Equal(t, 2.0, item["Quantity"])
	assert.Equal(t, 9.5, item["UnitAmount"])
	assert.Equal(t, 3.5, item["DiscountAmount"])

	shipping := lines[1].(map[string]interface{})
	assert.Equal(t, "Postage", shipping["Description"])
	assert.Equal(t, "425", shipping["AccountCode"])
	_, hasItemCode := shipping["ItemCode"]
	assert.False(t, hasItemCode, "shipping lines carry no item code")
}

func TestCreateContactReturnsServerContact(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/Contacts", r.URL.Path)
		fmt.Fprint(w, `{"Contacts": [{"ContactID": "c-new", "Name": "Jane Doe", "ContactNumber": "501"}]}`)
	})

	created, err := client.CreateContact(context.Background(), &clients.Contact{
		Name:          "Jane Doe",
		ContactNumber: "501",
		IsCustomer:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "c-new", created.ContactID)
}

func TestUpdateContactPostsToContactID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Contacts/c-1", r.URL.Path)
		fmt.Fprint(w, `{"Contacts": [{"ContactID": "c-1", "Name": "Jane Doe"}]}`)
	})

	updated, err := client.UpdateContact(context.Background(), "c-1", &clients.Contact{Name: "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, "c-1", updated.ContactID)
}

func TestDoRequestSurfacesAPIErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"Detail": "AuthorizationUnsuccessful"}`)
	})

	_, err := client.GetAllContacts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
