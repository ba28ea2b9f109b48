package xero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"shopify2xero/internal/clients"
)

const (
	defaultBaseURL        = "https://api.xero.com/api.xro/2.0"
	defaultConnectionsURL = "https://api.xero.com/connections"

	dateFormat = "2006-01-02"
)

// Connection is one entry from the Xero identity connections endpoint.
type Connection struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	TenantType string `json:"tenantType"`
	TenantName string `json:"tenantName"`
}

// TenantPicker selects which connected tenant the client operates on.
type TenantPicker func(connections []Connection) (*Connection, error)

// FirstTenant picks the first connection in the list. This mirrors the
// historical behaviour and breaks down when several tenants are
// connected; inject a different picker to disambiguate.
func FirstTenant(connections []Connection) (*Connection, error) {
	if len(connections) == 0 {
		return nil, fmt.Errorf("no Xero tenants are connected")
	}
	return &connections[0], nil
}

// Option configures a Client.
type Option func(*Client)

// WithTenantPicker overrides the tenant selection policy.
func WithTenantPicker(picker TenantPicker) Option {
	return func(c *Client) { c.tenantPicker = picker }
}

// WithEndpoints overrides the API base URLs, primarily for tests.
func WithEndpoints(baseURL, connectionsURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
		c.connectionsURL = connectionsURL
	}
}

// WithHTTPClient overrides the HTTP client. The default is an
// oauth2-authenticated client built from the token source.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// Client is a Xero accounting API client scoped to a single tenant. The
// tenant is resolved once at construction from the identity connections
// endpoint.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	connectionsURL string
	tenantID       string
	tenantPicker   TenantPicker
}

var _ clients.AccountingClient = (*Client)(nil)

// NewClient creates a Xero client authenticated by the given token
// source and resolves the tenant to operate on.
func NewClient(ctx context.Context, tokenSource oauth2.TokenSource, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:        defaultBaseURL,
		connectionsURL: defaultConnectionsURL,
		tenantPicker:   FirstTenant,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = oauth2.NewClient(ctx, tokenSource)
		c.httpClient.Timeout = 30 * time.Second
	}

	connections, err := c.getConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list Xero connections: %w", err)
	}
	connection, err := c.tenantPicker(connections)
	if err != nil {
		return nil, err
	}
	c.tenantID = connection.TenantID

	return c, nil
}

// TenantID returns the tenant the client is bound to.
func (c *Client) TenantID() string {
	return c.tenantID
}

// FindContactsByName searches contacts by exact display name
func (c *Client) FindContactsByName(ctx context.Context, name string) ([]clients.Contact, error) {
	params := url.Values{"where": {fmt.Sprintf("Name=%q", name)}}
	body, err := c.doRequest(ctx, http.MethodGet, "/Contacts", params, nil)
	if err != nil {
		return nil, err
	}
	return parseContacts(body)
}

// GetAllContacts fetches every contact in the organisation
func (c *Client) GetAllContacts(ctx context.Context) ([]clients.Contact, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/Contacts", nil, nil)
	if err != nil {
		return nil, err
	}
	return parseContacts(body)
}

// CreateContact creates a new contact and returns the server's view of
// it, including the assigned contact ID
func (c *Client) CreateContact(ctx context.Context, contact *clients.Contact) (*clients.Contact, error) {
	payload := contactsEnvelope{Contacts: []xeroContact{convertContactToWire(contact)}}
	body, err := c.doRequest(ctx, http.MethodPut, "/Contacts", nil, payload)
	if err != nil {
		return nil, err
	}
	return parseSingleContact(body)
}

// UpdateContact replaces the fields of an existing contact, preserving
// its contact ID
func (c *Client) UpdateContact(ctx context.Context, contactID string, contact *clients.Contact) (*clients.Contact, error) {
	payload := contactsEnvelope{Contacts: []xeroContact{convertContactToWire(contact)}}
	body, err := c.doRequest(ctx, http.MethodPost, "/Contacts/"+contactID, nil, payload)
	if err != nil {
		return nil, err
	}
	return parseSingleContact(body)
}

// FindInvoiceByNumber looks up an invoice by its invoice number. A nil
// result means no invoice with that number exists.
func (c *Client) FindInvoiceByNumber(ctx context.Context, invoiceNumber string) (*clients.Invoice, error) {
	params := url.Values{"InvoiceNumbers": {invoiceNumber}}
	body, err := c.doRequest(ctx, http.MethodGet, "/Invoices", params, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Invoices []xeroInvoiceSummary `json:"Invoices"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse invoices response: %w", err)
	}
	if len(response.Invoices) == 0 {
		return nil, nil
	}

	inv := response.Invoices[0]
	return &clients.Invoice{
		InvoiceID:     inv.InvoiceID,
		Type:          inv.Type,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        inv.Status,
	}, nil
}

// CreateInvoice creates a new invoice. Xero rejects a second invoice
// with the same invoice number, which backs up the sync engine's own
// duplicate pre-check.
func (c *Client) CreateInvoice(ctx context.Context, invoice *clients.Invoice) (*clients.Invoice, error) {
	payload := invoicesEnvelope{Invoices: []xeroInvoice{convertInvoiceToWire(invoice)}}
	body, err := c.doRequest(ctx, http.MethodPut, "/Invoices", nil, payload)
	if err != nil {
		return nil, err
	}

	var response struct {
		Invoices []xeroInvoiceSummary `json:"Invoices"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse invoices response: %w", err)
	}

	created := *invoice
	if len(response.Invoices) > 0 {
		created.InvoiceID = response.Invoices[0].InvoiceID
	}
	return &created, nil
}

// GetAllItems fetches every inventory item in the organisation
func (c *Client) GetAllItems(ctx context.Context) ([]clients.Item, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/Items", nil, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Items []xeroItem `json:"Items"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse items response: %w", err)
	}

	items := make([]clients.Item, 0, len(response.Items))
	for _, it := range response.Items {
		items = append(items, clients.Item{
			ItemID: it.ItemID,
			Code:   it.Code,
			Name:   it.Name,
		})
	}
	return items, nil
}

func (c *Client) getConnections(ctx context.Context) ([]Connection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.connectionsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("Xero identity error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var connections []Connection
	if err := json.Unmarshal(respBody, &connections); err != nil {
		return nil, fmt.Errorf("failed to parse connections response: %w", err)
	}
	return connections, nil
}

// doRequest performs an authenticated request against the accounting API
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Xero-tenant-id", c.tenantID)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("Xero API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// Xero data structures. Reads deliberately skip date fields: the JSON
// representation of dates on read is Microsoft's /Date(...)/, and
// nothing in this service needs them.
type contactsEnvelope struct {
	Contacts []xeroContact `json:"Contacts"`
}

type xeroContact struct {
	ContactID     string `json:"ContactID,omitempty"`
	Name          string `json:"Name"`
	FirstName     string `json:"FirstName,omitempty"`
	LastName      string `json:"LastName,omitempty"`
	EmailAddress  string `json:"EmailAddress,omitempty"`
	IsCustomer    bool   `json:"IsCustomer,omitempty"`
	ContactNumber string `json:"ContactNumber,omitempty"`
}

type invoicesEnvelope struct {
	Invoices []xeroInvoice `json:"Invoices"`
}

type xeroInvoice struct {
	Type          string         `json:"Type"`
	Contact       xeroContactRef `json:"Contact"`
	LineItems     []xeroLineItem `json:"LineItems"`
	Date          string         `json:"Date"`
	DueDate       string         `json:"DueDate"`
	InvoiceNumber string         `json:"InvoiceNumber"`
	Status        string         `json:"Status"`
}

type xeroContactRef struct {
	ContactID string `json:"ContactID,omitempty"`
	Name      string `json:"Name,omitempty"`
}

type xeroLineItem struct {
	ItemCode       string  `json:"ItemCode,omitempty"`
	Description    string  `json:"Description,omitempty"`
	Quantity       float64 `json:"Quantity"`
	UnitAmount     float64 `json:"UnitAmount"`
	DiscountAmount float64 `json:"DiscountAmount,omitempty"`
	AccountCode    string  `json:"AccountCode,omitempty"`
}

type xeroInvoiceSummary struct {
	InvoiceID     string `json:"InvoiceID"`
	Type          string `json:"Type"`
	InvoiceNumber string `json:"InvoiceNumber"`
	Status        string `json:"Status"`
}

type xeroItem struct {
	ItemID string `json:"ItemID"`
	Code   string `json:"Code"`
	Name   string `json:"Name"`
}

// Helper functions
func convertContactToWire(contact *clients.Contact) xeroContact {
	return xeroContact{
		ContactID:     contact.ContactID,
		Name:          contact.Name,
		FirstName:     contact.FirstName,
		LastName:      contact.LastName,
		EmailAddress:  contact.EmailAddress,
		IsCustomer:    contact.IsCustomer,
		ContactNumber: contact.ContactNumber,
	}
}

func convertContactFromWire(contact xeroContact) clients.Contact {
	return clients.Contact{
		ContactID:     contact.ContactID,
		Name:          contact.Name,
		FirstName:     contact.FirstName,
		LastName:      contact.LastName,
		EmailAddress:  contact.EmailAddress,
		IsCustomer:    contact.IsCustomer,
		ContactNumber: contact.ContactNumber,
	}
}

func convertInvoiceToWire(invoice *clients.Invoice) xeroInvoice {
	wire := xeroInvoice{
		Type:          invoice.Type,
		Date:          invoice.Date.Format(dateFormat),
		DueDate:       invoice.DueDate.Format(dateFormat),
		InvoiceNumber: invoice.InvoiceNumber,
		Status:        invoice.Status,
	}
	if invoice.Contact != nil {
		wire.Contact = xeroContactRef{
			ContactID: invoice.Contact.ContactID,
			Name:      invoice.Contact.Name,
		}
	}
	for _, line := range invoice.LineItems {
		wire.LineItems = append(wire.LineItems, xeroLineItem{
			ItemCode:       line.ItemCode,
			Description:    line.Description,
			Quantity:       line.Quantity.InexactFloat64(),
			UnitAmount:     line.UnitAmount.InexactFloat64(),
			DiscountAmount: line.DiscountAmount.InexactFloat64(),
			AccountCode:    line.AccountCode,
		})
	}
	return wire
}

func parseContacts(body []byte) ([]clients.Contact, error) {
	var response struct {
		Contacts []xeroContact `json:"Contacts"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse contacts response: %w", err)
	}

	contacts := make([]clients.Contact, 0, len(response.Contacts))
	for _, xc := range response.Contacts {
		contacts = append(contacts, convertContactFromWire(xc))
	}
	return contacts, nil
}

func parseSingleContact(body []byte) (*clients.Contact, error) {
	contacts, err := parseContacts(body)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("Xero returned no contact in response")
	}
	return &contacts[0], nil
}
