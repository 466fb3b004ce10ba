package qbsync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/qbo"
)

type fakeMappingStore struct {
	rows map[string]*models.EntityMapping
}

func newFakeMappingStore() *fakeMappingStore {
	return &fakeMappingStore{rows: map[string]*models.EntityMapping{}}
}

func mappingKey(entityType string, localId int) string {
	return entityType + ":" + strconv.Itoa(localId)
}

func (s *fakeMappingStore) Get(ctx context.Context, entityType string, localId int) (*models.EntityMapping, error) {
	m, ok := s.rows[mappingKey(entityType, localId)]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (s *fakeMappingStore) Upsert(ctx context.Context, entityType string, localId int, remoteId string, syncToken string, syncedAt time.Time) error {
	key := mappingKey(entityType, localId)
	if existing, ok := s.rows[key]; ok {
		existing.RemoteId = remoteId
		existing.SyncToken = syncToken
		existing.LastSyncedAt = &syncedAt
		return nil
	}
	s.rows[key] = &models.EntityMapping{
		EntityType:   entityType,
		LocalId:      localId,
		RemoteId:     remoteId,
		SyncToken:    syncToken,
		LastSyncedAt: &syncedAt,
	}
	return nil
}

func (s *fakeMappingStore) set(entityType string, localId int, remoteId string, locked bool) {
	s.rows[mappingKey(entityType, localId)] = &models.EntityMapping{
		EntityType: entityType,
		LocalId:    localId,
		RemoteId:   remoteId,
		Locked:     locked,
	}
}

type fakeLogStore struct {
	entries []models.SyncLog
}

func (s *fakeLogStore) Append(ctx context.Context, entry models.SyncLog) {
	s.entries = append(s.entries, entry)
}

type fakeReferenceStore struct {
	settings map[string]string
	taxCodes map[string]string
	gateways map[string]*models.GatewayMapping
	items    map[string]string
}

func newFakeReferenceStore() *fakeReferenceStore {
	return &fakeReferenceStore{
		settings: map[string]string{},
		taxCodes: map[string]string{},
		gateways: map[string]*models.GatewayMapping{},
		items:    map[string]string{},
	}
}

func (s *fakeReferenceStore) TaxCodeForRate(ctx context.Context, rateKey string) (string, error) {
	return s.taxCodes[rateKey], nil
}

func (s *fakeReferenceStore) GatewayMapping(ctx context.Context, gateway string) (*models.GatewayMapping, error) {
	return s.gateways[gateway], nil
}

func (s *fakeReferenceStore) ItemMapping(ctx context.Context, itemType string, itemId int) (string, error) {
	return s.items[itemType+":"+strconv.Itoa(itemId)], nil
}

func (s *fakeReferenceStore) SaveItemMapping(ctx context.Context, itemType string, itemId int, remoteItemId string) error {
	s.items[itemType+":"+strconv.Itoa(itemId)] = remoteItemId
	return nil
}

func (s *fakeReferenceStore) Setting(ctx context.Context, key, fallback string) (string, error) {
	if v, ok := s.settings[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (s *fakeReferenceStore) SettingBool(ctx context.Context, key string, fallback bool) (bool, error) {
	v, ok := s.settings[key]
	if !ok {
		return fallback, nil
	}
	return v == "1" || v == "true" || v == "on" || v == "yes", nil
}

type fakeBillingStore struct {
	clients  map[int]*models.BillingClient
	invoices map[int]*models.BillingInvoice
	items    map[int][]models.BillingInvoiceItem
	txns     map[int]*models.BillingTransaction
	credits  map[int]*models.BillingCredit
	products map[int]string
	addons   map[int]string
}

func newFakeBillingStore() *fakeBillingStore {
	return &fakeBillingStore{
		clients:  map[int]*models.BillingClient{},
		invoices: map[int]*models.BillingInvoice{},
		items:    map[int][]models.BillingInvoiceItem{},
		txns:     map[int]*models.BillingTransaction{},
		credits:  map[int]*models.BillingCredit{},
		products: map[int]string{},
		addons:   map[int]string{},
	}
}

func (s *fakeBillingStore) GetClient(ctx context.Context, id int) (*models.BillingClient, error) {
	c, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %d not found", id)
	}
	return c, nil
}

func (s *fakeBillingStore) GetInvoice(ctx context.Context, id int) (*models.BillingInvoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d not found", id)
	}
	return inv, nil
}

func (s *fakeBillingStore) GetInvoiceItems(ctx context.Context, invoiceId int) ([]models.BillingInvoiceItem, error) {
	return s.items[invoiceId], nil
}

func (s *fakeBillingStore) GetTransaction(ctx context.Context, id int) (*models.BillingTransaction, error) {
	t, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d not found", id)
	}
	return t, nil
}

func (s *fakeBillingStore) GetCredit(ctx context.Context, id int) (*models.BillingCredit, error) {
	c, ok := s.credits[id]
	if !ok {
		return nil, fmt.Errorf("credit %d not found", id)
	}
	return c, nil
}

func (s *fakeBillingStore) CurrencyCode(ctx context.Context, currencyId int) (string, error) {
	if currencyId == 1 {
		return "USD", nil
	}
	return "", nil
}

func (s *fakeBillingStore) ClientCustomFieldValue(ctx context.Context, clientId int, fieldName string) (string, error) {
	return "", nil
}

func (s *fakeBillingStore) ProductName(ctx context.Context, id int) (string, error) {
	return s.products[id], nil
}

func (s *fakeBillingStore) AddonName(ctx context.Context, id int) (string, error) {
	return s.addons[id], nil
}

func (s *fakeBillingStore) UnmappedClientIDs(ctx context.Context, limit int) ([]int, error) {
	return nil, nil
}

func (s *fakeBillingStore) UnmappedInvoiceIDs(ctx context.Context, limit int) ([]int, error) {
	return nil, nil
}

func (s *fakeBillingStore) UnmappedPaymentIDs(ctx context.Context, limit int) ([]int, error) {
	return nil, nil
}

func (s *fakeBillingStore) UnmappedRefundIDs(ctx context.Context, limit int) ([]int, error) {
	return nil, nil
}

func (s *fakeBillingStore) UnmappedCreditIDs(ctx context.Context, limit int) ([]int, error) {
	return nil, nil
}

func (s *fakeBillingStore) InvoiceIDsByStatus(ctx context.Context, status string, limit int) ([]int, error) {
	var ids []int
	for id, inv := range s.invoices {
		if inv.Status == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeBillingStore) InvoiceIDsByDateRange(ctx context.Context, from, to time.Time, limit int) ([]int, error) {
	return nil, nil
}

func (s *fakeBillingStore) PaymentTransactionIDsForInvoice(ctx context.Context, invoiceId int) ([]int, error) {
	var ids []int
	for id, t := range s.txns {
		if t.InvoiceId == invoiceId && !t.IsRefund() && !t.AmountIn.IsZero() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fakeGateway records calls and serves canned remote state. Remote ids are
// allocated sequentially from nextId.
type fakeGateway struct {
	nextId int

	customersByEmail map[string]*qbo.Customer
	customersByName  map[string]*qbo.Customer
	customersById    map[string]*qbo.Customer
	invoicesById     map[string]*qbo.Invoice
	paymentsById     map[string]*qbo.Payment
	memosById        map[string]*qbo.CreditMemo
	itemsByName      map[string]*qbo.Item
	incomeAccounts   []qbo.Account

	calls map[string]int

	failCreateInvoiceDoc string
	failCreateItemName   string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextId:           100,
		customersByEmail: map[string]*qbo.Customer{},
		customersByName:  map[string]*qbo.Customer{},
		customersById:    map[string]*qbo.Customer{},
		invoicesById:     map[string]*qbo.Invoice{},
		paymentsById:     map[string]*qbo.Payment{},
		memosById:        map[string]*qbo.CreditMemo{},
		itemsByName:      map[string]*qbo.Item{},
		incomeAccounts:   []qbo.Account{{Id: "income-1", Name: "Sales", AccountType: "Income"}},
		calls:            map[string]int{},
	}
}

func (g *fakeGateway) called(name string) {
	g.calls[name]++
}

func (g *fakeGateway) totalCalls() int {
	total := 0
	for _, n := range g.calls {
		total += n
	}
	return total
}

func (g *fakeGateway) allocId() string {
	g.nextId++
	return strconv.Itoa(g.nextId)
}

func (g *fakeGateway) FindCustomerByEmail(ctx context.Context, email string) (*qbo.Customer, error) {
	g.called("FindCustomerByEmail")
	return g.customersByEmail[email], nil
}

func (g *fakeGateway) FindCustomerByDisplayName(ctx context.Context, name string) (*qbo.Customer, error) {
	g.called("FindCustomerByDisplayName")
	return g.customersByName[name], nil
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, customer *qbo.Customer) (*qbo.Customer, error) {
	g.called("CreateCustomer")
	created := *customer
	created.Id = g.allocId()
	created.SyncToken = "0"
	g.customersById[created.Id] = &created
	g.customersByName[created.DisplayName] = &created
	return &created, nil
}

func (g *fakeGateway) UpdateCustomer(ctx context.Context, customer *qbo.Customer) (*qbo.Customer, error) {
	g.called("UpdateCustomer")
	existing, ok := g.customersById[customer.Id]
	if !ok {
		return nil, &qbo.APIError{StatusCode: 404, Message: "customer not found"}
	}
	if existing.SyncToken != customer.SyncToken {
		return nil, &qbo.APIError{StatusCode: 400, Message: "stale object"}
	}
	updated := *customer
	updated.SyncToken = strconv.Itoa(atoiOrZero(existing.SyncToken) + 1)
	g.customersById[updated.Id] = &updated
	return &updated, nil
}

func (g *fakeGateway) GetCustomer(ctx context.Context, id string) (*qbo.Customer, error) {
	g.called("GetCustomer")
	c, ok := g.customersById[id]
	if !ok {
		return nil, &qbo.APIError{StatusCode: 404, Message: "customer not found"}
	}
	return c, nil
}

func (g *fakeGateway) CreateInvoice(ctx context.Context, invoice *qbo.Invoice) (*qbo.Invoice, error) {
	g.called("CreateInvoice")
	if g.failCreateInvoiceDoc != "" && invoice.DocNumber == g.failCreateInvoiceDoc {
		return nil, &qbo.APIError{StatusCode: 400, Message: "Business Validation Error"}
	}
	created := *invoice
	created.Id = g.allocId()
	created.SyncToken = "0"
	g.invoicesById[created.Id] = &created
	return &created, nil
}

func (g *fakeGateway) UpdateInvoice(ctx context.Context, invoice *qbo.Invoice) (*qbo.Invoice, error) {
	g.called("UpdateInvoice")
	existing, ok := g.invoicesById[invoice.Id]
	if !ok {
		return nil, &qbo.APIError{StatusCode: 404, Message: "invoice not found"}
	}
	if existing.SyncToken != invoice.SyncToken {
		return nil, &qbo.APIError{StatusCode: 400, Message: "stale object"}
	}
	updated := *invoice
	updated.SyncToken = strconv.Itoa(atoiOrZero(existing.SyncToken) + 1)
	g.invoicesById[updated.Id] = &updated
	return &updated, nil
}

func (g *fakeGateway) GetInvoice(ctx context.Context, id string) (*qbo.Invoice, error) {
	g.called("GetInvoice")
	inv, ok := g.invoicesById[id]
	if !ok {
		return nil, &qbo.APIError{StatusCode: 404, Message: "invoice not found"}
	}
	return inv, nil
}

func (g *fakeGateway) CreatePayment(ctx context.Context, payment *qbo.Payment) (*qbo.Payment, error) {
	g.called("CreatePayment")
	created := *payment
	created.Id = g.allocId()
	created.SyncToken = "0"
	g.paymentsById[created.Id] = &created
	return &created, nil
}

func (g *fakeGateway) UpdatePayment(ctx context.Context, payment *qbo.Payment) (*qbo.Payment, error) {
	g.called("UpdatePayment")
	existing, ok := g.paymentsById[payment.Id]
	if !ok {
		return nil, &qbo.APIError{StatusCode: 404, Message: "payment not found"}
	}
	updated := *payment
	updated.SyncToken = strconv.Itoa(atoiOrZero(existing.SyncToken) + 1)
	g.paymentsById[updated.Id] = &updated
	return &updated, nil
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (*qbo.Payment, error) {
	g.called("GetPayment")
	p, ok := g.paymentsById[id]
	if !ok {
		return nil, &qbo.APIError{StatusCode: 404, Message: "payment not found"}
	}
	return p, nil
}

func (g *fakeGateway) CreateCreditMemo(ctx context.Context, memo *qbo.CreditMemo) (*qbo.CreditMemo, error) {
	g.called("CreateCreditMemo")
	created := *memo
	created.Id = g.allocId()
	created.SyncToken = "0"
	g.memosById[created.Id] = &created
	return &created, nil
}

func (g *fakeGateway) UpdateCreditMemo(ctx context.Context, memo *qbo.CreditMemo) (*qbo.CreditMemo, error) {
	g.called("UpdateCreditMemo")
	existing, ok := g.memosById[memo.Id]
	if !ok {
		return nil, &qbo.APIError{StatusCode: 404, Message: "credit memo not found"}
	}
	updated := *memo
	updated.SyncToken = strconv.Itoa(atoiOrZero(existing.SyncToken) + 1)
	g.memosById[updated.Id] = &updated
	return &updated, nil
}

func (g *fakeGateway) GetCreditMemo(ctx context.Context, id string) (*qbo.CreditMemo, error) {
	g.called("GetCreditMemo")
	m, ok := g.memosById[id]
	if !ok {
		return nil, &qbo.APIError{StatusCode: 404, Message: "credit memo not found"}
	}
	return m, nil
}

func (g *fakeGateway) CreateRefundReceipt(ctx context.Context, receipt *qbo.RefundReceipt) (*qbo.RefundReceipt, error) {
	g.called("CreateRefundReceipt")
	created := *receipt
	created.Id = g.allocId()
	created.SyncToken = "0"
	return &created, nil
}

func (g *fakeGateway) CreateItem(ctx context.Context, item *qbo.Item) (*qbo.Item, error) {
	g.called("CreateItem")
	if g.failCreateItemName != "" && item.Name == g.failCreateItemName {
		return nil, &qbo.APIError{StatusCode: 400, Message: "Duplicate Name Exists Error"}
	}
	created := *item
	created.Id = g.allocId()
	g.itemsByName[created.Name] = &created
	return &created, nil
}

func (g *fakeGateway) FindItemByName(ctx context.Context, name string) (*qbo.Item, error) {
	g.called("FindItemByName")
	return g.itemsByName[name], nil
}

func (g *fakeGateway) IncomeAccounts(ctx context.Context) ([]qbo.Account, error) {
	g.called("IncomeAccounts")
	return g.incomeAccounts, nil
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

type testEnv struct {
	engine   *Engine
	gateway  *fakeGateway
	mappings *fakeMappingStore
	logs     *fakeLogStore
	refs     *fakeReferenceStore
	billing  *fakeBillingStore
}

func newTestEnv() *testEnv {
	gateway := newFakeGateway()
	mappings := newFakeMappingStore()
	logs := &fakeLogStore{}
	refs := newFakeReferenceStore()
	billing := newFakeBillingStore()
	return &testEnv{
		engine:   NewEngine(gateway, mappings, logs, refs, billing),
		gateway:  gateway,
		mappings: mappings,
		logs:     logs,
		refs:     refs,
		billing:  billing,
	}
}
