package qbsync

import (
	"context"
	"time"

	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/qbo"
)

// Gateway is the slice of the ledger client the engine calls. *qbo.Client
// satisfies it; tests supply a fake.
type Gateway interface {
	FindCustomerByEmail(ctx context.Context, email string) (*qbo.Customer, error)
	FindCustomerByDisplayName(ctx context.Context, name string) (*qbo.Customer, error)
	CreateCustomer(ctx context.Context, customer *qbo.Customer) (*qbo.Customer, error)
	UpdateCustomer(ctx context.Context, customer *qbo.Customer) (*qbo.Customer, error)
	GetCustomer(ctx context.Context, id string) (*qbo.Customer, error)

	CreateInvoice(ctx context.Context, invoice *qbo.Invoice) (*qbo.Invoice, error)
	UpdateInvoice(ctx context.Context, invoice *qbo.Invoice) (*qbo.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*qbo.Invoice, error)

	CreatePayment(ctx context.Context, payment *qbo.Payment) (*qbo.Payment, error)
	UpdatePayment(ctx context.Context, payment *qbo.Payment) (*qbo.Payment, error)
	GetPayment(ctx context.Context, id string) (*qbo.Payment, error)

	CreateCreditMemo(ctx context.Context, memo *qbo.CreditMemo) (*qbo.CreditMemo, error)
	UpdateCreditMemo(ctx context.Context, memo *qbo.CreditMemo) (*qbo.CreditMemo, error)
	GetCreditMemo(ctx context.Context, id string) (*qbo.CreditMemo, error)

	CreateRefundReceipt(ctx context.Context, receipt *qbo.RefundReceipt) (*qbo.RefundReceipt, error)

	CreateItem(ctx context.Context, item *qbo.Item) (*qbo.Item, error)
	FindItemByName(ctx context.Context, name string) (*qbo.Item, error)
	IncomeAccounts(ctx context.Context) ([]qbo.Account, error)
}

// MappingStore is the identity-map slice the engine needs.
type MappingStore interface {
	Get(ctx context.Context, entityType string, localId int) (*models.EntityMapping, error)
	Upsert(ctx context.Context, entityType string, localId int, remoteId string, syncToken string, syncedAt time.Time) error
}

// LogStore appends operation-log rows. Append never returns an error; write
// failures must not change sync outcomes.
type LogStore interface {
	Append(ctx context.Context, entry models.SyncLog)
}

// ReferenceStore serves the configuration tables.
type ReferenceStore interface {
	TaxCodeForRate(ctx context.Context, rateKey string) (string, error)
	GatewayMapping(ctx context.Context, gateway string) (*models.GatewayMapping, error)
	ItemMapping(ctx context.Context, itemType string, itemId int) (string, error)
	SaveItemMapping(ctx context.Context, itemType string, itemId int, remoteItemId string) error
	Setting(ctx context.Context, key, fallback string) (string, error)
	SettingBool(ctx context.Context, key string, fallback bool) (bool, error)
}

// BillingStore reads the billing source tables.
type BillingStore interface {
	GetClient(ctx context.Context, id int) (*models.BillingClient, error)
	GetInvoice(ctx context.Context, id int) (*models.BillingInvoice, error)
	GetInvoiceItems(ctx context.Context, invoiceId int) ([]models.BillingInvoiceItem, error)
	GetTransaction(ctx context.Context, id int) (*models.BillingTransaction, error)
	GetCredit(ctx context.Context, id int) (*models.BillingCredit, error)
	CurrencyCode(ctx context.Context, currencyId int) (string, error)
	ClientCustomFieldValue(ctx context.Context, clientId int, fieldName string) (string, error)
	ProductName(ctx context.Context, id int) (string, error)
	AddonName(ctx context.Context, id int) (string, error)
	UnmappedClientIDs(ctx context.Context, limit int) ([]int, error)
	UnmappedInvoiceIDs(ctx context.Context, limit int) ([]int, error)
	UnmappedPaymentIDs(ctx context.Context, limit int) ([]int, error)
	UnmappedRefundIDs(ctx context.Context, limit int) ([]int, error)
	UnmappedCreditIDs(ctx context.Context, limit int) ([]int, error)
	InvoiceIDsByStatus(ctx context.Context, status string, limit int) ([]int, error)
	InvoiceIDsByDateRange(ctx context.Context, from, to time.Time, limit int) ([]int, error)
	PaymentTransactionIDsForInvoice(ctx context.Context, invoiceId int) ([]int, error)
}
