package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The billing schema below is external and read-only. The engine never
// migrates or writes these tables; it only selects from them over the shared
// connection.

type BillingClient struct {
	ID          int    `gorm:"primary_key;column:id" json:"id"`
	FirstName   string `gorm:"column:firstname" json:"firstname"`
	LastName    string `gorm:"column:lastname" json:"lastname"`
	CompanyName string `gorm:"column:companyname" json:"companyname"`
	Email       string `gorm:"column:email" json:"email"`
	Address1    string `gorm:"column:address1" json:"address1"`
	Address2    string `gorm:"column:address2" json:"address2"`
	City        string `gorm:"column:city" json:"city"`
	State       string `gorm:"column:state" json:"state"`
	PostCode    string `gorm:"column:postcode" json:"postcode"`
	Country     string `gorm:"column:country" json:"country"`
	PhoneNumber string `gorm:"column:phonenumber" json:"phonenumber"`
	CurrencyId  int    `gorm:"column:currency" json:"currency"`
	Status      string `gorm:"column:status" json:"status"`
}

func (BillingClient) TableName() string { return "tblclients" }

type BillingInvoice struct {
	ID            int             `gorm:"primary_key;column:id" json:"id"`
	UserId        int             `gorm:"column:userid" json:"userid"`
	InvoiceNum    string          `gorm:"column:invoicenum" json:"invoicenum"`
	Date          time.Time       `gorm:"column:date" json:"date"`
	DueDate       time.Time       `gorm:"column:duedate" json:"duedate"`
	Subtotal      decimal.Decimal `gorm:"column:subtotal" json:"subtotal"`
	Tax           decimal.Decimal `gorm:"column:tax" json:"tax"`
	Tax2          decimal.Decimal `gorm:"column:tax2" json:"tax2"`
	TaxRate       decimal.Decimal `gorm:"column:taxrate" json:"taxrate"`
	TaxRate2      decimal.Decimal `gorm:"column:taxrate2" json:"taxrate2"`
	Total         decimal.Decimal `gorm:"column:total" json:"total"`
	Status        string          `gorm:"column:status" json:"status"`
	PaymentMethod string          `gorm:"column:paymentmethod" json:"paymentmethod"`
	Notes         string          `gorm:"column:notes" json:"notes"`
}

func (BillingInvoice) TableName() string { return "tblinvoices" }

type BillingInvoiceItem struct {
	ID          int             `gorm:"primary_key;column:id" json:"id"`
	InvoiceId   int             `gorm:"column:invoiceid" json:"invoiceid"`
	UserId      int             `gorm:"column:userid" json:"userid"`
	Type        string          `gorm:"column:type" json:"type"`
	RelId       int             `gorm:"column:relid" json:"relid"`
	Description string          `gorm:"column:description" json:"description"`
	Amount      decimal.Decimal `gorm:"column:amount" json:"amount"`
	Taxed       int             `gorm:"column:taxed" json:"taxed"`
}

func (BillingInvoiceItem) TableName() string { return "tblinvoiceitems" }

// BillingTransaction is one gateway transaction. AmountIn > 0 is a payment;
// AmountIn == 0 with AmountOut > 0 is a refund.
type BillingTransaction struct {
	ID          int             `gorm:"primary_key;column:id" json:"id"`
	UserId      int             `gorm:"column:userid" json:"userid"`
	Gateway     string          `gorm:"column:gateway" json:"gateway"`
	Date        time.Time       `gorm:"column:date" json:"date"`
	Description string          `gorm:"column:description" json:"description"`
	AmountIn    decimal.Decimal `gorm:"column:amountin" json:"amountin"`
	AmountOut   decimal.Decimal `gorm:"column:amountout" json:"amountout"`
	Fees        decimal.Decimal `gorm:"column:fees" json:"fees"`
	TransId     string          `gorm:"column:transid" json:"transid"`
	InvoiceId   int             `gorm:"column:invoiceid" json:"invoiceid"`
	RefundId    int             `gorm:"column:refundid" json:"refundid"`
}

func (BillingTransaction) TableName() string { return "tblaccounts" }

func (t *BillingTransaction) IsRefund() bool {
	return t.AmountIn.IsZero() && t.AmountOut.GreaterThan(decimal.Zero)
}

type BillingCredit struct {
	ID          int             `gorm:"primary_key;column:id" json:"id"`
	ClientId    int             `gorm:"column:clientid" json:"clientid"`
	Date        time.Time       `gorm:"column:date" json:"date"`
	Description string          `gorm:"column:description" json:"description"`
	Amount      decimal.Decimal `gorm:"column:amount" json:"amount"`
	RelId       int             `gorm:"column:relid" json:"relid"`
}

func (BillingCredit) TableName() string { return "tblcredit" }

type BillingCurrency struct {
	ID   int    `gorm:"primary_key;column:id" json:"id"`
	Code string `gorm:"column:code" json:"code"`
}

func (BillingCurrency) TableName() string { return "tblcurrencies" }

type BillingCustomField struct {
	ID        int    `gorm:"primary_key;column:id" json:"id"`
	Type      string `gorm:"column:type" json:"type"`
	FieldName string `gorm:"column:fieldname" json:"fieldname"`
}

func (BillingCustomField) TableName() string { return "tblcustomfields" }

type BillingCustomFieldValue struct {
	FieldId int    `gorm:"column:fieldid" json:"fieldid"`
	RelId   int    `gorm:"column:relid" json:"relid"`
	Value   string `gorm:"column:value" json:"value"`
}

func (BillingCustomFieldValue) TableName() string { return "tblcustomfieldsvalues" }

type BillingProduct struct {
	ID   int    `gorm:"primary_key;column:id" json:"id"`
	Name string `gorm:"column:name" json:"name"`
}

func (BillingProduct) TableName() string { return "tblproducts" }

type BillingAddon struct {
	ID   int    `gorm:"primary_key;column:id" json:"id"`
	Name string `gorm:"column:name" json:"name"`
}

func (BillingAddon) TableName() string { return "tbladdons" }

// BillingStore reads the billing system's tables.
type BillingStore struct {
	db *gorm.DB
}

func NewBillingStore(db *gorm.DB) *BillingStore {
	return &BillingStore{db: db}
}

func (s *BillingStore) takeByID(ctx context.Context, out interface{}, id int) error {
	err := session(ctx, s.db).Where("id = ?", id).Take(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gorm.ErrRecordNotFound
	}
	return err
}

func (s *BillingStore) GetClient(ctx context.Context, id int) (*BillingClient, error) {
	var c BillingClient
	if err := s.takeByID(ctx, &c, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BillingStore) GetInvoice(ctx context.Context, id int) (*BillingInvoice, error) {
	var inv BillingInvoice
	if err := s.takeByID(ctx, &inv, id); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *BillingStore) GetInvoiceItems(ctx context.Context, invoiceId int) ([]BillingInvoiceItem, error) {
	var items []BillingInvoiceItem
	err := session(ctx, s.db).
		Where("invoiceid = ?", invoiceId).
		Order("id").
		Find(&items).Error
	return items, err
}

func (s *BillingStore) GetTransaction(ctx context.Context, id int) (*BillingTransaction, error) {
	var t BillingTransaction
	if err := s.takeByID(ctx, &t, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BillingStore) GetCredit(ctx context.Context, id int) (*BillingCredit, error) {
	var c BillingCredit
	if err := s.takeByID(ctx, &c, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// CurrencyCode resolves a client's currency id to its ISO code, "" when the
// id has no row.
func (s *BillingStore) CurrencyCode(ctx context.Context, currencyId int) (string, error) {
	var c BillingCurrency
	err := session(ctx, s.db).Where("id = ?", currencyId).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.Code, nil
}

// ClientCustomFieldValue reads a client-scoped custom field by name, "" when
// the field or value is absent.
func (s *BillingStore) ClientCustomFieldValue(ctx context.Context, clientId int, fieldName string) (string, error) {
	var field BillingCustomField
	err := session(ctx, s.db).
		Where("type = ? AND fieldname = ?", "client", fieldName).
		Take(&field).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var value BillingCustomFieldValue
	err = session(ctx, s.db).
		Where("fieldid = ? AND relid = ?", field.ID, clientId).
		Take(&value).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.Value, nil
}

func (s *BillingStore) ProductName(ctx context.Context, id int) (string, error) {
	var p BillingProduct
	err := session(ctx, s.db).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

func (s *BillingStore) AddonName(ctx context.Context, id int) (string, error) {
	var a BillingAddon
	err := session(ctx, s.db).Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return a.Name, nil
}

func (s *BillingStore) unmappedIDs(ctx context.Context, table, entityType, extraWhere string, limit int) ([]int, error) {
	var ids []int
	q := session(ctx, s.db).
		Table(table+" t").
		Select("t.id").
		Joins("LEFT JOIN qbsync_entity_mappings m ON m.entity_type = ? AND m.local_id = t.id", entityType).
		Where("m.id IS NULL")
	if extraWhere != "" {
		q = q.Where(extraWhere)
	}
	err := q.Order("t.id").Limit(limit).Pluck("t.id", &ids).Error
	return ids, err
}

// UnmappedClientIDs lists active clients with no mapping yet.
func (s *BillingStore) UnmappedClientIDs(ctx context.Context, limit int) ([]int, error) {
	return s.unmappedIDs(ctx, "tblclients", EntityTypeClient, "t.status = 'Active'", limit)
}

// UnmappedInvoiceIDs excludes drafts; everything else is syncable.
func (s *BillingStore) UnmappedInvoiceIDs(ctx context.Context, limit int) ([]int, error) {
	return s.unmappedIDs(ctx, "tblinvoices", EntityTypeInvoice, "t.status <> 'Draft'", limit)
}

func (s *BillingStore) UnmappedPaymentIDs(ctx context.Context, limit int) ([]int, error) {
	return s.unmappedIDs(ctx, "tblaccounts", EntityTypePayment, "t.amountin > 0", limit)
}

func (s *BillingStore) UnmappedRefundIDs(ctx context.Context, limit int) ([]int, error) {
	return s.unmappedIDs(ctx, "tblaccounts", EntityTypeRefund, "t.amountin = 0 AND t.amountout > 0", limit)
}

func (s *BillingStore) UnmappedCreditIDs(ctx context.Context, limit int) ([]int, error) {
	return s.unmappedIDs(ctx, "tblcredit", EntityTypeCredit, "t.amount > 0", limit)
}

// InvoiceIDsByStatus lists invoice ids with the given billing status,
// regardless of mapping state.
func (s *BillingStore) InvoiceIDsByStatus(ctx context.Context, status string, limit int) ([]int, error) {
	var ids []int
	err := session(ctx, s.db).
		Model(&BillingInvoice{}).
		Where("status = ?", status).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *BillingStore) InvoiceIDsByDateRange(ctx context.Context, from, to time.Time, limit int) ([]int, error) {
	var ids []int
	err := session(ctx, s.db).
		Model(&BillingInvoice{}).
		Where("date >= ? AND date <= ?", from, to).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// PaymentTransactionIDsForInvoice lists the payment transactions applied to
// one invoice.
func (s *BillingStore) PaymentTransactionIDsForInvoice(ctx context.Context, invoiceId int) ([]int, error) {
	var ids []int
	err := session(ctx, s.db).
		Model(&BillingTransaction{}).
		Where("invoiceid = ? AND amountin > 0", invoiceId).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// SyncedClientRow joins a client mapping with the client's display data for
// the admin listing.
type SyncedClientRow struct {
	LocalId      int        `json:"local_id"`
	RemoteId     string     `json:"remote_id"`
	Locked       bool       `json:"locked"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	FirstName    string     `json:"firstname"`
	LastName     string     `json:"lastname"`
	CompanyName  string     `json:"companyname"`
	Email        string     `json:"email"`
}

func (s *BillingStore) ListSyncedClients(ctx context.Context, limit, offset int) ([]SyncedClientRow, error) {
	var rows []SyncedClientRow
	err := session(ctx, s.db).
		Table("qbsync_entity_mappings m").
		Select("m.local_id, m.remote_id, m.locked, m.last_synced_at, c.firstname as first_name, c.lastname as last_name, c.companyname as company_name, c.email").
		Joins("JOIN tblclients c ON c.id = m.local_id").
		Where("m.entity_type = ?", EntityTypeClient).
		Order("m.id desc").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	return rows, err
}

// SyncedInvoiceRow joins an invoice mapping with the invoice's display data.
type SyncedInvoiceRow struct {
	LocalId      int             `json:"local_id"`
	RemoteId     string          `json:"remote_id"`
	Locked       bool            `json:"locked"`
	LastSyncedAt *time.Time      `json:"last_synced_at"`
	UserId       int             `json:"userid"`
	Total        decimal.Decimal `json:"total"`
	Status       string          `json:"status"`
}

func (s *BillingStore) ListSyncedInvoices(ctx context.Context, limit, offset int) ([]SyncedInvoiceRow, error) {
	var rows []SyncedInvoiceRow
	err := session(ctx, s.db).
		Table("qbsync_entity_mappings m").
		Select("m.local_id, m.remote_id, m.locked, m.last_synced_at, i.userid as user_id, i.total, i.status").
		Joins("JOIN tblinvoices i ON i.id = m.local_id").
		Where("m.entity_type = ?", EntityTypeInvoice).
		Order("m.id desc").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	return rows, err
}
