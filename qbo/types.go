package qbo

import (
	"github.com/shopspring/decimal"
)

func init() {
	// The ledger API rejects string-typed amounts.
	decimal.MarshalJSONWithoutQuotes = true
}

// Ref is the {value, name} reference QuickBooks uses to point at another
// entity. Name is informational and never required on writes.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type EmailAddr struct {
	Address string `json:"Address,omitempty"`
}

type Phone struct {
	FreeFormNumber string `json:"FreeFormNumber,omitempty"`
}

type PhysicalAddress struct {
	Line1                  string `json:"Line1,omitempty"`
	Line2                  string `json:"Line2,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

type Customer struct {
	Id                   string           `json:"Id,omitempty"`
	SyncToken            string           `json:"SyncToken,omitempty"`
	Sparse               bool             `json:"sparse,omitempty"`
	DisplayName          string           `json:"DisplayName,omitempty"`
	GivenName            string           `json:"GivenName,omitempty"`
	FamilyName           string           `json:"FamilyName,omitempty"`
	CompanyName          string           `json:"CompanyName,omitempty"`
	PrimaryEmailAddr     *EmailAddr       `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone         *Phone           `json:"PrimaryPhone,omitempty"`
	BillAddr             *PhysicalAddress `json:"BillAddr,omitempty"`
	PrimaryTaxIdentifier string           `json:"PrimaryTaxIdentifier,omitempty"`
	CurrencyRef          *Ref             `json:"CurrencyRef,omitempty"`
	Active               *bool            `json:"Active,omitempty"`
}

type LinkedTxn struct {
	TxnId   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

type SalesItemLineDetail struct {
	ItemRef    *Ref            `json:"ItemRef,omitempty"`
	Qty        decimal.Decimal `json:"Qty,omitempty"`
	UnitPrice  decimal.Decimal `json:"UnitPrice,omitempty"`
	TaxCodeRef *Ref            `json:"TaxCodeRef,omitempty"`
}

type Line struct {
	Id                  string               `json:"Id,omitempty"`
	Description         string               `json:"Description,omitempty"`
	Amount              decimal.Decimal      `json:"Amount"`
	DetailType          string               `json:"DetailType,omitempty"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
	LinkedTxn           []LinkedTxn          `json:"LinkedTxn,omitempty"`
}

type Invoice struct {
	Id          string          `json:"Id,omitempty"`
	SyncToken   string          `json:"SyncToken,omitempty"`
	Sparse      bool            `json:"sparse,omitempty"`
	CustomerRef *Ref            `json:"CustomerRef,omitempty"`
	DocNumber   string          `json:"DocNumber,omitempty"`
	TxnDate     string          `json:"TxnDate,omitempty"`
	DueDate     string          `json:"DueDate,omitempty"`
	Line        []Line          `json:"Line,omitempty"`
	CurrencyRef *Ref            `json:"CurrencyRef,omitempty"`
	PrivateNote string          `json:"PrivateNote,omitempty"`
	TotalAmt    decimal.Decimal `json:"TotalAmt,omitempty"`
	Balance     decimal.Decimal `json:"Balance,omitempty"`
}

type Payment struct {
	Id                  string          `json:"Id,omitempty"`
	SyncToken           string          `json:"SyncToken,omitempty"`
	CustomerRef         *Ref            `json:"CustomerRef,omitempty"`
	TotalAmt            decimal.Decimal `json:"TotalAmt"`
	TxnDate             string          `json:"TxnDate,omitempty"`
	PaymentRefNum       string          `json:"PaymentRefNum,omitempty"`
	PaymentMethodRef    *Ref            `json:"PaymentMethodRef,omitempty"`
	DepositToAccountRef *Ref            `json:"DepositToAccountRef,omitempty"`
	CurrencyRef         *Ref            `json:"CurrencyRef,omitempty"`
	Line                []Line          `json:"Line,omitempty"`
	PrivateNote         string          `json:"PrivateNote,omitempty"`
}

type CreditMemo struct {
	Id          string          `json:"Id,omitempty"`
	SyncToken   string          `json:"SyncToken,omitempty"`
	CustomerRef *Ref            `json:"CustomerRef,omitempty"`
	TxnDate     string          `json:"TxnDate,omitempty"`
	Line        []Line          `json:"Line,omitempty"`
	CurrencyRef *Ref            `json:"CurrencyRef,omitempty"`
	PrivateNote string          `json:"PrivateNote,omitempty"`
	TotalAmt    decimal.Decimal `json:"TotalAmt,omitempty"`
}

type RefundReceipt struct {
	Id                  string          `json:"Id,omitempty"`
	SyncToken           string          `json:"SyncToken,omitempty"`
	CustomerRef         *Ref            `json:"CustomerRef,omitempty"`
	TxnDate             string          `json:"TxnDate,omitempty"`
	PaymentRefNum       string          `json:"PaymentRefNum,omitempty"`
	PaymentMethodRef    *Ref            `json:"PaymentMethodRef,omitempty"`
	DepositToAccountRef *Ref            `json:"DepositToAccountRef,omitempty"`
	CurrencyRef         *Ref            `json:"CurrencyRef,omitempty"`
	Line                []Line          `json:"Line,omitempty"`
	PrivateNote         string          `json:"PrivateNote,omitempty"`
	TotalAmt            decimal.Decimal `json:"TotalAmt,omitempty"`
}

type Item struct {
	Id               string `json:"Id,omitempty"`
	SyncToken        string `json:"SyncToken,omitempty"`
	Name             string `json:"Name,omitempty"`
	Type             string `json:"Type,omitempty"`
	IncomeAccountRef *Ref   `json:"IncomeAccountRef,omitempty"`
	Active           *bool  `json:"Active,omitempty"`
}

type Account struct {
	Id             string `json:"Id,omitempty"`
	Name           string `json:"Name,omitempty"`
	AccountType    string `json:"AccountType,omitempty"`
	AccountSubType string `json:"AccountSubType,omitempty"`
}

type TaxCode struct {
	Id     string `json:"Id,omitempty"`
	Name   string `json:"Name,omitempty"`
	Active *bool  `json:"Active,omitempty"`
}

type TaxRate struct {
	Id        string          `json:"Id,omitempty"`
	Name      string          `json:"Name,omitempty"`
	RateValue decimal.Decimal `json:"RateValue,omitempty"`
}

type PaymentMethod struct {
	Id   string `json:"Id,omitempty"`
	Name string `json:"Name,omitempty"`
	Type string `json:"Type,omitempty"`
}

type CompanyInfo struct {
	Id          string `json:"Id,omitempty"`
	CompanyName string `json:"CompanyName,omitempty"`
	Country     string `json:"Country,omitempty"`
}

// entityEnvelope is the single-entity response wrapper: the entity sits under
// a key named after its type.
type entityEnvelope struct {
	Customer      *Customer      `json:"Customer,omitempty"`
	Invoice       *Invoice       `json:"Invoice,omitempty"`
	Payment       *Payment       `json:"Payment,omitempty"`
	CreditMemo    *CreditMemo    `json:"CreditMemo,omitempty"`
	RefundReceipt *RefundReceipt `json:"RefundReceipt,omitempty"`
	Item          *Item          `json:"Item,omitempty"`
	CompanyInfo   *CompanyInfo   `json:"CompanyInfo,omitempty"`
}

type queryResponse struct {
	Customer      []Customer      `json:"Customer,omitempty"`
	Invoice       []Invoice       `json:"Invoice,omitempty"`
	Item          []Item          `json:"Item,omitempty"`
	Account       []Account       `json:"Account,omitempty"`
	TaxCode       []TaxCode       `json:"TaxCode,omitempty"`
	TaxRate       []TaxRate       `json:"TaxRate,omitempty"`
	PaymentMethod []PaymentMethod `json:"PaymentMethod,omitempty"`
	MaxResults    int             `json:"maxResults,omitempty"`
	StartPosition int             `json:"startPosition,omitempty"`
}

type queryEnvelope struct {
	QueryResponse queryResponse `json:"QueryResponse"`
}

type faultError struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
}

type faultEnvelope struct {
	Fault *struct {
		Error []faultError `json:"Error"`
		Type  string       `json:"type"`
	} `json:"Fault"`
}
