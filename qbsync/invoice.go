package qbsync

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/qbo"
	"github.com/hostbooks/qbsync_backend/utils"
	"github.com/shopspring/decimal"
)

const (
	maxDescription = 4000
	maxDocNumber   = 21
	txnDateFormat  = "2006-01-02"
)

func (e *Engine) syncInvoice(ctx context.Context, localId int, force bool, depth int) Result {
	entityType := models.EntityTypeInvoice

	invoice, err := e.billing.GetInvoice(ctx, localId)
	if err != nil {
		return errorResult(entityType, localId, fmt.Errorf("%w: invoice #%d", ErrNotFound, localId))
	}

	if invoice.Total.IsZero() {
		syncZero, err := e.refs.SettingBool(ctx, models.SettingSyncZeroInvoices, false)
		if err != nil {
			return errorResult(entityType, localId, err)
		}
		if !syncZero {
			return skipResult(entityType, localId, "zero-total invoice")
		}
	}

	mapping, err := e.mappings.Get(ctx, entityType, localId)
	if err != nil {
		return errorResult(entityType, localId, err)
	}
	if r := e.checkLock(mapping, entityType, localId, force); r != nil {
		return *r
	}

	customerId, err := e.ensureCustomer(ctx, invoice.UserId, depth)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
	}

	payload, err := e.buildInvoicePayload(ctx, invoice, customerId)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
	}

	if mapping != nil {
		current, err := e.gateway.GetInvoice(ctx, mapping.RemoteId)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionUpdate, payload, err)
		}
		payload.Id = current.Id
		payload.SyncToken = current.SyncToken
		updated, err := e.gateway.UpdateInvoice(ctx, payload)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionUpdate, payload, err)
		}
		if err := e.persist(ctx, entityType, localId, models.ActionUpdate, updated.Id, updated.SyncToken, payload, updated); err != nil {
			return errorResult(entityType, localId, err)
		}
		return Result{EntityType: entityType, LocalId: localId, Success: true, Action: models.ActionUpdate, RemoteId: updated.Id}
	}

	created, err := e.gateway.CreateInvoice(ctx, payload)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionCreate, payload, err)
	}
	if err := e.persist(ctx, entityType, localId, models.ActionCreate, created.Id, created.SyncToken, payload, created); err != nil {
		return errorResult(entityType, localId, err)
	}
	return Result{EntityType: entityType, LocalId: localId, Success: true, Action: models.ActionCreate, RemoteId: created.Id}
}

func (e *Engine) buildInvoicePayload(ctx context.Context, invoice *models.BillingInvoice, customerId string) (*qbo.Invoice, error) {
	items, err := e.billing.GetInvoiceItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}

	// Remote lines carry a single tax code, so a second-level rate folds
	// into one combined rate for the lookup.
	taxCodeId := ""
	totalRate := invoice.TaxRate.Add(invoice.TaxRate2)
	if totalRate.GreaterThan(decimal.Zero) {
		taxCodeId, err = e.refs.TaxCodeForRate(ctx, rateKey(totalRate))
		if err != nil {
			return nil, err
		}
	}

	lines := make([]qbo.Line, 0, len(items))
	for _, item := range items {
		itemType, itemId := classifyLineItem(item)
		name, err := e.lineItemName(ctx, itemType, itemId)
		if err != nil {
			return nil, err
		}
		remoteItemId, err := e.getOrCreateItem(ctx, itemType, itemId, name)
		if err != nil {
			return nil, err
		}

		detail := &qbo.SalesItemLineDetail{
			ItemRef:   &qbo.Ref{Value: remoteItemId},
			Qty:       decimal.NewFromInt(1),
			UnitPrice: item.Amount,
		}
		if item.Taxed == 1 && taxCodeId != "" {
			detail.TaxCodeRef = &qbo.Ref{Value: taxCodeId}
		}
		lines = append(lines, qbo.Line{
			Description:         utils.Truncate(item.Description, maxDescription),
			Amount:              item.Amount,
			DetailType:          "SalesItemLineDetail",
			SalesItemLineDetail: detail,
		})
	}

	docNumber := strings.TrimSpace(invoice.InvoiceNum)
	if docNumber == "" {
		docNumber = strconv.Itoa(invoice.ID)
	}

	payload := &qbo.Invoice{
		CustomerRef: &qbo.Ref{Value: customerId},
		DocNumber:   utils.Truncate(docNumber, maxDocNumber),
		TxnDate:     invoice.Date.Format(txnDateFormat),
		DueDate:     invoice.DueDate.Format(txnDateFormat),
		Line:        lines,
		PrivateNote: utils.Truncate(invoice.Notes, maxDescription),
	}

	multiCurrency, err := e.refs.SettingBool(ctx, models.SettingMultiCurrency, false)
	if err != nil {
		return nil, err
	}
	if multiCurrency {
		client, err := e.billing.GetClient(ctx, invoice.UserId)
		if err == nil {
			code, err := e.billing.CurrencyCode(ctx, client.CurrencyId)
			if err == nil && code != "" {
				payload.CurrencyRef = &qbo.Ref{Value: code}
			}
		}
	}
	return payload, nil
}

// rateKey renders a tax rate in basis points: 7.5% -> "750". Keying on an
// integer string keeps float formatting out of the mapping table.
func rateKey(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).Round(0).String()
}

// classifyLineItem buckets a billing line into the item taxonomy used for
// ledger item mapping.
func classifyLineItem(item models.BillingInvoiceItem) (string, int) {
	switch {
	case item.Type == "Hosting":
		return models.ItemTypeProduct, item.RelId
	case item.Type == "Addon":
		return models.ItemTypeAddon, item.RelId
	case strings.HasPrefix(item.Type, "Domain"):
		return models.ItemTypeDomain, 0
	case item.Type == "LateFee":
		return models.ItemTypeFee, 0
	default:
		return models.ItemTypeOther, 0
	}
}

func (e *Engine) lineItemName(ctx context.Context, itemType string, itemId int) (string, error) {
	switch itemType {
	case models.ItemTypeProduct:
		name, err := e.billing.ProductName(ctx, itemId)
		if err != nil {
			return "", err
		}
		if name == "" {
			name = "Hosting Services"
		}
		return name, nil
	case models.ItemTypeAddon:
		name, err := e.billing.AddonName(ctx, itemId)
		if err != nil {
			return "", err
		}
		if name == "" {
			name = "Addon Services"
		}
		return name, nil
	case models.ItemTypeDomain:
		return "Domain Registration", nil
	case models.ItemTypeFee:
		return "Late Fee", nil
	default:
		return "General Services", nil
	}
}

// getOrCreateItem resolves the ledger item for (itemType, itemId), memoized
// through the item mapping table: mapping hit, then remote lookup by name,
// then create.
func (e *Engine) getOrCreateItem(ctx context.Context, itemType string, itemId int, name string) (string, error) {
	remoteId, err := e.refs.ItemMapping(ctx, itemType, itemId)
	if err != nil {
		return "", err
	}
	if remoteId != "" {
		return remoteId, nil
	}

	existing, err := e.gateway.FindItemByName(ctx, name)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if err := e.refs.SaveItemMapping(ctx, itemType, itemId, existing.Id); err != nil {
			return "", err
		}
		return existing.Id, nil
	}

	accountId, err := e.defaultIncomeAccount(ctx)
	if err != nil {
		return "", err
	}
	created, err := e.gateway.CreateItem(ctx, &qbo.Item{
		Name:             utils.Truncate(name, maxDisplayName),
		Type:             "Service",
		IncomeAccountRef: &qbo.Ref{Value: accountId},
	})
	if err != nil {
		return "", err
	}
	if err := e.refs.SaveItemMapping(ctx, itemType, itemId, created.Id); err != nil {
		return "", err
	}
	return created.Id, nil
}

// defaultIncomeAccount uses the configured account, falling back to the first
// income account in the ledger.
func (e *Engine) defaultIncomeAccount(ctx context.Context) (string, error) {
	configured, err := e.refs.Setting(ctx, models.SettingDefaultIncomeAccount, "")
	if err != nil {
		return "", err
	}
	if configured != "" {
		return configured, nil
	}
	accounts, err := e.gateway.IncomeAccounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("no income account configured and none found in ledger")
	}
	return accounts[0].Id, nil
}
