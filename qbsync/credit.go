package qbsync

import (
	"context"
	"fmt"

	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/qbo"
	"github.com/hostbooks/qbsync_backend/utils"
	"github.com/shopspring/decimal"
)

func (e *Engine) syncCredit(ctx context.Context, localId int, force bool, depth int) Result {
	entityType := models.EntityTypeCredit

	credit, err := e.billing.GetCredit(ctx, localId)
	if err != nil {
		return errorResult(entityType, localId, fmt.Errorf("%w: credit #%d", ErrNotFound, localId))
	}
	if !credit.Amount.GreaterThan(decimal.Zero) {
		return skipResult(entityType, localId, "non-positive credit amount")
	}

	mapping, err := e.mappings.Get(ctx, entityType, localId)
	if err != nil {
		return errorResult(entityType, localId, err)
	}
	if r := e.checkLock(mapping, entityType, localId, force); r != nil {
		return *r
	}

	customerRemoteId, err := e.ensureCustomer(ctx, credit.ClientId, depth)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
	}

	itemId, err := e.configuredItem(ctx, models.SettingDefaultCreditItem, "Account Credit")
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
	}

	payload := &qbo.CreditMemo{
		CustomerRef: &qbo.Ref{Value: customerRemoteId},
		TxnDate:     credit.Date.Format(txnDateFormat),
		PrivateNote: utils.Truncate(credit.Description, maxDescription),
		Line: []qbo.Line{{
			Description: utils.Truncate(credit.Description, maxDescription),
			Amount:      credit.Amount,
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: &qbo.SalesItemLineDetail{
				ItemRef:   &qbo.Ref{Value: itemId},
				Qty:       decimal.NewFromInt(1),
				UnitPrice: credit.Amount,
			},
		}},
	}

	if mapping != nil {
		current, err := e.gateway.GetCreditMemo(ctx, mapping.RemoteId)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionUpdate, payload, err)
		}
		payload.Id = current.Id
		payload.SyncToken = current.SyncToken
		updated, err := e.gateway.UpdateCreditMemo(ctx, payload)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionUpdate, payload, err)
		}
		if err := e.persist(ctx, entityType, localId, models.ActionUpdate, updated.Id, updated.SyncToken, payload, updated); err != nil {
			return errorResult(entityType, localId, err)
		}
		return Result{EntityType: entityType, LocalId: localId, Success: true, Action: models.ActionUpdate, RemoteId: updated.Id}
	}

	created, err := e.gateway.CreateCreditMemo(ctx, payload)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionCreate, payload, err)
	}
	if err := e.persist(ctx, entityType, localId, models.ActionCreate, created.Id, created.SyncToken, payload, created); err != nil {
		return errorResult(entityType, localId, err)
	}
	return Result{EntityType: entityType, LocalId: localId, Success: true, Action: models.ActionCreate, RemoteId: created.Id}
}

// syncRefund pushes a refund receipt. Receipts cannot be updated in place: a
// resync always issues a fresh create and repoints the mapping at the new
// receipt.
func (e *Engine) syncRefund(ctx context.Context, localId int, force bool, depth int) Result {
	entityType := models.EntityTypeRefund

	txn, err := e.billing.GetTransaction(ctx, localId)
	if err != nil {
		return errorResult(entityType, localId, fmt.Errorf("%w: transaction #%d", ErrNotFound, localId))
	}
	if !txn.IsRefund() {
		return skipResult(entityType, localId, "not a refund transaction")
	}

	mapping, err := e.mappings.Get(ctx, entityType, localId)
	if err != nil {
		return errorResult(entityType, localId, err)
	}
	if r := e.checkLock(mapping, entityType, localId, force); r != nil {
		return *r
	}

	if txn.UserId == 0 {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, fmt.Errorf("transaction #%d has no client", localId))
	}

	customerRemoteId, err := e.ensureCustomer(ctx, txn.UserId, depth)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
	}

	itemId, err := e.configuredItem(ctx, models.SettingDefaultRefundItem, "Customer Refund")
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
	}

	payload := &qbo.RefundReceipt{
		CustomerRef:   &qbo.Ref{Value: customerRemoteId},
		TotalAmt:      txn.AmountOut,
		TxnDate:       txn.Date.Format(txnDateFormat),
		PaymentRefNum: utils.Truncate(txn.TransId, maxPaymentRefNum),
		PrivateNote:   utils.Truncate(txn.Description, maxDescription),
		Line: []qbo.Line{{
			Description: utils.Truncate(txn.Description, maxDescription),
			Amount:      txn.AmountOut,
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: &qbo.SalesItemLineDetail{
				ItemRef:   &qbo.Ref{Value: itemId},
				Qty:       decimal.NewFromInt(1),
				UnitPrice: txn.AmountOut,
			},
		}},
	}

	gw, err := e.refs.GatewayMapping(ctx, txn.Gateway)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, payload, err)
	}
	if gw != nil {
		if gw.PaymentMethodId != "" {
			payload.PaymentMethodRef = &qbo.Ref{Value: gw.PaymentMethodId}
		}
		if gw.DepositAccountId != "" {
			payload.DepositToAccountRef = &qbo.Ref{Value: gw.DepositAccountId}
		}
	}

	action := models.ActionCreate
	if mapping != nil {
		action = models.ActionUpdate
	}
	created, err := e.gateway.CreateRefundReceipt(ctx, payload)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, action, payload, err)
	}
	if err := e.persist(ctx, entityType, localId, action, created.Id, created.SyncToken, payload, created); err != nil {
		return errorResult(entityType, localId, err)
	}
	return Result{EntityType: entityType, LocalId: localId, Success: true, Action: action, RemoteId: created.Id}
}

// configuredItem resolves a settings-configured ledger item, falling back to
// get-or-create by name. Unlike invoice line items this is not memoized in
// the item mapping table since the setting can change at any time.
func (e *Engine) configuredItem(ctx context.Context, settingKey, fallbackName string) (string, error) {
	configured, err := e.refs.Setting(ctx, settingKey, "")
	if err != nil {
		return "", err
	}
	if configured != "" {
		return configured, nil
	}

	existing, err := e.gateway.FindItemByName(ctx, fallbackName)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.Id, nil
	}

	accountId, err := e.defaultIncomeAccount(ctx)
	if err != nil {
		return "", err
	}
	created, err := e.gateway.CreateItem(ctx, &qbo.Item{
		Name:             fallbackName,
		Type:             "Service",
		IncomeAccountRef: &qbo.Ref{Value: accountId},
	})
	if err != nil {
		return "", err
	}
	return created.Id, nil
}
