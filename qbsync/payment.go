package qbsync

import (
	"context"
	"fmt"

	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/qbo"
	"github.com/hostbooks/qbsync_backend/utils"
)

// maxPaymentRefNum is the remote limit on PaymentRefNum.
const maxPaymentRefNum = 21

func (e *Engine) syncPayment(ctx context.Context, localId int, force bool, depth int) Result {
	entityType := models.EntityTypePayment

	txn, err := e.billing.GetTransaction(ctx, localId)
	if err != nil {
		return errorResult(entityType, localId, fmt.Errorf("%w: transaction #%d", ErrNotFound, localId))
	}
	if txn.IsRefund() {
		return skipResult(entityType, localId, "refund-classified transaction")
	}
	if txn.AmountIn.IsZero() {
		return skipResult(entityType, localId, "zero-amount transaction")
	}

	mapping, err := e.mappings.Get(ctx, entityType, localId)
	if err != nil {
		return errorResult(entityType, localId, err)
	}
	if r := e.checkLock(mapping, entityType, localId, force); r != nil {
		return *r
	}

	// The payment is applied against its invoice when one is recorded;
	// otherwise it goes up as an unapplied customer payment.
	var invoiceRemoteId string
	customerId := 0
	if txn.InvoiceId > 0 {
		invoiceRemoteId, err = e.ensureInvoice(ctx, txn.InvoiceId, depth)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
		}
		invoice, err := e.billing.GetInvoice(ctx, txn.InvoiceId)
		if err == nil {
			customerId = invoice.UserId
		}
	}
	if customerId == 0 {
		customerId = txn.UserId
	}
	if customerId == 0 {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, fmt.Errorf("transaction #%d has no client", localId))
	}
	customerRemoteId, err := e.ensureCustomer(ctx, customerId, depth)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
	}

	payload, err := e.buildPaymentPayload(ctx, txn, customerRemoteId, invoiceRemoteId)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
	}

	if mapping != nil {
		current, err := e.gateway.GetPayment(ctx, mapping.RemoteId)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionUpdate, payload, err)
		}
		payload.Id = current.Id
		payload.SyncToken = current.SyncToken
		updated, err := e.gateway.UpdatePayment(ctx, payload)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionUpdate, payload, err)
		}
		if err := e.persist(ctx, entityType, localId, models.ActionUpdate, updated.Id, updated.SyncToken, payload, updated); err != nil {
			return errorResult(entityType, localId, err)
		}
		return Result{EntityType: entityType, LocalId: localId, Success: true, Action: models.ActionUpdate, RemoteId: updated.Id}
	}

	created, err := e.gateway.CreatePayment(ctx, payload)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionCreate, payload, err)
	}
	if err := e.persist(ctx, entityType, localId, models.ActionCreate, created.Id, created.SyncToken, payload, created); err != nil {
		return errorResult(entityType, localId, err)
	}
	return Result{EntityType: entityType, LocalId: localId, Success: true, Action: models.ActionCreate, RemoteId: created.Id}
}

func (e *Engine) buildPaymentPayload(ctx context.Context, txn *models.BillingTransaction, customerRemoteId, invoiceRemoteId string) (*qbo.Payment, error) {
	payload := &qbo.Payment{
		CustomerRef:   &qbo.Ref{Value: customerRemoteId},
		TotalAmt:      txn.AmountIn,
		TxnDate:       txn.Date.Format(txnDateFormat),
		PaymentRefNum: utils.Truncate(txn.TransId, maxPaymentRefNum),
		PrivateNote:   utils.Truncate(txn.Description, maxDescription),
	}

	gw, err := e.refs.GatewayMapping(ctx, txn.Gateway)
	if err != nil {
		return nil, err
	}
	if gw != nil {
		if gw.PaymentMethodId != "" {
			payload.PaymentMethodRef = &qbo.Ref{Value: gw.PaymentMethodId}
		}
		if gw.DepositAccountId != "" {
			payload.DepositToAccountRef = &qbo.Ref{Value: gw.DepositAccountId}
		}
	}

	if invoiceRemoteId != "" {
		payload.Line = []qbo.Line{{
			Amount: txn.AmountIn,
			LinkedTxn: []qbo.LinkedTxn{{
				TxnId:   invoiceRemoteId,
				TxnType: "Invoice",
			}},
		}}
	}
	return payload, nil
}

// ensureInvoice resolves the remote invoice id, syncing the invoice first
// when it has no mapping.
func (e *Engine) ensureInvoice(ctx context.Context, invoiceId int, depth int) (string, error) {
	if depth >= maxDependencyDepth {
		return "", ErrDependencyCycle
	}
	mapping, err := e.mappings.Get(ctx, models.EntityTypeInvoice, invoiceId)
	if err != nil {
		return "", err
	}
	if mapping != nil {
		return mapping.RemoteId, nil
	}
	res := e.syncInvoice(ctx, invoiceId, false, depth+1)
	if !res.Success || res.RemoteId == "" {
		return "", fmt.Errorf("sync dependency invoice #%d: %s", invoiceId, res.Message)
	}
	return res.RemoteId, nil
}

// SyncPaymentsForInvoice syncs every payment transaction applied to one
// invoice.
func (e *Engine) SyncPaymentsForInvoice(ctx context.Context, invoiceId int, force bool) *BatchResult {
	batch := newBatchResult(models.EntityTypePayment)
	ids, err := e.billing.PaymentTransactionIDsForInvoice(ctx, invoiceId)
	if err != nil {
		batch.add(errorResult(models.EntityTypePayment, invoiceId, err))
		return batch
	}
	for _, id := range ids {
		batch.add(e.SyncOne(ctx, models.EntityTypePayment, id, force))
	}
	return batch
}
