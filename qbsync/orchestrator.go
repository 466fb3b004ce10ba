package qbsync

import (
	"context"
	"time"

	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/pkg/metrics"
)

// DefaultBatchLimit bounds one entity-type batch when no limit is given.
const DefaultBatchLimit = 50

// Limits bounds each entity-type batch in SyncAll. Zero means the default.
type Limits struct {
	Clients  int `json:"clients"`
	Invoices int `json:"invoices"`
	Payments int `json:"payments"`
	Credits  int `json:"credits"`
	Refunds  int `json:"refunds"`
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return DefaultBatchLimit
	}
	return n
}

// SyncOrder is the fixed dependency order batches run in.
var SyncOrder = []string{
	models.EntityTypeClient,
	models.EntityTypeInvoice,
	models.EntityTypePayment,
	models.EntityTypeCredit,
	models.EntityTypeRefund,
}

func (e *Engine) syncBatch(ctx context.Context, entityType string, ids []int, listErr error, force bool) *BatchResult {
	batch := newBatchResult(entityType)
	if listErr != nil {
		batch.add(errorResult(entityType, 0, listErr))
		return batch
	}
	start := time.Now()
	for _, id := range ids {
		batch.add(e.SyncOne(ctx, entityType, id, force))
	}
	metrics.BatchDuration.WithLabelValues(entityType).Observe(time.Since(start).Seconds())
	e.logger.WithField("batch", batch.String()).Info("sync batch finished")
	return batch
}

// SyncClients syncs unmapped active clients, up to limit.
func (e *Engine) SyncClients(ctx context.Context, limit int, force bool) *BatchResult {
	ids, err := e.billing.UnmappedClientIDs(ctx, limitOrDefault(limit))
	return e.syncBatch(ctx, models.EntityTypeClient, ids, err, force)
}

func (e *Engine) SyncInvoices(ctx context.Context, limit int, force bool) *BatchResult {
	ids, err := e.billing.UnmappedInvoiceIDs(ctx, limitOrDefault(limit))
	return e.syncBatch(ctx, models.EntityTypeInvoice, ids, err, force)
}

func (e *Engine) SyncPayments(ctx context.Context, limit int, force bool) *BatchResult {
	ids, err := e.billing.UnmappedPaymentIDs(ctx, limitOrDefault(limit))
	return e.syncBatch(ctx, models.EntityTypePayment, ids, err, force)
}

func (e *Engine) SyncCredits(ctx context.Context, limit int, force bool) *BatchResult {
	ids, err := e.billing.UnmappedCreditIDs(ctx, limitOrDefault(limit))
	return e.syncBatch(ctx, models.EntityTypeCredit, ids, err, force)
}

func (e *Engine) SyncRefunds(ctx context.Context, limit int, force bool) *BatchResult {
	ids, err := e.billing.UnmappedRefundIDs(ctx, limitOrDefault(limit))
	return e.syncBatch(ctx, models.EntityTypeRefund, ids, err, force)
}

// SyncInvoicesByStatus syncs invoices with the given billing status, mapped
// or not.
func (e *Engine) SyncInvoicesByStatus(ctx context.Context, status string, limit int, force bool) *BatchResult {
	ids, err := e.billing.InvoiceIDsByStatus(ctx, status, limitOrDefault(limit))
	return e.syncBatch(ctx, models.EntityTypeInvoice, ids, err, force)
}

func (e *Engine) SyncInvoicesByDateRange(ctx context.Context, from, to time.Time, limit int, force bool) *BatchResult {
	ids, err := e.billing.InvoiceIDsByDateRange(ctx, from, to, limitOrDefault(limit))
	return e.syncBatch(ctx, models.EntityTypeInvoice, ids, err, force)
}

// SyncAll runs every entity type in dependency order. Batches keep going
// when individual records fail; only per-record results carry failures.
func (e *Engine) SyncAll(ctx context.Context, limits Limits, force bool) map[string]*BatchResult {
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	results := map[string]*BatchResult{}
	for _, entityType := range SyncOrder {
		switch entityType {
		case models.EntityTypeClient:
			results[entityType] = e.SyncClients(ctx, limits.Clients, force)
		case models.EntityTypeInvoice:
			results[entityType] = e.SyncInvoices(ctx, limits.Invoices, force)
		case models.EntityTypePayment:
			results[entityType] = e.SyncPayments(ctx, limits.Payments, force)
		case models.EntityTypeCredit:
			results[entityType] = e.SyncCredits(ctx, limits.Credits, force)
		case models.EntityTypeRefund:
			results[entityType] = e.SyncRefunds(ctx, limits.Refunds, force)
		}
	}
	return results
}
