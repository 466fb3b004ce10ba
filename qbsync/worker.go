package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hostbooks/qbsync_backend/config"
	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/pkg/metrics"
)

// Worker executes queued sync runs. Unlike the CLI path it takes a per-record
// lock before each SyncOne, so overlapping pub/sub deliveries never touch the
// same record concurrently.
type Worker struct {
	engine *Engine
	runs   *models.SyncRunStore
	locker RecordLocker
}

func NewWorker(engine *Engine, runs *models.SyncRunStore, locker RecordLocker) *Worker {
	return &Worker{engine: engine, runs: runs, locker: locker}
}

// ProcessRun executes one run end to end. A run that is no longer queued is
// ignored, which makes duplicate deliveries harmless.
func (w *Worker) ProcessRun(ctx context.Context, runId uint) error {
	run, err := w.runs.Get(ctx, runId)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("sync run #%d not found", runId)
	}

	startedAt := time.Now()
	ok, err := w.runs.MarkRunning(ctx, runId, startedAt)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	entityTypes := decodeEntityTypes(run.EntityTypesJSON)
	results := map[string]*BatchResult{}
	for _, entityType := range SyncOrder {
		if !containsType(entityTypes, entityType) {
			continue
		}
		results[entityType] = w.syncTypeLocked(ctx, entityType, run.Limit, run.Force)
	}

	recordsSynced := 0
	errorCount := 0
	for _, batch := range results {
		recordsSynced += batch.Success
		errorCount += batch.Failed
	}
	status := models.SyncRunStatusSuccess
	if errorCount > 0 && recordsSynced == 0 {
		status = models.SyncRunStatusFailed
	} else if errorCount > 0 {
		status = models.SyncRunStatusPartial
	}

	finishedAt := time.Now()
	statsJSON, _ := json.Marshal(results)
	if err := w.runs.Finish(ctx, runId, status, statsJSON, recordsSynced, errorCount, finishedAt, finishedAt.Sub(startedAt).Milliseconds()); err != nil {
		return err
	}

	config.GetLogger().WithFields(map[string]interface{}{
		"run_id":         runId,
		"status":         status,
		"records_synced": recordsSynced,
		"error_count":    errorCount,
	}).Info("sync run finished")
	return nil
}

func (w *Worker) syncTypeLocked(ctx context.Context, entityType string, limit int, force bool) *BatchResult {
	ids, err := w.listUnmapped(ctx, entityType, limitOrDefault(limit))
	batch := newBatchResult(entityType)
	if err != nil {
		batch.add(errorResult(entityType, 0, err))
		return batch
	}
	for _, id := range ids {
		batch.add(w.syncOneLocked(ctx, entityType, id, force))
	}
	return batch
}

func (w *Worker) syncOneLocked(ctx context.Context, entityType string, localId int, force bool) Result {
	release, err := w.locker.Acquire(ctx, entityType, localId)
	if err != nil {
		if errors.Is(err, ErrRecordBusy) {
			return skipResult(entityType, localId, err.Error())
		}
		return errorResult(entityType, localId, err)
	}
	defer release()
	return w.engine.SyncOne(ctx, entityType, localId, force)
}

func (w *Worker) listUnmapped(ctx context.Context, entityType string, limit int) ([]int, error) {
	switch entityType {
	case models.EntityTypeClient:
		return w.engine.billing.UnmappedClientIDs(ctx, limit)
	case models.EntityTypeInvoice:
		return w.engine.billing.UnmappedInvoiceIDs(ctx, limit)
	case models.EntityTypePayment:
		return w.engine.billing.UnmappedPaymentIDs(ctx, limit)
	case models.EntityTypeCredit:
		return w.engine.billing.UnmappedCreditIDs(ctx, limit)
	case models.EntityTypeRefund:
		return w.engine.billing.UnmappedRefundIDs(ctx, limit)
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
}

// decodeEntityTypes parses the run's type subset; empty or invalid JSON means
// all types.
func decodeEntityTypes(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var types []string
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil
	}
	return types
}

func containsType(types []string, entityType string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == entityType {
			return true
		}
	}
	return false
}
