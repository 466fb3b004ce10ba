package qbsync

import (
	"context"
	"fmt"
	"time"

	"github.com/hostbooks/qbsync_backend/config"
	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// maxDependencyDepth caps dependency recursion (payment → invoice → client is
// depth 2; anything deeper means a cycle or corrupt data).
const maxDependencyDepth = 3

// Engine runs entity synchronization against the ledger gateway. All state
// lives in the injected stores; the engine itself is stateless and safe to
// share.
type Engine struct {
	gateway  Gateway
	mappings MappingStore
	logs     LogStore
	refs     ReferenceStore
	billing  BillingStore
	logger   *logrus.Logger
	now      func() time.Time
}

func NewEngine(gateway Gateway, mappings MappingStore, logs LogStore, refs ReferenceStore, billing BillingStore) *Engine {
	return &Engine{
		gateway:  gateway,
		mappings: mappings,
		logs:     logs,
		refs:     refs,
		billing:  billing,
		logger:   config.GetLogger(),
		now:      time.Now,
	}
}

// SyncOne synchronizes one billing record. It never panics and never returns
// an error; every failure mode is folded into the Result.
func (e *Engine) SyncOne(ctx context.Context, entityType string, localId int, force bool) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = errorResult(entityType, localId, fmt.Errorf("panic in sync: %v", r))
			config.LogError(e.logger, "qbsync", "SyncOne", entityType, localId, fmt.Errorf("%v", r))
		}
		e.observe(result)
	}()

	switch entityType {
	case models.EntityTypeClient:
		result = e.syncClient(ctx, localId, force, 0)
	case models.EntityTypeInvoice:
		result = e.syncInvoice(ctx, localId, force, 0)
	case models.EntityTypePayment:
		result = e.syncPayment(ctx, localId, force, 0)
	case models.EntityTypeCredit:
		result = e.syncCredit(ctx, localId, force, 0)
	case models.EntityTypeRefund:
		result = e.syncRefund(ctx, localId, force, 0)
	default:
		result = errorResult(entityType, localId, fmt.Errorf("unknown entity type %q", entityType))
	}
	return result
}

func (e *Engine) observe(r Result) {
	switch {
	case r.Skipped():
		metrics.SyncSkipped.WithLabelValues(r.EntityType).Inc()
	case r.Success:
		metrics.SyncSuccess.WithLabelValues(r.EntityType, r.Action).Inc()
	default:
		metrics.SyncFailed.WithLabelValues(r.EntityType).Inc()
	}
}

// checkLock applies lock policy. Returns a skip result carrying the cached
// remote id when the mapping is locked and force is not set; locked stays
// locked even under force.
func (e *Engine) checkLock(mapping *models.EntityMapping, entityType string, localId int, force bool) *Result {
	if mapping != nil && mapping.Locked && !force {
		r := skipResult(entityType, localId, "record is locked")
		r.RemoteId = mapping.RemoteId
		return &r
	}
	return nil
}

// persist writes the mapping and the success log row for one remote write.
func (e *Engine) persist(ctx context.Context, entityType string, localId int, action, remoteId, syncToken string, request, response interface{}) error {
	if err := e.mappings.Upsert(ctx, entityType, localId, remoteId, syncToken, e.now()); err != nil {
		return fmt.Errorf("save mapping: %w", err)
	}
	e.logs.Append(ctx, models.SyncLog{
		EntityType: entityType,
		Action:     action,
		LocalId:    localId,
		RemoteId:   remoteId,
		Status:     models.StatusSuccess,
		Message:    fmt.Sprintf("%s %s #%d -> %s", action, entityType, localId, remoteId),
		Request:    toJSON(request),
		Response:   toJSON(response),
	})
	return nil
}

// logFailure appends an error row and wraps the error into a Result.
func (e *Engine) logFailure(ctx context.Context, entityType string, localId int, action string, request interface{}, err error) Result {
	e.logs.Append(ctx, models.SyncLog{
		EntityType: entityType,
		Action:     action,
		LocalId:    localId,
		Status:     models.StatusError,
		Message:    err.Error(),
		Request:    toJSON(request),
	})
	config.LogError(e.logger, "qbsync", "sync", entityType, localId, err)
	return errorResult(entityType, localId, err)
}
