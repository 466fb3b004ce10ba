package qbsync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hostbooks/qbsync_backend/config"
	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/qbo"
	"gorm.io/gorm"
)

// API bundles the engine and stores behind the admin HTTP surface.
type API struct {
	engine   *Engine
	worker   *Worker
	ledger   *qbo.Client
	mappings *models.MappingStore
	logs     *models.LogStore
	runs     *models.SyncRunStore
	refs     *models.ReferenceStore
	billing  *models.BillingStore
}

func NewAPI(engine *Engine, worker *Worker, ledger *qbo.Client, mappings *models.MappingStore, logs *models.LogStore, runs *models.SyncRunStore, refs *models.ReferenceStore, billing *models.BillingStore) *API {
	return &API{
		engine:   engine,
		worker:   worker,
		ledger:   ledger,
		mappings: mappings,
		logs:     logs,
		runs:     runs,
		refs:     refs,
		billing:  billing,
	}
}

// RegisterRoutes mounts the admin API under the given group.
func (a *API) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sync/run", a.TriggerRun)
	r.GET("/sync/runs", a.ListRuns)
	r.GET("/sync/runs/:id", a.GetRun)
	r.POST("/sync/runs/:id/retry", a.RetryRun)

	r.POST("/sync/:type/:id", a.SyncRecord)
	r.POST("/sync/invoices/by-status", a.SyncInvoicesByStatus)
	r.POST("/sync/invoices/by-date", a.SyncInvoicesByDateRange)
	r.POST("/sync/invoices/:id/payments", a.SyncInvoicePayments)

	r.GET("/records/clients", a.ListSyncedClients)
	r.GET("/records/invoices", a.ListSyncedInvoices)
	r.POST("/records/:type/:id/lock", a.LockRecord)
	r.POST("/records/:type/:id/unlock", a.UnlockRecord)
	r.POST("/records/:type/:id/unlink", a.UnlinkRecord)

	r.GET("/logs", a.QueryLogs)
	r.GET("/logs/stats", a.LogStats)
	r.GET("/logs/errors", a.RecentErrors)
	r.GET("/logs/export", a.ExportLogs)
	r.POST("/logs/cleanup", a.CleanupLogs)
	r.POST("/logs/clear", a.ClearLogs)

	r.GET("/mappings/tax", a.ListTaxMappings)
	r.PUT("/mappings/tax", a.UpsertTaxMapping)
	r.DELETE("/mappings/tax/:rateKey", a.DeleteTaxMapping)
	r.GET("/mappings/gateways", a.ListGatewayMappings)
	r.PUT("/mappings/gateways", a.UpsertGatewayMapping)
	r.DELETE("/mappings/gateways/:gateway", a.DeleteGatewayMapping)

	r.GET("/settings", a.ListSettings)
	r.PUT("/settings", a.SetSetting)

	r.GET("/qbo/accounts", a.LedgerAccounts)
	r.GET("/qbo/taxcodes", a.LedgerTaxCodes)
	r.GET("/qbo/paymentmethods", a.LedgerPaymentMethods)
	r.GET("/qbo/company", a.LedgerCompanyInfo)
}

func parseEntityType(c *gin.Context) (string, bool) {
	entityType := c.Param("type")
	switch entityType {
	case models.EntityTypeClient, models.EntityTypeInvoice, models.EntityTypePayment, models.EntityTypeCredit, models.EntityTypeRefund:
		return entityType, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
		return "", false
	}
}

func parseIntParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func parsePaging(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// TriggerRun queues a batch run and hands it to the pub/sub worker.
func (a *API) TriggerRun(c *gin.Context) {
	var req TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	typesJSON, _ := json.Marshal(req.EntityTypes)
	run := &models.SyncRun{
		Status:          models.SyncRunStatusQueued,
		TriggeredBy:     models.SyncTriggeredManual,
		EntityTypesJSON: typesJSON,
		Limit:           req.Limit,
		Force:           req.Force,
	}
	if err := a.runs.Create(c.Request.Context(), run); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := PublishSyncRun(c.Request.Context(), run.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run_id": run.ID})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID})
}

func (a *API) ListRuns(c *gin.Context) {
	limit, offset := parsePaging(c)
	runs, err := a.runs.List(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (a *API) GetRun(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	run, err := a.runs.Get(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// RetryRun requeues a finished run with the same parameters.
func (a *API) RetryRun(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	parent, err := a.runs.Get(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if parent == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if parent.Status == models.SyncRunStatusQueued || parent.Status == models.SyncRunStatusRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "run is still in progress"})
		return
	}

	parentId := parent.ID
	run := &models.SyncRun{
		Status:          models.SyncRunStatusQueued,
		TriggeredBy:     models.SyncTriggeredRetry,
		EntityTypesJSON: parent.EntityTypesJSON,
		Limit:           parent.Limit,
		Force:           parent.Force,
		ParentRunId:     &parentId,
	}
	if err := a.runs.Create(c.Request.Context(), run); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := PublishSyncRun(c.Request.Context(), run.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run_id": run.ID})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID})
}

// SyncRecord runs one record synchronously and returns its result.
func (a *API) SyncRecord(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	force := c.Query("force") == "true" || c.Query("force") == "1"

	result := a.engine.SyncOne(c.Request.Context(), entityType, id, force)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

func (a *API) SyncInvoicesByStatus(c *gin.Context) {
	var req SyncByStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batch := a.engine.SyncInvoicesByStatus(c.Request.Context(), req.Status, req.Limit, req.Force)
	c.JSON(http.StatusOK, batch)
}

func (a *API) SyncInvoicesByDateRange(c *gin.Context) {
	var req SyncByDateRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, _ := time.Parse("2006-01-02", req.From)
	to, _ := time.Parse("2006-01-02", req.To)
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to precedes from"})
		return
	}
	batch := a.engine.SyncInvoicesByDateRange(c.Request.Context(), from, to, req.Limit, req.Force)
	c.JSON(http.StatusOK, batch)
}

func (a *API) SyncInvoicePayments(c *gin.Context) {
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	force := c.Query("force") == "true" || c.Query("force") == "1"
	batch := a.engine.SyncPaymentsForInvoice(c.Request.Context(), id, force)
	c.JSON(http.StatusOK, batch)
}

func (a *API) ListSyncedClients(c *gin.Context) {
	limit, offset := parsePaging(c)
	rows, err := a.billing.ListSyncedClients(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": rows})
}

func (a *API) ListSyncedInvoices(c *gin.Context) {
	limit, offset := parsePaging(c)
	rows, err := a.billing.ListSyncedInvoices(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": rows})
}

func (a *API) setLocked(c *gin.Context, locked bool) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	err := a.mappings.SetLocked(c.Request.Context(), entityType, id, locked)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) LockRecord(c *gin.Context)   { a.setLocked(c, true) }
func (a *API) UnlockRecord(c *gin.Context) { a.setLocked(c, false) }

func (a *API) UnlinkRecord(c *gin.Context) {
	entityType, ok := parseEntityType(c)
	if !ok {
		return
	}
	id, ok := parseIntParam(c, "id")
	if !ok {
		return
	}
	if err := a.mappings.Unlink(c.Request.Context(), entityType, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func logFilterFromQuery(c *gin.Context) models.LogFilter {
	filter := models.LogFilter{
		EntityType: c.Query("entity_type"),
		Action:     c.Query("action"),
		Status:     c.Query("status"),
		RemoteId:   c.Query("remote_id"),
		Search:     c.Query("search"),
	}
	if v, err := strconv.Atoi(c.Query("local_id")); err == nil && v > 0 {
		filter.LocalId = v
	}
	if t, err := time.Parse("2006-01-02", c.Query("from")); err == nil {
		filter.From = &t
	}
	if t, err := time.Parse("2006-01-02", c.Query("to")); err == nil {
		end := t.AddDate(0, 0, 1).Add(-time.Second)
		filter.To = &end
	}
	return filter
}

func (a *API) QueryLogs(c *gin.Context) {
	limit, offset := parsePaging(c)
	filter := logFilterFromQuery(c)
	ctx := c.Request.Context()

	entries, err := a.logs.Query(ctx, filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := a.logs.Count(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": total})
}

func (a *API) LogStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}
	stats, err := a.logs.Stats(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) RecentErrors(c *gin.Context) {
	limit, _ := parsePaging(c)
	entries, err := a.logs.RecentErrors(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// CleanupLogs deletes entries older than the retention window. Days defaults
// to the log_retention_days setting, then 90.
func (a *API) CleanupLogs(c *gin.Context) {
	var req CleanupLogsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days := req.Days
	if days == 0 {
		configured, err := a.refs.Setting(c.Request.Context(), models.SettingLogRetentionDays, "90")
		if err == nil {
			if v, err := strconv.Atoi(configured); err == nil && v > 0 {
				days = v
			}
		}
	}
	if days == 0 {
		days = 90
	}

	deleted, err := a.logs.Cleanup(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "days": days})
}

func (a *API) ClearLogs(c *gin.Context) {
	deleted, err := a.logs.ClearAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (a *API) ListTaxMappings(c *gin.Context) {
	out, err := a.refs.ListTaxMappings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": out})
}

func (a *API) UpsertTaxMapping(c *gin.Context) {
	var req TaxMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.refs.UpsertTaxMapping(c.Request.Context(), req.RateKey, req.TaxCodeId, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) DeleteTaxMapping(c *gin.Context) {
	if err := a.refs.DeleteTaxMapping(c.Request.Context(), c.Param("rateKey")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) ListGatewayMappings(c *gin.Context) {
	out, err := a.refs.ListGatewayMappings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": out})
}

func (a *API) UpsertGatewayMapping(c *gin.Context) {
	var req GatewayMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.refs.UpsertGatewayMapping(c.Request.Context(), req.Gateway, req.PaymentMethodId, req.DepositAccountId); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) DeleteGatewayMapping(c *gin.Context) {
	if err := a.refs.DeleteGatewayMapping(c.Request.Context(), c.Param("gateway")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *API) ListSettings(c *gin.Context) {
	settings, err := a.refs.ListSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (a *API) SetSetting(c *gin.Context) {
	var req SettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.refs.SetSetting(c.Request.Context(), req.Key, req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Ledger reference-data passthrough for the mapping configuration screens.
// Responses are cached in redis so the configuration UI does not burn the
// ledger rate limit; ?refresh=1 drops the cached copy first.

const ledgerCacheTTL = 5 * time.Minute

func ledgerCached[T any](c *gin.Context, key string, fetch func() (T, error)) (T, bool) {
	var cached T
	if c.Query("refresh") == "1" {
		_ = config.RemoveRedisKey(key)
	} else if hit, err := config.GetRedisObject(key, &cached); err == nil && hit {
		return cached, true
	}
	fresh, err := fetch()
	if err != nil {
		var zero T
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return zero, false
	}
	_ = config.SetRedisObject(key, fresh, ledgerCacheTTL)
	return fresh, true
}

func (a *API) LedgerAccounts(c *gin.Context) {
	ctx := c.Request.Context()
	income, ok := ledgerCached(c, "qbsync:ledger:accounts:income", func() ([]qbo.Account, error) {
		return a.ledger.IncomeAccounts(ctx)
	})
	if !ok {
		return
	}
	bank, ok := ledgerCached(c, "qbsync:ledger:accounts:bank", func() ([]qbo.Account, error) {
		return a.ledger.BankAccounts(ctx)
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"income": income, "bank": bank})
}

func (a *API) LedgerTaxCodes(c *gin.Context) {
	codes, ok := ledgerCached(c, "qbsync:ledger:taxcodes", func() ([]qbo.TaxCode, error) {
		return a.ledger.TaxCodes(c.Request.Context())
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tax_codes": codes})
}

func (a *API) LedgerPaymentMethods(c *gin.Context) {
	methods, ok := ledgerCached(c, "qbsync:ledger:paymentmethods", func() ([]qbo.PaymentMethod, error) {
		return a.ledger.PaymentMethods(c.Request.Context())
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": methods})
}

func (a *API) LedgerCompanyInfo(c *gin.Context) {
	info, err := a.ledger.CompanyInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}
