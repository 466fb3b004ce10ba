package qbsync

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/hostbooks/qbsync_backend/models"
)

// Request DTOs for the admin API. Validation runs through gin binding.

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("entitytype", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case models.EntityTypeClient, models.EntityTypeInvoice, models.EntityTypePayment,
				models.EntityTypeCredit, models.EntityTypeRefund:
				return true
			}
			return false
		})
	}
}

type TriggerRunRequest struct {
	EntityTypes []string `json:"entity_types" binding:"omitempty,dive,entitytype"`
	Limit       int      `json:"limit" binding:"omitempty,min=1,max=1000"`
	Force       bool     `json:"force"`
}

type SyncByStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Limit  int    `json:"limit" binding:"omitempty,min=1,max=1000"`
	Force  bool   `json:"force"`
}

type SyncByDateRangeRequest struct {
	From  string `json:"from" binding:"required,datetime=2006-01-02"`
	To    string `json:"to" binding:"required,datetime=2006-01-02"`
	Limit int    `json:"limit" binding:"omitempty,min=1,max=1000"`
	Force bool   `json:"force"`
}

type CleanupLogsRequest struct {
	Days int `json:"days" binding:"omitempty,min=1,max=3650"`
}

type TaxMappingRequest struct {
	RateKey   string `json:"rate_key" binding:"required"`
	TaxCodeId string `json:"tax_code_id" binding:"required"`
	Name      string `json:"name"`
}

type GatewayMappingRequest struct {
	Gateway          string `json:"gateway" binding:"required"`
	PaymentMethodId  string `json:"payment_method_id"`
	DepositAccountId string `json:"deposit_account_id"`
}

type SettingRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}
