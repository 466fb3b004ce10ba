package models

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Item types used to classify invoice lines before mapping them to ledger
// items. Hosting and addon lines carry the billing product/addon id; domain,
// fee and other lines use item_id 0.
const (
	ItemTypeProduct = "product"
	ItemTypeAddon   = "addon"
	ItemTypeDomain  = "domain"
	ItemTypeFee     = "fee"
	ItemTypeOther   = "other"
)

// Setting keys understood by the engine.
const (
	SettingDefaultIncomeAccount = "default_income_account"
	SettingDefaultCreditItem    = "default_credit_item"
	SettingDefaultRefundItem    = "default_refund_item"
	SettingSyncZeroInvoices     = "sync_zero_invoices"
	SettingMultiCurrency        = "multi_currency"
	SettingTaxCustomField       = "tax_custom_field"
	SettingLogRetentionDays     = "log_retention_days"
)

// TaxMapping keys a billing tax rate to a ledger TaxCode. RateKey is the rate
// in basis points ("750" for 7.5%) so float formatting never splits a rate
// into two keys.
type TaxMapping struct {
	ID        uint   `gorm:"primary_key" json:"id"`
	RateKey   string `gorm:"uniqueIndex;size:16;not null" json:"rate_key"`
	TaxCodeId string `gorm:"size:64;not null" json:"tax_code_id"`
	Name      string `gorm:"size:100" json:"name"`
}

func (TaxMapping) TableName() string { return "qbsync_tax_mappings" }

// GatewayMapping ties a billing payment gateway to the ledger payment method
// and the account deposits land in.
type GatewayMapping struct {
	ID               uint   `gorm:"primary_key" json:"id"`
	Gateway          string `gorm:"uniqueIndex;size:64;not null" json:"gateway"`
	PaymentMethodId  string `gorm:"size:64" json:"payment_method_id"`
	DepositAccountId string `gorm:"size:64" json:"deposit_account_id"`
}

func (GatewayMapping) TableName() string { return "qbsync_gateway_mappings" }

// ItemMapping memoizes get-or-create of ledger items per (item_type, item_id).
type ItemMapping struct {
	ID           uint   `gorm:"primary_key" json:"id"`
	ItemType     string `gorm:"uniqueIndex:idx_qbsync_item,priority:1;size:20;not null" json:"item_type"`
	ItemId       int    `gorm:"uniqueIndex:idx_qbsync_item,priority:2;not null" json:"item_id"`
	RemoteItemId string `gorm:"size:64;not null" json:"remote_item_id"`
}

func (ItemMapping) TableName() string { return "qbsync_item_mappings" }

// Setting is a key/value row of engine configuration.
type Setting struct {
	ID    uint   `gorm:"primary_key" json:"id"`
	Key   string `gorm:"uniqueIndex;size:64;not null;column:setting_key" json:"key"`
	Value string `gorm:"size:500;column:setting_value" json:"value"`
}

func (Setting) TableName() string { return "qbsync_settings" }

// ReferenceStore serves the small configuration tables: tax, gateway and item
// mappings plus settings.
type ReferenceStore struct {
	db *gorm.DB
}

func NewReferenceStore(db *gorm.DB) *ReferenceStore {
	return &ReferenceStore{db: db}
}

// TaxCodeForRate returns the ledger TaxCode id mapped to rateKey, or "" when
// the rate is unmapped.
func (s *ReferenceStore) TaxCodeForRate(ctx context.Context, rateKey string) (string, error) {
	var m TaxMapping
	err := session(ctx, s.db).Where("rate_key = ?", rateKey).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return m.TaxCodeId, nil
}

func (s *ReferenceStore) ListTaxMappings(ctx context.Context) ([]TaxMapping, error) {
	var out []TaxMapping
	err := session(ctx, s.db).Order("rate_key").Find(&out).Error
	return out, err
}

func (s *ReferenceStore) UpsertTaxMapping(ctx context.Context, rateKey, taxCodeId, name string) error {
	var m TaxMapping
	err := session(ctx, s.db).Where("rate_key = ?", rateKey).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session(ctx, s.db).Create(&TaxMapping{RateKey: rateKey, TaxCodeId: taxCodeId, Name: name}).Error
	}
	if err != nil {
		return err
	}
	return session(ctx, s.db).Model(&m).Updates(map[string]interface{}{
		"tax_code_id": taxCodeId,
		"name":        name,
	}).Error
}

func (s *ReferenceStore) DeleteTaxMapping(ctx context.Context, rateKey string) error {
	return session(ctx, s.db).Where("rate_key = ?", rateKey).Delete(&TaxMapping{}).Error
}

// GatewayMapping returns the mapping for a billing gateway, or nil when the
// gateway has no row.
func (s *ReferenceStore) GatewayMapping(ctx context.Context, gateway string) (*GatewayMapping, error) {
	var m GatewayMapping
	err := session(ctx, s.db).Where("gateway = ?", gateway).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (s *ReferenceStore) ListGatewayMappings(ctx context.Context) ([]GatewayMapping, error) {
	var out []GatewayMapping
	err := session(ctx, s.db).Order("gateway").Find(&out).Error
	return out, err
}

func (s *ReferenceStore) UpsertGatewayMapping(ctx context.Context, gateway, paymentMethodId, depositAccountId string) error {
	var m GatewayMapping
	err := session(ctx, s.db).Where("gateway = ?", gateway).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session(ctx, s.db).Create(&GatewayMapping{
			Gateway:          gateway,
			PaymentMethodId:  paymentMethodId,
			DepositAccountId: depositAccountId,
		}).Error
	}
	if err != nil {
		return err
	}
	return session(ctx, s.db).Model(&m).Updates(map[string]interface{}{
		"payment_method_id":  paymentMethodId,
		"deposit_account_id": depositAccountId,
	}).Error
}

func (s *ReferenceStore) DeleteGatewayMapping(ctx context.Context, gateway string) error {
	return session(ctx, s.db).Where("gateway = ?", gateway).Delete(&GatewayMapping{}).Error
}

// ItemMapping returns the memoized remote item id for (itemType, itemId),
// or "" when not yet created.
func (s *ReferenceStore) ItemMapping(ctx context.Context, itemType string, itemId int) (string, error) {
	var m ItemMapping
	err := session(ctx, s.db).
		Where("item_type = ? AND item_id = ?", itemType, itemId).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return m.RemoteItemId, nil
}

func (s *ReferenceStore) SaveItemMapping(ctx context.Context, itemType string, itemId int, remoteItemId string) error {
	var m ItemMapping
	err := session(ctx, s.db).
		Where("item_type = ? AND item_id = ?", itemType, itemId).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session(ctx, s.db).Create(&ItemMapping{
			ItemType:     itemType,
			ItemId:       itemId,
			RemoteItemId: remoteItemId,
		}).Error
	}
	if err != nil {
		return err
	}
	return session(ctx, s.db).Model(&m).Update("remote_item_id", remoteItemId).Error
}

// Setting returns the value for key, or fallback when the key has no row.
func (s *ReferenceStore) Setting(ctx context.Context, key, fallback string) (string, error) {
	var row Setting
	err := session(ctx, s.db).Where("setting_key = ?", key).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fallback, nil
		}
		return fallback, err
	}
	return row.Value, nil
}

// SettingBool treats "1", "true", "on" and "yes" as true.
func (s *ReferenceStore) SettingBool(ctx context.Context, key string, fallback bool) (bool, error) {
	fb := "0"
	if fallback {
		fb = "1"
	}
	v, err := s.Setting(ctx, key, fb)
	if err != nil {
		return fallback, err
	}
	switch v {
	case "1", "true", "on", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (s *ReferenceStore) SetSetting(ctx context.Context, key, value string) error {
	var row Setting
	err := session(ctx, s.db).Where("setting_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session(ctx, s.db).Create(&Setting{Key: key, Value: value}).Error
	}
	if err != nil {
		return err
	}
	return session(ctx, s.db).Model(&row).Update("setting_value", value).Error
}

func (s *ReferenceStore) ListSettings(ctx context.Context) ([]Setting, error) {
	var out []Setting
	err := session(ctx, s.db).Order("setting_key").Find(&out).Error
	return out, err
}
