package qbsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/qbo"
	"github.com/hostbooks/qbsync_backend/utils"
)

// Remote field length limits for customers.
const (
	maxDisplayName = 100
	maxPersonName  = 25
	maxAddressLine = 500
	maxCity        = 255
	maxPostCode    = 30
	maxTaxId       = 20
)

func (e *Engine) syncClient(ctx context.Context, localId int, force bool, depth int) Result {
	entityType := models.EntityTypeClient

	client, err := e.billing.GetClient(ctx, localId)
	if err != nil {
		return errorResult(entityType, localId, fmt.Errorf("%w: client #%d", ErrNotFound, localId))
	}

	mapping, err := e.mappings.Get(ctx, entityType, localId)
	if err != nil {
		return errorResult(entityType, localId, err)
	}
	if r := e.checkLock(mapping, entityType, localId, force); r != nil {
		return *r
	}

	payload, err := e.buildCustomerPayload(ctx, client)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionSync, nil, err)
	}

	if mapping != nil {
		current, err := e.gateway.GetCustomer(ctx, mapping.RemoteId)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionUpdate, payload, err)
		}
		payload.Id = current.Id
		payload.SyncToken = current.SyncToken
		updated, err := e.gateway.UpdateCustomer(ctx, payload)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionUpdate, payload, err)
		}
		if err := e.persist(ctx, entityType, localId, models.ActionUpdate, updated.Id, updated.SyncToken, payload, updated); err != nil {
			return errorResult(entityType, localId, err)
		}
		return Result{EntityType: entityType, LocalId: localId, Success: true, Action: models.ActionUpdate, RemoteId: updated.Id}
	}

	// No mapping yet. A remote customer with the same primary email is
	// adopted instead of duplicated: the local payload is written onto the
	// found record so both sides agree after the link.
	if utils.IsValidEmail(client.Email) {
		found, err := e.gateway.FindCustomerByEmail(ctx, client.Email)
		if err != nil {
			return e.logFailure(ctx, entityType, localId, models.ActionLink, payload, err)
		}
		if found != nil {
			payload.Id = found.Id
			payload.SyncToken = found.SyncToken
			linked, err := e.gateway.UpdateCustomer(ctx, payload)
			if err != nil {
				return e.logFailure(ctx, entityType, localId, models.ActionLink, payload, err)
			}
			if err := e.persist(ctx, entityType, localId, models.ActionLink, linked.Id, linked.SyncToken, payload, linked); err != nil {
				return errorResult(entityType, localId, err)
			}
			return Result{
				EntityType: entityType,
				LocalId:    localId,
				Success:    true,
				Action:     models.ActionLink,
				RemoteId:   linked.Id,
				Message:    "linked to existing customer by email",
			}
		}
	}

	if err := e.ensureUniqueDisplayName(ctx, payload, localId); err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionCreate, payload, err)
	}
	created, err := e.gateway.CreateCustomer(ctx, payload)
	if err != nil {
		return e.logFailure(ctx, entityType, localId, models.ActionCreate, payload, err)
	}
	if err := e.persist(ctx, entityType, localId, models.ActionCreate, created.Id, created.SyncToken, payload, created); err != nil {
		return errorResult(entityType, localId, err)
	}
	return Result{EntityType: entityType, LocalId: localId, Success: true, Action: models.ActionCreate, RemoteId: created.Id}
}

func (e *Engine) buildCustomerPayload(ctx context.Context, client *models.BillingClient) (*qbo.Customer, error) {
	displayName := strings.TrimSpace(client.CompanyName)
	if displayName == "" {
		displayName = strings.TrimSpace(client.FirstName + " " + client.LastName)
	}
	if displayName == "" {
		displayName = fmt.Sprintf("Client %d", client.ID)
	}

	customer := &qbo.Customer{
		DisplayName: utils.Truncate(displayName, maxDisplayName),
		GivenName:   utils.Truncate(client.FirstName, maxPersonName),
		FamilyName:  utils.Truncate(client.LastName, maxPersonName),
		CompanyName: utils.Truncate(client.CompanyName, maxDisplayName),
	}
	if utils.IsValidEmail(client.Email) {
		customer.PrimaryEmailAddr = &qbo.EmailAddr{Address: client.Email}
	}
	if client.PhoneNumber != "" {
		customer.PrimaryPhone = &qbo.Phone{FreeFormNumber: utils.Truncate(client.PhoneNumber, maxPostCode)}
	}
	if client.Address1 != "" || client.City != "" {
		customer.BillAddr = &qbo.PhysicalAddress{
			Line1:                  utils.Truncate(client.Address1, maxAddressLine),
			Line2:                  utils.Truncate(client.Address2, maxAddressLine),
			City:                   utils.Truncate(client.City, maxCity),
			CountrySubDivisionCode: client.State,
			PostalCode:             utils.Truncate(client.PostCode, maxPostCode),
			Country:                client.Country,
		}
	}

	taxField, err := e.refs.Setting(ctx, models.SettingTaxCustomField, "")
	if err != nil {
		return nil, err
	}
	if taxField != "" {
		taxId, err := e.billing.ClientCustomFieldValue(ctx, client.ID, taxField)
		if err != nil {
			return nil, err
		}
		customer.PrimaryTaxIdentifier = utils.Truncate(taxId, maxTaxId)
	}

	multiCurrency, err := e.refs.SettingBool(ctx, models.SettingMultiCurrency, false)
	if err != nil {
		return nil, err
	}
	if multiCurrency {
		code, err := e.billing.CurrencyCode(ctx, client.CurrencyId)
		if err != nil {
			return nil, err
		}
		if code != "" {
			customer.CurrencyRef = &qbo.Ref{Value: code}
		}
	}
	return customer, nil
}

// ensureUniqueDisplayName appends " (localId)" when the name is already taken
// remotely, keeping the result inside the display-name limit.
func (e *Engine) ensureUniqueDisplayName(ctx context.Context, customer *qbo.Customer, localId int) error {
	existing, err := e.gateway.FindCustomerByDisplayName(ctx, customer.DisplayName)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	suffix := fmt.Sprintf(" (%d)", localId)
	customer.DisplayName = utils.Truncate(customer.DisplayName, maxDisplayName-len(suffix)) + suffix
	return nil
}

// ensureCustomer resolves the remote customer id for a client, syncing the
// client first when it has no mapping yet.
func (e *Engine) ensureCustomer(ctx context.Context, clientId int, depth int) (string, error) {
	if depth >= maxDependencyDepth {
		return "", ErrDependencyCycle
	}
	mapping, err := e.mappings.Get(ctx, models.EntityTypeClient, clientId)
	if err != nil {
		return "", err
	}
	if mapping != nil {
		return mapping.RemoteId, nil
	}
	res := e.syncClient(ctx, clientId, false, depth+1)
	if !res.Success || res.RemoteId == "" {
		return "", fmt.Errorf("sync dependency client #%d: %s", clientId, res.Message)
	}
	return res.RemoteId, nil
}
