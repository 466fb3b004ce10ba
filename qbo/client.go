package qbo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// TokenSource supplies a live OAuth2 access token. Token refresh and the
// authorization handshake live with the operator, not here.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource around a fixed token, for tests and one-off
// CLI runs.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", errors.New("qbo access token is empty")
	}
	return string(t), nil
}

// APIError carries the fault returned by the ledger. Error() is the remote
// message verbatim so operators can search their ledger docs for it.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" && e.Detail != e.Message {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Client is the typed QuickBooks Online HTTP client. Calls are throttled
// through a shared ticker so batches stay under the per-minute API quota.
type Client struct {
	baseURL string
	realmID string
	minor   string
	tokens  TokenSource
	http    *http.Client
	limiter <-chan time.Time
}

func NewClient(tokens TokenSource) (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("QBO_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://quickbooks.api.intuit.com"
	}
	realmID := strings.TrimSpace(os.Getenv("QBO_REALM_ID"))
	if realmID == "" {
		return nil, errors.New("QBO_REALM_ID is empty")
	}
	if tokens == nil {
		return nil, errors.New("qbo token source is nil")
	}
	minor := strings.TrimSpace(os.Getenv("QBO_MINOR_VERSION"))
	if minor == "" {
		minor = "65"
	}
	rateLimitPerMin := int64(450)
	if v := strings.TrimSpace(os.Getenv("QBO_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		realmID: realmID,
		minor:   minor,
		tokens:  tokens,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.Tick(interval),
	}, nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("minorversion", c.minor)
	return c.baseURL + "/v3/company/" + c.realmID + path + "?" + params.Encode()
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload interface{}) ([]byte, error) {
	<-c.limiter

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, params), body)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseFault(resp.StatusCode, raw)
	}
	return raw, nil
}

func parseFault(status int, raw []byte) error {
	var env faultEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Fault != nil && len(env.Fault.Error) > 0 {
		f := env.Fault.Error[0]
		return &APIError{
			StatusCode: status,
			Code:       f.Code,
			Message:    f.Message,
			Detail:     f.Detail,
		}
	}
	return &APIError{
		StatusCode: status,
		Message:    fmt.Sprintf("qbo api error %d", status),
		Detail:     strings.TrimSpace(string(raw)),
	}
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*entityEnvelope, error) {
	raw, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return nil, err
	}
	var env entityEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *Client) get(ctx context.Context, path string) (*entityEnvelope, error) {
	raw, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var env entityEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Query runs a raw SQL-ish ledger query and returns the parsed QueryResponse.
func (c *Client) Query(ctx context.Context, q string) (*queryResponse, error) {
	params := url.Values{}
	params.Set("query", q)
	raw, err := c.do(ctx, http.MethodGet, "/query", params, nil)
	if err != nil {
		return nil, err
	}
	var env queryEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env.QueryResponse, nil
}

// escapeQueryValue escapes single quotes inside query literals.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(v, "'", `\'`)
}

func (c *Client) CreateCustomer(ctx context.Context, customer *Customer) (*Customer, error) {
	env, err := c.post(ctx, "/customer", customer)
	if err != nil {
		return nil, err
	}
	if env.Customer == nil {
		return nil, errors.New("qbo response missing Customer")
	}
	return env.Customer, nil
}

// UpdateCustomer performs a sparse update; Id and SyncToken must be set.
func (c *Client) UpdateCustomer(ctx context.Context, customer *Customer) (*Customer, error) {
	customer.Sparse = true
	return c.CreateCustomer(ctx, customer)
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	env, err := c.get(ctx, "/customer/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if env.Customer == nil {
		return nil, errors.New("qbo response missing Customer")
	}
	return env.Customer, nil
}

// FindCustomerByEmail returns the first active customer with the given
// primary email, or nil when none exists.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	q := fmt.Sprintf("SELECT * FROM Customer WHERE PrimaryEmailAddr = '%s' MAXRESULTS 1", escapeQueryValue(email))
	res, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res.Customer) == 0 {
		return nil, nil
	}
	return &res.Customer[0], nil
}

// FindCustomerByDisplayName checks display-name availability, nil when free.
func (c *Client) FindCustomerByDisplayName(ctx context.Context, name string) (*Customer, error) {
	q := fmt.Sprintf("SELECT * FROM Customer WHERE DisplayName = '%s' MAXRESULTS 1", escapeQueryValue(name))
	res, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res.Customer) == 0 {
		return nil, nil
	}
	return &res.Customer[0], nil
}

func (c *Client) CreateInvoice(ctx context.Context, invoice *Invoice) (*Invoice, error) {
	env, err := c.post(ctx, "/invoice", invoice)
	if err != nil {
		return nil, err
	}
	if env.Invoice == nil {
		return nil, errors.New("qbo response missing Invoice")
	}
	return env.Invoice, nil
}

// UpdateInvoice is a full update; the ledger replaces all lines.
func (c *Client) UpdateInvoice(ctx context.Context, invoice *Invoice) (*Invoice, error) {
	return c.CreateInvoice(ctx, invoice)
}

func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	env, err := c.get(ctx, "/invoice/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if env.Invoice == nil {
		return nil, errors.New("qbo response missing Invoice")
	}
	return env.Invoice, nil
}

func (c *Client) CreatePayment(ctx context.Context, payment *Payment) (*Payment, error) {
	env, err := c.post(ctx, "/payment", payment)
	if err != nil {
		return nil, err
	}
	if env.Payment == nil {
		return nil, errors.New("qbo response missing Payment")
	}
	return env.Payment, nil
}

func (c *Client) UpdatePayment(ctx context.Context, payment *Payment) (*Payment, error) {
	return c.CreatePayment(ctx, payment)
}

func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	env, err := c.get(ctx, "/payment/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if env.Payment == nil {
		return nil, errors.New("qbo response missing Payment")
	}
	return env.Payment, nil
}

func (c *Client) CreateCreditMemo(ctx context.Context, memo *CreditMemo) (*CreditMemo, error) {
	env, err := c.post(ctx, "/creditmemo", memo)
	if err != nil {
		return nil, err
	}
	if env.CreditMemo == nil {
		return nil, errors.New("qbo response missing CreditMemo")
	}
	return env.CreditMemo, nil
}

func (c *Client) UpdateCreditMemo(ctx context.Context, memo *CreditMemo) (*CreditMemo, error) {
	return c.CreateCreditMemo(ctx, memo)
}

func (c *Client) GetCreditMemo(ctx context.Context, id string) (*CreditMemo, error) {
	env, err := c.get(ctx, "/creditmemo/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if env.CreditMemo == nil {
		return nil, errors.New("qbo response missing CreditMemo")
	}
	return env.CreditMemo, nil
}

func (c *Client) CreateRefundReceipt(ctx context.Context, receipt *RefundReceipt) (*RefundReceipt, error) {
	env, err := c.post(ctx, "/refundreceipt", receipt)
	if err != nil {
		return nil, err
	}
	if env.RefundReceipt == nil {
		return nil, errors.New("qbo response missing RefundReceipt")
	}
	return env.RefundReceipt, nil
}

func (c *Client) GetRefundReceipt(ctx context.Context, id string) (*RefundReceipt, error) {
	env, err := c.get(ctx, "/refundreceipt/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if env.RefundReceipt == nil {
		return nil, errors.New("qbo response missing RefundReceipt")
	}
	return env.RefundReceipt, nil
}

func (c *Client) CreateItem(ctx context.Context, item *Item) (*Item, error) {
	env, err := c.post(ctx, "/item", item)
	if err != nil {
		return nil, err
	}
	if env.Item == nil {
		return nil, errors.New("qbo response missing Item")
	}
	return env.Item, nil
}

func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	env, err := c.get(ctx, "/item/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if env.Item == nil {
		return nil, errors.New("qbo response missing Item")
	}
	return env.Item, nil
}

func (c *Client) FindItemByName(ctx context.Context, name string) (*Item, error) {
	q := fmt.Sprintf("SELECT * FROM Item WHERE Name = '%s' MAXRESULTS 1", escapeQueryValue(name))
	res, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(res.Item) == 0 {
		return nil, nil
	}
	return &res.Item[0], nil
}

// IncomeAccounts lists accounts of type Income, used to pick a default
// income account when none is configured.
func (c *Client) IncomeAccounts(ctx context.Context) ([]Account, error) {
	res, err := c.Query(ctx, "SELECT * FROM Account WHERE AccountType = 'Income' MAXRESULTS 100")
	if err != nil {
		return nil, err
	}
	return res.Account, nil
}

func (c *Client) BankAccounts(ctx context.Context) ([]Account, error) {
	res, err := c.Query(ctx, "SELECT * FROM Account WHERE AccountType = 'Bank' MAXRESULTS 100")
	if err != nil {
		return nil, err
	}
	return res.Account, nil
}

func (c *Client) TaxCodes(ctx context.Context) ([]TaxCode, error) {
	res, err := c.Query(ctx, "SELECT * FROM TaxCode MAXRESULTS 200")
	if err != nil {
		return nil, err
	}
	return res.TaxCode, nil
}

func (c *Client) PaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	res, err := c.Query(ctx, "SELECT * FROM PaymentMethod MAXRESULTS 200")
	if err != nil {
		return nil, err
	}
	return res.PaymentMethod, nil
}

// CompanyInfo fetches the connected company record; used as the connection
// health check.
func (c *Client) CompanyInfo(ctx context.Context) (*CompanyInfo, error) {
	env, err := c.get(ctx, "/companyinfo/"+url.PathEscape(c.realmID))
	if err != nil {
		return nil, err
	}
	if env.CompanyInfo == nil {
		return nil, errors.New("qbo response missing CompanyInfo")
	}
	return env.CompanyInfo, nil
}
