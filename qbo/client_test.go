package qbo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("QBO_API_BASE_URL", srv.URL)
	t.Setenv("QBO_REALM_ID", "12345")
	t.Setenv("QBO_RATE_LIMIT_PER_MIN", "60000")
	client, err := NewClient(StaticToken("test-token"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestCreateCustomerRoundTrip(t *testing.T) {
	var gotAuth, gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var payload Customer
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		payload.Id = "42"
		payload.SyncToken = "0"
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"Customer": payload})
	}))

	created, err := client.CreateCustomer(context.Background(), &Customer{DisplayName: "Acme"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if created.Id != "42" || created.DisplayName != "Acme" {
		t.Fatalf("created = %+v", created)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotPath != "/v3/company/12345/customer" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestUpdateCustomerSetsSparse(t *testing.T) {
	var sparse bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload Customer
		_ = json.NewDecoder(r.Body).Decode(&payload)
		sparse = payload.Sparse
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"Customer": payload})
	}))

	_, err := client.UpdateCustomer(context.Background(), &Customer{Id: "42", SyncToken: "1", DisplayName: "Acme"})
	if err != nil {
		t.Fatalf("UpdateCustomer: %v", err)
	}
	if !sparse {
		t.Fatal("update must be sparse")
	}
}

func TestParseFaultMessage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Fault":{"Error":[{"Message":"Duplicate Name Exists Error","Detail":"The name supplied already exists","code":"6240"}],"type":"ValidationFault"}}`))
	}))

	_, err := client.CreateCustomer(context.Background(), &Customer{DisplayName: "Acme"})
	if err == nil {
		t.Fatal("expected an error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type %T", err)
	}
	if apiErr.Code != "6240" || apiErr.StatusCode != 400 {
		t.Fatalf("fault = %+v", apiErr)
	}
	if !strings.Contains(apiErr.Error(), "Duplicate Name Exists Error") {
		t.Fatalf("message lost: %q", apiErr.Error())
	}
}

func TestParseFaultNonJSON(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))

	_, err := client.GetCustomer(context.Background(), "1")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type %T", err)
	}
	if apiErr.StatusCode != 502 || apiErr.Detail != "upstream timeout" {
		t.Fatalf("fault = %+v", apiErr)
	}
}

func TestFindCustomerByEmailEscapesQuery(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		_, _ = w.Write([]byte(`{"QueryResponse":{}}`))
	}))

	found, err := client.FindCustomerByEmail(context.Background(), "o'brien@example.com")
	if err != nil {
		t.Fatalf("FindCustomerByEmail: %v", err)
	}
	if found != nil {
		t.Fatal("empty query response must yield nil")
	}
	if !strings.Contains(gotQuery, `o\'brien@example.com`) {
		t.Fatalf("quote not escaped: %q", gotQuery)
	}
}

func TestQueryResponseDecoding(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"QueryResponse":{"Account":[{"Id":"35","Name":"Sales of Product Income","AccountType":"Income"}],"startPosition":1,"maxResults":1}}`))
	}))

	accounts, err := client.IncomeAccounts(context.Background())
	if err != nil {
		t.Fatalf("IncomeAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Id != "35" {
		t.Fatalf("accounts = %+v", accounts)
	}
}

func TestMinorVersionOnRequests(t *testing.T) {
	var gotMinor string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMinor = r.URL.Query().Get("minorversion")
		_, _ = w.Write([]byte(`{"Invoice":{"Id":"7","SyncToken":"0"}}`))
	}))

	if _, err := client.GetInvoice(context.Background(), "7"); err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if gotMinor != "65" {
		t.Fatalf("minorversion = %q", gotMinor)
	}
}

func TestDecimalAmountsMarshalUnquoted(t *testing.T) {
	raw, err := json.Marshal(Line{Amount: decimal.RequireFromString("19.99"), DetailType: "SalesItemLineDetail"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"Amount":19.99`) {
		t.Fatalf("amount marshaled quoted: %s", raw)
	}
}
