package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/realtime"
	"posledger/backend/internal/service"
	"posledger/backend/internal/store/memory"
)

const testSecret = "test-secret-key-with-32-characters!"

type testEnv struct {
	handler http.Handler
	repo    *memory.Store
	hub     *realtime.Hub
	auth    *AuthManager
}

// newTestEnv wires the real service and auth manager over an in-memory store
// so handler tests exercise the complete request path.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := memory.New()
	hub := realtime.NewHub(8)
	svc := service.New(repo, hub, nil)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	api := New(svc, auth, hub, nil, Options{AllowedOrigin: "https://pos.example.com"})

	createTestUser(t, repo, "admin", "admin123", domain.RoleAdmin, true)
	createTestUser(t, repo, "kasir1", "kasir123", domain.RoleCashier, true)

	return &testEnv{handler: api.Handler(), repo: repo, hub: hub, auth: auth}
}

func createTestUser(t *testing.T, repo *memory.Store, username, password, role string, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      role,
		Active:    active,
		CreatedAt: time.Now().UTC(),
	}))
}

func (e *testEnv) token(t *testing.T, username, role string) string {
	t.Helper()
	token, err := e.auth.Issue(domain.Actor{Username: username, Role: role}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return token
}

func (e *testEnv) adminToken(t *testing.T) string {
	return e.token(t, "admin", domain.RoleAdmin)
}

func (e *testEnv) cashierToken(t *testing.T) string {
	return e.token(t, "kasir1", domain.RoleCashier)
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) createProduct(t *testing.T, sku string, stock int) domain.Product {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/products", e.adminToken(t), map[string]any{
		"sku":           sku,
		"name":          "Produk " + sku,
		"category":      "grocery",
		"price":         "2500",
		"stock":         stock,
		"need_to_order": 5,
		"vendors":       []string{"Grosir Jaya"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, rec).Product
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, true, body["ok"])
}

func TestProtectedRouteRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCashierCannotManageProducts(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, "SKU-A", 5)

	rec := env.do(t, http.MethodPost, "/api/v1/products", env.cashierToken(t), map[string]any{"sku": "SKU-B", "name": "B"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/products/"+product.ID, env.cashierToken(t), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products", env.cashierToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProductValidationAndConflict(t *testing.T) {
	env := newTestEnv(t)
	env.createProduct(t, "sku-a", 5)

	rec := env.do(t, http.MethodPost, "/api/v1/products", env.adminToken(t), map[string]any{"sku": "SKU-A", "name": "Dup"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/products", env.adminToken(t), map[string]any{"sku": "SKU-Z"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "name is required")

	rec = env.do(t, http.MethodPost, "/api/v1/products", env.adminToken(t), map[string]any{"sku": "SKU-Z", "name": "Z", "colour": "red"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProductsPaginatesAndSearches(t *testing.T) {
	env := newTestEnv(t)
	env.createProduct(t, "KOPI-1", 5)
	env.createProduct(t, "KOPI-2", 5)
	env.createProduct(t, "TEH-1", 5)

	rec := env.do(t, http.MethodGet, "/api/v1/products?search=kopi&page=1&limit=1", env.cashierToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[domain.ProductListResponse](t, rec)
	require.Len(t, body.Products, 1)
	require.Equal(t, 2, body.Pagination.Total)
	require.Equal(t, 2, body.Pagination.TotalPages)
}

func TestDecrementStockShortageLeavesStock(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, "SKU-A", 10)

	rec := env.do(t, http.MethodPatch, "/api/v1/products/decrement-stock", env.cashierToken(t), map[string]any{
		"items": []map[string]any{{"sku": "SKU-A", "qty": 15}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, "SKU-A", body["sku"])
	require.EqualValues(t, 10, body["available"])
	require.EqualValues(t, 15, body["requested"])

	rec = env.do(t, http.MethodGet, "/api/v1/products/"+product.ID, env.cashierToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, rec).Product
	require.Equal(t, 10, got.Stock)
}

func TestDecrementStockReportsAppliedItems(t *testing.T) {
	env := newTestEnv(t)
	env.createProduct(t, "SKU-A", 10)
	env.createProduct(t, "SKU-B", 1)

	rec := env.do(t, http.MethodPatch, "/api/v1/products/decrement-stock", env.cashierToken(t), map[string]any{
		"items": []map[string]any{
			{"sku": "sku-a", "quantity": 3},
			{"sku": "SKU-B", "qty": 4},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[struct {
		SKU     string                 `json:"sku"`
		Applied []domain.StockMovement `json:"applied"`
	}](t, rec)
	require.Equal(t, "SKU-B", body.SKU)
	require.Len(t, body.Applied, 1)
	require.Equal(t, 10, body.Applied[0].Before)
	require.Equal(t, 7, body.Applied[0].After)
}

func TestIncrementStockUnknownSKU(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch, "/api/v1/products/increment-stock", env.cashierToken(t), map[string]any{
		"items": []map[string]any{{"sku": "NOPE", "qty": 1}},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOPE")
}

func TestDeletedProductHiddenUnlessRequested(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, "SKU-A", 1)

	rec := env.do(t, http.MethodDelete, "/api/v1/products/"+product.ID, env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/products/"+product.ID, env.adminToken(t), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products/"+product.ID, env.adminToken(t), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products/"+product.ID+"?include_deleted=true", env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/product-change-logs?product_id="+product.ID, env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[domain.ChangeLogListResponse](t, rec)
	require.Len(t, logs.Logs, 2)
	require.Equal(t, domain.ChangeActionDelete, logs.Logs[0].Action)
}

func TestInvoicePartialPayments(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/invoices", env.cashierToken(t), map[string]any{
		"customer_name": "Toko Sinar",
		"total":         "100.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	invoice := decodeBody[struct {
		Invoice domain.Invoice `json:"invoice"`
	}](t, rec).Invoice
	require.Equal(t, domain.PaymentStatusPending, invoice.Status)

	rec = env.do(t, http.MethodPost, "/api/v1/invoices/"+invoice.ID+"/pay", env.cashierToken(t), map[string]any{"amount": "40"})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody[domain.PaymentResponse](t, rec)
	require.Equal(t, domain.PaymentStatusPartiallyPaid, first.Status)
	require.True(t, first.Remaining.Equal(decimal.NewFromInt(60)))

	rec = env.do(t, http.MethodPost, "/api/v1/invoices/"+invoice.ID+"/pay", env.cashierToken(t), map[string]any{"amount": "70"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[domain.PaymentResponse](t, rec)
	require.True(t, second.Success)
	require.Equal(t, domain.PaymentStatusPaid, second.Status)
	require.True(t, second.PaidAmount.Equal(decimal.NewFromInt(100)))
	require.True(t, second.Remaining.IsZero())

	rec = env.do(t, http.MethodPost, "/api/v1/invoices/"+invoice.ID+"/pay", env.cashierToken(t), map[string]any{"amount": "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/invoices/missing/pay", env.cashierToken(t), map[string]any{"amount": "1"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBillingRecordLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/billing", env.cashierToken(t), map[string]any{
		"customer_name": "CV Maju",
		"file_ref":      "billing/cv-maju.pdf",
		"total":         50000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	record := decodeBody[struct {
		Record domain.BillingRecord `json:"record"`
	}](t, rec).Record

	rec = env.do(t, http.MethodPost, "/api/v1/billing/"+record.ID+"/pay", env.cashierToken(t), map[string]any{"amount": 50000})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/billing?status=paid", env.cashierToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[domain.BillingListResponse](t, rec)
	require.Len(t, list.Records, 1)
	require.Equal(t, domain.PaymentStatusPaid, list.Records[0].Status)
}

func TestCreateSaleAndList(t *testing.T) {
	env := newTestEnv(t)
	env.createProduct(t, "SKU-A", 10)

	rec := env.do(t, http.MethodPost, "/api/v1/sales", env.cashierToken(t), map[string]any{
		"items":   []map[string]any{{"sku": "SKU-A", "qty": 2}},
		"payment": map[string]any{"method": "cash", "amount": "10000"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody[struct {
		Sale domain.Sale `json:"sale"`
	}](t, rec).Sale
	require.True(t, sale.Total.Equal(decimal.NewFromInt(5000)))
	require.True(t, sale.Payment.Change.Equal(decimal.NewFromInt(5000)))
	require.Equal(t, "kasir1", sale.Cashier)

	rec = env.do(t, http.MethodGet, "/api/v1/sales/"+sale.ID, env.cashierToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sales", env.cashierToken(t), map[string]any{
		"items":   []map[string]any{{"sku": "SKU-A", "qty": 50}},
		"payment": map[string]any{"method": "card", "amount": "1000000"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/sales", env.cashierToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[domain.SaleListResponse](t, rec)
	require.Len(t, list.Sales, 1)
}

func TestOrderReceiveAndCancel(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, "SKU-A", 2)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", env.cashierToken(t), map[string]any{"sku": "SKU-A", "count": 8})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeBody[struct {
		Order domain.Order `json:"order"`
	}](t, rec).Order
	require.Equal(t, []string{"Grosir Jaya"}, order.Vendors)

	rec = env.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/receive", env.cashierToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/orders/"+order.ID, env.cashierToken(t), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products/"+product.ID, env.cashierToken(t), nil)
	got := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, rec).Product
	require.Equal(t, 10, got.Stock)
}

func TestReorderRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.createProduct(t, "SKU-LOW", 1)

	rec := env.do(t, http.MethodPost, "/api/v1/orders/reorder", env.cashierToken(t), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/orders/reorder", env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[domain.ReorderResponse](t, rec)
	require.Len(t, resp.Created, 1)
	require.Equal(t, 9, resp.Created[0].Count)
}

func TestEstimateInvoiceFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/estimates", env.cashierToken(t), map[string]any{
		"customer_name": "PT Sejahtera",
		"items": []map[string]any{
			{"description": "Paket sembako", "qty": 2, "unit_price": "150000"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	estimate := decodeBody[struct {
		Estimate domain.Estimate `json:"estimate"`
	}](t, rec).Estimate
	require.Equal(t, "EST-000001", estimate.Number)

	rec = env.do(t, http.MethodPost, "/api/v1/estimates/"+estimate.ID+"/approve", env.cashierToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/estimates/"+estimate.ID+"/invoice", env.cashierToken(t), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[domain.EstimateInvoiceResponse](t, rec)
	require.Equal(t, domain.EstimateStatusInvoiced, resp.Estimate.Status)
	require.Equal(t, estimate.ID, resp.Invoice.EstimateID)
	require.True(t, resp.Invoice.Total.Equal(decimal.NewFromInt(300000)))

	rec = env.do(t, http.MethodPost, "/api/v1/estimates/"+estimate.ID+"/invoice", env.cashierToken(t), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUserManagement(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/users", env.cashierToken(t), map[string]any{"username": "kasir2", "password": "secret1"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/users", env.adminToken(t), map[string]any{"username": "Kasir2", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "secret1")

	rec = env.do(t, http.MethodGet, "/api/v1/users", env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "kasir2")
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/nope", env.adminToken(t), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
