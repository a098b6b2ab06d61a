package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	cartdomain "github.com/stockerhq/stocker/internal/cart/domain"
	invoicedomain "github.com/stockerhq/stocker/internal/invoice/domain"
	paymentdomain "github.com/stockerhq/stocker/internal/payment/domain"
	"github.com/stockerhq/stocker/internal/tenantctx"
)

const testTenantID = "1234567890123456789"

type fakeCartService struct {
	cartdomain.Service

	getByIDErr  error
	cart        *cartdomain.SubscriptionCart
	gotTenantID string
}

func (f *fakeCartService) GetByID(ctx context.Context, cartID string) (*cartdomain.SubscriptionCart, error) {
	if id, ok := tenantctx.TenantIDFromContext(ctx); ok {
		f.gotTenantID = id.String()
	}
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	return f.cart, nil
}

func (f *fakeCartService) ApplyCoupon(ctx context.Context, req cartdomain.ApplyCouponRequest) (*cartdomain.SubscriptionCart, error) {
	return nil, cartdomain.ErrInvalidCoupon
}

type fakeWebhookService struct {
	err      error
	provider string
	payload  []byte
}

func (f *fakeWebhookService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	f.provider = provider
	f.payload = payload
	return f.err
}

type fakeInvoiceService struct {
	invoicedomain.Service

	pdf []byte
}

func (f *fakeInvoiceService) RenderPDF(ctx context.Context, invoiceID string) ([]byte, error) {
	if f.pdf == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return f.pdf, nil
}

func newTestServer(t *testing.T, carts *fakeCartService, webhooks *fakeWebhookService, invoices *fakeInvoiceService) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())

	s := &Server{
		engine:     r,
		cartSvc:    carts,
		paymentSvc: webhooks,
		invoiceSvc: invoices,
	}
	s.registerAPIRoutes()
	s.registerWebhookRoutes()
	return s
}

func doRequest(s *Server, method, path string, body []byte, withTenant bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if withTenant {
		req.Header.Set(HeaderTenant, testTenantID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestTenantHeaderRequired(t *testing.T) {
	s := newTestServer(t, &fakeCartService{}, &fakeWebhookService{}, &fakeInvoiceService{})

	w := doRequest(s, http.MethodGet, "/api/carts/"+testTenantID, nil, false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Type != "validation_error" {
		t.Fatalf("expected validation_error, got %q", resp.Error.Type)
	}
}

func TestTenantContextReachesService(t *testing.T) {
	carts := &fakeCartService{cart: &cartdomain.SubscriptionCart{}}
	s := newTestServer(t, carts, &fakeWebhookService{}, &fakeInvoiceService{})

	w := doRequest(s, http.MethodGet, "/api/carts/"+testTenantID, nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if carts.gotTenantID != testTenantID {
		t.Fatalf("expected tenant %s in context, got %q", testTenantID, carts.gotTenantID)
	}
}

func TestGetCartRejectsMalformedID(t *testing.T) {
	s := newTestServer(t, &fakeCartService{}, &fakeWebhookService{}, &fakeInvoiceService{})

	w := doRequest(s, http.MethodGet, "/api/carts/not-a-snowflake", nil, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetCartMapsNotFound(t *testing.T) {
	carts := &fakeCartService{getByIDErr: cartdomain.ErrCartNotFound}
	s := newTestServer(t, carts, &fakeWebhookService{}, &fakeInvoiceService{})

	w := doRequest(s, http.MethodGet, "/api/carts/"+testTenantID, nil, true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestExpiredCartMapsToGone(t *testing.T) {
	carts := &fakeCartService{getByIDErr: cartdomain.ErrCartExpired}
	s := newTestServer(t, carts, &fakeWebhookService{}, &fakeInvoiceService{})

	w := doRequest(s, http.MethodGet, "/api/carts/"+testTenantID, nil, true)
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", w.Code)
	}
}

func TestApplyCouponMapsToValidationError(t *testing.T) {
	s := newTestServer(t, &fakeCartService{}, &fakeWebhookService{}, &fakeInvoiceService{})

	body := []byte(`{"code":"LAUNCH10","percent":10}`)
	w := doRequest(s, http.MethodPost, "/api/carts/"+testTenantID+"/coupon", body, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Error.Errors) != 1 || resp.Error.Errors[0].Code != "invalid_coupon" {
		t.Fatalf("expected invalid_coupon, got %+v", resp.Error)
	}
}

func TestWebhookDoesNotRequireTenantHeader(t *testing.T) {
	webhooks := &fakeWebhookService{}
	s := newTestServer(t, &fakeCartService{}, webhooks, &fakeInvoiceService{})

	body := []byte(`{"eventType":"CHECKOUT_FORM_AUTH"}`)
	w := doRequest(s, http.MethodPost, "/webhooks/payments/iyzico", body, false)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if webhooks.provider != "iyzico" {
		t.Fatalf("expected provider iyzico, got %q", webhooks.provider)
	}
	if !bytes.Equal(webhooks.payload, body) {
		t.Fatalf("payload not forwarded verbatim")
	}
}

func TestWebhookSignatureFailureMapsToUnauthorized(t *testing.T) {
	webhooks := &fakeWebhookService{err: paymentdomain.ErrInvalidSignature}
	s := newTestServer(t, &fakeCartService{}, webhooks, &fakeInvoiceService{})

	w := doRequest(s, http.MethodPost, "/webhooks/payments/iyzico", []byte(`{}`), false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestWebhookUnknownProviderMapsToNotFound(t *testing.T) {
	webhooks := &fakeWebhookService{err: paymentdomain.ErrProviderNotFound}
	s := newTestServer(t, &fakeCartService{}, webhooks, &fakeInvoiceService{})

	w := doRequest(s, http.MethodPost, "/webhooks/payments/stripe", []byte(`{}`), false)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDownloadInvoicePDF(t *testing.T) {
	invoices := &fakeInvoiceService{pdf: []byte("%PDF-1.7 fake")}
	s := newTestServer(t, &fakeCartService{}, &fakeWebhookService{}, invoices)

	w := doRequest(s, http.MethodGet, "/api/invoices/"+testTenantID+"/pdf", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected pdf bytes in response")
	}
}
