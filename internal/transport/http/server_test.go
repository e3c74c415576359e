package http

import (
	"bytes"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/notify"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const (
	testMerchantID = "121XXXX"
	testSecret     = "test-secret"
)

type fixture struct {
	server   *Server
	orders   domain.OrderRepository
	catalog  *memory.Catalog
	provider *gateway.MockCardProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := log.New()
	logger.SetOutput(&bytes.Buffer{})
	entry := logger.WithField("component", "test")

	orders := memory.NewOrderRepository()
	catalog := memory.NewCatalog(
		domain.Product{
			ID:            "p1",
			Name:          "Plain Tee",
			PriceMinor:    10000,
			Sizes:         []string{"S", "M", "L"},
			StockQuantity: 5,
			InStock:       true,
		},
		domain.Product{
			ID:            "p2",
			Name:          "Ankle Socks",
			PriceMinor:    3000,
			Sizes:         []string{"M"},
			StockQuantity: 10,
			InStock:       true,
		},
	)
	provider := gateway.NewMockCardProvider()

	engine := checkout.NewEngine(checkout.Deps{
		Orders:   orders,
		Catalog:  catalog,
		Ledger:   catalog,
		Carts:    memory.NewCartStore(),
		Notifier: notify.NewMock(),
		Outbox:   memory.NewOutboxRepository(),
		Timeline: memory.NewTimelineRepository(),
		Gateways: []gateway.Gateway{
			gateway.NewCardGateway(provider, gateway.DefaultCardMinAmountMinor, entry),
			gateway.NewRedirectGateway(gateway.RedirectConfig{
				MerchantID:     testMerchantID,
				MerchantSecret: testSecret,
				ReturnURL:      "https://shop.example.com/return",
				CancelURL:      "https://shop.example.com/cancel",
				NotifyURL:      "https://shop.example.com/notify",
				CheckoutURL:    "https://gateway.example.com/pay",
			}, entry),
			gateway.NewCODGateway(),
		},
		Logger:   entry,
		Metrics:  metrics.NewCheckoutMetrics(),
		Currency: "LKR",
	})

	return &fixture{
		server:   NewServer(engine, entry),
		orders:   orders,
		catalog:  catalog,
		provider: provider,
	}
}

func (f *fixture) do(t *testing.T, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
		req.Header.Set(HeaderUserEmail, userID+"@example.com")
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func orderBody(method string) map[string]any {
	return map[string]any{
		"method": method,
		"items": []map[string]any{
			{"product_id": "p1", "size": "M", "qty": 2},
		},
		"address": map[string]any{
			"first_name": "Amaya",
			"last_name":  "Perera",
			"email":      "amaya@example.com",
			"street":     "12 Galle Road",
			"city":       "Colombo",
			"state":      "Western",
			"zipcode":    "00300",
			"country":    "Sri Lanka",
			"phone":      "+94111234567",
		},
	}
}

func createOrder(t *testing.T, f *fixture, userID, method string) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/orders", userID, "", orderBody(method))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	id, _ := data["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func upperMD5Hex(value string) string {
	return strings.ToUpper(fmt.Sprintf("%x", md5.Sum([]byte(value))))
}

func signNotify(orderID, amount, currency, statusCode string) string {
	return upperMD5Hex(testMerchantID + orderID + amount + currency + statusCode + upperMD5Hex(testSecret))
}

func TestCreateAndGetOrder(t *testing.T) {
	f := newFixture(t)

	orderID := createOrder(t, f, "buyer-1", "cod")

	rec := f.do(t, http.MethodGet, "/api/v1/orders/"+orderID, "buyer-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "confirmed", data["status"])
	assert.Equal(t, "cod", data["method"])
	assert.Equal(t, float64(21000), data["total_minor"])
	assert.Equal(t, true, data["is_settled"])
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)

	createOrder(t, f, "buyer-1", "cod")
	// Карточный заказ остаётся в payment_pending и в выдачу покупателя не попадает.
	createOrder(t, f, "buyer-1", "card")

	rec := f.do(t, http.MethodGet, "/api/v1/orders", "buyer-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	list := resp.Data.([]any)
	assert.Len(t, list, 1)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/orders", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "unauthorized", resp.Code)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	body := orderBody("cod")
	body["items"] = []map[string]any{}
	rec := f.do(t, http.MethodPost, "/api/v1/orders", "buyer-1", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(domain.ReasonValidation), decodeResponse(t, rec).Code)

	body = orderBody("wire")
	rec = f.do(t, http.MethodPost, "/api/v1/orders", "buyer-1", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body = orderBody("cod")
	body["address"].(map[string]any)["phone"] = "call me maybe"
	rec = f.do(t, http.MethodPost, "/api/v1/orders", "buyer-1", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(domain.ReasonValidation), decodeResponse(t, rec).Code)
}

func TestGetOrderOwnership(t *testing.T) {
	f := newFixture(t)

	orderID := createOrder(t, f, "buyer-1", "cod")

	rec := f.do(t, http.MethodGet, "/api/v1/orders/"+orderID, "intruder", "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(domain.ReasonAccessDenied), decodeResponse(t, rec).Code)

	// Администратор читает чужие заказы.
	rec = f.do(t, http.MethodGet, "/api/v1/orders/"+orderID, "staff-1", domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/orders/missing", "buyer-1", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(domain.ReasonNotFound), decodeResponse(t, rec).Code)
}

func TestCardIntentAndConfirm(t *testing.T) {
	f := newFixture(t)

	orderID := createOrder(t, f, "buyer-1", "card")

	rec := f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment/card/intent", "buyer-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	intentID, _ := data["external_id"].(string)
	require.NotEmpty(t, intentID)
	assert.NotEmpty(t, data["client_secret"])

	// Пока провайдер не подтвердил списание, confirm отклоняется.
	rec = f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment/card/confirm", "buyer-1", "", map[string]any{"intent_id": intentID})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.provider.SucceedIntent(intentID)

	rec = f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment/card/confirm", "buyer-1", "", map[string]any{"intent_id": intentID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	confirmed := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, "confirmed", confirmed["status"])
}

func TestCardIntentBelowMinimumSuggestsFallback(t *testing.T) {
	f := newFixture(t)

	// Одна пара носков + доставка — сильно ниже card-порога в 20000.
	body := orderBody("card")
	body["items"] = []map[string]any{
		{"product_id": "p2", "size": "M", "qty": 1},
	}
	rec := f.do(t, http.MethodPost, "/api/v1/orders", "buyer-1", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID, _ := decodeResponse(t, rec).Data.(map[string]any)["id"].(string)
	require.NotEmpty(t, orderID)

	rec = f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/payment/card/intent", "buyer-1", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	assert.Equal(t, string(domain.ReasonValidation), resp.Code)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "rejection must carry fallback payment methods")
	assert.Equal(t, float64(gateway.DefaultCardMinAmountMinor), data["min_amount_minor"])
	assert.Equal(t, []any{"redirect", "cod"}, data["suggested_methods"])
}

func TestAdminTransition(t *testing.T) {
	f := newFixture(t)

	orderID := createOrder(t, f, "buyer-1", "cod")

	rec := f.do(t, http.MethodPost, "/api/v1/admin/orders/"+orderID+"/status", "buyer-1", "", map[string]any{"status": "processing"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/orders/"+orderID+"/status", "staff-1", domain.RoleAdmin, map[string]any{"status": "processing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "processing", decodeResponse(t, rec).Data.(map[string]any)["status"])

	// Откат назад по fulfillment-цепочке запрещён.
	rec = f.do(t, http.MethodPost, "/api/v1/admin/orders/"+orderID+"/status", "staff-1", domain.RoleAdmin, map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCustomerCancel(t *testing.T) {
	f := newFixture(t)

	orderID := createOrder(t, f, "buyer-1", "cod")

	rec := f.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", "buyer-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decodeResponse(t, rec).Data.(map[string]any)["status"])
}

func TestRedirectNotifyAlwaysAccepts(t *testing.T) {
	f := newFixture(t)

	orderID := createOrder(t, f, "buyer-1", "redirect")

	sendNotify := func(amount, statusCode, signature string) *httptest.ResponseRecorder {
		form := url.Values{}
		form.Set("merchant_id", testMerchantID)
		form.Set("order_id", orderID)
		form.Set("amount", amount)
		form.Set("currency", "LKR")
		form.Set("status_code", statusCode)
		form.Set("md5sig", signature)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/redirect/notify", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		return rec
	}

	// Подделанная подпись: webhook всё равно получает 200, заказ не двигается.
	rec := sendNotify("210.00", "2", "BOGUS")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	order, err := f.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaymentPending, order.Status)

	// Валидная нотификация подтверждает заказ.
	rec = sendNotify("210.00", "2", signNotify(orderID, "210.00", "LKR", "2"))
	require.Equal(t, http.StatusOK, rec.Code)

	order, err = f.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
}

func TestPaymentStatusView(t *testing.T) {
	f := newFixture(t)

	orderID := createOrder(t, f, "buyer-1", "cod")

	rec := f.do(t, http.MethodGet, "/api/v1/orders/"+orderID+"/payment", "buyer-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, orderID, data["order_id"])
	assert.Equal(t, true, data["is_settled"])
	payment := data["payment"].(map[string]any)
	assert.Equal(t, domain.PaymentRecordPendingCollection, payment["status"])
}
