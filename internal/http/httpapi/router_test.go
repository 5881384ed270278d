package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specledger/internal/adapter/repo/repotest"
	"specledger/internal/audit"
	"specledger/internal/catalog"
	"specledger/internal/directory"
	"specledger/internal/domain"
	"specledger/internal/http/handlers"
	"specledger/internal/http/httpapi"
	"specledger/internal/idempotency"
	"specledger/internal/ledger"
	"specledger/internal/middleware"
	"specledger/internal/webhook"
	"specledger/internal/webhook/webhooktest"
)

const (
	webhookSecret = "whsec_test"
	jwtSecret     = "jwt_test"
	adminToken    = "admin_test"
)

type testAPI struct {
	handler  http.Handler
	store    domain.Store
	app      *handlers.App
	verifier *webhook.Verifier
}

func newAPI(t *testing.T) *testAPI {
	t.Helper()
	store := repotest.NewSQLiteStore(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	appender := audit.NewAppender(node, zerolog.Nop())
	svc := ledger.NewService(store, directory.New(), appender, zerolog.Nop(), ledger.Options{FreeSpecAllowance: 1})
	cat, err := catalog.New(
		domain.Product{VariantID: "100", ProductID: "pack-3", Name: "3 specs", PriceUSD: 9.99, Grants: domain.Grants{SpecCredits: 3}},
		domain.Product{VariantID: "200", ProductID: "pro", Name: "Pro monthly", PriceUSD: 19, Grants: domain.Grants{Unlimited: true, CanEdit: true}},
	)
	require.NoError(t, err)
	verifier := webhook.NewVerifier(webhookSecret)
	dispatcher := webhook.NewDispatcher(svc, idempotency.NewGate(store), appender, cat, zerolog.Nop())
	app := handlers.NewApp(svc, dispatcher, verifier, cat, zerolog.Nop())
	return &testAPI{
		handler: httpapi.NewRouter(app, httpapi.Options{
			JWTSecret:  jwtSecret,
			AdminToken: adminToken,
			Logger:     zerolog.Nop(),
		}),
		store:    store,
		app:      app,
		verifier: verifier,
	}
}

func (a *testAPI) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (a *testAPI) webhook(t *testing.T, body []byte, signature string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, signature)
	return a.do(t, req)
}

func (a *testAPI) asUser(t *testing.T, method, path, userID string, payload any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	token, err := middleware.SignJWT(jwtSecret, userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, jsonBody(t, payload))
	req.Header.Set("Authorization", "Bearer "+token)
	return a.do(t, req)
}

func (a *testAPI) asAdmin(t *testing.T, method, path string, payload any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, jsonBody(t, payload))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	return a.do(t, req)
}

func (a *testAPI) register(t *testing.T, userID, email, customerID string) {
	t.Helper()
	rec, _ := a.asAdmin(t, http.MethodPost, "/internal/accounts", map[string]string{
		"userId": userID, "email": email, "customerId": customerID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func (a *testAPI) processedEvents(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, a.store.RunInTx(context.Background(), func(tx domain.Tx) error {
		events, err := tx.ListProcessedEvents(context.Background(), time.Time{}, 100)
		n = len(events)
		return err
	}))
	return n
}

func (a *testAPI) auditFor(t *testing.T, eventID string) int {
	t.Helper()
	var n int
	require.NoError(t, a.store.RunInTx(context.Background(), func(tx domain.Tx) error {
		entries, err := tx.ListAuditByEvent(context.Background(), eventID)
		n = len(entries)
		return err
	}))
	return n
}

func jsonBody(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	if payload == nil {
		return bytes.NewReader(nil)
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func orderBody(eventID string) []byte {
	return webhooktest.OrderBody(eventID, webhook.EventOrderCreated, webhooktest.Order{
		OrderID: 77, CustomerID: 501, Email: "buyer@example.com", VariantID: 100, TotalCents: 999,
	})
}

func TestWebhookTamperedBodyRejected(t *testing.T) {
	api := newAPI(t)
	api.register(t, "u1", "buyer@example.com", "501")

	body := orderBody("evt_tamper")
	sig := api.verifier.Sign(body)
	tampered := bytes.Replace(body, []byte(`"total":999`), []byte(`"total":1`), 1)
	require.NotEqual(t, body, tampered)

	rec, resp := api.webhook(t, tampered, sig)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid signature", resp["error"])
	assert.Equal(t, 0, api.processedEvents(t))
	assert.Equal(t, 0, api.auditFor(t, "evt_tamper"))

	rec, _ = api.webhook(t, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, api.processedEvents(t))
}

func TestWebhookProcessesAndDeduplicates(t *testing.T) {
	api := newAPI(t)
	api.register(t, "u1", "buyer@example.com", "501")
	body := orderBody("evt_ok")

	rec, resp := api.webhook(t, body, api.verifier.Sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["received"])
	assert.Equal(t, "processed", resp["status"])
	assert.Equal(t, "evt_ok", resp["eventId"])

	rec, resp = api.webhook(t, body, api.verifier.Sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate", resp["status"])

	_, resp = api.asUser(t, http.MethodGet, "/v1/entitlements", "u1", nil)
	ents := resp["entitlements"].(map[string]any)
	assert.EqualValues(t, 3, ents["specCredits"])
}

func TestWebhookRejectsBadInput(t *testing.T) {
	api := newAPI(t)

	garbage := []byte(`{"meta":{}}`)
	rec, _ := api.webhook(t, garbage, api.verifier.Sign(garbage))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, api.processedEvents(t))

	api.app.WebhookBodyLimit = 16
	body := orderBody("evt_big")
	rec, resp := api.webhook(t, body, api.verifier.Sign(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "payload too large", resp["error"])
}

func TestCreditsFlowWithPaywall(t *testing.T) {
	api := newAPI(t)
	api.register(t, "u1", "free@example.com", "")

	rec, resp := api.asUser(t, http.MethodGet, "/v1/credits/check", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["canCreate"])
	assert.Equal(t, ledger.ReasonFree, resp["reason"])

	rec, resp = api.asUser(t, http.MethodPost, "/v1/credits/consume", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "free", resp["creditType"])
	assert.EqualValues(t, 0, resp["creditsRemaining"])
	consumptionID, _ := resp["consumptionId"].(string)
	require.NotEmpty(t, consumptionID)

	rec, resp = api.asUser(t, http.MethodPost, "/v1/credits/consume", "u1", nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "payment_required", resp["error"])
	assert.Len(t, resp["options"], 2)

	rec, resp = api.asUser(t, http.MethodPost, "/v1/credits/refund", "u1", map[string]string{"consumptionId": consumptionID, "creditType": "free"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "free", resp["creditType"])

	_, resp = api.asUser(t, http.MethodGet, "/v1/entitlements", "u1", nil)
	user := resp["user"].(map[string]any)
	assert.EqualValues(t, 1, user["freeSpecsRemaining"])
}

func TestRefundOnlyReversesOwnOpenConsumption(t *testing.T) {
	api := newAPI(t)
	api.register(t, "u1", "free@example.com", "")
	api.register(t, "u2", "other@example.com", "")

	// Refunds without a consumption must not mint credits.
	for i := 0; i < 5; i++ {
		rec, _ := api.asUser(t, http.MethodPost, "/v1/credits/refund", "u1", map[string]string{"creditType": "purchased"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec, resp := api.asUser(t, http.MethodPost, "/v1/credits/refund", "u1", map[string]string{"consumptionId": "c-unknown", "creditType": "purchased"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", resp["error"])
	}

	_, resp := api.asUser(t, http.MethodPost, "/v1/credits/consume", "u1", nil)
	consumptionID := resp["consumptionId"].(string)

	rec, _ := api.asUser(t, http.MethodPost, "/v1/credits/refund", "u2", map[string]string{"consumptionId": consumptionID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = api.asUser(t, http.MethodPost, "/v1/credits/refund", "u1", map[string]string{"consumptionId": consumptionID, "creditType": "purchased"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.asUser(t, http.MethodPost, "/v1/credits/refund", "u1", map[string]string{"consumptionId": consumptionID})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, resp = api.asUser(t, http.MethodPost, "/v1/credits/refund", "u1", map[string]string{"consumptionId": consumptionID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_refunded", resp["error"])

	_, resp = api.asUser(t, http.MethodGet, "/v1/entitlements", "u1", nil)
	assert.EqualValues(t, 1, resp["user"].(map[string]any)["freeSpecsRemaining"])
	assert.EqualValues(t, 0, resp["entitlements"].(map[string]any)["specCredits"])

	allowed := 0
	for i := 0; i < 5; i++ {
		rec, _ := api.asUser(t, http.MethodPost, "/v1/credits/consume", "u1", nil)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestCreditsCheckReportsUnlimited(t *testing.T) {
	api := newAPI(t)
	api.register(t, "u1", "pro@example.com", "501")
	body := webhooktest.SubscriptionBody("evt_sub", webhook.EventSubscriptionCreated, webhooktest.Subscription{
		SubscriptionID: 9, CustomerID: 501, Email: "pro@example.com", VariantID: 200, Status: "active",
	})
	rec, _ := api.webhook(t, body, api.verifier.Sign(body))
	require.Equal(t, http.StatusOK, rec.Code)

	_, resp := api.asUser(t, http.MethodGet, "/v1/credits/check", "u1", nil)
	assert.Equal(t, "unlimited", resp["creditsRemaining"])
	assert.Equal(t, ledger.ReasonUnlimited, resp["reason"])
}

func TestUserRoutesRequireToken(t *testing.T) {
	api := newAPI(t)
	for _, path := range []string{"/v1/entitlements", "/v1/credits/check"} {
		rec, resp := api.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "unauthorized", resp["error"], path)
	}

	rec, _ := api.asUser(t, http.MethodGet, "/v1/entitlements", "ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountsHookClaimsPending(t *testing.T) {
	api := newAPI(t)
	body := orderBody("evt_early")
	rec, _ := api.webhook(t, body, api.verifier.Sign(body))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := api.asAdmin(t, http.MethodPost, "/internal/accounts", map[string]string{
		"userId": "u9", "email": "Buyer@Example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, resp["created"])
	assert.EqualValues(t, 1, resp["claimed"])
	assert.EqualValues(t, 3, resp["creditsClaimed"])

	rec, resp = api.asAdmin(t, http.MethodPost, "/internal/accounts", map[string]string{
		"userId": "u9", "email": "buyer@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, resp["claimed"])
	ents := resp["account"].(map[string]any)["entitlements"].(map[string]any)
	assert.EqualValues(t, 3, ents["specCredits"])
}

func TestAdminRoutes(t *testing.T) {
	api := newAPI(t)
	api.register(t, "u1", "a@example.com", "")

	rec, resp := api.asAdmin(t, http.MethodPost, "/admin/credits", map[string]any{
		"userId": "u1", "amount": 5, "metadata": map[string]any{"ticket": "T-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 5, resp["entitlements"].(map[string]any)["specCredits"])

	rec, _ = api.asAdmin(t, http.MethodPost, "/admin/credits", map[string]any{"userId": "u1", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.asAdmin(t, http.MethodPost, "/admin/credits", map[string]any{"userId": "ghost", "amount": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp = api.asAdmin(t, http.MethodPost, "/admin/users/u1/revoke-pro", map[string]string{"reason": "chargeback"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp["entitlements"].(map[string]any)["unlimited"])

	rec, resp = api.asAdmin(t, http.MethodGet, "/admin/reconciliation?since=2000-01-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp["findings"])

	rec, _ = api.asAdmin(t, http.MethodGet, "/admin/reconciliation?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/admin/credits", jsonBody(t, map[string]any{"userId": "u1", "amount": 1}))
	req.Header.Set("Authorization", "Bearer wrong")
	rec, _ = api.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPublicRoutes(t *testing.T) {
	api := newAPI(t)

	rec, resp := api.do(t, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp["status"])

	rec, resp = api.do(t, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.0.0", rec.Header().Get("X-API-Version"))
	paths := resp["paths"].(map[string]any)
	for _, p := range []string{"/v1/webhooks/payments", "/v1/credits/consume", "/admin/reconciliation"} {
		assert.Contains(t, paths, p)
	}

	rec, _ = api.do(t, httptest.NewRequest(http.MethodGet, "/v1/docs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `spec-url="/v1/openapi.json"`)

	rec, _ = api.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "specledger_")

	rec, _ = api.do(t, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthDegradedWhenStoreDown(t *testing.T) {
	api := newAPI(t)
	require.NoError(t, api.store.Close())

	rec, resp := api.do(t, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", resp["status"])
}
