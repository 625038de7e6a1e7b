package webhook_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/config"
	webhookhandler "github.com/tiendamx/shop-backend/internal/handlers/webhook"
	"github.com/tiendamx/shop-backend/internal/mykafka"
	"github.com/tiendamx/shop-backend/internal/service/checkout"
	"github.com/tiendamx/shop-backend/internal/service/webhook"
)

const testSecret = "whsec_transport_test"

func newHandler(t *testing.T) *webhookhandler.WebhookHandler {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	return &webhookhandler.WebhookHandler{
		Service: &webhook.Service{
			DB:       db,
			Checkout: &checkout.Service{DB: db, Producer: &mykafka.Producer{}},
			Secret:   testSecret,
		},
	}
}

func deliver(t *testing.T, h *webhookhandler.WebhookHandler, payload []byte, sig string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	return rec, h.HandleStripe(e.NewContext(req, rec))
}

func TestStripeEndpointRejectsBadSignature(t *testing.T) {
	h := newHandler(t)

	payload := []byte(`{"id":"evt_x","type":"checkout.session.completed"}`)
	_, err := deliver(t, h, payload, "t=1,v1=bad")
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestStripeEndpointAcknowledgesValidDelivery(t *testing.T) {
	h := newHandler(t)

	payload, err := json.Marshal(map[string]any{
		"id":      "evt_transport_1",
		"type":    "customer.created",
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": map[string]any{"id": "cus_1"}},
	})
	require.NoError(t, err)

	ts := time.Now()
	sig := fmt.Sprintf("t=%d,v1=%s", ts.Unix(),
		hex.EncodeToString(stripewebhook.ComputeSignature(ts, payload, testSecret)))

	rec, err := deliver(t, h, payload, sig)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	var res webhook.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "evt_transport_1", res.EventID)
	require.True(t, res.Processed)
}
