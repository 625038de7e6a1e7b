package webhook

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tiendamx/shop-backend/internal/logging"
	"github.com/tiendamx/shop-backend/internal/service/webhook"
)

// MaxBodyBytes caps the webhook body the way the provider documents it.
const MaxBodyBytes = int64(65536)

type WebhookHandler struct {
	Service *webhook.Service
}

// HandleStripe acknowledges every authentic delivery with 200, even when
// processing failed, so the provider does not retry forever against a
// permanently broken event. Only a bad signature earns a 400.
func (h *WebhookHandler) HandleStripe(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response().Writer, req.Body, MaxBodyBytes)
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	result, err := h.Service.HandleEvent(req.Context(), payload, req.Header.Get("Stripe-Signature"))
	if err != nil {
		logging.FromContext(req.Context()).Warn("webhook_rejected", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
	}

	return c.JSON(http.StatusOK, result)
}
