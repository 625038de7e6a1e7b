package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tiendamx/shop-backend/internal/metrics"
	mwauth "github.com/tiendamx/shop-backend/internal/middleware/auth"
	"github.com/tiendamx/shop-backend/internal/service/checkout"
	"github.com/tiendamx/shop-backend/internal/util"
)

type OrderHandler struct {
	Checkout *checkout.Service
}

// translate maps orchestrator errors onto client-facing statuses.
func translate(err error) error {
	var stockErr *checkout.StockError
	var inactiveErr *checkout.InactiveError
	switch {
	case errors.Is(err, checkout.ErrOrderNotFound),
		errors.Is(err, checkout.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, checkout.ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidShippingAddress),
		errors.Is(err, checkout.ErrInvalidBillingAddress),
		errors.Is(err, checkout.ErrAlreadyCancelled),
		errors.Is(err, checkout.ErrOrderShipped),
		errors.Is(err, checkout.ErrOrderDelivered),
		errors.Is(err, checkout.ErrStatusLocked),
		errors.Is(err, checkout.ErrUnknownStatus),
		errors.As(err, &stockErr),
		errors.As(err, &inactiveErr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	userID := mwauth.UserID(c)

	var in checkout.CreateOrderInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Checkout.CreateOrderFromCart(c.Request().Context(), userID, in)
	metrics.RecordOrderOperation("create", err == nil)
	if err != nil {
		return translate(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"order_id":     order.ID,
		"status":       order.Status,
		"total_amount": order.TotalAmount,
		"currency":     order.Currency,
		"items_count":  len(order.Items),
		"created_at":   order.CreatedAt,
		"order":        order,
	})
}

func (h *OrderHandler) CreateCheckoutSession(c echo.Context) error {
	userID := mwauth.UserID(c)

	var in checkout.CheckoutInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	sess, err := h.Checkout.CreateCheckoutSession(c.Request().Context(), userID, in)
	metrics.RecordOrderOperation("checkout_session", err == nil)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *OrderHandler) CreatePaymentIntent(c echo.Context) error {
	userID := mwauth.UserID(c)

	var in checkout.CheckoutInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	intent, err := h.Checkout.CreatePaymentIntent(c.Request().Context(), userID, in)
	metrics.RecordOrderOperation("payment_intent", err == nil)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, intent)
}

func (h *OrderHandler) MyOrders(c echo.Context) error {
	userID := mwauth.UserID(c)

	orders, err := h.Checkout.UserOrders(c.Request().Context(), userID)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"orders_count": len(orders),
		"orders":       orders,
	})
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	userID := mwauth.UserID(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	order, err := h.Checkout.OrderByID(c.Request().Context(), userID, uint(id), mwauth.IsAdmin(c))
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	userID := mwauth.UserID(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	order, err := h.Checkout.CancelOrder(c.Request().Context(), userID, uint(id), mwauth.IsAdmin(c))
	metrics.RecordOrderOperation("cancel", err == nil)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":  "order cancelled, stock restored",
		"order_id": order.ID,
		"status":   order.Status,
	})
}

func (h *OrderHandler) AdminListOrders(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)

	orders, total, err := h.Checkout.AllOrders(c.Request().Context(), c.QueryParam("status"), limit, offset)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data": orders,
		"meta": echo.Map{
			"total":       total,
			"page":        offset/limit + 1,
			"size":        limit,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

func (h *OrderHandler) AdminUpdateStatus(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var in checkout.UpdateStatusInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Checkout.UpdateOrderStatus(c.Request().Context(), uint(id), in)
	metrics.RecordOrderOperation("update_status", err == nil)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order_id":             order.ID,
		"status":               in.Status,
		"tracking_number":      order.TrackingNumber,
		"actual_delivery_date": order.ActualDeliveryDate,
	})
}
