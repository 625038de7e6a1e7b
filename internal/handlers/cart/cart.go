package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	mwauth "github.com/tiendamx/shop-backend/internal/middleware/auth"
	"github.com/tiendamx/shop-backend/internal/models"
	"github.com/tiendamx/shop-backend/internal/mykafka"
)

type CartHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

func (h *CartHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "cart_events", fmt.Sprint(event["userID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *CartHandler) getOrCreateCart(userID uint) (*models.Cart, error) {
	var cart models.Cart
	err := h.DB.Where("user_id = ?", userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cart = models.Cart{UserID: userID}
		if err := h.DB.Create(&cart).Error; err != nil {
			return nil, err
		}
		return &cart, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

type lineView struct {
	CartItemID uint                  `json:"cart_item_id"`
	Quantity   uint                  `json:"quantity"`
	AddedAt    time.Time             `json:"added_at"`
	Variant    models.ProductVariant `json:"product_variant"`
	Subtotal   float64               `json:"subtotal"`
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID := mwauth.UserID(c)

	var cart models.Cart
	err := h.DB.Preload("Items.ProductVariant.Product").
		Preload("Items.ProductVariant.Size").
		Preload("Items.ProductVariant.Color").
		Where("user_id = ?", userID).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(http.StatusOK, echo.Map{
			"cart_id": nil,
			"items":   []lineView{},
			"summary": echo.Map{"total_items": 0, "total_quantity": 0, "subtotal": 0.0},
		})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Lines pointing at deactivated variants or products are hidden, not
	// deleted: reactivation brings them back.
	items := make([]lineView, 0, len(cart.Items))
	var totalQuantity uint
	var subtotal float64
	for _, it := range cart.Items {
		if !it.ProductVariant.IsActive || !it.ProductVariant.Product.IsActive {
			continue
		}
		lineSubtotal := it.ProductVariant.Price * float64(it.Quantity)
		totalQuantity += it.Quantity
		subtotal += lineSubtotal
		items = append(items, lineView{
			CartItemID: it.ID,
			Quantity:   it.Quantity,
			AddedAt:    it.AddedAt,
			Variant:    it.ProductVariant,
			Subtotal:   lineSubtotal,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"cart_id": cart.ID,
		"items":   items,
		"summary": echo.Map{
			"total_items":    len(items),
			"total_quantity": totalQuantity,
			"subtotal":       subtotal,
		},
	})
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	userID := mwauth.UserID(c)

	var req struct {
		ProductVariantID uint `json:"product_variant_id"`
		Quantity         uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	var variant models.ProductVariant
	if err := h.DB.Preload("Product").First(&variant, req.ProductVariantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product variant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !variant.IsActive || !variant.Product.IsActive {
		return echo.NewHTTPError(http.StatusBadRequest, "this product is not available")
	}
	if variant.Stock < int(req.Quantity) {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("insufficient stock: only %d units available", variant.Stock))
	}

	cart, err := h.getOrCreateCart(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var item models.CartItem
	tx := h.DB.Where("cart_id = ? AND product_variant_id = ?", cart.ID, req.ProductVariantID).First(&item)
	if tx.Error == nil {
		newQuantity := item.Quantity + req.Quantity
		if int(newQuantity) > variant.Stock {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("cannot add more: you already have %d and only %d are available",
					item.Quantity, variant.Stock))
		}
		item.Quantity = newQuantity
		if err := h.DB.Save(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	} else if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		item = models.CartItem{
			CartID:           cart.ID,
			ProductVariantID: req.ProductVariantID,
			Quantity:         req.Quantity,
		}
		if err := h.DB.Create(&item).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	} else {
		return echo.NewHTTPError(http.StatusInternalServerError, tx.Error.Error())
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"variantID": req.ProductVariantID,
		"quantity":  item.Quantity,
	})
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	userID := mwauth.UserID(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Quantity uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil || req.Quantity < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be at least 1")
	}

	item, httpErr := h.ownedItem(userID, uint(id))
	if httpErr != nil {
		return httpErr
	}

	var variant models.ProductVariant
	if err := h.DB.First(&variant, item.ProductVariantID).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if variant.Stock < int(req.Quantity) {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("insufficient stock: only %d units available", variant.Stock))
	}

	item.Quantity = req.Quantity
	if err := h.DB.Save(item).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":     "cart_item_updated",
		"userID":   userID,
		"itemID":   item.ID,
		"quantity": item.Quantity,
	})
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	userID := mwauth.UserID(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	item, httpErr := h.ownedItem(userID, uint(id))
	if httpErr != nil {
		return httpErr
	}

	if err := h.DB.Delete(item).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":   "cart_item_removed",
		"userID": userID,
		"itemID": id,
	})
	return c.JSON(http.StatusOK, echo.Map{"deleted_item": id})
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	userID := mwauth.UserID(c)

	var cart models.Cart
	if err := h.DB.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusOK, echo.Map{"message": "cart is already empty"})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.DB.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":   "cart_cleared",
		"userID": userID,
	})
	return c.JSON(http.StatusOK, echo.Map{"message": "cart emptied"})
}

func (h *CartHandler) ownedItem(userID, itemID uint) (*models.CartItem, error) {
	var cart models.Cart
	if err := h.DB.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "you have no active cart")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var item models.CartItem
	if err := h.DB.First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "item not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if item.CartID != cart.ID {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "this item does not belong to your cart")
	}
	return &item, nil
}
