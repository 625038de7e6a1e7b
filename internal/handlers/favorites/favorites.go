package favorites

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	mwauth "github.com/tiendamx/shop-backend/internal/middleware/auth"
	"github.com/tiendamx/shop-backend/internal/models"
)

type FavoritesHandler struct {
	DB *gorm.DB
}

func (h *FavoritesHandler) List(c echo.Context) error {
	userID := mwauth.UserID(c)

	var rows []models.Favorite
	if err := h.DB.Preload("Product").
		Preload("Product.Images", "is_main = ?", true).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(rows), "favorites": rows})
}

func (h *FavoritesHandler) Add(c echo.Context) error {
	userID := mwauth.UserID(c)

	var req struct {
		ProductID uint `json:"product_id"`
	}
	if err := c.Bind(&req); err != nil || req.ProductID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "product_id is required")
	}

	var prod models.Product
	if err := h.DB.First(&prod, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	fav := models.Favorite{UserID: userID, ProductID: req.ProductID}
	err := h.DB.Where("user_id = ? AND product_id = ?", userID, req.ProductID).
		FirstOrCreate(&fav).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, fav)
}

func (h *FavoritesHandler) Remove(c echo.Context) error {
	userID := mwauth.UserID(c)

	productID, err := strconv.Atoi(c.Param("productID"))
	if err != nil || productID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	result := h.DB.Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.Favorite{})
	if result.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "favorite not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"removed_product": productID})
}
