package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/models"
)

// MasterDataHandler serves the small lookup tables the storefront needs to
// render filters and product forms.
type MasterDataHandler struct {
	DB *gorm.DB
}

func (h *MasterDataHandler) ListCategories(c echo.Context) error {
	var rows []models.Category
	if err := h.DB.Order("name ASC").Find(&rows).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *MasterDataHandler) ListGenders(c echo.Context) error {
	var rows []models.Gender
	if err := h.DB.Order("id ASC").Find(&rows).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *MasterDataHandler) ListSizes(c echo.Context) error {
	var rows []models.Size
	if err := h.DB.Order("id ASC").Find(&rows).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *MasterDataHandler) ListColors(c echo.Context) error {
	var rows []models.Color
	if err := h.DB.Order("name ASC").Find(&rows).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *MasterDataHandler) CreateCategory(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	row := models.Category{Name: req.Name}
	if err := h.DB.Create(&row).Error; err != nil {
		return echo.NewHTTPError(http.StatusConflict, "category already exists")
	}
	return c.JSON(http.StatusCreated, row)
}

func (h *MasterDataHandler) CreateSize(c echo.Context) error {
	var req struct {
		Label string `json:"label"`
	}
	if err := c.Bind(&req); err != nil || req.Label == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "label is required")
	}
	row := models.Size{Label: req.Label}
	if err := h.DB.Create(&row).Error; err != nil {
		return echo.NewHTTPError(http.StatusConflict, "size already exists")
	}
	return c.JSON(http.StatusCreated, row)
}

func (h *MasterDataHandler) CreateColor(c echo.Context) error {
	var req struct {
		Name    string `json:"name"`
		HexCode string `json:"hex_code"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	row := models.Color{Name: req.Name, HexCode: req.HexCode}
	if err := h.DB.Create(&row).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, row)
}
