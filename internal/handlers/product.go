package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/models"
	"github.com/tiendamx/shop-backend/internal/mykafka"
	"github.com/tiendamx/shop-backend/internal/service/search"
	"github.com/tiendamx/shop-backend/internal/util"
)

type ProductHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	ES       *elasticsearch.Client
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["productID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

// syncIndex mirrors the catalog row into the search index. Failures are
// logged, never surfaced: the database row is the source of truth.
func (h *ProductHandler) syncIndex(c echo.Context, prod *models.Product) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if !prod.IsActive {
		if err := search.DeleteProduct(ctx, h.ES, prod.ID); err != nil {
			c.Logger().Errorf("ES delete error: %v", err)
		}
		return
	}
	if err := search.IndexProduct(ctx, h.ES, search.DocFromProduct(prod)); err != nil {
		c.Logger().Errorf("ES index error: %v", err)
	}
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var prod models.Product
	err = h.DB.Preload("Category").
		Preload("Gender").
		Preload("Images").
		Preload("Variants", "is_active = ?", true).
		Preload("Variants.Size").
		Preload("Variants.Color").
		First(&prod, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !prod.IsActive {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.Product{}).Where("is_active = ?", true)
	if v := c.QueryParam("category_id"); v != "" {
		q = q.Where("category_id = ?", parseIntDefault(v, 0))
	}
	if v := c.QueryParam("gender_id"); v != "" {
		q = q.Where("gender_id = ?", parseIntDefault(v, 0))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var items []models.Product
	if err := q.Preload("Category").
		Preload("Gender").
		Preload("Images", "is_main = ?", true).
		Preload("Variants", "is_active = ?", true).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data": items,
		"meta": echo.Map{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

type variantInput struct {
	SizeID  uint    `json:"size_id"`
	ColorID uint    `json:"color_id"`
	SKU     string  `json:"sku"`
	Price   float64 `json:"price"`
	Stock   int     `json:"stock"`
}

type imageInput struct {
	ImageURL string `json:"image_url"`
	IsMain   bool   `json:"is_main"`
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		CategoryID  uint           `json:"category_id"`
		GenderID    uint           `json:"gender_id"`
		Variants    []variantInput `json:"variants"`
		Images      []imageInput   `json:"images"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	for _, v := range req.Variants {
		if v.SKU == "" || v.Price <= 0 || v.Stock < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "each variant needs a sku, a positive price and non-negative stock")
		}
	}

	prod := models.Product{
		Name:        req.Name,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		GenderID:    req.GenderID,
		IsActive:    true,
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&prod).Error; err != nil {
			return err
		}
		for _, v := range req.Variants {
			variant := models.ProductVariant{
				ProductID: prod.ID,
				SizeID:    v.SizeID,
				ColorID:   v.ColorID,
				SKU:       v.SKU,
				Price:     v.Price,
				Stock:     v.Stock,
				IsActive:  true,
			}
			if err := tx.Create(&variant).Error; err != nil {
				return err
			}
		}
		for _, img := range req.Images {
			image := models.ProductImage{
				ProductID: prod.ID,
				ImageURL:  img.ImageURL,
				IsMain:    img.IsMain,
			}
			if err := tx.Create(&image).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.DB.Preload("Category").Preload("Gender").
		Preload("Variants").Preload("Images").
		First(&prod, prod.ID).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.syncIndex(c, &prod)
	h.publish(c, map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})
	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		CategoryID  *uint   `json:"category_id"`
		GenderID    *uint   `json:"gender_id"`
		IsActive    *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var prod models.Product
	if err := h.DB.Preload("Category").Preload("Gender").First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if req.Name != nil {
		prod.Name = *req.Name
	}
	if req.Description != nil {
		prod.Description = *req.Description
	}
	if req.CategoryID != nil {
		prod.CategoryID = *req.CategoryID
	}
	if req.GenderID != nil {
		prod.GenderID = *req.GenderID
	}
	if req.IsActive != nil {
		prod.IsActive = *req.IsActive
	}
	if err := h.DB.Save(&prod).Error; err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.syncIndex(c, &prod)
	h.publish(c, map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})
	return c.JSON(http.StatusOK, prod)
}

// DeleteProduct deactivates instead of deleting: order history keeps pointing
// at real rows and a reactivation restores cart lines that reference them.
func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&prod).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.ProductVariant{}).
			Where("product_id = ?", prod.ID).
			Update("is_active", false).Error
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	prod.IsActive = false
	h.syncIndex(c, &prod)
	h.publish(c, map[string]any{
		"type":      "product_deleted",
		"productID": prod.ID,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) PatchVariant(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req struct {
		Price    *float64 `json:"price"`
		Stock    *int     `json:"stock"`
		IsActive *bool    `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Price != nil && *req.Price <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "price must be positive")
	}
	if req.Stock != nil && *req.Stock < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "stock cannot be negative")
	}

	var variant models.ProductVariant
	if err := h.DB.First(&variant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "variant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if req.Price != nil {
		variant.Price = *req.Price
	}
	if req.Stock != nil {
		variant.Stock = *req.Stock
	}
	if req.IsActive != nil {
		variant.IsActive = *req.IsActive
	}
	if err := h.DB.Save(&variant).Error; err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.publish(c, map[string]any{
		"type":      "variant_updated",
		"productID": variant.ProductID,
		"variantID": variant.ID,
		"stock":     variant.Stock,
	})
	return c.JSON(http.StatusOK, variant)
}
