package checkout

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/models"
)

func (s *Service) UserOrders(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.DB.WithContext(ctx).
		Preload("Items").
		Preload("ShippingAddress").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// OrderByID returns a full order view. Non-admin actors may only see their
// own orders.
func (s *Service) OrderByID(ctx context.Context, actorID, orderID uint, isAdmin bool) (*models.Order, error) {
	var order models.Order
	err := s.DB.WithContext(ctx).
		Preload("Items").
		Preload("ShippingAddress").
		Preload("BillingAddress").
		First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.UserID != actorID {
		return nil, ErrNotOwner
	}
	return &order, nil
}

func (s *Service) AllOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Order{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	err := q.Preload("Items").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	return orders, total, err
}
