package user

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	mwauth "github.com/tiendamx/shop-backend/internal/middleware/auth"
	"github.com/tiendamx/shop-backend/internal/models"
)

type UserHandler struct {
	DB *gorm.DB
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	userID := mwauth.UserID(c)

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	userID := mwauth.UserID(c)

	var req struct {
		Name        *string `json:"name"`
		LastName    *string `json:"last_name"`
		PhoneNumber *string `json:"phone_number"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = *req.PhoneNumber
	}
	if err := h.DB.Save(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) ListAddresses(c echo.Context) error {
	userID := mwauth.UserID(c)

	var rows []models.Address
	if err := h.DB.Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

type addressInput struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Street            string `json:"street"`
	Neighborhood      string `json:"neighborhood"`
	City              string `json:"city"`
	State             string `json:"state"`
	PostalCode        string `json:"postal_code"`
	CountryCode       string `json:"country_code"`
	IsDefaultShipping bool   `json:"is_default_shipping"`
	IsDefaultBilling  bool   `json:"is_default_billing"`
}

func (in *addressInput) validate() error {
	if in.FirstName == "" || in.Street == "" || in.City == "" || in.State == "" || in.PostalCode == "" {
		return errors.New("first_name, street, city, state and postal_code are required")
	}
	return nil
}

// clearDefaults drops the matching default flags on the user's other
// addresses so at most one shipping and one billing default exist.
func clearDefaults(tx *gorm.DB, userID, exceptID uint, shipping, billing bool) error {
	q := tx.Model(&models.Address{}).Where("user_id = ? AND id <> ?", userID, exceptID)
	if shipping {
		if err := q.Session(&gorm.Session{}).Update("is_default_shipping", false).Error; err != nil {
			return err
		}
	}
	if billing {
		if err := q.Session(&gorm.Session{}).Update("is_default_billing", false).Error; err != nil {
			return err
		}
	}
	return nil
}

func (h *UserHandler) CreateAddress(c echo.Context) error {
	userID := mwauth.UserID(c)

	var in addressInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := in.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.CountryCode == "" {
		in.CountryCode = "MX"
	}

	var count int64
	if err := h.DB.Model(&models.Address{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// The first address becomes the default for both roles.
	if count == 0 {
		in.IsDefaultShipping = true
		in.IsDefaultBilling = true
	}

	addr := models.Address{
		UserID:            userID,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Street:            in.Street,
		Neighborhood:      in.Neighborhood,
		City:              in.City,
		State:             in.State,
		PostalCode:        in.PostalCode,
		CountryCode:       in.CountryCode,
		IsDefaultShipping: in.IsDefaultShipping,
		IsDefaultBilling:  in.IsDefaultBilling,
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&addr).Error; err != nil {
			return err
		}
		return clearDefaults(tx, userID, addr.ID, addr.IsDefaultShipping, addr.IsDefaultBilling)
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, addr)
}

func (h *UserHandler) UpdateAddress(c echo.Context) error {
	userID := mwauth.UserID(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	addr, httpErr := h.ownedAddress(userID, uint(id))
	if httpErr != nil {
		return httpErr
	}

	var in addressInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := in.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	addr.FirstName = in.FirstName
	addr.LastName = in.LastName
	addr.Street = in.Street
	addr.Neighborhood = in.Neighborhood
	addr.City = in.City
	addr.State = in.State
	addr.PostalCode = in.PostalCode
	if in.CountryCode != "" {
		addr.CountryCode = in.CountryCode
	}
	addr.IsDefaultShipping = in.IsDefaultShipping
	addr.IsDefaultBilling = in.IsDefaultBilling

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(addr).Error; err != nil {
			return err
		}
		return clearDefaults(tx, userID, addr.ID, addr.IsDefaultShipping, addr.IsDefaultBilling)
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, addr)
}

func (h *UserHandler) DeleteAddress(c echo.Context) error {
	userID := mwauth.UserID(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	addr, httpErr := h.ownedAddress(userID, uint(id))
	if httpErr != nil {
		return httpErr
	}

	// Addresses referenced by orders stay in place; order history must keep
	// resolving its shipping and billing snapshots.
	var refs int64
	if err := h.DB.Model(&models.Order{}).
		Where("shipping_address_id = ? OR billing_address_id = ?", addr.ID, addr.ID).
		Count(&refs).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if refs > 0 {
		return echo.NewHTTPError(http.StatusConflict, "address is used by existing orders")
	}

	if err := h.DB.Delete(addr).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted_address": addr.ID})
}

func (h *UserHandler) ownedAddress(userID, addressID uint) (*models.Address, error) {
	var addr models.Address
	if err := h.DB.First(&addr, addressID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "address not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if addr.UserID != userID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "address not found")
	}
	return &addr, nil
}
