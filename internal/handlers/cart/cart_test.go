package cart_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/config"
	carthandler "github.com/tiendamx/shop-backend/internal/handlers/cart"
	"github.com/tiendamx/shop-backend/internal/models"
	"github.com/tiendamx/shop-backend/internal/mykafka"
)

type testEnv struct {
	T  *testing.T
	E  *echo.Echo
	H  *carthandler.CartHandler
	DB *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	return &testEnv{
		T:  t,
		E:  echo.New(),
		H:  &carthandler.CartHandler{DB: db, Producer: &mykafka.Producer{}},
		DB: db,
	}
}

func (env *testEnv) request(method, path string, body any, userID uint) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	c.Set("userID", userID)
	c.Set("role", "user")
	return rec, c
}

func (env *testEnv) seedVariant(price float64, stock int) models.ProductVariant {
	prod := models.Product{Name: "Gorra", IsActive: true}
	require.NoError(env.T, env.DB.Create(&prod).Error)
	variant := models.ProductVariant{
		ProductID: prod.ID,
		SKU:       fmt.Sprintf("%s-SKU-%d", env.T.Name(), prod.ID),
		Price:     price,
		Stock:     stock,
		IsActive:  true,
	}
	require.NoError(env.T, env.DB.Create(&variant).Error)
	return variant
}

func (env *testEnv) seedUser(email string) models.User {
	user := models.User{Email: email, PasswordHash: "x", Name: "Test"}
	require.NoError(env.T, env.DB.Create(&user).Error)
	return user
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	return he.Code
}

func TestGetCartEmpty(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("empty@test.mx")

	rec, c := env.request(http.MethodGet, "/api/v1/cart", nil, user.ID)
	require.NoError(t, env.H.GetCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		CartID  *uint `json:"cart_id"`
		Items   []any `json:"items"`
		Summary struct {
			TotalItems int `json:"total_items"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.CartID)
	require.Empty(t, resp.Items)
}

func TestAddToCartAndMerge(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("merge@test.mx")
	variant := env.seedVariant(299, 10)

	load := map[string]uint{"product_variant_id": variant.ID, "quantity": 2}
	rec, c := env.request(http.MethodPost, "/api/v1/cart", load, user.ID)
	require.NoError(t, env.H.AddToCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// Re-adding the same variant merges into one line.
	rec, c = env.request(http.MethodPost, "/api/v1/cart", load, user.ID)
	require.NoError(t, env.H.AddToCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var items []models.CartItem
	require.NoError(t, env.DB.Find(&items).Error)
	require.Len(t, items, 1)
	require.Equal(t, uint(4), items[0].Quantity)
}

func TestAddToCartStockCeiling(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("ceiling@test.mx")
	variant := env.seedVariant(299, 3)

	_, c := env.request(http.MethodPost, "/api/v1/cart",
		map[string]uint{"product_variant_id": variant.ID, "quantity": 2}, user.ID)
	require.NoError(t, env.H.AddToCart(c))

	_, c = env.request(http.MethodPost, "/api/v1/cart",
		map[string]uint{"product_variant_id": variant.ID, "quantity": 2}, user.ID)
	err := env.H.AddToCart(c)
	require.Equal(t, http.StatusBadRequest, httpCode(t, err))

	var items []models.CartItem
	require.NoError(t, env.DB.Find(&items).Error)
	require.Len(t, items, 1)
	require.Equal(t, uint(2), items[0].Quantity)
}

func TestAddToCartInactiveVariant(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("inactive@test.mx")
	variant := env.seedVariant(299, 10)
	require.NoError(t, env.DB.Model(&variant).Update("is_active", false).Error)

	_, c := env.request(http.MethodPost, "/api/v1/cart",
		map[string]uint{"product_variant_id": variant.ID, "quantity": 1}, user.ID)
	err := env.H.AddToCart(c)
	require.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestUpdateItemQuantity(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("update@test.mx")
	variant := env.seedVariant(150, 10)

	_, c := env.request(http.MethodPost, "/api/v1/cart",
		map[string]uint{"product_variant_id": variant.ID, "quantity": 1}, user.ID)
	require.NoError(t, env.H.AddToCart(c))

	var item models.CartItem
	require.NoError(t, env.DB.First(&item).Error)

	rec, c := env.request(http.MethodPatch, "/api/v1/cart/1", map[string]uint{"quantity": 5}, user.ID)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(item.ID))
	require.NoError(t, env.H.UpdateItem(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, env.DB.First(&item, item.ID).Error)
	require.Equal(t, uint(5), item.Quantity)
}

func TestUpdateForeignItemRejected(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser("owner@test.mx")
	intruder := env.seedUser("intruder@test.mx")
	variant := env.seedVariant(150, 10)

	_, c := env.request(http.MethodPost, "/api/v1/cart",
		map[string]uint{"product_variant_id": variant.ID, "quantity": 1}, owner.ID)
	require.NoError(t, env.H.AddToCart(c))

	var item models.CartItem
	require.NoError(t, env.DB.First(&item).Error)

	_, c = env.request(http.MethodPatch, "/api/v1/cart/1", map[string]uint{"quantity": 5}, intruder.ID)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(item.ID))
	err := env.H.UpdateItem(c)
	require.Error(t, err)
	require.NotEqual(t, http.StatusOK, httpCode(t, err))
}

func TestRemoveItem(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("remove@test.mx")
	variant := env.seedVariant(150, 10)

	_, c := env.request(http.MethodPost, "/api/v1/cart",
		map[string]uint{"product_variant_id": variant.ID, "quantity": 2}, user.ID)
	require.NoError(t, env.H.AddToCart(c))

	var item models.CartItem
	require.NoError(t, env.DB.First(&item).Error)

	rec, c := env.request(http.MethodDelete, "/api/v1/cart/1", nil, user.ID)
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(item.ID))
	require.NoError(t, env.H.RemoveItem(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.CartItem{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestClearCart(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("clear@test.mx")
	v1 := env.seedVariant(150, 10)
	v2 := env.seedVariant(200, 10)

	for _, v := range []models.ProductVariant{v1, v2} {
		_, c := env.request(http.MethodPost, "/api/v1/cart",
			map[string]uint{"product_variant_id": v.ID, "quantity": 1}, user.ID)
		require.NoError(t, env.H.AddToCart(c))
	}

	rec, c := env.request(http.MethodDelete, "/api/v1/cart", nil, user.ID)
	require.NoError(t, env.H.ClearCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.CartItem{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGetCartHidesInactiveLines(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser("hidden@test.mx")
	variant := env.seedVariant(150, 10)

	_, c := env.request(http.MethodPost, "/api/v1/cart",
		map[string]uint{"product_variant_id": variant.ID, "quantity": 1}, user.ID)
	require.NoError(t, env.H.AddToCart(c))

	require.NoError(t, env.DB.Model(&models.Product{}).
		Where("id = ?", variant.ProductID).
		Update("is_active", false).Error)

	rec, c := env.request(http.MethodGet, "/api/v1/cart", nil, user.ID)
	require.NoError(t, env.H.GetCart(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Items)

	// The row survives in storage for a potential reactivation.
	var count int64
	require.NoError(t, env.DB.Model(&models.CartItem{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}
