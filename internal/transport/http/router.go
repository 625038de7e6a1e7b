package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/handlers"
	authhandler "github.com/tiendamx/shop-backend/internal/handlers/auth"
	carthandler "github.com/tiendamx/shop-backend/internal/handlers/cart"
	favhandler "github.com/tiendamx/shop-backend/internal/handlers/favorites"
	orderhandler "github.com/tiendamx/shop-backend/internal/handlers/order"
	userhandler "github.com/tiendamx/shop-backend/internal/handlers/user"
	webhookhandler "github.com/tiendamx/shop-backend/internal/handlers/webhook"
	mwauth "github.com/tiendamx/shop-backend/internal/middleware/auth"
)

type Deps struct {
	DB               *gorm.DB
	Tokens           *mwauth.TokenService
	AuthHandler      *authhandler.AuthHandler
	ProductHandler   *handlers.ProductHandler
	MasterHandler    *handlers.MasterDataHandler
	SearchHandler    *handlers.SearchHandler
	CartHandler      *carthandler.CartHandler
	OrderHandler     *orderhandler.OrderHandler
	UserHandler      *userhandler.UserHandler
	FavoritesHandler *favhandler.FavoritesHandler
	WebhookHandler   *webhookhandler.WebhookHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error {
		sqlDB, err := d.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			return c.NoContent(503)
		}
		return c.NoContent(200)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)

	v1.GET("/search", d.SearchHandler.Handler)

	// The provider authenticates itself with a signature header, not cookies.
	v1.POST("/webhook/stripe", d.WebhookHandler.HandleStripe)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	v1.GET("/categories", d.MasterHandler.ListCategories)
	v1.GET("/genders", d.MasterHandler.ListGenders)
	v1.GET("/sizes", d.MasterHandler.ListSizes)
	v1.GET("/colors", d.MasterHandler.ListColors)

	user := v1.Group("", d.Tokens.RequireUser)

	user.GET("/profile", d.UserHandler.GetProfile)
	user.PATCH("/profile", d.UserHandler.UpdateProfile)
	user.GET("/addresses", d.UserHandler.ListAddresses)
	user.POST("/addresses", d.UserHandler.CreateAddress)
	user.PUT("/addresses/:id", d.UserHandler.UpdateAddress)
	user.DELETE("/addresses/:id", d.UserHandler.DeleteAddress)

	user.GET("/cart", d.CartHandler.GetCart)
	user.POST("/cart", d.CartHandler.AddToCart)
	user.PATCH("/cart/:id", d.CartHandler.UpdateItem)
	user.DELETE("/cart/:id", d.CartHandler.RemoveItem)
	user.DELETE("/cart", d.CartHandler.ClearCart)

	user.POST("/orders", d.OrderHandler.CreateOrder)
	user.GET("/orders", d.OrderHandler.MyOrders)
	user.GET("/orders/:id", d.OrderHandler.GetOrder)
	user.POST("/orders/:id/cancel", d.OrderHandler.CancelOrder)
	user.POST("/checkout/session", d.OrderHandler.CreateCheckoutSession)
	user.POST("/checkout/payment-intent", d.OrderHandler.CreatePaymentIntent)

	user.GET("/favorites", d.FavoritesHandler.List)
	user.POST("/favorites", d.FavoritesHandler.Add)
	user.DELETE("/favorites/:productID", d.FavoritesHandler.Remove)

	admin := v1.Group("/admin", d.Tokens.RequireAdmin)

	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.PATCH("/variants/:id", d.ProductHandler.PatchVariant)

	admin.POST("/categories", d.MasterHandler.CreateCategory)
	admin.POST("/sizes", d.MasterHandler.CreateSize)
	admin.POST("/colors", d.MasterHandler.CreateColor)

	admin.GET("/orders", d.OrderHandler.AdminListOrders)
	admin.PATCH("/orders/:id/status", d.OrderHandler.AdminUpdateStatus)
}
