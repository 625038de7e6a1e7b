package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tiendamx/shop-backend/internal/config"
	"github.com/tiendamx/shop-backend/internal/handlers"
	authhandler "github.com/tiendamx/shop-backend/internal/handlers/auth"
	carthandler "github.com/tiendamx/shop-backend/internal/handlers/cart"
	favhandler "github.com/tiendamx/shop-backend/internal/handlers/favorites"
	orderhandler "github.com/tiendamx/shop-backend/internal/handlers/order"
	userhandler "github.com/tiendamx/shop-backend/internal/handlers/user"
	webhookhandler "github.com/tiendamx/shop-backend/internal/handlers/webhook"
	"github.com/tiendamx/shop-backend/internal/logging"
	"github.com/tiendamx/shop-backend/internal/metrics"
	mwauth "github.com/tiendamx/shop-backend/internal/middleware/auth"
	"github.com/tiendamx/shop-backend/internal/mykafka"
	"github.com/tiendamx/shop-backend/internal/payments"
	"github.com/tiendamx/shop-backend/internal/service/checkout"
	"github.com/tiendamx/shop-backend/internal/service/search"
	"github.com/tiendamx/shop-backend/internal/service/webhook"
	httpserver "github.com/tiendamx/shop-backend/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	prod, err := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	if err != nil {
		log.Fatal(err)
	}

	esClient, err := search.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	stripeClient, err := payments.NewClient(configuration.STRIPE_SECRET_KEY)
	if err != nil {
		log.Fatal(err)
	}

	checkoutSvc := &checkout.Service{
		DB:          db,
		Gateway:     stripeClient,
		Producer:    prod,
		FrontendURL: configuration.FRONTEND_URL,
	}
	webhookSvc := &webhook.Service{
		DB:       db,
		Checkout: checkoutSvc,
		Secret:   configuration.STRIPE_WEBHOOK_SECRET,
	}
	tokens := &mwauth.TokenService{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := logging.IntoContext(c.Request().Context(), logger)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		DB:               db,
		Tokens:           tokens,
		AuthHandler:      &authhandler.AuthHandler{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret, Producer: prod},
		ProductHandler:   &handlers.ProductHandler{DB: db, Producer: prod, ES: esClient},
		MasterHandler:    &handlers.MasterDataHandler{DB: db},
		SearchHandler:    handlers.NewSearchHandler(esClient, search.Index),
		CartHandler:      &carthandler.CartHandler{DB: db, Producer: prod},
		OrderHandler:     &orderhandler.OrderHandler{Checkout: checkoutSvc},
		UserHandler:      &userhandler.UserHandler{DB: db},
		FavoritesHandler: &favhandler.FavoritesHandler{DB: db},
		WebhookHandler:   &webhookhandler.WebhookHandler{Service: webhookSvc},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
