package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/models"
)

type Config struct {
	DB_HOST               string
	DB_PORT               string
	DB_USER               string
	DB_PASSWORD           string
	DB_NAME               string
	ES_URL                string
	ES_USER               string
	ES_PASSWORD           string
	JWT_SECRET            string
	REFRESH_SECRET        string
	KAFKA_ADDRESS         string
	STRIPE_SECRET_KEY     string
	STRIPE_WEBHOOK_SECRET string
	FRONTEND_URL          string
	LOG_LEVEL             string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		DB_HOST:               os.Getenv("DB_HOST"),
		DB_PORT:               os.Getenv("DB_PORT"),
		DB_USER:               os.Getenv("DB_USER"),
		DB_PASSWORD:           os.Getenv("DB_PASSWORD"),
		DB_NAME:               os.Getenv("DB_NAME"),
		ES_URL:                os.Getenv("ES_URL"),
		ES_USER:               os.Getenv("ES_USER"),
		ES_PASSWORD:           os.Getenv("ES_PASSWORD"),
		JWT_SECRET:            os.Getenv("JWT_SECRET"),
		REFRESH_SECRET:        os.Getenv("REFRESH_SECRET"),
		KAFKA_ADDRESS:         os.Getenv("KAFKA_ADDRESS"),
		STRIPE_SECRET_KEY:     os.Getenv("STRIPE_SECRET_KEY"),
		STRIPE_WEBHOOK_SECRET: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		FRONTEND_URL:          os.Getenv("FRONTEND_URL"),
		LOG_LEVEL:             os.Getenv("LOG_LEVEL"),
	}

	return config, nil
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DB_USER, cfg.DB_PASSWORD, cfg.DB_HOST, cfg.DB_PORT, cfg.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to db: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("cannot run migrations: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Address{},
		&models.Category{},
		&models.Gender{},
		&models.Size{},
		&models.Color{},
		&models.Product{},
		&models.ProductVariant{},
		&models.ProductImage{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.WebhookEvent{},
		&models.Favorite{},
	)
}
