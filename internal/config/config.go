package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
)

type Config struct {
	Port                string
	DBUrl               string
	JWTSecret           string
	AppEnv              string
	VATRateBP           int64
	FeeRateBP           int64
	DefaultSessionPrice int64
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	vatRateBP, err := getEnvInt64("VAT_RATE_BP", fees.DefaultVATRateBP)
	if err != nil {
		return nil, err
	}
	feeRateBP, err := getEnvInt64("FEE_RATE_BP", fees.DefaultFeeRateBP)
	if err != nil {
		return nil, err
	}
	if vatRateBP < 0 || vatRateBP >= fees.RateBasis {
		return nil, fmt.Errorf("VAT_RATE_BP must be between 0 and %d", fees.RateBasis-1)
	}
	if feeRateBP < 0 || feeRateBP >= fees.RateBasis {
		return nil, fmt.Errorf("FEE_RATE_BP must be between 0 and %d", fees.RateBasis-1)
	}

	defaultSessionPrice, err := getEnvInt64("DEFAULT_SESSION_PRICE", 60_000)
	if err != nil {
		return nil, err
	}
	if defaultSessionPrice <= 0 {
		return nil, fmt.Errorf("DEFAULT_SESSION_PRICE must be greater than 0")
	}

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DBUrl:               getEnv("DB_URL", ""),
		JWTSecret:           jwtSecret,
		AppEnv:              normalizeEnv(getEnv("APP_ENV", "production")),
		VATRateBP:           vatRateBP,
		FeeRateBP:           feeRateBP,
		DefaultSessionPrice: defaultSessionPrice,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %v", key, err)
	}
	return parsed, nil
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
