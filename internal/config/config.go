package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads an optional .env file into the process environment. Variables
// already set take precedence.
func Load(files ...string) {
	_ = godotenv.Load(files...)
}

func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Require returns the value of key or an error naming the missing variable.
func Require(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return v, nil
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Shop is the configuration of the storefront API.
type Shop struct {
	Port               string
	PostgresURL        string
	RedisAddr          string
	KafkaBrokers       []string
	EventsTopic        string
	StripeSecretKey    string
	StripeAPIURL       string
	StripeWebhookKey   string
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	GatewayTimeout     time.Duration
}

func LoadShop() (Shop, error) {
	cfg := Shop{
		Port:               Getenv("PORT", "8081"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		KafkaBrokers:       SplitCSV(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:        Getenv("EVENTS_TOPIC", "storefront.events"),
		StripeAPIURL:       os.Getenv("STRIPE_API_URL"),
		CheckoutSuccessURL: Getenv("CHECKOUT_SUCCESS_URL", "http://localhost:8080/checkout/success"),
		CheckoutCancelURL:  Getenv("CHECKOUT_CANCEL_URL", "http://localhost:8080/checkout/cancel"),
	}

	var err error
	if cfg.PostgresURL, err = Require("POSTGRES_URL"); err != nil {
		return Shop{}, err
	}
	if cfg.StripeSecretKey, err = Require("STRIPE_SECRET_KEY"); err != nil {
		return Shop{}, err
	}
	if cfg.StripeWebhookKey, err = Require("STRIPE_WEBHOOK_SECRET"); err != nil {
		return Shop{}, err
	}
	if cfg.GatewayTimeout, err = Duration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return Shop{}, err
	}

	return cfg, nil
}

// Worker is the configuration of the notification worker.
type Worker struct {
	KafkaBrokers    []string
	EventsTopic     string
	GroupID         string
	EmailServiceURL string
	AdminEmail      string
}

func LoadWorker() (Worker, error) {
	cfg := Worker{
		EventsTopic: Getenv("EVENTS_TOPIC", "storefront.events"),
		GroupID:     Getenv("CONSUMER_GROUP", "notification-worker"),
		AdminEmail:  os.Getenv("ADMIN_EMAIL"),
	}

	brokers, err := Require("KAFKA_BROKERS")
	if err != nil {
		return Worker{}, err
	}
	cfg.KafkaBrokers = SplitCSV(brokers)

	if cfg.EmailServiceURL, err = Require("EMAIL_SERVICE_URL"); err != nil {
		return Worker{}, err
	}

	return cfg, nil
}
