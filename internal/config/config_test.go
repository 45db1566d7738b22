package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a, b,,c ,")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLoadShop(t *testing.T) {
	t.Run("fails without postgres url", func(t *testing.T) {
		t.Setenv("POSTGRES_URL", "")
		t.Setenv("STRIPE_SECRET_KEY", "sk_test")
		t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec")

		if _, err := LoadShop(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("POSTGRES_URL", "postgres://localhost/shop")
		t.Setenv("STRIPE_SECRET_KEY", "sk_test")
		t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec")
		t.Setenv("GATEWAY_TIMEOUT", "")
		t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

		cfg, err := LoadShop()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.GatewayTimeout != 10*time.Second {
			t.Errorf("expected 10s timeout, got %s", cfg.GatewayTimeout)
		}
		if cfg.EventsTopic != "storefront.events" {
			t.Errorf("unexpected topic %q", cfg.EventsTopic)
		}
		if len(cfg.KafkaBrokers) != 2 {
			t.Errorf("expected 2 brokers, got %v", cfg.KafkaBrokers)
		}
	})

	t.Run("rejects bad timeout", func(t *testing.T) {
		t.Setenv("POSTGRES_URL", "postgres://localhost/shop")
		t.Setenv("STRIPE_SECRET_KEY", "sk_test")
		t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec")
		t.Setenv("GATEWAY_TIMEOUT", "soon")

		if _, err := LoadShop(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ORDERFLOW_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ORDERFLOW_TEST_KEY", "")
	_ = os.Unsetenv("ORDERFLOW_TEST_KEY")

	Load(path)

	if got := os.Getenv("ORDERFLOW_TEST_KEY"); got != "from-file" {
		t.Errorf("expected value from .env, got %q", got)
	}
}

func TestLoadWorker(t *testing.T) {
	t.Run("requires email service url", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "localhost:9092")
		t.Setenv("EMAIL_SERVICE_URL", "")

		if _, err := LoadWorker(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "localhost:9092")
		t.Setenv("EMAIL_SERVICE_URL", "http://email:8084")
		t.Setenv("CONSUMER_GROUP", "")
		t.Setenv("EVENTS_TOPIC", "")

		cfg, err := LoadWorker()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.GroupID != "notification-worker" {
			t.Errorf("unexpected group %q", cfg.GroupID)
		}
		if cfg.EventsTopic != "storefront.events" {
			t.Errorf("unexpected topic %q", cfg.EventsTopic)
		}
	})
}
