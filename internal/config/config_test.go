package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("defaults should load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.PaymentCurrency != "INR" || cfg.SignatureFailure != "retain" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.DeliveryFee.String() != "50.00" || cfg.SessionTTL != time.Hour {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DELIVERY_FEE", "35.50")
	t.Setenv("SIGNATURE_FAILURE_POLICY", "CANCEL")
	t.Setenv("STORE_LAT", "12.9716")
	t.Setenv("STORE_LNG", "77.5946")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example, https://admin.example")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers %v", cfg.KafkaBrokers)
	}
	if cfg.DeliveryFee.MinorUnits() != 3550 || cfg.SignatureFailure != "cancel" {
		t.Fatalf("unexpected %+v", cfg)
	}
	if loc := cfg.StoreLocation(); loc.Lat != 12.9716 || loc.Lng != 77.5946 {
		t.Fatalf("store location %+v", loc)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadServerConfigJoinsErrors(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("DELIVERY_FEE", "fifty")
	t.Setenv("PAYMENT_PROVIDER", "paypal")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"HTTP_READ_TIMEOUT", "DELIVERY_FEE", "PAYMENT_PROVIDER"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_LOCATION_TOPIC", "pings")
	t.Setenv("REDIS_RETRY_ATTEMPTS", "0")
	cfg, err := LoadConsumerConfig()
	if err == nil || !strings.Contains(err.Error(), "REDIS_RETRY_ATTEMPTS") {
		t.Fatalf("expected attempts error, got %v", err)
	}
	if cfg.KafkaTopic != "pings" || cfg.KafkaGroup != "bakery-location-consumer" {
		t.Fatalf("unexpected %+v", cfg)
	}
}
