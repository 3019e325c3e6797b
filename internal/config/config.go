package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/bakery-orders/internal/models"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values come from environment variables with defaults that let the binary
// run locally against the in-memory store.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN         string
	RunMigrations bool

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers       []string
	KafkaOrderTopic    string
	KafkaLocationTopic string

	PaymentProvider      string
	PaymentKeyID         string
	PaymentKeySecret     string
	PaymentWebhookSecret string
	PaymentAPIBase       string
	PaymentCurrency      string
	SignatureFailure     string

	DeliveryFee models.Money
	ShopName    string

	SMTPAddr      string
	SMTPUsername  string
	SMTPPassword  string
	MailFrom      string
	AdminEmail    string
	SMSEndpoint   string
	SMSAPIKey     string
	NotifyTimeout time.Duration

	SessionTTL time.Duration

	OSRMEndpoint    string
	ETACacheTTL     time.Duration
	DefaultSpeedMps float64
	StoreLat        float64
	StoreLng        float64
	SuggestTopN     int

	CORSAllowedOrigins []string
	LogLevel           string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RedisGeoKey:        "drivers:geo",
		KafkaOrderTopic:    "order-events",
		KafkaLocationTopic: "driver-locations",
		PaymentProvider:    "razorpay",
		PaymentCurrency:    "INR",
		SignatureFailure:   "retain",
		DeliveryFee:        models.MustMoney("50.00"),
		ShopName:           "The Bakery",
		NotifyTimeout:      10 * time.Second,
		SessionTTL:         time.Hour,
		ETACacheTTL:        30 * time.Second,
		DefaultSpeedMps:    6,
		SuggestTopN:        5,
		LogLevel:           "info",
	}
}

// LoadServerConfig reads the environment, after loading a .env file from
// the working directory if one exists. Real environment variables win.
func LoadServerConfig() (ServerConfig, error) {
	_ = godotenv.Load()

	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaOrderTopic, "KAFKA_ORDER_TOPIC")
	setStringFromEnv(&cfg.KafkaLocationTopic, "KAFKA_LOCATION_TOPIC")

	if v := os.Getenv("PAYMENT_PROVIDER"); v != "" {
		cfg.PaymentProvider = strings.ToLower(strings.TrimSpace(v))
	}
	cfg.PaymentKeyID = os.Getenv("PAYMENT_KEY_ID")
	cfg.PaymentKeySecret = os.Getenv("PAYMENT_KEY_SECRET")
	cfg.PaymentWebhookSecret = os.Getenv("PAYMENT_WEBHOOK_SECRET")
	cfg.PaymentAPIBase = strings.TrimSpace(os.Getenv("PAYMENT_API_BASE"))
	setStringFromEnv(&cfg.PaymentCurrency, "PAYMENT_CURRENCY")
	if v := os.Getenv("SIGNATURE_FAILURE_POLICY"); v != "" {
		cfg.SignatureFailure = strings.ToLower(strings.TrimSpace(v))
	}

	if v := strings.TrimSpace(os.Getenv("DELIVERY_FEE")); v != "" {
		fee, err := models.ParseMoney(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid DELIVERY_FEE: %w", err))
		} else {
			cfg.DeliveryFee = fee
		}
	}
	setStringFromEnv(&cfg.ShopName, "SHOP_NAME")

	cfg.SMTPAddr = strings.TrimSpace(os.Getenv("SMTP_ADDR"))
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = strings.TrimSpace(os.Getenv("MAIL_FROM"))
	cfg.AdminEmail = strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))
	cfg.SMSEndpoint = strings.TrimSpace(os.Getenv("SMS_ENDPOINT"))
	cfg.SMSAPIKey = os.Getenv("SMS_API_KEY")
	setDurationFromEnv(&cfg.NotifyTimeout, "NOTIFY_TIMEOUT", &errs)

	setDurationFromEnv(&cfg.SessionTTL, "SESSION_TTL", &errs)

	cfg.OSRMEndpoint = strings.TrimRight(strings.TrimSpace(os.Getenv("OSRM_ENDPOINT")), "/")
	setDurationFromEnv(&cfg.ETACacheTTL, "ETA_CACHE_TTL", &errs)
	setFloatFromEnv(&cfg.DefaultSpeedMps, "DEFAULT_SPEED_MPS", &errs)
	setFloatFromEnv(&cfg.StoreLat, "STORE_LAT", &errs)
	setFloatFromEnv(&cfg.StoreLng, "STORE_LNG", &errs)
	setIntFromEnv(&cfg.SuggestTopN, "SUGGEST_TOP_N", &errs)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	switch cfg.PaymentProvider {
	case "razorpay", "stripe":
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_PROVIDER must be razorpay or stripe, got %q", cfg.PaymentProvider))
	}
	switch cfg.SignatureFailure {
	case "retain", "cancel":
	default:
		errs = append(errs, fmt.Errorf("SIGNATURE_FAILURE_POLICY must be retain or cancel, got %q", cfg.SignatureFailure))
	}
	if cfg.DeliveryFee < 0 {
		errs = append(errs, fmt.Errorf("DELIVERY_FEE must be >= 0"))
	}
	if !models.ValidCoord(cfg.StoreLat, cfg.StoreLng) {
		errs = append(errs, fmt.Errorf("STORE_LAT/STORE_LNG out of range"))
	}
	if cfg.SuggestTopN <= 0 {
		errs = append(errs, fmt.Errorf("SUGGEST_TOP_N must be > 0"))
	}
	if cfg.DefaultSpeedMps <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_SPEED_MPS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// StoreLocation is where deliveries are picked up.
func (c ServerConfig) StoreLocation() models.Coord {
	return models.Coord{Lat: c.StoreLat, Lng: c.StoreLng}
}

// ConsumerConfig is the configuration of the driver location consumer.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	Attempts      int
	RetryDelay    time.Duration
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	_ = godotenv.Load()

	cfg := ConsumerConfig{
		MetricsAddr:  ":2112",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "driver-locations",
		KafkaGroup:   "bakery-location-consumer",
		RedisAddr:    "localhost:6379",
		RedisGeoKey:  "drivers:geo",
		Attempts:     3,
		RetryDelay:   200 * time.Millisecond,
		LogLevel:     "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_LOCATION_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setIntFromEnv(&cfg.Attempts, "REDIS_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "REDIS_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("REDIS_RETRY_ATTEMPTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
