package payments

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alovak/fakepay/internal/expiry"
	"github.com/alovak/fakepay/payments/models"
)

// Checkout bindings select how the checkout orchestrator reaches the payment service.
const (
	BindingInProcess = "inproc"
	BindingHTTP      = "http"
	BindingISO8583   = "iso8583"
)

// Config is a configuration for the payments application
type Config struct {
	HTTPAddr    string
	ISO8583Addr string
	// AmountCeiling is the largest amount Authorize accepts.
	AmountCeiling int64
	// AuthorizationTTL bounds how long a pending authorization stays redeemable. Zero disables expiry.
	AuthorizationTTL time.Duration
	// SweepInterval is how often lapsed pending authorizations are marked expired. Zero disables the sweeper.
	SweepInterval time.Duration
	SweepBatch    int
	// ExpiryTZ names the location ledger timestamps are recorded in. Empty keeps UTC.
	ExpiryTZ string
	// PaymentMethods is the static catalog returned by GetPaymentMethods.
	PaymentMethods []models.PaymentMethod

	// Backend is one of mem, pg or redis.
	Backend   string
	DBDSN     string
	RedisAddr string

	// CheckoutFixedAmount, when positive, replaces the amount of every checkout.
	CheckoutFixedAmount int64
	// CheckoutBinding is one of inproc, http or iso8583.
	CheckoutBinding string
	// PaymentsURL is the base URL used by the http checkout binding.
	PaymentsURL string
	// PaymentsISO8583Addr is the address used by the iso8583 checkout binding.
	PaymentsISO8583Addr string
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:         "localhost:9090",
		ISO8583Addr:      "localhost:8583",
		AmountCeiling:    100,
		AuthorizationTTL: 15 * time.Minute,
		SweepInterval:    time.Minute,
		SweepBatch:       500,
		PaymentMethods: []models.PaymentMethod{
			{Token: "alipay"},
		},
		Backend:         "mem",
		CheckoutBinding: BindingInProcess,
	}
}

// ConfigFromEnv returns DefaultConfig overlaid with environment variables.
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.ISO8583Addr = getenv("ISO8583_ADDR", cfg.ISO8583Addr)
	cfg.Backend = getenv("REPO_BACKEND", cfg.Backend)
	cfg.DBDSN = getenv("DB_DSN", cfg.DBDSN)
	cfg.RedisAddr = getenv("REDIS_ADDR", cfg.RedisAddr)
	cfg.ExpiryTZ = getenv("EXPIRY_TZ", cfg.ExpiryTZ)
	cfg.CheckoutBinding = getenv("CHECKOUT_PAYMENTS", cfg.CheckoutBinding)
	cfg.PaymentsURL = getenv("PAYMENTS_URL", cfg.PaymentsURL)
	cfg.PaymentsISO8583Addr = getenv("PAYMENTS_ISO8583_ADDR", cfg.PaymentsISO8583Addr)

	var err error
	if v := os.Getenv("AMOUNT_CEILING"); v != "" {
		if cfg.AmountCeiling, err = strconv.ParseInt(v, 10, 64); err != nil || cfg.AmountCeiling < 0 {
			return nil, fmt.Errorf("AMOUNT_CEILING must be a non-negative integer: %q", v)
		}
	}
	if v := os.Getenv("CHECKOUT_FIXED_AMOUNT"); v != "" {
		if cfg.CheckoutFixedAmount, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("CHECKOUT_FIXED_AMOUNT must be an integer: %q", v)
		}
	}
	if v, ok := os.LookupEnv("AUTH_TTL"); ok {
		if cfg.AuthorizationTTL, err = expiry.ParseTTL(v); err != nil {
			return nil, fmt.Errorf("AUTH_TTL: %w", err)
		}
	}
	if v, ok := os.LookupEnv("SWEEP_INTERVAL"); ok {
		if cfg.SweepInterval, err = expiry.ParseTTL(v); err != nil {
			return nil, fmt.Errorf("SWEEP_INTERVAL: %w", err)
		}
	}
	if v := os.Getenv("SWEEP_BATCH"); v != "" {
		if cfg.SweepBatch, err = strconv.Atoi(v); err != nil || cfg.SweepBatch <= 0 {
			return nil, fmt.Errorf("SWEEP_BATCH must be a positive integer: %q", v)
		}
	}
	if cfg.ExpiryTZ != "" {
		if _, err := time.LoadLocation(cfg.ExpiryTZ); err != nil {
			return nil, fmt.Errorf("EXPIRY_TZ must name a known location: %q", cfg.ExpiryTZ)
		}
	}
	if v := os.Getenv("PAYMENT_METHODS"); v != "" {
		cfg.PaymentMethods = ParsePaymentMethods(v)
	}

	return cfg, nil
}

// ParsePaymentMethods parses "token[:label],..." into a catalog. Empty tokens are skipped.
func ParsePaymentMethods(in string) []models.PaymentMethod {
	var methods []models.PaymentMethod
	for _, part := range strings.Split(in, ",") {
		token, label, _ := strings.Cut(strings.TrimSpace(part), ":")
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		methods = append(methods, models.PaymentMethod{Token: token, Label: strings.TrimSpace(label)})
	}
	return methods
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
