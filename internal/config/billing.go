package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig holds commerce policy that operators tune without redeploying:
// tax rate, cart lifetime, payment terms.
type BillingConfig struct {
	DefaultCurrency    string  `mapstructure:"defaultCurrency"`
	TaxRate            float64 `mapstructure:"taxRate"`
	CartExpiryHours    int     `mapstructure:"cartExpiryHours"`
	InvoiceDueDays     int     `mapstructure:"invoiceDueDays"`
	DefaultTrialDays   int     `mapstructure:"defaultTrialDays"`
	AbandonAfterHours  int     `mapstructure:"abandonAfterHours"`
	MaxCouponPercent   float64 `mapstructure:"maxCouponPercent"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DefaultCurrency:   "TRY",
		TaxRate:           20,
		CartExpiryHours:   24,
		InvoiceDueDays:    14,
		DefaultTrialDays:  14,
		AbandonAfterHours: 72,
		MaxCouponPercent:  100,
	}
}

// BillingConfigHolder serves the current billing policy and hot-reloads it
// when the mounted config file changes.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/stocker/config")
	v.AddConfigPath("/etc/stocker")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOCKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.taxRate", defaults.TaxRate)
	v.SetDefault("billing.cartExpiryHours", defaults.CartExpiryHours)
	v.SetDefault("billing.invoiceDueDays", defaults.InvoiceDueDays)
	v.SetDefault("billing.defaultTrialDays", defaults.DefaultTrialDays)
	v.SetDefault("billing.abandonAfterHours", defaults.AbandonAfterHours)
	v.SetDefault("billing.maxCouponPercent", defaults.MaxCouponPercent)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if len(cfg.DefaultCurrency) != 3 {
		return errors.New("billing.defaultCurrency must be a 3-letter code")
	}
	if cfg.TaxRate < 0 || cfg.TaxRate > 100 {
		return errors.New("billing.taxRate must be between 0 and 100")
	}
	if cfg.CartExpiryHours <= 0 {
		return errors.New("billing.cartExpiryHours must be positive")
	}
	if cfg.InvoiceDueDays <= 0 {
		return errors.New("billing.invoiceDueDays must be positive")
	}
	if cfg.MaxCouponPercent <= 0 || cfg.MaxCouponPercent > 100 {
		return errors.New("billing.maxCouponPercent must be in (0, 100]")
	}
	return nil
}
