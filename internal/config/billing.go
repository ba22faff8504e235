package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingDefaults are the fallback billing address values sent to the
// payment provider when a quote does not carry its own.
type BillingDefaults struct {
	GivenName       string `mapstructure:"givenName"`
	CompanyName     string `mapstructure:"companyName"`
	StreetAndNumber string `mapstructure:"streetAndNumber"`
	City            string `mapstructure:"city"`
	Region          string `mapstructure:"region"`
	PostalCode      string `mapstructure:"postalCode"`
	Country         string `mapstructure:"country"`
	Locale          string `mapstructure:"locale"`
}

func DefaultBillingDefaults() BillingDefaults {
	return BillingDefaults{
		GivenName:       "Client",
		CompanyName:     "Éonite",
		StreetAndNumber: "N/A",
		City:            "Paris",
		Region:          "Île-de-France",
		PostalCode:      "75000",
		Country:         "FR",
		Locale:          "fr_FR",
	}
}

type BillingDefaultsHolder struct {
	current atomic.Value // holds BillingDefaults
}

// NewStaticBillingDefaultsHolder returns a holder that never reloads.
func NewStaticBillingDefaultsHolder(defaults BillingDefaults) *BillingDefaultsHolder {
	holder := &BillingDefaultsHolder{}
	holder.current.Store(defaults)
	return holder
}

func NewBillingDefaultsHolder(cfg Config, log *zap.Logger) (*BillingDefaultsHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.billing")

	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	if dir := strings.TrimSpace(cfg.BillingConfigDir); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("QUOTEPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingDefaults()
	v.SetDefault("billing.givenName", defaults.GivenName)
	v.SetDefault("billing.companyName", defaults.CompanyName)
	v.SetDefault("billing.streetAndNumber", defaults.StreetAndNumber)
	v.SetDefault("billing.city", defaults.City)
	v.SetDefault("billing.region", defaults.Region)
	v.SetDefault("billing.postalCode", defaults.PostalCode)
	v.SetDefault("billing.country", defaults.Country)
	v.SetDefault("billing.locale", cfg.Mollie.Locale)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	current, err := decodeBilling(v)
	if err != nil {
		return nil, err
	}
	if err := validateBillingDefaults(current); err != nil {
		return nil, err
	}

	holder := &BillingDefaultsHolder{}
	holder.current.Store(current)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBilling(v)
		if err != nil {
			log.Warn("billing defaults reload failed", zap.Error(err))
			return
		}
		if err := validateBillingDefaults(updated); err != nil {
			log.Warn("invalid billing defaults ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing defaults reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeBilling goes through AllSettings so file values and per-key defaults merge.
func decodeBilling(v *viper.Viper) (BillingDefaults, error) {
	var file struct {
		Billing BillingDefaults `mapstructure:"billing"`
	}
	err := v.Unmarshal(&file)
	return file.Billing, err
}

func (h *BillingDefaultsHolder) Get() BillingDefaults {
	if h == nil {
		return DefaultBillingDefaults()
	}
	return h.current.Load().(BillingDefaults)
}

func validateBillingDefaults(cfg BillingDefaults) error {
	if strings.TrimSpace(cfg.CompanyName) == "" {
		return errors.New("billing.companyName cannot be empty")
	}
	if len(strings.TrimSpace(cfg.Country)) != 2 {
		return errors.New("billing.country must be an ISO 3166-1 alpha-2 code")
	}
	if strings.TrimSpace(cfg.City) == "" || strings.TrimSpace(cfg.PostalCode) == "" {
		return errors.New("billing.city and billing.postalCode cannot be empty")
	}
	return nil
}
