package mollie

import (
	"github.com/smallbiznis/quotepay/internal/config"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.mollie",
	fx.Provide(NewGateway),
)

func NewGateway(cfg config.Config, log *zap.Logger) paymentdomain.Gateway {
	if cfg.Mollie.APIKey == "" {
		log.Named("providers.mollie").Warn("MOLLIE_API_KEY not set, payment initiation will fail")
	}
	return NewClient(OptionsFromConfig(cfg))
}
