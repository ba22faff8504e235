package quote

import (
	"github.com/smallbiznis/quotepay/internal/config"
	"github.com/smallbiznis/quotepay/internal/quote/repository"
	"github.com/smallbiznis/quotepay/internal/quote/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quote.service",
	fx.Provide(config.NewBillingDefaultsHolder),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
