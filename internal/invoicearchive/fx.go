package invoicearchive

import (
	"github.com/smallbiznis/scholara/internal/invoicearchive/repository"
	"github.com/smallbiznis/scholara/internal/invoicearchive/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoicearchive.service",
	fx.Provide(repository.NewCatalog),
	fx.Provide(service.NewService),
)
