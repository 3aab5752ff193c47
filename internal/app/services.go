package app

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/echohealth/echo_backend/config"
	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/internal/service/account"
	"github.com/echohealth/echo_backend/internal/service/appointment"
	"github.com/echohealth/echo_backend/internal/service/ledger"
	"github.com/echohealth/echo_backend/pkg/events"
	pasetotoken "github.com/echohealth/echo_backend/pkg/paseto"
	"github.com/echohealth/echo_backend/pkg/payout"
	s3pkg "github.com/echohealth/echo_backend/pkg/s3"
	"github.com/echohealth/echo_backend/pkg/util/password"
)

// ServiceModule provides all application service dependencies.
var ServiceModule = fx.Module("services",
	fx.Provide(
		ProvidePasetoManager,
		ProvidePasswordVerifier,
		ProvideAccountService,
		ProvideLedgerService,
		ProvideAppointmentService,
	),
)

func ProvidePasetoManager(cfg *config.Config) (*pasetotoken.Manager, error) {
	return pasetotoken.NewPasetoManager(cfg)
}

func ProvidePasswordVerifier(cfg *config.Config) *password.Verifier {
	return password.New(password.FromCentralConfig(cfg.Password))
}

func ProvideAccountService(
	store repo.Store,
	hasher *password.Verifier,
	tokens *pasetotoken.Manager,
	rdb *redis.Client,
	s3 *s3pkg.Client,
	pub events.Publisher,
	cfg *config.Config,
) account.Service {
	// A nil *s3pkg.Client must not become a non-nil interface value.
	var docs account.Documents
	if s3 != nil {
		docs = s3
	}
	return account.New(store, hasher, tokens, account.NewRedisSessions(rdb), docs, pub, account.Options{
		MinPasswordLength: cfg.Authentication.MinPasswordLength,
	})
}

func ProvideLedgerService(store repo.Store, gw payout.Gateway, pub events.Publisher, cfg *config.Config) ledger.Service {
	return ledger.New(store, gw, pub, ledger.FromCentralConfig(cfg.Wallet))
}

func ProvideAppointmentService(store repo.Store, l ledger.Service, pub events.Publisher) appointment.Service {
	return appointment.New(store, l, pub)
}
