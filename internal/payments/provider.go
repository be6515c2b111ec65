package payments

import (
	"context"
	"fmt"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/evcharge-backend/pkg/stripe"
)

// NewFromConfig picks the gateway named by EVCHARGE_PAYMENTS_PROVIDER.
func NewFromConfig(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if !cfg.Payments.UsesStripe() {
		if logg != nil {
			logg.Warn(ctx, "payments provider is sandbox; charges are simulated")
		}
		return NewSandboxGateway(), nil
	}
	client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("init stripe: %w", err)
	}
	return NewStripeGateway(client, logg)
}
