// Package stripe binds one Stripe account to the booking gateway: card
// charges through PaymentIntents, refunds, and webhook verification.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

// keyPrefixes lists the secret and restricted key prefixes each
// environment accepts.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
	errNotInitialized   = errors.New("stripe client not initialized")
)

// Client holds per-account resource clients; it never touches stripe.Key.
type Client struct {
	environment   string
	signingSecret string
	tolerance     time.Duration
	intents       *paymentintent.Client
	refunds       *refund.Client
}

// credentials checks cfg and returns the environment, key and webhook
// secret with surrounding whitespace removed.
func credentials(cfg config.StripeConfig) (env, key, secret string, err error) {
	env = strings.ToLower(strings.TrimSpace(cfg.Environment()))
	if env == "" {
		env = testEnv
	}
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return "", "", "", errInvalidStripeEnv
	}
	key, secret = strings.TrimSpace(cfg.APIKey), strings.TrimSpace(cfg.Secret)
	switch {
	case key == "":
		return "", "", "", errAPIKeyRequired
	case secret == "":
		return "", "", "", errSecretRequired
	case !slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(key, p) }):
		return "", "", "", fmt.Errorf("stripe %s environment needs a key starting with %s", env, strings.Join(prefixes, " or "))
	}
	return env, key, secret, nil
}

// NewClient validates the key against the environment and builds the
// resource clients on the shared API backend.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, key, secret, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	backend := stripe.GetBackend(stripe.APIBackend)
	c := &Client{
		environment:   env,
		signingSecret: secret,
		tolerance:     tolerance,
		intents:       &paymentintent.Client{B: backend, Key: key},
		refunds:       &refund.Client{B: backend, Key: key},
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return c, nil
}

// CreatePaymentIntent creates and, when params ask for it, confirms a charge.
func (c *Client) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if c == nil || c.intents == nil {
		return nil, errNotInitialized
	}
	if params != nil {
		params.Context = ctx
	}
	return c.intents.New(params)
}

// CreateRefund refunds part or all of a captured PaymentIntent.
func (c *Client) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if c == nil || c.refunds == nil {
		return nil, errNotInitialized
	}
	if params != nil {
		params.Context = ctx
	}
	return c.refunds.New(params)
}

// VerifyWebhook checks the Stripe-Signature header and decodes the event.
func (c *Client) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	if c == nil {
		return stripe.Event{}, errNotInitialized
	}
	return webhook.ConstructEventWithTolerance(payload, signature, c.signingSecret, c.tolerance)
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Live reports whether charges hit real cards.
func (c *Client) Live() bool {
	return c.Environment() == liveEnv
}

