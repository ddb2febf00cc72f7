package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/config"
	"storefront/internal/domain"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
)

var (
	ErrUnknownEvent       = errors.New("unhandled webhook event type")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrNoPaymentReference = errors.New("webhook event carries no payment reference")
)

// CheckoutSession is what the client needs to complete a card payment
type CheckoutSession struct {
	ID            string
	URL           string
	PaymentIntent string
}

// WebhookEvent is a gateway notification reduced to what the order workflow
// needs: which payment it refers to and whether it succeeded.
type WebhookEvent struct {
	SessionID     string
	PaymentIntent string
	Completed     bool
}

// Gateway abstracts the card payment provider
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, order *domain.Order, customerEmail string) (*CheckoutSession, error)
	Refund(ctx context.Context, paymentIntent string) error
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

type stripeGateway struct {
	api           *client.API
	currency      string
	webhookSecret string
	successURL    string
	cancelURL     string
	logger        *zap.Logger
}

// NewStripeGateway creates a Gateway backed by Stripe Checkout
func NewStripeGateway(cfg config.StripeConfig, logger *zap.Logger) Gateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &stripeGateway{
		api:           api,
		currency:      cfg.Currency,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		logger:        logger,
	}
}

// CreateCheckoutSession opens a hosted checkout page for the order. Line items
// come from the order snapshot, so the charged prices are exactly the ones the
// customer saw at placement.
func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, order *domain.Order, customerEmail string) (*CheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(order.Items))
	for _, item := range order.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Title),
				},
				UnitAmount: stripe.Int64(toMinorUnits(item.Price)),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	// Shipping and VAT ride as one extra line so the session total matches
	// the order total.
	if fees := order.Total - order.SubTotal; fees > 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Shipping & VAT"),
				},
				UnitAmount: stripe.Int64(toMinorUnits(fees)),
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Params:        stripe.Params{Context: ctx},
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(customerEmail),
		LineItems:     lineItems,
		SuccessURL:    stripe.String(g.successURL),
		CancelURL:     stripe.String(g.cancelURL),
		Metadata: map[string]string{
			"order_id": order.ID.String(),
		},
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	result := &CheckoutSession{ID: session.ID, URL: session.URL}
	if session.PaymentIntent != nil {
		result.PaymentIntent = session.PaymentIntent.ID
	}

	g.logger.Info("Created checkout session",
		zap.String("order_id", order.ID.String()),
		zap.String("session_id", session.ID))

	return result, nil
}

// Refund returns the full charge behind a payment intent
func (g *stripeGateway) Refund(ctx context.Context, paymentIntent string) error {
	_, err := g.api.Refunds.New(&stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentIntent),
	})
	if err != nil {
		return fmt.Errorf("failed to refund payment: %w", err)
	}

	g.logger.Info("Refunded payment", zap.String("payment_intent", paymentIntent))
	return nil
}

// ParseWebhook verifies the signature and extracts the payment reference from
// a checkout.session event
func (g *stripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to decode webhook session: %w", err)
		}
		result := &WebhookEvent{
			SessionID: session.ID,
			Completed: event.Type == "checkout.session.completed",
		}
		if session.PaymentIntent != nil {
			result.PaymentIntent = session.PaymentIntent.ID
		}
		if result.SessionID == "" && result.PaymentIntent == "" {
			return nil, ErrNoPaymentReference
		}
		return result, nil
	default:
		return nil, ErrUnknownEvent
	}
}

// toMinorUnits converts a decimal price to the gateway's integer minor units
func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}
