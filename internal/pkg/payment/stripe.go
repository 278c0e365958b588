package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/qs3c/iris_server/config"
)

// Stripe 基于 PaymentIntent 的一次性扣款
type Stripe struct {
	api *client.API
}

// NewStripe backends 为空时使用 Stripe 官方端点
func NewStripe(cfg *config.StripeConfig, backends *stripe.Backends) *Stripe {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Stripe{api: api}
}

func (s *Stripe) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(strings.ToLower(currency)),
		Description: stripe.String(receipt),
	}
	params.Context = ctx
	params.AddMetadata("receipt", receipt)
	params.SetIdempotencyKey(receipt)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe: %w", ErrGateway, err)
	}

	return &Order{
		ID:           pi.ID,
		Provider:     "stripe",
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      receipt,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// VerifyPayment 以服务端查询到的 PaymentIntent 为准：必须是下单时创建的那一笔，
// 已成功扣款，且金额与币种和订单一致
func (s *Stripe) VerifyPayment(ctx context.Context, order *Order, c Confirmation) error {
	if order == nil || order.ID == "" {
		return ErrVerification
	}
	if c.PaymentID != "" && c.PaymentID != order.ID {
		return fmt.Errorf("%w: payment intent %s does not match %s", ErrVerification, c.PaymentID, order.ID)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(order.ID, params)
	if err != nil {
		return fmt.Errorf("%w: stripe: %w", ErrGateway, err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("%w: payment intent %s is %s", ErrVerification, pi.ID, pi.Status)
	}
	if pi.Amount != order.Amount || !strings.EqualFold(string(pi.Currency), order.Currency) {
		return fmt.Errorf("%w: payment intent %s charged %d %s, want %d %s",
			ErrVerification, pi.ID, pi.Amount, pi.Currency, order.Amount, order.Currency)
	}
	if order.Receipt != "" && pi.Metadata["receipt"] != order.Receipt {
		return fmt.Errorf("%w: payment intent %s receipt mismatch", ErrVerification, pi.ID)
	}
	return nil
}
