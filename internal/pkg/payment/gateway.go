package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/qs3c/iris_server/config"
)

var (
	ErrGateway      = errors.New("payment gateway error")
	ErrVerification = errors.New("payment verification failed")
)

// Order 网关侧创建的待支付订单，金额为最小货币单位（paise/cents）
type Order struct {
	ID           string `json:"id"`
	Provider     string `json:"provider"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt"`
	KeyID        string `json:"key_id,omitempty"`        // Razorpay Checkout 需要的公钥
	ClientSecret string `json:"client_secret,omitempty"` // Stripe Elements 需要的 client secret
}

// Confirmation 客户端支付完成后回传的凭据
type Confirmation struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// Gateway 支付网关。VerifyPayment 的 order 来自服务端下单记录，
// 客户端回传的凭据必须属于这笔订单且金额一致。
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
	VerifyPayment(ctx context.Context, order *Order, c Confirmation) error
}

// New 按 provider 创建网关
func New(cfg *config.PaymentConfig) (Gateway, error) {
	switch cfg.Provider {
	case "razorpay", "":
		return NewRazorpay(&cfg.Razorpay), nil
	case "stripe":
		return NewStripe(&cfg.Stripe, nil), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
