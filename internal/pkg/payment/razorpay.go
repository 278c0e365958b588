package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qs3c/iris_server/config"
	"github.com/qs3c/iris_server/internal/pkg/httpx"
)

// Razorpay Orders API 客户端
type Razorpay struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *httpx.Client
}

func NewRazorpay(cfg *config.RazorpayConfig, opts ...httpx.Option) *Razorpay {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	return &Razorpay{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   baseURL,
		http:      httpx.New("razorpay", 15*time.Second, opts...),
	}
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *Razorpay) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	body, err := json.Marshal(map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(r.keyID, r.keySecret)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var rerr razorpayError
		if json.Unmarshal(raw, &rerr) == nil && rerr.Error.Description != "" {
			return nil, fmt.Errorf("%w: razorpay %s: %s", ErrGateway, rerr.Error.Code, rerr.Error.Description)
		}
		return nil, fmt.Errorf("%w: razorpay status %d", ErrGateway, resp.StatusCode)
	}

	var order razorpayOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("%w: decode order: %w", ErrGateway, err)
	}

	return &Order{
		ID:       order.ID,
		Provider: "razorpay",
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.Receipt,
		KeyID:    r.keyID,
	}, nil
}

// VerifyPayment 校验 Checkout 回传的签名：HMAC_SHA256(order_id|payment_id, key_secret)。
// 签名对象取服务端记录的订单号；订单金额在下单时已由 Razorpay 锁定。
func (r *Razorpay) VerifyPayment(_ context.Context, order *Order, c Confirmation) error {
	if order == nil || c.PaymentID == "" || c.Signature == "" {
		return ErrVerification
	}
	if c.OrderID != order.ID {
		return fmt.Errorf("%w: order %s does not match %s", ErrVerification, c.OrderID, order.ID)
	}

	expected := Sign(r.keySecret, order.ID, c.PaymentID)
	if !hmac.Equal([]byte(expected), []byte(c.Signature)) {
		return ErrVerification
	}
	return nil
}

// Sign 计算 Razorpay 支付签名
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
