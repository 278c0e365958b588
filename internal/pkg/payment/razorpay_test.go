package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/iris_server/config"
	"github.com/qs3c/iris_server/internal/pkg/httpx"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestRazorpay(t *testing.T, handler http.HandlerFunc) *Razorpay {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewRazorpay(&config.RazorpayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
		BaseURL:   server.URL,
	}, httpx.WithSleep(noSleep))
}

func TestRazorpay_CreateOrder(t *testing.T) {
	rp := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(29900), body["amount"])
		assert.Equal(t, "INR", body["currency"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "order_abc",
			"amount":   body["amount"],
			"currency": body["currency"],
			"receipt":  body["receipt"],
			"status":   "created",
		})
	})

	order, err := rp.CreateOrder(context.Background(), 29900, "INR", "rcpt_1_12345678")
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(29900), order.Amount)
	assert.Equal(t, "rcpt_1_12345678", order.Receipt)
	assert.Equal(t, "rzp_test_key", order.KeyID)
	assert.Equal(t, "razorpay", order.Provider)
}

func TestRazorpay_CreateOrder_Rejected(t *testing.T) {
	rp := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
	})

	_, err := rp.CreateOrder(context.Background(), 29900, "INR", "rcpt")
	require.ErrorIs(t, err, ErrGateway)
	assert.Contains(t, err.Error(), "Authentication failed")
}

func TestRazorpay_CreateOrder_Unavailable(t *testing.T) {
	rp := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := rp.CreateOrder(context.Background(), 29900, "INR", "rcpt")
	assert.ErrorIs(t, err, ErrGateway)
}

func TestRazorpay_VerifyPayment(t *testing.T) {
	rp := NewRazorpay(&config.RazorpayConfig{KeyID: "k", KeySecret: "s3cret"})
	ctx := context.Background()
	order := &Order{ID: "order_abc", Amount: 29900, Currency: "INR"}

	good := Confirmation{
		OrderID:   "order_abc",
		PaymentID: "pay_xyz",
		Signature: Sign("s3cret", "order_abc", "pay_xyz"),
	}
	assert.NoError(t, rp.VerifyPayment(ctx, order, good))

	tampered := good
	tampered.PaymentID = "pay_other"
	assert.ErrorIs(t, rp.VerifyPayment(ctx, order, tampered), ErrVerification)

	assert.ErrorIs(t, rp.VerifyPayment(ctx, order, Confirmation{OrderID: "order_abc"}), ErrVerification)
	assert.ErrorIs(t, rp.VerifyPayment(ctx, nil, good), ErrVerification)
}

func TestRazorpay_VerifyPayment_OtherOrder(t *testing.T) {
	rp := NewRazorpay(&config.RazorpayConfig{KeyID: "k", KeySecret: "s3cret"})

	// 另一笔订单的合法签名不能用来确认这笔订单
	conf := Confirmation{
		OrderID:   "order_cheap",
		PaymentID: "pay_xyz",
		Signature: Sign("s3cret", "order_cheap", "pay_xyz"),
	}
	err := rp.VerifyPayment(context.Background(), &Order{ID: "order_expensive"}, conf)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestNew(t *testing.T) {
	gw, err := New(&config.PaymentConfig{Provider: "razorpay"})
	require.NoError(t, err)
	assert.IsType(t, &Razorpay{}, gw)

	gw, err = New(&config.PaymentConfig{Provider: "stripe", Stripe: config.StripeConfig{SecretKey: "sk_test"}})
	require.NoError(t, err)
	assert.IsType(t, &Stripe{}, gw)

	_, err = New(&config.PaymentConfig{Provider: "paypal"})
	assert.Error(t, err)
}
