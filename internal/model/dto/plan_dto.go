package dto

// SubscribeRequest 发起套餐购买，amount 为主货币单位
type SubscribeRequest struct {
	PlanID string `json:"plan_id" binding:"required,plan_id"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

// ConfirmRequest 支付完成后回传网关凭据
type ConfirmRequest struct {
	PlanID    string `json:"plan_id" binding:"required,plan_id"`
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature"`
}

// ConfirmResponse 套餐生效后的账本
type ConfirmResponse struct {
	Plan           string `json:"plan"`
	Balance        int    `json:"balance"`
	ExpirationDate string `json:"expiration_date"`
}
