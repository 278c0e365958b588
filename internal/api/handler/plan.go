package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/iris_server/internal/api/middleware"
	"github.com/qs3c/iris_server/internal/model/dto"
	"github.com/qs3c/iris_server/internal/pkg/payment"
	"github.com/qs3c/iris_server/internal/pkg/response"
	"github.com/qs3c/iris_server/internal/service"
)

type PlanHandler struct {
	creditService *service.CreditService
	planService   *service.PlanService
}

func NewPlanHandler(creditService *service.CreditService, planService *service.PlanService) *PlanHandler {
	return &PlanHandler{
		creditService: creditService,
		planService:   planService,
	}
}

// GetPlan 当前套餐与余额
// GET /api/v1/plans
func (h *PlanHandler) GetPlan(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	view, err := h.creditService.GetPlan(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, view)
}

// Catalog 可选套餐列表
// GET /api/v1/plans/catalog
func (h *PlanHandler) Catalog(c *gin.Context) {
	response.Success(c, h.creditService.Catalog().Plans())
}

// Subscribe 发起套餐购买，返回网关订单
// POST /api/v1/plans/subscribe
func (h *PlanHandler) Subscribe(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	order, err := h.planService.InitiateUpgrade(c.Request.Context(), userID, req.PlanID, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, order)
}

// Confirm 校验支付凭据并生效套餐
// POST /api/v1/plans/confirm
func (h *PlanHandler) Confirm(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	ledger, err := h.planService.VerifyAndConfirm(c.Request.Context(), userID, req.PlanID, payment.Confirmation{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := &dto.ConfirmResponse{
		Plan:    ledger.Plan,
		Balance: ledger.Balance,
	}
	if ledger.ExpirationDate != nil {
		resp.ExpirationDate = ledger.ExpirationDate.Format(time.RFC3339)
	}
	response.SuccessWithMessage(c, "套餐已生效", resp)
}

func (h *PlanHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPlan), errors.Is(err, service.ErrInvalidAmount):
		response.ParamError(c, err.Error())
	case errors.Is(err, payment.ErrVerification):
		response.ParamError(c, "支付校验失败")
	case errors.Is(err, service.ErrGateway):
		middleware.Logger(c).WithError(err).Warn("payment gateway failed")
		response.GatewayError(c, "")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	default:
		middleware.Logger(c).WithError(err).Error("plan request failed")
		response.ServerError(c, "")
	}
}
