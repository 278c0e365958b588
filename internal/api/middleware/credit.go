package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/iris_server/internal/pkg/response"
	"github.com/qs3c/iris_server/internal/service"
)

// PlanReader 读取规范化后的套餐与余额
type PlanReader interface {
	GetPlan(ctx context.Context, userID int64) (*service.PlanView, error)
}

// CreditGate 余额连一条最便宜的消息都不够时提前拦截。
// 只是快速失败，真正的扣费在业务层原子完成。
func CreditGate(plans PlanReader, minCost int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		view, err := plans.GetPlan(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				response.NotFoundError(c, err.Error())
			} else {
				Logger(c).WithError(err).Error("credit gate failed")
				response.ServerError(c, "积分检查失败")
			}
			c.Abort()
			return
		}

		if view.Balance < minCost {
			response.InsufficientCreditError(c, view.Balance, minCost)
			c.Abort()
			return
		}

		c.Next()
	}
}
