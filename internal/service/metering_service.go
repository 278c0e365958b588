package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// 退还积分使用独立的超时，调用方已取消时也要完成
const refundTimeout = 5 * time.Second

// MeteringService 先扣费再执行受计费的操作；操作失败、被取消或 panic 时退还积分
type MeteringService struct {
	credits *CreditService
}

func NewMeteringService(credits *CreditService) *MeteringService {
	return &MeteringService{credits: credits}
}

// Run 扣减 cost 积分后执行 op。
// op 返回错误或 ctx 在 op 完成前被取消时都视为失败并退还；退还失败只记日志。
func (s *MeteringService) Run(ctx context.Context, userID int64, cost int, op func(ctx context.Context) error) error {
	if _, err := s.credits.Reserve(ctx, userID, cost); err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		r := recover()
		s.refund(ctx, userID, cost)
		if r != nil {
			panic(r)
		}
	}()

	if err := op(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	committed = true
	return nil
}

func (s *MeteringService) refund(ctx context.Context, userID int64, cost int) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	if err := s.credits.Refund(rctx, userID, cost); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  cost,
			"error":   err,
		}).Error("failed to refund credits")
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  cost,
	}).Info("credits refunded after failed operation")
}
