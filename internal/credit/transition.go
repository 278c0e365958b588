package credit

import (
	"time"

	"github.com/qs3c/iris_server/internal/model"
)

// Outcome 一次规范化实际发生了什么
type Outcome struct {
	Expired bool
	Reset   bool
}

// Changed 账本是否被修改
func (o Outcome) Changed() bool {
	return o.Expired || o.Reset
}

// Normalize 按顺序应用过期检查与每日重置，就地修改 ledger。
// 过期优先：付费套餐过期后直接落到 free 额度，不会拿到旧套餐的额度。
func Normalize(l *model.CreditLedger, now time.Time, clock *Clock, catalog *Catalog) Outcome {
	var out Outcome

	if l.Plan != model.PlanFree && l.ExpirationDate != nil && now.After(*l.ExpirationDate) {
		l.Plan = model.PlanFree
		l.Balance = catalog.Allowance(model.PlanFree)
		l.ExpirationDate = nil
		out.Expired = true
	}

	if clock.IsNewDay(l.LastReset, now) {
		l.Balance = catalog.Allowance(l.Plan)
		l.LastReset = now
		out.Reset = true
	}

	return out
}

// NewLedger 首次访问时创建的默认账本
func NewLedger(userID int64, now time.Time, catalog *Catalog) *model.CreditLedger {
	return &model.CreditLedger{
		UserID:    userID,
		Plan:      model.PlanFree,
		Balance:   catalog.Allowance(model.PlanFree),
		LastReset: now,
	}
}

// ApplyPlan 切换套餐：满额发放（非累加），重置日界，按固定天数设置到期时间
func ApplyPlan(l *model.CreditLedger, plan string, now time.Time, cycle time.Duration, catalog *Catalog) {
	l.Plan = plan
	l.Balance = catalog.Allowance(plan)
	l.LastReset = now
	if plan == model.PlanFree {
		l.ExpirationDate = nil
		return
	}
	exp := now.Add(cycle)
	l.ExpirationDate = &exp
}
