package credit

import (
	"fmt"
	"sort"

	"github.com/qs3c/iris_server/config"
	"github.com/qs3c/iris_server/internal/model"
)

// PlanSpec 套餐目录条目
type PlanSpec struct {
	ID             string `json:"id"`
	DailyAllowance int    `json:"daily_allowance"`
	MonthlyPrice   int64  `json:"monthly_price"`
}

var defaultPlans = map[string]PlanSpec{
	model.PlanFree:    {ID: model.PlanFree, DailyAllowance: 5, MonthlyPrice: 0},
	model.PlanBasic:   {ID: model.PlanBasic, DailyAllowance: 20, MonthlyPrice: 299},
	model.PlanPremium: {ID: model.PlanPremium, DailyAllowance: 100, MonthlyPrice: 799},
}

// Catalog 进程级只读套餐目录，启动后不再变化
type Catalog struct {
	plans map[string]PlanSpec
}

// DefaultCatalog free=5, basic=20, premium=100
func DefaultCatalog() *Catalog {
	plans := make(map[string]PlanSpec, len(defaultPlans))
	for k, v := range defaultPlans {
		plans[k] = v
	}
	return &Catalog{plans: plans}
}

// NewCatalog 用配置覆盖默认目录。只接受已知套餐，free 价格必须为 0。
func NewCatalog(overrides map[string]config.PlanConfig) (*Catalog, error) {
	c := DefaultCatalog()
	for id, pc := range overrides {
		spec, ok := c.plans[id]
		if !ok {
			return nil, fmt.Errorf("unknown plan %q in config", id)
		}
		if pc.DailyCredits < 0 || pc.Price < 0 {
			return nil, fmt.Errorf("plan %q: negative credits or price", id)
		}
		if pc.DailyCredits > 0 {
			spec.DailyAllowance = pc.DailyCredits
		}
		if id == model.PlanFree && pc.Price != 0 {
			return nil, fmt.Errorf("free plan cannot have a price")
		}
		if pc.Price > 0 {
			spec.MonthlyPrice = pc.Price
		}
		c.plans[id] = spec
	}
	return c, nil
}

// Lookup 查询套餐
func (c *Catalog) Lookup(id string) (PlanSpec, bool) {
	spec, ok := c.plans[id]
	return spec, ok
}

// Allowance 每日额度；未知套餐按 free 处理
func (c *Catalog) Allowance(plan string) int {
	if spec, ok := c.plans[plan]; ok {
		return spec.DailyAllowance
	}
	return c.plans[model.PlanFree].DailyAllowance
}

// Price 月价格（主货币单位）
func (c *Catalog) Price(plan string) int64 {
	return c.plans[plan].MonthlyPrice
}

// IsPurchasable 是否为可购买的付费套餐
func (c *Catalog) IsPurchasable(id string) bool {
	_, ok := c.plans[id]
	return ok && id != model.PlanFree
}

// Plans 按额度升序返回所有套餐
func (c *Catalog) Plans() []PlanSpec {
	out := make([]PlanSpec, 0, len(c.plans))
	for _, spec := range c.plans {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DailyAllowance < out[j].DailyAllowance
	})
	return out
}
