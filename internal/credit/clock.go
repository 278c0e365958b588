// Package credit 积分账本的纯领域逻辑：时区日界、套餐目录、状态迁移与计费。
// 这里不做任何 IO，持久化与并发控制由 repository/service 负责。
package credit

import (
	"fmt"
	"time"
	_ "time/tzdata" // 宿主机缺少 zoneinfo 时仍可解析时区
)

// DefaultTimeZone 日界所在的民用时区
const DefaultTimeZone = "Asia/Kolkata"

// Clock 统一的时间来源与日界判定。所有重置、过期逻辑都必须经过它，
// 不允许直接使用宿主机本地时区。
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock 按时区名称创建 Clock，name 为空时使用 DefaultTimeZone
func NewClock(name string) (*Clock, error) {
	if name == "" {
		name = DefaultTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// WithNow 返回使用固定时间源的副本（测试、补跑）
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: now}
}

// Location 配置的时区
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now 当前时刻（UTC）
func (c *Clock) Now() time.Time {
	return c.now().UTC()
}

// CivilDate 某一时刻在配置时区下的日历日期
func (c *Clock) CivilDate(t time.Time) (int, time.Month, int) {
	return t.In(c.loc).Date()
}

// IsNewDay lastReset 与 now 是否落在不同的民用日
func (c *Clock) IsNewDay(lastReset, now time.Time) bool {
	y1, m1, d1 := c.CivilDate(lastReset)
	y2, m2, d2 := c.CivilDate(now)
	return y1 != y2 || m1 != m2 || d1 != d2
}

// NextMidnight now 之后的下一个日界
func (c *Clock) NextMidnight(now time.Time) time.Time {
	y, m, d := c.CivilDate(now)
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.loc).UTC()
}

// DayKey 民用日期字符串，如 2025-01-31
func (c *Clock) DayKey(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}
