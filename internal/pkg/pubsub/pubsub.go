package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelCreditEvents = "credit_events"
)

// 事件类型
const (
	EventBalanceChanged = "balance_changed"
	EventPlanActivated  = "plan_activated"
	EventPlanExpired    = "plan_expired"
	EventDailyReset     = "daily_reset"
)

// CreditEvent 账本变化通知，推送给在线用户
type CreditEvent struct {
	Type    string `json:"type"`
	UserID  int64  `json:"user_id"`
	Plan    string `json:"plan"`
	Balance int    `json:"balance"`
	Message string `json:"message,omitempty"`
}

// 事件对应的默认提示
var EventMessages = map[string]string{
	EventPlanActivated: "套餐已生效",
	EventPlanExpired:   "套餐已到期，已切换为免费版",
	EventDailyReset:    "今日积分已发放",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish 发布账本事件
func (p *Publisher) Publish(ctx context.Context, event *CreditEvent) error {
	if event.Message == "" {
		event.Message = EventMessages[event.Type]
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal credit event: %w", err)
	}

	return p.client.Publish(ctx, ChannelCreditEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅账本事件，ctx 取消时返回
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*CreditEvent)) error {
	ps := s.client.Subscribe(ctx, ChannelCreditEvents)
	defer ps.Close()

	// 等待订阅确认，避免之后立即发布的消息丢失
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event CreditEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
