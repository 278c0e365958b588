package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/iris_server/internal/model"
)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	user := &model.User{
		Email:        fmt.Sprintf("test_%d@example.com", time.Now().UnixNano()),
		Name:         fmt.Sprintf("testuser_%d", time.Now().UnixNano()%10000),
		PasswordHash: &passwordHash,
		Provider:     "local",
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithName 设置昵称
func WithName(name string) func(*model.User) {
	return func(u *model.User) {
		u.Name = name
	}
}

// WithPasswordHash 设置密码哈希
func WithPasswordHash(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// WithGoogle 设置为 Google 登录用户
func WithGoogle(providerID string) func(*model.User) {
	return func(u *model.User) {
		u.Provider = "google"
		u.ProviderID = &providerID
		u.PasswordHash = nil
	}
}

// TestLedger 创建测试积分账本，默认 free/5，今天已重置
func TestLedger(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.CreditLedger)) *model.CreditLedger {
	t.Helper()

	ledger := &model.CreditLedger{
		UserID:    userID,
		Plan:      model.PlanFree,
		Balance:   5,
		LastReset: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(ledger)
	}

	if err := db.Create(ledger).Error; err != nil {
		t.Fatalf("Failed to create test ledger: %v", err)
	}

	return ledger
}

// WithPlan 设置套餐与余额
func WithPlan(plan string, balance int) func(*model.CreditLedger) {
	return func(l *model.CreditLedger) {
		l.Plan = plan
		l.Balance = balance
	}
}

// WithBalance 设置余额
func WithBalance(balance int) func(*model.CreditLedger) {
	return func(l *model.CreditLedger) {
		l.Balance = balance
	}
}

// WithLastReset 设置上次重置时间
func WithLastReset(at time.Time) func(*model.CreditLedger) {
	return func(l *model.CreditLedger) {
		l.LastReset = at.UTC()
	}
}

// WithExpiration 设置到期时间
func WithExpiration(at time.Time) func(*model.CreditLedger) {
	return func(l *model.CreditLedger) {
		exp := at.UTC()
		l.ExpirationDate = &exp
	}
}

// TestChat 创建测试会话
func TestChat(t *testing.T, db *gorm.DB, userID int64, title string) *model.ChatHistory {
	t.Helper()

	chat := &model.ChatHistory{
		UserID: userID,
		Title:  title,
	}

	if err := db.Create(chat).Error; err != nil {
		t.Fatalf("Failed to create test chat: %v", err)
	}

	return chat
}

// TestMessage 创建测试消息
func TestMessage(t *testing.T, db *gorm.DB, chatID int64, role, content string) *model.Message {
	t.Helper()

	msg := &model.Message{
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("Failed to create test message: %v", err)
	}

	return msg
}
