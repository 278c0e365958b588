package handler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/iris_server/internal/api/middleware"
	"github.com/qs3c/iris_server/internal/credit"
	"github.com/qs3c/iris_server/internal/pkg/payment"
	"github.com/qs3c/iris_server/internal/repository"
	"github.com/qs3c/iris_server/internal/service"
	"github.com/qs3c/iris_server/internal/testutil"
)

// testContext 本地测试上下文
type testContext struct {
	DB      *gorm.DB
	Now     time.Time
	Credits *service.CreditService
}

// mockAuth 模拟认证中间件
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

// setupTestContext 数据库与固定时钟下的积分服务
func setupTestContext(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	base, err := credit.NewClock("Asia/Kolkata")
	require.NoError(t, err)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, base.Location())
	clock := base.WithNow(func() time.Time { return now })

	credits := service.NewCreditService(
		repository.NewCreditRepository(db),
		service.NewUserIdentity(repository.NewUserRepository(db)),
		clock,
		credit.DefaultCatalog(),
		30,
		nil,
	)

	return &testContext{DB: db, Now: now, Credits: credits}
}

type fakeCompleter struct {
	reply string
	err   error
}

func (c *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return c.reply, c.err
}

type memoryStore struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	return nil
}

type fakeGateway struct {
	order     *payment.Order
	createErr error
	verifyErr error
	calls     int
	verified  *payment.Order
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*payment.Order, error) {
	g.calls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	order := *g.order
	order.ID = fmt.Sprintf("%s_%d", g.order.ID, g.calls)
	order.Amount = amount
	order.Currency = currency
	order.Receipt = receipt
	return &order, nil
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, order *payment.Order, c payment.Confirmation) error {
	g.verified = order
	return g.verifyErr
}
