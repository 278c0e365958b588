package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/iris_server/internal/credit"
	"github.com/qs3c/iris_server/internal/pkg/pubsub"
	"github.com/qs3c/iris_server/internal/pkg/queue"
	"github.com/qs3c/iris_server/internal/repository"
	"github.com/qs3c/iris_server/internal/testutil"
)

// testClock 可手动推进的时间源
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestClock(t *testing.T, now time.Time) (*credit.Clock, *testClock) {
	t.Helper()

	base, err := credit.NewClock("Asia/Kolkata")
	require.NoError(t, err)

	tc := &testClock{now: now}
	return base.WithNow(tc.Now), tc
}

// istTime 构造 Asia/Kolkata 下的时刻
func istTime(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(year, month, day, hour, min, 0, 0, loc)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []pubsub.CreditEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event *pubsub.CreditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return p.err
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type recordingQueue struct {
	mu   sync.Mutex
	msgs []queue.NotificationMessage
	err  error
}

func (q *recordingQueue) Push(ctx context.Context, msg *queue.NotificationMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, *msg)
	return nil
}

func (q *recordingQueue) Messages() []queue.NotificationMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.NotificationMessage(nil), q.msgs...)
}

type creditFixture struct {
	db      *gorm.DB
	repo    *repository.CreditRepository
	svc     *CreditService
	clock   *testClock
	events  *recordingPublisher
	catalog *credit.Catalog
}

func setupCreditService(t *testing.T, now time.Time) *creditFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	clock, tc := newTestClock(t, now)
	repo := repository.NewCreditRepository(db)
	events := &recordingPublisher{}
	catalog := credit.DefaultCatalog()

	svc := NewCreditService(
		repo,
		NewUserIdentity(repository.NewUserRepository(db)),
		clock,
		catalog,
		30,
		events,
	)

	return &creditFixture{
		db:      db,
		repo:    repo,
		svc:     svc,
		clock:   tc,
		events:  events,
		catalog: catalog,
	}
}
