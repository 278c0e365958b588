package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/iris_server/internal/credit"
	"github.com/qs3c/iris_server/internal/model"
	"github.com/qs3c/iris_server/internal/pkg/queue"
	"github.com/qs3c/iris_server/internal/repository"
	"github.com/qs3c/iris_server/internal/testutil"
)

type sentMail struct {
	kind    string
	to      string
	plan    string
	credits int
	expires time.Time
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendPlanActivated(to, name, plan string, dailyCredits int, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: queue.KindPlanActivated, to: to, plan: plan, credits: dailyCredits, expires: expiresAt})
	return nil
}

func (m *recordingMailer) SendPlanExpired(to, name, plan string, freeCredits int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: queue.KindPlanExpired, to: to, plan: plan, credits: freeCredits})
	return nil
}

func (m *recordingMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func setupNotifier(t *testing.T) (*Notifier, *recordingMailer, *model.User) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	clock, err := credit.NewClock("Asia/Kolkata")
	require.NoError(t, err)

	mailer := &recordingMailer{}
	n := NewNotifier(repository.NewUserRepository(db), credit.DefaultCatalog(), clock, mailer)
	n.popTimeout = time.Second

	user := testutil.TestUser(t, db, testutil.WithEmail("plan@example.com"))
	return n, mailer, user
}

func TestNotifier_Process(t *testing.T) {
	n, mailer, user := setupNotifier(t)
	expires := time.Date(2025, 4, 9, 6, 30, 0, 0, time.UTC)

	require.NoError(t, n.Process(context.Background(), &queue.NotificationMessage{
		Kind:      queue.KindPlanActivated,
		UserID:    user.ID,
		Plan:      model.PlanBasic,
		ExpiresAt: expires,
	}))
	require.NoError(t, n.Process(context.Background(), &queue.NotificationMessage{
		Kind:   queue.KindPlanExpired,
		UserID: user.ID,
		Plan:   model.PlanPremium,
	}))

	sent := mailer.Sent()
	require.Len(t, sent, 2)

	assert.Equal(t, "plan@example.com", sent[0].to)
	assert.Equal(t, 20, sent[0].credits)
	assert.True(t, sent[0].expires.Equal(expires))
	assert.Equal(t, "Asia/Kolkata", sent[0].expires.Location().String())

	assert.Equal(t, model.PlanPremium, sent[1].plan)
	assert.Equal(t, 5, sent[1].credits)
}

func TestNotifier_Process_UnknownUserDropped(t *testing.T) {
	n, mailer, _ := setupNotifier(t)

	err := n.Process(context.Background(), &queue.NotificationMessage{Kind: queue.KindPlanExpired, UserID: 99999})
	assert.NoError(t, err)
	assert.Empty(t, mailer.Sent())
}

func TestNotifier_Process_UnknownKind(t *testing.T) {
	n, _, user := setupNotifier(t)

	err := n.Process(context.Background(), &queue.NotificationMessage{Kind: "birthday", UserID: user.ID})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNotifier_Run_DrainsQueue(t *testing.T) {
	n, mailer, user := setupNotifier(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	q := queue.NewQueue(rdb, "test:notifications")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, &queue.NotificationMessage{
			Kind:   queue.KindPlanExpired,
			UserID: user.ID,
			Plan:   model.PlanBasic,
		}))
	}

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, q, 2) }()

	require.Eventually(t, func() bool {
		return len(mailer.Sent()) == 3
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestNotifier_Run_MailFailureContinues(t *testing.T) {
	n, mailer, user := setupNotifier(t)
	mailer.err = errors.New("smtp down")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	q := queue.NewQueue(rdb, "test:notifications")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Push(ctx, &queue.NotificationMessage{Kind: queue.KindPlanExpired, UserID: user.ID}))

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, q, 1) }()

	require.Eventually(t, func() bool {
		length, err := q.Length(context.Background())
		return err == nil && length == 0
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done
	assert.Empty(t, mailer.Sent())
}
