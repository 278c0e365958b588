package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/iris_server/internal/model"
	"github.com/qs3c/iris_server/internal/pkg/pubsub"
	"github.com/qs3c/iris_server/internal/testutil"
)

func TestCreditService_GetPlan_CreatesDefaultLedger(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 12, 0)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)

	view, err := f.svc.GetPlan(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, view.Plan)
	assert.Equal(t, 5, view.Balance)
	assert.Equal(t, 5, view.DailyAllowance)
	assert.Nil(t, view.ExpirationDate)
	assert.True(t, view.NextReset.Equal(istTime(t, 2025, 3, 11, 0, 0)))

	ledger, err := f.repo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, ledger.Balance)
}

func TestCreditService_GetPlan_UserNotFound(t *testing.T) {
	f := setupCreditService(t, time.Now())

	_, err := f.svc.GetPlan(context.Background(), 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.repo.GetByUserID(context.Background(), 99999)
	assert.Error(t, err)
}

func TestCreditService_GetPlan_ResetsAfterCivilMidnight(t *testing.T) {
	lastReset := istTime(t, 2025, 3, 9, 23, 59)
	now := istTime(t, 2025, 3, 10, 0, 1)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID, testutil.WithBalance(0), testutil.WithLastReset(lastReset))

	view, err := f.svc.GetPlan(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Balance)

	ledger, err := f.repo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, ledger.Balance)
	assert.True(t, ledger.LastReset.Equal(now))
	assert.Contains(t, f.events.Types(), pubsub.EventDailyReset)
}

func TestCreditService_GetPlan_NoResetWithinSameDay(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 20, 0)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID,
		testutil.WithBalance(2),
		testutil.WithLastReset(istTime(t, 2025, 3, 10, 0, 5)),
	)

	view, err := f.svc.GetPlan(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Balance)
	assert.Empty(t, f.events.Types())
}

func TestCreditService_GetPlan_ExpiredPlanDowngrades(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 9, 0)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID,
		testutil.WithPlan(model.PlanPremium, 87),
		testutil.WithLastReset(now.Add(-24*time.Hour)),
		testutil.WithExpiration(now.Add(-24*time.Hour)),
	)

	view, err := f.svc.GetPlan(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, view.Plan)
	assert.Equal(t, 5, view.Balance)
	assert.Nil(t, view.ExpirationDate)

	ledger, err := f.repo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, ledger.Plan)
	assert.Nil(t, ledger.ExpirationDate)
	assert.Contains(t, f.events.Types(), pubsub.EventPlanExpired)
}

func TestCreditService_GetPlan_PersistFailureStillReturnsNormalizedView(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 9, 0)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID,
		testutil.WithBalance(1),
		testutil.WithLastReset(now.Add(-24*time.Hour)),
	)

	err := f.db.Callback().Update().Before("gorm:update").Register("test:fail_update", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("disk full"))
	})
	require.NoError(t, err)

	view, err := f.svc.GetPlan(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Balance)

	ledger, err := f.repo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Balance)
}

func TestCreditService_Reserve_TextThenImages(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 12, 0)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	ctx := context.Background()

	ledger, err := f.svc.Reserve(ctx, user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, ledger.Balance)

	_, err = f.svc.Reserve(ctx, user.ID, 11)
	require.ErrorIs(t, err, ErrInsufficientCredit)

	var insufficient *InsufficientCreditError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 4, insufficient.Balance)
	assert.Equal(t, 11, insufficient.Required)

	stored, err := f.repo.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Balance)
}

func TestCreditService_Reserve_InvalidAmount(t *testing.T) {
	f := setupCreditService(t, time.Now())
	user := testutil.TestUser(t, f.db)

	for _, amount := range []int{0, -1} {
		_, err := f.svc.Reserve(context.Background(), user.ID, amount)
		assert.ErrorIs(t, err, ErrInvalidCredit)
	}
}

func TestCreditService_Reserve_UnknownUser(t *testing.T) {
	f := setupCreditService(t, time.Now())

	_, err := f.svc.Reserve(context.Background(), 4242, 1)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreditService_Reserve_ResetsBeforeDeducting(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 0, 1)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID,
		testutil.WithPlan(model.PlanBasic, 0),
		testutil.WithLastReset(istTime(t, 2025, 3, 9, 23, 59)),
		testutil.WithExpiration(now.Add(10*24*time.Hour)),
	)

	ledger, err := f.svc.Reserve(context.Background(), user.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 14, ledger.Balance)
}

func TestCreditService_Reserve_ConcurrentExactlyOneWins(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 12, 0)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID, testutil.WithPlan(model.PlanFree, 5), testutil.WithLastReset(now))

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Reserve(context.Background(), user.ID, 5)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientCredit):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	stored, err := f.repo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Balance)
}

func TestCreditService_Reserve_BalanceNeverNegative(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 12, 0)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID, testutil.WithPlan(model.PlanFree, 5), testutil.WithLastReset(now))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Reserve(context.Background(), user.ID, 2)
		}()
	}
	wg.Wait()

	stored, err := f.repo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Balance)
}

func TestCreditService_ReserveThenRefundRestoresBalance(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 12, 0)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID, testutil.WithPlan(model.PlanFree, 3), testutil.WithLastReset(now))
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, user.ID, 2)
	require.NoError(t, err)
	require.NoError(t, f.svc.Refund(ctx, user.ID, 2))

	stored, err := f.repo.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Balance)
}

func TestCreditService_Refund_NotClampedToAllowance(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 12, 0)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID, testutil.WithPlan(model.PlanFree, 5), testutil.WithLastReset(now))

	require.NoError(t, f.svc.Refund(context.Background(), user.ID, 11))

	stored, err := f.repo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, stored.Balance)
}

func TestCreditService_Refund_Errors(t *testing.T) {
	f := setupCreditService(t, time.Now())

	assert.ErrorIs(t, f.svc.Refund(context.Background(), 1, 0), ErrInvalidCredit)
	assert.ErrorIs(t, f.svc.Refund(context.Background(), 777, 3), ErrPersistence)
}

func TestCreditService_ApplyPlanChange_Basic(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 15, 30)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID, testutil.WithPlan(model.PlanFree, 2), testutil.WithLastReset(now))

	ledger, err := f.svc.ApplyPlanChange(context.Background(), user.ID, model.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, model.PlanBasic, ledger.Plan)
	assert.Equal(t, 20, ledger.Balance)
	require.NotNil(t, ledger.ExpirationDate)
	assert.True(t, ledger.ExpirationDate.Equal(now.Add(30*24*time.Hour)))

	stored, err := f.repo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.Balance)
	require.NotNil(t, stored.ExpirationDate)
	assert.WithinDuration(t, now.Add(30*24*time.Hour), *stored.ExpirationDate, time.Second)
	assert.Contains(t, f.events.Types(), pubsub.EventPlanActivated)
}

func TestCreditService_ApplyPlanChange_DowngradeIsNotAdditive(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 15, 30)
	f := setupCreditService(t, now)
	user := testutil.TestUser(t, f.db)
	testutil.TestLedger(t, f.db, user.ID,
		testutil.WithPlan(model.PlanPremium, 93),
		testutil.WithLastReset(now),
		testutil.WithExpiration(now.Add(5*24*time.Hour)),
	)

	ledger, err := f.svc.ApplyPlanChange(context.Background(), user.ID, model.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, 20, ledger.Balance)
}

func TestCreditService_ApplyPlanChange_InvalidPlan(t *testing.T) {
	f := setupCreditService(t, time.Now())
	user := testutil.TestUser(t, f.db)

	_, err := f.svc.ApplyPlanChange(context.Background(), user.ID, "enterprise")
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestCreditService_PublishErrorIsIgnored(t *testing.T) {
	now := istTime(t, 2025, 3, 10, 12, 0)
	f := setupCreditService(t, now)
	f.events.err = errors.New("redis down")
	user := testutil.TestUser(t, f.db)

	ledger, err := f.svc.Reserve(context.Background(), user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, ledger.Balance)
}
