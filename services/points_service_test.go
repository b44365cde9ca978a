package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"lumiere-backend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredit_PromotesAcrossThreshold(t *testing.T) {
	// GIVEN: a new member at balance 0, tier 1
	// WHEN: credited 100 and then 900
	// THEN: 100/tier 1, then 1000/tier 2 with one tier change recorded
	svc, db, rec := newTestPointsService(t)
	ctx := context.Background()
	seedAccount(t, svc, "u1", 0)

	acc, err := svc.Credit(ctx, CreditRequest{UserID: "u1", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.Balance)
	assert.Equal(t, 1, acc.Tier)
	assert.False(t, acc.TierChanged())

	acc, err = svc.Credit(ctx, CreditRequest{UserID: "u1", Amount: 900})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), acc.Balance)
	assert.Equal(t, 2, acc.Tier)
	assert.Equal(t, 1, acc.PreviousTier)

	stored := mustAccount(t, svc, "u1")
	assert.Equal(t, int64(1000), stored.Points)
	assert.Equal(t, 2, stored.TierLevel)

	var changes []models.TierChange
	require.NoError(t, db.Find(&changes).Error)
	require.Len(t, changes, 1)
	assert.Equal(t, 1, changes[0].FromLevel)
	assert.Equal(t, 2, changes[0].ToLevel)

	require.Len(t, rec.events, 1)
	assert.Equal(t, "Membro Bronze", rec.events[0].ToTitle)
	assert.Equal(t, int64(1000), rec.events[0].Points)
}

func TestCredit_InvalidInput(t *testing.T) {
	svc, db, _ := newTestPointsService(t)
	seedAccount(t, svc, "u1", 50)

	for _, amount := range []int64{0, -5} {
		_, err := svc.Credit(context.Background(), CreditRequest{UserID: "u1", Amount: amount})
		assert.True(t, errors.Is(err, ErrInvalidAmount), "amount %d: %v", amount, err)
	}
	_, err := svc.Credit(context.Background(), CreditRequest{UserID: " ", Amount: 10})
	assert.True(t, errors.Is(err, ErrInvalidUserID))

	var count int64
	require.NoError(t, db.Model(&models.PointsTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, int64(50), mustAccount(t, svc, "u1").Points)
}

func TestCredit_UnknownUser(t *testing.T) {
	svc, _, _ := newTestPointsService(t)
	_, err := svc.Credit(context.Background(), CreditRequest{UserID: "ghost", Amount: 10})
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestCredit_DuplicateSourceIsRejected(t *testing.T) {
	svc, _, _ := newTestPointsService(t)
	ctx := context.Background()
	seedAccount(t, svc, "u1", 0)

	req := CreditRequest{UserID: "u1", Amount: 30, Kind: models.KindPurchase, SourceID: "order-1"}
	_, err := svc.Credit(ctx, req)
	require.NoError(t, err)

	_, err = svc.Credit(ctx, req)
	assert.True(t, errors.Is(err, ErrDuplicateSource))
	assert.Equal(t, int64(30), mustAccount(t, svc, "u1").Points)
}

func TestDebit_DemotesAndRejectsOverdraft(t *testing.T) {
	// GIVEN: balance 1000 (tier 2)
	// WHEN: debiting 1000, then 1 more
	// THEN: 0/tier 1, then InsufficientPoints with the balance unchanged
	svc, db, rec := newTestPointsService(t)
	ctx := context.Background()
	seedAccount(t, svc, "u1", 1000)

	acc, err := svc.Debit(ctx, DebitRequest{UserID: "u1", Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Balance)
	assert.Equal(t, 1, acc.Tier)
	assert.Equal(t, 2, acc.PreviousTier)
	require.Len(t, rec.events, 1)
	assert.Equal(t, 1, rec.events[0].ToLevel)

	_, err = svc.Debit(ctx, DebitRequest{UserID: "u1", Amount: 1})
	assert.True(t, errors.Is(err, ErrInsufficientPoints))

	stored := mustAccount(t, svc, "u1")
	assert.Equal(t, int64(0), stored.Points)
	assert.Equal(t, 1, stored.TierLevel)

	var lines []models.PointsTransaction
	require.NoError(t, db.Order("id").Find(&lines).Error)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(-1000), lines[0].Amount)
	assert.Equal(t, int64(0), lines[0].BalanceAfter)
	assert.Equal(t, models.KindDebit, lines[0].Kind)
}

func TestDebit_UnknownUser(t *testing.T) {
	svc, _, _ := newTestPointsService(t)
	_, err := svc.Debit(context.Background(), DebitRequest{UserID: "ghost", Amount: 1})
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestDebit_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	// GIVEN: balance exactly equal to the debit amount
	// WHEN: two debits race
	// THEN: exactly one succeeds, the other gets InsufficientPoints, balance ends at 0
	svc, _, _ := newTestPointsService(t)
	ctx := context.Background()
	seedAccount(t, svc, "u1", 500)

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Debit(ctx, DebitRequest{UserID: "u1", Amount: 500})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientPoints):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(0), mustAccount(t, svc, "u1").Points)
}

func TestLedger_InvariantsHoldUnderMixedLoad(t *testing.T) {
	svc, _, _ := newTestPointsService(t)
	ctx := context.Background()
	users := []string{"a", "b", "c"}
	for _, u := range users {
		seedAccount(t, svc, u, 0)
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := users[i%len(users)]
			if i%3 == 2 {
				_, _ = svc.Debit(ctx, DebitRequest{UserID: u, Amount: 700})
				return
			}
			_, _ = svc.Credit(ctx, CreditRequest{UserID: u, Amount: int64(400 + i*10)})
		}(i)
	}
	wg.Wait()

	for _, u := range users {
		acc := mustAccount(t, svc, u)
		assert.GreaterOrEqual(t, acc.Points, int64(0))
		want, err := svc.Tiers.Resolve(acc.Points)
		require.NoError(t, err)
		assert.Equal(t, want.Level, acc.TierLevel, "user %s at %d points", u, acc.Points)
	}
}

func TestOpenAccount_WelcomeBonusOnce(t *testing.T) {
	svc, db, _ := newTestPointsService(t)
	ctx := context.Background()

	acc, created, err := svc.OpenAccount(ctx, "u1", "Maria")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, DefaultWelcomeBonus, acc.Balance)
	assert.Equal(t, 1, acc.Tier)

	acc, created, err = svc.OpenAccount(ctx, "u1", "Maria")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, DefaultWelcomeBonus, acc.Balance)

	var lines []models.PointsTransaction
	require.NoError(t, db.Find(&lines).Error)
	require.Len(t, lines, 1)
	assert.Equal(t, models.KindWelcomeBonus, lines[0].Kind)
	require.NotNil(t, lines[0].SourceID)
	assert.Equal(t, "u1", *lines[0].SourceID)
}

func TestOpenAccount_WithoutBonus(t *testing.T) {
	svc, _, _ := newTestPointsService(t)
	svc.WelcomeBonus = 0

	acc, created, err := svc.OpenAccount(context.Background(), "u1", "Maria")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(0), acc.Balance)
	assert.Equal(t, 1, acc.Tier)
}

func TestCreditPurchase(t *testing.T) {
	svc, _, _ := newTestPointsService(t)
	ctx := context.Background()
	seedAccount(t, svc, "u1", 0)

	acc, err := svc.CreditPurchase(ctx, "u1", "order-1", decimal.RequireFromString("259.90"))
	require.NoError(t, err)
	assert.Equal(t, int64(25), acc.Balance)

	_, err = svc.CreditPurchase(ctx, "u1", "order-1", decimal.RequireFromString("259.90"))
	assert.True(t, errors.Is(err, ErrDuplicateSource))

	// below the accrual threshold: nothing happens
	acc, err = svc.CreditPurchase(ctx, "u1", "order-2", decimal.RequireFromString("9.99"))
	require.NoError(t, err)
	assert.Equal(t, int64(25), acc.Balance)

	svc.Accrual = TenPerSeven{}
	acc, err = svc.CreditPurchase(ctx, "u1", "order-3", decimal.NewFromInt(70))
	require.NoError(t, err)
	assert.Equal(t, int64(125), acc.Balance)

	// not a multiple of 7: floor(13.99 * 10 / 7) = 19
	acc, err = svc.CreditPurchase(ctx, "u1", "order-5", decimal.RequireFromString("13.99"))
	require.NoError(t, err)
	assert.Equal(t, int64(144), acc.Balance)

	_, err = svc.CreditPurchase(ctx, "u1", "", decimal.NewFromInt(70))
	assert.True(t, errors.Is(err, ErrInvalidAmount))
	_, err = svc.CreditPurchase(ctx, "u1", "order-4", decimal.NewFromInt(-1))
	assert.True(t, errors.Is(err, ErrInvalidAmount))
}

func TestReconcile_RepairsStaleTiers(t *testing.T) {
	svc, db, rec := newTestPointsService(t)
	ctx := context.Background()
	seedAccount(t, svc, "ok", 200)
	seedAccount(t, svc, "stale-up", 0)
	seedAccount(t, svc, "stale-down", 9500)

	// simulate writes that bypassed the service
	require.NoError(t, db.Model(&models.PointsAccount{}).Where("user_id = ?", "stale-up").Update("points", 3200).Error)
	require.NoError(t, db.Model(&models.PointsAccount{}).Where("user_id = ?", "stale-down").Update("points", 10).Error)

	stale, err := svc.Store.ListStaleTiers(ctx, svc.Tiers, 10)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	fixed, err := svc.ReconcileAll(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)
	assert.Len(t, rec.events, 2)

	assert.Equal(t, 3, mustAccount(t, svc, "stale-up").TierLevel)
	assert.Equal(t, 1, mustAccount(t, svc, "stale-down").TierLevel)

	// second run has nothing to do
	fixed, err = svc.ReconcileAll(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, fixed)

	acc, err := svc.ReconcileTier(ctx, "ok")
	require.NoError(t, err)
	assert.False(t, acc.TierChanged())
}

func TestHistory_PagesNewestFirst(t *testing.T) {
	svc, _, _ := newTestPointsService(t)
	ctx := context.Background()
	seedAccount(t, svc, "u1", 0)
	for i := 1; i <= 5; i++ {
		_, err := svc.Credit(ctx, CreditRequest{UserID: "u1", Amount: int64(i), Reason: fmt.Sprintf("credit %d", i)})
		require.NoError(t, err)
	}

	page, err := svc.History(ctx, "u1", 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(5), page.Records[0].Amount)
	assert.Equal(t, int64(4), page.Records[1].Amount)

	page, err = svc.History(ctx, "u1", page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, int64(3), page.Records[0].Amount)

	page, err = svc.History(ctx, "u1", page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, int64(1), page.Records[0].Amount)
	assert.Equal(t, int64(1), page.Records[0].BalanceAfter)

	_, err = svc.History(ctx, "ghost", 0, 10)
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestHistory_LimitClamps(t *testing.T) {
	svc, db, _ := newTestPointsService(t)
	ctx := context.Background()
	seedAccount(t, svc, "u1", 0)
	lines := make([]models.PointsTransaction, 0, 130)
	for i := 1; i <= 130; i++ {
		lines = append(lines, models.PointsTransaction{UserID: "u1", Amount: 1, BalanceAfter: int64(i), Kind: models.KindCredit})
	}
	require.NoError(t, db.CreateInBatches(lines, 50).Error)

	page, err := svc.History(ctx, "u1", 0, 500)
	require.NoError(t, err)
	assert.Len(t, page.Records, 100)
	assert.True(t, page.HasMore)

	page, err = svc.History(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Records, 20)
}

func TestNotifyFailureDoesNotFailCredit(t *testing.T) {
	svc, _, rec := newTestPointsService(t)
	rec.err = errors.New("broker down")
	seedAccount(t, svc, "u1", 990)

	acc, err := svc.Credit(context.Background(), CreditRequest{UserID: "u1", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, acc.Tier)
	assert.Len(t, rec.events, 1)
}
