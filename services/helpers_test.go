package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"lumiere-backend/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a migrated SQLite file database on a single connection.
// Service transactions then run one after another.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDB(t, "?_busy_timeout=5000", 1)
}

// newConcurrentTestDB opens a WAL database with several connections so
// statements from different goroutines really interleave.
func newConcurrentTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDB(t, "?_busy_timeout=5000&_journal_mode=WAL", 8)
}

func openTestDB(t *testing.T, params string, conns int) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "points.db") + params
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.PointsAccount{},
		&models.PointsTransaction{},
		&models.TierChange{},
		&models.Reward{},
		&models.Redemption{},
	))
	return db
}

// recordingNotifier keeps every event it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	events []TierChangeEvent
	err    error
}

func (r *recordingNotifier) TierChanged(_ context.Context, ev TierChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func newTestPointsService(t *testing.T) (*PointsService, *gorm.DB, *recordingNotifier) {
	t.Helper()
	db := newTestDB(t)
	svc := NewPointsService(NewGormBalanceStore(db), MustTierTable(DefaultTiers), zap.NewNop())
	rec := &recordingNotifier{}
	svc.Notifier = rec
	return svc, db, rec
}

// seedAccount inserts an account with a consistent tier.
func seedAccount(t *testing.T, svc *PointsService, userID string, balance int64) {
	t.Helper()
	tier, err := svc.Tiers.Resolve(balance)
	require.NoError(t, err)
	created, err := svc.Store.CreateIfAbsent(context.Background(), &models.PointsAccount{
		UserID:    userID,
		Name:      "Maria " + userID,
		Points:    balance,
		TierLevel: tier.Level,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func mustAccount(t *testing.T, svc *PointsService, userID string) *models.PointsAccount {
	t.Helper()
	acc, err := svc.Store.Get(context.Background(), userID)
	require.NoError(t, err)
	return acc
}
