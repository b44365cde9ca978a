// services/points_store.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lumiere-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceStore is the durable home of point balances and their ledger.
// Every balance mutation is a single conditional UPDATE so concurrent callers
// never lose an update.
type BalanceStore interface {
	Get(ctx context.Context, userID string) (*models.PointsAccount, error)
	// CreateIfAbsent inserts account unless one exists for the same user.
	CreateIfAbsent(ctx context.Context, account *models.PointsAccount) (bool, error)
	Increment(ctx context.Context, userID string, amount int64) error
	// DecrementIfSufficient subtracts amount only when the balance covers it.
	DecrementIfSufficient(ctx context.Context, userID string, amount int64) error
	SetTier(ctx context.Context, userID string, level int) error

	AppendTransaction(ctx context.Context, tx *models.PointsTransaction) error
	AppendTierChange(ctx context.Context, change *models.TierChange) error
	AppendRedemption(ctx context.Context, r *models.Redemption) error
	SourceExists(ctx context.Context, kind models.TransactionKind, sourceID string) (bool, error)

	ListTransactions(ctx context.Context, userID string, cursor uint64, limit int) ([]models.PointsTransaction, error)
	ListTierChanges(ctx context.Context, userID string, afterID uint64) ([]models.TierChange, error)
	LatestTierChangeID(ctx context.Context, userID string) (uint64, error)
	ListStaleTiers(ctx context.Context, tiers *TierTable, limit int) ([]models.PointsAccount, error)

	// WithTx runs fn inside one database transaction. fn's error rolls back.
	WithTx(ctx context.Context, fn func(BalanceStore) error) error
}

// GormBalanceStore implements BalanceStore on top of gorm.
type GormBalanceStore struct {
	DB *gorm.DB
}

func NewGormBalanceStore(db *gorm.DB) *GormBalanceStore {
	return &GormBalanceStore{DB: db}
}

var _ BalanceStore = (*GormBalanceStore)(nil)

func (s *GormBalanceStore) Get(ctx context.Context, userID string) (*models.PointsAccount, error) {
	var acc models.PointsAccount
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load points account %s: %w", userID, err)
	}
	return &acc, nil
}

func (s *GormBalanceStore) CreateIfAbsent(ctx context.Context, account *models.PointsAccount) (bool, error) {
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(account)
	if res.Error != nil {
		return false, fmt.Errorf("create points account %s: %w", account.UserID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormBalanceStore) Increment(ctx context.Context, userID string, amount int64) error {
	res := s.DB.WithContext(ctx).
		Model(&models.PointsAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"points": gorm.Expr("points + ?", amount),
		})
	if res.Error != nil {
		return fmt.Errorf("increment points for %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return nil
}

func (s *GormBalanceStore) DecrementIfSufficient(ctx context.Context, userID string, amount int64) error {
	res := s.DB.WithContext(ctx).
		Model(&models.PointsAccount{}).
		Where("user_id = ? AND points >= ?", userID, amount).
		Updates(map[string]interface{}{
			"points": gorm.Expr("points - ?", amount),
		})
	if res.Error != nil {
		return fmt.Errorf("decrement points for %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// nothing matched: either no account or not enough points
	acc, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientPoints, acc.Points, amount)
}

func (s *GormBalanceStore) SetTier(ctx context.Context, userID string, level int) error {
	res := s.DB.WithContext(ctx).
		Model(&models.PointsAccount{}).
		Where("user_id = ?", userID).
		Update("tier_level", level)
	if res.Error != nil {
		return fmt.Errorf("set tier for %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return nil
}

func (s *GormBalanceStore) AppendTransaction(ctx context.Context, tx *models.PointsTransaction) error {
	err := s.DB.WithContext(ctx).Create(tx).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateSource, tx.Kind, derefString(tx.SourceID))
	}
	if err != nil {
		return fmt.Errorf("append points transaction for %s: %w", tx.UserID, err)
	}
	return nil
}

func (s *GormBalanceStore) AppendTierChange(ctx context.Context, change *models.TierChange) error {
	if err := s.DB.WithContext(ctx).Create(change).Error; err != nil {
		return fmt.Errorf("append tier change for %s: %w", change.UserID, err)
	}
	return nil
}

func (s *GormBalanceStore) AppendRedemption(ctx context.Context, r *models.Redemption) error {
	if err := s.DB.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("append redemption for %s: %w", r.UserID, err)
	}
	return nil
}

func (s *GormBalanceStore) SourceExists(ctx context.Context, kind models.TransactionKind, sourceID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.PointsTransaction{}).
		Where("kind = ? AND source_id = ?", kind, sourceID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check points source %s/%s: %w", kind, sourceID, err)
	}
	return count > 0, nil
}

// ListTransactions pages the ledger newest first. cursor is the last id seen (0 = start).
func (s *GormBalanceStore) ListTransactions(ctx context.Context, userID string, cursor uint64, limit int) ([]models.PointsTransaction, error) {
	var txs []models.PointsTransaction
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}
	if err := q.Order("id DESC").Limit(limit).Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list points transactions for %s: %w", userID, err)
	}
	return txs, nil
}

func (s *GormBalanceStore) ListTierChanges(ctx context.Context, userID string, afterID uint64) ([]models.TierChange, error) {
	var changes []models.TierChange
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND id > ?", userID, afterID).
		Order("id ASC").
		Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("list tier changes for %s: %w", userID, err)
	}
	return changes, nil
}

func (s *GormBalanceStore) LatestTierChangeID(ctx context.Context, userID string) (uint64, error) {
	var id uint64
	err := s.DB.WithContext(ctx).
		Model(&models.TierChange{}).
		Where("user_id = ?", userID).
		Select("COALESCE(MAX(id), 0)").
		Scan(&id).Error
	if err != nil {
		return 0, fmt.Errorf("latest tier change for %s: %w", userID, err)
	}
	return id, nil
}

// ListStaleTiers finds accounts whose stored tier disagrees with their balance.
// The tier table is rendered into a CASE expression so the database does the
// comparison for every row.
func (s *GormBalanceStore) ListStaleTiers(ctx context.Context, tiers *TierTable, limit int) ([]models.PointsAccount, error) {
	expr, args := tierCaseExpr(tiers)
	var accounts []models.PointsAccount
	err := s.DB.WithContext(ctx).
		Where("tier_level <> "+expr, args...).
		Order("user_id ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("list stale tiers: %w", err)
	}
	return accounts, nil
}

func (s *GormBalanceStore) WithTx(ctx context.Context, fn func(BalanceStore) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormBalanceStore{DB: tx})
	})
}

// tierCaseExpr builds "CASE WHEN points >= ? THEN ? ... ELSE 1 END", highest tier first.
func tierCaseExpr(tiers *TierTable) (string, []interface{}) {
	all := tiers.All()
	var b strings.Builder
	args := make([]interface{}, 0, 2*len(all))
	b.WriteString("(CASE")
	for i := len(all) - 1; i > 0; i-- {
		b.WriteString(" WHEN points >= ? THEN ?")
		args = append(args, all[i].MinPoints, all[i].Level)
	}
	b.WriteString(" ELSE ? END)")
	args = append(args, all[0].Level)
	return b.String(), args
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
