// services/points_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lumiere-backend/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultWelcomeBonus is credited when an account is opened.
const DefaultWelcomeBonus int64 = 100

// UpdatedAccount is the state of an account right after a ledger operation.
type UpdatedAccount struct {
	UserID       string `json:"user_id"`
	Name         string `json:"nome,omitempty"`
	Balance      int64  `json:"pontos"`
	Tier         int    `json:"nivelMembro"`
	PreviousTier int    `json:"nivelAnterior"`
}

// TierChanged reports whether the operation moved the account to another tier.
func (u *UpdatedAccount) TierChanged() bool {
	return u.Tier != u.PreviousTier
}

// CreditRequest adds points. SourceID, when set, makes the credit idempotent
// per (Kind, SourceID).
type CreditRequest struct {
	UserID   string
	Amount   int64
	Kind     models.TransactionKind
	SourceID string
	Reason   string
}

// DebitRequest removes points.
type DebitRequest struct {
	UserID string
	Amount int64
	Kind   models.TransactionKind
	Reason string
}

// HistoryPage is one page of the ledger, newest first.
type HistoryPage struct {
	Records    []models.PointsTransaction `json:"records"`
	NextCursor uint64                     `json:"next_cursor"`
	HasMore    bool                       `json:"has_more"`
}

// PointsService owns every change to a points balance and keeps the stored
// tier equal to the tier the balance resolves to.
type PointsService struct {
	Store        BalanceStore
	Tiers        *TierTable
	Notifier     TierNotifier
	Accrual      AccrualPolicy
	WelcomeBonus int64
	Logger       *zap.Logger
}

func NewPointsService(store BalanceStore, tiers *TierTable, logger *zap.Logger) *PointsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PointsService{
		Store:        store,
		Tiers:        tiers,
		Notifier:     NewLogNotifier(logger),
		Accrual:      FlatPerTen{},
		WelcomeBonus: DefaultWelcomeBonus,
		Logger:       logger,
	}
}

// Credit atomically adds req.Amount to the balance and re-evaluates the tier.
func (s *PointsService) Credit(ctx context.Context, req CreditRequest) (*UpdatedAccount, error) {
	if err := validateLedgerInput(req.UserID, req.Amount); err != nil {
		s.Logger.Warn("[POINTS] rejected credit", zap.String("user_id", req.UserID), zap.Int64("amount", req.Amount), zap.Error(err))
		return nil, err
	}
	if req.Kind == "" {
		req.Kind = models.KindCredit
	}

	var out *UpdatedAccount
	err := s.Store.WithTx(ctx, func(tx BalanceStore) error {
		var err error
		out, err = s.creditIn(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("[POINTS] credited",
		zap.String("user_id", out.UserID),
		zap.String("nome", out.Name),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", out.Balance),
		zap.String("kind", string(req.Kind)),
	)
	s.notify(ctx, out)
	return out, nil
}

// Debit atomically removes req.Amount when the balance covers it and
// re-evaluates the tier. An uncovered debit fails with ErrInsufficientPoints
// and leaves the balance untouched.
func (s *PointsService) Debit(ctx context.Context, req DebitRequest) (*UpdatedAccount, error) {
	if err := validateLedgerInput(req.UserID, req.Amount); err != nil {
		s.Logger.Warn("[POINTS] rejected debit", zap.String("user_id", req.UserID), zap.Int64("amount", req.Amount), zap.Error(err))
		return nil, err
	}
	if req.Kind == "" {
		req.Kind = models.KindDebit
	}

	var out *UpdatedAccount
	err := s.Store.WithTx(ctx, func(tx BalanceStore) error {
		var err error
		out, err = s.debitIn(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("[POINTS] debited",
		zap.String("user_id", out.UserID),
		zap.String("nome", out.Name),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", out.Balance),
		zap.String("kind", string(req.Kind)),
	)
	s.notify(ctx, out)
	return out, nil
}

// OpenAccount creates the account for a newly registered user and credits the
// welcome bonus in the same transaction. Opening an existing account returns
// it unchanged; created reports which case happened.
func (s *PointsService) OpenAccount(ctx context.Context, userID, name string) (acc *UpdatedAccount, created bool, err error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, ErrInvalidUserID
	}

	lowest := s.Tiers.Lowest()
	err = s.Store.WithTx(ctx, func(tx BalanceStore) error {
		created, err = tx.CreateIfAbsent(ctx, &models.PointsAccount{
			UserID:    userID,
			Name:      name,
			Points:    0,
			TierLevel: lowest.Level,
		})
		if err != nil {
			return err
		}
		if !created || s.WelcomeBonus <= 0 {
			existing, err := tx.Get(ctx, userID)
			if err != nil {
				return err
			}
			acc = snapshot(existing)
			return nil
		}
		acc, err = s.creditIn(ctx, tx, CreditRequest{
			UserID:   userID,
			Amount:   s.WelcomeBonus,
			Kind:     models.KindWelcomeBonus,
			SourceID: userID,
			Reason:   "Bônus de boas-vindas",
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.Logger.Info("[POINTS] account opened",
			zap.String("user_id", userID),
			zap.String("nome", name),
			zap.Int64("welcome_bonus", s.WelcomeBonus),
			zap.Int64("balance", acc.Balance),
		)
		s.notify(ctx, acc)
	}
	return acc, created, nil
}

// CreditPurchase credits the points a purchase of value earns under the
// configured accrual policy. orderID makes it idempotent; a purchase too small
// to earn points returns the unchanged account.
func (s *PointsService) CreditPurchase(ctx context.Context, userID, orderID string, value decimal.Decimal) (*UpdatedAccount, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: purchase without order id", ErrInvalidAmount)
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("%w: negative purchase value %s", ErrInvalidAmount, value)
	}

	points := s.Accrual.Points(value)
	if points <= 0 {
		acc, err := s.Store.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.Logger.Debug("[POINTS] purchase below accrual threshold",
			zap.String("user_id", userID), zap.String("order_id", orderID), zap.String("value", value.String()))
		return snapshot(acc), nil
	}

	return s.Credit(ctx, CreditRequest{
		UserID:   userID,
		Amount:   points,
		Kind:     models.KindPurchase,
		SourceID: orderID,
		Reason:   fmt.Sprintf("Compra %s (%s, %s)", orderID, value.StringFixed(2), s.Accrual.Name()),
	})
}

// ReconcileTier rewrites the stored tier from the current balance.
// Safe to call any number of times.
func (s *PointsService) ReconcileTier(ctx context.Context, userID string) (*UpdatedAccount, error) {
	var out *UpdatedAccount
	err := s.Store.WithTx(ctx, func(tx BalanceStore) error {
		acc, err := tx.Get(ctx, userID)
		if err != nil {
			return err
		}
		out, err = s.applyTier(ctx, tx, acc)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.TierChanged() {
		s.Logger.Warn("[TIERS] repaired stale tier",
			zap.String("user_id", userID), zap.Int("from", out.PreviousTier), zap.Int("to", out.Tier))
		s.notify(ctx, out)
	}
	return out, nil
}

// ReconcileAll repairs up to batch accounts whose tier is stale and returns how
// many were fixed.
func (s *PointsService) ReconcileAll(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	stale, err := s.Store.ListStaleTiers(ctx, s.Tiers, batch)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, acc := range stale {
		res, err := s.ReconcileTier(ctx, acc.UserID)
		if err != nil {
			s.Logger.Error("[TIERS] reconcile failed", zap.String("user_id", acc.UserID), zap.Error(err))
			continue
		}
		if res.TierChanged() {
			fixed++
		}
	}
	return fixed, nil
}

// History returns a page of the user's ledger.
func (s *PointsService) History(ctx context.Context, userID string, cursor uint64, limit int) (*HistoryPage, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	if _, err := s.Store.Get(ctx, userID); err != nil {
		return nil, err
	}

	records, err := s.Store.ListTransactions(ctx, userID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{Records: records}
	if len(records) > limit {
		page.Records = records[:limit]
		page.HasMore = true
	}
	if n := len(page.Records); n > 0 {
		page.NextCursor = page.Records[n-1].ID
	}
	if page.Records == nil {
		page.Records = []models.PointsTransaction{}
	}
	return page, nil
}

// Account returns the current balance and tier.
func (s *PointsService) Account(ctx context.Context, userID string) (*models.PointsAccount, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	return s.Store.Get(ctx, userID)
}

func (s *PointsService) creditIn(ctx context.Context, tx BalanceStore, req CreditRequest) (*UpdatedAccount, error) {
	if req.SourceID != "" {
		exists, err := tx.SourceExists(ctx, req.Kind, req.SourceID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateSource, req.Kind, req.SourceID)
		}
	}
	if err := tx.Increment(ctx, req.UserID, req.Amount); err != nil {
		return nil, err
	}
	return s.settle(ctx, tx, req.UserID, req.Amount, req.Kind, req.SourceID, req.Reason)
}

func (s *PointsService) debitIn(ctx context.Context, tx BalanceStore, req DebitRequest) (*UpdatedAccount, error) {
	if err := tx.DecrementIfSufficient(ctx, req.UserID, req.Amount); err != nil {
		return nil, err
	}
	return s.settle(ctx, tx, req.UserID, -req.Amount, req.Kind, "", req.Reason)
}

// settle runs after a balance change inside the same transaction: it fixes the
// tier and writes the ledger line.
func (s *PointsService) settle(ctx context.Context, tx BalanceStore, userID string, delta int64, kind models.TransactionKind, sourceID, reason string) (*UpdatedAccount, error) {
	acc, err := tx.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc.Points < 0 {
		return nil, fmt.Errorf("%w: balance of %s would be %d", ErrInsufficientPoints, userID, acc.Points)
	}

	out, err := s.applyTier(ctx, tx, acc)
	if err != nil {
		return nil, err
	}

	line := &models.PointsTransaction{
		UserID:       userID,
		Amount:       delta,
		BalanceAfter: acc.Points,
		Kind:         kind,
		Reason:       reason,
	}
	if sourceID != "" {
		line.SourceID = &sourceID
	}
	if err := tx.AppendTransaction(ctx, line); err != nil {
		return nil, err
	}
	return out, nil
}

// applyTier overwrites the stored tier with the resolved one, unconditionally,
// and records a TierChange when they differed.
func (s *PointsService) applyTier(ctx context.Context, tx BalanceStore, acc *models.PointsAccount) (*UpdatedAccount, error) {
	tier, err := s.Tiers.Resolve(acc.Points)
	if err != nil {
		return nil, err
	}
	if err := tx.SetTier(ctx, acc.UserID, tier.Level); err != nil {
		return nil, err
	}

	out := &UpdatedAccount{
		UserID:       acc.UserID,
		Name:         acc.Name,
		Balance:      acc.Points,
		Tier:         tier.Level,
		PreviousTier: acc.TierLevel,
	}
	if out.TierChanged() {
		if err := tx.AppendTierChange(ctx, &models.TierChange{
			UserID:    acc.UserID,
			FromLevel: acc.TierLevel,
			ToLevel:   tier.Level,
			Points:    acc.Points,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// notify publishes a committed tier change. Failures are logged only: the
// balance and tier are already durable.
func (s *PointsService) notify(ctx context.Context, acc *UpdatedAccount) {
	if s.Notifier == nil || !acc.TierChanged() {
		return
	}
	from, _ := s.Tiers.ByLevel(acc.PreviousTier)
	to, _ := s.Tiers.ByLevel(acc.Tier)
	ev := TierChangeEvent{
		UserID:    acc.UserID,
		Name:      acc.Name,
		FromLevel: acc.PreviousTier,
		FromTitle: from.Title,
		ToLevel:   acc.Tier,
		ToTitle:   to.Title,
		Points:    acc.Balance,
	}
	if err := s.Notifier.TierChanged(ctx, ev); err != nil {
		s.Logger.Error("[TIERS] tier change notification failed", zap.String("user_id", acc.UserID), zap.Error(err))
	}
}

func validateLedgerInput(userID string, amount int64) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return nil
}

func snapshot(acc *models.PointsAccount) *UpdatedAccount {
	return &UpdatedAccount{
		UserID:       acc.UserID,
		Name:         acc.Name,
		Balance:      acc.Points,
		Tier:         acc.TierLevel,
		PreviousTier: acc.TierLevel,
	}
}

// IsClientError reports whether err is one of the engine's caller-facing kinds.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidUserID, ErrUserNotFound, ErrInsufficientPoints,
		ErrRewardNotFound, ErrTierTooLow, ErrDuplicateSource, ErrInvalidReward,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
