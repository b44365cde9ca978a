// workers/purchase_sync_worker.go
package workers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"lumiere-backend/services"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SyncedPayment is one approved payment from the payments feed.
type SyncedPayment struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	ApprovedAt time.Time       `json:"approved_at"`
}

type paymentChangesResponse struct {
	Payments []SyncedPayment `json:"payments"`
}

// PurchaseCrediter credits the points earned by a purchase.
type PurchaseCrediter interface {
	CreditPurchase(ctx context.Context, userID, orderID string, value decimal.Decimal) (*services.UpdatedAccount, error)
}

// PurchaseSyncWorker credits purchase points for every approved payment.
// Crediting is idempotent per order, so replaying a window is harmless.
type PurchaseSyncWorker struct {
	client       *SyncClient
	points       PurchaseCrediter
	logger       *zap.Logger
	interval     time.Duration
	endpointPath string
	lastSync     time.Time
	now          func() time.Time
}

func NewPurchaseSyncWorker(client *SyncClient, points PurchaseCrediter, interval time.Duration, logger *zap.Logger) *PurchaseSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PurchaseSyncWorker{
		client:       client,
		points:       points,
		logger:       logger,
		interval:     interval,
		endpointPath: "/api/v1/public/payments",
		lastSync:     time.Now().UTC().Add(-24 * time.Hour),
		now:          time.Now,
	}
}

func (w *PurchaseSyncWorker) Start(ctx context.Context) {
	w.logger.Info("🔁 [SYNC] starting purchase sync worker (payments → points)")
	go w.run(ctx)
}

func (w *PurchaseSyncWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("⏹️ [SYNC] purchase sync worker stopped")
			return
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.logger.Error("❌ [SYNC] purchase sync failed", zap.Error(err))
			}
		}
	}
}

// SyncOnce credits one window of approved payments and returns how many were
// credited. On any retryable failure the window is kept for the next tick.
func (w *PurchaseSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	pollStart := w.now().UTC()

	var resp paymentChangesResponse
	extra := url.Values{"status": {"approved"}}
	if err := w.client.getChanges(ctx, w.endpointPath, w.lastSync, extra, &resp); err != nil {
		return 0, err
	}

	credited, retry := 0, false
	for _, p := range resp.Payments {
		if p.Status != "" && p.Status != "approved" {
			continue
		}
		_, err := w.points.CreditPurchase(ctx, p.UserID, p.OrderID, p.Amount)
		switch {
		case err == nil:
			credited++
		case errors.Is(err, services.ErrDuplicateSource):
			// already credited in an earlier window
		case errors.Is(err, services.ErrUserNotFound):
			// account not opened yet; keep the window until the account worker catches up
			retry = true
			w.logger.Warn("⏳ [SYNC] payment waiting for account",
				zap.String("order_id", p.OrderID), zap.String("user_id", p.UserID))
		case services.IsClientError(err):
			w.logger.Warn("⚠️ [SYNC] payment skipped",
				zap.String("order_id", p.OrderID), zap.String("user_id", p.UserID), zap.Error(err))
		default:
			retry = true
			w.logger.Error("❌ [SYNC] failed to credit purchase",
				zap.String("order_id", p.OrderID), zap.String("user_id", p.UserID), zap.Error(err))
		}
	}

	if !retry {
		w.lastSync = pollStart
	}
	w.logger.Info("✅ [SYNC] payments processed",
		zap.Int("received", len(resp.Payments)), zap.Int("credited", credited), zap.Bool("retry", retry))
	return credited, nil
}
