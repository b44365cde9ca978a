// workers/account_sync_worker.go
package workers

import (
	"context"
	"strings"
	"time"

	"lumiere-backend/services"

	"go.uber.org/zap"
)

// SyncedProfile is one entry of the profile change feed.
type SyncedProfile struct {
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	FirstName     *string   `json:"first_name,omitempty"`
	LastName      *string   `json:"last_name,omitempty"`
	AccountStatus string    `json:"account_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayName prefers "first last" and falls back to the username.
func (p SyncedProfile) DisplayName() string {
	var parts []string
	if p.FirstName != nil && strings.TrimSpace(*p.FirstName) != "" {
		parts = append(parts, strings.TrimSpace(*p.FirstName))
	}
	if p.LastName != nil && strings.TrimSpace(*p.LastName) != "" {
		parts = append(parts, strings.TrimSpace(*p.LastName))
	}
	if len(parts) == 0 {
		return p.Username
	}
	return strings.Join(parts, " ")
}

type profileChangesResponse struct {
	Users []SyncedProfile `json:"users"`
}

// AccountOpener opens a points account, crediting the welcome bonus once.
type AccountOpener interface {
	OpenAccount(ctx context.Context, userID, name string) (*services.UpdatedAccount, bool, error)
}

// AccountSyncWorker opens a points account for every new profile reported by
// the sync service.
type AccountSyncWorker struct {
	client       *SyncClient
	points       AccountOpener
	logger       *zap.Logger
	interval     time.Duration
	endpointPath string
	since        time.Time
}

func NewAccountSyncWorker(client *SyncClient, points AccountOpener, interval time.Duration, logger *zap.Logger) *AccountSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AccountSyncWorker{
		client:       client,
		points:       points,
		logger:       logger,
		interval:     interval,
		endpointPath: "/api/v1/public/profiles",
	}
}

func (w *AccountSyncWorker) Start(ctx context.Context) {
	w.logger.Info("🔁 [SYNC] starting account sync worker (profiles → points_accounts)")
	go w.run(ctx)
}

func (w *AccountSyncWorker) run(ctx context.Context) {
	// first pass backfills from the beginning of time
	if _, err := w.SyncOnce(ctx); err != nil {
		w.logger.Warn("⚠️ [SYNC] initial account sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.logger.Error("❌ [SYNC] account sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.logger.Info("⏹️ [SYNC] account sync worker stopped")
			return
		}
	}
}

// SyncOnce pulls one batch of profile changes and returns how many accounts
// were opened. The cursor only advances when every profile was handled.
func (w *AccountSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	var resp profileChangesResponse
	if err := w.client.getChanges(ctx, w.endpointPath, w.since, nil, &resp); err != nil {
		return 0, err
	}
	if len(resp.Users) == 0 {
		w.logger.Debug("[SYNC] no profile changes", zap.Time("since", w.since))
		return 0, nil
	}

	opened, failed := 0, 0
	latest := w.since
	for _, p := range resp.Users {
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
		if p.ExternalID == "" || p.AccountStatus == "deactivated" {
			continue
		}

		_, created, err := w.points.OpenAccount(ctx, p.ExternalID, p.DisplayName())
		if err != nil {
			failed++
			w.logger.Warn("⚠️ [SYNC] failed to open points account",
				zap.String("external_id", p.ExternalID), zap.String("username", p.Username), zap.Error(err))
			continue
		}
		if created {
			opened++
		}
	}

	if failed == 0 {
		w.since = latest
	}
	w.logger.Info("✅ [SYNC] profiles processed",
		zap.Int("received", len(resp.Users)), zap.Int("opened", opened), zap.Int("failed", failed))
	return opened, nil
}
