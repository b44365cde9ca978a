// services/rewards_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"path/filepath"
	"strings"

	"lumiere-backend/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxTierTitle is shown as the next tier title once the top tier is reached.
const MaxTierTitle = "Nível Máximo Atingido"

// ImageUploader stores a reward image and returns its public URL.
type ImageUploader interface {
	Upload(ctx context.Context, file *multipart.FileHeader, key string) (string, error)
}

// ProgressView backs the "my progress" screen.
type ProgressView struct {
	Balance          int64            `json:"pontosAtuais"`
	CurrentTier      TierDefinition   `json:"nivelAtual"`
	CurrentTierTitle string           `json:"tituloNivelAtual"`
	NextTier         *TierDefinition  `json:"proximoNivel"`
	NextTierTitle    string           `json:"proximoNivelTitulo"`
	PointsToNextTier int64            `json:"pontosParaProximoNivel"`
	ProgressPercent  float64          `json:"percentualProgresso"`
	CurrentPerks     []string         `json:"beneficiosNivelAtual"`
	Tiers            []TierDefinition `json:"niveisDisponiveis"`
}

// RewardListing splits the active catalog by what the member can redeem now.
type RewardListing struct {
	Unlocked []models.Reward `json:"unlockedRewards"`
	Locked   []models.Reward `json:"lockedRewards"`
}

// RedeemResult is returned after a successful redemption.
type RedeemResult struct {
	Message string         `json:"message"`
	Balance int64          `json:"pontosAtuais"`
	Tier    int            `json:"nivelMembro"`
	Reward  *models.Reward `json:"recompensa"`
}

// RewardInput creates a catalog entry.
type RewardInput struct {
	Title        string `json:"titulo"`
	Description  string `json:"descricao"`
	ImageURL     string `json:"imagem_url"`
	PointsCost   int64  `json:"pontos"`
	MinTierLevel int    `json:"nivelMinimo"`
	Active       *bool  `json:"ativo"`
}

// RewardPatch updates the fields that are set.
type RewardPatch struct {
	Title        *string `json:"titulo"`
	Description  *string `json:"descricao"`
	ImageURL     *string `json:"imagem_url"`
	PointsCost   *int64  `json:"pontos"`
	MinTierLevel *int    `json:"nivelMinimo"`
	Active       *bool   `json:"ativo"`
}

// RewardService serves the read side of the program (progress, catalog) and
// redemption, which it delegates to the points ledger.
type RewardService struct {
	DB     *gorm.DB
	Points *PointsService
	Images ImageUploader
	Logger *zap.Logger
}

func NewRewardService(db *gorm.DB, points *PointsService, images ImageUploader, logger *zap.Logger) *RewardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardService{DB: db, Points: points, Images: images, Logger: logger}
}

// GetProgress reports where the member stands in the tier ladder.
func (s *RewardService) GetProgress(ctx context.Context, userID string) (*ProgressView, error) {
	acc, err := s.Points.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildProgress(s.Points.Tiers, acc.Points, acc.TierLevel)
}

// BuildProgress computes the progress view for a balance and stored tier.
// An unknown stored tier falls back to the tier the balance resolves to.
func BuildProgress(tiers *TierTable, balance int64, tierLevel int) (*ProgressView, error) {
	current, ok := tiers.ByLevel(tierLevel)
	if !ok {
		var err error
		if current, err = tiers.Resolve(balance); err != nil {
			return nil, err
		}
	}

	view := &ProgressView{
		Balance:          balance,
		CurrentTier:      current,
		CurrentTierTitle: current.Title,
		CurrentPerks:     current.Perks,
		Tiers:            tiers.All(),
	}
	if view.CurrentPerks == nil {
		view.CurrentPerks = []string{}
	}

	next, ok := tiers.Next(current.Level)
	if !ok {
		view.NextTierTitle = MaxTierTitle
		view.ProgressPercent = 100
		return view, nil
	}

	view.NextTier = &next
	view.NextTierTitle = next.Title
	if remaining := next.MinPoints - balance; remaining > 0 {
		view.PointsToNextTier = remaining
	}

	span := next.MinPoints - current.MinPoints
	if span > 0 {
		pct := float64(balance-current.MinPoints) / float64(span) * 100
		pct = math.Min(100, math.Max(0, pct))
		view.ProgressPercent = math.Round(pct*100) / 100
	}
	return view, nil
}

// ListRewards partitions active rewards into unlocked (affordable and tier
// allowed) and locked, each ascending by cost.
func (s *RewardService) ListRewards(ctx context.Context, userID string) (*RewardListing, error) {
	acc, err := s.Points.Account(ctx, userID)
	if err != nil {
		return nil, err
	}

	var rewards []models.Reward
	if err := s.DB.WithContext(ctx).
		Where("active = ?", true).
		Order("points_cost ASC").
		Order("title ASC").
		Find(&rewards).Error; err != nil {
		return nil, fmt.Errorf("list active rewards: %w", err)
	}

	out := &RewardListing{Unlocked: []models.Reward{}, Locked: []models.Reward{}}
	for _, r := range rewards {
		if acc.Points >= r.PointsCost && acc.TierLevel >= r.MinTierLevel {
			out.Unlocked = append(out.Unlocked, r)
		} else {
			out.Locked = append(out.Locked, r)
		}
	}
	return out, nil
}

// Redeem exchanges points for a reward. The tier gate is checked before the
// debit for a fast answer and again inside the debit's transaction so a
// concurrent debit cannot slip the member under the gate.
func (s *RewardService) Redeem(ctx context.Context, userID, rewardID string) (*RedeemResult, error) {
	reward, err := s.activeReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}

	acc, err := s.Points.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc.TierLevel < reward.MinTierLevel {
		return nil, fmt.Errorf("%w: tier %d, reward requires %d", ErrTierTooLow, acc.TierLevel, reward.MinTierLevel)
	}

	var updated *UpdatedAccount
	err = s.Points.Store.WithTx(ctx, func(tx BalanceStore) error {
		var err error
		updated, err = s.Points.debitIn(ctx, tx, DebitRequest{
			UserID: userID,
			Amount: reward.PointsCost,
			Kind:   models.KindRedemption,
			Reason: "Resgate: " + reward.Title,
		})
		if err != nil {
			return err
		}
		if updated.PreviousTier < reward.MinTierLevel {
			return fmt.Errorf("%w: tier %d, reward requires %d", ErrTierTooLow, updated.PreviousTier, reward.MinTierLevel)
		}
		return tx.AppendRedemption(ctx, &models.Redemption{
			UserID:       userID,
			RewardID:     reward.ID,
			PointsSpent:  reward.PointsCost,
			BalanceAfter: updated.Balance,
		})
	})
	if err != nil {
		s.Logger.Info("[REWARDS] redemption refused",
			zap.String("user_id", userID), zap.String("reward_id", reward.ID), zap.Error(err))
		return nil, err
	}

	s.Logger.Info("[REWARDS] reward redeemed",
		zap.String("user_id", userID),
		zap.String("reward", reward.Title),
		zap.Int64("points", reward.PointsCost),
		zap.Int64("balance", updated.Balance),
	)
	s.Points.notify(ctx, updated)

	return &RedeemResult{
		Message: "Recompensa resgatada com sucesso!",
		Balance: updated.Balance,
		Tier:    updated.Tier,
		Reward:  reward,
	}, nil
}

func (s *RewardService) activeReward(ctx context.Context, rewardID string) (*models.Reward, error) {
	if _, err := uuid.Parse(rewardID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrRewardNotFound, rewardID)
	}
	var reward models.Reward
	err := s.DB.WithContext(ctx).Where("id = ? AND active = ?", rewardID, true).First(&reward).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRewardNotFound, rewardID)
	}
	if err != nil {
		return nil, fmt.Errorf("load reward %s: %w", rewardID, err)
	}
	return &reward, nil
}

// --- Catalog administration ---

// CreateReward adds a catalog entry. Active defaults to true.
func (s *RewardService) CreateReward(ctx context.Context, in RewardInput) (*models.Reward, error) {
	reward := &models.Reward{
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		ImageURL:     in.ImageURL,
		PointsCost:   in.PointsCost,
		MinTierLevel: in.MinTierLevel,
		Active:       true,
	}
	if in.Active != nil {
		reward.Active = *in.Active
	}
	if reward.MinTierLevel == 0 {
		reward.MinTierLevel = s.Points.Tiers.Lowest().Level
	}
	if err := s.validateReward(reward); err != nil {
		return nil, err
	}

	var err error
	if reward.Slug, err = s.uniqueSlug(ctx, reward.Title, ""); err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Create(reward).Error; err != nil {
		return nil, fmt.Errorf("create reward: %w", err)
	}

	s.Logger.Info("[REWARDS] reward created", zap.String("id", reward.ID), zap.String("slug", reward.Slug))
	return reward, nil
}

// UpdateReward applies patch to an existing reward.
func (s *RewardService) UpdateReward(ctx context.Context, id string, patch RewardPatch) (*models.Reward, error) {
	reward, err := s.findReward(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil && strings.TrimSpace(*patch.Title) != reward.Title {
		reward.Title = strings.TrimSpace(*patch.Title)
		if reward.Slug, err = s.uniqueSlug(ctx, reward.Title, reward.ID); err != nil {
			return nil, err
		}
	}
	if patch.Description != nil {
		reward.Description = *patch.Description
	}
	if patch.ImageURL != nil {
		reward.ImageURL = *patch.ImageURL
	}
	if patch.PointsCost != nil {
		reward.PointsCost = *patch.PointsCost
	}
	if patch.MinTierLevel != nil {
		reward.MinTierLevel = *patch.MinTierLevel
	}
	if patch.Active != nil {
		reward.Active = *patch.Active
	}
	if err := s.validateReward(reward); err != nil {
		return nil, err
	}

	if err := s.DB.WithContext(ctx).Save(reward).Error; err != nil {
		return nil, fmt.Errorf("update reward %s: %w", id, err)
	}
	return reward, nil
}

// DeleteReward soft-deletes a reward; past redemptions keep their reference.
func (s *RewardService) DeleteReward(ctx context.Context, id string) error {
	reward, err := s.findReward(ctx, id)
	if err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Delete(reward).Error; err != nil {
		return fmt.Errorf("delete reward %s: %w", id, err)
	}
	return nil
}

// ListAllRewards returns the whole catalog, inactive entries included.
func (s *RewardService) ListAllRewards(ctx context.Context) ([]models.Reward, error) {
	var rewards []models.Reward
	if err := s.DB.WithContext(ctx).Order("points_cost ASC").Find(&rewards).Error; err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return rewards, nil
}

// AttachRewardImage uploads file and stores its URL on the reward.
func (s *RewardService) AttachRewardImage(ctx context.Context, id string, file *multipart.FileHeader) (*models.Reward, error) {
	if s.Images == nil {
		return nil, errors.New("image storage is not configured")
	}
	reward, err := s.findReward(ctx, id)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".png"
	}
	key := fmt.Sprintf("rewards/%s/%s%s", reward.ID, uuid.NewString(), ext)
	url, err := s.Images.Upload(ctx, file, key)
	if err != nil {
		return nil, err
	}

	reward.ImageURL = url
	if err := s.DB.WithContext(ctx).Model(reward).Update("image_url", url).Error; err != nil {
		return nil, fmt.Errorf("store image url for reward %s: %w", id, err)
	}
	return reward, nil
}

func (s *RewardService) findReward(ctx context.Context, id string) (*models.Reward, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrRewardNotFound, id)
	}
	var reward models.Reward
	err := s.DB.WithContext(ctx).First(&reward, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRewardNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load reward %s: %w", id, err)
	}
	return &reward, nil
}

func (s *RewardService) validateReward(r *models.Reward) error {
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidReward)
	}
	if r.PointsCost < 0 {
		return fmt.Errorf("%w: points cost %d is negative", ErrInvalidReward, r.PointsCost)
	}
	if _, ok := s.Points.Tiers.ByLevel(r.MinTierLevel); !ok {
		return fmt.Errorf("%w: unknown minimum tier %d", ErrInvalidReward, r.MinTierLevel)
	}
	return nil
}

// uniqueSlug derives a slug from title, suffixing it when another reward
// (soft-deleted ones included) already uses it.
func (s *RewardService) uniqueSlug(ctx context.Context, title, selfID string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "recompensa"
	}
	candidate := base
	for i := 0; i < 5; i++ {
		var count int64
		q := s.DB.WithContext(ctx).Unscoped().Model(&models.Reward{}).Where("slug = ?", candidate)
		if selfID != "" {
			q = q.Where("id <> ?", selfID)
		}
		if err := q.Count(&count).Error; err != nil {
			return "", fmt.Errorf("check reward slug: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = base + "-" + uuid.NewString()[:8]
	}
	return "", fmt.Errorf("%w: could not derive a unique slug for %q", ErrInvalidReward, title)
}
