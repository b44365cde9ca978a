// services/notifier.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TierChangeEvent is published after a committed tier change.
type TierChangeEvent struct {
	UserID    string `json:"user_id"`
	Name      string `json:"nome,omitempty"`
	FromLevel int    `json:"from_level"`
	FromTitle string `json:"from_title"`
	ToLevel   int    `json:"to_level"`
	ToTitle   string `json:"to_title"`
	Points    int64  `json:"points"`
}

// TierNotifier makes tier changes observable outside the service.
type TierNotifier interface {
	TierChanged(ctx context.Context, ev TierChangeEvent) error
}

// LogNotifier writes tier changes to the service log. Point counts in the
// message are formatted for Brazilian Portuguese ("9.000 pontos").
type LogNotifier struct {
	logger  *zap.Logger
	printer *message.Printer
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger, printer: message.NewPrinter(language.BrazilianPortuguese)}
}

func (n *LogNotifier) TierChanged(_ context.Context, ev TierChangeEvent) error {
	verb := "reached"
	if ev.ToLevel < ev.FromLevel {
		verb = "dropped to"
	}
	n.logger.Info(n.printer.Sprintf("[TIERS] 🎉 %s (ID %s) %s level %d (%s) with %d pontos", ev.Name, ev.UserID, verb, ev.ToLevel, ev.ToTitle, ev.Points),
		zap.String("user_id", ev.UserID),
		zap.Int("from_level", ev.FromLevel),
		zap.Int("to_level", ev.ToLevel),
		zap.Int64("points", ev.Points),
	)
	return nil
}

// RedisNotifier publishes tier changes as JSON on a pub/sub channel.
type RedisNotifier struct {
	Client  *redis.Client
	Channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{Client: client, Channel: channel}
}

func (n *RedisNotifier) TierChanged(ctx context.Context, ev TierChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode tier change: %w", err)
	}
	if err := n.Client.Publish(ctx, n.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish tier change to %s: %w", n.Channel, err)
	}
	return nil
}

// MultiNotifier fans out to several notifiers and returns the first error.
type MultiNotifier []TierNotifier

func (m MultiNotifier) TierChanged(ctx context.Context, ev TierChangeEvent) error {
	var first error
	for _, n := range m {
		if err := n.TierChanged(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
