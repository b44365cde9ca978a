// services/sse_tier_stream.go
package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TierStreamEvent is the payload of one "tier" SSE event.
type TierStreamEvent struct {
	ID        uint64    `json:"id"`
	FromLevel int       `json:"from_level"`
	FromTitle string    `json:"from_title"`
	ToLevel   int       `json:"to_level"`
	ToTitle   string    `json:"to_title"`
	Points    int64     `json:"pontos"`
	At        time.Time `json:"created_at"`
}

const (
	tierStreamPoll      = 2 * time.Second
	tierStreamHeartbeat = 15 * time.Second
)

// StreamTierChangesSSE streams userID's tier changes until the client goes
// away or the server shuts down.
func (s *PointsService) StreamTierChangesSSE(c *fiber.Ctx, userID string) error {
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	// done on server shutdown
	ctx := c.Context()
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := s.streamTierChanges(ctx, w, userID, tierStreamPoll, tierStreamHeartbeat); err != nil {
			s.Logger.Debug("[SSE] tier stream closed", zap.String("user_id", userID), zap.Error(err))
		}
	})
	return nil
}

// streamTierChanges writes a "progress" event with the current account, then
// a "tier" event for every tier change recorded after the stream opened. It
// returns when ctx ends or the client stops reading.
func (s *PointsService) streamTierChanges(ctx context.Context, w *bufio.Writer, userID string, poll, heartbeat time.Duration) error {
	cursor, err := s.Store.LatestTierChangeID(ctx, userID)
	if err != nil {
		s.Logger.Error("[SSE] init error", zap.String("user_id", userID), zap.Error(err))
	}

	if acc, err := s.Store.Get(ctx, userID); err == nil {
		if err := writeSSE(w, "progress", snapshot(acc)); err != nil {
			return err
		}
	} else {
		// initial keepalive (comment event)
		if _, err := w.WriteString(":\n\n"); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	lastWrite := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		changes, err := s.Store.ListTierChanges(ctx, userID, cursor)
		if err != nil {
			s.Logger.Error("[SSE] query error", zap.String("user_id", userID), zap.Error(err))
			continue
		}

		if len(changes) == 0 {
			if time.Since(lastWrite) < heartbeat {
				continue
			}
			if _, err := w.WriteString(":\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			lastWrite = time.Now()
			continue
		}

		for _, ch := range changes {
			from, _ := s.Tiers.ByLevel(ch.FromLevel)
			to, _ := s.Tiers.ByLevel(ch.ToLevel)
			ev := TierStreamEvent{
				ID:        ch.ID,
				FromLevel: ch.FromLevel,
				FromTitle: from.Title,
				ToLevel:   ch.ToLevel,
				ToTitle:   to.Title,
				Points:    ch.Points,
				At:        ch.CreatedAt,
			}
			if err := writeSSE(w, "tier", ev); err != nil {
				return err
			}
			cursor = ch.ID
		}
		lastWrite = time.Now()
	}
}

func writeSSE(w *bufio.Writer, event string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return w.Flush()
}
