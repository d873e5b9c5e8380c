package usecase

import (
	"context"
	"sync"
	"time"

	"rentex/internal/infrastructure/ratelimit"
	ws "rentex/internal/infrastructure/websocket"
	"rentex/pkg/logger"
)

type typingKey struct {
	from string
	to   string
}

// PresenceUseCase is the typing coordinator. State is ephemeral and process
// local: a typing flag plus its last refresh per (from, to) pair, decaying
// after a fixed window. Nothing here touches the message store and nothing
// here is guaranteed to be delivered.
type PresenceUseCase struct {
	wsManager   *ws.Manager
	rateLimiter *ratelimit.RateLimiter
	decayWindow time.Duration

	mu     sync.Mutex
	typing map[typingKey]time.Time
}

func NewPresenceUseCase(wsManager *ws.Manager, decayWindow time.Duration) *PresenceUseCase {
	return &PresenceUseCase{
		wsManager:   wsManager,
		rateLimiter: ratelimit.NewRateLimiter(),
		decayWindow: decayWindow,
		typing:      make(map[typingKey]time.Time),
	}
}

var _ ws.PresenceService = (*PresenceUseCase)(nil)

// SetTyping records or clears the typing flag for the pair and pushes the
// signal to the counterpart if connected. Best effort throughout: dropped
// signals are recovered by the recipient's local decay timeout.
func (uc *PresenceUseCase) SetTyping(fromUserID, toUserID string, isTyping bool) {
	if allowed, _ := uc.rateLimiter.Allow(fromUserID, "typing"); !allowed {
		return
	}

	key := typingKey{from: fromUserID, to: toUserID}
	now := time.Now()

	uc.mu.Lock()
	if isTyping {
		uc.typing[key] = now
	} else {
		delete(uc.typing, key)
	}
	uc.mu.Unlock()

	data := ws.TypingData{
		From:     fromUserID,
		IsTyping: isTyping,
	}
	if isTyping {
		data.ExpiresAt = now.Add(uc.decayWindow).UTC().Format(time.RFC3339)
	}

	uc.wsManager.SendToUser(toUserID, ws.NewEvent(ws.EventTyping, data))
}

// IsTyping reports whether the pair has a fresh typing flag. Stale flags
// count as not typing even before the sweeper clears them.
func (uc *PresenceUseCase) IsTyping(fromUserID, toUserID string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	refreshed, ok := uc.typing[typingKey{from: fromUserID, to: toUserID}]
	return ok && time.Since(refreshed) <= uc.decayWindow
}

// StartDecaySweeper clears typing flags that received no refresh within the
// decay window and emits the implicit stop signal. Recipients still time out
// locally; the sweeper only covers the abrupt-disconnect case where no stop
// event was ever sent.
func (uc *PresenceUseCase) StartDecaySweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(uc.decayWindow / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				uc.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (uc *PresenceUseCase) sweep() {
	now := time.Now()

	uc.mu.Lock()
	var expired []typingKey
	for key, refreshed := range uc.typing {
		if now.Sub(refreshed) > uc.decayWindow {
			delete(uc.typing, key)
			expired = append(expired, key)
		}
	}
	uc.mu.Unlock()

	for _, key := range expired {
		logger.Debug("Typing flag for %s -> %s decayed", key.from, key.to)
		uc.wsManager.SendToUser(key.to, ws.NewEvent(ws.EventTyping, ws.TypingData{
			From:     key.from,
			IsTyping: false,
		}))
	}
}
