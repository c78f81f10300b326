package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go-telegram-relay-bot/internal/kvstore"
)

// keyLastNotified is deliberately separate from the registry's activity
// timestamp: the throttle must never move when the guest is merely active.
const keyLastNotified = "lastnotify-"

// Throttler limits operator activity alerts to one per guest per window.
// A guest with no prior alert always notifies.
type Throttler struct {
	store  kvstore.Store
	window time.Duration
	now    func() time.Time
}

func NewThrottler(store kvstore.Store, window time.Duration) *Throttler {
	return &Throttler{
		store:  store,
		window: window,
		now:    time.Now,
	}
}

// ShouldNotify reports whether the window has elapsed for this guest and,
// when it has, consumes the window by storing the current time.
func (t *Throttler) ShouldNotify(ctx context.Context, chatID int64) (bool, error) {
	key := keyLastNotified + strconv.FormatInt(chatID, 10)
	now := t.now()

	raw, found, err := t.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read throttle state: %w", err)
	}

	if found {
		last, parseErr := strconv.ParseInt(raw, 10, 64)
		// A corrupt timestamp is treated as elapsed.
		if parseErr == nil && now.Sub(time.UnixMilli(last)) < t.window {
			return false, nil
		}
	}

	if err := t.store.Put(ctx, key, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return false, fmt.Errorf("write throttle state: %w", err)
	}
	return true, nil
}
