package relaymap

import (
	"context"
	"fmt"
	"strconv"

	"go-telegram-relay-bot/internal/kvstore"
)

const keyPrefix = "msg-map-"

// Mapper remembers which guest originated each message forwarded to the
// operator, so an operator reply to a forwarded message can be routed
// back. Mappings are written once and never updated.
type Mapper struct {
	store kvstore.Store
}

func New(store kvstore.Store) *Mapper {
	return &Mapper{store: store}
}

// Record stores the forwarded-message to guest association. Called exactly
// once per successfully forwarded guest message.
func (m *Mapper) Record(ctx context.Context, forwardedMessageID, guestChatID int64) error {
	key := keyPrefix + strconv.FormatInt(forwardedMessageID, 10)
	if err := m.store.Put(ctx, key, strconv.FormatInt(guestChatID, 10)); err != nil {
		return fmt.Errorf("record relay mapping: %w", err)
	}
	return nil
}

// Resolve returns the guest chat id behind a forwarded message. A message
// the mapper never tracked yields found=false; callers treat that as a
// guidance case, not an error.
func (m *Mapper) Resolve(ctx context.Context, forwardedMessageID int64) (int64, bool, error) {
	key := keyPrefix + strconv.FormatInt(forwardedMessageID, 10)
	val, found, err := m.store.Get(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("resolve relay mapping: %w", err)
	}
	if !found {
		return 0, false, nil
	}
	guestChatID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt relay mapping %q: %w", val, err)
	}
	return guestChatID, true, nil
}

// Count pages through the stored mappings, stopping at max to bound the
// work for large installations. Keys are deduplicated because SCAN-backed
// stores can repeat them across pages.
func (m *Mapper) Count(ctx context.Context, pageSize int64, max int) (int, error) {
	seen := make(map[string]struct{})
	cursor := ""
	for {
		page, err := m.store.List(ctx, keyPrefix, cursor, pageSize)
		if err != nil {
			return 0, fmt.Errorf("count relay mappings: %w", err)
		}
		for _, entry := range page.Entries {
			seen[entry.Key] = struct{}{}
		}
		if page.NextCursor == "" || len(seen) >= max {
			return len(seen), nil
		}
		cursor = page.NextCursor
	}
}
