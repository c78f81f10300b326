package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go-telegram-relay-bot/internal/kvstore"

	"go.uber.org/zap"
)

// Key prefixes in the shared store. Every guest attribute is an
// independent key; there is no cross-key atomicity.
const (
	keyUsername = "username-"
	keyLastSeen = "lastmsg-"
	keyLastText = "lastmsgText-"
	keyBlocked  = "isblocked-"
	keyHistory  = "history-"
)

// NonTextPlaceholder is stored when an inbound message carries no text.
const NonTextPlaceholder = "[non-text message]"

type GuestInfo struct {
	ChatID     int64
	Username   string
	LastSeen   time.Time
	LastText   string
	HistoryLen int
}

type GuestSummary struct {
	ChatID   int64
	Username string
	LastSeen time.Time
}

type HistoryEntry struct {
	Text string `json:"text"`
	Time int64  `json:"time"` // unix milliseconds
}

func (e HistoryEntry) Timestamp() time.Time {
	return time.UnixMilli(e.Time)
}

// Registry keeps per-guest state in the shared store. Guests come into
// existence implicitly with their first recorded message and are never
// deleted.
type Registry struct {
	store      kvstore.Store
	pageSize   int64
	listMax    int
	historyMax int
	logger     *zap.Logger
	now        func() time.Time
}

func New(store kvstore.Store, pageSize int64, listMax, historyMax int, logger *zap.Logger) *Registry {
	return &Registry{
		store:      store,
		pageSize:   pageSize,
		listMax:    listMax,
		historyMax: historyMax,
		logger:     logger,
		now:        time.Now,
	}
}

// RecordInbound upserts the guest's activity attributes and appends a
// history entry. Each attribute is an independent write; a failure on one
// does not roll back the others. History entries are write-once, keyed by
// the platform message id, so concurrent messages from the same guest
// cannot overwrite each other.
func (r *Registry) RecordInbound(ctx context.Context, chatID int64, text, username string, messageID int64) error {
	now := r.now()
	stored := text
	if stored == "" {
		stored = NonTextPlaceholder
	}

	if username != "" {
		if err := r.store.Put(ctx, keyUsername+formatID(chatID), username); err != nil {
			return fmt.Errorf("record username: %w", err)
		}
	}

	if err := r.store.Put(ctx, keyLastSeen+formatID(chatID), strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("record last seen: %w", err)
	}

	if err := r.store.Put(ctx, keyLastText+formatID(chatID), stored); err != nil {
		return fmt.Errorf("record last text: %w", err)
	}

	entry, err := json.Marshal(HistoryEntry{Text: stored, Time: now.UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	if err := r.store.Put(ctx, historyEntryKey(chatID, messageID), string(entry)); err != nil {
		return fmt.Errorf("record history entry: %w", err)
	}

	return nil
}

func (r *Registry) IsBlocked(ctx context.Context, chatID int64) (bool, error) {
	val, found, err := r.store.Get(ctx, keyBlocked+formatID(chatID))
	if err != nil {
		return false, fmt.Errorf("read block flag: %w", err)
	}
	return found && val == "true", nil
}

func (r *Registry) SetBlocked(ctx context.Context, chatID int64, blocked bool) error {
	if err := r.store.Put(ctx, keyBlocked+formatID(chatID), strconv.FormatBool(blocked)); err != nil {
		return fmt.Errorf("write block flag: %w", err)
	}
	return nil
}

// Describe returns the guest's stored attributes. A guest the registry has
// never seen yields found=false, not an error.
func (r *Registry) Describe(ctx context.Context, chatID int64) (*GuestInfo, bool, error) {
	id := formatID(chatID)

	username, hasUsername, err := r.store.Get(ctx, keyUsername+id)
	if err != nil {
		return nil, false, fmt.Errorf("read username: %w", err)
	}

	lastSeenRaw, hasLastSeen, err := r.store.Get(ctx, keyLastSeen+id)
	if err != nil {
		return nil, false, fmt.Errorf("read last seen: %w", err)
	}

	if !hasUsername && !hasLastSeen {
		return nil, false, nil
	}

	info := &GuestInfo{ChatID: chatID, Username: username}
	if hasLastSeen {
		if ms, parseErr := strconv.ParseInt(lastSeenRaw, 10, 64); parseErr == nil {
			info.LastSeen = time.UnixMilli(ms)
		}
	}

	lastText, _, err := r.store.Get(ctx, keyLastText+id)
	if err != nil {
		return nil, false, fmt.Errorf("read last text: %w", err)
	}
	info.LastText = lastText

	history, err := r.History(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	info.HistoryLen = len(history)

	return info, true, nil
}

// ListGuests pages through the activity keys, caps the merge at listMax
// and returns summaries ordered by last activity, newest first. The store
// lists in key order, so ordering by activity happens after the merge.
func (r *Registry) ListGuests(ctx context.Context) ([]GuestSummary, error) {
	summaries := make([]GuestSummary, 0)
	// SCAN-backed stores can repeat keys across pages.
	seen := make(map[int64]struct{})
	cursor := ""
	for {
		page, err := r.store.List(ctx, keyLastSeen, cursor, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list guests: %w", err)
		}

		for _, entry := range page.Entries {
			chatID, err := strconv.ParseInt(strings.TrimPrefix(entry.Key, keyLastSeen), 10, 64)
			if err != nil {
				r.logger.Warn("Skipping malformed guest key", zap.String("key", entry.Key))
				continue
			}
			if _, dup := seen[chatID]; dup {
				continue
			}
			seen[chatID] = struct{}{}
			summary := GuestSummary{ChatID: chatID}
			if ms, parseErr := strconv.ParseInt(entry.Value, 10, 64); parseErr == nil {
				summary.LastSeen = time.UnixMilli(ms)
			}
			summaries = append(summaries, summary)
		}

		if page.NextCursor == "" || len(summaries) >= r.listMax {
			break
		}
		cursor = page.NextCursor
	}

	if len(summaries) > r.listMax {
		summaries = summaries[:r.listMax]
	}

	for i := range summaries {
		username, _, err := r.store.Get(ctx, keyUsername+formatID(summaries[i].ChatID))
		if err != nil {
			r.logger.Warn("Failed to read username for listing",
				zap.Int64("chat_id", summaries[i].ChatID),
				zap.Error(err))
			continue
		}
		summaries[i].Username = username
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastSeen.After(summaries[j].LastSeen)
	})

	return summaries, nil
}

// History replays the guest's messages in chronological order. Entries
// that fail to parse are skipped rather than failing the whole replay.
func (r *Registry) History(ctx context.Context, chatID int64) ([]HistoryEntry, error) {
	prefix := historyPrefix(chatID)
	keyed := make([]kvstore.Entry, 0)
	seen := make(map[string]struct{})
	cursor := ""
	for {
		page, err := r.store.List(ctx, prefix, cursor, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list history: %w", err)
		}
		for _, e := range page.Entries {
			// SCAN-backed stores can repeat keys across pages.
			if _, dup := seen[e.Key]; dup {
				continue
			}
			seen[e.Key] = struct{}{}
			keyed = append(keyed, e)
		}
		if page.NextCursor == "" || len(keyed) >= r.historyMax {
			break
		}
		cursor = page.NextCursor
	}
	if len(keyed) > r.historyMax {
		keyed = keyed[:r.historyMax]
	}

	// Message ids are zero padded in the key, so key order is
	// chronological even for backends that scan unordered.
	sort.Slice(keyed, func(i, j int) bool { return keyed[i].Key < keyed[j].Key })

	entries := make([]HistoryEntry, 0, len(keyed))
	for _, e := range keyed {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(e.Value), &entry); err != nil {
			r.logger.Warn("Skipping corrupt history entry",
				zap.String("key", e.Key),
				zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Counts reports the totals backing the /stats command.
func (r *Registry) Counts(ctx context.Context) (guests, blocked int, err error) {
	guests, err = r.countPrefix(ctx, keyLastSeen, nil)
	if err != nil {
		return 0, 0, err
	}
	blocked, err = r.countPrefix(ctx, keyBlocked, func(value string) bool {
		return value == "true"
	})
	if err != nil {
		return 0, 0, err
	}
	return guests, blocked, nil
}

func (r *Registry) countPrefix(ctx context.Context, prefix string, match func(string) bool) (int, error) {
	count := 0
	seen := make(map[string]struct{})
	cursor := ""
	for {
		page, err := r.store.List(ctx, prefix, cursor, r.pageSize)
		if err != nil {
			return 0, fmt.Errorf("count %q: %w", prefix, err)
		}
		for _, entry := range page.Entries {
			// SCAN-backed stores can repeat keys across pages.
			if _, dup := seen[entry.Key]; dup {
				continue
			}
			seen[entry.Key] = struct{}{}
			if match == nil || match(entry.Value) {
				count++
			}
		}
		if page.NextCursor == "" || count >= r.listMax {
			return count, nil
		}
		cursor = page.NextCursor
	}
}

func formatID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func historyPrefix(chatID int64) string {
	return fmt.Sprintf("%s%d-", keyHistory, chatID)
}

func historyEntryKey(chatID, messageID int64) string {
	// Zero padding keeps lexical order aligned with numeric order.
	return fmt.Sprintf("%s%020d", historyPrefix(chatID), messageID)
}
