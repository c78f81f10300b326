package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go-telegram-relay-bot/internal/config"
	"go-telegram-relay-bot/internal/kvstore"
	"go-telegram-relay-bot/internal/notify"
	"go-telegram-relay-bot/internal/registry"
	"go-telegram-relay-bot/internal/relaymap"
	"go-telegram-relay-bot/internal/service"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"go.uber.org/zap"
)

const operatorID = int64(500)

type sentMessage struct {
	chatID int64
	text   string
	opts   *gotgbot.SendMessageOpts
}

type relayCall struct {
	to, from, messageID int64
}

type fakeMessenger struct {
	sent            []sentMessage
	forwards        []relayCall
	copies          []relayCall
	nextForwardedID int64
	forwardErr      error
	copyErr         error
}

func (f *fakeMessenger) SendMessage(chatID int64, text string, opts *gotgbot.SendMessageOpts) (int64, error) {
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return int64(len(f.sent)), nil
}

func (f *fakeMessenger) ForwardMessage(toChatID, fromChatID, messageID int64) (int64, error) {
	if f.forwardErr != nil {
		return 0, f.forwardErr
	}
	f.forwards = append(f.forwards, relayCall{to: toChatID, from: fromChatID, messageID: messageID})
	id := f.nextForwardedID
	f.nextForwardedID++
	return id, nil
}

func (f *fakeMessenger) CopyMessage(toChatID, fromChatID, messageID int64) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.copies = append(f.copies, relayCall{to: toChatID, from: fromChatID, messageID: messageID})
	return messageID, nil
}

func (f *fakeMessenger) DeleteMessage(chatID, messageID int64) error {
	return nil
}

func (f *fakeMessenger) sentTo(chatID int64) []string {
	texts := make([]string, 0)
	for _, m := range f.sent {
		if m.chatID == chatID {
			texts = append(texts, m.text)
		}
	}
	return texts
}

type fakeFraud struct {
	hit bool
}

func (f *fakeFraud) IsKnownFraud(ctx context.Context, chatID int64) bool {
	return f.hit
}

type fakeRateLimiter struct {
	deny bool
}

func (f *fakeRateLimiter) AllowGuestMessage(ctx context.Context, guestChatID int64) bool {
	return !f.deny
}

type fakeFetcher struct{}

func (f *fakeFetcher) FetchTextOrFallback(ctx context.Context, url, fallback string) string {
	return fallback
}

type recordingAlerter struct {
	alerts []service.AlertType
}

func (a *recordingAlerter) Alert(ctx context.Context, alertType service.AlertType, err error, details string) {
	a.alerts = append(a.alerts, alertType)
}

type testHarness struct {
	service   *Service
	messenger *fakeMessenger
	fraud     *fakeFraud
	limiter   *fakeRateLimiter
	alerter   *recordingAlerter
	registry  *registry.Registry
	mapper    *relaymap.Mapper
	store     kvstore.Store
}

func newHarness() *testHarness {
	return newHarnessWithStore(kvstore.NewMemoryStore())
}

func newHarnessWithStore(store kvstore.Store) *testHarness {
	logger := zap.NewNop()
	cfg := &config.Config{
		Bot: config.BotConfig{OperatorID: operatorID},
		Notify: config.NotifyConfig{
			Enabled:         true,
			IntervalSeconds: 3600,
			FallbackText:    "New message from a guest.",
		},
		Greeting: config.GreetingConfig{FallbackText: "Welcome!"},
		Limits: config.LimitsConfig{
			MessageChunk: 4000,
			ListPage:     10,
			ListMax:      100,
			HistoryMax:   100,
		},
	}

	reg := registry.New(store, cfg.Limits.ListPage, cfg.Limits.ListMax, cfg.Limits.HistoryMax, logger)
	mapper := relaymap.New(store)
	messenger := &fakeMessenger{nextForwardedID: 555}
	fraud := &fakeFraud{}
	limiter := &fakeRateLimiter{}
	alerter := &recordingAlerter{}
	throttler := notify.NewThrottler(store, cfg.Notify.Interval())

	svc := NewService(messenger, reg, mapper, fraud, throttler, limiter, &fakeFetcher{}, alerter, cfg, logger)
	return &testHarness{
		service:   svc,
		messenger: messenger,
		fraud:     fraud,
		limiter:   limiter,
		alerter:   alerter,
		registry:  reg,
		mapper:    mapper,
		store:     store,
	}
}

func guestMsg(chatID, messageID int64, text, username string) *gotgbot.Message {
	msg := &gotgbot.Message{
		MessageId: messageID,
		Chat:      gotgbot.Chat{Id: chatID, Type: "private"},
		Text:      text,
	}
	if username != "" {
		msg.From = &gotgbot.User{Id: chatID, Username: username}
	}
	return msg
}

func operatorMsg(messageID int64, text string, replyTo int64) *gotgbot.Message {
	msg := &gotgbot.Message{
		MessageId: messageID,
		Chat:      gotgbot.Chat{Id: operatorID, Type: "private"},
		Text:      text,
		From:      &gotgbot.User{Id: operatorID},
	}
	if replyTo != 0 {
		msg.ReplyToMessage = &gotgbot.Message{MessageId: replyTo}
	}
	return msg
}

func TestGuestMessageRelayed(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", "alice")); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if len(h.messenger.forwards) != 1 {
		t.Fatalf("Expected 1 forward, got %d", len(h.messenger.forwards))
	}
	fwd := h.messenger.forwards[0]
	if fwd.to != operatorID || fwd.from != 42 || fwd.messageID != 7 {
		t.Fatalf("Unexpected forward call: %+v", fwd)
	}

	guestChatID, found, err := h.mapper.Resolve(ctx, 555)
	if err != nil || !found {
		t.Fatalf("Mapping for forwarded message should resolve, found=%v err=%v", found, err)
	}
	if guestChatID != 42 {
		t.Fatalf("Mapping should point at guest 42, got %d", guestChatID)
	}

	info, found, _ := h.registry.Describe(ctx, 42)
	if !found {
		t.Fatal("Guest should be registered after first message")
	}
	if info.LastText != "hello" {
		t.Fatalf("Expected last text hello, got %q", info.LastText)
	}
	if info.HistoryLen != 1 {
		t.Fatalf("Expected 1 history entry, got %d", info.HistoryLen)
	}

	// First contact always triggers a notification.
	notified := false
	for _, text := range h.messenger.sentTo(operatorID) {
		if text == "New message from a guest." {
			notified = true
		}
	}
	if !notified {
		t.Fatal("Operator should be notified on first contact")
	}
}

func TestBlockedGuestNotForwarded(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.registry.SetBlocked(ctx, 42, true)
	if err := h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", "")); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if len(h.messenger.forwards) != 0 {
		t.Fatal("Blocked guest must not be forwarded")
	}
	if _, found, _ := h.mapper.Resolve(ctx, 555); found {
		t.Fatal("Blocked guest must not create a relay mapping")
	}
	texts := h.messenger.sentTo(42)
	if len(texts) != 1 || texts[0] != "You are blocked." {
		t.Fatalf("Blocked guest should get the rejection notice, got %v", texts)
	}
}

func TestForwardFailureRecordsNoMapping(t *testing.T) {
	h := newHarness()
	h.messenger.forwardErr = errors.New("bad gateway")
	ctx := context.Background()

	if err := h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", "")); err != nil {
		t.Fatalf("Forward failure must be handled, got: %v", err)
	}
	if _, found, _ := h.mapper.Resolve(ctx, 555); found {
		t.Fatal("No mapping may be written when the forward fails")
	}
}

func TestOperatorReplyRelayedVerbatim(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.mapper.Record(ctx, 555, 42)
	if err := h.service.HandleMessage(ctx, operatorMsg(9, "ok", 555)); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if len(h.messenger.copies) != 1 {
		t.Fatalf("Expected 1 copy to guest, got %d", len(h.messenger.copies))
	}
	cp := h.messenger.copies[0]
	if cp.to != 42 || cp.from != operatorID || cp.messageID != 9 {
		t.Fatalf("Unexpected copy call: %+v", cp)
	}
}

func TestOperatorReplyToUntrackedMessage(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.service.HandleMessage(ctx, operatorMsg(9, "ok", 556)); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if len(h.messenger.copies) != 0 {
		t.Fatal("Untracked reply must not be relayed")
	}
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 || !strings.Contains(texts[0], "/block") {
		t.Fatalf("Operator should get usage guidance, got %v", texts)
	}
}

func TestOperatorReplyToBlockedGuestRefused(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.mapper.Record(ctx, 555, 42)
	h.registry.SetBlocked(ctx, 42, true)
	h.service.HandleMessage(ctx, operatorMsg(9, "ok", 555))

	if len(h.messenger.copies) != 0 {
		t.Fatal("Reply to a blocked guest must not be delivered")
	}
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 || !strings.Contains(texts[0], "blocked") {
		t.Fatalf("Operator should be told the guest is blocked, got %v", texts)
	}
}

func TestBlockCommand(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.mapper.Record(ctx, 555, 42)
	h.service.HandleMessage(ctx, operatorMsg(9, "/block", 555))

	blocked, _ := h.registry.IsBlocked(ctx, 42)
	if !blocked {
		t.Fatal("/block should block the guest")
	}
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 || !strings.Contains(texts[0], "42") {
		t.Fatalf("Confirmation should name the guest id, got %v", texts)
	}

	h.service.HandleMessage(ctx, operatorMsg(10, "/unblock", 555))
	blocked, _ = h.registry.IsBlocked(ctx, 42)
	if blocked {
		t.Fatal("/unblock should unblock the guest")
	}
}

func TestBlockSelfRefused(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	// A mapping can point at the operator when the operator messages the
	// bot and that message ends up forwarded.
	h.mapper.Record(ctx, 700, operatorID)
	h.service.HandleMessage(ctx, operatorMsg(9, "/block", 700))

	blocked, _ := h.registry.IsBlocked(ctx, operatorID)
	if blocked {
		t.Fatal("Operator must never be blocked")
	}
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 || !strings.Contains(texts[0], "yourself") {
		t.Fatalf("Self-block should be refused with guidance, got %v", texts)
	}
}

func TestCheckBlockCommand(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.mapper.Record(ctx, 555, 42)
	h.service.HandleMessage(ctx, operatorMsg(9, "/checkblock", 555))

	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 || !strings.Contains(texts[0], "not blocked") {
		t.Fatalf("Expected not-blocked report, got %v", texts)
	}
}

func TestCommandWithoutGuestContext(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	for _, command := range []string{"/block", "/unblock", "/checkblock", "/info"} {
		h.messenger.sent = nil
		h.service.HandleMessage(ctx, operatorMsg(9, command, 0))
		texts := h.messenger.sentTo(operatorID)
		if len(texts) != 1 || !strings.Contains(texts[0], "Reply to a forwarded message") {
			t.Fatalf("%s without context should yield guidance, got %v", command, texts)
		}
	}
}

func TestInfoCommand(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", "alice"))
	h.mapper.Record(ctx, 600, 42)
	h.messenger.sent = nil

	h.service.HandleMessage(ctx, operatorMsg(9, "/info", 600))
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 {
		t.Fatalf("Expected 1 info message, got %d", len(texts))
	}
	info := texts[0]
	for _, want := range []string{"UID: 42", "@alice", "tg://user?id=42"} {
		if !strings.Contains(info, want) {
			t.Fatalf("Info should contain %q, got %q", want, info)
		}
	}
}

func TestInfoCommandNoUsername(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", ""))
	h.mapper.Record(ctx, 600, 42)
	h.messenger.sent = nil

	h.service.HandleMessage(ctx, operatorMsg(9, "/info", 600))
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 || !strings.Contains(texts[0], "(no username)") {
		t.Fatalf("Info should show the no-username placeholder, got %v", texts)
	}
}

func TestContactDirect(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, operatorMsg(9, "/contact 12345 Hi there", 0))

	texts := h.messenger.sentTo(12345)
	if len(texts) != 1 || texts[0] != "Hi there" {
		t.Fatalf("Expected direct delivery of %q, got %v", "Hi there", texts)
	}
	if len(h.messenger.sentTo(operatorID)) != 0 {
		t.Fatal("Successful /contact should be silent toward the operator")
	}
}

func TestContactPreservesWhitespace(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, operatorMsg(9, "/contact 12 line one\nline two", 0))
	texts := h.messenger.sentTo(12)
	if len(texts) != 1 || texts[0] != "line one\nline two" {
		t.Fatalf("Contact text must be verbatim, got %v", texts)
	}
}

func TestContactMalformed(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	for _, text := range []string{"/contact", "/contact 12345", "/contact abc hello"} {
		h.messenger.sent = nil
		h.service.HandleMessage(ctx, operatorMsg(9, text, 0))
		texts := h.messenger.sentTo(operatorID)
		if len(texts) != 1 || !strings.Contains(texts[0], "Usage: /contact") {
			t.Fatalf("%q should yield contact usage, got %v", text, texts)
		}
	}
}

func TestHistoryCommand(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, "first", ""))
	h.service.HandleMessage(ctx, guestMsg(42, 8, "second", ""))
	h.messenger.sent = nil

	h.service.HandleMessage(ctx, operatorMsg(9, "/history 42", 0))
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 {
		t.Fatalf("Expected 1 history message, got %d", len(texts))
	}
	if !strings.Contains(texts[0], "first") || !strings.Contains(texts[0], "second") {
		t.Fatalf("History should contain both entries, got %q", texts[0])
	}
	idxFirst := strings.Index(texts[0], "first")
	idxSecond := strings.Index(texts[0], "second")
	if idxFirst > idxSecond {
		t.Fatal("History entries must be chronological")
	}
	if h.messenger.sent[0].opts == nil || h.messenger.sent[0].opts.ParseMode != "MarkdownV2" {
		t.Fatal("History is rendered in MarkdownV2")
	}
}

func TestHistoryOversizedEntryStaysParseable(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, strings.Repeat("a", 5000), ""))
	h.messenger.sent = nil

	h.service.HandleMessage(ctx, operatorMsg(9, "/history 42", 0))
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 {
		t.Fatalf("Expected 1 history message, got %d", len(texts))
	}
	if len(texts[0]) > h.service.config.Limits.MessageChunk {
		t.Fatalf("History chunk exceeds limit: %d chars", len(texts[0]))
	}
	// The code span must keep its closing backtick after the cut.
	if strings.Count(texts[0], "`") != 2 {
		t.Fatalf("Code span must stay balanced, got %d backticks", strings.Count(texts[0], "`"))
	}
	if !strings.HasSuffix(texts[0], "`\n\n") {
		t.Fatal("Rendered entry must end with the code span close")
	}
}

func TestHistoryCommandFromReplyContext(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", ""))
	h.mapper.Record(ctx, 600, 42)
	h.messenger.sent = nil

	h.service.HandleMessage(ctx, operatorMsg(9, "/history", 600))
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 || !strings.Contains(texts[0], "hello") {
		t.Fatalf("History via reply context should render entries, got %v", texts)
	}
}

func TestHistoryCommandNoContext(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, operatorMsg(9, "/history", 0))
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 || !strings.Contains(texts[0], "Usage: /history") {
		t.Fatalf("History without any context yields usage, got %v", texts)
	}
}

func TestListCommand(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", "alice"))
	time.Sleep(5 * time.Millisecond)
	h.service.HandleMessage(ctx, guestMsg(43, 8, "hey", "bob"))
	h.messenger.sent = nil

	h.service.HandleMessage(ctx, operatorMsg(9, "/list", 0))
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 {
		t.Fatalf("Expected 1 list message, got %d", len(texts))
	}
	// Newest activity first.
	if strings.Index(texts[0], "UID: 43") > strings.Index(texts[0], "UID: 42") {
		t.Fatalf("List should be ordered newest first, got %q", texts[0])
	}
}

func TestFraudAlertBypassesThrottle(t *testing.T) {
	h := newHarness()
	h.fraud.hit = true
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(999, 7, "hello", ""))

	alerted := false
	for _, text := range h.messenger.sentTo(operatorID) {
		if strings.Contains(text, "Fraud warning") && strings.Contains(text, "999") {
			alerted = true
		}
		if text == "New message from a guest." {
			t.Fatal("Fraud hit must suppress the standard notification")
		}
	}
	if !alerted {
		t.Fatal("Operator should receive a fraud alert")
	}

	// The fraud path must not consume the throttle window.
	if _, found, _ := h.store.Get(ctx, "lastnotify-999"); found {
		t.Fatal("Fraud alert must not touch throttle state")
	}
}

func TestNotificationThrottled(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, "one", ""))
	h.service.HandleMessage(ctx, guestMsg(42, 8, "two", ""))

	notifications := 0
	for _, text := range h.messenger.sentTo(operatorID) {
		if text == "New message from a guest." {
			notifications++
		}
	}
	if notifications != 1 {
		t.Fatalf("Expected exactly 1 notification inside the window, got %d", notifications)
	}
	if len(h.messenger.forwards) != 2 {
		t.Fatalf("Both messages must still be forwarded, got %d", len(h.messenger.forwards))
	}
}

func TestStartGreeting(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, "/start", ""))

	texts := h.messenger.sentTo(42)
	if len(texts) != 1 || texts[0] != "Welcome!" {
		t.Fatalf("Guest should receive the greeting, got %v", texts)
	}
	if len(h.messenger.forwards) != 0 {
		t.Fatal("/start must not be forwarded")
	}
	if _, found, _ := h.registry.Describe(ctx, 42); found {
		t.Fatal("/start must not register the guest")
	}
}

func TestRateLimitedGuestNotForwarded(t *testing.T) {
	h := newHarness()
	h.limiter.deny = true
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", ""))
	if len(h.messenger.forwards) != 0 {
		t.Fatal("Rate limited guest must not be forwarded")
	}
	texts := h.messenger.sentTo(42)
	if len(texts) != 1 || !strings.Contains(texts[0], "slow down") {
		t.Fatalf("Rate limited guest should be told to slow down, got %v", texts)
	}
}

func TestStatsCommand(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", ""))
	h.service.HandleMessage(ctx, guestMsg(43, 8, "hey", ""))
	h.registry.SetBlocked(ctx, 43, true)
	h.messenger.sent = nil

	h.service.HandleMessage(ctx, operatorMsg(9, "/stats", 0))
	texts := h.messenger.sentTo(operatorID)
	if len(texts) != 1 {
		t.Fatalf("Expected 1 stats message, got %d", len(texts))
	}
	for _, want := range []string{"Guests: 2", "Blocked: 1", "Messages relayed: 2"} {
		if !strings.Contains(texts[0], want) {
			t.Fatalf("Stats should contain %q, got %q", want, texts[0])
		}
	}
}

type failingStore struct {
	kvstore.Store
}

func (s *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("store down")
}

func (s *failingStore) Put(ctx context.Context, key, value string) error {
	return errors.New("store down")
}

func TestStoreFailureRaisesAlert(t *testing.T) {
	h := newHarnessWithStore(&failingStore{Store: kvstore.NewMemoryStore()})
	ctx := context.Background()

	if err := h.service.HandleMessage(ctx, guestMsg(42, 7, "hello", "")); err != nil {
		t.Fatalf("Store failure must not fail the update, got: %v", err)
	}

	// The message still reaches the operator.
	if len(h.messenger.forwards) != 1 {
		t.Fatalf("Expected 1 forward despite store failure, got %d", len(h.messenger.forwards))
	}

	found := false
	for _, alertType := range h.alerter.alerts {
		if alertType == service.AlertTypeStore {
			found = true
		}
	}
	if !found {
		t.Fatal("A failing store must raise a store alert")
	}
}
