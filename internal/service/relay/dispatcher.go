package relay

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go-telegram-relay-bot/internal/utils"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"go.uber.org/zap"
)

const usageText = "Reply to a forwarded message with /block, /unblock, /checkblock or /info, " +
	"or use /list, /history <uid>, /contact <uid> <text>, /stats."

// contactPattern is strict: a numeric chat id, then the message text
// verbatim, embedded whitespace and newlines included.
var contactPattern = regexp.MustCompile(`(?s)^/contact\s+(\d+)\s+(.+)$`)

// commandContext is the request-scoped parse state handed to a handler:
// the operator's message, the resolved reply target (if the operator
// replied to a forwarded message the mapper knows), and the text after the
// command word.
type commandContext struct {
	msg         *gotgbot.Message
	guestChatID int64
	hasGuest    bool
	args        string
}

type commandSpec struct {
	name       string
	needsGuest bool
	handler    func(ctx context.Context, cmd *commandContext) error
}

// commands is the operator grammar. Order is match order; the first entry
// whose name equals the command word wins.
func (s *Service) commands() []commandSpec {
	return []commandSpec{
		{name: "/block", needsGuest: true, handler: s.handleBlock},
		{name: "/unblock", needsGuest: true, handler: s.handleUnblock},
		{name: "/checkblock", needsGuest: true, handler: s.handleCheckBlock},
		{name: "/info", needsGuest: true, handler: s.handleInfo},
		{name: "/list", needsGuest: false, handler: s.handleList},
		{name: "/history", needsGuest: false, handler: s.handleHistory},
		{name: "/contact", needsGuest: false, handler: s.handleContact},
		{name: "/stats", needsGuest: false, handler: s.handleStats},
	}
}

func (s *Service) handleOperator(ctx context.Context, msg *gotgbot.Message) error {
	cmd := &commandContext{msg: msg}

	if msg.ReplyToMessage != nil {
		guestChatID, found, err := s.mapper.Resolve(ctx, msg.ReplyToMessage.MessageId)
		if err != nil {
			s.logger.Warn("Relay mapping lookup failed",
				zap.Int64("reply_to_message_id", msg.ReplyToMessage.MessageId),
				zap.Error(err))
			s.alertStoreFailure(ctx, err, "relay mapper")
		} else if found {
			cmd.guestChatID = guestChatID
			cmd.hasGuest = true
		}
	}

	if strings.HasPrefix(msg.Text, "/") {
		name, args := splitCommand(msg.Text)
		for _, spec := range s.commands() {
			if spec.name != name {
				continue
			}
			s.logger.Debug("Dispatching operator command",
				zap.String("command", name),
				zap.Bool("has_guest", cmd.hasGuest))
			if spec.needsGuest && !cmd.hasGuest {
				return s.sendGuidance(ctx)
			}
			cmd.args = args
			return spec.handler(ctx, cmd)
		}
	}

	// No command matched: with a resolved guest the operator's message is
	// a reply payload and is relayed verbatim; without one it is noise.
	if cmd.hasGuest {
		return s.relayOperatorReply(ctx, cmd)
	}
	return s.sendGuidance(ctx)
}

// splitCommand returns the command word (with any @botname suffix
// stripped) and the remaining text.
func splitCommand(text string) (string, string) {
	name := text
	args := ""
	if idx := strings.IndexAny(text, " \t\n"); idx >= 0 {
		name = text[:idx]
		args = strings.TrimSpace(text[idx+1:])
	}
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	return name, args
}

func (s *Service) sendGuidance(ctx context.Context) error {
	return s.sendToOperator(ctx, usageText)
}

func (s *Service) sendToOperator(ctx context.Context, text string) error {
	if _, err := s.messenger.SendMessage(s.operatorID, text, nil); err != nil {
		s.logger.Warn("Failed to send operator response", zap.Error(err))
	}
	return nil
}

func (s *Service) handleBlock(ctx context.Context, cmd *commandContext) error {
	if cmd.guestChatID == s.operatorID {
		return s.sendToOperator(ctx, "You cannot block yourself.")
	}
	if err := s.registry.SetBlocked(ctx, cmd.guestChatID, true); err != nil {
		s.logger.Error("Failed to block guest",
			zap.Int64("chat_id", cmd.guestChatID),
			zap.Error(err))
		return s.sendToOperator(ctx, "Failed to update block state. Please try again.")
	}
	return s.sendToOperator(ctx, fmt.Sprintf("Guest %d is now blocked.", cmd.guestChatID))
}

func (s *Service) handleUnblock(ctx context.Context, cmd *commandContext) error {
	if err := s.registry.SetBlocked(ctx, cmd.guestChatID, false); err != nil {
		s.logger.Error("Failed to unblock guest",
			zap.Int64("chat_id", cmd.guestChatID),
			zap.Error(err))
		return s.sendToOperator(ctx, "Failed to update block state. Please try again.")
	}
	return s.sendToOperator(ctx, fmt.Sprintf("Guest %d is now unblocked.", cmd.guestChatID))
}

func (s *Service) handleCheckBlock(ctx context.Context, cmd *commandContext) error {
	blocked, err := s.registry.IsBlocked(ctx, cmd.guestChatID)
	if err != nil {
		s.logger.Error("Failed to read block state",
			zap.Int64("chat_id", cmd.guestChatID),
			zap.Error(err))
		return s.sendToOperator(ctx, "Failed to read block state. Please try again.")
	}
	if blocked {
		return s.sendToOperator(ctx, fmt.Sprintf("Guest %d is blocked.", cmd.guestChatID))
	}
	return s.sendToOperator(ctx, fmt.Sprintf("Guest %d is not blocked.", cmd.guestChatID))
}

func (s *Service) handleInfo(ctx context.Context, cmd *commandContext) error {
	info, found, err := s.registry.Describe(ctx, cmd.guestChatID)
	if err != nil {
		s.logger.Error("Failed to describe guest",
			zap.Int64("chat_id", cmd.guestChatID),
			zap.Error(err))
		return s.sendToOperator(ctx, "Failed to look up guest. Please try again.")
	}

	username := "(no username)"
	if found && info.Username != "" {
		username = "@" + info.Username
	}

	text := fmt.Sprintf("UID: %d\nUsername: %s\nLink: tg://user?id=%d",
		cmd.guestChatID, username, cmd.guestChatID)
	if found && !info.LastSeen.IsZero() {
		text += fmt.Sprintf("\nLast active: %s\nMessages on record: %d",
			info.LastSeen.Format("2006-01-02 15:04:05"), info.HistoryLen)
	}
	return s.sendToOperator(ctx, text)
}

func (s *Service) handleList(ctx context.Context, cmd *commandContext) error {
	summaries, err := s.registry.ListGuests(ctx)
	if err != nil {
		s.logger.Error("Failed to list guests", zap.Error(err))
		return s.sendToOperator(ctx, "Failed to list guests. Please try again.")
	}
	if len(summaries) == 0 {
		return s.sendToOperator(ctx, "No guests on record yet.")
	}

	entries := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		username := "(no username)"
		if summary.Username != "" {
			username = "@" + summary.Username
		}
		lastSeen := "unknown"
		if !summary.LastSeen.IsZero() {
			lastSeen = summary.LastSeen.Format("2006-01-02 15:04:05")
		}
		entries = append(entries, fmt.Sprintf("UID: %d\nUsername: %s\nLast active: %s\n---\n",
			summary.ChatID, username, lastSeen))
	}

	for _, chunk := range chunkEntries(entries, s.config.Limits.MessageChunk) {
		if err := s.sendToOperator(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) handleHistory(ctx context.Context, cmd *commandContext) error {
	guestChatID := int64(0)
	switch {
	case cmd.args != "":
		parsed, err := strconv.ParseInt(strings.Fields(cmd.args)[0], 10, 64)
		if err != nil {
			return s.sendToOperator(ctx, "Usage: /history <uid>, or reply to a forwarded message with /history.")
		}
		guestChatID = parsed
	case cmd.hasGuest:
		guestChatID = cmd.guestChatID
	default:
		return s.sendToOperator(ctx, "Usage: /history <uid>, or reply to a forwarded message with /history.")
	}

	entries, err := s.registry.History(ctx, guestChatID)
	if err != nil {
		s.logger.Error("Failed to load history",
			zap.Int64("chat_id", guestChatID),
			zap.Error(err))
		return s.sendToOperator(ctx, "Failed to load history. Please try again.")
	}
	if len(entries) == 0 {
		return s.sendToOperator(ctx, fmt.Sprintf("No history for guest %d.", guestChatID))
	}

	rendered := make([]string, 0, len(entries))
	for _, entry := range entries {
		timestamp := utils.EscapeMarkdownV2(entry.Timestamp().Format("2006-01-02 15:04:05"))
		code := utils.EscapeMarkdownV2Code(entry.Text)
		// Oversized texts are cut before rendering; cutting the rendered
		// entry could strip the closing backtick and make the chunk
		// unparseable.
		if max := s.config.Limits.MessageChunk - len(timestamp) - len("\n``\n\n"); len(code) > max {
			if max < 0 {
				max = 0
			}
			code = trimCodeSpan(code, max)
		}
		rendered = append(rendered, fmt.Sprintf("%s\n`%s`\n\n", timestamp, code))
	}

	for _, chunk := range chunkEntries(rendered, s.config.Limits.MessageChunk) {
		if _, err := s.messenger.SendMessage(s.operatorID, chunk, &gotgbot.SendMessageOpts{
			ParseMode: "MarkdownV2",
		}); err != nil {
			s.logger.Warn("Failed to send history chunk", zap.Error(err))
			return nil
		}
	}
	return nil
}

func (s *Service) handleContact(ctx context.Context, cmd *commandContext) error {
	match := contactPattern.FindStringSubmatch(cmd.msg.Text)
	if match == nil {
		return s.sendToOperator(ctx, "Usage: /contact <uid> <text>")
	}
	guestChatID, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return s.sendToOperator(ctx, "Usage: /contact <uid> <text>")
	}

	// Direct send: no reply context, no relay mapping involved.
	if _, err := s.messenger.SendMessage(guestChatID, match[2], nil); err != nil {
		s.logger.Warn("Failed to contact guest",
			zap.Int64("chat_id", guestChatID),
			zap.Error(err))
		return s.sendToOperator(ctx, fmt.Sprintf("Could not deliver to guest %d.", guestChatID))
	}
	return nil
}

func (s *Service) handleStats(ctx context.Context, cmd *commandContext) error {
	guests, blocked, err := s.registry.Counts(ctx)
	if err != nil {
		s.logger.Error("Failed to compute stats", zap.Error(err))
		return s.sendToOperator(ctx, "Failed to compute stats. Please try again.")
	}
	relayed, err := s.mapper.Count(ctx, s.config.Limits.ListPage, s.config.Limits.ListMax)
	if err != nil {
		s.logger.Error("Failed to count relayed messages", zap.Error(err))
		return s.sendToOperator(ctx, "Failed to compute stats. Please try again.")
	}

	return s.sendToOperator(ctx, fmt.Sprintf(
		"Guests: %d\nBlocked: %d\nMessages relayed: %d", guests, blocked, relayed))
}

// relayOperatorReply copies the operator's message to the guest behind the
// replied-to forward. Copying (not forwarding) keeps the operator's
// account out of the header the guest sees.
func (s *Service) relayOperatorReply(ctx context.Context, cmd *commandContext) error {
	blocked, err := s.registry.IsBlocked(ctx, cmd.guestChatID)
	if err != nil {
		s.logger.Warn("Failed to read block flag before reply",
			zap.Int64("chat_id", cmd.guestChatID),
			zap.Error(err))
	}
	if blocked {
		return s.sendToOperator(ctx, fmt.Sprintf(
			"Guest %d is blocked and cannot receive replies. Use /unblock first.", cmd.guestChatID))
	}

	if _, err := s.messenger.CopyMessage(cmd.guestChatID, cmd.msg.Chat.Id, cmd.msg.MessageId); err != nil {
		s.logger.Warn("Failed to relay operator reply",
			zap.Int64("chat_id", cmd.guestChatID),
			zap.Error(err))
		return s.sendToOperator(ctx, fmt.Sprintf("Could not deliver to guest %d.", cmd.guestChatID))
	}
	return nil
}
