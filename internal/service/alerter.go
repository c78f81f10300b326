package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-telegram-relay-bot/internal/utils"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"go.uber.org/zap"
)

type AlertType string

const (
	AlertTypeStore AlertType = "store"
	AlertTypeFetch AlertType = "fetch"
)

// fetchFailureThreshold is how many consecutive failures a remote source
// accumulates before the operator hears about it. A single flaky fetch
// stays in the logs.
const fetchFailureThreshold = 3

type AlertSender interface {
	SendMessage(chatID int64, text string, opts *gotgbot.SendMessageOpts) (int64, error)
}

// OperatorAlerter tells the operator about collaborator failures that
// persist. Alerts are debounced per type so a dead denylist host does not
// flood the operator chat.
type OperatorAlerter struct {
	sender        AlertSender
	operatorID    int64
	logger        *zap.Logger
	notified      map[string]time.Time
	fetchFailures map[string]int
	mutex         sync.Mutex
	debounce      time.Duration
}

func NewOperatorAlerter(sender AlertSender, operatorID int64, logger *zap.Logger) *OperatorAlerter {
	return &OperatorAlerter{
		sender:        sender,
		operatorID:    operatorID,
		logger:        logger,
		notified:      make(map[string]time.Time),
		fetchFailures: make(map[string]int),
		debounce:      1 * time.Hour,
	}
}

func (a *OperatorAlerter) Alert(ctx context.Context, alertType AlertType, err error, details string) {
	a.mutex.Lock()
	key := string(alertType) + ":" + details
	lastNotified, exists := a.notified[key]
	if exists && time.Since(lastNotified) < a.debounce {
		a.mutex.Unlock()
		a.logger.Debug("Alert skipped due to debounce",
			zap.String("alert_type", string(alertType)),
			zap.Time("last_notified", lastNotified))
		return
	}
	a.notified[key] = time.Now()
	a.mutex.Unlock()

	message := fmt.Sprintf(
		"*Relay alert*\n\n"+
			"Type: `%s`\n"+
			"Error: `%s`\n"+
			"Details: `%s`\n"+
			"Time: %s",
		string(alertType),
		utils.EscapeMarkdownV2Code(fmt.Sprintf("%v", err)),
		utils.EscapeMarkdownV2Code(details),
		utils.EscapeMarkdownV2(time.Now().Format("2006-01-02 15:04:05")),
	)

	if _, sendErr := a.sender.SendMessage(a.operatorID, message, &gotgbot.SendMessageOpts{
		ParseMode: "MarkdownV2",
	}); sendErr != nil {
		a.logger.Warn("Failed to deliver operator alert",
			zap.String("alert_type", string(alertType)),
			zap.Error(sendErr))
		return
	}

	a.logger.Error("Persistent failure alerted to operator",
		zap.String("alert_type", string(alertType)),
		zap.Error(err))
}

// OnFetchFailure counts consecutive failures per remote source and raises
// an alert once a source looks persistently unavailable.
func (a *OperatorAlerter) OnFetchFailure(ctx context.Context, source string, err error) {
	a.mutex.Lock()
	a.fetchFailures[source]++
	count := a.fetchFailures[source]
	a.mutex.Unlock()

	if count < fetchFailureThreshold {
		return
	}
	a.Alert(ctx, AlertTypeFetch, err, fmt.Sprintf("%s unavailable (%d consecutive failures)", source, count))
}

// OnFetchSuccess resets the failure streak for a source.
func (a *OperatorAlerter) OnFetchSuccess(source string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.fetchFailures, source)
}
