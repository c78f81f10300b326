package fraud

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

type FailureAlerter interface {
	OnFetchFailure(ctx context.Context, source string, err error)
	OnFetchSuccess(source string)
}

// Checker consults an externally maintained denylist of guest chat ids.
// The list is fetched on every check so upstream edits take effect
// immediately; a fetch failure degrades to "unknown", which callers treat
// as not fraudulent.
type Checker struct {
	fetcher TextFetcher
	url     string
	alerter FailureAlerter
	logger  *zap.Logger
}

func NewChecker(fetcher TextFetcher, denylistURL string, alerter FailureAlerter, logger *zap.Logger) *Checker {
	return &Checker{
		fetcher: fetcher,
		url:     denylistURL,
		alerter: alerter,
		logger:  logger,
	}
}

// IsKnownFraud reports whether the guest's chat id appears on the
// denylist. The zero value of the answer is the safe one: no list, no hit.
func (c *Checker) IsKnownFraud(ctx context.Context, chatID int64) bool {
	if c.url == "" {
		return false
	}

	list, err := c.fetcher.FetchText(ctx, c.url)
	if err != nil {
		c.logger.Warn("Denylist fetch failed, treating guest as unknown",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		if c.alerter != nil {
			c.alerter.OnFetchFailure(ctx, "fraud denylist", err)
		}
		return false
	}
	if c.alerter != nil {
		c.alerter.OnFetchSuccess("fraud denylist")
	}

	candidate := strconv.FormatInt(chatID, 10)
	for _, line := range strings.Split(list, "\n") {
		if strings.TrimSpace(line) == candidate {
			return true
		}
	}
	return false
}
