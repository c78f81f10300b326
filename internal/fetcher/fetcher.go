package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go-telegram-relay-bot/internal/config"
	"go-telegram-relay-bot/internal/utils"

	"go.uber.org/zap"
)

// maxBodySize bounds remote payloads (denylist, templates). Anything
// larger is cut off rather than buffered wholesale.
const maxBodySize = 1 << 20

// FailureAlerter hears about fetch outcomes so persistent failures of a
// remote source reach the operator. A nil alerter disables reporting.
type FailureAlerter interface {
	OnFetchFailure(ctx context.Context, source string, err error)
	OnFetchSuccess(source string)
}

// Fetcher retrieves plain-text payloads from remote sources: the greeting,
// the notification template and the fraud denylist.
type Fetcher struct {
	client  *http.Client
	alerter FailureAlerter
	logger  *zap.Logger
}

func New(cfg *config.Config, alerter FailureAlerter, logger *zap.Logger) (*Fetcher, error) {
	client, err := utils.CreateHTTPClientWithProxy(&cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	client.Timeout = cfg.Fetch.Timeout()

	return &Fetcher{client: client, alerter: alerter, logger: logger}, nil
}

// FetchText performs a GET and returns the body as a string.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %q: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %q: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body of %q: %w", url, err)
	}
	return string(body), nil
}

// FetchTextOrFallback degrades to the fallback when the URL is unset or the
// fetch fails. Failures are logged and reported to the alerter, never
// propagated; the denylist path reports through its own checker instead.
func (f *Fetcher) FetchTextOrFallback(ctx context.Context, url, fallback string) string {
	if url == "" {
		return fallback
	}
	text, err := f.FetchText(ctx, url)
	if err != nil {
		f.logger.Warn("Remote text fetch failed, using fallback",
			zap.String("url", url),
			zap.Error(err))
		if f.alerter != nil {
			f.alerter.OnFetchFailure(ctx, url, err)
		}
		return fallback
	}
	if f.alerter != nil {
		f.alerter.OnFetchSuccess(url)
	}
	return text
}
