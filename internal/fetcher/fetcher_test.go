package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-telegram-relay-bot/internal/config"

	"go.uber.org/zap"
)

type recordingAlerter struct {
	failures  int
	successes int
}

func (a *recordingAlerter) OnFetchFailure(ctx context.Context, source string, err error) {
	a.failures++
}

func (a *recordingAlerter) OnFetchSuccess(source string) {
	a.successes++
}

func newTestFetcher(t *testing.T, alerter FailureAlerter) *Fetcher {
	t.Helper()
	cfg := &config.Config{
		Fetch: config.FetchConfig{TimeoutSeconds: 5},
	}
	f, err := New(cfg, alerter, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return f
}

func TestFetchTextOrFallback_FailureReportsAndFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	alerter := &recordingAlerter{}
	f := newTestFetcher(t, alerter)

	got := f.FetchTextOrFallback(context.Background(), server.URL, "fallback")
	if got != "fallback" {
		t.Fatalf("Expected fallback, got %q", got)
	}
	if alerter.failures != 1 {
		t.Fatalf("Failure must be reported once, got %d", alerter.failures)
	}
	if alerter.successes != 0 {
		t.Fatalf("No success should be reported, got %d", alerter.successes)
	}
}

func TestFetchTextOrFallback_SuccessReports(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote text"))
	}))
	defer server.Close()

	alerter := &recordingAlerter{}
	f := newTestFetcher(t, alerter)

	got := f.FetchTextOrFallback(context.Background(), server.URL, "fallback")
	if got != "remote text" {
		t.Fatalf("Expected remote body, got %q", got)
	}
	if alerter.successes != 1 {
		t.Fatalf("Success must be reported once, got %d", alerter.successes)
	}
}

func TestFetchTextOrFallback_EmptyURLStaysSilent(t *testing.T) {
	alerter := &recordingAlerter{}
	f := newTestFetcher(t, alerter)

	got := f.FetchTextOrFallback(context.Background(), "", "fallback")
	if got != "fallback" {
		t.Fatalf("Expected fallback, got %q", got)
	}
	if alerter.failures != 0 || alerter.successes != 0 {
		t.Fatal("An unset URL must not touch the alerter")
	}
}
