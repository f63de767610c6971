package telegram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/noralunch/nora/pkg/logger"
)

const (
	botUser     = `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"nora","username":"norabot"}}`
	rateLimited = `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`
	delivered   = `{"ok":true,"result":{"message_id":42,"chat":{"id":99,"type":"private"}}}`
	chatGone    = `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
)

// fakeAPI serves scripted sendMessage responses in order, counting the
// attempts. getMe is always answered so the client can boot.
type fakeAPI struct {
	mu        sync.Mutex
	responses []string
	attempts  int
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if strings.HasSuffix(r.URL.Path, "/getMe") {
		w.Write([]byte(botUser))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	f.attempts++
	w.Write([]byte(resp))
}

func (f *fakeAPI) sendAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func newTestGateway(t *testing.T, responses ...string) (*Gateway, *fakeAPI, *[]time.Duration) {
	t.Helper()

	f := &fakeAPI{responses: responses}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint("test-token", srv.URL+"/bot%s/%s")
	if err != nil {
		t.Fatalf("failed to create bot API: %v", err)
	}

	var slept []time.Duration
	g := &Gateway{
		api:    api,
		logger: logger.New("telegram"),
		sleep:  func(d time.Duration) { slept = append(slept, d) },
	}
	return g, f, &slept
}

func TestSendRetriesOnceAfterRateLimit(t *testing.T) {
	g, f, slept := newTestGateway(t, rateLimited, delivered)

	channel, handle, err := g.Send("99", "lunch time", "")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := f.sendAttempts(); got != 2 {
		t.Errorf("attempts = %d, want 2 (one retry)", got)
	}
	if len(*slept) != 1 || (*slept)[0] != 3*time.Second {
		t.Errorf("slept = %v, want the server-specified 3s once", *slept)
	}
	if channel != "99" || handle != "42" {
		t.Errorf("handles = %q/%q, want 99/42", channel, handle)
	}
}

func TestSendSecondRateLimitIsPermanent(t *testing.T) {
	g, f, slept := newTestGateway(t, rateLimited, rateLimited)

	channel, handle, err := g.Send("99", "lunch time", "")
	if err == nil {
		t.Fatal("expected an error after two rate limits")
	}

	if got := f.sendAttempts(); got != 2 {
		t.Errorf("attempts = %d, want exactly 2 (never a third)", got)
	}
	if len(*slept) != 1 {
		t.Errorf("slept %d times, want 1", len(*slept))
	}
	if channel != "" || handle != "" {
		t.Errorf("failed send must return empty handles, got %q/%q", channel, handle)
	}
}

func TestSendOtherFailureIsNotRetried(t *testing.T) {
	g, f, slept := newTestGateway(t, chatGone)

	channel, handle, err := g.Send("99", "lunch time", "")
	if err == nil {
		t.Fatal("expected an error")
	}

	if got := f.sendAttempts(); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry without retry_after)", got)
	}
	if len(*slept) != 0 {
		t.Errorf("slept = %v, want none", *slept)
	}
	if channel != "" || handle != "" {
		t.Errorf("failed send must return empty handles, got %q/%q", channel, handle)
	}
}
