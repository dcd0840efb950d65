package notifications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	levels   []string
	messages []string
	err      error
}

func (r *recordingNotifier) SendAlert(level, message string) error {
	r.levels = append(r.levels, level)
	r.messages = append(r.messages, message)
	return r.err
}

func TestMultiFansOutToEveryNotifier(t *testing.T) {
	first := &recordingNotifier{err: fmt.Errorf("down")}
	second := &recordingNotifier{}
	m := Multi{first, second}

	err := m.SendAlert(LevelInfo, "hello")
	assert.EqualError(t, err, "down")

	// the failure does not stop the fan-out
	assert.Equal(t, []string{"hello"}, first.messages)
	assert.Equal(t, []string{"hello"}, second.messages)
}

func TestWebhookPostsJSONPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	require.NoError(t, n.SendAlert(LevelWarning, "breaker tripped"))

	assert.Equal(t, "equity-agent", got.Source)
	assert.Equal(t, LevelWarning, got.Level)
	assert.Equal(t, "breaker tripped", got.Message)
}

func TestWebhookRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	assert.Error(t, n.SendAlert(LevelInfo, "hello"))
}

func TestTradeClosedMessage(t *testing.T) {
	win := TradeClosed("AAPL", "TAKE_PROFIT", 40)
	assert.Contains(t, win, "AAPL")
	assert.Contains(t, win, "TAKE_PROFIT")
	assert.Contains(t, win, "profit: $40.00")

	loss := TradeClosed("MSFT", "STOP_LOSS", -30)
	assert.Contains(t, loss, "loss: $-30.00")
}

func TestDailySummaryMessage(t *testing.T) {
	msg := DailySummary("2025-06-02", 10000, 10040, 30, 3)
	assert.Contains(t, msg, "2025-06-02")
	assert.Contains(t, msg, "$10000.00 -> $10040.00")
	assert.Contains(t, msg, "(+0.40%)")
	assert.Contains(t, msg, "Entries: 3")

	// a zero starting equity never divides
	assert.Contains(t, DailySummary("2025-06-02", 0, 100, 0, 0), "(+0.00%)")
}

func TestBreakerAndProfileMessages(t *testing.T) {
	assert.Contains(t, BreakerTripped("AAPL"), "AAPL")
	msg := ProfileSwitched("moderate", "aggressive", "winning window")
	assert.Contains(t, msg, "moderate -> aggressive")
	assert.Contains(t, msg, "winning window")
}
