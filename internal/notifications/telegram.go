package notifications

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TelegramNotifier posts alerts to a Telegram chat through the Bot API.
// Credentials are injected by the caller; they come from the environment,
// never from configuration files.
type TelegramNotifier struct {
	token    string
	chatID   string
	strategy string
	client   *http.Client
}

func NewTelegramNotifier(token, chatID, strategy string) *TelegramNotifier {
	return &TelegramNotifier{
		token:    token,
		chatID:   chatID,
		strategy: strategy,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) SendAlert(level, message string) error {
	text := fmt.Sprintf("%s *Equity Agent* `%s`\n\n%s", levelEmoji(level), t.strategy, message)

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", text)
	data.Set("parse_mode", "Markdown")

	resp, err := t.client.PostForm(apiURL, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

func levelEmoji(level string) string {
	switch level {
	case LevelWarning:
		return "⚠️"
	case LevelError:
		return "🚨"
	case LevelSuccess:
		return "✅"
	default:
		return "ℹ️"
	}
}
