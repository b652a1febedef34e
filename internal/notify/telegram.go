package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/didinska21/wallet-hunter/internal/retry"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramTransport sends messages through the Telegram Bot API. The bot
// token only ever appears in the request URL, never in logs or errors.
type TelegramTransport struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

func NewTelegram(botToken, chatID string) *TelegramTransport {
	return &TelegramTransport{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramTransport) Name() string { return "telegram" }

// Recipient identifies the destination for rate limiting.
func (t *TelegramTransport) Recipient() string { return t.chatID }

func (t *TelegramTransport) Send(ctx context.Context, msg Message) error {
	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {msg.Text},
		"parse_mode": {"HTML"},
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return retry.Terminal(fmt.Errorf("create telegram request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("send telegram message: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Transient(fmt.Errorf("telegram api status %d", resp.StatusCode))
	default:
		return retry.Terminal(fmt.Errorf("telegram api status %d", resp.StatusCode))
	}
}
