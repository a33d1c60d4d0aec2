package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const telegramBaseURL = "https://api.telegram.org"

// Telegram sends events to one chat through the Bot API.
type Telegram struct {
	token      string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

// NewTelegram creates a Telegram notifier for the bot token and chat.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:      token,
		chatID:     chatID,
		baseURL:    telegramBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewTelegramWithBaseURL points the notifier at a custom API host (for testing).
func NewTelegramWithBaseURL(token, chatID, baseURL string) *Telegram {
	t := NewTelegram(token, chatID)
	t.baseURL = strings.TrimRight(baseURL, "/")
	return t
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (t *Telegram) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  ev.Text(),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshaling telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
