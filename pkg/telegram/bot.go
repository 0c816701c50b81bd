package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Bot struct {
	baseURL string
	client  *http.Client
}

func NewBot(token string) *Bot {
	return NewBotWithURL("https://api.telegram.org/bot"+token, &http.Client{Timeout: 10 * time.Second})
}

func NewBotWithURL(baseURL string, client *http.Client) *Bot {
	return &Bot{
		baseURL: baseURL,
		client:  client,
	}
}

func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	endpoint := b.baseURL + "/sendMessage"

	params := url.Values{}
	params.Add("chat_id", chatID)
	params.Add("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: %s", resp.Status)
	}

	return nil
}
