package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/retry"
)

const (
	telegramBaseURL = "https://api.telegram.org"
	// Telegram rejects messages longer than 4096 characters.
	telegramMaxRunes = 4000
)

// Telegram sends the digest as one or more plain-text messages.
type Telegram struct {
	token  string
	chatID string
	opts   options
}

func NewTelegram(token, chatID string, opts ...Option) (*Telegram, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(chatID) == "" {
		return nil, errors.New("telegram: token and chat_id are required")
	}
	return &Telegram{
		token:  token,
		chatID: chatID,
		opts:   buildOptions(telegramBaseURL, 30*time.Second, opts),
	}, nil
}

func (t *Telegram) Send(ctx context.Context, title, markdown string) error {
	chunks := splitMessage(title+"\n\n"+markdown, telegramMaxRunes)
	for i, chunk := range chunks {
		err := retry.WithRetry(ctx, t.opts.retry, func() error {
			return t.sendMessageOnce(ctx, chunk)
		})
		if err != nil {
			return fmt.Errorf("telegram: part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	logger.Info("digest pushed", "notifier", "telegram", "parts", len(chunks))
	return nil
}

// sendMessageOnce does one try to send one message.
func (t *Telegram) sendMessageOnce(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.opts.baseURL, t.token)

	payload := map[string]interface{}{
		"chat_id":                  t.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("error make JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.opts.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("telegram", resp)
	}
	return nil
}

// splitMessage cuts text into parts of at most max runes, preferring line
// breaks.
func splitMessage(text string, max int) []string {
	var parts []string
	var cur strings.Builder
	curRunes := 0

	flush := func() {
		if s := strings.TrimRight(cur.String(), "\n"); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
		curRunes = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		r := []rune(line)
		for len(r) > max {
			flush()
			parts = append(parts, string(r[:max]))
			r = r[max:]
		}
		if curRunes+len(r) > max {
			flush()
		}
		cur.WriteString(string(r))
		curRunes += len(r)
	}
	flush()
	return parts
}
