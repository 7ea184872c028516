package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/retry"
)

const serverChanBaseURL = "https://sctapi.ftqq.com"

// ServerChan pushes to WeChat through the ServerChan Turbo API.
type ServerChan struct {
	sendKey string
	opts    options
}

func NewServerChan(sendKey string, opts ...Option) (*ServerChan, error) {
	sendKey = strings.TrimSpace(sendKey)
	if sendKey == "" || sendKey == "YOUR_SENDKEY" {
		return nil, errors.New("serverchan: sendkey is not configured")
	}
	return &ServerChan{
		sendKey: sendKey,
		opts:    buildOptions(serverChanBaseURL, 10*time.Second, opts),
	}, nil
}

type serverChanResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *ServerChan) Send(ctx context.Context, title, markdown string) error {
	err := retry.WithRetry(ctx, s.opts.retry, func() error {
		return s.sendOnce(ctx, title, markdown)
	})
	if err != nil {
		return fmt.Errorf("serverchan: %w", err)
	}
	logger.Info("digest pushed", "notifier", "serverchan")
	return nil
}

func (s *ServerChan) sendOnce(ctx context.Context, title, markdown string) error {
	form := url.Values{}
	form.Set("title", title)
	form.Set("desp", markdown)

	endpoint := fmt.Sprintf("%s/%s.send", s.opts.baseURL, s.sendKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.opts.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("serverchan", resp)
	}

	var result serverChanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Code != 0 {
		return retry.Permanent(fmt.Errorf("push rejected: code %d: %s", result.Code, result.Message))
	}
	return nil
}
