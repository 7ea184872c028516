package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/retry"
)

// ErrUnknownType is returned by New for an unsupported notifier type.
var ErrUnknownType = errors.New("notifier: unknown type")

// Notifier pushes a titled Markdown message somewhere.
type Notifier interface {
	Send(ctx context.Context, title, markdown string) error
}

type Config struct {
	Type           string
	ServerChanKey  string
	TelegramToken  string
	TelegramChatID string
}

// New builds the notifier named by cfg.Type.
func New(cfg Config, opts ...Option) (Notifier, error) {
	switch strings.ToLower(cfg.Type) {
	case "serverchan", "":
		return NewServerChan(cfg.ServerChanKey, opts...)
	case "telegram":
		return NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, opts...)
	case "stdout":
		return NewStdout(os.Stdout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
}

type options struct {
	baseURL string
	client  *http.Client
	retry   retry.RetryConfig
}

type Option func(*options)

// WithBaseURL points the notifier at a different API host.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

func WithRetry(cfg retry.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

func buildOptions(defaultBase string, timeout time.Duration, opts []Option) options {
	o := options{
		baseURL: defaultBase,
		client:  &http.Client{Timeout: timeout},
		retry:   retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// statusError classifies a non-2xx response for retry.
func statusError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s API error: status %d: %s", service, resp.StatusCode, strings.TrimSpace(string(body)))
	if retry.HTTPStatusRetryable(resp.StatusCode) {
		return err
	}
	return retry.Permanent(err)
}

// Stdout prints the message, for dry runs.
type Stdout struct {
	w io.Writer
}

func NewStdout(w io.Writer) *Stdout {
	return &Stdout{w: w}
}

func (s *Stdout) Send(_ context.Context, title, markdown string) error {
	line := strings.Repeat("=", 72)
	_, err := fmt.Fprintf(s.w, "%s\n%s\n%s\n\n%s\n", line, title, line, markdown)
	return err
}
