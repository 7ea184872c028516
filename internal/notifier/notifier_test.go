package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/deusflow/aidigest/internal/retry"
)

var fastRetry = WithRetry(retry.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond})

func TestServerChanSendsForm(t *testing.T) {
	var gotPath, gotTitle, gotDesp string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotPath = r.URL.Path
		gotTitle = r.PostForm.Get("title")
		gotDesp = r.PostForm.Get("desp")
		fmt.Fprint(w, `{"code":0,"message":""}`)
	}))
	defer srv.Close()

	n, err := NewServerChan("SCTkey", WithBaseURL(srv.URL), fastRetry)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Send(context.Background(), "AI Daily Digest | 2025-06-10", "# body"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotPath != "/SCTkey.send" || gotTitle != "AI Daily Digest | 2025-06-10" || gotDesp != "# body" {
		t.Errorf("unexpected request path=%q title=%q desp=%q", gotPath, gotTitle, gotDesp)
	}
}

func TestServerChanRejectedPushIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"code":40001,"message":"bad sendkey"}`)
	}))
	defer srv.Close()

	n, _ := NewServerChan("bad", WithBaseURL(srv.URL), fastRetry)
	err := n.Send(context.Background(), "t", "b")
	if err == nil || !strings.Contains(err.Error(), "bad sendkey") {
		t.Fatalf("expected rejection error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestServerChanRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"code":0}`)
	}))
	defer srv.Close()

	n, _ := NewServerChan("k", WithBaseURL(srv.URL), fastRetry)
	if err := n.Send(context.Background(), "t", "b"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestServerChanRequiresKey(t *testing.T) {
	for _, key := range []string{"", "  ", "YOUR_SENDKEY"} {
		if _, err := NewServerChan(key); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestTelegramSplitsLongMessages(t *testing.T) {
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["chat_id"] != "42" {
			t.Errorf("unexpected chat id %v", payload["chat_id"])
		}
		texts = append(texts, payload["text"].(string))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	n, err := NewTelegram("TOKEN", "42", WithBaseURL(srv.URL), fastRetry)
	if err != nil {
		t.Fatal(err)
	}

	body := strings.Repeat(strings.Repeat("字", 99)+"\n", 100)
	if err := n.Send(context.Background(), "title", body); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(texts) < 3 {
		t.Fatalf("expected the message to be split, got %d parts", len(texts))
	}
	if !strings.HasPrefix(texts[0], "title\n\n") {
		t.Errorf("first part should start with the title")
	}
	for i, txt := range texts {
		if utf8.RuneCountInString(txt) > telegramMaxRunes {
			t.Errorf("part %d too long: %d runes", i, utf8.RuneCountInString(txt))
		}
	}
}

func TestTelegramClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n, _ := NewTelegram("T", "1", WithBaseURL(srv.URL), fastRetry)
	if err := n.Send(context.Background(), "t", "b"); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("4xx should not be retried, got %d calls", calls)
	}
}

func TestSplitMessageHardCutsLongLines(t *testing.T) {
	parts := splitMessage(strings.Repeat("a", 25), 10)
	if len(parts) != 3 || parts[0] != strings.Repeat("a", 10) || parts[2] != "aaaaa" {
		t.Errorf("unexpected parts %q", parts)
	}
}

func TestStdout(t *testing.T) {
	var buf bytes.Buffer
	if err := NewStdout(&buf).Send(context.Background(), "Title", "Body"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Title") || !strings.Contains(buf.String(), "Body") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestNewSelectsType(t *testing.T) {
	if _, err := New(Config{Type: "pigeon"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	n, err := New(Config{Type: "stdout"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(*Stdout); !ok {
		t.Errorf("expected *Stdout, got %T", n)
	}
	if _, err := New(Config{Type: "telegram"}); err == nil {
		t.Error("telegram without credentials should fail")
	}
}
