package hooks

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/techread/internal/auth"
	"github.com/danmuck/techread/internal/devserver"
	"github.com/danmuck/techread/internal/protocol"
	"github.com/danmuck/techread/internal/session"
	"github.com/danmuck/techread/internal/testutil/testlog"
	"github.com/google/uuid"
)

func TestHookMatches(t *testing.T) {
	testlog.Start(t)
	id := uuid.New()
	started := protocol.Message{RequestID: id, Type: protocol.MessageTypeProgress, Subtype: protocol.SubtypeProgressStarted}
	thumb := protocol.Message{RequestID: id, Type: protocol.MessageTypeAsk, Subtype: protocol.MessageSubtype(protocol.AskPageThumbnailKind)}

	cases := []struct {
		name string
		hook Hook
		msg  protocol.Message
		want bool
	}{
		{"catch all", Hook{}, started, true},
		{"type only", Hook{MessageType: protocol.MessageTypeProgress}, started, true},
		{"type mismatch", Hook{MessageType: protocol.MessageTypeError}, started, false},
		{"type and subtype", Hook{MessageType: protocol.MessageTypeProgress, MessageSubtype: protocol.SubtypeProgressStarted}, started, true},
		{"subtype mismatch", Hook{MessageType: protocol.MessageTypeProgress, MessageSubtype: protocol.SubtypeProgressCompleted}, started, false},
		{"ask match", Hook{Ask: protocol.AskPageThumbnail{}}, thumb, true},
		{"ask other kind", Hook{Ask: protocol.AskSheetThumbnail{}}, thumb, false},
		{"ask ignores progress", Hook{Ask: protocol.AskPageThumbnail{}}, started, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.hook.Matches(tc.msg); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestAsksDeduplicatesByKind(t *testing.T) {
	testlog.Start(t)
	first := protocol.AskPageThumbnail{ThumbnailLimits: protocol.ThumbnailLimits{MaxWidth: 100}}
	asks := Asks([]Hook{
		{Ask: first},
		{MessageType: protocol.MessageTypeProgress},
		{Ask: protocol.AskPageThumbnail{}},
		{Ask: protocol.AskVariantMeasures{}},
	})
	if len(asks) != 2 {
		t.Fatalf("expected 2 asks, got %d", len(asks))
	}
	if asks[0] != protocol.Ask(first) {
		t.Fatalf("expected first hook's ask to win, got %+v", asks[0])
	}
}

func TestDispatchOrderAndErrors(t *testing.T) {
	testlog.Start(t)
	msg := protocol.Message{RequestID: uuid.New(), Type: protocol.MessageTypeProgress, Subtype: protocol.SubtypeProgressStarted}
	var calls []string
	boom := errors.New("boom")
	hooks := []Hook{
		{Func: func(protocol.Message) error { calls = append(calls, "a"); return nil }},
		{MessageType: protocol.MessageTypeError, Func: func(protocol.Message) error { calls = append(calls, "skip"); return nil }},
		{MessageType: protocol.MessageTypeProgress, Func: func(protocol.Message) error { calls = append(calls, "b"); return boom }},
		{Func: func(protocol.Message) error { calls = append(calls, "c"); return nil }},
	}
	if err := Dispatch(hooks, msg); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if strings.Join(calls, ",") != "a,b" {
		t.Fatalf("expected a,b, got %v", calls)
	}
}

func openDevSession(t *testing.T, b devserver.Behavior) *session.Session {
	t.Helper()
	logger := testlog.Start(t)
	srv := devserver.New(devserver.Config{Validator: auth.StaticToken{Token: "tok"}, Behavior: b, Logger: logger})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	host := strings.TrimPrefix(ts.URL, "http://")

	client, err := session.NewClient(session.Config{
		ServerHTTPS:  host,
		ServerWSS:    host,
		SecurityMode: session.SecurityModeDevelopment,
		Tokens:       auth.Static("tok"),
		ReadTimeout:  5 * time.Second,
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	s, err := client.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReadDrawingDispatchesToHooks(t *testing.T) {
	s := openDevSession(t, devserver.Behavior{})

	var thumbs, dims, progress int
	hooks := []Hook{
		{Ask: protocol.AskPageThumbnail{}, Func: func(m protocol.Message) error {
			if len(m.PayloadBytes) == 0 {
				t.Errorf("expected resolved thumbnail bytes")
			}
			thumbs++
			return nil
		}},
		{Ask: protocol.AskPartOverallDimensions{}, Func: func(m protocol.Message) error {
			if m.PayloadDict["unit"] != "mm" {
				t.Errorf("expected dimensions in mm, got %+v", m.PayloadDict)
			}
			dims++
			return nil
		}},
		{MessageType: protocol.MessageTypeProgress, Func: func(protocol.Message) error { progress++; return nil }},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ReadDrawing(ctx, s, []byte("%PDF drawing"), hooks); err != nil {
		t.Fatalf("read drawing: %v", err)
	}
	if thumbs != 1 || dims != 1 || progress != 2 {
		t.Fatalf("unexpected hook calls thumbs=%d dims=%d progress=%d", thumbs, dims, progress)
	}
	if !s.Active() {
		t.Fatalf("expected session to stay open")
	}
}

func TestReadDrawingHookErrorClosesSession(t *testing.T) {
	s := openDevSession(t, devserver.Behavior{})
	stop := errors.New("stop")
	hooks := []Hook{{MessageType: protocol.MessageTypeProgress, MessageSubtype: protocol.SubtypeProgressStarted, Func: func(protocol.Message) error { return stop }}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ReadDrawing(ctx, s, []byte("%PDF drawing"), hooks); !errors.Is(err, stop) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if s.Active() {
		t.Fatalf("expected abandoned read to close the session")
	}
}

func TestReadDrawingRejection(t *testing.T) {
	s := openDevSession(t, devserver.Behavior{MaxDocumentBytes: 4})
	var rejected protocol.MessageSubtype
	hooks := []Hook{{MessageType: protocol.MessageTypeRejection, Func: func(m protocol.Message) error { rejected = m.Subtype; return nil }}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ReadDrawing(ctx, s, []byte("%PDF drawing"), hooks); err != nil {
		t.Fatalf("expected rejection delivered to hook, got %v", err)
	}
	if rejected != protocol.SubtypeRejectionPaperSizeLimitExceeded {
		t.Fatalf("expected paper size rejection, got %q", rejected)
	}
}
