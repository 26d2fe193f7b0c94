package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tubewatch/internal/eventbus"
	"tubewatch/internal/scheduler"
	"tubewatch/internal/search"
	"tubewatch/internal/storage"
	kit "tubewatch/internal/transport"
	logx "tubewatch/pkg/logx"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	chats []int64
}

func (r *recordingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	r.chats = append(r.chats, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.texts)}, nil
}

func (r *recordingSender) last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		t.Fatal("no reply sent")
	}
	return r.texts[len(r.texts)-1]
}

type nullBroadcaster struct{}

func (nullBroadcaster) Broadcast(ctx context.Context, text string) (int, int) { return 1, 0 }

type idleSearcher struct{}

func (idleSearcher) SearchAll(ctx context.Context, topics, languages, regions []string) []search.Video {
	return nil
}

type idleCaster struct{}

func (idleCaster) BroadcastVideo(ctx context.Context, v search.Video) (int, int) { return 0, 0 }

type idleLedger struct{}

func (idleLedger) Append(rec storage.SeenRecord)  {}
func (idleLedger) Prune(maxAge time.Duration) int { return 0 }
func (idleLedger) Len() int                       { return 0 }

func newTestRouter(t *testing.T, opts Options) (*Router, *recordingSender, *storage.Registry) {
	t.Helper()
	reg, err := storage.OpenRegistry(filepath.Join(t.TempDir(), "users.json"), 0, logx.Nop())
	if err != nil {
		t.Fatalf("OpenRegistry error: %v", err)
	}
	coord := scheduler.New(idleSearcher{}, idleCaster{}, idleLedger{}, nil, scheduler.Settings{
		Interval: time.Minute,
		Topics:   opts.Topics,
		Quiet:    scheduler.Window{},
	}, logx.Nop())
	sender := &recordingSender{}
	r := New(sender, reg, coord, nullBroadcaster{}, eventbus.New(), func() Options { return opts }, logx.Nop())
	return r, sender, reg
}

func msg(userID int64, text string) *kit.Message {
	return &kit.Message{ID: 1, ChatID: userID, FromID: userID, FromUsername: "alice", FirstName: "Alice", Text: text}
}

func defaultOptions() Options {
	return Options{
		AdminIDs:         []int64{999},
		RegistrationOpen: true,
		Topics:           []string{"golang"},
		Languages:        []string{"en"},
		Regions:          []string{"US"},
		Interval:         30 * time.Minute,
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw      string
		wantCmd  string
		wantArgs string
	}{
		{raw: "/start", wantCmd: "/start"},
		{raw: "/START", wantCmd: "/start"},
		{raw: "/help@tubewatch_bot", wantCmd: "/help"},
		{raw: "/admin_broadcast hello world", wantCmd: "/admin_broadcast", wantArgs: "hello world"},
		{raw: "plain text", wantCmd: "plain", wantArgs: "text"},
	}
	for _, tt := range tests {
		cmd, args := splitCommand(tt.raw)
		if cmd != tt.wantCmd || args != tt.wantArgs {
			t.Fatalf("splitCommand(%q) = %q, %q; want %q, %q", tt.raw, cmd, args, tt.wantCmd, tt.wantArgs)
		}
	}
}

func TestRegisterFlow(t *testing.T) {
	t.Parallel()
	r, sender, reg := newTestRouter(t, defaultOptions())
	ctx := context.Background()

	r.handle(ctx, msg(42, "/register"))
	if got := sender.last(t); !strings.Contains(got, "Registration complete") {
		t.Fatalf("first register reply: %q", got)
	}
	if _, ok := reg.Get(42); !ok {
		t.Fatal("recipient not stored after /register")
	}

	r.handle(ctx, msg(42, "/register"))
	if got := sender.last(t); !strings.Contains(got, "already registered") {
		t.Fatalf("duplicate register reply: %q", got)
	}
}

func TestRegisterClosed(t *testing.T) {
	t.Parallel()
	opts := defaultOptions()
	opts.RegistrationOpen = false
	r, sender, reg := newTestRouter(t, opts)

	r.handle(context.Background(), msg(42, "/register"))
	if got := sender.last(t); !strings.Contains(got, "disabled") {
		t.Fatalf("closed register reply: %q", got)
	}
	if _, ok := reg.Get(42); ok {
		t.Fatal("recipient stored despite closed registration")
	}
}

func TestUnregister(t *testing.T) {
	t.Parallel()
	r, sender, reg := newTestRouter(t, defaultOptions())
	ctx := context.Background()

	r.handle(ctx, msg(42, "/register"))
	r.handle(ctx, msg(42, "/unregister"))
	if got := sender.last(t); !strings.Contains(got, "Unsubscribed") {
		t.Fatalf("unregister reply: %q", got)
	}
	if _, ok := reg.Get(42); ok {
		t.Fatal("recipient still stored after /unregister")
	}

	r.handle(ctx, msg(42, "/unregister"))
	if got := sender.last(t); !strings.Contains(got, "not registered") {
		t.Fatalf("second unregister reply: %q", got)
	}
}

func TestNotificationsToggle(t *testing.T) {
	t.Parallel()
	r, sender, _ := newTestRouter(t, defaultOptions())
	ctx := context.Background()

	r.handle(ctx, msg(42, "/register"))
	r.handle(ctx, msg(42, "/notifications"))
	if got := sender.last(t); !strings.Contains(got, "Notifications off") {
		t.Fatalf("first toggle reply: %q", got)
	}
	r.handle(ctx, msg(42, "/notifications"))
	if got := sender.last(t); !strings.Contains(got, "Notifications on") {
		t.Fatalf("second toggle reply: %q", got)
	}
}

func TestAdminGate(t *testing.T) {
	t.Parallel()
	r, sender, _ := newTestRouter(t, defaultOptions())
	ctx := context.Background()

	r.handle(ctx, msg(42, "/admin_stats"))
	if got := sender.last(t); !strings.Contains(got, "restricted") {
		t.Fatalf("non-admin reply: %q", got)
	}

	r.handle(ctx, msg(999, "/admin_stats"))
	if got := sender.last(t); !strings.Contains(got, "Admin stats") {
		t.Fatalf("admin reply: %q", got)
	}
}

func TestAdminBroadcast(t *testing.T) {
	t.Parallel()
	r, sender, _ := newTestRouter(t, defaultOptions())
	ctx := context.Background()

	r.handle(ctx, msg(999, "/admin_broadcast"))
	if got := sender.last(t); !strings.Contains(got, "Usage:") {
		t.Fatalf("empty broadcast reply: %q", got)
	}

	r.handle(ctx, msg(999, "/admin_broadcast maintenance tonight"))
	if got := sender.last(t); !strings.Contains(got, "delivered 1") {
		t.Fatalf("broadcast reply: %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()
	r, sender, _ := newTestRouter(t, defaultOptions())

	r.handle(context.Background(), msg(42, "/bogus"))
	if got := sender.last(t); !strings.Contains(got, "/help") {
		t.Fatalf("unknown command reply: %q", got)
	}
}

func TestSearchCommandReportsQuietHours(t *testing.T) {
	t.Parallel()
	reg, err := storage.OpenRegistry(filepath.Join(t.TempDir(), "users.json"), 0, logx.Nop())
	if err != nil {
		t.Fatalf("OpenRegistry error: %v", err)
	}
	coord := scheduler.New(idleSearcher{}, idleCaster{}, idleLedger{}, nil, scheduler.Settings{
		Interval: time.Minute,
		Quiet:    scheduler.Window{Start: 0, End: 24*60 - 1, Enabled: true},
	}, logx.Nop())
	sender := &recordingSender{}
	opts := defaultOptions()
	r := New(sender, reg, coord, nullBroadcaster{}, eventbus.New(), func() Options { return opts }, logx.Nop())

	r.handle(context.Background(), msg(42, "/search"))
	if got := sender.last(t); !strings.Contains(got, "Quiet hours") {
		t.Fatalf("quiet hours reply: %q", got)
	}
}

func TestRunConsumesUpdates(t *testing.T) {
	t.Parallel()
	r, sender, _ := newTestRouter(t, defaultOptions())

	updates := make(chan kit.Update, 2)
	updates <- kit.Update{Message: msg(42, "/help")}
	updates <- kit.Update{} // nil message is skipped
	close(updates)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(context.Background(), updates)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}

	if got := sender.last(t); !strings.Contains(got, "Help") {
		t.Fatalf("help reply: %q", got)
	}
}
