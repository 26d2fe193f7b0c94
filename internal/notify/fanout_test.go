package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tubewatch/internal/search"
	"tubewatch/internal/storage"
	kit "tubewatch/internal/transport"
	logx "tubewatch/pkg/logx"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []int64
	errFor map[int64]error
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to.ChatID)
	if err := f.errFor[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

type fakeRecipients struct {
	mu          sync.Mutex
	targets     []int64
	deactivated []int64
}

func (f *fakeRecipients) FanoutTargets(adminIDs []int64, fixedChatID int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.targets))
	for _, id := range f.targets {
		skip := false
		for _, d := range f.deactivated {
			if d == id {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, id)
		}
	}
	return out
}

func (f *fakeRecipients) Deactivate(userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, userID)
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []storage.BroadcastAudit
}

func (f *fakeAudit) Append(ctx context.Context, e storage.BroadcastAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) Close() error { return nil }

func TestBroadcastPartialSuccess(t *testing.T) {
	t.Parallel()
	gone := errors.Join(kit.ErrRecipientGone, errors.New("blocked"))
	sender := &fakeSender{errFor: map[int64]error{20: gone}}
	reg := &fakeRecipients{targets: []int64{10, 20, 30}}
	fan := NewFanout(sender, reg, nil, Targets{}, 1000, logx.Nop())

	delivered, failed := fan.Broadcast(context.Background(), "hello")
	if delivered != 2 || failed != 1 {
		t.Fatalf("delivered=%d failed=%d, want 2 and 1", delivered, failed)
	}

	// The permanent failure deactivated the recipient, so the next resolve
	// excludes it.
	reg.mu.Lock()
	deact := append([]int64(nil), reg.deactivated...)
	reg.mu.Unlock()
	if len(deact) != 1 || deact[0] != 20 {
		t.Fatalf("deactivated = %v, want [20]", deact)
	}

	delivered, failed = fan.Broadcast(context.Background(), "again")
	if delivered != 2 || failed != 0 {
		t.Fatalf("second broadcast delivered=%d failed=%d, want 2 and 0", delivered, failed)
	}
}

func TestBroadcastTransientErrorKeepsRecipient(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{errFor: map[int64]error{10: errors.New("timeout")}}
	reg := &fakeRecipients{targets: []int64{10, 20}}
	fan := NewFanout(sender, reg, nil, Targets{}, 1000, logx.Nop())

	delivered, failed := fan.Broadcast(context.Background(), "hello")
	if delivered != 1 || failed != 1 {
		t.Fatalf("delivered=%d failed=%d, want 1 and 1", delivered, failed)
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(reg.deactivated) != 0 {
		t.Fatalf("transient error deactivated recipients: %v", reg.deactivated)
	}
}

func TestBroadcastVideoAudits(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	reg := &fakeRecipients{targets: []int64{10}}
	audit := &fakeAudit{}
	fan := NewFanout(sender, reg, audit, Targets{}, 1000, logx.Nop())

	fan.BroadcastVideo(context.Background(), search.Video{ID: "vid", Title: "T", Score: 5})

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	e := audit.entries[0]
	if e.Kind != "video" || e.VideoID != "vid" || e.Delivered != 1 || e.Failed != 0 {
		t.Fatalf("unexpected audit entry: %+v", e)
	}
}

func TestNotifyAdminsDedups(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	reg := &fakeRecipients{targets: []int64{99}} // must NOT receive admin notices
	fan := NewFanout(sender, reg, nil, Targets{AdminIDs: []int64{5, 5, 0, 6}}, 1000, logx.Nop())

	delivered, failed := fan.NotifyAdmins(context.Background(), "ping")
	if delivered != 2 || failed != 0 {
		t.Fatalf("delivered=%d failed=%d, want 2 and 0", delivered, failed)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 2 || sender.sent[0] != 5 || sender.sent[1] != 6 {
		t.Fatalf("admin sends = %v, want [5 6]", sender.sent)
	}
}

func TestBroadcastCanceledContext(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	reg := &fakeRecipients{targets: []int64{10, 20, 30}}
	fan := NewFanout(sender, reg, nil, Targets{}, 1000, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered, failed := fan.Broadcast(ctx, "hello")
	if delivered != 0 || failed != 3 {
		t.Fatalf("delivered=%d failed=%d, want 0 and 3 on canceled context", delivered, failed)
	}
}
