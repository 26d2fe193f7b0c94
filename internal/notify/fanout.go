package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tubewatch/internal/search"
	"tubewatch/internal/storage"
	kit "tubewatch/internal/transport"
	logx "tubewatch/pkg/logx"
)

// DefaultRatePerSec paces sequential sends so the transport's flood limits
// are never hit (10/s is roughly one send per 100ms).
const DefaultRatePerSec = 10

// Sender is the outbound half of the transport adapter.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// recipients is the registry surface the fanout needs.
type recipients interface {
	FanoutTargets(adminIDs []int64, fixedChatID int64) []int64
	Deactivate(userID int64) error
}

// Targets is the config-owned part of fanout resolution.
type Targets struct {
	AdminIDs    []int64
	FixedChatID int64
}

// Fanout delivers one message to every resolved recipient, sequentially and
// rate limited. Failures are classified: a permanent rejection deactivates
// the recipient so future cycles skip it; a transient error is only counted.
// Partial success is success; the caller decides what to do with the counts.
type Fanout struct {
	sender Sender
	reg    recipients
	audit  storage.AuditStore
	log    logx.Logger

	mu      sync.RWMutex
	targets Targets
	limiter *rate.Limiter
}

func NewFanout(sender Sender, reg recipients, audit storage.AuditStore, targets Targets, ratePerSec int, log logx.Logger) *Fanout {
	if ratePerSec <= 0 {
		ratePerSec = DefaultRatePerSec
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fanout{
		sender:  sender,
		reg:     reg,
		audit:   audit,
		log:     log,
		targets: targets,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// SetTargets swaps the config-owned target set (hot reload).
func (f *Fanout) SetTargets(t Targets) {
	f.mu.Lock()
	f.targets = t
	f.mu.Unlock()
}

// SetRate swaps the send pacing (hot reload).
func (f *Fanout) SetRate(perSec int) {
	if perSec <= 0 {
		perSec = DefaultRatePerSec
	}
	f.mu.Lock()
	f.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	f.mu.Unlock()
}

func (f *Fanout) snapshot() (Targets, *rate.Limiter) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.targets, f.limiter
}

// BroadcastVideo formats and delivers one found video, recording the outcome
// in the audit store.
func (f *Fanout) BroadcastVideo(ctx context.Context, v search.Video) (delivered, failed int) {
	start := time.Now()
	delivered, failed = f.Broadcast(ctx, FormatVideo(v))
	f.appendAudit(ctx, storage.BroadcastAudit{
		Kind:      "video",
		VideoID:   v.ID,
		Title:     v.Title,
		Delivered: delivered,
		Failed:    failed,
		TookMS:    time.Since(start).Milliseconds(),
	})
	return delivered, failed
}

// Broadcast resolves the fanout targets and sends text to each one.
func (f *Fanout) Broadcast(ctx context.Context, text string) (delivered, failed int) {
	targets, limiter := f.snapshot()
	ids := f.reg.FanoutTargets(targets.AdminIDs, targets.FixedChatID)
	return f.sendAll(ctx, ids, text, limiter)
}

// NotifyAdmins sends text to the configured admin ids only (startup and
// shutdown notices, registration alerts).
func (f *Fanout) NotifyAdmins(ctx context.Context, text string) (delivered, failed int) {
	targets, limiter := f.snapshot()
	seen := make(map[int64]struct{}, len(targets.AdminIDs))
	ids := make([]int64, 0, len(targets.AdminIDs))
	for _, id := range targets.AdminIDs {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return f.sendAll(ctx, ids, text, limiter)
}

func (f *Fanout) sendAll(ctx context.Context, ids []int64, text string, limiter *rate.Limiter) (delivered, failed int) {
	opt := &kit.SendOptions{ParseMode: "Markdown", DisablePreview: false}

	for _, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			// Context gone; everything not yet attempted counts as failed.
			failed += len(ids) - delivered - failed
			break
		}

		_, err := f.sender.SendText(ctx, kit.ChatTarget{ChatID: id}, text, opt)
		if err == nil {
			delivered++
			continue
		}
		failed++

		if errors.Is(err, kit.ErrRecipientGone) {
			f.log.Info("recipient unreachable; deactivating", logx.Int64("chat_id", id), logx.Err(err))
			if derr := f.reg.Deactivate(id); derr != nil && !errors.Is(derr, storage.ErrNotRegistered) {
				f.log.Warn("deactivate failed", logx.Int64("chat_id", id), logx.Err(derr))
			}
			continue
		}
		f.log.Warn("delivery failed", logx.Int64("chat_id", id), logx.Err(err))
	}

	f.log.Debug("broadcast done", logx.Int("targets", len(ids)), logx.Int("delivered", delivered), logx.Int("failed", failed))
	return delivered, failed
}

func (f *Fanout) appendAudit(ctx context.Context, e storage.BroadcastAudit) {
	if f.audit == nil {
		return
	}
	if err := f.audit.Append(ctx, e); err != nil {
		f.log.Debug("audit append failed", logx.Err(err))
	}
}
