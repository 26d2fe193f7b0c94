package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tubewatch/internal/eventbus"
	"tubewatch/internal/scheduler"
	"tubewatch/internal/storage"
	kit "tubewatch/internal/transport"
	logx "tubewatch/pkg/logx"
)

// Options is the config-owned slice of command behavior (hot reloadable).
type Options struct {
	AdminIDs         []int64
	RegistrationOpen bool
	Topics           []string
	Languages        []string
	Regions          []string
	Interval         time.Duration
}

// Broadcaster is the admin-broadcast surface of the fanout engine.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (delivered, failed int)
}

// Sender is the slice of the transport adapter the router needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Router dispatches chat commands from the transport update stream. It is the
// front end of the pipeline: registration, preference toggles, status, and
// the on-demand search trigger all live here.
type Router struct {
	sender Sender
	reg    *storage.Registry
	coord  *scheduler.Coordinator
	cast   Broadcaster
	bus    eventbus.Bus
	log    logx.Logger

	optsFn func() Options
}

// New builds a router. optsFn is called per update so hot-reloaded config
// takes effect without rewiring.
func New(sender Sender, reg *storage.Registry, coord *scheduler.Coordinator, cast Broadcaster, bus eventbus.Bus, optsFn func() Options, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		sender: sender,
		reg:    reg,
		coord:  coord,
		cast:   cast,
		bus:    bus,
		log:    log,
		optsFn: optsFn,
	}
}

// Run consumes updates until ctx is done or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Message == nil {
				continue
			}
			r.handle(ctx, up.Message)
		}
	}
}

func (r *Router) handle(ctx context.Context, m *kit.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	cmd, args := splitCommand(text)

	// Any interaction counts as activity.
	r.reg.Touch(m.FromID)

	opts := r.optsFn()
	isAdmin := containsID(opts.AdminIDs, m.FromID)

	switch cmd {
	case "/start":
		r.cmdStart(ctx, m, opts)
	case "/help":
		r.reply(ctx, m, helpText(opts))
	case "/register":
		r.cmdRegister(ctx, m, opts)
	case "/unregister":
		r.cmdUnregister(ctx, m)
	case "/settings":
		r.cmdSettings(ctx, m)
	case "/notifications":
		r.cmdNotifications(ctx, m)
	case "/status":
		r.cmdStatus(ctx, m, opts)
	case "/keywords":
		r.cmdKeywords(ctx, m, opts)
	case "/search", "/test":
		r.cmdSearch(ctx, m)
	case "/admin_stats":
		r.adminOnly(ctx, m, isAdmin, r.cmdAdminStats)
	case "/admin_users":
		r.adminOnly(ctx, m, isAdmin, r.cmdAdminUsers)
	case "/admin_broadcast":
		r.adminOnly(ctx, m, isAdmin, func(ctx context.Context, m *kit.Message) {
			r.cmdAdminBroadcast(ctx, m, args)
		})
	default:
		if strings.HasPrefix(cmd, "/") {
			r.reply(ctx, m, "Unknown command. Use /help to see what I can do.")
		} else {
			r.reply(ctx, m, "I only speak commands. Try /help.")
		}
	}
}

// splitCommand returns the lowercase command (bot-name suffix stripped) and
// the remaining argument string.
func splitCommand(text string) (cmd, args string) {
	cmd = text
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		cmd, args = text[:i], strings.TrimSpace(text[i+1:])
	}
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), args
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (r *Router) reply(ctx context.Context, m *kit.Message, text string) {
	_, err := r.sender.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, text, &kit.SendOptions{ParseMode: "Markdown"})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
	}
}

func (r *Router) adminOnly(ctx context.Context, m *kit.Message, isAdmin bool, fn func(context.Context, *kit.Message)) {
	if !isAdmin {
		r.reply(ctx, m, "⛔ This command is restricted to administrators.")
		return
	}
	fn(ctx, m)
}

func (r *Router) cmdStart(ctx context.Context, m *kit.Message, opts Options) {
	name := m.FirstName
	if name == "" {
		name = "there"
	}
	if _, registered := r.reg.Get(m.FromID); registered {
		r.reply(ctx, m, fmt.Sprintf(
			"🤖 *Welcome back, %s!*\n\n"+
				"You are registered and receiving video alerts.\n\n"+
				"/status - bot status\n/settings - your settings\n/notifications - toggle alerts\n/help - full help",
			name))
		return
	}
	if !opts.RegistrationOpen {
		r.reply(ctx, m, "🤖 *Video Monitor Bot*\n\nRegistrations are currently closed. Contact an administrator.\n\n/help - about this bot")
		return
	}
	st := r.reg.Stats()
	r.reply(ctx, m, fmt.Sprintf(
		"🤖 *Welcome, %s!*\n\n"+
			"I watch YouTube for fresh videos on the configured topics and send alerts for the most relevant ones.\n\n"+
			"*To start receiving alerts:*\n/register\n\n"+
			"*Other commands:*\n/help - full help\n/search - run a search now\n\n"+
			"🚀 Join %d subscribers already getting updates!",
		name, st.Total))
}

func helpText(opts Options) string {
	return fmt.Sprintf(
		"🆘 *Help*\n\n"+
			"I search YouTube every %s for new videos matching the configured topics, "+
			"skip anything already sent, and alert you about the best matches.\n\n"+
			"*Commands:*\n"+
			"/start - welcome\n"+
			"/register - subscribe to alerts\n"+
			"/unregister - unsubscribe\n"+
			"/settings - your profile and flags\n"+
			"/notifications - toggle alerts on/off\n"+
			"/status - bot status\n"+
			"/keywords - monitored topics\n"+
			"/search - run a search right now\n"+
			"/help - this message",
		opts.Interval)
}

func (r *Router) cmdRegister(ctx context.Context, m *kit.Message, opts Options) {
	if !opts.RegistrationOpen {
		r.reply(ctx, m, "❌ Registrations are currently disabled.")
		return
	}
	created, err := r.reg.Register(storage.Recipient{
		UserID:    m.FromID,
		Username:  m.FromUsername,
		FirstName: m.FirstName,
		LastName:  m.LastName,
	})
	switch {
	case errors.Is(err, storage.ErrRegistryFull):
		r.reply(ctx, m, "❌ Registration failed: the subscriber limit has been reached.")
	case err != nil:
		r.log.Warn("register failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		r.reply(ctx, m, "❌ Registration failed. Please try again later.")
	case !created:
		r.reply(ctx, m, "✅ You are already registered and receiving alerts.")
	default:
		r.publish(eventbus.EventUserRegistered, m)
		r.reply(ctx, m, fmt.Sprintf(
			"✅ *Registration complete!*\n\n"+
				"Welcome %s! You will now receive alerts for new videos (checked every %s).\n\n"+
				"/notifications - toggle alerts\n/settings - your settings",
			m.FirstName, opts.Interval))
	}
}

func (r *Router) cmdUnregister(ctx context.Context, m *kit.Message) {
	if err := r.reg.Unregister(m.FromID); err != nil {
		r.reply(ctx, m, "❌ You are not registered.")
		return
	}
	r.publish(eventbus.EventUserUnregistered, m)
	r.reply(ctx, m, "✅ *Unsubscribed.*\n\nYou will no longer receive alerts. Come back any time with /register. 👋")
}

func (r *Router) cmdSettings(ctx context.Context, m *kit.Message) {
	u, ok := r.reg.Get(m.FromID)
	if !ok {
		r.reply(ctx, m, "❌ You need to be registered to see settings. Use /register")
		return
	}
	notif := "🔴 off"
	if u.NotificationsEnabled {
		notif = "🟢 on"
	}
	active := "🔴 inactive"
	if u.Active {
		active = "🟢 active"
	}
	r.reply(ctx, m, fmt.Sprintf(
		"⚙️ *Your settings*\n\n"+
			"👤 *Profile:* %s %s (@%s)\n"+
			"📅 *Registered:* %s\n"+
			"🔔 *Notifications:* %s\n"+
			"📊 *Account:* %s\n\n"+
			"/notifications - toggle alerts\n/unregister - unsubscribe",
		u.FirstName, u.LastName, u.Username,
		u.RegisteredAt.Format("2006-01-02"),
		notif, active))
}

func (r *Router) cmdNotifications(ctx context.Context, m *kit.Message) {
	enabled, err := r.reg.ToggleNotifications(m.FromID)
	if err != nil {
		r.reply(ctx, m, "❌ You need to be registered to manage notifications. Use /register")
		return
	}
	if enabled {
		r.reply(ctx, m, "🔔 *Notifications on.* You will receive alerts for new videos.")
	} else {
		r.reply(ctx, m, "🔕 *Notifications off.* No more alerts until you toggle them back with /notifications.")
	}
}

func (r *Router) cmdStatus(ctx context.Context, m *kit.Message, opts Options) {
	st := r.coord.Status()
	rs := r.reg.Stats()
	state := "🔴 stopped"
	if st.Running {
		state = "🟢 running"
	}
	last := "never"
	if !st.LastCycle.At.IsZero() {
		last = st.LastCycle.At.Format("2006-01-02 15:04:05")
	}
	r.reply(ctx, m, fmt.Sprintf(
		"📊 *Bot status*\n\n"+
			"🤖 *Scheduler:* %s\n"+
			"⏰ *Search interval:* %s\n"+
			"🔇 *Quiet hours:* %s\n"+
			"🔍 *Topics:* %d · 🌍 %s / %s\n"+
			"👥 *Subscribers:* %d (%d active)\n"+
			"📼 *Ledger:* %d delivered videos\n"+
			"🕐 *Last cycle:* %s",
		state, st.Interval, st.QuietHours,
		len(opts.Topics), strings.Join(opts.Languages, ","), strings.Join(opts.Regions, ","),
		rs.Total, rs.Active, st.LedgerSize, last))
}

func (r *Router) cmdKeywords(ctx context.Context, m *kit.Message, opts Options) {
	var b strings.Builder
	b.WriteString("🔍 *Monitored topics:*\n\n")
	for _, t := range opts.Topics {
		fmt.Fprintf(&b, "• %s\n", strings.TrimSpace(t))
	}
	b.WriteString("\nThese topics drive the recurring YouTube search.")
	r.reply(ctx, m, b.String())
}

func (r *Router) cmdSearch(ctx context.Context, m *kit.Message) {
	r.reply(ctx, m, "🔍 Starting a search cycle...")
	err := r.coord.RunNow(ctx)
	switch {
	case errors.Is(err, scheduler.ErrCycleInFlight):
		r.reply(ctx, m, "⏳ A search cycle is already running; your request was skipped.")
	case errors.Is(err, scheduler.ErrQuietHours):
		r.reply(ctx, m, "🔇 Quiet hours are active; the search was skipped.")
	case err != nil:
		r.reply(ctx, m, "❌ Search failed: "+err.Error())
	default:
		r.reply(ctx, m, "✅ Search cycle finished. New videos, if any, have been broadcast.")
	}
}

func (r *Router) cmdAdminStats(ctx context.Context, m *kit.Message) {
	st := r.coord.Status()
	rs := r.reg.Stats()
	r.reply(ctx, m, fmt.Sprintf(
		"🛠 *Admin stats*\n\n"+
			"👥 Subscribers: %d/%d (active %d, notified %d)\n"+
			"📼 Ledger size: %d\n"+
			"🔄 In flight: %v\n"+
			"🕐 Last cycle: found %d, sent %d, delivered %d, failed %d",
		rs.Total, rs.Capacity, rs.Active, rs.Notified,
		st.LedgerSize, st.InFlight,
		st.LastCycle.Found, st.LastCycle.Sent, st.LastCycle.Delivered, st.LastCycle.Failed))
}

func (r *Router) cmdAdminUsers(ctx context.Context, m *kit.Message) {
	users := r.reg.Snapshot()
	if len(users) == 0 {
		r.reply(ctx, m, "👥 No registered subscribers.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 *Subscribers (%d):*\n\n", len(users))
	for _, u := range users {
		flag := "🟢"
		if !u.Active {
			flag = "🔴"
		} else if !u.NotificationsEnabled {
			flag = "🔕"
		}
		fmt.Fprintf(&b, "%s %d @%s %s %s\n", flag, u.UserID, u.Username, u.FirstName, u.LastName)
	}
	r.reply(ctx, m, b.String())
}

func (r *Router) cmdAdminBroadcast(ctx context.Context, m *kit.Message, args string) {
	if strings.TrimSpace(args) == "" {
		r.reply(ctx, m, "Usage: /admin_broadcast <message>")
		return
	}
	delivered, failed := r.cast.Broadcast(ctx, "📢 *Announcement*\n\n"+args)
	r.reply(ctx, m, fmt.Sprintf("📢 Broadcast done: delivered %d, failed %d.", delivered, failed))
}

func (r *Router) publish(eventType string, m *kit.Message) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: eventType, Data: map[string]any{
		"user_id":    m.FromID,
		"username":   m.FromUsername,
		"first_name": m.FirstName,
	}})
}
