package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	logx "tubewatch/pkg/logx"
)

// DefaultRegistryCap bounds how many recipients may self-register.
const DefaultRegistryCap = 100

var (
	ErrRegistryFull  = errors.New("recipient registry is full")
	ErrNotRegistered = errors.New("recipient is not registered")
)

// Recipient is one registered chat.
type Recipient struct {
	UserID               int64     `json:"user_id"`
	Username             string    `json:"username,omitempty"`
	FirstName            string    `json:"first_name,omitempty"`
	LastName             string    `json:"last_name,omitempty"`
	RegisteredAt         time.Time `json:"registered_at"`
	Active               bool      `json:"active"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	LastActivity         time.Time `json:"last_activity"`
}

type registryDoc struct {
	LastUpdate time.Time            `json:"last_update"`
	TotalUsers int                  `json:"total_users"`
	Users      map[string]Recipient `json:"users"`
}

// RegistryStats is a point-in-time summary for /status and the health endpoint.
type RegistryStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Notified int `json:"notifications_enabled"`
	Capacity int `json:"capacity"`
}

// Registry is the persistent set of broadcast recipients. Mutations persist
// write-through; activity touches are batched and flushed every tenth update
// to keep chat-command handling cheap.
type Registry struct {
	path string
	cap  int
	log  logx.Logger

	mu           sync.Mutex
	users        map[int64]Recipient
	touchPending int
}

func OpenRegistry(path string, capacity int, log logx.Logger) (*Registry, error) {
	if capacity <= 0 {
		capacity = DefaultRegistryCap
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	r := &Registry{
		path:  path,
		cap:   capacity,
		log:   log,
		users: map[int64]Recipient{},
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return r, nil
	}

	var doc registryDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		r.log.Warn("registry file corrupt; starting fresh", logx.String("path", path), logx.Err(err))
		return r, nil
	}
	for key, u := range doc.Users {
		id := u.UserID
		if id == 0 {
			// Fall back to the map key for documents written by older versions.
			if parsed, perr := strconv.ParseInt(key, 10, 64); perr == nil {
				id = parsed
			}
		}
		if id == 0 {
			continue
		}
		u.UserID = id
		r.users[id] = u
	}
	return r, nil
}

// Register adds a recipient. An id that is already present is left untouched
// and reported with created=false. Admin-configured ids never occupy registry
// slots, so capacity only gates genuinely new entries.
func (r *Registry) Register(rec Recipient) (created bool, err error) {
	if rec.UserID == 0 {
		return false, errors.New("user id is required")
	}
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[rec.UserID]; ok {
		return false, nil
	}

	if len(r.users) >= r.cap {
		return false, ErrRegistryFull
	}

	rec.RegisteredAt = now
	rec.Active = true
	rec.NotificationsEnabled = true
	rec.LastActivity = now
	r.users[rec.UserID] = rec
	r.flushLocked()
	return true, nil
}

func (r *Registry) Unregister(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return ErrNotRegistered
	}
	delete(r.users, userID)
	r.flushLocked()
	return nil
}

// ToggleNotifications flips the per-recipient mute flag and returns the new state.
func (r *Registry) ToggleNotifications(userID int64) (enabled bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, ErrNotRegistered
	}
	u.NotificationsEnabled = !u.NotificationsEnabled
	u.LastActivity = time.Now()
	r.users[userID] = u
	r.flushLocked()
	return u.NotificationsEnabled, nil
}

// Deactivate marks a recipient permanently unreachable (blocked the bot,
// deleted the account). The entry is kept for the operator's visibility but
// drops out of fanout targets.
func (r *Registry) Deactivate(userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return ErrNotRegistered
	}
	if !u.Active {
		return nil
	}
	u.Active = false
	r.users[userID] = u
	r.flushLocked()
	return nil
}

// Touch updates a recipient's activity timestamp. Flushes are batched: only
// every tenth touch rewrites the file.
func (r *Registry) Touch(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return
	}
	u.LastActivity = time.Now()
	r.users[userID] = u
	r.touchPending++
	if r.touchPending >= 10 {
		r.touchPending = 0
		r.flushLocked()
	}
}

// Get returns a copy of the recipient entry.
func (r *Registry) Get(userID int64) (Recipient, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	return u, ok
}

// FanoutTargets resolves the chat ids a broadcast goes to: every active
// recipient with notifications enabled, every configured admin, and the
// optional fixed chat id. Deduplicated, ascending order so runs are
// deterministic.
func (r *Registry) FanoutTargets(adminIDs []int64, fixedChatID int64) []int64 {
	r.mu.Lock()
	set := make(map[int64]struct{}, len(r.users)+len(adminIDs)+1)
	for id, u := range r.users {
		if u.Active && u.NotificationsEnabled {
			set[id] = struct{}{}
		}
	}
	r.mu.Unlock()

	for _, id := range adminIDs {
		if id != 0 {
			set[id] = struct{}{}
		}
	}
	if fixedChatID != 0 {
		set[fixedChatID] = struct{}{}
	}

	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := RegistryStats{Total: len(r.users), Capacity: r.cap}
	for _, u := range r.users {
		if u.Active {
			st.Active++
		}
		if u.Active && u.NotificationsEnabled {
			st.Notified++
		}
	}
	return st
}

// Snapshot returns all recipients ordered by registration time (admin listing).
func (r *Registry) Snapshot() []Recipient {
	r.mu.Lock()
	out := make([]Recipient, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Flush forces a write of any batched activity updates (used at shutdown).
func (r *Registry) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touchPending > 0 {
		r.touchPending = 0
		r.flushLocked()
	}
}

func (r *Registry) flushLocked() {
	doc := registryDoc{
		LastUpdate: time.Now(),
		TotalUsers: len(r.users),
		Users:      make(map[string]Recipient, len(r.users)),
	}
	for id, u := range r.users {
		doc.Users[strconv.FormatInt(id, 10)] = u
	}
	if err := writeJSONAtomic(r.path, doc); err != nil {
		r.log.Warn("registry write failed", logx.String("path", r.path), logx.Err(err))
	}
}
