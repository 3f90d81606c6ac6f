package lunalove

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NotificationTTL is how long a notification stays active before it
// dismisses itself.
const NotificationTTL = 5000 * time.Millisecond

// NotificationFeed holds the session's transient notifications. Entries
// arrive over the push channel only; there is no polling fallback for
// them, a missed notification is simply gone.
type NotificationFeed struct {
	clock    Clock
	onNotify func(Notification)

	mu      sync.Mutex
	closed  bool
	entries []Notification
	timers  map[string]Timer
}

func newNotificationFeed(clock Clock, onNotify func(Notification)) *NotificationFeed {
	return &NotificationFeed{
		clock:    clock,
		onNotify: onNotify,
		timers:   make(map[string]Timer),
	}
}

func (f *NotificationFeed) ingest(w WireNotification) {
	var category NotificationCategory
	switch w.Type {
	case "match":
		category = NotifyMatch
	case "message":
		category = NotifyMessage
	case "like":
		category = NotifyLike
	default:
		return
	}

	// A server id keys dedup and dismissal; a notice that arrives
	// without one gets a local id so it never collides.
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if _, dup := f.timers[w.ID]; dup {
		f.mu.Unlock()
		return
	}
	n := Notification{
		ID:        w.ID,
		Category:  category,
		Payload:   w.Payload,
		CreatedAt: f.clock.Now(),
	}
	// newest first
	f.entries = append([]Notification{n}, f.entries...)
	id := w.ID
	f.timers[id] = f.clock.AfterFunc(NotificationTTL, func() {
		f.Dismiss(id)
	})
	notify := f.onNotify
	f.mu.Unlock()

	if notify != nil {
		notify(n)
	}
}

func (f *NotificationFeed) setHandler(h func(Notification)) {
	f.mu.Lock()
	f.onNotify = h
	f.mu.Unlock()
}

// Dismiss removes a notification before its timeout. Dismissing an
// unknown or already expired id is a no-op.
func (f *NotificationFeed) Dismiss(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer, ok := f.timers[id]
	if !ok {
		return
	}
	timer.Stop()
	delete(f.timers, id)
	for i, n := range f.entries {
		if n.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			break
		}
	}
}

// Active returns the live notifications, newest first.
func (f *NotificationFeed) Active() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, len(f.entries))
	copy(out, f.entries)
	return out
}

func (f *NotificationFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, timer := range f.timers {
		timer.Stop()
		delete(f.timers, id)
	}
	f.entries = nil
}
