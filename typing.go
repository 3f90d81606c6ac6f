package lunalove

import (
	"sync"
	"time"
)

const (
	// TypingIdleTimeout is how long after the last keystroke the outbound
	// typing state reverts to idle.
	TypingIdleTimeout = 3000 * time.Millisecond
	// RemoteTypingDecay clears a peer's typing state when no stop signal
	// ever arrives.
	RemoteTypingDecay = 5000 * time.Millisecond
)

// typingDebouncer owns both directions of typing state for one
// conversation. Outbound, it collapses a keystroke stream into start/stop
// transitions. Inbound, it ages out peers whose stop signal got lost.
type typingDebouncer struct {
	clock    Clock
	send     func(typing bool)
	onChange func(userID string, typing bool)

	mu         sync.Mutex
	closed     bool
	selfTyping bool
	idleTimer  Timer
	remote     map[string]*remoteTyping
}

type remoteTyping struct {
	timer Timer
	gen   uint64
}

func newTypingDebouncer(clock Clock, send func(bool), onChange func(string, bool)) *typingDebouncer {
	return &typingDebouncer{
		clock:    clock,
		send:     send,
		onChange: onChange,
		remote:   make(map[string]*remoteTyping),
	}
}

// Keystroke records local typing activity. Only the idle-to-typing
// transition produces an outbound signal; every call pushes the idle
// deadline out.
func (d *typingDebouncer) Keystroke() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	started := !d.selfTyping
	d.selfTyping = true
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = d.clock.AfterFunc(TypingIdleTimeout, d.idleExpired)
	d.mu.Unlock()

	if started {
		d.send(true)
	}
}

func (d *typingDebouncer) idleExpired() {
	d.mu.Lock()
	if d.closed || !d.selfTyping {
		d.mu.Unlock()
		return
	}
	d.selfTyping = false
	d.idleTimer = nil
	d.mu.Unlock()

	d.send(false)
}

// RemoteSignal applies a peer's typing event. A start arms or re-arms the
// decay timer; a stop clears immediately. Transitions alone reach
// onChange.
func (d *typingDebouncer) RemoteSignal(userID string, typing bool) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	entry, active := d.remote[userID]
	if typing {
		if active {
			entry.timer.Stop()
			entry.gen++
		} else {
			entry = &remoteTyping{}
			d.remote[userID] = entry
		}
		gen := entry.gen
		entry.timer = d.clock.AfterFunc(RemoteTypingDecay, func() {
			d.decay(userID, gen)
		})
		d.mu.Unlock()
		if !active && d.onChange != nil {
			d.onChange(userID, true)
		}
		return
	}

	if !active {
		d.mu.Unlock()
		return
	}
	entry.timer.Stop()
	delete(d.remote, userID)
	d.mu.Unlock()

	if d.onChange != nil {
		d.onChange(userID, false)
	}
}

func (d *typingDebouncer) decay(userID string, gen uint64) {
	d.mu.Lock()
	entry, ok := d.remote[userID]
	if !ok || entry.gen != gen || d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.remote, userID)
	d.mu.Unlock()

	if d.onChange != nil {
		d.onChange(userID, false)
	}
}

// TypingPeers returns the peers currently considered typing.
func (d *typingDebouncer) TypingPeers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	peers := make([]string, 0, len(d.remote))
	for id := range d.remote {
		peers = append(peers, id)
	}
	return peers
}

// close cancels every pending timer. No stop signal is sent; the peer's
// own decay handles the abandoned state.
func (d *typingDebouncer) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	for id, entry := range d.remote {
		entry.timer.Stop()
		delete(d.remote, id)
	}
}
