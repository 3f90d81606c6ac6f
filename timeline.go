package lunalove

import (
	"sort"
	"sync"
)

// Timeline is the single writer of a conversation's displayed message
// sequence. It merges push-delivered, poll-delivered, and optimistic-local
// entries into one deduplicated, time-ordered view.
//
// For any interleaving of push and poll delivery of the same logical
// message, the timeline contains exactly one entry for it.
type Timeline struct {
	mu      sync.RWMutex
	entries []Message
	index   map[string]int    // identity -> position in entries
	byFP    map[string]string // content fingerprint -> identity holding it
	version uint64
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		index: make(map[string]int),
		byFP:  make(map[string]string),
	}
}

// Ingest merges one message event into the timeline. It reports whether the
// visible timeline changed.
//
// Dedup rules:
//   - same identity already present: dropped, unless the existing entry is
//     optimistic-local and the new copy is authoritative, in which case the
//     entry is upgraded in place;
//   - authoritative copy whose content fingerprint matches a pending
//     optimistic-local entry: replaces that entry in place, preserving its
//     position, so the echo of a locally-sent message never reorders or
//     duplicates;
//   - optimistic copy whose fingerprint is already held by any entry:
//     dropped (the echo won the race).
func (t *Timeline) Ingest(m Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.ID == "" {
		m.ID = Fingerprint(m.SenderID, m.Body, m.SentAt)
	}
	key := m.ID

	if pos, ok := t.index[key]; ok {
		existing := t.entries[pos]
		if existing.Origin == OriginOptimistic && m.Origin.authoritative() {
			// The authoritative copy may round to a different second,
			// so the fingerprint mapping moves with the content.
			oldFP := fingerprintOf(existing)
			if t.byFP[oldFP] == key {
				delete(t.byFP, oldFP)
			}
			newFP := fingerprintOf(m)
			if _, taken := t.byFP[newFP]; !taken {
				t.byFP[newFP] = key
			}
			t.entries[pos] = m
			t.version++
			return true
		}
		return false
	}

	fp := fingerprintOf(m)

	if m.Origin.authoritative() {
		if heldBy, ok := t.byFP[fp]; ok {
			pos := t.index[heldBy]
			if t.entries[pos].Origin == OriginOptimistic {
				// Server echo of a locally-sent message: swap identity,
				// keep position.
				delete(t.index, heldBy)
				t.index[key] = pos
				t.byFP[fp] = key
				t.entries[pos] = m
				t.version++
				return true
			}
		}
	} else if _, ok := t.byFP[fp]; ok {
		return false
	}

	pos := sort.Search(len(t.entries), func(i int) bool {
		return messageLess(m, t.entries[i])
	})
	t.entries = append(t.entries, Message{})
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = m
	for i := pos + 1; i < len(t.entries); i++ {
		t.index[t.entries[i].ID] = i
	}
	t.index[key] = pos
	if _, taken := t.byFP[fp]; !taken {
		t.byFP[fp] = key
	}
	t.version++
	return true
}

// Remove drops the entry with the given identity, if present. Used when an
// optimistic send fails before any echo could arrive.
func (t *Timeline) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.index[id]
	if !ok {
		return false
	}
	fp := fingerprintOf(t.entries[pos])
	t.entries = append(t.entries[:pos], t.entries[pos+1:]...)
	delete(t.index, id)
	for i := pos; i < len(t.entries); i++ {
		t.index[t.entries[i].ID] = i
	}
	if t.byFP[fp] == id {
		delete(t.byFP, fp)
	}
	t.version++
	return true
}

// Messages returns a fresh snapshot of the current timeline in display
// order. Every call reflects the state at call time; the slice is the
// caller's to keep.
func (t *Timeline) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Version increments on every visible change; callers can use it to skip
// redundant re-renders.
func (t *Timeline) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}
