package lunalove

import (
	"testing"
	"time"
)

type typingRecorder struct {
	sent    []bool
	changes []string
}

func (r *typingRecorder) send(typing bool) {
	r.sent = append(r.sent, typing)
}

func (r *typingRecorder) change(userID string, typing bool) {
	state := "stop"
	if typing {
		state = "start"
	}
	r.changes = append(r.changes, userID+":"+state)
}

func TestTypingOutbound(t *testing.T) {
	t.Run("first keystroke signals start", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.Keystroke()
		if len(rec.sent) != 1 || !rec.sent[0] {
			t.Fatalf("sent = %v, want [true]", rec.sent)
		}
	})

	t.Run("repeat keystrokes stay silent", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.Keystroke()
		clock.Advance(time.Second)
		d.Keystroke()
		clock.Advance(time.Second)
		d.Keystroke()
		if len(rec.sent) != 1 {
			t.Fatalf("sent = %v, want a single start", rec.sent)
		}
	})

	t.Run("idle timeout signals stop", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.Keystroke()
		clock.Advance(2900 * time.Millisecond)
		if len(rec.sent) != 1 {
			t.Fatalf("sent = %v, stop fired too early", rec.sent)
		}
		clock.Advance(200 * time.Millisecond)
		if len(rec.sent) != 2 || rec.sent[1] {
			t.Fatalf("sent = %v, want [true false]", rec.sent)
		}
	})

	t.Run("keystroke pushes the idle deadline out", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.Keystroke()
		clock.Advance(2500 * time.Millisecond)
		d.Keystroke()
		clock.Advance(2500 * time.Millisecond)
		if len(rec.sent) != 1 {
			t.Fatalf("sent = %v, deadline should have moved", rec.sent)
		}
		clock.Advance(600 * time.Millisecond)
		if len(rec.sent) != 2 {
			t.Fatalf("sent = %v, want stop after full idle window", rec.sent)
		}
	})

	t.Run("typing again after stop signals a new start", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.Keystroke()
		clock.Advance(4 * time.Second)
		d.Keystroke()
		want := []bool{true, false, true}
		if len(rec.sent) != len(want) {
			t.Fatalf("sent = %v, want %v", rec.sent, want)
		}
	})
}

func TestTypingRemote(t *testing.T) {
	t.Run("start and stop transitions", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.RemoteSignal("peer-1", true)
		d.RemoteSignal("peer-1", true) // repeat, no transition
		d.RemoteSignal("peer-1", false)
		want := []string{"peer-1:start", "peer-1:stop"}
		if len(rec.changes) != 2 || rec.changes[0] != want[0] || rec.changes[1] != want[1] {
			t.Fatalf("changes = %v, want %v", rec.changes, want)
		}
	})

	t.Run("decays when the stop signal is lost", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.RemoteSignal("peer-1", true)
		clock.Advance(4999 * time.Millisecond)
		if len(d.TypingPeers()) != 1 {
			t.Fatal("peer should still be typing just before decay")
		}
		clock.Advance(2 * time.Millisecond)
		if len(d.TypingPeers()) != 0 {
			t.Fatal("peer should have decayed")
		}
		if len(rec.changes) != 2 || rec.changes[1] != "peer-1:stop" {
			t.Fatalf("changes = %v, want trailing stop", rec.changes)
		}
	})

	t.Run("repeat start re-arms the decay", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.RemoteSignal("peer-1", true)
		clock.Advance(4 * time.Second)
		d.RemoteSignal("peer-1", true)
		clock.Advance(4 * time.Second)
		if len(d.TypingPeers()) != 1 {
			t.Fatal("re-armed peer should still be typing")
		}
		clock.Advance(1100 * time.Millisecond)
		if len(d.TypingPeers()) != 0 {
			t.Fatal("peer should have decayed after the re-armed window")
		}
	})

	t.Run("stop for an idle peer is a no-op", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.RemoteSignal("peer-1", false)
		if len(rec.changes) != 0 {
			t.Fatalf("changes = %v, want none", rec.changes)
		}
	})

	t.Run("independent peers", func(t *testing.T) {
		clock := newFakeClock()
		rec := &typingRecorder{}
		d := newTypingDebouncer(clock, rec.send, rec.change)

		d.RemoteSignal("peer-1", true)
		clock.Advance(3 * time.Second)
		d.RemoteSignal("peer-2", true)
		clock.Advance(2100 * time.Millisecond)
		peers := d.TypingPeers()
		if len(peers) != 1 || peers[0] != "peer-2" {
			t.Fatalf("peers = %v, want [peer-2]", peers)
		}
	})
}

func TestTypingClose(t *testing.T) {
	clock := newFakeClock()
	rec := &typingRecorder{}
	d := newTypingDebouncer(clock, rec.send, rec.change)

	d.Keystroke()
	d.RemoteSignal("peer-1", true)
	d.close()

	if clock.pending() != 0 {
		t.Fatalf("pending timers = %d, want 0 after close", clock.pending())
	}

	clock.Advance(time.Minute)
	if len(rec.sent) != 1 || len(rec.changes) != 1 {
		t.Fatal("no callbacks may fire after close")
	}
	d.Keystroke() // ignored
	if len(rec.sent) != 1 {
		t.Fatal("keystroke after close must not signal")
	}
}
