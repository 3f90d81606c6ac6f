package lunalove

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultGiftEffectDuration is used when a gift selection does not carry
// its own effect duration.
const DefaultGiftEffectDuration = 4 * time.Second

// ============================================================================
// Gift Effect Feed
// ============================================================================

// effectFeed tracks the on-screen gift effects. Effects start the moment
// the send is attempted and expire on their own timer; once an effect has
// started rendering it is never retracted, even if the send later fails.
type effectFeed struct {
	clock Clock

	mu      sync.Mutex
	closed  bool
	effects []GiftEffect
	timers  map[string]Timer
}

func newEffectFeed(clock Clock) *effectFeed {
	return &effectFeed{
		clock:  clock,
		timers: make(map[string]Timer),
	}
}

func (f *effectFeed) start(sel GiftSelection) GiftEffect {
	duration := sel.EffectDuration
	if duration <= 0 {
		duration = DefaultGiftEffectDuration
	}
	effect := GiftEffect{
		ID:        uuid.NewString(),
		Kind:      sel.GiftID,
		Duration:  duration,
		CreatedAt: f.clock.Now(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return effect
	}
	f.effects = append(f.effects, effect)
	id := effect.ID
	f.timers[id] = f.clock.AfterFunc(duration, func() {
		f.cancel(id)
	})
	return effect
}

func (f *effectFeed) cancel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer, ok := f.timers[id]
	if !ok {
		return
	}
	timer.Stop()
	delete(f.timers, id)
	for i, e := range f.effects {
		if e.ID == id {
			f.effects = append(f.effects[:i], f.effects[i+1:]...)
			break
		}
	}
}

// Active returns the effects currently playing, oldest first.
func (f *effectFeed) Active() []GiftEffect {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GiftEffect, len(f.effects))
	copy(out, f.effects)
	return out
}

func (f *effectFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, timer := range f.timers {
		timer.Stop()
		delete(f.timers, id)
	}
	f.effects = nil
}

// ============================================================================
// Gift Send Coordinator
// ============================================================================

// SendGift performs an optimistic gift send. The wallet is debited, the
// chat message inserted, and the effect started before the server
// confirms; a failed send unwinds the wallet and the message while the
// effect plays out on its own timer.
func (s *Session) SendGift(ctx context.Context, conversationID string, sel GiftSelection) GiftResult {
	if sel.GiftID == "" || sel.Quantity <= 0 {
		return GiftResult{Reason: GiftReasonMissingSelection, Balance: s.wallet.Balance()}
	}
	if !s.wallet.debit(sel.Cost()) {
		return GiftResult{Reason: GiftReasonInsufficientBalance, Balance: s.wallet.Balance()}
	}

	conv := s.lookupConversation(conversationID)
	optimistic := Message{
		ConversationID: conversationID,
		SenderID:       s.selfID,
		Body:           giftBody(sel),
		SentAt:         s.clock.Now(),
		Origin:         OriginOptimistic,
	}
	if conv != nil {
		conv.ingestLocal(&optimistic)
	}
	effect := s.effects.start(sel)

	receipt, err := s.client.SendGift(ctx, conversationID, sel)
	if err != nil {
		// The wallet and the timeline unwind; the effect does not. It
		// already started rendering and expires on its own timer.
		if conv != nil {
			conv.removeLocal(optimistic.ID)
		}
		s.wallet.rollback()
		s.log.Printf("gift send failed: %v", err)
		return GiftResult{Reason: GiftReasonSendFailed, Balance: s.wallet.Balance(), Effect: &effect}
	}

	s.wallet.setAuthoritative(receipt.Balance)
	if conv != nil {
		conv.removeLocal(optimistic.ID)
		conv.ingestWire(receipt.Message, OriginPoll)
	}
	return GiftResult{OK: true, Balance: s.wallet.Balance(), Effect: &effect}
}

func giftBody(sel GiftSelection) string {
	if sel.Quantity == 1 {
		return fmt.Sprintf("gift:%s", sel.GiftID)
	}
	return fmt.Sprintf("gift:%s x%d", sel.GiftID, sel.Quantity)
}
