package lunalove

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents a structured API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the generic API response envelope.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// ============================================================================
// Timeline Types
// ============================================================================

// Origin tags which delivery path produced a timeline entry.
type Origin string

const (
	OriginPush       Origin = "push"
	OriginPoll       Origin = "poll"
	OriginOptimistic Origin = "optimistic-local"
)

// authoritative reports whether the origin is a server-confirmed path.
func (o Origin) authoritative() bool {
	return o == OriginPush || o == OriginPoll
}

// Message is a single timeline entry. Immutable once accepted, except that
// an optimistic-local entry is replaced by its server echo (see Timeline).
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	SentAt         time.Time
	Origin         Origin
}

// ============================================================================
// Notification Types
// ============================================================================

// NotificationCategory classifies an ephemeral notice.
type NotificationCategory string

const (
	NotifyMatch   NotificationCategory = "match"
	NotifyMessage NotificationCategory = "message"
	NotifyLike    NotificationCategory = "like"
)

// Notification is an ephemeral cross-conversation notice. It is removed on
// TTL expiry or explicit dismissal, whichever comes first.
type Notification struct {
	ID        string
	Category  NotificationCategory
	Payload   json.RawMessage
	CreatedAt time.Time
}

// ============================================================================
// Gift Types
// ============================================================================

// GiftSelection describes the gift a user picked for sending.
type GiftSelection struct {
	GiftID   string
	Quantity int
	UnitCost int // coins per unit

	// EffectDuration overrides how long the visual effect is displayed.
	// Zero means DefaultGiftEffectDuration.
	EffectDuration time.Duration
}

// Cost returns the total coin cost of the selection.
func (s GiftSelection) Cost() int {
	return s.UnitCost * s.Quantity
}

// GiftReason is the structured failure reason of a gift send attempt.
type GiftReason string

const (
	GiftReasonMissingSelection    GiftReason = "missing-selection"
	GiftReasonInsufficientBalance GiftReason = "insufficient-balance"
	GiftReasonSendFailed          GiftReason = "send-failed"
)

// GiftResult reports the outcome of a gift send attempt.
type GiftResult struct {
	OK      bool
	Reason  GiftReason // empty when OK
	Balance int        // wallet balance after the attempt
	Effect  *GiftEffect
}

// GiftEffect is a purely presentational event that accompanies a gift send.
// It is not part of the message timeline and expires on its own timer.
type GiftEffect struct {
	ID        string
	Kind      string
	Duration  time.Duration
	CreatedAt time.Time
}

// ============================================================================
// Wire Types (request/response API)
// ============================================================================

// WireMessage is a message record as the API returns it.
type WireMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	SenderID       string `json:"sender_id"`
	Body           string `json:"body"`
	SentAt         int64  `json:"sent_at"` // unix milliseconds
}

// toMessage converts a wire record into a timeline entry with the given
// delivery origin.
func (w WireMessage) toMessage(origin Origin) Message {
	return Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		Body:           w.Body,
		SentAt:         time.UnixMilli(w.SentAt),
		Origin:         origin,
	}
}

// WireNotification is a fan-out notice as delivered on the push channel.
type WireNotification struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GiftReceipt is the success payload of a gift send request.
type GiftReceipt struct {
	Message WireMessage `json:"message"`
	Balance int         `json:"balance"`
}

// WalletInfo is the authoritative wallet state as the API returns it.
type WalletInfo struct {
	Balance int `json:"balance"`
}
