package lunalove

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Message identity: the key under which "the same logical event" is
// recognized across delivery paths. A server-assigned id is the identity
// when present; otherwise a content fingerprint stands in until the server
// echo arrives.

const fingerprintPrefix = "fp-"

// Fingerprint derives a stable identity for a message that has no server id
// yet: a hash of sender, body, and the sent timestamp rounded to the second.
// The rounding absorbs the sub-second skew between the local clock and the
// server-assigned timestamp on the echo.
func Fingerprint(senderID, body string, sentAt time.Time) string {
	rounded := sentAt.Round(time.Second).Unix()
	h := sha256.New()
	h.Write([]byte(senderID))
	h.Write([]byte{0})
	h.Write([]byte(body))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(rounded, 10)))
	return fingerprintPrefix + hex.EncodeToString(h.Sum(nil)[:8])
}

// identityOf returns the message's identity key.
func identityOf(m Message) string {
	if m.ID != "" {
		return m.ID
	}
	return Fingerprint(m.SenderID, m.Body, m.SentAt)
}

// fingerprintOf returns the content fingerprint of a message regardless of
// whether it carries a server id.
func fingerprintOf(m Message) string {
	return Fingerprint(m.SenderID, m.Body, m.SentAt)
}

// messageLess is the timeline ordering: sent timestamp ascending, identity
// as a deterministic tie-break for equal timestamps.
func messageLess(a, b Message) bool {
	if !a.SentAt.Equal(b.SentAt) {
		return a.SentAt.Before(b.SentAt)
	}
	return identityOf(a) < identityOf(b)
}
