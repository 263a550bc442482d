package whatsapp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"lobang-bot/internal/domain"
)

// Fingerprint derives a stable hash of a composed message. Composition is
// deterministic, so equal messages always fingerprint equally.
func Fingerprint(msg Message) string {
	data, err := json.Marshal(msg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Deduplicator tracks sent-message fingerprints in a session. Suppression
// is a policy flag: the source system sometimes re-sends identical
// acknowledgements on purpose, so the default is to allow duplicates.
type Deduplicator struct {
	Suppress bool
}

// ShouldSend reports whether the message may go out given the session's
// sent history.
func (d Deduplicator) ShouldSend(session *domain.Session, hash string) bool {
	if !d.Suppress || hash == "" {
		return true
	}
	for _, sent := range session.SentMessages {
		if sent.Hash == hash {
			return false
		}
	}
	return true
}

// Record appends a fingerprint to the session's sent history. The length
// cap is enforced by the session store on save.
func (d Deduplicator) Record(session *domain.Session, hash string, msgType MessageType, now time.Time) {
	if hash == "" {
		return
	}
	session.SentMessages = append(session.SentMessages, domain.SentMessage{
		Hash:      hash,
		Timestamp: now.UnixMilli(),
		Type:      string(msgType),
	})
}
