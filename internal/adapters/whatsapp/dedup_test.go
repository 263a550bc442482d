package whatsapp

import (
	"testing"
	"time"

	"lobang-bot/internal/domain"
)

func TestFingerprintIsStable(t *testing.T) {
	a := NewText("same body")
	b := NewText("same body")
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("equal messages must fingerprint equally")
	}
	if Fingerprint(a) == Fingerprint(NewText("other body")) {
		t.Fatal("different messages must fingerprint differently")
	}
}

func TestDeduplicatorSuppressesRepeats(t *testing.T) {
	session := domain.NewSession("store", "user")
	d := Deduplicator{Suppress: true}
	msg := NewText("hello")
	hash := Fingerprint(msg)

	if !d.ShouldSend(session, hash) {
		t.Fatal("first send must pass")
	}
	d.Record(session, hash, msg.Type, time.Now())
	if d.ShouldSend(session, hash) {
		t.Fatal("repeat must be suppressed")
	}
}

func TestDeduplicatorDefaultAllowsRepeats(t *testing.T) {
	session := domain.NewSession("store", "user")
	d := Deduplicator{}
	msg := NewText("hello")
	hash := Fingerprint(msg)

	d.Record(session, hash, msg.Type, time.Now())
	if !d.ShouldSend(session, hash) {
		t.Fatal("suppression off must allow repeats")
	}
}
