package whatsapp

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseWebhookNormalizesMessageTypes(t *testing.T) {
	payload := `{
	  "entry": [{
	    "changes": [{
	      "value": {
	        "messages": [
	          {"id": "m1", "from": "6591234567", "type": "text", "text": {"body": "hi"}},
	          {"id": "m2", "from": "6591234567", "type": "interactive", "interactive": {"type": "button_reply", "button_reply": {"id": "cat:Food & Dining", "title": "Food & Dining"}}},
	          {"id": "m3", "from": "6591234567", "type": "location", "location": {"latitude": 1.3048, "longitude": 103.8318}},
	          {"id": "m4", "from": "6591234567", "type": "image", "image": {"id": "media-1", "mime_type": "image/jpeg"}},
	          {"id": "m5", "from": "6591234567", "type": "sticker"}
	        ]
	      }
	    }]
	  }]
	}`

	events, err := ParseWebhook(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Type != InboundText || events[0].Text != "hi" {
		t.Fatalf("unexpected text event: %+v", events[0])
	}
	if events[1].Type != InboundInteractive || events[1].InteractiveID != "cat:Food & Dining" {
		t.Fatalf("unexpected interactive event: %+v", events[1])
	}
	if events[2].Type != InboundLocation || events[2].Latitude != 1.3048 {
		t.Fatalf("unexpected location event: %+v", events[2])
	}
	if events[3].Type != InboundMedia || events[3].MediaID != "media-1" {
		t.Fatalf("unexpected media event: %+v", events[3])
	}
}

func TestParseWebhookIgnoresStatusOnlyPayload(t *testing.T) {
	events, err := ParseWebhook(strings.NewReader(`{"entry": [{"changes": [{"value": {}}]}]}`))
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestVerifyHandlerEchoesChallenge(t *testing.T) {
	h := VerifyHandler("secret")

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != 200 || rec.Body.String() != "12345" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != 403 {
		t.Fatalf("expected 403 for bad token, got %d", rec.Code)
	}
}
