package whatsapp

import (
	"encoding/json"
	"io"
	"net/http"
)

// webhookPayload mirrors the Cloud API webhook envelope.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Image *struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
	} `json:"image"`
}

// ParseWebhook decodes a webhook request body into normalized inbound
// events. Status updates and unsupported message types are skipped.
func ParseWebhook(body io.Reader) ([]Inbound, error) {
	var payload webhookPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, err
	}
	var events []Inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if inbound, ok := normalize(msg); ok {
					events = append(events, inbound)
				}
			}
		}
	}
	return events, nil
}

func normalize(msg webhookMessage) (Inbound, bool) {
	inbound := Inbound{MessageID: msg.ID, From: msg.From}
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return Inbound{}, false
		}
		inbound.Type = InboundText
		inbound.Text = msg.Text.Body
	case "interactive":
		if msg.Interactive == nil {
			return Inbound{}, false
		}
		inbound.Type = InboundInteractive
		switch {
		case msg.Interactive.ButtonReply != nil:
			inbound.InteractiveID = msg.Interactive.ButtonReply.ID
			inbound.InteractiveTitle = msg.Interactive.ButtonReply.Title
		case msg.Interactive.ListReply != nil:
			inbound.InteractiveID = msg.Interactive.ListReply.ID
			inbound.InteractiveTitle = msg.Interactive.ListReply.Title
		default:
			return Inbound{}, false
		}
	case "location":
		if msg.Location == nil {
			return Inbound{}, false
		}
		inbound.Type = InboundLocation
		inbound.Latitude = msg.Location.Latitude
		inbound.Longitude = msg.Location.Longitude
	case "image":
		if msg.Image == nil {
			return Inbound{}, false
		}
		inbound.Type = InboundMedia
		inbound.MediaID = msg.Image.ID
		inbound.MediaMIME = msg.Image.MimeType
	default:
		return Inbound{}, false
	}
	return inbound, true
}

// VerifyHandler answers the Cloud API webhook verification handshake.
func VerifyHandler(verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == verifyToken {
			_, _ = w.Write([]byte(q.Get("hub.challenge")))
			return
		}
		http.Error(w, "verification failed", http.StatusForbidden)
	}
}
